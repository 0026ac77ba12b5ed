package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"vidscribe/internal/worker"
	"vidscribe/pkg/cache"
	"vidscribe/pkg/logger"
	"vidscribe/pkg/model"

	tele "gopkg.in/telebot.v4"

	"go.uber.org/zap"
)

const (
	languageTTL  = 30 * 24 * time.Hour
	resetKeyword = "reset"
)

var languagePattern = regexp.MustCompile(`^[a-zA-Z]{2,3}(-[a-zA-Z0-9]{2,8})*$`)

type Enqueuer interface {
	Enqueue(ctx context.Context, req worker.EnqueueRequest) (*model.Task, error)
}

type Settings struct {
	Token string
	// URL overrides the Bot API endpoint
	URL             string
	VideoDir        string
	DefaultLanguage string
}

// Bot accepts videos from Telegram chats and queues them for transcription
type Bot struct {
	tb          *tele.Bot
	enqueuer    Enqueuer
	cache       cache.Cache
	videoDir    string
	defaultLang string
}

func NewBot(s Settings, enqueuer Enqueuer, chatCache cache.Cache) (*Bot, error) {
	logger.Info("Starting bot initialization")

	if s.Token == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	if s.VideoDir == "" {
		s.VideoDir = os.TempDir()
	}
	videoDir, err := filepath.Abs(s.VideoDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve video dir: %w", err)
	}
	s.VideoDir = videoDir
	if err := os.MkdirAll(s.VideoDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create video dir: %w", err)
	}

	tb, err := tele.NewBot(tele.Settings{
		URL:   s.URL,
		Token: s.Token,
		Poller: &tele.LongPoller{
			Timeout: 10 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Bot created successfully")

	b := &Bot{
		tb:          tb,
		enqueuer:    enqueuer,
		cache:       chatCache,
		videoDir:    s.VideoDir,
		defaultLang: s.DefaultLanguage,
	}
	b.registerHandlers()
	return b, nil
}

func (b *Bot) registerHandlers() {
	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/lang", b.handleLang)
	b.tb.Handle(tele.OnVideo, b.handleVideo)
	b.tb.Handle(tele.OnDocument, b.handleVideo)
}

func (b *Bot) handleStart(c tele.Context) error {
	lang := b.languageFor(context.Background(), c.Chat().ID)
	return c.Send(fmt.Sprintf(
		"Send me a video and I will reply with its transcript.\nRecognition language: %s (change it with /lang <code>, e.g. /lang de-DE, or /lang reset)", lang))
}

func (b *Bot) handleLang(c tele.Context) error {
	code := strings.TrimSpace(c.Message().Payload)
	if strings.EqualFold(code, resetKeyword) {
		if err := b.resetLanguage(context.Background(), c.Chat().ID); err != nil {
			return c.Reply(err.Error())
		}
		return c.Reply("Recognition language reset to " + b.defaultLang)
	}
	if err := b.setLanguage(context.Background(), c.Chat().ID, code); err != nil {
		return c.Reply(err.Error())
	}
	return c.Reply("Recognition language set to " + code)
}

// setLanguage remembers the chat's recognition language
func (b *Bot) setLanguage(ctx context.Context, chatID int64, code string) error {
	if !languagePattern.MatchString(code) {
		return fmt.Errorf("usage: /lang <code> or /lang reset, e.g. /lang en-US")
	}
	if b.cache == nil {
		return errors.New("language selection is not available")
	}
	if err := b.cache.SetWithTTL(ctx, cache.ChatLanguageCacheKey(chatID), code, languageTTL); err != nil {
		logger.Error("Failed to save chat language", zap.Int64("chat_id", chatID), zap.Error(err))
		return errors.New("failed to save the language, try again later")
	}

	logger.Info("Chat language changed",
		zap.Int64("chat_id", chatID),
		zap.String("language_code", code))
	return nil
}

// resetLanguage forgets the chat's choice so the default language applies again
func (b *Bot) resetLanguage(ctx context.Context, chatID int64) error {
	if b.cache == nil {
		return errors.New("language selection is not available")
	}
	if err := b.cache.Delete(ctx, cache.ChatLanguageCacheKey(chatID)); err != nil {
		logger.Error("Failed to reset chat language", zap.Int64("chat_id", chatID), zap.Error(err))
		return errors.New("failed to reset the language, try again later")
	}

	logger.Info("Chat language reset", zap.Int64("chat_id", chatID))
	return nil
}

// languageFor falls back to the default language when the chat never picked one
func (b *Bot) languageFor(ctx context.Context, chatID int64) string {
	if b.cache == nil {
		return b.defaultLang
	}
	var code string
	if err := b.cache.Get(ctx, cache.ChatLanguageCacheKey(chatID), &code); err != nil || code == "" {
		if err != nil && !errors.Is(err, cache.ErrNotFound) {
			logger.Warn("Failed to read chat language", zap.Int64("chat_id", chatID), zap.Error(err))
		}
		return b.defaultLang
	}
	return code
}

func (b *Bot) Start() {
	logger.Info("Bot started")
	b.tb.Start()
}

func (b *Bot) Stop() {
	b.tb.Stop()
	logger.Info("Bot stopped")
}
