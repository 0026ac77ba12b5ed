package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"vidscribe/pkg/logger"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

// maxMessageLen is the Bot API limit for a text message
const maxMessageLen = 4096

// Notifier sends finished transcripts back to Telegram chats without polling for updates
type Notifier struct {
	tb *tele.Bot
}

func NewNotifier(token, apiURL string) (*Notifier, error) {
	if token == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	tb, err := tele.NewBot(tele.Settings{
		URL:     apiURL,
		Token:   token,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram client: %w", err)
	}
	return &Notifier{tb: tb}, nil
}

func (n *Notifier) NotifyTranscript(ctx context.Context, chatID int64, taskID string, lines []string) error {
	text := strings.Join(lines, "\n")
	if strings.TrimSpace(text) == "" {
		text = "(no speech recognized)"
	}

	chat := &tele.Chat{ID: chatID}
	for _, part := range splitMessage("Transcript:\n"+text, maxMessageLen) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := n.tb.Send(chat, part); err != nil {
			return fmt.Errorf("failed to send transcript for task %s: %w", taskID, err)
		}
	}

	logger.Debug("Transcript delivered",
		zap.String("task_id", taskID),
		zap.Int64("chat_id", chatID))
	return nil
}

func (n *Notifier) NotifyFailure(ctx context.Context, chatID int64, taskID, stage string) error {
	msg := fmt.Sprintf("Could not transcribe the video (task %s, failed at %s).", taskID, stage)
	_, err := n.tb.Send(&tele.Chat{ID: chatID}, msg)
	return err
}

// splitMessage cuts text into parts of at most limit runes, preferring line breaks
func splitMessage(text string, limit int) []string {
	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}
