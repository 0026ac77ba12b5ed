package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"vidscribe/internal/worker"
	"vidscribe/pkg/logger"
	"vidscribe/pkg/model"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

func (b *Bot) handleVideo(c tele.Context) error {
	msg := c.Message()
	file, ext, meta, ok := videoFile(msg)
	if !ok {
		return c.Reply("Please send a video file.")
	}

	if err := c.Reply("Downloading..."); err != nil {
		logger.Error("Failed to send processing message", zap.Error(err))
	}

	chatID := msg.Chat.ID
	path := filepath.Join(b.videoDir, fmt.Sprintf("%d_%d%s", chatID, msg.ID, ext))
	if err := b.tb.Download(file, path); err != nil {
		logger.Error("Failed to download video",
			zap.Int64("chat_id", chatID),
			zap.Int("message_id", msg.ID),
			zap.Error(err))
		return c.Reply("Failed to download the video. Telegram bots can only fetch files up to 20 MB.")
	}

	ctx := context.Background()
	meta["telegram_message_id"] = msg.ID

	task, err := b.enqueuer.Enqueue(ctx, worker.EnqueueRequest{
		VideoPath:    path,
		LanguageCode: b.languageFor(ctx, chatID),
		ChatID:       &chatID,
		Meta:         meta,
	})
	if err != nil {
		logger.Error("Failed to enqueue video",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		return c.Reply("Failed to queue the video, try again later.")
	}

	return c.Reply(fmt.Sprintf("Queued for transcription (task %s).", task.ID))
}

// videoFile picks the video attached to msg, sent either as a video or as a video document
func videoFile(msg *tele.Message) (*tele.File, string, model.JSONB, bool) {
	if msg == nil {
		return nil, "", nil, false
	}

	if v := msg.Video; v != nil {
		return &v.File, extension(v.FileName, v.MIME), model.JSONB{
			"file_id":   v.FileID,
			"duration":  v.Duration,
			"file_size": v.FileSize,
			"mime_type": v.MIME,
		}, true
	}

	if d := msg.Document; d != nil && strings.HasPrefix(d.MIME, "video/") {
		return &d.File, extension(d.FileName, d.MIME), model.JSONB{
			"file_id":   d.FileID,
			"file_size": d.FileSize,
			"mime_type": d.MIME,
			"file_name": d.FileName,
		}, true
	}

	return nil, "", nil, false
}

func extension(fileName, mime string) string {
	if ext := filepath.Ext(fileName); ext != "" {
		return strings.ToLower(ext)
	}
	switch mime {
	case "video/quicktime":
		return ".mov"
	case "video/webm":
		return ".webm"
	case "video/x-matroska":
		return ".mkv"
	default:
		return ".mp4"
	}
}
