package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"
	"vidscribe/internal/queue"
	"vidscribe/pkg/logger"
	"vidscribe/pkg/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TaskCreator interface {
	CreateTask(ctx context.Context, task *model.Task) error
}

type TaskPublisher interface {
	PublishTask(ctx context.Context, task *queue.VideoTask) error
}

// EnqueueRequest describes a video to transcribe asynchronously
type EnqueueRequest struct {
	VideoPath    string
	AudioPath    string
	LanguageCode string
	ChatID       *int64
	Meta         model.JSONB
}

// Enqueuer records a queued task and publishes it for the worker
type Enqueuer struct {
	store TaskCreator
	queue TaskPublisher
}

func NewEnqueuer(store TaskCreator, q TaskPublisher) *Enqueuer {
	return &Enqueuer{store: store, queue: q}
}

func (e *Enqueuer) Enqueue(ctx context.Context, req EnqueueRequest) (*model.Task, error) {
	if req.VideoPath == "" {
		return nil, errors.New("video path is required")
	}
	if req.LanguageCode == "" {
		return nil, errors.New("language code is required")
	}

	// the worker may run from another directory
	videoPath, err := filepath.Abs(req.VideoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve video path: %w", err)
	}
	audioPath := req.AudioPath
	if audioPath != "" {
		if audioPath, err = filepath.Abs(audioPath); err != nil {
			return nil, fmt.Errorf("failed to resolve audio path: %w", err)
		}
	}

	now := time.Now()
	task := &model.Task{
		ID:           uuid.New().String(),
		VideoPath:    videoPath,
		AudioPath:    audioPath,
		LanguageCode: req.LanguageCode,
		ChatID:       req.ChatID,
		Status:       model.TaskStatusQueued,
		Meta:         req.Meta,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := e.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	msg := &queue.VideoTask{
		TaskID:       task.ID,
		VideoPath:    task.VideoPath,
		AudioPath:    task.AudioPath,
		LanguageCode: task.LanguageCode,
		ChatID:       task.ChatID,
		CreatedAt:    task.CreatedAt,
	}
	if err := e.queue.PublishTask(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to publish task %s: %w", task.ID, err)
	}

	logger.Info("Task enqueued",
		zap.String("task_id", task.ID),
		zap.String("video_path", task.VideoPath),
		zap.String("language_code", task.LanguageCode))

	return task, nil
}
