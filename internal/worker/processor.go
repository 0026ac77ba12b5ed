package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
	"vidscribe/internal/media"
	"vidscribe/internal/pipeline"
	"vidscribe/internal/queue"
	"vidscribe/internal/speech"
	"vidscribe/internal/storage"
	"vidscribe/internal/transcript"
	"vidscribe/pkg/logger"
	"vidscribe/pkg/model"
	"vidscribe/pkg/resilience"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	stageStorage = "storage"

	defaultBackoff = 5 * time.Second
)

type TaskStore interface {
	GetTaskByID(ctx context.Context, id string) (*model.Task, error)
	UpdateTask(ctx context.Context, task *model.Task) error
	CreateTranscript(ctx context.Context, transcript *model.Transcript) error
}

// AudioArchive keeps a copy of the extracted audio and returns where it went
type AudioArchive interface {
	ArchiveAudio(ctx context.Context, taskID string, body io.Reader) (string, error)
}

// Notifier delivers outcomes to the chat that asked for the transcription
type Notifier interface {
	NotifyTranscript(ctx context.Context, chatID int64, taskID string, lines []string) error
	NotifyFailure(ctx context.Context, chatID int64, taskID, stage string) error
}

type Runner interface {
	Run(ctx context.Context, job pipeline.Job, obs pipeline.Observer) (*pipeline.Outcome, error)
}

type Config struct {
	// AudioDir holds per-task audio directories; the system temp dir when empty
	AudioDir string
	// Breaker is optional; only recognition service failures trip it
	Breaker *resilience.CircuitBreaker
	// Backoff delays handing a task back while the breaker is open
	Backoff time.Duration
}

type Processor struct {
	store    TaskStore
	runner   Runner
	archive  AudioArchive
	notifier Notifier
	audioDir string
	breaker  *resilience.CircuitBreaker
	backoff  time.Duration
}

// NewProcessor creates a new worker processor. archive and notifier may be nil.
func NewProcessor(store TaskStore, runner Runner, archive AudioArchive, notifier Notifier, cfg Config) *Processor {
	if cfg.AudioDir == "" {
		cfg.AudioDir = os.TempDir()
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	return &Processor{
		store:    store,
		runner:   runner,
		archive:  archive,
		notifier: notifier,
		audioDir: cfg.AudioDir,
		breaker:  cfg.Breaker,
		backoff:  cfg.Backoff,
	}
}

// ProcessTask handles one queue message. A returned error asks the queue to redeliver it.
func (p *Processor) ProcessTask(ctx context.Context, body []byte) error {
	msg, err := queue.DecodeVideoTask(body)
	if err != nil {
		logger.Error("Dropping malformed task message", zap.Error(err))
		return nil
	}

	log := logger.With(zap.String("task_id", msg.TaskID))

	task, err := p.store.GetTaskByID(ctx, msg.TaskID)
	if errors.Is(err, storage.ErrTaskNotFound) {
		log.Warn("Dropping message for unknown task")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get task from db: %w", err)
	}

	if task.IsCompleted() && !task.CanRetry() {
		log.Info("Skipping finished task", zap.String("status", string(task.Status)))
		return nil
	}

	if task.AudioPath == "" {
		task.AudioPath = pipeline.AudioPathFor(filepath.Join(p.audioDir, task.ID), task.VideoPath)
	}
	task.SetInProgress()
	p.update(ctx, task)

	log.Info("Processing video task",
		zap.String("video_path", task.VideoPath),
		zap.Int("attempt", task.Attempts+1))

	job := pipeline.Job{
		VideoPath:    task.VideoPath,
		AudioPath:    task.AudioPath,
		LanguageCode: task.LanguageCode,
	}
	obs := &taskObserver{p: p, task: task}

	var outcome *pipeline.Outcome
	run := func() error {
		var runErr error
		outcome, runErr = p.runner.Run(ctx, job, obs)
		return runErr
	}
	if p.breaker != nil {
		err = p.breaker.ExecuteCounting(run, serviceFailure)
	} else {
		err = run()
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return p.requeue(ctx, task, err, p.backoff)
	}
	if err != nil {
		return p.handleTaskError(ctx, task, pipeline.StageOf(err), err)
	}

	var raw json.RawMessage
	if outcome.Result != nil {
		if raw, err = json.Marshal(outcome.Result); err != nil {
			log.Warn("Failed to marshal recognition result", zap.Error(err))
			raw = nil
		}
	}

	tr := &model.Transcript{
		ID:          uuid.New().String(),
		TaskID:      task.ID,
		Text:        transcript.Join(outcome.Lines),
		Lines:       len(outcome.Lines),
		Segments:    outcome.Lines,
		Cached:      outcome.Cached,
		RawResponse: raw,
		CreatedAt:   time.Now(),
	}
	if err := p.store.CreateTranscript(ctx, tr); err != nil {
		return p.handleTaskError(ctx, task, stageStorage, fmt.Errorf("failed to save transcript: %w", err))
	}

	task.SetCompleted()
	p.update(ctx, task)

	if p.notifier != nil && task.ChatID != nil {
		if err := p.notifier.NotifyTranscript(ctx, *task.ChatID, task.ID, outcome.Lines); err != nil {
			// the task is completed anyway
			log.Error("Failed to send result to user", zap.Error(err))
		}
	}

	log.Info("Task completed successfully",
		zap.Int("lines", tr.Lines),
		zap.Bool("cached", tr.Cached))

	return nil
}

func (p *Processor) handleTaskError(ctx context.Context, task *model.Task, stage string, err error) error {
	ctx = context.WithoutCancel(ctx)
	log := logger.With(zap.String("task_id", task.ID), zap.String("stage", stage))

	if stage == pipeline.StageCancelled {
		log.Warn("Task interrupted, returning it to the queue", zap.Error(err))
		return p.requeue(ctx, task, err, 0)
	}

	log.Error("Task processing error", zap.Error(err))

	task.SetError(stage, err.Error())
	task.IncrementAttempts()
	p.update(ctx, task)

	if task.CanRetry() {
		return err
	}

	if p.notifier != nil && task.ChatID != nil {
		if nerr := p.notifier.NotifyFailure(ctx, *task.ChatID, task.ID, stage); nerr != nil {
			log.Error("Failed to notify user about failure", zap.Error(nerr))
		}
	}
	return nil
}

// requeue hands the task back untouched by the attempt counter. The error is
// returned after delay so the queue redelivers the message.
func (p *Processor) requeue(ctx context.Context, task *model.Task, err error, delay time.Duration) error {
	task.Status = model.TaskStatusQueued
	task.UpdatedAt = time.Now()
	p.update(context.WithoutCancel(ctx), task)

	if delay > 0 {
		logger.Warn("Recognition service unavailable, task returned to the queue",
			zap.String("task_id", task.ID),
			zap.Duration("retry_in", delay))
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	return err
}

// serviceFailure tells whether err reflects the health of the recognition service
func serviceFailure(err error) bool {
	switch pipeline.StageOf(err) {
	case pipeline.StageSubmission, pipeline.StagePolling, pipeline.StageTimeout:
		return true
	default:
		return false
	}
}

func (p *Processor) update(ctx context.Context, task *model.Task) {
	if err := p.store.UpdateTask(ctx, task); err != nil {
		logger.Error("Failed to update task",
			zap.String("task_id", task.ID),
			zap.String("status", string(task.Status)),
			zap.Error(err))
	}
}

// taskObserver persists intermediate artifacts of a run on its task
type taskObserver struct {
	p    *Processor
	task *model.Task
}

func (o *taskObserver) Extracted(ctx context.Context, asset *media.AudioAsset) {
	if o.task.Meta == nil {
		o.task.Meta = model.JSONB{}
	}
	o.task.Meta["audio_bytes"] = asset.Size()
	o.task.Meta["audio_format"] = asset.Format().String()

	if o.p.archive == nil {
		return
	}
	url, err := o.p.archive.ArchiveAudio(ctx, o.task.ID, bytes.NewReader(asset.Bytes()))
	if err != nil {
		logger.Warn("Failed to archive audio",
			zap.String("task_id", o.task.ID),
			zap.Error(err))
		return
	}
	o.task.Meta["audio_url"] = url
}

func (o *taskObserver) Submitted(ctx context.Context, handle speech.JobHandle) {
	o.task.SetOperation(handle.Name())
	o.p.update(ctx, o.task)

	logger.Info("Recognition started",
		zap.String("task_id", o.task.ID),
		zap.String("operation_id", handle.Name()))
}
