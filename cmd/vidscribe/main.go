package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"vidscribe/internal/app"
	"vidscribe/internal/config"
	"vidscribe/internal/pipeline"
	"vidscribe/internal/queue"
	"vidscribe/internal/storage"
	"vidscribe/internal/worker"
	"vidscribe/pkg/logger"
	"vidscribe/pkg/model"

	"go.uber.org/zap"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", config.DefaultPath, "Path to the yaml config file")
	videoPath := flag.String("video", "", "Video file to transcribe")
	audioPath := flag.String("audio", "", "Where to write the extracted audio (default: <audio_dir or temp>/<name>_audio_16k.wav)")
	lang := flag.String("lang", "", "Recognition language code (default: speech.language_code)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	enqueue := flag.Bool("enqueue", false, "Queue the video for the worker instead of transcribing it here")
	chatID := flag.Int64("chat", 0, "Telegram chat to deliver the transcript to (with -enqueue)")
	show := flag.String("show", "", "Print the stored transcript of a task id")
	flag.Parse()

	if err := logger.Init(*debug); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to init logger:", err)
		return 1
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("Failed to load config", zap.Error(err))
		return 1
	}

	if *videoPath == "" && flag.NArg() > 0 {
		*videoPath = flag.Arg(0)
	}
	if *lang == "" {
		*lang = cfg.Speech.LanguageCode
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *show != "":
		err = showTranscript(ctx, cfg, *show)
	case *videoPath == "":
		flag.Usage()
		return 2
	case *enqueue:
		var chat *int64
		if *chatID != 0 {
			chat = chatID
		}
		err = enqueueVideo(ctx, cfg, worker.EnqueueRequest{
			VideoPath:    *videoPath,
			AudioPath:    *audioPath,
			LanguageCode: *lang,
			ChatID:       chat,
		})
	default:
		err = transcribe(ctx, cfg, pipeline.Job{
			VideoPath:    *videoPath,
			AudioPath:    *audioPath,
			LanguageCode: *lang,
		})
	}

	if err != nil {
		logger.Error("Command failed",
			zap.String("stage", pipeline.StageOf(err)),
			zap.Error(err))
		return 1
	}
	return 0
}

func transcribe(ctx context.Context, cfg *config.Config, job pipeline.Job) error {
	transcriptCache := app.OpenCache(cfg)
	if transcriptCache != nil {
		defer transcriptCache.Close()
	}

	p, err := app.NewPipeline(cfg, transcriptCache)
	if err != nil {
		return err
	}

	if job.AudioPath == "" {
		job.AudioPath = pipeline.AudioPathFor(cfg.Media.AudioDir, job.VideoPath)
	}

	outcome, err := p.Run(ctx, job, nil)
	if err != nil {
		return err
	}

	printLines(os.Stdout, outcome.Lines)
	return nil
}

func enqueueVideo(ctx context.Context, cfg *config.Config, req worker.EnqueueRequest) error {
	db, err := storage.NewPostgresStorage(ctx, cfg.Postgres.DSN, cfg.Postgres.MigrationsPath)
	if err != nil {
		return err
	}
	defer db.Close()

	rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL)
	if err != nil {
		return err
	}
	defer rabbitMQ.Close()

	task, err := worker.NewEnqueuer(db, rabbitMQ).Enqueue(ctx, req)
	if err != nil {
		return err
	}

	fmt.Println("Task:", task.ID)
	return nil
}

func showTranscript(ctx context.Context, cfg *config.Config, taskID string) error {
	db, err := storage.NewPostgresStorage(ctx, cfg.Postgres.DSN, cfg.Postgres.MigrationsPath)
	if err != nil {
		return err
	}
	defer db.Close()

	task, err := db.GetTaskByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status != model.TaskStatusDone {
		fmt.Printf("Task %s is %s\n", task.ID, task.Status)
		if task.ErrorText != nil {
			fmt.Println("Error:", *task.ErrorText)
		}
		return nil
	}

	tr, err := db.GetTranscriptByTaskID(ctx, taskID)
	if err != nil {
		return err
	}
	printLines(os.Stdout, storedLines(tr))
	return nil
}

func printLines(w io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(w, "Transcript:", line)
	}
}

// storedLines prefers the saved segments; rows written before they existed only carry the joined text
func storedLines(tr *model.Transcript) []string {
	if len(tr.Segments) > 0 || tr.Text == "" {
		return tr.Segments
	}
	return strings.Split(tr.Text, "\n")
}
