package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"vidscribe/internal/app"
	"vidscribe/internal/bot"
	"vidscribe/internal/config"
	"vidscribe/internal/queue"
	"vidscribe/internal/storage"
	"vidscribe/internal/worker"
	"vidscribe/pkg/logger"
	"vidscribe/pkg/resilience"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to the yaml config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	resetDB := flag.Bool("reset-db", false, "Reset database by dropping all tables and re-running migrations")
	flag.Parse()

	if err := logger.Init(*debug); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting vidscribe worker service")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	if cfg.Postgres.DSN == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}

	if *resetDB {
		if err := storage.ResetMigrations(cfg.Postgres.DSN, cfg.Postgres.MigrationsPath); err != nil {
			logger.Fatal("Failed to reset database", zap.Error(err))
		}
		logger.Info("Database reset completed successfully")
		return
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewPostgresStorage(ctx, cfg.Postgres.DSN, cfg.Postgres.MigrationsPath)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	var archive worker.AudioArchive
	if cfg.S3.Bucket != "" {
		s3Storage, err := storage.NewS3Storage(ctx,
			cfg.S3.Endpoint,
			cfg.S3.Region,
			cfg.S3.AccessKey,
			cfg.S3.SecretKey,
			cfg.S3.Bucket,
		)
		if err != nil {
			logger.Fatal("Failed to initialize S3 storage", zap.Error(err))
		}
		archive = s3Storage
	}

	var notifier worker.Notifier
	if cfg.Telegram.Token != "" {
		n, err := bot.NewNotifier(cfg.Telegram.Token, cfg.Telegram.APIURL)
		if err != nil {
			logger.Fatal("Failed to create Telegram notifier", zap.Error(err))
		}
		notifier = n
		logger.Info("Telegram delivery enabled")
	}

	transcriptCache := app.OpenCache(cfg)
	if transcriptCache != nil {
		defer transcriptCache.Close()
	}

	p, err := app.NewPipeline(cfg, transcriptCache)
	if err != nil {
		logger.Fatal("Failed to build pipeline", zap.Error(err))
	}

	rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rabbitMQ.Close()

	processor := worker.NewProcessor(db, p, archive, notifier, worker.Config{
		AudioDir: cfg.Media.AudioDir,
		Breaker:  resilience.NewCircuitBreaker("speech", cfg.Worker.BreakerFailures, cfg.Worker.BreakerTimeout),
	})

	if err := rabbitMQ.Consume(ctx, queue.QueueNameVideoProcessing, cfg.Worker.Concurrency, processor.ProcessTask); err != nil {
		logger.Error("Failed to consume messages", zap.Error(err))
	}

	logger.Info("Worker service shutdown complete")
}
