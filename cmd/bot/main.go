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

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to the yaml config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := logger.Init(*debug); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting vidscribe bot service")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewPostgresStorage(ctx, cfg.Postgres.DSN, cfg.Postgres.MigrationsPath)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rabbitMQ.Close()

	chatCache := app.OpenCache(cfg)
	if chatCache != nil {
		defer chatCache.Close()
	}

	botInstance, err := bot.NewBot(bot.Settings{
		Token:           cfg.Telegram.Token,
		URL:             cfg.Telegram.APIURL,
		VideoDir:        cfg.Worker.VideoDir,
		DefaultLanguage: cfg.Speech.LanguageCode,
	}, worker.NewEnqueuer(db, rabbitMQ), chatCache)
	if err != nil {
		logger.Fatal("Failed to initialize bot", zap.Error(err))
	}

	go func() {
		logger.Info("Starting Telegram bot")
		botInstance.Start()
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	botInstance.Stop()
	logger.Info("Bot service shutdown complete")
}
