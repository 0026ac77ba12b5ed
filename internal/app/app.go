// Package app builds the transcription core from configuration for the commands.
package app

import (
	"fmt"
	"time"
	"vidscribe/internal/config"
	"vidscribe/internal/media"
	"vidscribe/internal/pipeline"
	"vidscribe/internal/poller"
	"vidscribe/internal/speech"
	"vidscribe/pkg/cache"
	"vidscribe/pkg/logger"
	"vidscribe/pkg/resilience"

	"go.uber.org/zap"
)

// AudioFormat is the extraction target configured under media
func AudioFormat(cfg *config.Config) media.Format {
	return media.Format{
		SampleRateHz: cfg.Media.SampleRate,
		Channels:     cfg.Media.Channels,
		SampleFormat: cfg.Media.SampleFormat,
	}
}

// RetryPolicy starts from the library defaults and applies the configured overrides
func RetryPolicy(cfg *config.Config) *resilience.RetryConfig {
	if cfg.Retry.MaxAttempts <= 1 {
		return resilience.NoRetry()
	}
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Retry.MaxAttempts
	if cfg.Retry.InitialInterval > 0 {
		retry.InitialInterval = cfg.Retry.InitialInterval
	}
	if cfg.Retry.MaxInterval > 0 {
		retry.MaxInterval = cfg.Retry.MaxInterval
	}
	return retry
}

// SpeechClient builds the recognition client with the configured retry policy and rate limit
func SpeechClient(cfg *config.Config) *speech.Client {
	var limiter *resilience.RateLimiter
	if n := cfg.Speech.RateLimit; n > 0 {
		limiter = resilience.NewRateLimiter(n, time.Second/time.Duration(n))
	}

	return speech.NewClient(speech.Config{
		APIKey:        cfg.Speech.APIKey,
		RecognizeURL:  cfg.Speech.RecognizeURL,
		OperationsURL: cfg.Speech.OperationsURL,
		Timeout:       cfg.Speech.HTTPTimeout,
		Retry:         RetryPolicy(cfg),
		Limiter:       limiter,
	})
}

// NewPipeline wires extractor, speech client and poller. c may be nil.
func NewPipeline(cfg *config.Config, c cache.Cache) (*pipeline.Pipeline, error) {
	if err := cfg.RequireSpeech(); err != nil {
		return nil, err
	}

	format := AudioFormat(cfg)
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid media config: %w", err)
	}

	client := SpeechClient(cfg)
	waiter := poller.New(client, poller.Config{
		Interval:    cfg.Poll.Interval,
		MaxAttempts: cfg.Poll.MaxAttempts,
		MaxWait:     cfg.Poll.MaxWait,
	})

	return pipeline.New(media.NewExtractor(cfg.Media.FFmpegPath), client, waiter, pipeline.Config{
		Format:  format,
		TopOnly: cfg.Transcript.TopOnly,
		Cache:   c,
	}), nil
}

// OpenCache connects to redis when an address is configured. A cache that
// cannot be reached is skipped, it only saves repeated recognition.
func OpenCache(cfg *config.Config) cache.Cache {
	if cfg.Redis.Addr == "" {
		return nil
	}
	c, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
	if err != nil {
		logger.Warn("Redis unavailable, transcript cache disabled", zap.Error(err))
		return nil
	}
	logger.Info("Redis cache connection established")
	return c
}
