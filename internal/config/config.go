package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	"vidscribe/pkg/logger"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	Speech struct {
		APIKey        string        `yaml:"api_key" env:"SPEECH_API_KEY"`
		LanguageCode  string        `yaml:"language_code" env:"SPEECH_LANGUAGE_CODE" env-default:"en-US"`
		RecognizeURL  string        `yaml:"recognize_url" env:"SPEECH_RECOGNIZE_URL" env-default:"https://speech.googleapis.com/v1p1beta1/speech:longrunningrecognize"`
		OperationsURL string        `yaml:"operations_url" env:"SPEECH_OPERATIONS_URL" env-default:"https://speech.googleapis.com/v1"`
		HTTPTimeout   time.Duration `yaml:"http_timeout" env:"SPEECH_HTTP_TIMEOUT" env-default:"30s"`
		RateLimit     int           `yaml:"rate_limit" env:"SPEECH_RATE_LIMIT" env-default:"0"`
	} `yaml:"speech"`

	Media struct {
		FFmpegPath   string `yaml:"ffmpeg_path" env:"FFMPEG_PATH" env-default:"ffmpeg"`
		SampleRate   int    `yaml:"sample_rate" env:"AUDIO_SAMPLE_RATE" env-default:"16000"`
		Channels     int    `yaml:"channels" env:"AUDIO_CHANNELS" env-default:"1"`
		SampleFormat string `yaml:"sample_format" env:"AUDIO_SAMPLE_FORMAT" env-default:"s16le"`
		AudioDir     string `yaml:"audio_dir" env:"AUDIO_DIR"`
	} `yaml:"media"`

	Poll struct {
		Interval    time.Duration `yaml:"interval" env:"POLL_INTERVAL" env-default:"5s"`
		MaxAttempts int           `yaml:"max_attempts" env:"POLL_MAX_ATTEMPTS" env-default:"0"`
		MaxWait     time.Duration `yaml:"max_wait" env:"POLL_MAX_WAIT" env-default:"30m"`
	} `yaml:"poll"`

	Retry struct {
		MaxAttempts     int           `yaml:"max_attempts" env:"RETRY_MAX_ATTEMPTS" env-default:"1"`
		InitialInterval time.Duration `yaml:"initial_interval" env:"RETRY_INITIAL_INTERVAL" env-default:"1s"`
		MaxInterval     time.Duration `yaml:"max_interval" env:"RETRY_MAX_INTERVAL" env-default:"30s"`
	} `yaml:"retry"`

	Transcript struct {
		TopOnly bool `yaml:"top_only" env:"TRANSCRIPT_TOP_ONLY" env-default:"false"`
	} `yaml:"transcript"`

	Postgres struct {
		DSN            string `yaml:"dsn" env:"POSTGRES_DSN"`
		MigrationsPath string `yaml:"migrations_path" env:"POSTGRES_MIGRATIONS_PATH" env-default:"migrations"`
	} `yaml:"postgres"`

	S3 struct {
		Endpoint  string `yaml:"endpoint" env:"S3_ENDPOINT"`
		AccessKey string `yaml:"access_key" env:"S3_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"S3_SECRET_KEY"`
		Bucket    string `yaml:"bucket" env:"S3_BUCKET"`
		Region    string `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
	} `yaml:"s3"`

	Redis struct {
		Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
		Password string        `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
		DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
		TTL      time.Duration `yaml:"ttl" env:"REDIS_TTL" env-default:"168h"`
	} `yaml:"redis"`

	RabbitMQ struct {
		URL string `yaml:"url" env:"RABBITMQ_URL"`
	} `yaml:"rabbitmq"`

	Telegram struct {
		Token  string `yaml:"token" env:"TELEGRAM_BOT_TOKEN"`
		APIURL string `yaml:"api_url" env:"TELEGRAM_API_URL"`
	} `yaml:"telegram"`

	Worker struct {
		Concurrency     int           `yaml:"concurrency" env:"WORKER_CONCURRENCY" env-default:"4"`
		BreakerFailures uint32        `yaml:"breaker_failures" env:"WORKER_BREAKER_FAILURES" env-default:"5"`
		BreakerTimeout  time.Duration `yaml:"breaker_timeout" env:"WORKER_BREAKER_TIMEOUT" env-default:"1m"`
		VideoDir        string        `yaml:"video_dir" env:"WORKER_VIDEO_DIR"`
	} `yaml:"worker"`
}

// LoadConfig reads the yaml file at path (when it exists) and overlays the environment.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = DefaultPath
	}

	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		logger.Debug("Config file not found, using environment only", zap.String("path", path))
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info("Config loaded successfully", zap.String("path", path))
	return &cfg, nil
}

// ErrMissingAPIKey is returned by RequireSpeech when no key is configured
var ErrMissingAPIKey = errors.New("speech api key is required (SPEECH_API_KEY)")

// RequireSpeech reports whether the recognition service can be called.
// Commands that only queue or read tasks do not need it.
func (c *Config) RequireSpeech() error {
	if c.Speech.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// Validate checks the values the transcription core cannot run without
func (c *Config) Validate() error {
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.Poll.Interval)
	}
	if c.Poll.MaxAttempts < 0 {
		return fmt.Errorf("poll max attempts must not be negative, got %d", c.Poll.MaxAttempts)
	}
	if c.Worker.Concurrency < 1 {
		c.Worker.Concurrency = 1
	}
	if c.Retry.MaxAttempts < 1 {
		c.Retry.MaxAttempts = 1
	}
	return nil
}
