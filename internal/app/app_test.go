package app

import (
	"testing"
	"time"
	"vidscribe/internal/config"
	"vidscribe/internal/media"
	"vidscribe/pkg/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Speech.APIKey = "KEY"
	cfg.Media.FFmpegPath = "ffmpeg"
	cfg.Media.SampleRate = 16000
	cfg.Media.Channels = 1
	cfg.Media.SampleFormat = media.SampleFormatS16LE
	cfg.Poll.Interval = time.Second
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.InitialInterval = time.Millisecond
	cfg.Retry.MaxInterval = time.Second
	cfg.Speech.RateLimit = 5
	return cfg
}

func TestNewPipeline(t *testing.T) {
	p, err := NewPipeline(testConfig(), nil)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestNewPipeline_RequiresAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.Speech.APIKey = ""
	_, err := NewPipeline(cfg, nil)
	assert.ErrorIs(t, err, config.ErrMissingAPIKey)
}

func TestNewPipeline_RejectsBadFormat(t *testing.T) {
	cfg := testConfig()
	cfg.Media.SampleFormat = "f32le"
	_, err := NewPipeline(cfg, nil)
	assert.Error(t, err)
}

func TestAudioFormat(t *testing.T) {
	assert.Equal(t, media.DefaultFormat(), AudioFormat(testConfig()))
}

func TestRetryPolicy(t *testing.T) {
	retry := RetryPolicy(testConfig())
	assert.Equal(t, 3, retry.MaxAttempts)
	assert.Equal(t, time.Millisecond, retry.InitialInterval)
	assert.Equal(t, time.Second, retry.MaxInterval)
	assert.Equal(t, resilience.DefaultRetryConfig().Multiplier, retry.Multiplier)

	cfg := testConfig()
	cfg.Retry.InitialInterval = 0
	cfg.Retry.MaxInterval = 0
	assert.Equal(t, resilience.DefaultRetryConfig(), RetryPolicy(cfg))

	cfg.Retry.MaxAttempts = 1
	assert.Equal(t, resilience.NoRetry(), RetryPolicy(cfg))
}

func TestOpenCache_Disabled(t *testing.T) {
	assert.Nil(t, OpenCache(testConfig()))
}
