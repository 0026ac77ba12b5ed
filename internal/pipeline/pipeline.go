package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"vidscribe/internal/media"
	"vidscribe/internal/speech"
	"vidscribe/internal/transcript"
	"vidscribe/pkg/cache"
	"vidscribe/pkg/logger"

	"go.uber.org/zap"
)

type Extractor interface {
	Extract(ctx context.Context, videoPath, targetPath string, format media.Format) (*media.AudioAsset, error)
}

type Recognizer interface {
	Submit(ctx context.Context, asset *media.AudioAsset, cfg speech.RecognitionConfig) (speech.JobHandle, error)
}

type Waiter interface {
	Wait(ctx context.Context, handle speech.JobHandle) (*speech.TranscriptResult, error)
}

// Observer is told about intermediate artifacts of a run. Methods are called
// synchronously from Run.
type Observer interface {
	Extracted(ctx context.Context, asset *media.AudioAsset)
	Submitted(ctx context.Context, handle speech.JobHandle)
}

// Job holds the already-resolved inputs of one run.
type Job struct {
	VideoPath    string
	AudioPath    string
	LanguageCode string
}

// Outcome of a successful run. Handle and Result are empty when the lines came from the cache.
type Outcome struct {
	Asset  *media.AudioAsset
	Handle speech.JobHandle
	Result *speech.TranscriptResult
	Lines  []string
	Cached bool
}

type Config struct {
	Format  media.Format
	TopOnly bool
	// Cache is optional
	Cache cache.Cache
}

// Pipeline runs extraction, submission, polling and aggregation strictly in sequence.
type Pipeline struct {
	extractor  Extractor
	recognizer Recognizer
	waiter     Waiter
	format     media.Format
	topOnly    bool
	aggregate  transcript.Func
	cache      cache.Cache
}

func New(extractor Extractor, recognizer Recognizer, waiter Waiter, cfg Config) *Pipeline {
	if cfg.Format == (media.Format{}) {
		cfg.Format = media.DefaultFormat()
	}
	return &Pipeline{
		extractor:  extractor,
		recognizer: recognizer,
		waiter:     waiter,
		format:     cfg.Format,
		topOnly:    cfg.TopOnly,
		aggregate:  transcript.Select(cfg.TopOnly),
		cache:      cfg.Cache,
	}
}

// Run converts one video to transcript lines. Any stage error aborts the run
// and is returned unchanged; see StageOf.
func (p *Pipeline) Run(ctx context.Context, job Job, obs Observer) (*Outcome, error) {
	if job.AudioPath == "" {
		job.AudioPath = AudioPathFor("", job.VideoPath)
	}
	if job.LanguageCode == "" {
		return nil, errors.New("language code is required")
	}

	log := logger.With(zap.String("video_path", job.VideoPath))
	start := time.Now()

	asset, err := p.extractor.Extract(ctx, job.VideoPath, job.AudioPath, p.format)
	if err != nil {
		return nil, err
	}
	if obs != nil {
		obs.Extracted(ctx, asset)
	}

	key := cache.TranscriptCacheKey(cache.AudioDigest(asset.Bytes()), job.LanguageCode, p.topOnly)
	if lines, ok := p.cached(ctx, key); ok {
		log.Info("Transcript served from cache", zap.Int("lines", len(lines)))
		return &Outcome{Asset: asset, Lines: lines, Cached: true}, nil
	}

	handle, err := p.recognizer.Submit(ctx, asset, speech.RecognitionConfig{LanguageCode: job.LanguageCode})
	if err != nil {
		return nil, err
	}
	if obs != nil {
		obs.Submitted(ctx, handle)
	}

	result, err := p.waiter.Wait(ctx, handle)
	if err != nil {
		return nil, err
	}

	lines := p.aggregate(result)
	p.store(ctx, key, lines)

	log.Info("Transcription completed",
		zap.Stringer("operation", handle),
		zap.Int("lines", len(lines)),
		zap.Duration("elapsed", time.Since(start)))

	return &Outcome{Asset: asset, Handle: handle, Result: result, Lines: lines}, nil
}

func (p *Pipeline) cached(ctx context.Context, key string) ([]string, bool) {
	if p.cache == nil {
		return nil, false
	}
	var lines []string
	err := p.cache.Get(ctx, key, &lines)
	if err == nil {
		return lines, true
	}
	if !errors.Is(err, cache.ErrNotFound) {
		logger.Warn("Transcript cache lookup failed", zap.Error(err))
	}
	return nil, false
}

func (p *Pipeline) store(ctx context.Context, key string, lines []string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, key, lines); err != nil {
		logger.Warn("Failed to cache transcript", zap.Error(err))
	}
}

// AudioPathFor names the extracted audio file for videoPath inside dir
// (the system temp dir when dir is empty).
func AudioPathFor(dir, videoPath string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	return filepath.Join(dir, fmt.Sprintf("%s_audio_16k.wav", base))
}
