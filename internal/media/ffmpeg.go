package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"vidscribe/pkg/logger"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/zap"
)

const stderrTail = 2048

// Extractor produces normalized audio from a video with an external ffmpeg process.
type Extractor struct {
	ffmpegPath string
}

func NewExtractor(ffmpegPath string) *Extractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Extractor{ffmpegPath: ffmpegPath}
}

// Extract writes targetPath (overwriting it) and returns its contents as an asset.
// A ".wav" target gets a WAV container, anything else raw samples.
func (e *Extractor) Extract(ctx context.Context, videoPath, targetPath string, format Format) (*AudioAsset, error) {
	fail := func(code int, stderr string, err error) (*AudioAsset, error) {
		return nil, &ExtractionError{VideoPath: videoPath, ExitCode: code, Stderr: stderr, Err: err}
	}

	if err := format.Validate(); err != nil {
		return fail(-1, "", err)
	}
	codec, _ := format.Codec()

	f, err := os.Open(videoPath)
	if err != nil {
		return fail(-1, "", fmt.Errorf("video not readable: %w", err))
	}
	f.Close()

	if dir := filepath.Dir(targetPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fail(-1, "", fmt.Errorf("failed to create output dir: %w", err))
		}
	}

	args := buildArgs(videoPath, targetPath, codec, format)
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("Extracting audio",
		zap.String("video_path", videoPath),
		zap.String("audio_path", targetPath),
		zap.Stringer("format", format))

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fail(-1, tail(stderr.String()), ctx.Err())
		}
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return fail(code, tail(stderr.String()), err)
	}

	data, err := os.ReadFile(targetPath)
	if err != nil {
		return fail(-1, "", fmt.Errorf("output not readable: %w", err))
	}
	if len(data) == 0 {
		return fail(-1, "", errors.New("output is empty"))
	}
	if err := checkHeader(data, format); err != nil {
		return fail(-1, "", err)
	}

	logger.Info("Audio extracted",
		zap.String("audio_path", targetPath),
		zap.Int("size", len(data)),
		zap.Duration("elapsed", time.Since(start)))

	return NewAudioAsset(data, format, targetPath), nil
}

func buildArgs(videoPath, targetPath, codec string, format Format) []string {
	container := format.SampleFormat
	if strings.EqualFold(filepath.Ext(targetPath), ".wav") {
		container = "wav"
	}
	return []string{
		"-y",
		"-loglevel", "error",
		"-i", videoPath,
		"-vn",
		"-acodec", codec,
		"-ar", strconv.Itoa(format.SampleRateHz),
		"-ac", strconv.Itoa(format.Channels),
		"-f", container,
		targetPath,
	}
}

// checkHeader verifies a RIFF/WAV payload against the requested format.
// Raw sample data has no header and passes unchecked.
func checkHeader(data []byte, want Format) error {
	if len(data) < 12 || string(data[:4]) != "RIFF" {
		return nil
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return errors.New("output is not a valid wav file")
	}

	var got *audio.Format = dec.Format()
	if got == nil {
		return errors.New("wav header carries no format")
	}
	if got.SampleRate != want.SampleRateHz || got.NumChannels != want.Channels || int(dec.BitDepth) != want.BitDepth() {
		return fmt.Errorf("wav header %dHz/%dch/%dbit does not match requested %s",
			got.SampleRate, got.NumChannels, dec.BitDepth, want)
	}
	return nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		return s[len(s)-stderrTail:]
	}
	return s
}
