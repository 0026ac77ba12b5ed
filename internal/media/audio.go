package media

import "fmt"

const (
	SampleFormatS16LE = "s16le"

	DefaultSampleRate = 16000
	DefaultChannels   = 1
)

// Format is the rate/channels/sample-format triplet shared by extraction and submission.
type Format struct {
	SampleRateHz int
	Channels     int
	SampleFormat string
}

// DefaultFormat is 16-bit signed little-endian PCM, 16 kHz, mono.
func DefaultFormat() Format {
	return Format{
		SampleRateHz: DefaultSampleRate,
		Channels:     DefaultChannels,
		SampleFormat: SampleFormatS16LE,
	}
}

// Codec returns the ffmpeg audio codec producing this sample format
func (f Format) Codec() (string, error) {
	switch f.SampleFormat {
	case SampleFormatS16LE:
		return "pcm_s16le", nil
	default:
		return "", fmt.Errorf("unsupported sample format %q", f.SampleFormat)
	}
}

// BitDepth returns bits per sample of the sample format, 0 if unknown
func (f Format) BitDepth() int {
	switch f.SampleFormat {
	case SampleFormatS16LE:
		return 16
	default:
		return 0
	}
}

func (f Format) Validate() error {
	if _, err := f.Codec(); err != nil {
		return err
	}
	if f.SampleRateHz <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRateHz)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", f.Channels)
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%s/%dHz/%dch", f.SampleFormat, f.SampleRateHz, f.Channels)
}

// AudioAsset is an extracted audio payload tagged with the format it was produced in.
// The payload is owned by the asset and must not be modified by readers.
type AudioAsset struct {
	data   []byte
	format Format
	path   string
}

func NewAudioAsset(data []byte, format Format, path string) *AudioAsset {
	return &AudioAsset{data: data, format: format, path: path}
}

// Bytes returns the payload. Callers must treat it as read-only.
func (a *AudioAsset) Bytes() []byte { return a.data }

func (a *AudioAsset) Format() Format { return a.format }

// Path is the file the asset was read from
func (a *AudioAsset) Path() string { return a.path }

func (a *AudioAsset) Size() int { return len(a.data) }
