package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/RyanBlaney/sonido-voz/algorithms/common"
	"github.com/RyanBlaney/sonido-voz/logging"
)

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate" mapstructure:"target_sample_rate"`
	MaxDuration      time.Duration `json:"max_duration" mapstructure:"max_duration"` // Zero disables the limit
	EnableFFmpeg     bool          `json:"enable_ffmpeg" mapstructure:"enable_ffmpeg"`
	FFmpegPath       string        `json:"ffmpeg_path" mapstructure:"ffmpeg_path"` // Path to ffmpeg binary
	Timeout          time.Duration `json:"timeout" mapstructure:"timeout"`         // Timeout for ffmpeg operations
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 16000,
		MaxDuration:      60 * time.Second,
		EnableFFmpeg:     false,
		FFmpegPath:       "ffmpeg", // Assume in PATH
		Timeout:          30 * time.Second,
	}
}

// Decoder turns encoded audio bytes into a normalized mono Waveform.
// WAV, MP3 and FLAC are decoded in-process; anything else goes through
// ffmpeg when it is enabled.
type Decoder struct {
	config *DecoderConfig
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config}
}

// Config returns the decoder configuration
func (d *Decoder) Config() DecoderConfig {
	return *d.config
}

// Decode decodes audio from a byte slice. Every failure is reported as an
// InvalidAudio error; the codec error is logged and kept as the cause.
func (d *Decoder) Decode(ctx context.Context, data []byte) (*Waveform, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "Decode",
		"data_size": len(data),
	})

	if len(data) == 0 {
		return nil, InvalidAudio("audio data is empty", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, InvalidAudio("audio decoding was cancelled", err)
	}

	start := time.Now()
	raw, err := d.decodeRaw(ctx, data)
	if err != nil {
		logger.Debug("Audio decode failed", logging.Fields{"error": err.Error()})
		return nil, InvalidAudio("audio could not be decoded", err)
	}

	logger.Debug("Audio metadata detected", logging.Fields{
		"input_sample_rate": raw.sampleRate,
		"input_channels":    raw.channels,
		"input_codec":       raw.codec,
		"input_frames":      len(raw.samples),
	})

	samples, err := resampleMono(raw.samples, raw.sampleRate, d.config.TargetSampleRate)
	if err != nil {
		logger.Error(err, "Failed to resample audio")
		return nil, InvalidAudio("audio could not be resampled", err)
	}

	truncated := raw.truncated
	if limit := d.maxSamples(); limit > 0 && len(samples) > limit {
		samples = samples[:limit]
		truncated = true
	}

	if len(samples) == 0 {
		return nil, InvalidAudio("audio contains no samples", nil)
	}
	if !common.AllFinite(samples) {
		return nil, InvalidAudio("audio contains non-finite samples", nil)
	}

	NormalizePeak(samples)

	wf := &Waveform{
		Samples:          samples,
		SampleRate:       d.config.TargetSampleRate,
		SourceSampleRate: raw.sampleRate,
		SourceChannels:   raw.channels,
		Codec:            raw.codec,
		Truncated:        truncated,
	}

	logger.Debug("Audio decode completed", logging.Fields{
		"samples":     wf.Len(),
		"duration":    wf.Duration().Seconds(),
		"truncated":   truncated,
		"decode_time": time.Since(start).Seconds(),
	})

	return wf, nil
}

// DecodeReader decodes audio from an io.Reader
func (d *Decoder) DecodeReader(ctx context.Context, reader io.Reader) (*Waveform, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, InvalidAudio("audio could not be read", err)
	}
	return d.Decode(ctx, data)
}

func (d *Decoder) decodeRaw(ctx context.Context, data []byte) (*rawAudio, error) {
	maxSeconds := d.config.MaxDuration.Seconds()

	var (
		raw *rawAudio
		err error
	)
	switch format := SniffFormat(data); format {
	case FormatWAV:
		raw, err = decodeWAV(data, maxSeconds)
	case FormatMP3:
		raw, err = decodeMP3(data, maxSeconds)
	case FormatFLAC:
		raw, err = decodeFLAC(data, maxSeconds)
	default:
		err = errors.New("unrecognised audio container")
	}

	if err == nil && len(raw.samples) > 0 {
		return raw, nil
	}
	if err == nil {
		err = errors.New("no audio samples decoded")
	}

	if !d.config.EnableFFmpeg {
		return nil, err
	}

	logging.WithContext(ctx).Debug("Native decode failed, falling back to ffmpeg", logging.Fields{
		"component": "audio_decoder",
		"error":     err.Error(),
	})

	raw, ffErr := d.decodeWithFFmpeg(ctx, data)
	if ffErr != nil {
		return nil, fmt.Errorf("%v; %w", err, ffErr)
	}
	return raw, nil
}

func (d *Decoder) maxSamples() int {
	if d.config.MaxDuration <= 0 {
		return 0
	}
	return int(d.config.MaxDuration.Seconds() * float64(d.config.TargetSampleRate))
}

// ValidateConfig validates the decoder configuration
func (d *Decoder) ValidateConfig() error {
	if d.config.TargetSampleRate <= 0 {
		return fmt.Errorf("target sample rate must be positive: %d", d.config.TargetSampleRate)
	}

	if d.config.MaxDuration < 0 {
		return fmt.Errorf("max duration must not be negative: %v", d.config.MaxDuration)
	}

	if d.config.EnableFFmpeg {
		if d.config.Timeout <= 0 {
			return fmt.Errorf("timeout must be positive: %v", d.config.Timeout)
		}
		if err := d.checkFFmpegAvailability(); err != nil {
			return fmt.Errorf("ffmpeg not available: %w", err)
		}
	}

	return nil
}

// SupportedFormats returns the containers this decoder handles in-process
func (d *Decoder) SupportedFormats() []string {
	return []string{FormatWAV, FormatMP3, FormatFLAC}
}
