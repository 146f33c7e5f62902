package detection

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-voz/logging"
	"github.com/RyanBlaney/sonido-voz/transcode"
)

// AudioDecoder turns encoded bytes into a normalized waveform
type AudioDecoder interface {
	Decode(ctx context.Context, data []byte) (*transcode.Waveform, error)
}

// AudioFetcher downloads encoded audio
type AudioFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Model is a Scorer that knows its own version
type Model interface {
	Scorer
	Version() string
}

// Config holds the request-level limits of a Detector
type Config struct {
	AllowedExtensions []string `json:"allowed_extensions" mapstructure:"allowed_extensions"`
	MaxUploadBytes    int64    `json:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// DefaultConfig returns the wav/mp3/flac allow-list and a 10 MB upload cap
func DefaultConfig() Config {
	return Config{
		AllowedExtensions: []string{"wav", "mp3", "flac"},
		MaxUploadBytes:    10 << 20,
	}
}

// Detector runs the whole pipeline for one request: validate, decode,
// aggregate over chunks, decide.
type Detector struct {
	decoder    AudioDecoder
	fetcher    AudioFetcher
	aggregator *Aggregator
	model      Model
	config     Config
}

// NewDetector wires the pipeline stages together
func NewDetector(decoder AudioDecoder, fetcher AudioFetcher, extractor FeatureExtractor, model Model, chunking AggregatorConfig, config Config) (*Detector, error) {
	if decoder == nil || fetcher == nil || model == nil {
		return nil, errors.New("detection: decoder, fetcher and model are required")
	}

	aggregator, err := NewAggregator(extractor, model, chunking)
	if err != nil {
		return nil, err
	}

	allowed := make([]string, 0, len(config.AllowedExtensions))
	for _, ext := range config.AllowedExtensions {
		allowed = append(allowed, strings.ToLower(strings.TrimPrefix(ext, ".")))
	}
	config.AllowedExtensions = allowed

	return &Detector{
		decoder:    decoder,
		fetcher:    fetcher,
		aggregator: aggregator,
		model:      model,
		config:     config,
	}, nil
}

// ModelVersion returns the version string of the loaded model
func (d *Detector) ModelVersion() string {
	return d.model.Version()
}

// Extension returns the lower-cased text after the last dot of a file name
func Extension(filename string) string {
	base := filepath.Base(filename)
	i := strings.LastIndex(base, ".")
	if i < 0 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}

// Allowed reports whether the file name carries an accepted extension
func (d *Detector) Allowed(filename string) bool {
	return slices.Contains(d.config.AllowedExtensions, Extension(filename))
}

// DetectUpload classifies uploaded file bytes. The extension is checked
// before anything is decoded.
func (d *Detector) DetectUpload(ctx context.Context, filename string, data []byte, requestID *string) (*Result, error) {
	start := time.Now()

	if !d.Allowed(filename) {
		return nil, transcode.UnsupportedFormat("Unsupported audio format")
	}
	if d.config.MaxUploadBytes > 0 && int64(len(data)) > d.config.MaxUploadBytes {
		return nil, transcode.InvalidAudio(
			fmt.Sprintf("audio file exceeds %d bytes", d.config.MaxUploadBytes), nil)
	}

	wf, err := d.decoder.Decode(ctx, data)
	if err != nil {
		return nil, asInvalidAudio(err)
	}

	return d.finish(ctx, wf, requestID, start)
}

// DetectURL downloads and classifies remote audio
func (d *Detector) DetectURL(ctx context.Context, rawURL string, requestID *string) (*Result, error) {
	start := time.Now()

	data, err := d.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		var terr *transcode.Error
		if errors.As(err, &terr) {
			return nil, terr
		}
		return nil, transcode.DownloadFailed("failed to download audio from URL", err)
	}

	wf, err := d.decoder.Decode(ctx, data)
	if err != nil {
		return nil, asInvalidAudio(err)
	}

	return d.finish(ctx, wf, requestID, start)
}

// DetectWaveform classifies an already decoded waveform
func (d *Detector) DetectWaveform(ctx context.Context, wf *transcode.Waveform) (*Result, error) {
	return d.finish(ctx, wf, nil, time.Now())
}

func (d *Detector) finish(ctx context.Context, wf *transcode.Waveform, requestID *string, start time.Time) (*Result, error) {
	if wf == nil || wf.SampleRate <= 0 {
		return nil, transcode.InvalidAudio("audio could not be decoded", nil)
	}

	agg, err := d.aggregator.Aggregate(ctx, wf)
	if err != nil {
		return nil, err
	}

	res := newResult(agg, d.model.Version())
	res.RequestID = requestID
	res.Truncated = wf.Truncated
	res.ProcessingTimeMS = time.Since(start).Milliseconds()

	logging.WithContext(ctx).Info("Detection completed", logging.Fields{
		"component":          "detector",
		"prediction":         res.Prediction,
		"confidence":         res.Confidence,
		"chunks":             len(agg.Chunks),
		"usable_chunks":      len(agg.Probabilities),
		"no_signal":          agg.NoSignal,
		"duration":           wf.Duration().Seconds(),
		"processing_time_ms": res.ProcessingTimeMS,
	})

	return res, nil
}

func asInvalidAudio(err error) error {
	var terr *transcode.Error
	if errors.As(err, &terr) {
		return terr
	}
	return transcode.InvalidAudio("audio could not be decoded", err)
}
