package commands

import (
	"fmt"

	"github.com/RyanBlaney/sonido-voz/classifier"
	"github.com/RyanBlaney/sonido-voz/config"
	"github.com/RyanBlaney/sonido-voz/detection"
	"github.com/RyanBlaney/sonido-voz/features"
	"github.com/RyanBlaney/sonido-voz/logging"
	"github.com/RyanBlaney/sonido-voz/transcode"
)

// newDecoder builds a decoder and checks its configuration
func newDecoder(cfg *config.Config) (*transcode.Decoder, error) {
	dec := transcode.NewDecoder(cfg.DecoderConfig())
	if err := dec.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("decoder: %w", err)
	}

	dc := dec.Config()
	logging.Debug("Decoder ready", logging.Fields{
		"native_formats": dec.SupportedFormats(),
		"ffmpeg":         dc.EnableFFmpeg,
		"sample_rate":    dc.TargetSampleRate,
		"max_duration":   dc.MaxDuration.Seconds(),
	})
	return dec, nil
}

// newExtractor builds the extractor at the configured sample rate
func newExtractor(cfg *config.Config) (*features.Extractor, error) {
	params := features.DefaultParams()
	params.SampleRate = cfg.Audio.SampleRate
	return features.NewExtractor(params)
}

// newDetector loads the model and wires every pipeline stage
func newDetector(cfg *config.Config) (*detection.Detector, error) {
	dec, err := newDecoder(cfg)
	if err != nil {
		return nil, err
	}

	ext, err := newExtractor(cfg)
	if err != nil {
		return nil, err
	}

	model, err := classifier.Load(cfg.Model.Path, ext.Params())
	if err != nil {
		return nil, err
	}

	return detection.NewDetector(
		dec,
		transcode.NewFetcher(cfg.Download),
		ext,
		model,
		cfg.AggregatorConfig(),
		cfg.DetectorConfig(),
	)
}
