package transcode

import (
	"time"

	"github.com/RyanBlaney/sonido-voz/algorithms/common"
)

// Waveform is decoded, resampled, mono, peak-normalized audio
type Waveform struct {
	Samples          []float64 `json:"-"`
	SampleRate       int       `json:"sample_rate"`
	SourceSampleRate int       `json:"source_sample_rate"`
	SourceChannels   int       `json:"source_channels"`
	Codec            string    `json:"codec"`
	Truncated        bool      `json:"truncated"` // Input was longer than the configured maximum
}

// Len returns the number of samples
func (w *Waveform) Len() int {
	return len(w.Samples)
}

// Duration returns the playback length of the samples
func (w *Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(w.Samples)) * time.Second / time.Duration(w.SampleRate)
}

// NormalizePeak scales samples in place so the largest magnitude is 1.
// Silent input is left untouched.
func NormalizePeak(samples []float64) {
	peak := common.PeakAbs(samples)
	if peak == 0 {
		return
	}
	inv := 1.0 / peak
	for i := range samples {
		samples[i] *= inv
	}
}
