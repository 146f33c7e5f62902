package features

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-voz/algorithms/common"
	"github.com/RyanBlaney/sonido-voz/algorithms/spectral"
)

const (
	rolloffThreshold = 0.85
	flatnessAmin     = 1e-10
)

// Descriptors are frame-averaged spectral and temporal statistics of a
// segment. They are reported alongside the feature vector for inspection;
// the classifier does not consume them.
type Descriptors struct {
	SpectralCentroidHz float64 `json:"spectral_centroid_hz"`
	SpectralRolloffHz  float64 `json:"spectral_rolloff_hz"`
	SpectralFlatness   float64 `json:"spectral_flatness"`
	ZeroCrossingRate   float64 `json:"zero_crossing_rate"`
	RMS                float64 `json:"rms"`
	Frames             int     `json:"frames"`
}

// Describe computes Descriptors over the same STFT frames Extract uses
func (e *Extractor) Describe(segment []float64) (*Descriptors, error) {
	if len(segment) == 0 {
		return nil, fmt.Errorf("features: empty segment")
	}
	if !common.AllFinite(segment) {
		return nil, fmt.Errorf("features: segment contains non-finite samples")
	}

	power, err := e.stft.PowerSpectrogram(segment)
	if err != nil {
		return nil, fmt.Errorf("features: stft: %w", err)
	}

	freqs := spectral.FrequencyBins(e.params.FFTSize, e.params.SampleRate)
	magnitude := make([]float64, len(freqs))

	centroid := make([]float64, len(power))
	rolloff := make([]float64, len(power))
	flatness := make([]float64, len(power))
	for t, frame := range power {
		for i, p := range frame {
			magnitude[i] = math.Sqrt(p)
		}
		centroid[t] = spectral.Centroid(magnitude, freqs)
		rolloff[t] = spectral.Rolloff(magnitude, freqs, rolloffThreshold)
		flatness[t] = spectral.Flatness(frame, flatnessAmin)
	}

	frames := timeFrames(segment, e.params.FFTSize, e.params.HopLength)
	zcr := make([]float64, len(frames))
	rms := make([]float64, len(frames))
	for t, frame := range frames {
		zcr[t] = spectral.ZeroCrossingRate(frame)
		sum := 0.0
		for _, x := range frame {
			sum += x * x
		}
		rms[t] = math.Sqrt(sum / float64(len(frame)))
	}

	return &Descriptors{
		SpectralCentroidHz: common.Mean(centroid),
		SpectralRolloffHz:  common.Mean(rolloff),
		SpectralFlatness:   common.Mean(flatness),
		ZeroCrossingRate:   common.Mean(zcr),
		RMS:                common.Mean(rms),
		Frames:             len(power),
	}, nil
}

// timeFrames slices x into frames of size advancing by hop. A signal shorter
// than one frame yields a single frame holding all of it.
func timeFrames(x []float64, size, hop int) [][]float64 {
	if len(x) <= size {
		return [][]float64{x}
	}
	frames := make([][]float64, 0, 1+(len(x)-size)/hop)
	for start := 0; start+size <= len(x); start += hop {
		frames = append(frames, x[start:start+size])
	}
	return frames
}
