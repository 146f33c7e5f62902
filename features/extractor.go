// Package features turns a mono waveform segment into the fixed-length
// MFCC summary vector the classifier consumes.
package features

import (
	"fmt"

	"github.com/RyanBlaney/sonido-voz/algorithms/common"
	"github.com/RyanBlaney/sonido-voz/algorithms/spectral"
	"github.com/RyanBlaney/sonido-voz/algorithms/windowing"
)

// Vector is a feature vector: NumMFCC per-coefficient means followed by
// NumMFCC per-coefficient population standard deviations
type Vector []float64

// Extractor computes feature vectors. All state is built once in NewExtractor
// and only read afterwards, so one Extractor serves concurrent requests.
type Extractor struct {
	params Params
	stft   *spectral.STFT
	mfcc   *spectral.MFCC
}

// NewExtractor validates params and precomputes window, filter bank and DCT
func NewExtractor(params Params) (*Extractor, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	stft, err := spectral.NewSTFT(spectral.STFTParams{
		WindowSize: params.FFTSize,
		HopSize:    params.HopLength,
		Center:     params.Center,
		PadMode:    params.PadMode,
	}, windowing.NewHann(params.FFTSize, false))
	if err != nil {
		return nil, fmt.Errorf("features: %w", err)
	}

	decibel := spectral.DefaultDecibelParams()
	decibel.TopDB = params.TopDB

	mfcc, err := spectral.NewMFCC(spectral.MFCCParams{
		SampleRate:      params.SampleRate,
		FFTSize:         params.FFTSize,
		NumCoefficients: params.NumMFCC,
		NumMelFilters:   params.NumMels,
		LowFreq:         params.FMin,
		HighFreq:        params.effectiveFMax(),
		Formula:         params.MelFormula,
		AreaNormalize:   params.MelNorm == "slaney",
		Decibel:         decibel,
		Lifter:          params.Lifter,
	})
	if err != nil {
		return nil, fmt.Errorf("features: %w", err)
	}

	return &Extractor{
		params: params,
		stft:   stft,
		mfcc:   mfcc,
	}, nil
}

// Params returns the parameter set this extractor was built with
func (e *Extractor) Params() Params {
	return e.params
}

// Dimension is the length of every vector Extract returns
func (e *Extractor) Dimension() int {
	return e.params.Dimension()
}

// MFCC returns the Time x NumMFCC coefficient matrix of segment
func (e *Extractor) MFCC(segment []float64) ([][]float64, error) {
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

	coeffs, err := e.mfcc.ComputeFrames(power)
	if err != nil {
		return nil, fmt.Errorf("features: mfcc: %w", err)
	}

	return coeffs, nil
}

// Extract returns the summary vector of segment. The result is deterministic:
// frames are reduced in order with no concurrent accumulation.
func (e *Extractor) Extract(segment []float64) (Vector, error) {
	coeffs, err := e.MFCC(segment)
	if err != nil {
		return nil, err
	}

	n := e.params.NumMFCC
	vec := make(Vector, 2*n)
	track := make([]float64, len(coeffs))

	for c := range n {
		for t, frame := range coeffs {
			track[t] = frame[c]
		}
		mean, std := common.PopMeanStdDev(track)
		vec[c] = mean
		vec[n+c] = std
	}

	if !common.AllFinite(vec) {
		return nil, fmt.Errorf("features: non-finite feature vector")
	}

	return vec, nil
}
