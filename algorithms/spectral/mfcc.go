package spectral

import (
	"fmt"
	"math"
)

// MFCC computes Mel-Frequency Cepstral Coefficients from power spectrograms
type MFCC struct {
	params MFCCParams

	melScale   *MelScale
	filterBank [][]float64
	dctMatrix  [][]float64
}

// MFCCParams contains parameters for MFCC computation
type MFCCParams struct {
	SampleRate      int           `json:"sample_rate"`
	FFTSize         int           `json:"fft_size"`         // Spectrogram frames carry FFTSize/2+1 bins
	NumCoefficients int           `json:"num_coefficients"` // Number of MFCC coefficients (default: 13)
	NumMelFilters   int           `json:"num_mel_filters"`  // Number of mel bands (default: 128)
	LowFreq         float64       `json:"low_freq"`         // Low frequency bound (default: 0)
	HighFreq        float64       `json:"high_freq"`        // High frequency bound (default: sampleRate/2)
	Formula         MelFormula    `json:"mel_formula"`      // "slaney" (default) or "htk"
	AreaNormalize   bool          `json:"area_normalize"`   // Slaney-style filter normalization
	Decibel         DecibelParams `json:"decibel"`
	Lifter          float64       `json:"lifter"` // Sinusoidal liftering, 0 disables
}

// NewMFCC builds the filter bank and DCT matrix once; the result is read-only
// and safe to share between goroutines
func NewMFCC(params MFCCParams) (*MFCC, error) {
	if params.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", params.SampleRate)
	}
	if params.FFTSize <= 0 {
		return nil, fmt.Errorf("invalid FFT size: %d", params.FFTSize)
	}
	if params.Lifter < 0 {
		return nil, fmt.Errorf("invalid lifter: %g", params.Lifter)
	}
	if params.NumCoefficients <= 0 {
		params.NumCoefficients = 13
	}
	if params.NumMelFilters <= 0 {
		params.NumMelFilters = 128
	}
	if params.HighFreq <= 0 {
		params.HighFreq = float64(params.SampleRate) / 2.0
	}
	if params.NumCoefficients > params.NumMelFilters {
		return nil, fmt.Errorf("num coefficients (%d) exceeds mel filters (%d)", params.NumCoefficients, params.NumMelFilters)
	}

	mfcc := &MFCC{
		params:   params,
		melScale: NewMelScale(params.Formula),
	}

	mfcc.filterBank = mfcc.melScale.CreateMelFilterBank(
		params.NumMelFilters,
		params.FFTSize,
		params.SampleRate,
		params.LowFreq,
		params.HighFreq,
		params.AreaNormalize,
	)
	if len(mfcc.filterBank) == 0 {
		return nil, fmt.Errorf("failed to create mel filter bank")
	}

	mfcc.createDCTMatrix()

	return mfcc, nil
}

// ComputeFrames turns a Time x Frequency power spectrogram into a
// Time x NumCoefficients MFCC matrix
func (mfcc *MFCC) ComputeFrames(powerSpectrogram [][]float64) ([][]float64, error) {
	if len(powerSpectrogram) == 0 {
		return nil, fmt.Errorf("empty spectrogram")
	}

	bins := mfcc.params.FFTSize/2 + 1
	melFrames := make([][]float64, len(powerSpectrogram))
	for t, frame := range powerSpectrogram {
		if len(frame) != bins {
			return nil, fmt.Errorf("frame %d has %d bins, expected %d", t, len(frame), bins)
		}
		melFrames[t] = mfcc.melScale.ApplyFilterBank(frame, mfcc.filterBank)
	}

	PowerToDB(melFrames, mfcc.params.Decibel)

	coeffs := make([][]float64, len(melFrames))
	for t, logMel := range melFrames {
		c := mfcc.applyDCT(logMel)
		if mfcc.params.Lifter > 0 {
			c = mfcc.applyLiftering(c)
		}
		coeffs[t] = c
	}

	return coeffs, nil
}

// createDCTMatrix creates an orthonormal DCT-II matrix truncated to NumCoefficients rows
func (mfcc *MFCC) createDCTMatrix() {
	numCoeffs := mfcc.params.NumCoefficients
	numFilters := mfcc.params.NumMelFilters

	mfcc.dctMatrix = make([][]float64, numCoeffs)
	for k := range numCoeffs {
		mfcc.dctMatrix[k] = make([]float64, numFilters)

		scale := math.Sqrt(2.0 / float64(numFilters))
		if k == 0 {
			scale = math.Sqrt(1.0 / float64(numFilters))
		}

		for n := range numFilters {
			mfcc.dctMatrix[k][n] = scale * math.Cos(math.Pi*float64(k)*(float64(n)+0.5)/float64(numFilters))
		}
	}
}

func (mfcc *MFCC) applyDCT(logMelSpectrum []float64) []float64 {
	out := make([]float64, len(mfcc.dctMatrix))

	for k, row := range mfcc.dctMatrix {
		sum := 0.0
		for n, x := range logMelSpectrum {
			sum += x * row[n]
		}
		out[k] = sum
	}

	return out
}

// applyLiftering scales coefficient i by 1 + (L/2) sin(pi*(i+1)/L)
func (mfcc *MFCC) applyLiftering(coeffs []float64) []float64 {
	l := mfcc.params.Lifter
	for i := range coeffs {
		coeffs[i] *= 1.0 + (l/2.0)*math.Sin(math.Pi*float64(i+1)/l)
	}
	return coeffs
}
