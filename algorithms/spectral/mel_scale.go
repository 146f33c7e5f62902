package spectral

import (
	"math"
)

// MelFormula selects the Hz <-> mel mapping
type MelFormula string

const (
	// MelHTK is 2595 * log10(1 + f/700)
	MelHTK MelFormula = "htk"
	// MelSlaney is linear below 1 kHz and logarithmic above (Auditory Toolbox), librosa's default
	MelSlaney MelFormula = "slaney"
)

const (
	slaneyFSp      = 200.0 / 3.0
	slaneyMinLogHz = 1000.0
)

var (
	slaneyMinLogMel = slaneyMinLogHz / slaneyFSp
	slaneyLogStep   = math.Log(6.4) / 27.0
)

// MelScale provides mel frequency conversion and triangular filter banks
type MelScale struct {
	formula MelFormula
}

// NewMelScale creates a mel scale converter. An empty formula means Slaney.
func NewMelScale(formula MelFormula) *MelScale {
	if formula == "" {
		formula = MelSlaney
	}
	return &MelScale{formula: formula}
}

// HzToMel converts frequency in Hz to mel scale
func (ms *MelScale) HzToMel(hz float64) float64 {
	if ms.formula == MelHTK {
		return 2595.0 * math.Log10(1.0+hz/700.0)
	}

	if hz >= slaneyMinLogHz {
		return slaneyMinLogMel + math.Log(hz/slaneyMinLogHz)/slaneyLogStep
	}
	return hz / slaneyFSp
}

// MelToHz converts mel scale to frequency in Hz
func (ms *MelScale) MelToHz(mel float64) float64 {
	if ms.formula == MelHTK {
		return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
	}

	if mel >= slaneyMinLogMel {
		return slaneyMinLogHz * math.Exp(slaneyLogStep*(mel-slaneyMinLogMel))
	}
	return slaneyFSp * mel
}

// CreateMelFilterBank builds numFilters triangular filters over the fftSize/2+1
// power bins. Triangles are computed on continuous bin frequencies, not rounded
// bin indices. With areaNormalize each filter is scaled by 2/(f_right - f_left)
// so that filters carry roughly constant energy per channel.
func (ms *MelScale) CreateMelFilterBank(numFilters, fftSize, sampleRate int, lowFreq, highFreq float64, areaNormalize bool) [][]float64 {
	if numFilters <= 0 || fftSize <= 0 || sampleRate <= 0 {
		return nil
	}

	bins := fftSize/2 + 1
	binFreqs := make([]float64, bins)
	nyquist := float64(sampleRate) / 2.0
	for k := range bins {
		binFreqs[k] = nyquist * float64(k) / float64(bins-1)
	}

	// numFilters+2 points equally spaced on the mel axis
	lowMel := ms.HzToMel(lowFreq)
	highMel := ms.HzToMel(highFreq)
	hzPoints := make([]float64, numFilters+2)
	for i := range hzPoints {
		mel := lowMel + (highMel-lowMel)*float64(i)/float64(numFilters+1)
		hzPoints[i] = ms.MelToHz(mel)
	}

	filterBank := make([][]float64, numFilters)
	for m := range numFilters {
		left, center, right := hzPoints[m], hzPoints[m+1], hzPoints[m+2]
		lowerWidth := center - left
		upperWidth := right - center

		filter := make([]float64, bins)
		for k, f := range binFreqs {
			lower := (f - left) / lowerWidth
			upper := (right - f) / upperWidth
			w := math.Min(lower, upper)
			if w > 0 {
				filter[k] = w
			}
		}

		if areaNormalize {
			enorm := 2.0 / (right - left)
			for k := range filter {
				filter[k] *= enorm
			}
		}

		filterBank[m] = filter
	}

	return filterBank
}

// ApplyFilterBank applies mel filter bank to power spectrum
func (ms *MelScale) ApplyFilterBank(powerSpectrum []float64, filterBank [][]float64) []float64 {
	if len(filterBank) == 0 || len(powerSpectrum) == 0 {
		return []float64{}
	}

	melSpectrum := make([]float64, len(filterBank))

	for i, filter := range filterBank {
		sum := 0.0
		for j := 0; j < len(filter) && j < len(powerSpectrum); j++ {
			sum += powerSpectrum[j] * filter[j]
		}
		melSpectrum[i] = sum
	}

	return melSpectrum
}
