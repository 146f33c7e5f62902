package spectral

import (
	"math"
)

// FrequencyBins returns the centre frequency of each of the fftSize/2+1 bins
func FrequencyBins(fftSize, sampleRate int) []float64 {
	bins := make([]float64, fftSize/2+1)
	for i := range bins {
		bins[i] = float64(i) * float64(sampleRate) / float64(fftSize)
	}
	return bins
}

// Centroid is the magnitude-weighted mean frequency of a spectrum
func Centroid(magnitude, freqs []float64) float64 {
	num, den := 0.0, 0.0
	for i, m := range magnitude {
		num += freqs[i] * m
		den += m
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// Rolloff is the lowest frequency below which threshold of the magnitude
// sum lies, typically 0.85
func Rolloff(magnitude, freqs []float64, threshold float64) float64 {
	total := 0.0
	for _, m := range magnitude {
		total += m
	}
	if total == 0 {
		return 0
	}

	target := threshold * total
	cumulative := 0.0
	for i, m := range magnitude {
		cumulative += m
		if cumulative >= target {
			return freqs[i]
		}
	}
	return freqs[len(freqs)-1]
}

// Flatness is the ratio of geometric to arithmetic mean of a power spectrum
// (Wiener entropy). Values near 1 are noise-like, near 0 tonal.
func Flatness(power []float64, amin float64) float64 {
	if len(power) == 0 {
		return 0
	}

	logSum, sum := 0.0, 0.0
	for _, p := range power {
		p = math.Max(p, amin)
		logSum += math.Log(p)
		sum += p
	}
	n := float64(len(power))
	return math.Min(1, math.Exp(logSum/n)/(sum/n))
}

// ZeroCrossingRate is the fraction of adjacent sample pairs in frame that change sign
func ZeroCrossingRate(frame []float64) float64 {
	if len(frame) < 2 {
		return 0
	}

	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame)-1)
}
