package spectral

import (
	"fmt"
)

// PadMode selects how a centered STFT extends the signal at both ends
type PadMode string

const (
	PadConstant PadMode = "constant" // zeros
	PadReflect  PadMode = "reflect"  // mirror without repeating the edge sample
)

// Window interface for windowing functions
type Window interface {
	ApplyInPlace(signal []float64) error
}

// STFT computes short-time power spectra over fixed-size, fixed-hop frames
type STFT struct {
	fft        *FFT
	windowSize int
	hopSize    int
	center     bool
	padMode    PadMode
	window     Window
}

// STFTParams configures framing
type STFTParams struct {
	WindowSize int     `json:"window_size"` // FFT length in samples
	HopSize    int     `json:"hop_size"`    // Samples between frame starts
	Center     bool    `json:"center"`      // Pad WindowSize/2 on both sides so frame t is centered on t*HopSize
	PadMode    PadMode `json:"pad_mode"`
}

// NewSTFT creates a new STFT calculator. window may be nil for a rectangular window.
func NewSTFT(params STFTParams, window Window) (*STFT, error) {
	if params.WindowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}
	if params.HopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive")
	}
	if params.PadMode == "" {
		params.PadMode = PadConstant
	}
	if params.PadMode != PadConstant && params.PadMode != PadReflect {
		return nil, fmt.Errorf("unsupported pad mode: %q", params.PadMode)
	}

	return &STFT{
		fft:        NewFFT(),
		windowSize: params.WindowSize,
		hopSize:    params.HopSize,
		center:     params.Center,
		padMode:    params.PadMode,
		window:     window,
	}, nil
}

// NumFrames returns the number of frames produced for a signal of n samples
func (s *STFT) NumFrames(n int) int {
	if s.center {
		n += 2 * (s.windowSize / 2)
	}
	if n < s.windowSize {
		return 0
	}
	return (n-s.windowSize)/s.hopSize + 1
}

// PowerSpectrogram returns a Time x Frequency matrix of |X|^2 with WindowSize/2+1 bins per frame
func (s *STFT) PowerSpectrogram(signal []float64) ([][]float64, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}

	padded := signal
	if s.center {
		padded = s.pad(signal, s.windowSize/2)
	}

	numFrames := s.NumFrames(len(signal))
	if numFrames <= 0 {
		return nil, fmt.Errorf("signal too short for given window size and hop size")
	}

	spectrogram := make([][]float64, numFrames)
	frame := make([]float64, s.windowSize)

	for t := range numFrames {
		start := t * s.hopSize
		copy(frame, padded[start:start+s.windowSize])

		if s.window != nil {
			if err := s.window.ApplyInPlace(frame); err != nil {
				return nil, fmt.Errorf("failed to window frame %d: %w", t, err)
			}
		}

		spectrogram[t] = s.fft.PowerBins(frame)
	}

	return spectrogram, nil
}

// pad extends signal by width samples on both sides according to the pad mode
func (s *STFT) pad(signal []float64, width int) []float64 {
	n := len(signal)
	padded := make([]float64, n+2*width)
	copy(padded[width:], signal)

	if s.padMode == PadConstant {
		return padded
	}

	for i := range width {
		padded[width-1-i] = signal[reflectIndex(-(i + 1), n)]
		padded[width+n+i] = signal[reflectIndex(n+i, n)]
	}

	return padded
}

// reflectIndex folds an out-of-range index back into [0, n) the way numpy's
// "reflect" pad mode does, repeating the fold for pads wider than the signal
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}
