package features

import (
	"fmt"
	"strings"

	"github.com/RyanBlaney/sonido-voz/algorithms/spectral"
)

// Params is the complete parameter set of the feature extraction. A model is
// only valid for the exact parameter set its training features were computed
// with, so the set travels inside the model artifact and is compared on load.
type Params struct {
	SampleRate int                 `json:"sample_rate"`
	NumMFCC    int                 `json:"n_mfcc"`
	FFTSize    int                 `json:"n_fft"`
	HopLength  int                 `json:"hop_length"`
	NumMels    int                 `json:"n_mels"`
	FMin       float64             `json:"fmin"`
	FMax       float64             `json:"fmax"` // 0 means sample_rate/2
	Center     bool                `json:"center"`
	PadMode    spectral.PadMode    `json:"pad_mode"`
	MelFormula spectral.MelFormula `json:"mel_formula"`
	MelNorm    string              `json:"mel_norm"` // "slaney" or "" for unnormalized triangles
	TopDB      float64             `json:"top_db"`
	Lifter     float64             `json:"lifter,omitempty"` // sinusoidal cepstral liftering, 0 disables
}

// DefaultParams returns the parameters of the reference training pipeline:
// 16 kHz audio, 13 MFCCs, librosa default framing (2048/512, centered, zero
// padded), 128 Slaney mel bands, power_to_db with an 80 dB range.
func DefaultParams() Params {
	return Params{
		SampleRate: 16000,
		NumMFCC:    13,
		FFTSize:    2048,
		HopLength:  512,
		NumMels:    128,
		FMin:       0,
		FMax:       0,
		Center:     true,
		PadMode:    spectral.PadConstant,
		MelFormula: spectral.MelSlaney,
		MelNorm:    "slaney",
		TopDB:      80,
	}
}

// Dimension is the length of the vector produced with these parameters
func (p Params) Dimension() int {
	return 2 * p.NumMFCC
}

func (p Params) effectiveFMax() float64 {
	if p.FMax <= 0 {
		return float64(p.SampleRate) / 2.0
	}
	return p.FMax
}

// Validate checks the parameters are internally consistent
func (p Params) Validate() error {
	if p.SampleRate <= 0 {
		return fmt.Errorf("features: sample_rate must be > 0")
	}
	if p.NumMFCC <= 0 {
		return fmt.Errorf("features: n_mfcc must be > 0")
	}
	if p.FFTSize <= 0 || p.HopLength <= 0 {
		return fmt.Errorf("features: n_fft and hop_length must be > 0")
	}
	if p.NumMels < p.NumMFCC {
		return fmt.Errorf("features: n_mels (%d) must be >= n_mfcc (%d)", p.NumMels, p.NumMFCC)
	}
	if p.FMin < 0 || p.effectiveFMax() <= p.FMin || p.effectiveFMax() > float64(p.SampleRate)/2.0 {
		return fmt.Errorf("features: frequency range [%g, %g] is invalid", p.FMin, p.effectiveFMax())
	}
	if p.Lifter < 0 {
		return fmt.Errorf("features: lifter must be >= 0")
	}
	switch p.PadMode {
	case "", spectral.PadConstant, spectral.PadReflect:
	default:
		return fmt.Errorf("features: unsupported pad_mode %q", p.PadMode)
	}
	switch p.MelFormula {
	case "", spectral.MelSlaney, spectral.MelHTK:
	default:
		return fmt.Errorf("features: unsupported mel_formula %q", p.MelFormula)
	}
	switch p.MelNorm {
	case "", "slaney":
	default:
		return fmt.Errorf("features: unsupported mel_norm %q", p.MelNorm)
	}
	return nil
}

// normalized fills in implicit defaults so that two parameter sets that
// extract identical features compare equal
func (p Params) normalized() Params {
	if p.PadMode == "" {
		p.PadMode = spectral.PadConstant
	}
	if p.MelFormula == "" {
		p.MelFormula = spectral.MelSlaney
	}
	p.FMax = p.effectiveFMax()
	return p
}

// Diff lists the fields that differ between p and other, empty when compatible
func (p Params) Diff(other Params) []string {
	a, b := p.normalized(), other.normalized()
	var diffs []string
	check := func(name string, x, y any) {
		if x != y {
			diffs = append(diffs, fmt.Sprintf("%s: %v != %v", name, x, y))
		}
	}
	check("sample_rate", a.SampleRate, b.SampleRate)
	check("n_mfcc", a.NumMFCC, b.NumMFCC)
	check("n_fft", a.FFTSize, b.FFTSize)
	check("hop_length", a.HopLength, b.HopLength)
	check("n_mels", a.NumMels, b.NumMels)
	check("fmin", a.FMin, b.FMin)
	check("fmax", a.FMax, b.FMax)
	check("center", a.Center, b.Center)
	check("pad_mode", a.PadMode, b.PadMode)
	check("mel_formula", a.MelFormula, b.MelFormula)
	check("mel_norm", a.MelNorm, b.MelNorm)
	check("top_db", a.TopDB, b.TopDB)
	check("lifter", a.Lifter, b.Lifter)
	return diffs
}

// Fingerprint is a stable one-line description of the parameter set, logged at
// startup and reported by the CLI
func (p Params) Fingerprint() string {
	n := p.normalized()
	parts := []string{
		fmt.Sprintf("sr=%d", n.SampleRate),
		fmt.Sprintf("n_mfcc=%d", n.NumMFCC),
		fmt.Sprintf("n_fft=%d", n.FFTSize),
		fmt.Sprintf("hop=%d", n.HopLength),
		fmt.Sprintf("n_mels=%d", n.NumMels),
		fmt.Sprintf("fmin=%g", n.FMin),
		fmt.Sprintf("fmax=%g", n.FMax),
		fmt.Sprintf("center=%t", n.Center),
		fmt.Sprintf("pad=%s", n.PadMode),
		fmt.Sprintf("mel=%s/%s", n.MelFormula, n.MelNorm),
		fmt.Sprintf("top_db=%g", n.TopDB),
	}
	if n.Lifter > 0 {
		parts = append(parts, fmt.Sprintf("lifter=%g", n.Lifter))
	}
	return strings.Join(parts, ",")
}
