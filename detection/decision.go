package detection

// Label is the binary verdict
type Label string

const (
	LabelAIGenerated Label = "ai_generated"
	LabelHuman       Label = "human"
)

// DecisionThreshold separates the two labels; it belongs to ai_generated
const DecisionThreshold = 0.5

// Band is one of four explanation tiers, ordered by confidence descending
type Band int

const (
	BandStrongSynthetic Band = iota // [0.75, 1.0]
	BandSomeSynthetic               // [0.5, 0.75)
	BandMostlyNatural               // [0.25, 0.5)
	BandNatural                     // [0, 0.25)
)

var bandExplanations = [...]string{
	BandStrongSynthetic: "The audio exhibits strong indicators of synthetic speech, such as uniform pitch patterns and spectral artifacts commonly found in AI-generated voices.",
	BandSomeSynthetic:   "Some characteristics associated with AI-generated speech were detected, though certain natural variations are still present.",
	BandMostlyNatural:   "The audio mostly resembles natural human speech with minor irregularities that do not strongly indicate AI generation.",
	BandNatural:         "The audio exhibits natural variations in pitch, tone, and timing, which are consistent with human speech patterns.",
}

var bandNames = [...]string{
	BandStrongSynthetic: "strong_synthetic",
	BandSomeSynthetic:   "some_synthetic",
	BandMostlyNatural:   "mostly_natural",
	BandNatural:         "natural",
}

func (b Band) String() string {
	if b < BandStrongSynthetic || b > BandNatural {
		return "unknown"
	}
	return bandNames[b]
}

// Explanation returns the fixed sentence for the band
func (b Band) Explanation() string {
	if b < BandStrongSynthetic || b > BandNatural {
		return ""
	}
	return bandExplanations[b]
}

// Decision is the label and explanation derived from a confidence
type Decision struct {
	Label       Label  `json:"prediction"`
	Band        Band   `json:"-"`
	Explanation string `json:"explanation"`
}

// Decide maps a confidence in [0,1] to a label and explanation band
func Decide(confidence float64) Decision {
	label := LabelHuman
	if confidence >= DecisionThreshold {
		label = LabelAIGenerated
	}

	var band Band
	switch {
	case confidence >= 0.75:
		band = BandStrongSynthetic
	case confidence >= 0.5:
		band = BandSomeSynthetic
	case confidence >= 0.25:
		band = BandMostlyNatural
	default:
		band = BandNatural
	}

	return Decision{Label: label, Band: band, Explanation: band.Explanation()}
}
