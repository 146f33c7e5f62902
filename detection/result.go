package detection

import (
	"github.com/RyanBlaney/sonido-voz/algorithms/common"
)

// Result is the response for one detection request
type Result struct {
	Success          bool      `json:"success"`
	Prediction       Label     `json:"prediction"`
	Confidence       float64   `json:"confidence"` // Rounded to three decimals
	Explanation      string    `json:"explanation"`
	ModelVersion     string    `json:"model_version"`
	RequestID        *string   `json:"request_id"`
	ProcessingTimeMS int64     `json:"processing_time_ms"`
	Chunks           []float64 `json:"chunks,omitempty"`

	// Unrounded aggregate, used for the label and band.
	RawConfidence float64 `json:"-"`
	NoSignal      bool    `json:"-"`
	Truncated     bool    `json:"-"`
}

func newResult(agg *Aggregation, modelVersion string) *Result {
	d := Decide(agg.Confidence)
	return &Result{
		Success:       true,
		Prediction:    d.Label,
		Confidence:    common.Round(agg.Confidence, 3),
		Explanation:   d.Explanation,
		ModelVersion:  modelVersion,
		Chunks:        agg.Probabilities,
		RawConfidence: agg.Confidence,
		NoSignal:      agg.NoSignal,
	}
}
