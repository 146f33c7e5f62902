package spectral

import (
	"math"
)

// DecibelParams controls power to dB conversion
type DecibelParams struct {
	Ref   float64 `json:"ref"`    // Reference power mapped to 0 dB (default 1.0)
	Amin  float64 `json:"amin"`   // Power floor before the logarithm (default 1e-10)
	TopDB float64 `json:"top_db"` // Clip to max-TopDB over the whole matrix; <= 0 disables
}

// DefaultDecibelParams mirrors librosa.power_to_db defaults
func DefaultDecibelParams() DecibelParams {
	return DecibelParams{
		Ref:   1.0,
		Amin:  1e-10,
		TopDB: 80.0,
	}
}

// PowerToDB converts a Time x Bands power matrix to decibels in place.
// The top_db threshold is taken over the full matrix, so the result of a
// segment depends on the loudest band/frame of that same segment.
func PowerToDB(power [][]float64, params DecibelParams) [][]float64 {
	if len(power) == 0 {
		return power
	}
	if params.Amin <= 0 {
		params.Amin = 1e-10
	}
	if params.Ref <= 0 {
		params.Ref = 1.0
	}

	refDB := 10.0 * math.Log10(math.Max(params.Amin, params.Ref))
	maxDB := math.Inf(-1)

	for _, row := range power {
		for i, p := range row {
			db := 10.0*math.Log10(math.Max(params.Amin, p)) - refDB
			row[i] = db
			if db > maxDB {
				maxDB = db
			}
		}
	}

	if params.TopDB > 0 {
		floor := maxDB - params.TopDB
		for _, row := range power {
			for i, db := range row {
				if db < floor {
					row[i] = floor
				}
			}
		}
	}

	return power
}
