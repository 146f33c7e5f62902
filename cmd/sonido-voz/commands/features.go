package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-voz/features"
)

// featureReport is the JSON emitted for offline training
type featureReport struct {
	File        string          `json:"file"`
	Params      features.Params `json:"feature_params"`
	Fingerprint string          `json:"fingerprint"`
	Duration    float64         `json:"duration_seconds"`
	Vector      features.Vector `json:"vector"`

	Descriptors *features.Descriptors `json:"descriptors,omitempty"`
}

var featuresCmd = &cobra.Command{
	Use:   "features <file>",
	Short: "Print the MFCC mean/std feature vector of a file",
	Long: `Decode a file exactly as the service does and print its feature vector
as JSON. The output carries the feature parameters so a model trained on it
can be exported with matching feature_params.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dec, err := newDecoder(cfg)
		if err != nil {
			return err
		}
		ext, err := newExtractor(cfg)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		wf, err := dec.Decode(context.Background(), data)
		if err != nil {
			return err
		}
		vec, err := ext.Extract(wf.Samples)
		if err != nil {
			return fmt.Errorf("extract features: %w", err)
		}

		report := featureReport{
			File:        args[0],
			Params:      ext.Params(),
			Fingerprint: ext.Params().Fingerprint(),
			Duration:    wf.Duration().Seconds(),
			Vector:      vec,
		}
		if describe, _ := cmd.Flags().GetBool("describe"); describe {
			if report.Descriptors, err = ext.Describe(wf.Samples); err != nil {
				return fmt.Errorf("describe: %w", err)
			}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	featuresCmd.Flags().Bool("describe", false, "also print spectral centroid, rolloff, flatness, zero crossing rate and RMS")
	rootCmd.AddCommand(featuresCmd)
}
