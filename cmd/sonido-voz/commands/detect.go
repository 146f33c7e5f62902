package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-voz/detection"
)

var detectRequestID string

var detectCmd = &cobra.Command{
	Use:   "detect <file|url>",
	Short: "Classify a local audio file or a URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		det, err := newDetector(cfg)
		if err != nil {
			return err
		}

		var requestID *string
		if detectRequestID != "" {
			requestID = &detectRequestID
		}

		ctx := context.Background()
		target := args[0]

		var res *detection.Result
		if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
			res, err = det.DetectURL(ctx, target, requestID)
		} else {
			data, readErr := os.ReadFile(target)
			if readErr != nil {
				return fmt.Errorf("read %s: %w", target, readErr)
			}
			res, err = det.DetectUpload(ctx, filepath.Base(target), data, requestID)
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	detectCmd.Flags().StringVar(&detectRequestID, "request-id", "", "request id echoed in the result")
	rootCmd.AddCommand(detectCmd)
}
