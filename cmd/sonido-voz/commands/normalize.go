package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-voz/logging"
	"github.com/RyanBlaney/sonido-voz/transcode"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize <in|-> <out.wav>",
	Short: "Write the decoded, resampled and normalized waveform as WAV",
	Long: `Decode a file exactly as the service does and write the 16-bit mono
waveform the detector sees. Pass "-" as input to read the audio from stdin.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dec, err := newDecoder(cfg)
		if err != nil {
			return err
		}

		var wf *transcode.Waveform
		if args[0] == "-" {
			wf, err = dec.DecodeReader(context.Background(), cmd.InOrStdin())
		} else {
			var data []byte
			if data, err = os.ReadFile(args[0]); err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			wf, err = dec.Decode(context.Background(), data)
		}
		if err != nil {
			return err
		}

		out, err := os.Create(args[1])
		if err != nil {
			return fmt.Errorf("create %s: %w", args[1], err)
		}
		if err := transcode.EncodeWAV(out, wf); err != nil {
			out.Close()
			return fmt.Errorf("write %s: %w", args[1], err)
		}
		if err := out.Close(); err != nil {
			return err
		}

		logging.Info("Waveform written", logging.Fields{
			"output":      args[1],
			"sample_rate": wf.SampleRate,
			"duration":    wf.Duration().Seconds(),
			"truncated":   wf.Truncated,
			"codec":       wf.Codec,
		})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
}
