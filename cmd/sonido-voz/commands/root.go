package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-voz/config"
	"github.com/RyanBlaney/sonido-voz/logging"
)

var (
	// Global flags
	configFile string
	envFile    string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "sonido-voz",
	Short: "Detect AI-generated speech in audio",
	Long: `sonido-voz - classify speech recordings as human or AI generated.

Audio is decoded (WAV, MP3, FLAC), resampled to 16 kHz mono, peak normalized
and scored in 2 second chunks by a logistic regression model over MFCC
statistics.

Configuration is read from an optional YAML file, an optional .env file and
VOZ_ prefixed environment variables, e.g. VOZ_MODEL_PATH or VOZ_SERVER_ADDR.

Examples:
  sonido-voz serve --config config.yml
  sonido-voz detect sample.mp3
  sonido-voz detect https://example.com/clip.wav
  sonido-voz features sample.wav > features.json`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to a .env file (ignored when missing)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

// loadConfig reads and validates configuration, then installs the global logger
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{ConfigFile: configFile, EnvFile: envFile})
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logging.SetGlobalLogger(logging.New(cfg.Log))
	return cfg, nil
}
