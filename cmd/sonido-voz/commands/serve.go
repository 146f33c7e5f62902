package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-voz/logging"
	"github.com/RyanBlaney/sonido-voz/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP detection API",
	Long: `Run the HTTP detection API.

Endpoints:
  POST /v1/detect-voice   multipart field "file", or JSON {"audio_url", "request_id"}
  GET  /health

When server.api_key (or API_KEY) is set, requests must carry it in x-api-key.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		det, err := newDetector(cfg)
		if err != nil {
			logging.Fatal(err, "Failed to initialise detector", logging.Fields{
				"model_path": cfg.Model.Path,
			})
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return server.New(cfg.Server, det, cfg.Detection.MaxUploadBytes).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address, overrides server.addr")
	rootCmd.AddCommand(serveCmd)
}
