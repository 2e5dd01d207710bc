package cmd

import (
	"log/slog"

	"github.com/nfrund/roomchat/internal/app"
	"github.com/nfrund/roomchat/internal/logging"
	"github.com/nfrund/roomchat/internal/server"
	"github.com/spf13/cobra"
)

var serveEnvFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.New()
		cfg := loadConfig()

		ctx, stop := server.SignalContext(cmd.Context())
		defer stop()

		if serveEnvFile != "" {
			if err := logging.WatchLevel(ctx, serveEnvFile); err != nil {
				slog.Warn("Log level hot reload disabled", "error", err)
			}
		}

		return app.New(ctx, cfg).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveEnvFile, "env-file", ".env", "file watched for LOG_LEVEL changes (empty disables)")
}
