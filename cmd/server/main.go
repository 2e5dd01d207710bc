package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/nfrund/roomchat/internal/app"
	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/logging"
	"github.com/nfrund/roomchat/internal/server"
)

func main() {
	logging.New()
	cfg := config.New()

	ctx, stop := server.SignalContext(context.Background())
	defer stop()

	if err := logging.WatchLevel(ctx, ".env"); err != nil {
		slog.Debug("Log level hot reload disabled", "error", err)
	}

	if err := app.New(ctx, cfg).Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
		stop()
		os.Exit(1)
	}
}
