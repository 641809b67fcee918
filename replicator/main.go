package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	service "github.com/0xRichardL/vibe-copy-trading/replicator/internal"
	"github.com/0xRichardL/vibe-copy-trading/replicator/internal/config"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "replicator").Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && level != zerolog.NoLevel {
		logger = logger.Level(level)
	}

	app, err := service.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build service")
	}

	if err := app.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal().Err(err).Msg("service exited with error")
	}
}
