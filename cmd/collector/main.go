package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/joho/godotenv"

	"github.com/datenstrom/datenstrom/internal/collector"
	"github.com/datenstrom/datenstrom/internal/config"
	"github.com/datenstrom/datenstrom/internal/sinks"
	"github.com/datenstrom/datenstrom/internal/version"
)

func main() {
	// A .env file is a local development convenience; absence is fine.
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading configuration failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.New()
	sink, err := sinks.New(ctx, cfg, sinks.LaneRaw, clk)
	if err != nil {
		slog.Error("creating raw sink failed", "error", err)
		os.Exit(1)
	}
	defer sink.Close()

	slog.Info("starting collector",
		"version", version.Version,
		"transport", cfg.Transport,
		"record_format", cfg.RecordFormat,
		"port", cfg.CollectorPort)

	srv := collector.New(cfg, sink, clk)
	if err := srv.Run(ctx); err != nil {
		slog.Error("collector failed", "error", err)
		os.Exit(1)
	}
}
