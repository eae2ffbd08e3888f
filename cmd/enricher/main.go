package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/datenstrom/datenstrom/internal/config"
	"github.com/datenstrom/datenstrom/internal/version"
	"github.com/datenstrom/datenstrom/internal/worker"
)

// metricsAddr serves /metrics and /health for the worker process.
const metricsAddr = ":9090"

func main() {
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading configuration failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop, closeAll, err := worker.NewEnricherLoop(ctx, cfg, clock.New())
	if err != nil {
		slog.Error("wiring enricher failed", "error", err)
		os.Exit(1)
	}
	defer closeAll()

	go serveMetrics()

	slog.Info("starting enricher",
		"version", version.Version,
		"transport", cfg.Transport,
		"events_transport", cfg.EventsTransport(),
		"record_format", cfg.RecordFormat)

	if err := loop.Run(ctx); err != nil {
		slog.Error("enricher failed", "error", err)
		os.Exit(1)
	}
}

func serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if err := http.ListenAndServe(metricsAddr, mux); err != nil {
		slog.Warn("metrics endpoint stopped", "error", err)
	}
}
