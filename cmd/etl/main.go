package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/rainfall-etl/internal/adapter/httpadapter"
	"github.com/couchcryptid/rainfall-etl/internal/archive"
	"github.com/couchcryptid/rainfall-etl/internal/config"
	"github.com/couchcryptid/rainfall-etl/internal/cumulate"
	"github.com/couchcryptid/rainfall-etl/internal/curvenumber"
	"github.com/couchcryptid/rainfall-etl/internal/observability"
	"github.com/couchcryptid/rainfall-etl/internal/pipeline"
	"github.com/couchcryptid/rainfall-etl/internal/raster"
	"github.com/couchcryptid/rainfall-etl/internal/report"
)

func main() {
	// Local runs keep their settings in a .env file; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	for _, dir := range []string{cfg.TempDir, cfg.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	layout := archive.Layout{
		Root: cfg.ArchiveRoot,
		Namer: archive.Namer{
			Prefix:       cfg.FilePrefix,
			MinuteSuffix: cfg.FileMinuteSuffix,
			Ext:          cfg.RasterExt,
		},
	}
	prober := raster.NewProber(logger)

	p := pipeline.New(
		cfg,
		cumulate.NewAggregator(layout, prober, clock, logger),
		archive.NewScanner(layout, prober, logger),
		curvenumber.New(cfg.CNRasterDir, cfg.CNCachePath, logger),
		report.NewWriter(cfg.OutputDir, clock),
		clock,
		logger,
		metrics,
	)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Serve liveness and metrics for the lifetime of the run.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	runErr := p.Run(ctx)
	if runErr != nil {
		logger.Error("pipeline error", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	if runErr != nil {
		os.Exit(1)
	}
	logger.Info("run complete")
}
