package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Escorpio024/scribe-ia-aurora/internal/metrics"
	"github.com/Escorpio024/scribe-ia-aurora/internal/server"
	"github.com/Escorpio024/scribe-ia-aurora/internal/stream"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket capture endpoint and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(parent context.Context) error {
	cfg := a.cfg
	logger := a.logger

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", a.configPath),
	)

	// Configuration summary without credentials
	logger.Info("Configuration loaded",
		slog.String("address", cfg.Server.GetAddr()),
		slog.Int("max_capture_sessions", cfg.Server.MaxCaptureSessions),
		slog.Int("target_sample_rate", cfg.Capture.TargetSampleRate),
		slog.String("resampler", cfg.Capture.Resampler),
		slog.Bool("upstream_enabled", cfg.Upstream.Enabled()),
		slog.String("upstream_base_url", cfg.Upstream.BaseURL),
		slog.String("storage_backend", cfg.Storage.Backend),
		slog.String("log_level", cfg.Logging.Level),
	)

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	captureCfg, err := captureConfig(cfg.Capture)
	if err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	sessions := stream.NewManager(logger, stream.ManagerConfig{
		MaxSessions: cfg.Server.MaxCaptureSessions,
		IdleTimeout: cfg.Server.GetIdleTimeoutDuration(),
		Capture:     captureCfg,
	}, appMetrics)
	defer sessions.Stop()

	client, err := a.newCollabClient(appMetrics)
	if err != nil {
		return fmt.Errorf("failed to create collaborator client: %w", err)
	}

	var uploader server.Uploader
	if client != nil {
		defer client.Close()
		uploader = client
		logger.Info("Collaborator client initialized", slog.String("base_url", cfg.Upstream.BaseURL))
	} else {
		logger.Warn("No collaborator configured; captures are returned without transcript")
	}

	httpServer := server.NewHTTPServer(cfg, logger, sessions, uploader, appMetrics, prometheus.DefaultGatherer)
	if err := httpServer.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Service started successfully, waiting for signals...")
	<-ctx.Done()
	logger.Info("Starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GetShutdownTimeoutDuration())
	defer cancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	if client != nil {
		stats := client.GetStats()
		logger.Info("Final collaborator statistics",
			slog.Uint64("total_requests", stats.TotalRequests),
			slog.Uint64("failed_requests", stats.FailedRequests),
			slog.Uint64("total_retries", stats.TotalRetries),
		)
	}
	logger.Info("Service stopped")
	return nil
}
