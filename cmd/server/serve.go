package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	apihttp "github.com/murrou-cell/stremio-zamunda/internal/api/http"
	"github.com/murrou-cell/stremio-zamunda/internal/metrics"
	"github.com/murrou-cell/stremio-zamunda/internal/telemetry"
)

const serviceName = "stremio-zamunda"

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the add-on HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	rootCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.Init(rootCtx, serviceName, version)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("version", version),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("publicHost", cfg.PublicHost),
		slog.String("zamundaBaseURL", cfg.ZamundaBaseURL),
		slog.Int("zamundaMaxResults", cfg.ZamundaMaxResults),
		slog.Duration("searchTimeout", cfg.SearchTimeout),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Bool("otlp", cfg.OTLPEnabled),
		slog.Duration("cacheTTL", cfg.CacheTTL),
		slog.Bool("cacheDisabled", cfg.CacheDisabled),
	)

	service, cleanup, err := buildStreamService(rootCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	sweepDone := service.StartBackground(rootCtx)

	handler := apihttp.NewServer(service,
		apihttp.WithLogger(logger),
		apihttp.WithPublicHost(cfg.PublicHost),
		apihttp.WithRateLimit(cfg.RateLimit),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// A cold series lookup runs three tracker searches plus torrent downloads.
		WriteTimeout: cfg.SearchTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("add-on server started",
		slog.String("addr", cfg.HTTPAddr),
		slog.String("manifest", "/manifest.json"),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	stop()
	<-sweepDone
	logger.Info("add-on server stopped")
	return nil
}
