// preview-stub is a simulated typesetting preview server for local runs of
// preview-client. Jobs advance through their stages on a timer and produce
// placeholder output.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"preview/internal/api"
	"preview/internal/config"
	"preview/internal/health"
	"preview/internal/observability"
	"preview/internal/stubserver"
	"syscall"
	"time"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	cfg := config.LoadServerConfig()

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	store := stubserver.NewStore(stubserver.Config{
		Version:    cfg.Version,
		StageDelay: cfg.StageDelay,
		Retention:  cfg.JobRetention,
	})
	defer store.Close()
	if cfg.JanitorInterval > 0 {
		go store.RunJanitor(ctx, cfg.JanitorInterval)
	}

	healthChecker := health.NewChecker(cfg.Version, map[string]health.ReadinessChecker{"store": store})

	router := api.NewRouter(api.RouterConfig{
		Store:         store,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        cfg.APIKey,
	})

	if cfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY_FILE configured")
	}

	apiServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 2)

	go func() {
		slog.Info("Starting API server", "port", cfg.Port, "version", cfg.Version, "stageDelay", cfg.StageDelay)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		slog.Info("Starting metrics server", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Fail readiness first so load balancers stop routing new jobs here
	healthChecker.SetShuttingDown()
	if cfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", cfg.ShutdownDrainWait)
		time.Sleep(cfg.ShutdownDrainWait)
	}

	slog.Info("Starting graceful shutdown", "jobs", store.Len())
	shutdown(25 * time.Second)
	stop()

	slog.Info("Shutdown complete")
	return nil
}
