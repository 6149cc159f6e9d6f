// preview-client requests a typesetting preview for a host project and
// downloads the result.
//
// Usage:
//
//	preview-client [setup.yaml]
//
// The setup file names the project, the books to typeset and the layout
// parameters; see internal/setup. The downloaded file's path is printed on
// stdout. Interrupting the client stops it at the next safe point; a
// cancelled run exits 0.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"preview/internal/apperrors"
	"preview/internal/config"
	"preview/internal/dispatcher"
	"preview/internal/gateway"
	"preview/internal/observability"
	"preview/internal/progress"
	"preview/internal/setup"
	"preview/internal/workflow"
	"preview/pkg/backoff"
	"syscall"
	"time"
)

func main() {
	// stdout carries only the artifact path
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, apperrors.UserMessage(err))
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg := config.LoadClientConfig()
	if len(args) > 0 {
		cfg.SetupFile = args[0]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}
	if cfg.MetricsPort != "" {
		stopMetrics := serveMetrics(cfg.MetricsPort, metricsHandler)
		defer stopMetrics()
	}

	gw, err := gateway.NewHTTP(gateway.Config{
		BaseURL:       cfg.ServerURI,
		APIKey:        cfg.APIKey,
		Timeout:       cfg.HTTPTimeout,
		StatusRetries: cfg.StatusRetries,
		Backoff:       &backoff.Config{Initial: 500 * time.Millisecond, Max: 5 * time.Second},
		DownloadDir:   cfg.DownloadDir,
		Metrics:       metrics,
	})
	if err != nil {
		return apperrors.Validation("PREVIEW_SERVER_URI", err.Error())
	}

	orchestrator := workflow.New(gw, workflow.Config{
		PollInterval:    cfg.PollInterval,
		Timeout:         cfg.JobTimeout,
		MaxPolls:        cfg.MaxPolls,
		SkipStatusCheck: cfg.SkipStatusCheck,
	}, workflow.WithMetrics(metrics))

	observers := []progress.Observer{
		progress.NewLogObserver(slog.Default(), progress.NewEstimator(cfg.TargetJobTime)),
	}
	if cfg.CallbackURL != "" {
		callbacks := dispatcher.NewMemory(dispatcher.LoadConfigFromEnv(), metrics)
		defer drain(callbacks)
		observers = append(observers, progress.NewEventObserver(callbacks, cfg.CallbackURL, cfg.CallbackKey, cfg.CallbackEvents))
		slog.Info("Status callbacks enabled", "url", cfg.CallbackURL, "signed", cfg.CallbackKey != "")
	}

	collector := setup.NewFileCollector(cfg.SetupFile, &setup.EnvHost{
		ProjectsDir: cfg.ProjectsDir,
		User:        cfg.User,
	})

	res, err := orchestrator.RunSetup(ctx, collector, progress.Multi(observers...))
	if err != nil {
		return err
	}

	switch res.Outcome {
	case workflow.OutcomeCompleted:
		slog.Info("Preview ready", "jobId", res.Artifact.JobID, "polls", res.Polls, "elapsed", res.Elapsed.Round(time.Millisecond))
		fmt.Println(res.Artifact.Path)
	case workflow.OutcomeCancelled:
		slog.Info("Preview cancelled", "result", res.String())
	}
	return nil
}

// serveMetrics exposes /metrics on port until the returned stop function is called.
func serveMetrics(port string, handler http.Handler) func() {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting metrics server", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("Metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("Metrics server shutdown error", "error", err)
		}
	}
}

// drain delivers queued callbacks before exit.
func drain(d *dispatcher.MemoryDispatcher) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		slog.Warn("Dispatcher shutdown error", "error", err)
	}

	stats := d.Stats()
	slog.Info("Callback stats",
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
		"skipped", stats.Skipped,
	)
}
