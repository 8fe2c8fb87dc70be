package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/plant-health-assistant/internal/bootstrap"
	"github.com/kirillkom/plant-health-assistant/internal/config"
	"github.com/kirillkom/plant-health-assistant/internal/observability/logging"
	"github.com/kirillkom/plant-health-assistant/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(logging.Options{Service: "worker", Level: cfg.LogLevel, Format: cfg.LogFormat}))
	if err := cfg.Validate(); err != nil {
		slog.Error("config_invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{QueueLagObserver: workerMetrics})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", workerMetrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := app.Queue.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()

	go sweepStale(ctx, app.ProcessUC, cfg.StaleAnalysisAfter, cfg.StaleSweepInterval)

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "metrics_addr", metricsServer.Addr, "concurrency", cfg.WorkerConcurrency)
	err = app.Queue.SubscribeAnalysisSubmitted(ctx, func(handlerCtx context.Context, analysisID string) error {
		started := time.Now()
		workerMetrics.StartAnalysis()
		err := app.ProcessUC.ProcessByID(handlerCtx, analysisID)
		workerMetrics.FinishAnalysis(time.Since(started), err)
		return err
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}

type staleSweeper interface {
	FailStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// sweepStale fails analyses whose submission never reached a worker.
func sweepStale(ctx context.Context, uc staleSweeper, olderThan, every time.Duration) {
	if olderThan <= 0 || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := uc.FailStale(ctx, olderThan)
			if err != nil {
				slog.Error("stale_sweep_failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Warn("stale_analyses_failed", "count", n, "older_than", olderThan.String())
			}
		}
	}
}
