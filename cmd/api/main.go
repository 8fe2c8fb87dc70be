package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/plant-health-assistant/internal/adapters/http"
	"github.com/kirillkom/plant-health-assistant/internal/adapters/realtime"
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
	slog.SetDefault(logging.New(logging.Options{Service: "api", Level: cfg.LogLevel, Format: cfg.LogFormat}))
	if err := cfg.Validate(); err != nil {
		slog.Error("config_invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{IntentObserver: httpMetrics})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	hub := realtime.NewHub(httpMetrics)
	go hub.Run(ctx)

	ws := realtime.NewHandler(hub, app.ChatUC, realtime.HandlerOptions{
		AllowedOrigins: strings.Split(cfg.ClientURL, ","),
		ChatTimeout:    cfg.ChatTimeout,
		Authorizer:     realtime.NewAnalysisRooms(app.AnalysisSvc),
		Observer:       httpMetrics,
	})

	router, err := httpadapter.NewRouter(cfg, httpadapter.Dependencies{
		Submitter:   app.SubmitUC,
		Analyses:    app.AnalysisSvc,
		Chats:       app.ChatUC,
		Weather:     app.WeatherUC,
		Realtime:    ws,
		Uploads:     app.Uploads,
		UploadsPath: cfg.StoragePublicURL,
		Checks: map[string]httpadapter.HealthCheck{
			"database": app.DB.PingContext,
			"queue":    app.Queue.Ping,
		},
		Metrics: httpMetrics,
	})
	if err != nil {
		slog.Error("router_init_failed", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "addr", server.Addr, "storage", cfg.StorageDriver, "classifier", cfg.ClassifierProvider)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
}
