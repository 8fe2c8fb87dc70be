package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/plant-health-assistant/internal/config"
	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
	"github.com/kirillkom/plant-health-assistant/internal/core/ports"
	"github.com/kirillkom/plant-health-assistant/internal/core/usecase"
	"github.com/kirillkom/plant-health-assistant/internal/infrastructure/classifier/huggingface"
	"github.com/kirillkom/plant-health-assistant/internal/infrastructure/classifier/plantid"
	"github.com/kirillkom/plant-health-assistant/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/plant-health-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/plant-health-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/plant-health-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/plant-health-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/plant-health-assistant/internal/infrastructure/storage/minio"
	"github.com/kirillkom/plant-health-assistant/internal/infrastructure/weather/openweather"
)

// Options carries process-specific observers.
type Options struct {
	IntentObserver   usecase.IntentObserver
	QueueLagObserver nats.LagObserver
}

type App struct {
	Config config.Config

	DB    *sql.DB
	Queue *nats.Queue

	// Uploads serves stored images when the local driver is active.
	Uploads http.Handler

	SubmitUC    *usecase.SubmitAnalysisUseCase
	ProcessUC   *usecase.ProcessAnalysisUseCase
	AnalysisSvc *usecase.AnalysisService
	ChatUC      *usecase.ChatUseCase
	WeatherUC   *usecase.WeatherUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	analyses := postgres.NewAnalysisRepository(db)
	chats := postgres.NewChatRepository(db)

	storage, uploads, err := newStorage(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init image storage: %w", err)
	}

	queueResilience := resilience.DefaultConfig()
	queueResilience.AttemptTimeout = 5 * time.Second
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ProcessTimeout:     cfg.WorkerProcessTimeout,
		Concurrency:        cfg.WorkerConcurrency,
		ResilienceExecutor: resilience.NewExecutor(queueResilience),
		LagObserver:        opts.QueueLagObserver,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	classifier, err := newClassifier(cfg)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init classifier: %w", err)
	}

	weather, err := newWeather(cfg)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, fmt.Errorf("init weather provider: %w", err)
	}
	// Processing skips the weather lookup entirely when no provider is configured.
	var processWeather ports.WeatherProvider
	if _, disabled := weather.(disabledWeather); !disabled {
		processWeather = weather
	}

	return &App{
		Config:  cfg,
		DB:      db,
		Queue:   queue,
		Uploads: uploads,

		SubmitUC:    usecase.NewSubmitAnalysisUseCase(analyses, storage, queue, cfg.MaxImageBytes),
		ProcessUC:   usecase.NewProcessAnalysisUseCase(analyses, storage, classifier, processWeather, cfg.MaxImageBytes),
		AnalysisSvc: usecase.NewAnalysisService(analyses, storage, chats, xlsx.New()),
		ChatUC:      usecase.NewChatUseCase(chats, analyses, opts.IntentObserver),
		WeatherUC:   usecase.NewWeatherUseCase(weather),

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newStorage(ctx context.Context, cfg config.Config) (ports.ImageStorage, http.Handler, error) {
	switch cfg.StorageDriver {
	case "minio":
		store, err := minio.New(ctx, minio.Options{
			Endpoint:  cfg.MinIOEndpoint,
			Region:    cfg.MinIORegion,
			Bucket:    cfg.MinIOBucket,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
			PublicURL: cfg.StoragePublicURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case "", "local":
		store, err := localfs.New(cfg.StoragePath, cfg.StoragePublicURL)
		if err != nil {
			return nil, nil, err
		}
		return store, http.FileServer(http.Dir(store.Root())), nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func classifierResilience(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.AttemptTimeout = cfg.ClassifierTimeout
	if cfg.ClassifierRetries > 0 {
		rc.RetryMaxAttempts = cfg.ClassifierRetries
	}
	rc.RetryInitialBackoff = 500 * time.Millisecond
	rc.RetryMaxBackoff = 4 * time.Second
	return rc
}

func newClassifier(cfg config.Config) (ports.PlantClassifier, error) {
	executor := resilience.NewExecutor(classifierResilience(cfg))
	switch cfg.ClassifierProvider {
	case "huggingface":
		return huggingface.New(huggingface.Options{
			SpeciesEndpoint:    cfg.HFSpeciesEndpoint,
			DiseaseEndpoint:    cfg.HFDiseaseEndpoint,
			Token:              cfg.HFToken,
			SpeciesThreshold:   cfg.HFSpeciesThreshold,
			DiseaseThreshold:   cfg.HFDiseaseThreshold,
			Timeout:            cfg.ClassifierTimeout,
			ResilienceExecutor: executor,
		})
	case "", "plantid":
		return plantid.New(plantid.Options{
			BaseURL:            cfg.PlantIDBaseURL,
			APIKey:             cfg.PlantIDAPIKey,
			SendImageURL:       cfg.PlantIDSendImageURL,
			Timeout:            cfg.ClassifierTimeout,
			ResilienceExecutor: executor,
		})
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.ClassifierProvider)
	}
}

func newWeather(cfg config.Config) (ports.WeatherProvider, error) {
	if cfg.OpenWeatherAPIKey == "" {
		slog.Warn("weather_disabled", "reason", "OPENWEATHER_API_KEY is not set")
		return disabledWeather{}, nil
	}
	rc := resilience.DefaultConfig()
	rc.AttemptTimeout = cfg.WeatherTimeout
	rc.RetryMaxAttempts = 2
	return openweather.New(openweather.Options{
		BaseURL:            cfg.OpenWeatherBaseURL,
		APIKey:             cfg.OpenWeatherAPIKey,
		Timeout:            cfg.WeatherTimeout,
		ResilienceExecutor: resilience.NewExecutor(rc),
	})
}

var errWeatherDisabled = errors.New("weather provider is not configured")

// disabledWeather answers every lookup with a temporary failure.
type disabledWeather struct{}

func (disabledWeather) CurrentByCoords(context.Context, domain.GeoPoint) (domain.WeatherReport, error) {
	return domain.WeatherReport{}, domain.WrapError(domain.ErrTemporary, "weather by coordinates", errWeatherDisabled)
}

func (disabledWeather) CurrentByCity(context.Context, string) (domain.WeatherReport, error) {
	return domain.WeatherReport{}, domain.WrapError(domain.ErrTemporary, "weather by city", errWeatherDisabled)
}

func (disabledWeather) Forecast(context.Context, domain.GeoPoint) (domain.Forecast, error) {
	return domain.Forecast{}, domain.WrapError(domain.ErrTemporary, "weather forecast", errWeatherDisabled)
}

func (disabledWeather) ForecastByCity(context.Context, string) (domain.Forecast, error) {
	return domain.Forecast{}, domain.WrapError(domain.ErrTemporary, "weather forecast by city", errWeatherDisabled)
}
