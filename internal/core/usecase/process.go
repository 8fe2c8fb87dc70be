package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
	"github.com/kirillkom/plant-health-assistant/internal/core/ports"
)

type ProcessAnalysisUseCase struct {
	repo       ports.AnalysisRepository
	storage    ports.ImageStorage
	classifier ports.PlantClassifier
	weather    ports.WeatherProvider
	maxBytes   int64
	now        func() time.Time
}

// NewProcessAnalysisUseCase builds the worker pipeline. weather may be nil.
func NewProcessAnalysisUseCase(
	repo ports.AnalysisRepository,
	storage ports.ImageStorage,
	classifier ports.PlantClassifier,
	weather ports.WeatherProvider,
	maxBytes int64,
) *ProcessAnalysisUseCase {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &ProcessAnalysisUseCase{
		repo:       repo,
		storage:    storage,
		classifier: classifier,
		weather:    weather,
		maxBytes:   maxBytes,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ProcessByID runs classification for a pending analysis. Analyses that are
// no longer pending are skipped so redelivered messages are harmless.
func (uc *ProcessAnalysisUseCase) ProcessByID(ctx context.Context, analysisID string) error {
	if err := uc.repo.TransitionStatus(ctx, analysisID, domain.StatusPending, domain.StatusProcessing, ""); err != nil {
		if domain.IsKind(err, domain.ErrConflict) || domain.IsKind(err, domain.ErrAnalysisNotFound) {
			slog.Info("analysis_skipped", "analysis_id", analysisID, "reason", err.Error())
			return nil
		}
		return fmt.Errorf("set status=processing: %w", err)
	}

	started := uc.now()
	result, err := uc.processPipeline(ctx, analysisID, started)
	if err != nil {
		if failErr := uc.markFailed(ctx, analysisID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.SaveResult(ctx, analysisID, result); err != nil {
		if failErr := uc.markFailed(ctx, analysisID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return fmt.Errorf("save result: %w", err)
	}

	return nil
}

const staleAnalysisMessage = "analysis was not processed in time"

// FailStale fails analyses left pending or processing for longer than olderThan.
// Submissions published while no worker was subscribed, and runs cut short by a
// crashed worker, end up here.
func (uc *ProcessAnalysisUseCase) FailStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := uc.now().Add(-olderThan)
	var total int64
	for _, status := range []domain.AnalysisStatus{domain.StatusPending, domain.StatusProcessing} {
		n, err := uc.repo.FailStale(ctx, status, cutoff, staleAnalysisMessage)
		if err != nil {
			return total, fmt.Errorf("fail stale %s analyses: %w", status, err)
		}
		total += n
	}
	return total, nil
}

func (uc *ProcessAnalysisUseCase) processPipeline(ctx context.Context, analysisID string, started time.Time) (domain.AnalysisResult, error) {
	analysis, err := uc.repo.GetByID(ctx, analysisID)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("fetch analysis by id: %w", err)
	}

	image, err := uc.loadImage(ctx, analysis)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	identification, err := uc.classifier.Identify(ctx, image)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("identify plant: %w", err)
	}

	snapshot := uc.lookupWeather(ctx, analysis)
	return domain.NewAnalysisResult(identification, snapshot, uc.now().Sub(started)), nil
}

func (uc *ProcessAnalysisUseCase) loadImage(ctx context.Context, analysis *domain.Analysis) (domain.ImageInput, error) {
	rc, err := uc.storage.Open(ctx, analysis.ImageKey)
	if err != nil {
		return domain.ImageInput{}, fmt.Errorf("open image: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, uc.maxBytes+1))
	if err != nil {
		return domain.ImageInput{}, fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return domain.ImageInput{}, domain.WrapError(domain.ErrInvalidInput, "read image", fmt.Errorf("stored image %q is empty", analysis.ImageKey))
	}

	return domain.ImageInput{
		URL:         analysis.ImageURL,
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}

// lookupWeather never fails the pipeline; errors leave the snapshot nil.
func (uc *ProcessAnalysisUseCase) lookupWeather(ctx context.Context, analysis *domain.Analysis) *domain.WeatherSnapshot {
	if uc.weather == nil || analysis.Location == nil {
		return nil
	}
	report, err := uc.weather.CurrentByCoords(ctx, *analysis.Location)
	if err != nil {
		slog.Warn("weather_lookup_failed", "analysis_id", analysis.ID, "error", err)
		return nil
	}
	return report.Snapshot()
}

func (uc *ProcessAnalysisUseCase) markFailed(ctx context.Context, analysisID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	// The processing deadline may already be spent.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return uc.repo.TransitionStatus(ctx, analysisID, domain.StatusProcessing, domain.StatusFailed, processErr.Error())
}
