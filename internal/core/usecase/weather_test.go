package usecase

import (
	"context"
	"testing"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
)

func TestWeatherUseCaseValidates(t *testing.T) {
	provider := &weatherFake{}
	uc := NewWeatherUseCase(provider)
	ctx := context.Background()

	if _, err := uc.CurrentByCoords(ctx, domain.GeoPoint{Lat: 95}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := uc.CurrentByCity(ctx, "  "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := uc.ForecastByCity(ctx, ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if provider.calls != 0 {
		t.Fatalf("provider must not be called for invalid input")
	}

	if _, err := uc.CurrentByCity(ctx, "Hà Nội"); err != nil {
		t.Fatalf("CurrentByCity() error = %v", err)
	}
	if _, err := uc.Forecast(ctx, domain.GeoPoint{Lat: 21, Lon: 105}); err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if provider.calls != 2 {
		t.Fatalf("expected 2 provider calls, got %d", provider.calls)
	}
}
