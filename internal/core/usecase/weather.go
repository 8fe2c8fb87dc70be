package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
	"github.com/kirillkom/plant-health-assistant/internal/core/ports"
)

// WeatherUseCase validates lookups before they reach the provider.
type WeatherUseCase struct {
	provider ports.WeatherProvider
}

func NewWeatherUseCase(provider ports.WeatherProvider) *WeatherUseCase {
	return &WeatherUseCase{provider: provider}
}

func (uc *WeatherUseCase) CurrentByCoords(ctx context.Context, point domain.GeoPoint) (domain.WeatherReport, error) {
	if err := point.Validate(); err != nil {
		return domain.WeatherReport{}, err
	}
	return uc.provider.CurrentByCoords(ctx, point)
}

func (uc *WeatherUseCase) CurrentByCity(ctx context.Context, city string) (domain.WeatherReport, error) {
	city, err := requireCity(city)
	if err != nil {
		return domain.WeatherReport{}, err
	}
	return uc.provider.CurrentByCity(ctx, city)
}

func (uc *WeatherUseCase) Forecast(ctx context.Context, point domain.GeoPoint) (domain.Forecast, error) {
	if err := point.Validate(); err != nil {
		return domain.Forecast{}, err
	}
	return uc.provider.Forecast(ctx, point)
}

func (uc *WeatherUseCase) ForecastByCity(ctx context.Context, city string) (domain.Forecast, error) {
	city, err := requireCity(city)
	if err != nil {
		return domain.Forecast{}, err
	}
	return uc.provider.ForecastByCity(ctx, city)
}

func requireCity(city string) (string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "weather lookup", errors.New("city name is required"))
	}
	return city, nil
}
