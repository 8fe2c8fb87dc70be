package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
)

func (rt *Router) weatherByCoordinates(w http.ResponseWriter, r *http.Request) error {
	point, err := requiredPoint(r)
	if err != nil {
		return err
	}
	report, err := rt.deps.Weather.CurrentByCoords(r.Context(), point)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, report)
	return nil
}

func (rt *Router) weatherByCity(w http.ResponseWriter, r *http.Request) error {
	var city string
	if err := bindQuery(r, "city", true, &city); err != nil {
		return err
	}
	report, err := rt.deps.Weather.CurrentByCity(r.Context(), city)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, report)
	return nil
}

// weatherForecast takes coordinates when both are present, else a city.
func (rt *Router) weatherForecast(w http.ResponseWriter, r *http.Request) error {
	var (
		forecast domain.Forecast
		err      error
	)
	query := r.URL.Query()
	switch {
	case query.Has("lat") || query.Has("lon"):
		var point domain.GeoPoint
		point, err = requiredPoint(r)
		if err != nil {
			return err
		}
		forecast, err = rt.deps.Weather.Forecast(r.Context(), point)
	case query.Get("city") != "":
		forecast, err = rt.deps.Weather.ForecastByCity(r.Context(), query.Get("city"))
	default:
		return domain.WrapError(domain.ErrInvalidInput, "weather forecast", errors.New("lat/lon or city is required"))
	}
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, forecast)
	return nil
}

func requiredPoint(r *http.Request) (domain.GeoPoint, error) {
	var point domain.GeoPoint
	if err := bindQuery(r, "lat", true, &point.Lat); err != nil {
		return domain.GeoPoint{}, err
	}
	if err := bindQuery(r, "lon", true, &point.Lon); err != nil {
		return domain.GeoPoint{}, err
	}
	return point, nil
}
