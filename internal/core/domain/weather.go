package domain

import "time"

type WeatherReport struct {
	Location    string    `json:"location"`
	Country     string    `json:"country,omitempty"`
	Coordinates GeoPoint  `json:"coordinates"`
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feels_like"`
	Humidity    float64   `json:"humidity"`
	Pressure    float64   `json:"pressure"`
	WindSpeed   float64   `json:"wind_speed"`
	WindDeg     float64   `json:"wind_direction"`
	Description string    `json:"description"`
	Icon        string    `json:"icon,omitempty"`
	Visibility  float64   `json:"visibility,omitempty"`
	Cloudiness  float64   `json:"cloudiness"`
	Sunrise     time.Time `json:"sunrise"`
	Sunset      time.Time `json:"sunset"`
	ObservedAt  time.Time `json:"observed_at"`
}

// Snapshot is the subset stored on an analysis.
func (r WeatherReport) Snapshot() *WeatherSnapshot {
	return &WeatherSnapshot{
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Description: r.Description,
		Location:    r.Location,
	}
}

type DailyForecast struct {
	Date        string  `json:"date"`
	TempMin     float64 `json:"temp_min"`
	TempMax     float64 `json:"temp_max"`
	TempAvg     float64 `json:"temp_avg"`
	Description string  `json:"description"`
	Icon        string  `json:"icon,omitempty"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"wind_speed"`
}

type Forecast struct {
	Location    string          `json:"location"`
	Country     string          `json:"country,omitempty"`
	Coordinates GeoPoint        `json:"coordinates"`
	Days        []DailyForecast `json:"forecasts"`
}
