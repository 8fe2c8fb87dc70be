package openweather

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
	"github.com/kirillkom/plant-health-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/plant-health-assistant/internal/infrastructure/upstream"
)

const (
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"
	serviceName    = "openweather"
	forecastDays   = 5
)

type Options struct {
	BaseURL            string
	APIKey             string
	Language           string
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

type Client struct {
	baseURL    string
	apiKey     string
	lang       string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(options Options) (*Client, error) {
	if strings.TrimSpace(options.APIKey) == "" {
		return nil, errors.New("openweather: api key is required")
	}
	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	lang := options.Language
	if lang == "" {
		lang = "vi"
	}
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     options.APIKey,
		lang:       lang,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}, nil
}

func (c *Client) CurrentByCoords(ctx context.Context, point domain.GeoPoint) (domain.WeatherReport, error) {
	return c.current(ctx, coordsQuery(point))
}

func (c *Client) CurrentByCity(ctx context.Context, city string) (domain.WeatherReport, error) {
	return c.current(ctx, url.Values{"q": {city}})
}

func (c *Client) Forecast(ctx context.Context, point domain.GeoPoint) (domain.Forecast, error) {
	return c.forecast(ctx, coordsQuery(point))
}

func (c *Client) ForecastByCity(ctx context.Context, city string) (domain.Forecast, error) {
	return c.forecast(ctx, url.Values{"q": {city}})
}

func (c *Client) current(ctx context.Context, query url.Values) (domain.WeatherReport, error) {
	var resp currentResponse
	if err := c.get(ctx, "weather", query, &resp); err != nil {
		return domain.WeatherReport{}, err
	}
	return resp.toDomain(), nil
}

func (c *Client) forecast(ctx context.Context, query url.Values) (domain.Forecast, error) {
	var resp forecastResponse
	if err := c.get(ctx, "forecast", query, &resp); err != nil {
		return domain.Forecast{}, err
	}
	return resp.toDomain(forecastDays), nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	query.Set("appid", c.apiKey)
	query.Set("units", "metric")
	query.Set("lang", c.lang)
	endpoint := c.baseURL + "/" + path + "?" + query.Encode()

	return upstream.Call(ctx, c.httpClient, c.executor, serviceName, path, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, out)
}

func coordsQuery(point domain.GeoPoint) url.Values {
	return url.Values{
		"lat": {strconv.FormatFloat(point.Lat, 'f', -1, 64)},
		"lon": {strconv.FormatFloat(point.Lon, 'f', -1, 64)},
	}
}

type condition struct {
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type mainBlock struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	Humidity  float64 `json:"humidity"`
	Pressure  float64 `json:"pressure"`
}

type currentResponse struct {
	Name  string `json:"name"`
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Main    mainBlock   `json:"main"`
	Weather []condition `json:"weather"`
	Wind    struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Visibility float64 `json:"visibility"`
	Sys        struct {
		Country string `json:"country"`
		Sunrise int64  `json:"sunrise"`
		Sunset  int64  `json:"sunset"`
	} `json:"sys"`
	Dt int64 `json:"dt"`
}

func (r currentResponse) toDomain() domain.WeatherReport {
	var cond condition
	if len(r.Weather) > 0 {
		cond = r.Weather[0]
	}
	return domain.WeatherReport{
		Location:    r.Name,
		Country:     r.Sys.Country,
		Coordinates: domain.GeoPoint{Lat: r.Coord.Lat, Lon: r.Coord.Lon},
		Temperature: r.Main.Temp,
		FeelsLike:   r.Main.FeelsLike,
		Humidity:    r.Main.Humidity,
		Pressure:    r.Main.Pressure,
		WindSpeed:   r.Wind.Speed,
		WindDeg:     r.Wind.Deg,
		Description: cond.Description,
		Icon:        cond.Icon,
		Visibility:  r.Visibility,
		Cloudiness:  r.Clouds.All,
		Sunrise:     time.Unix(r.Sys.Sunrise, 0).UTC(),
		Sunset:      time.Unix(r.Sys.Sunset, 0).UTC(),
		ObservedAt:  time.Unix(r.Dt, 0).UTC(),
	}
}

type forecastResponse struct {
	List []struct {
		Dt      int64       `json:"dt"`
		Main    mainBlock   `json:"main"`
		Weather []condition `json:"weather"`
		Wind    struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
	} `json:"list"`
	City struct {
		Name    string `json:"name"`
		Country string `json:"country"`
		Coord   struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"coord"`
		Timezone int `json:"timezone"`
	} `json:"city"`
}

type dayBucket struct {
	date         string
	temps        []float64
	descriptions []string
	icons        []string
	humidity     []float64
	wind         []float64
}

// toDomain groups 3-hour slots into local calendar days, keeping the first n days.
func (r forecastResponse) toDomain(n int) domain.Forecast {
	zone := time.FixedZone("city", r.City.Timezone)
	var buckets []*dayBucket
	index := map[string]*dayBucket{}
	for _, item := range r.List {
		date := time.Unix(item.Dt, 0).In(zone).Format("2006-01-02")
		b, ok := index[date]
		if !ok {
			b = &dayBucket{date: date}
			index[date] = b
			buckets = append(buckets, b)
		}
		var cond condition
		if len(item.Weather) > 0 {
			cond = item.Weather[0]
		}
		b.temps = append(b.temps, item.Main.Temp)
		b.descriptions = append(b.descriptions, cond.Description)
		b.icons = append(b.icons, cond.Icon)
		b.humidity = append(b.humidity, item.Main.Humidity)
		b.wind = append(b.wind, item.Wind.Speed)
	}

	days := make([]domain.DailyForecast, 0, n)
	for _, b := range buckets {
		if len(days) == n {
			break
		}
		mid := len(b.temps) / 2
		days = append(days, domain.DailyForecast{
			Date:        b.date,
			TempMin:     minOf(b.temps),
			TempMax:     maxOf(b.temps),
			TempAvg:     math.Round(mean(b.temps)),
			Description: b.descriptions[mid],
			Icon:        b.icons[mid],
			Humidity:    math.Round(mean(b.humidity)),
			WindSpeed:   math.Round(mean(b.wind)*10) / 10,
		})
	}

	return domain.Forecast{
		Location:    r.City.Name,
		Country:     r.City.Country,
		Coordinates: domain.GeoPoint{Lat: r.City.Coord.Lat, Lon: r.City.Coord.Lon},
		Days:        days,
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func minOf(values []float64) float64 {
	out := math.Inf(1)
	for _, v := range values {
		out = math.Min(out, v)
	}
	return out
}

func maxOf(values []float64) float64 {
	out := math.Inf(-1)
	for _, v := range values {
		out = math.Max(out, v)
	}
	return out
}
