package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

type AnalysisStatus string

const (
	StatusPending    AnalysisStatus = "pending"
	StatusProcessing AnalysisStatus = "processing"
	StatusCompleted  AnalysisStatus = "completed"
	StatusFailed     AnalysisStatus = "failed"
)

func ParseAnalysisStatus(raw string) (AnalysisStatus, error) {
	switch s := AnalysisStatus(raw); s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return s, nil
	default:
		return "", WrapError(ErrInvalidInput, "parse status", fmt.Errorf("unknown status %q", raw))
	}
}

// Terminal reports whether no further transition is allowed.
func (s AnalysisStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition encodes the analysis lifecycle.
func CanTransition(from, to AnalysisStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

type HealthStatus string

const (
	HealthHealthy HealthStatus = "healthy"
	HealthSick    HealthStatus = "sick"
	HealthUnknown HealthStatus = "unknown"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityFromProbability maps a disease probability in [0,1] to a tier.
func SeverityFromProbability(p float64) Severity {
	switch {
	case p >= 0.8:
		return SeverityCritical
	case p >= 0.6:
		return SeverityHigh
	case p >= 0.4:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// PercentFromProbability rounds a probability to an integer percentage clamped to [0,100].
func PercentFromProbability(p float64) int {
	if math.IsNaN(p) {
		return 0
	}
	pct := int(math.Round(p * 100))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Disease stores only the raw probability; confidence and severity derive from it.
type Disease struct {
	Name        string   `json:"name"`
	Probability float64  `json:"probability"`
	Description string   `json:"description,omitempty"`
	Symptoms    []string `json:"symptoms"`
	Treatments  []string `json:"treatments"`
}

func (d Disease) Confidence() int {
	return PercentFromProbability(d.Probability)
}

func (d Disease) Severity() Severity {
	return SeverityFromProbability(d.Probability)
}

func (d Disease) MarshalJSON() ([]byte, error) {
	type stored Disease
	return json.Marshal(struct {
		stored
		Confidence int      `json:"confidence"`
		Severity   Severity `json:"severity"`
	}{
		stored:     stored(d),
		Confidence: d.Confidence(),
		Severity:   d.Severity(),
	})
}

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return WrapError(ErrInvalidInput, "validate location", fmt.Errorf("latitude out of range: %v", p.Lat))
	}
	if math.IsNaN(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		return WrapError(ErrInvalidInput, "validate location", fmt.Errorf("longitude out of range: %v", p.Lon))
	}
	return nil
}

type WeatherSnapshot struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Description string  `json:"description"`
	Location    string  `json:"location"`
}

type Analysis struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	ImageURL         string           `json:"image_url"`
	ImageKey         string           `json:"image_key"`
	Status           AnalysisStatus   `json:"status"`
	PlantName        string           `json:"plant_name,omitempty"`
	PlantFamily      string           `json:"plant_family,omitempty"`
	PlantGenus       string           `json:"plant_genus,omitempty"`
	PlantSpecies     string           `json:"plant_species,omitempty"`
	Confidence       int              `json:"confidence"`
	Diseases         []Disease        `json:"diseases"`
	HealthStatus     HealthStatus     `json:"health_status"`
	Weather          *WeatherSnapshot `json:"weather,omitempty"`
	Location         *GeoPoint        `json:"location,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	Tags             []string         `json:"tags"`
	IsPublic         bool             `json:"is_public"`
	ProcessingTimeMS *int64           `json:"processing_time_ms,omitempty"`
	WikiDescription  string           `json:"wiki_description,omitempty"`
	WikiURL          string           `json:"wiki_url,omitempty"`
	Error            string           `json:"error,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// ReadableBy reports whether requester may view the analysis.
func (a *Analysis) ReadableBy(requester string) bool {
	return a.UserID == requester || a.IsPublic
}

func (a *Analysis) OwnedBy(requester string) bool {
	return a.UserID == requester
}

// HighestSeverity returns the worst severity across diseases, or "" when healthy.
func (a *Analysis) HighestSeverity() Severity {
	rank := map[Severity]int{SeverityLow: 1, SeverityMedium: 2, SeverityHigh: 3, SeverityCritical: 4}
	var worst Severity
	for _, d := range a.Diseases {
		if s := d.Severity(); rank[s] > rank[worst] {
			worst = s
		}
	}
	return worst
}

// PlantIdentification is the canonical classifier output.
type PlantIdentification struct {
	PlantName       string    `json:"plant_name"`
	PlantFamily     string    `json:"plant_family,omitempty"`
	PlantGenus      string    `json:"plant_genus,omitempty"`
	PlantSpecies    string    `json:"plant_species,omitempty"`
	Probability     float64   `json:"probability"`
	Diseases        []Disease `json:"diseases"`
	WikiDescription string    `json:"wiki_description,omitempty"`
	WikiURL         string    `json:"wiki_url,omitempty"`
}

// HealthStatusFor derives health from the detected diseases of a completed analysis.
func HealthStatusFor(diseases []Disease) HealthStatus {
	if len(diseases) == 0 {
		return HealthHealthy
	}
	return HealthSick
}

// AnalysisResult is what processing writes on completion.
type AnalysisResult struct {
	PlantName        string
	PlantFamily      string
	PlantGenus       string
	PlantSpecies     string
	Confidence       int
	Diseases         []Disease
	HealthStatus     HealthStatus
	Weather          *WeatherSnapshot
	WikiDescription  string
	WikiURL          string
	ProcessingTimeMS int64
}

func NewAnalysisResult(id PlantIdentification, weather *WeatherSnapshot, elapsed time.Duration) AnalysisResult {
	diseases := id.Diseases
	if diseases == nil {
		diseases = []Disease{}
	}
	return AnalysisResult{
		PlantName:        id.PlantName,
		PlantFamily:      id.PlantFamily,
		PlantGenus:       id.PlantGenus,
		PlantSpecies:     id.PlantSpecies,
		Confidence:       PercentFromProbability(id.Probability),
		Diseases:         diseases,
		HealthStatus:     HealthStatusFor(diseases),
		Weather:          weather,
		WikiDescription:  id.WikiDescription,
		WikiURL:          id.WikiURL,
		ProcessingTimeMS: elapsed.Milliseconds(),
	}
}

// Apply copies a completed result onto the analysis.
func (a *Analysis) Apply(result AnalysisResult) {
	a.PlantName = result.PlantName
	a.PlantFamily = result.PlantFamily
	a.PlantGenus = result.PlantGenus
	a.PlantSpecies = result.PlantSpecies
	a.Confidence = result.Confidence
	a.Diseases = result.Diseases
	a.HealthStatus = result.HealthStatus
	a.Weather = result.Weather
	a.WikiDescription = result.WikiDescription
	a.WikiURL = result.WikiURL
	ms := result.ProcessingTimeMS
	a.ProcessingTimeMS = &ms
	a.Status = StatusCompleted
}

type AnalysisListQuery struct {
	Page     int
	PageSize int
	Status   AnalysisStatus
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Normalize applies pagination defaults and bounds.
func (q AnalysisListQuery) Normalize() AnalysisListQuery {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	return q
}

func (q AnalysisListQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

type AnalysisPage struct {
	Analyses   []Analysis `json:"analyses"`
	Page       int        `json:"current_page"`
	PageSize   int        `json:"page_size"`
	Total      int64      `json:"total"`
	TotalPages int        `json:"total_pages"`
}

func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(pageSize)))
}

type NearbyQuery struct {
	Point    GeoPoint
	RadiusKM float64
	Limit    int
}

type NearbyAnalysis struct {
	Analysis   Analysis `json:"analysis"`
	DistanceKM float64  `json:"distance_km"`
}

type DashboardStats struct {
	Total        int64                    `json:"total"`
	Healthy      int64                    `json:"healthy"`
	Sick         int64                    `json:"sick"`
	ByStatus     map[AnalysisStatus]int64 `json:"by_status"`
	ChatSessions int64                    `json:"chat_sessions"`
}
