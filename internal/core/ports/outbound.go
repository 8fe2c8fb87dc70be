package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
)

// AnalysisRepository persists and reads analysis state.
type AnalysisRepository interface {
	Create(ctx context.Context, analysis *domain.Analysis) error
	GetByID(ctx context.Context, id string) (*domain.Analysis, error)
	// TransitionStatus updates status only when the current status equals from.
	// It returns domain.ErrConflict when the row is not in the expected state.
	TransitionStatus(ctx context.Context, id string, from, to domain.AnalysisStatus, errMessage string) error
	SaveResult(ctx context.Context, id string, result domain.AnalysisResult) error
	// FailStale moves rows in status that were last updated before cutoff to failed.
	FailStale(ctx context.Context, status domain.AnalysisStatus, cutoff time.Time, errMessage string) (int64, error)
	List(ctx context.Context, userID string, query domain.AnalysisListQuery) ([]domain.Analysis, int64, error)
	ListAll(ctx context.Context, userID string) ([]domain.Analysis, error)
	ListNearby(ctx context.Context, requester string, query domain.NearbyQuery) ([]domain.NearbyAnalysis, error)
	SetVisibility(ctx context.Context, id string, isPublic bool) error
	Stats(ctx context.Context, userID string) (domain.DashboardStats, error)
	Delete(ctx context.Context, id string) error
}

// ChatRepository persists chat sessions with their messages.
type ChatRepository interface {
	FindActive(ctx context.Context, userID, analysisID string) (*domain.ChatSession, error)
	Create(ctx context.Context, session *domain.ChatSession) error
	GetByID(ctx context.Context, id string) (*domain.ChatSession, error)
	AppendMessages(ctx context.Context, session *domain.ChatSession, messages []domain.ChatMessage) error
	ListByUser(ctx context.Context, userID string, query domain.ChatListQuery) ([]domain.ChatSession, int64, error)
	Deactivate(ctx context.Context, id string) error
	CountByUser(ctx context.Context, userID string) (int64, error)
}

type StoredImage struct {
	URL string
	Key string
}

// ImageStorage stores uploaded images.
type ImageStorage interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (StoredImage, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes analysis submission events.
type MessageQueue interface {
	PublishAnalysisSubmitted(ctx context.Context, analysisID string) error
	SubscribeAnalysisSubmitted(ctx context.Context, handler func(context.Context, string) error) error
}

// PlantClassifier identifies a plant and its diseases from an image.
type PlantClassifier interface {
	Identify(ctx context.Context, image domain.ImageInput) (domain.PlantIdentification, error)
}

// WeatherProvider looks up current conditions and forecasts.
type WeatherProvider interface {
	CurrentByCoords(ctx context.Context, point domain.GeoPoint) (domain.WeatherReport, error)
	CurrentByCity(ctx context.Context, city string) (domain.WeatherReport, error)
	Forecast(ctx context.Context, point domain.GeoPoint) (domain.Forecast, error)
	ForecastByCity(ctx context.Context, city string) (domain.Forecast, error)
}

// AnalysisExporter renders analyses into a downloadable document.
type AnalysisExporter interface {
	ContentType() string
	Export(ctx context.Context, analyses []domain.Analysis, w io.Writer) error
}
