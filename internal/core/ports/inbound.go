package ports

import (
	"context"
	"io"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
)

// AnalysisSubmitter is the inbound contract for image upload orchestration.
type AnalysisSubmitter interface {
	Submit(ctx context.Context, input domain.SubmitInput) (*domain.Analysis, error)
}

// AnalysisProcessor is the inbound contract for asynchronous analysis processing.
type AnalysisProcessor interface {
	ProcessByID(ctx context.Context, analysisID string) error
}

// AnalysisReader is the inbound read/write model for analyses owned by users.
type AnalysisReader interface {
	Get(ctx context.Context, id, requester string) (*domain.Analysis, error)
	List(ctx context.Context, requester string, query domain.AnalysisListQuery) (domain.AnalysisPage, error)
	Delete(ctx context.Context, id, requester string) error
	SetVisibility(ctx context.Context, id, requester string, isPublic bool) (*domain.Analysis, error)
	Nearby(ctx context.Context, requester string, query domain.NearbyQuery) ([]domain.NearbyAnalysis, error)
	Stats(ctx context.Context, requester string) (domain.DashboardStats, error)
	Export(ctx context.Context, requester string, w io.Writer) (string, error)
}

// ChatService is the inbound contract for chat sessions.
type ChatService interface {
	Start(ctx context.Context, userID, analysisID string) (*domain.ChatSession, error)
	SendMessage(ctx context.Context, input domain.ChatInput) (domain.ChatReply, error)
	History(ctx context.Context, userID, chatID string) (*domain.ChatSession, error)
	List(ctx context.Context, userID string, query domain.ChatListQuery) (domain.ChatPage, error)
	Deactivate(ctx context.Context, userID, chatID string) error
}

// WeatherService is the inbound contract for weather lookups.
type WeatherService interface {
	CurrentByCoords(ctx context.Context, point domain.GeoPoint) (domain.WeatherReport, error)
	CurrentByCity(ctx context.Context, city string) (domain.WeatherReport, error)
	Forecast(ctx context.Context, point domain.GeoPoint) (domain.Forecast, error)
	ForecastByCity(ctx context.Context, city string) (domain.Forecast, error)
}
