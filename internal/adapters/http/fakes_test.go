package httpadapter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/kirillkom/plant-health-assistant/internal/config"
	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
)

type submitterFake struct {
	last domain.SubmitInput
	data []byte
	err  error
}

func (f *submitterFake) Submit(_ context.Context, input domain.SubmitInput) (*domain.Analysis, error) {
	f.last = input
	if input.Body != nil {
		f.data, _ = io.ReadAll(input.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Analysis{
		ID:       "an-1",
		UserID:   input.UserID,
		ImageURL: "/uploads/an-1.png",
		Status:   domain.StatusPending,
	}, nil
}

type analysesFake struct {
	lastRequester string
	lastList      domain.AnalysisListQuery
	lastNearby    domain.NearbyQuery
	visibility    *bool
	deleted       []string
	err           error
}

func (f *analysesFake) Get(_ context.Context, id, requester string) (*domain.Analysis, error) {
	f.lastRequester = requester
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Analysis{ID: id, UserID: requester, Status: domain.StatusCompleted}, nil
}

func (f *analysesFake) List(_ context.Context, requester string, query domain.AnalysisListQuery) (domain.AnalysisPage, error) {
	f.lastRequester = requester
	f.lastList = query
	if f.err != nil {
		return domain.AnalysisPage{}, f.err
	}
	return domain.AnalysisPage{Analyses: []domain.Analysis{}, Page: query.Page, PageSize: query.PageSize}, nil
}

func (f *analysesFake) Delete(_ context.Context, id, requester string) error {
	f.lastRequester = requester
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *analysesFake) SetVisibility(_ context.Context, id, requester string, isPublic bool) (*domain.Analysis, error) {
	f.visibility = &isPublic
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Analysis{ID: id, UserID: requester, IsPublic: isPublic}, nil
}

func (f *analysesFake) Nearby(_ context.Context, requester string, query domain.NearbyQuery) ([]domain.NearbyAnalysis, error) {
	f.lastRequester = requester
	f.lastNearby = query
	if f.err != nil {
		return nil, f.err
	}
	return []domain.NearbyAnalysis{{Analysis: domain.Analysis{ID: "near-1"}, DistanceKM: 1.5}}, nil
}

func (f *analysesFake) Stats(_ context.Context, requester string) (domain.DashboardStats, error) {
	f.lastRequester = requester
	return domain.DashboardStats{Total: 3, Healthy: 2, Sick: 1}, f.err
}

func (f *analysesFake) Export(_ context.Context, requester string, w io.Writer) (string, error) {
	f.lastRequester = requester
	if f.err != nil {
		return "", f.err
	}
	_, err := io.WriteString(w, "xlsx-bytes")
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", err
}

type chatsFake struct {
	lastInput domain.ChatInput
	err       error
}

func (f *chatsFake) Start(_ context.Context, userID, analysisID string) (*domain.ChatSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ChatSession{ID: "chat-1", UserID: userID, AnalysisID: analysisID, IsActive: true}, nil
}

func (f *chatsFake) SendMessage(_ context.Context, input domain.ChatInput) (domain.ChatReply, error) {
	f.lastInput = input
	if f.err != nil {
		return domain.ChatReply{}, f.err
	}
	chatID := input.ChatID
	if chatID == "" {
		chatID = "chat-lazy"
	}
	return domain.ChatReply{ChatID: chatID, Intent: "greeting", Response: "Xin chào"}, nil
}

func (f *chatsFake) History(_ context.Context, userID, chatID string) (*domain.ChatSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ChatSession{ID: chatID, UserID: userID}, nil
}

func (f *chatsFake) List(_ context.Context, _ string, query domain.ChatListQuery) (domain.ChatPage, error) {
	return domain.ChatPage{Chats: []domain.ChatSession{}, Page: query.Page, PageSize: query.Limit}, f.err
}

func (f *chatsFake) Deactivate(context.Context, string, string) error {
	return f.err
}

type weatherServiceFake struct {
	lastPoint domain.GeoPoint
	lastCity  string
	err       error
}

func (f *weatherServiceFake) CurrentByCoords(_ context.Context, point domain.GeoPoint) (domain.WeatherReport, error) {
	f.lastPoint = point
	return domain.WeatherReport{Location: "Hà Nội", Temperature: 30}, f.err
}

func (f *weatherServiceFake) CurrentByCity(_ context.Context, city string) (domain.WeatherReport, error) {
	f.lastCity = city
	return domain.WeatherReport{Location: city}, f.err
}

func (f *weatherServiceFake) Forecast(_ context.Context, point domain.GeoPoint) (domain.Forecast, error) {
	f.lastPoint = point
	return domain.Forecast{Location: "coords"}, f.err
}

func (f *weatherServiceFake) ForecastByCity(_ context.Context, city string) (domain.Forecast, error) {
	f.lastCity = city
	return domain.Forecast{Location: city}, f.err
}

type testDeps struct {
	submitter *submitterFake
	analyses  *analysesFake
	chats     *chatsFake
	weather   *weatherServiceFake
}

func newTestDeps() testDeps {
	return testDeps{
		submitter: &submitterFake{},
		analyses:  &analysesFake{},
		chats:     &chatsFake{},
		weather:   &weatherServiceFake{},
	}
}

func (d testDeps) dependencies() Dependencies {
	return Dependencies{
		Submitter: d.submitter,
		Analyses:  d.analyses,
		Chats:     d.chats,
		Weather:   d.weather,
		Checks: map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
		},
	}
}

func newTestHandlerWith(t *testing.T, cfg config.Config, deps Dependencies) http.Handler {
	t.Helper()
	router, err := NewRouter(cfg, deps)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return router.Handler()
}

func newTestHandler(t *testing.T, cfg config.Config) http.Handler {
	t.Helper()
	return newTestHandlerWith(t, cfg, newTestDeps().dependencies())
}

var errBoom = errors.New("database exploded")
