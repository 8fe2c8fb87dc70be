package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
	"github.com/kirillkom/plant-health-assistant/internal/core/ports"
)

type transitionCall struct {
	from   domain.AnalysisStatus
	to     domain.AnalysisStatus
	errMsg string
}

type analysisRepoFake struct {
	mu          sync.Mutex
	items       map[string]*domain.Analysis
	createErr   error
	saveErr     error
	deleteErr   error
	transitions []transitionCall
	staleCalls  []staleCall
	deleted     []string
	stats       domain.DashboardStats
}

type staleCall struct {
	status domain.AnalysisStatus
	cutoff time.Time
}

func newAnalysisRepoFake(items ...*domain.Analysis) *analysisRepoFake {
	f := &analysisRepoFake{items: map[string]*domain.Analysis{}}
	for _, a := range items {
		f.items[a.ID] = a
	}
	return f
}

func (f *analysisRepoFake) Create(_ context.Context, a *domain.Analysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *a
	f.items[a.ID] = &cp
	return nil
}

func (f *analysisRepoFake) GetByID(_ context.Context, id string) (*domain.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrAnalysisNotFound, "get analysis", fmt.Errorf("id=%s", id))
	}
	cp := *a
	return &cp, nil
}

func (f *analysisRepoFake) TransitionStatus(_ context.Context, id string, from, to domain.AnalysisStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, transitionCall{from: from, to: to, errMsg: errMessage})
	a, ok := f.items[id]
	if !ok {
		return domain.WrapError(domain.ErrAnalysisNotFound, "transition", fmt.Errorf("id=%s", id))
	}
	if a.Status != from || !domain.CanTransition(from, to) {
		return domain.WrapError(domain.ErrConflict, "transition", fmt.Errorf("status=%s", a.Status))
	}
	a.Status = to
	if to == domain.StatusFailed {
		a.Error = errMessage
	}
	return nil
}

func (f *analysisRepoFake) SaveResult(_ context.Context, id string, result domain.AnalysisResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	a, ok := f.items[id]
	if !ok || a.Status != domain.StatusProcessing {
		return domain.WrapError(domain.ErrConflict, "save result", errors.New("not processing"))
	}
	a.Apply(result)
	return nil
}

func (f *analysisRepoFake) FailStale(_ context.Context, status domain.AnalysisStatus, cutoff time.Time, errMessage string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staleCalls = append(f.staleCalls, staleCall{status: status, cutoff: cutoff})
	var n int64
	for _, a := range f.items {
		if a.Status == status && a.UpdatedAt.Before(cutoff) {
			a.Status = domain.StatusFailed
			a.Error = errMessage
			n++
		}
	}
	return n, nil
}

func (f *analysisRepoFake) sorted(userID string) []domain.Analysis {
	out := make([]domain.Analysis, 0, len(f.items))
	for _, a := range f.items {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (f *analysisRepoFake) List(_ context.Context, userID string, q domain.AnalysisListQuery) ([]domain.Analysis, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.sorted(userID)
	if q.Status != "" {
		filtered := all[:0]
		for _, a := range all {
			if a.Status == q.Status {
				filtered = append(filtered, a)
			}
		}
		all = filtered
	}
	total := int64(len(all))
	start := q.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + q.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (f *analysisRepoFake) ListAll(_ context.Context, userID string) ([]domain.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(userID), nil
}

func (f *analysisRepoFake) ListNearby(_ context.Context, _ string, _ domain.NearbyQuery) ([]domain.NearbyAnalysis, error) {
	return nil, nil
}

func (f *analysisRepoFake) SetVisibility(_ context.Context, id string, isPublic bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[id].IsPublic = isPublic
	return nil
}

func (f *analysisRepoFake) Stats(context.Context, string) (domain.DashboardStats, error) {
	return f.stats, nil
}

func (f *analysisRepoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.items, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type storageFake struct {
	mu         sync.Mutex
	objects    map[string][]byte
	uploadErr  error
	openErr    error
	deleteErr  error
	deleteKeys []string
}

func newStorageFake() *storageFake {
	return &storageFake{objects: map[string][]byte{}}
}

func (f *storageFake) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) (ports.StoredImage, error) {
	if f.uploadErr != nil {
		return ports.StoredImage{}, f.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return ports.StoredImage{}, err
	}
	f.mu.Lock()
	f.objects[key] = data
	f.mu.Unlock()
	return ports.StoredImage{URL: "http://images.local/" + key, Key: key}, nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "open image", fmt.Errorf("key=%s", key))
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteKeys = append(f.deleteKeys, key)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, key)
	return nil
}

type queueFake struct {
	published  []string
	publishErr error
}

func (f *queueFake) PublishAnalysisSubmitted(_ context.Context, id string) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *queueFake) SubscribeAnalysisSubmitted(context.Context, func(context.Context, string) error) error {
	return nil
}

type classifierFake struct {
	result domain.PlantIdentification
	err    error
	calls  int
	last   domain.ImageInput
}

func (f *classifierFake) Identify(_ context.Context, image domain.ImageInput) (domain.PlantIdentification, error) {
	f.calls++
	f.last = image
	if f.err != nil {
		return domain.PlantIdentification{}, f.err
	}
	return f.result, nil
}

type weatherFake struct {
	report domain.WeatherReport
	err    error
	calls  int
}

func (f *weatherFake) CurrentByCoords(context.Context, domain.GeoPoint) (domain.WeatherReport, error) {
	f.calls++
	return f.report, f.err
}

func (f *weatherFake) CurrentByCity(context.Context, string) (domain.WeatherReport, error) {
	f.calls++
	return f.report, f.err
}

func (f *weatherFake) Forecast(context.Context, domain.GeoPoint) (domain.Forecast, error) {
	f.calls++
	return domain.Forecast{}, f.err
}

func (f *weatherFake) ForecastByCity(context.Context, string) (domain.Forecast, error) {
	f.calls++
	return domain.Forecast{}, f.err
}

type chatRepoFake struct {
	mu        sync.Mutex
	sessions  map[string]*domain.ChatSession
	appendErr error
	appended  [][]domain.ChatMessage
}

func newChatRepoFake() *chatRepoFake {
	return &chatRepoFake{sessions: map[string]*domain.ChatSession{}}
}

func (f *chatRepoFake) FindActive(_ context.Context, userID, analysisID string) (*domain.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.UserID == userID && s.AnalysisID == analysisID && s.IsActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.WrapError(domain.ErrChatNotFound, "find active chat", errors.New("none"))
}

func (f *chatRepoFake) Create(_ context.Context, s *domain.ChatSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *chatRepoFake) GetByID(_ context.Context, id string) (*domain.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrChatNotFound, "get chat", fmt.Errorf("id=%s", id))
	}
	cp := *s
	cp.Messages = append([]domain.ChatMessage(nil), s.Messages...)
	return &cp, nil
}

func (f *chatRepoFake) AppendMessages(_ context.Context, s *domain.ChatSession, messages []domain.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, messages)
	cp := *s
	cp.Messages = append([]domain.ChatMessage(nil), s.Messages...)
	f.sessions[s.ID] = &cp
	return nil
}

func (f *chatRepoFake) ListByUser(_ context.Context, userID string, _ domain.ChatListQuery) ([]domain.ChatSession, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ChatSession
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, int64(len(out)), nil
}

func (f *chatRepoFake) Deactivate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id].IsActive = false
	return nil
}

func (f *chatRepoFake) CountByUser(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, s := range f.sessions {
		if s.UserID == userID {
			n++
		}
	}
	return n, nil
}

type exporterFake struct {
	exported []domain.Analysis
}

func (f *exporterFake) ContentType() string { return "text/csv" }

func (f *exporterFake) Export(_ context.Context, analyses []domain.Analysis, w io.Writer) error {
	f.exported = analyses
	_, err := io.WriteString(w, fmt.Sprintf("%d", len(analyses)))
	return err
}

type intentRecorder struct {
	intents []string
}

func (r *intentRecorder) ObserveIntent(intent string) {
	r.intents = append(r.intents, intent)
}

// pngHeader is enough for http.DetectContentType to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")
