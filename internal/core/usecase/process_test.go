package usecase

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
)

func seededPending(storage *storageFake, location *domain.GeoPoint) *domain.Analysis {
	storage.objects["analyses/u/a1_leaf.png"] = pngHeader
	return &domain.Analysis{
		ID:           "a1",
		UserID:       "owner",
		ImageURL:     "http://images.local/analyses/u/a1_leaf.png",
		ImageKey:     "analyses/u/a1_leaf.png",
		Status:       domain.StatusPending,
		Diseases:     []domain.Disease{},
		HealthStatus: domain.HealthUnknown,
		Location:     location,
		CreatedAt:    time.Now().UTC(),
	}
}

func TestProcessByIDCompletesHealthyPlant(t *testing.T) {
	storage := newStorageFake()
	repo := newAnalysisRepoFake(seededPending(storage, nil))
	classifier := &classifierFake{result: domain.PlantIdentification{PlantName: "Rosa", PlantFamily: "Rosaceae", Probability: 0.934}}
	weather := &weatherFake{}
	uc := NewProcessAnalysisUseCase(repo, storage, classifier, weather, 0)

	if err := uc.ProcessByID(context.Background(), "a1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	got := repo.items["a1"]
	if got.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.HealthStatus != domain.HealthHealthy {
		t.Fatalf("empty disease list must be healthy, got %s", got.HealthStatus)
	}
	if got.Confidence != 93 || got.PlantName != "Rosa" || got.PlantFamily != "Rosaceae" {
		t.Fatalf("unexpected result fields: %+v", got)
	}
	if got.ProcessingTimeMS == nil {
		t.Fatalf("expected processing time to be recorded")
	}
	if weather.calls != 0 {
		t.Fatalf("weather must not be queried without a location")
	}
	if !bytes.Equal(classifier.last.Data, pngHeader) || classifier.last.ContentType != "image/png" {
		t.Fatalf("classifier received unexpected image: %+v", classifier.last.ContentType)
	}
}

func TestProcessByIDAttachesWeatherWhenLocated(t *testing.T) {
	storage := newStorageFake()
	repo := newAnalysisRepoFake(seededPending(storage, &domain.GeoPoint{Lat: 10.8, Lon: 106.7}))
	classifier := &classifierFake{result: domain.PlantIdentification{
		PlantName: "Solanum lycopersicum",
		Diseases:  []domain.Disease{{Name: "Early Blight", Probability: 0.72}},
	}}
	weather := &weatherFake{report: domain.WeatherReport{Location: "Hồ Chí Minh", Temperature: 33, Humidity: 70, Description: "nắng"}}
	uc := NewProcessAnalysisUseCase(repo, storage, classifier, weather, 0)

	if err := uc.ProcessByID(context.Background(), "a1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	got := repo.items["a1"]
	if got.HealthStatus != domain.HealthSick {
		t.Fatalf("expected sick, got %s", got.HealthStatus)
	}
	if got.Weather == nil || got.Weather.Location != "Hồ Chí Minh" || got.Weather.Temperature != 33 {
		t.Fatalf("expected weather snapshot, got %+v", got.Weather)
	}
}

func TestProcessByIDWeatherFailureIsNonFatal(t *testing.T) {
	storage := newStorageFake()
	repo := newAnalysisRepoFake(seededPending(storage, &domain.GeoPoint{Lat: 1, Lon: 1}))
	uc := NewProcessAnalysisUseCase(repo, storage, &classifierFake{}, &weatherFake{err: errors.New("weather down")}, 0)

	if err := uc.ProcessByID(context.Background(), "a1"); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}
	got := repo.items["a1"]
	if got.Status != domain.StatusCompleted || got.Weather != nil {
		t.Fatalf("expected completed without weather, got status=%s weather=%+v", got.Status, got.Weather)
	}
}

func TestProcessByIDClassifierFailureMarksFailed(t *testing.T) {
	storage := newStorageFake()
	seed := seededPending(storage, nil)
	seed.PlantName = "previous"
	repo := newAnalysisRepoFake(seed)
	classifier := &classifierFake{err: domain.WrapError(domain.ErrUpstream, "plantid identify", errors.New("status 500"))}
	uc := NewProcessAnalysisUseCase(repo, storage, classifier, nil, 0)

	err := uc.ProcessByID(context.Background(), "a1")
	if !domain.IsKind(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}

	got := repo.items["a1"]
	if got.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if !strings.Contains(got.Error, "status 500") {
		t.Fatalf("expected error text to be recorded, got %q", got.Error)
	}
	if got.PlantName != "previous" || got.HealthStatus != domain.HealthUnknown || got.ProcessingTimeMS != nil {
		t.Fatalf("result fields must stay untouched on failure: %+v", got)
	}

	want := []transitionCall{
		{from: domain.StatusPending, to: domain.StatusProcessing},
		{from: domain.StatusProcessing, to: domain.StatusFailed, errMsg: err.Error()},
	}
	if !reflect.DeepEqual(repo.transitions, want) {
		t.Fatalf("unexpected transitions: %+v", repo.transitions)
	}
}

func TestProcessByIDSkipsNonPending(t *testing.T) {
	for _, status := range []domain.AnalysisStatus{domain.StatusProcessing, domain.StatusCompleted, domain.StatusFailed} {
		storage := newStorageFake()
		seed := seededPending(storage, nil)
		seed.Status = status
		repo := newAnalysisRepoFake(seed)
		classifier := &classifierFake{}
		uc := NewProcessAnalysisUseCase(repo, storage, classifier, nil, 0)

		if err := uc.ProcessByID(context.Background(), "a1"); err != nil {
			t.Fatalf("status %s: expected skip without error, got %v", status, err)
		}
		if classifier.calls != 0 || repo.items["a1"].Status != status {
			t.Fatalf("status %s: record must not be touched", status)
		}
	}
}

func TestFailStaleFailsOnlyOldUnfinishedAnalyses(t *testing.T) {
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	old := now.Add(-time.Hour)
	repo := newAnalysisRepoFake(
		&domain.Analysis{ID: "lost", Status: domain.StatusPending, UpdatedAt: old},
		&domain.Analysis{ID: "crashed", Status: domain.StatusProcessing, UpdatedAt: old},
		&domain.Analysis{ID: "fresh", Status: domain.StatusPending, UpdatedAt: now.Add(-time.Minute)},
		&domain.Analysis{ID: "done", Status: domain.StatusCompleted, UpdatedAt: old},
	)
	uc := NewProcessAnalysisUseCase(repo, newStorageFake(), &classifierFake{}, nil, 0)
	uc.now = func() time.Time { return now }

	n, err := uc.FailStale(context.Background(), 30*time.Minute)
	if err != nil {
		t.Fatalf("FailStale() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 stale analyses, got %d", n)
	}
	for id, want := range map[string]domain.AnalysisStatus{
		"lost":    domain.StatusFailed,
		"crashed": domain.StatusFailed,
		"fresh":   domain.StatusPending,
		"done":    domain.StatusCompleted,
	} {
		if got := repo.items[id].Status; got != want {
			t.Fatalf("%s: status = %s, want %s", id, got, want)
		}
	}
	if repo.items["lost"].Error == "" {
		t.Fatalf("stale analysis must carry an error message")
	}
	if len(repo.staleCalls) != 2 || !repo.staleCalls[0].cutoff.Equal(now.Add(-30*time.Minute)) {
		t.Fatalf("unexpected sweep calls: %+v", repo.staleCalls)
	}

	if n, err := uc.FailStale(context.Background(), 0); n != 0 || err != nil {
		t.Fatalf("disabled sweep must be a no-op, got %d %v", n, err)
	}
}

func TestProcessByIDMissingImageFails(t *testing.T) {
	storage := newStorageFake()
	seed := seededPending(storage, nil)
	delete(storage.objects, seed.ImageKey)
	repo := newAnalysisRepoFake(seed)
	uc := NewProcessAnalysisUseCase(repo, storage, &classifierFake{}, nil, 0)

	if err := uc.ProcessByID(context.Background(), "a1"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if repo.items["a1"].Status != domain.StatusFailed {
		t.Fatalf("expected failed status")
	}
}

func TestSubmitProcessGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newAnalysisRepoFake()
	storage := newStorageFake()
	queue := &queueFake{}
	identification := domain.PlantIdentification{
		PlantName:    "Tomato",
		PlantGenus:   "Solanum",
		PlantSpecies: "Solanum lycopersicum",
		Probability:  0.88,
		Diseases: []domain.Disease{{
			Name:        "Early Blight",
			Probability: 0.72,
			Symptoms:    []string{"lá úa"},
			Treatments:  []string{"Cắt bỏ lá bệnh"},
		}},
	}

	submitted, err := NewSubmitAnalysisUseCase(repo, storage, queue, 0).Submit(ctx, domain.SubmitInput{
		UserID: "owner",
		Body:   bytes.NewReader(pngHeader),
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	processor := NewProcessAnalysisUseCase(repo, storage, &classifierFake{result: identification}, nil, 0)
	if err := processor.ProcessByID(ctx, queue.published[0]); err != nil {
		t.Fatalf("ProcessByID() error = %v", err)
	}

	service := NewAnalysisService(repo, storage, nil, nil)
	got, err := service.Get(ctx, submitted.ID, "owner")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.PlantName != identification.PlantName || got.PlantGenus != identification.PlantGenus || got.PlantSpecies != identification.PlantSpecies {
		t.Fatalf("plant fields differ: %+v", got)
	}
	if !reflect.DeepEqual(got.Diseases, identification.Diseases) {
		t.Fatalf("disease fields differ: %+v", got.Diseases)
	}

	if _, err := service.Get(ctx, submitted.ID, "stranger"); !domain.IsKind(err, domain.ErrAccessDenied) {
		t.Fatalf("expected access denied for non-owner, got %v", err)
	}
}
