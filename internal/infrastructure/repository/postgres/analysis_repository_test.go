package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
)

func newAnalysisRepoWithMock(t *testing.T) (*AnalysisRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	repo := NewAnalysisRepository(db)
	repo.now = func() time.Time { return time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC) }
	return repo, mock, func() { _ = db.Close() }
}

var analysisColumnNames = []string{
	"id", "user_id", "image_url", "image_key", "status", "plant_name", "plant_family", "plant_genus", "plant_species",
	"confidence", "diseases", "health_status", "weather", "latitude", "longitude", "notes", "tags", "is_public",
	"processing_time_ms", "wiki_description", "wiki_url", "error_message", "created_at", "updated_at",
}

func completedRow(id string, created time.Time) []driver.Value {
	return []driver.Value{
		id, "user-1", "http://img/" + id, "analyses/user-1/" + id + "_leaf.png", "completed", "Tomato", "Solanaceae", "Solanum", "lycopersicum",
		87, []byte(`[{"name":"Early Blight","probability":0.72,"symptoms":["spots"],"treatments":["copper"],"confidence":72,"severity":"high"}]`),
		"sick", []byte(`{"temperature":28,"humidity":70,"description":"nắng","location":"Hà Nội"}`), 21.03, 105.85, "", []byte(`["garden"]`), true,
		int64(1450), "", "", "", created, created,
	}
}

func TestAnalysisGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newAnalysisRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, user_id, image_url").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrAnalysisNotFound) {
		t.Fatalf("expected ErrAnalysisNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAnalysisGetByIDDecodesColumns(t *testing.T) {
	repo, mock, done := newAnalysisRepoWithMock(t)
	defer done()

	created := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, user_id, image_url").
		WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows(analysisColumnNames).AddRow(completedRow("a-1", created)...))

	got, err := repo.GetByID(context.Background(), "a-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != domain.StatusCompleted || got.HealthStatus != domain.HealthSick || got.Confidence != 87 {
		t.Fatalf("unexpected analysis: %+v", got)
	}
	if len(got.Diseases) != 1 || got.Diseases[0].Probability != 0.72 || got.Diseases[0].Severity() != domain.SeverityHigh {
		t.Fatalf("unexpected diseases: %+v", got.Diseases)
	}
	if got.Location == nil || got.Location.Lat != 21.03 || got.Weather == nil || got.Weather.Location != "Hà Nội" {
		t.Fatalf("unexpected location/weather: %+v %+v", got.Location, got.Weather)
	}
	if got.ProcessingTimeMS == nil || *got.ProcessingTimeMS != 1450 || len(got.Tags) != 1 {
		t.Fatalf("unexpected processing time or tags: %+v", got)
	}
}

func TestTransitionStatusConflictWhenStatusMoved(t *testing.T) {
	repo, mock, done := newAnalysisRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE analyses").
		WithArgs("a-1", "pending", "processing", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM analyses").
		WithArgs("a-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("processing"))

	err := repo.TransitionStatus(context.Background(), "a-1", domain.StatusPending, domain.StatusProcessing, "")
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTransitionStatusNotFound(t *testing.T) {
	repo, mock, done := newAnalysisRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE analyses").
		WithArgs("missing", "processing", "failed", "boom", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM analyses").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	err := repo.TransitionStatus(context.Background(), "missing", domain.StatusProcessing, domain.StatusFailed, "boom")
	if !domain.IsKind(err, domain.ErrAnalysisNotFound) {
		t.Fatalf("expected ErrAnalysisNotFound, got %v", err)
	}
}

func TestTransitionStatusRejectsIllegalEdgeWithoutQuery(t *testing.T) {
	repo, mock, done := newAnalysisRepoWithMock(t)
	defer done()

	err := repo.TransitionStatus(context.Background(), "a-1", domain.StatusCompleted, domain.StatusPending, "")
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveResultRequiresProcessing(t *testing.T) {
	repo, mock, done := newAnalysisRepoWithMock(t)
	defer done()

	result := domain.NewAnalysisResult(domain.PlantIdentification{PlantName: "Rose", Probability: 0.9}, nil, 2*time.Second)
	mock.ExpectExec("UPDATE analyses").
		WithArgs("a-1", "completed", "Rose", "", "", "", 90, sqlmock.AnyArg(), "healthy", nil, int64(2000), "", "", sqlmock.AnyArg(), "processing").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SaveResult(context.Background(), "a-1", result); err != nil {
		t.Fatalf("SaveResult() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListPaginatesWithCount(t *testing.T) {
	repo, mock, done := newAnalysisRepoWithMock(t)
	defer done()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM analyses`).
		WithArgs("user-1", "").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(15))

	rows := sqlmock.NewRows(analysisColumnNames)
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rows.AddRow(completedRow("a-"+string(rune('a'+i)), base.Add(-time.Duration(i)*time.Hour))...)
	}
	mock.ExpectQuery("SELECT id, user_id").
		WithArgs("user-1", "", 10, 10).
		WillReturnRows(rows)

	query := domain.AnalysisListQuery{Page: 2, PageSize: 10}.Normalize()
	items, total, err := repo.List(context.Background(), "user-1", query)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 15 || len(items) != 5 {
		t.Fatalf("expected 5 of 15, got %d of %d", len(items), total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListSkipsSelectWhenEmpty(t *testing.T) {
	repo, mock, done := newAnalysisRepoWithMock(t)
	defer done()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM analyses`).
		WithArgs("user-1", "failed").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	items, total, err := repo.List(context.Background(), "user-1", domain.AnalysisListQuery{Page: 1, PageSize: 10, Status: domain.StatusFailed})
	if err != nil || total != 0 || items == nil || len(items) != 0 {
		t.Fatalf("unexpected result: %v %d %v", items, total, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListNearbyScansDistance(t *testing.T) {
	repo, mock, done := newAnalysisRepoWithMock(t)
	defer done()

	created := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	cols := append(append([]string{}, analysisColumnNames...), "distance_km")
	mock.ExpectQuery("distance_km").
		WithArgs(21.0, 105.8, sqlmock.AnyArg(), sqlmock.AnyArg(), "completed", "user-2", 5.0, 20).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(append(completedRow("a-1", created), 4.56789)...))

	got, err := repo.ListNearby(context.Background(), "user-2", domain.NearbyQuery{
		Point:    domain.GeoPoint{Lat: 21.0, Lon: 105.8},
		RadiusKM: 5,
		Limit:    20,
	})
	if err != nil {
		t.Fatalf("ListNearby() error = %v", err)
	}
	if len(got) != 1 || got[0].DistanceKM != 4.57 || got[0].Analysis.ID != "a-1" {
		t.Fatalf("unexpected nearby result: %+v", got)
	}
}

func TestStatsAggregatesGroups(t *testing.T) {
	repo, mock, done := newAnalysisRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT status, health_status, COUNT").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "health_status", "count"}).
			AddRow("completed", "healthy", 3).
			AddRow("completed", "sick", 2).
			AddRow("pending", "unknown", 1).
			AddRow("failed", "unknown", 4))

	stats, err := repo.Stats(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 10 || stats.Healthy != 3 || stats.Sick != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.ByStatus[domain.StatusFailed] != 4 || stats.ByStatus[domain.StatusProcessing] != 0 {
		t.Fatalf("unexpected by-status: %+v", stats.ByStatus)
	}
}

func TestDeleteReturnsNotFoundWhenNoRows(t *testing.T) {
	repo, mock, done := newAnalysisRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM analyses").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), "missing"); !domain.IsKind(err, domain.ErrAnalysisNotFound) {
		t.Fatalf("expected ErrAnalysisNotFound, got %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(schemaLockID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS analyses").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAnalysisFailStaleUpdatesOldRows(t *testing.T) {
	repo, mock, done := newAnalysisRepoWithMock(t)
	defer done()

	cutoff := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE analyses").
		WithArgs("failed", "analysis timed out", sqlmock.AnyArg(), "pending", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.FailStale(context.Background(), domain.StatusPending, cutoff, "analysis timed out")
	if err != nil {
		t.Fatalf("FailStale() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows failed, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAnalysisFailStaleRejectsTerminalStatus(t *testing.T) {
	repo, mock, done := newAnalysisRepoWithMock(t)
	defer done()

	if _, err := repo.FailStale(context.Background(), domain.StatusCompleted, time.Now(), "x"); !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
