package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
)

const earthRadiusKM = 6371.0

const analysisColumns = `id, user_id, image_url, image_key, status, plant_name, plant_family, plant_genus, plant_species,
	confidence, diseases, health_status, weather, latitude, longitude, notes, tags, is_public,
	processing_time_ms, wiki_description, wiki_url, error_message, created_at, updated_at`

type AnalysisRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *AnalysisRepository) Create(ctx context.Context, a *domain.Analysis) error {
	diseasesJSON, err := marshalJSON(a.Diseases, "[]")
	if err != nil {
		return fmt.Errorf("marshal diseases: %w", err)
	}
	tagsJSON, err := marshalJSON(a.Tags, "[]")
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	var lat, lon sql.NullFloat64
	if a.Location != nil {
		lat = sql.NullFloat64{Float64: a.Location.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: a.Location.Lon, Valid: true}
	}
	healthStatus := a.HealthStatus
	if healthStatus == "" {
		healthStatus = domain.HealthUnknown
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO analyses (
	id, user_id, image_url, image_key, status, diseases, health_status, latitude, longitude,
	notes, tags, is_public, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		a.ID, a.UserID, a.ImageURL, a.ImageKey, string(a.Status), diseasesJSON, string(healthStatus), lat, lon,
		a.Notes, tagsJSON, a.IsPublic, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrConflict, "insert analysis", err)
		}
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) GetByID(ctx context.Context, id string) (*domain.Analysis, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+analysisColumns+` FROM analyses WHERE id = $1`, id)
	a, err := scanAnalysis(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrAnalysisNotFound, "get analysis", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan analysis: %w", err)
	}
	return &a, nil
}

// TransitionStatus is a compare-and-set on status; concurrent workers lose with ErrConflict.
func (r *AnalysisRepository) TransitionStatus(ctx context.Context, id string, from, to domain.AnalysisStatus, errMessage string) error {
	if !domain.CanTransition(from, to) {
		return domain.WrapError(domain.ErrConflict, "transition analysis", fmt.Errorf("%s -> %s is not allowed", from, to))
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE analyses
SET status = $3, error_message = $4, updated_at = $5
WHERE id = $1 AND status = $2
`, id, string(from), string(to), errMessage, r.now())
	if err != nil {
		return fmt.Errorf("update analysis status: %w", err)
	}
	return r.expectOneRow(ctx, res, id, "transition analysis")
}

func (r *AnalysisRepository) SaveResult(ctx context.Context, id string, result domain.AnalysisResult) error {
	diseasesJSON, err := marshalJSON(result.Diseases, "[]")
	if err != nil {
		return fmt.Errorf("marshal diseases: %w", err)
	}
	var weatherJSON []byte
	if result.Weather != nil {
		if weatherJSON, err = json.Marshal(result.Weather); err != nil {
			return fmt.Errorf("marshal weather: %w", err)
		}
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE analyses
SET status = $2, plant_name = $3, plant_family = $4, plant_genus = $5, plant_species = $6,
	confidence = $7, diseases = $8, health_status = $9, weather = $10, processing_time_ms = $11,
	wiki_description = $12, wiki_url = $13, error_message = '', updated_at = $14
WHERE id = $1 AND status = $15
`,
		id, string(domain.StatusCompleted), result.PlantName, result.PlantFamily, result.PlantGenus, result.PlantSpecies,
		result.Confidence, diseasesJSON, string(result.HealthStatus), nullableJSON(weatherJSON), result.ProcessingTimeMS,
		result.WikiDescription, result.WikiURL, r.now(), string(domain.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("save analysis result: %w", err)
	}
	return r.expectOneRow(ctx, res, id, "save analysis result")
}

func (r *AnalysisRepository) FailStale(ctx context.Context, status domain.AnalysisStatus, cutoff time.Time, errMessage string) (int64, error) {
	if !domain.CanTransition(status, domain.StatusFailed) {
		return 0, domain.WrapError(domain.ErrConflict, "fail stale analyses", fmt.Errorf("%s -> failed is not allowed", status))
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE analyses
SET status = $1, error_message = $2, updated_at = $3
WHERE status = $4 AND updated_at < $5
`, string(domain.StatusFailed), errMessage, r.now(), string(status), cutoff)
	if err != nil {
		return 0, fmt.Errorf("fail stale analyses: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("fail stale analyses rows affected: %w", err)
	}
	return affected, nil
}

func (r *AnalysisRepository) List(ctx context.Context, userID string, query domain.AnalysisListQuery) ([]domain.Analysis, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM analyses
WHERE user_id = $1 AND ($2::text = '' OR status = $2::text)
`, userID, string(query.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count analyses: %w", err)
	}
	if total == 0 {
		return []domain.Analysis{}, 0, nil
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT `+analysisColumns+`
FROM analyses
WHERE user_id = $1 AND ($2::text = '' OR status = $2::text)
ORDER BY created_at DESC, id
LIMIT $3 OFFSET $4
`, userID, string(query.Status), query.PageSize, query.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list analyses: %w", err)
	}
	items, err := collectAnalyses(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *AnalysisRepository) ListAll(ctx context.Context, userID string) ([]domain.Analysis, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+analysisColumns+`
FROM analyses
WHERE user_id = $1
ORDER BY created_at DESC, id
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list all analyses: %w", err)
	}
	return collectAnalyses(rows)
}

// ListNearby returns completed analyses readable by requester within the radius,
// nearest first. A latitude band narrows the scan before the haversine filter.
func (r *AnalysisRepository) ListNearby(ctx context.Context, requester string, query domain.NearbyQuery) ([]domain.NearbyAnalysis, error) {
	latDelta := query.RadiusKM / earthRadiusKM * 180 / math.Pi
	rows, err := r.db.QueryContext(ctx, `
SELECT `+analysisColumns+`, distance_km FROM (
	SELECT *, 2 * 6371.0 * ASIN(SQRT(
		POWER(SIN(RADIANS(latitude - $1) / 2), 2) +
		COS(RADIANS($1)) * COS(RADIANS(latitude)) * POWER(SIN(RADIANS(longitude - $2) / 2), 2)
	)) AS distance_km
	FROM analyses
	WHERE latitude IS NOT NULL
		AND latitude BETWEEN $3 AND $4
		AND status = $5
		AND (user_id = $6 OR is_public)
) nearby
WHERE distance_km <= $7
ORDER BY distance_km, created_at DESC
LIMIT $8
`,
		query.Point.Lat, query.Point.Lon, query.Point.Lat-latDelta, query.Point.Lat+latDelta,
		string(domain.StatusCompleted), requester, query.RadiusKM, query.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list nearby analyses: %w", err)
	}
	defer rows.Close()

	out := make([]domain.NearbyAnalysis, 0)
	for rows.Next() {
		var distance float64
		a, err := scanAnalysis(rows, &distance)
		if err != nil {
			return nil, fmt.Errorf("scan nearby analysis: %w", err)
		}
		out = append(out, domain.NearbyAnalysis{Analysis: a, DistanceKM: math.Round(distance*100) / 100})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nearby analyses: %w", err)
	}
	return out, nil
}

func (r *AnalysisRepository) SetVisibility(ctx context.Context, id string, isPublic bool) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE analyses SET is_public = $2, updated_at = $3 WHERE id = $1
`, id, isPublic, r.now())
	if err != nil {
		return fmt.Errorf("update analysis visibility: %w", err)
	}
	return expectAffected(res, domain.ErrAnalysisNotFound, "set visibility", id)
}

func (r *AnalysisRepository) Stats(ctx context.Context, userID string) (domain.DashboardStats, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT status, health_status, COUNT(*)
FROM analyses
WHERE user_id = $1
GROUP BY status, health_status
`, userID)
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("query analysis stats: %w", err)
	}
	defer rows.Close()

	stats := domain.DashboardStats{ByStatus: map[domain.AnalysisStatus]int64{
		domain.StatusPending:    0,
		domain.StatusProcessing: 0,
		domain.StatusCompleted:  0,
		domain.StatusFailed:     0,
	}}
	for rows.Next() {
		var status, health string
		var count int64
		if err := rows.Scan(&status, &health, &count); err != nil {
			return domain.DashboardStats{}, fmt.Errorf("scan analysis stats: %w", err)
		}
		stats.Total += count
		stats.ByStatus[domain.AnalysisStatus(status)] += count
		if domain.AnalysisStatus(status) != domain.StatusCompleted {
			continue
		}
		switch domain.HealthStatus(health) {
		case domain.HealthHealthy:
			stats.Healthy += count
		case domain.HealthSick:
			stats.Sick += count
		}
	}
	if err := rows.Err(); err != nil {
		return domain.DashboardStats{}, fmt.Errorf("iterate analysis stats: %w", err)
	}
	return stats, nil
}

func (r *AnalysisRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM analyses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete analysis: %w", err)
	}
	return expectAffected(res, domain.ErrAnalysisNotFound, "delete analysis", id)
}

// expectOneRow separates a missing row from a row in an unexpected state.
func (r *AnalysisRepository) expectOneRow(ctx context.Context, res sql.Result, id, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected > 0 {
		return nil
	}
	var current string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM analyses WHERE id = $1`, id).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.WrapError(domain.ErrAnalysisNotFound, op, fmt.Errorf("id=%s", id))
	case err != nil:
		return fmt.Errorf("%s read status: %w", op, err)
	default:
		return domain.WrapError(domain.ErrConflict, op, fmt.Errorf("analysis %s is %s", id, current))
	}
}

func collectAnalyses(rows *sql.Rows) ([]domain.Analysis, error) {
	defer rows.Close()
	out := make([]domain.Analysis, 0)
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analyses: %w", err)
	}
	return out, nil
}

func scanAnalysis(row rowScanner, extra ...any) (domain.Analysis, error) {
	var a domain.Analysis
	var status, health string
	var diseasesRaw, tagsRaw, weatherRaw []byte
	var lat, lon sql.NullFloat64
	var processingMS sql.NullInt64

	dest := []any{
		&a.ID, &a.UserID, &a.ImageURL, &a.ImageKey, &status, &a.PlantName, &a.PlantFamily, &a.PlantGenus, &a.PlantSpecies,
		&a.Confidence, &diseasesRaw, &health, &weatherRaw, &lat, &lon, &a.Notes, &tagsRaw, &a.IsPublic,
		&processingMS, &a.WikiDescription, &a.WikiURL, &a.Error, &a.CreatedAt, &a.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.Analysis{}, err
	}

	a.Status = domain.AnalysisStatus(status)
	a.HealthStatus = domain.HealthStatus(health)
	a.Diseases = []domain.Disease{}
	if err := unmarshalJSON(diseasesRaw, &a.Diseases); err != nil {
		return domain.Analysis{}, fmt.Errorf("unmarshal diseases: %w", err)
	}
	a.Tags = []string{}
	if err := unmarshalJSON(tagsRaw, &a.Tags); err != nil {
		return domain.Analysis{}, fmt.Errorf("unmarshal tags: %w", err)
	}
	if len(weatherRaw) > 0 {
		var w domain.WeatherSnapshot
		if err := json.Unmarshal(weatherRaw, &w); err != nil {
			return domain.Analysis{}, fmt.Errorf("unmarshal weather: %w", err)
		}
		a.Weather = &w
	}
	if lat.Valid && lon.Valid {
		a.Location = &domain.GeoPoint{Lat: lat.Float64, Lon: lon.Float64}
	}
	if processingMS.Valid {
		ms := processingMS.Int64
		a.ProcessingTimeMS = &ms
	}
	return a, nil
}

func expectAffected(res sql.Result, kind error, op, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return domain.WrapError(kind, op, fmt.Errorf("id=%s", id))
	}
	return nil
}

// marshalJSON encodes nil values as fallback so NOT NULL JSONB columns stay valid.
func marshalJSON(v any, fallback string) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return []byte(fallback), nil
	}
	return data, nil
}

func unmarshalJSON(raw []byte, out any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
