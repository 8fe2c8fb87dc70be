package httpadapter

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
)

// multipartOverhead leaves room for form fields around the image part.
const multipartOverhead = 1 << 20

type submissionResponse struct {
	Message    string                `json:"message"`
	AnalysisID string                `json:"analysisId"`
	ImageURL   string                `json:"imageUrl"`
	Status     domain.AnalysisStatus `json:"status"`
}

func (rt *Router) submitAnalysis(w http.ResponseWriter, r *http.Request) error {
	maxImage := rt.cfg.MaxImageBytes
	if maxImage <= 0 {
		maxImage = 8 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImage+multipartOverhead)
	if err := r.ParseMultipartForm(maxImage); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.WrapError(domain.ErrInvalidInput, "submit analysis", fmt.Errorf("image exceeds %d bytes", maxImage))
		}
		return domain.WrapError(domain.ErrInvalidInput, "submit analysis", errors.New("multipart form with an image field is required"))
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "submit analysis", errors.New("image is required"))
	}
	defer file.Close()

	location, err := parseFormLocation(r.FormValue("lat"), r.FormValue("lon"))
	if err != nil {
		return err
	}
	isPublic := false
	if raw := strings.TrimSpace(r.FormValue("isPublic")); raw != "" {
		isPublic, err = strconv.ParseBool(raw)
		if err != nil {
			return domain.WrapError(domain.ErrInvalidInput, "submit analysis", fmt.Errorf("isPublic must be a boolean, got %q", raw))
		}
	}

	analysis, err := rt.deps.Submitter.Submit(r.Context(), domain.SubmitInput{
		UserID:      userIDFromContext(r.Context()),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
		Location:    location,
		Notes:       strings.TrimSpace(r.FormValue("notes")),
		Tags:        splitTags(r.FormValue("tags")),
		IsPublic:    isPublic,
	})
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordSubmission(err)
	}
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusCreated, submissionResponse{
		Message:    "Analysis started",
		AnalysisID: analysis.ID,
		ImageURL:   analysis.ImageURL,
		Status:     analysis.Status,
	})
	return nil
}

func (rt *Router) listAnalyses(w http.ResponseWriter, r *http.Request) error {
	var page, limit *int
	var status *string
	if err := bindQuery(r, "page", false, &page); err != nil {
		return err
	}
	if err := bindQuery(r, "limit", false, &limit); err != nil {
		return err
	}
	if err := bindQuery(r, "status", false, &status); err != nil {
		return err
	}

	query := domain.AnalysisListQuery{Page: intOr(page, 1), PageSize: intOr(limit, domain.DefaultPageSize)}
	if status != nil && *status != "" {
		parsed, err := domain.ParseAnalysisStatus(*status)
		if err != nil {
			return err
		}
		query.Status = parsed
	}

	result, err := rt.deps.Analyses.List(r.Context(), userIDFromContext(r.Context()), query)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, result)
	return nil
}

func (rt *Router) nearbyAnalyses(w http.ResponseWriter, r *http.Request) error {
	var lat, lon float64
	var radius *float64
	var limit *int
	if err := bindQuery(r, "lat", true, &lat); err != nil {
		return err
	}
	if err := bindQuery(r, "lon", true, &lon); err != nil {
		return err
	}
	if err := bindQuery(r, "radius", false, &radius); err != nil {
		return err
	}
	if err := bindQuery(r, "limit", false, &limit); err != nil {
		return err
	}

	query := domain.NearbyQuery{Point: domain.GeoPoint{Lat: lat, Lon: lon}, Limit: intOr(limit, 0)}
	if radius != nil {
		query.RadiusKM = *radius
	}
	items, err := rt.deps.Analyses.Nearby(r.Context(), userIDFromContext(r.Context()), query)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": items, "count": len(items)})
	return nil
}

func (rt *Router) analysisStats(w http.ResponseWriter, r *http.Request) error {
	stats, err := rt.deps.Analyses.Stats(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, stats)
	return nil
}

// exportAnalyses renders the whole document before writing so a failure can
// still produce a JSON error.
func (rt *Router) exportAnalyses(w http.ResponseWriter, r *http.Request) error {
	var buf bytes.Buffer
	contentType, err := rt.deps.Analyses.Export(r.Context(), userIDFromContext(r.Context()), &buf)
	if err != nil {
		return err
	}
	filename := fmt.Sprintf("plant-analyses-%s.xlsx", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
	return nil
}

func (rt *Router) getAnalysis(w http.ResponseWriter, r *http.Request) error {
	analysis, err := rt.deps.Analyses.Get(r.Context(), chi.URLParam(r, "id"), userIDFromContext(r.Context()))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, analysis)
	return nil
}

func (rt *Router) setVisibility(w http.ResponseWriter, r *http.Request) error {
	var req struct {
		IsPublic *bool `json:"isPublic"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	if req.IsPublic == nil {
		return domain.WrapError(domain.ErrInvalidInput, "set visibility", errors.New("isPublic is required"))
	}
	analysis, err := rt.deps.Analyses.SetVisibility(r.Context(), chi.URLParam(r, "id"), userIDFromContext(r.Context()), *req.IsPublic)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, analysis)
	return nil
}

func (rt *Router) deleteAnalysis(w http.ResponseWriter, r *http.Request) error {
	if err := rt.deps.Analyses.Delete(r.Context(), chi.URLParam(r, "id"), userIDFromContext(r.Context())); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Analysis deleted successfully"})
	return nil
}

// parseFormLocation accepts both coordinates or neither.
func parseFormLocation(rawLat, rawLon string) (*domain.GeoPoint, error) {
	rawLat, rawLon = strings.TrimSpace(rawLat), strings.TrimSpace(rawLon)
	if rawLat == "" && rawLon == "" {
		return nil, nil
	}
	if rawLat == "" || rawLon == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse location", errors.New("lat and lon must be provided together"))
	}
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse location", fmt.Errorf("invalid lat %q", rawLat))
	}
	lon, err := strconv.ParseFloat(rawLon, 64)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse location", fmt.Errorf("invalid lon %q", rawLon))
	}
	point := domain.GeoPoint{Lat: lat, Lon: lon}
	if err := point.Validate(); err != nil {
		return nil, err
	}
	return &point, nil
}

func splitTags(raw string) []string {
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
