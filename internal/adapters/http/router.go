package httpadapter

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/plant-health-assistant/internal/config"
	"github.com/kirillkom/plant-health-assistant/internal/core/domain"
	"github.com/kirillkom/plant-health-assistant/internal/core/ports"
)

//go:embed openapi.json
var openAPIDocument []byte

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Observer receives API-level counters. The prometheus HTTP metrics satisfy it.
type Observer interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
	RecordSubmission(err error)
	RecordRejected(reason string)
}

type Dependencies struct {
	Submitter ports.AnalysisSubmitter
	Analyses  ports.AnalysisReader
	Chats     ports.ChatService
	Weather   ports.WeatherService

	// Realtime serves the websocket endpoint.
	Realtime http.Handler
	// Uploads serves stored images under UploadsPath when storage is local.
	Uploads     http.Handler
	UploadsPath string

	Checks  map[string]HealthCheck
	Metrics Observer
}

type Router struct {
	cfg     config.Config
	deps    Dependencies
	limiter *ipRateLimiter
}

// NewRouter validates the embedded API description and prepares the handler.
func NewRouter(cfg config.Config, deps Dependencies) (*Router, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPIDocument)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}

	return &Router{
		cfg:     cfg,
		deps:    deps,
		limiter: newIPRateLimiter(cfg.APIRateLimitRPS, cfg.APIRateLimitBurst),
	}, nil
}

func (rt *Router) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.Use(requestIDMiddleware)
	mux.Use(rt.accessLogMiddleware)
	if rt.deps.Metrics != nil {
		mux.Use(rt.deps.Metrics.Middleware)
	}
	mux.Use(rt.recoverMiddleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(rt.cfg.ClientURL),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", userIDHeader, requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, "Retry-After", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	mux.Get("/healthz", rt.healthz)
	mux.Get("/openapi.json", rt.openAPI)
	if rt.deps.Metrics != nil {
		mux.Method(http.MethodGet, "/metrics", rt.deps.Metrics.Handler())
	}
	if rt.deps.Realtime != nil {
		mux.Handle("/ws", rt.deps.Realtime)
	}
	if rt.deps.Uploads != nil {
		prefix := "/" + strings.Trim(rt.deps.UploadsPath, "/")
		if prefix == "/" {
			prefix = "/uploads"
		}
		mux.Handle(prefix+"/*", http.StripPrefix(prefix, rt.deps.Uploads))
	}

	mux.Route("/api", func(api chi.Router) {
		api.Get("/health", rt.health)
		api.Group(func(protected chi.Router) {
			protected.Use(rt.rateLimitMiddleware)
			protected.Use(func(next http.Handler) http.Handler {
				return backpressureMiddleware(next, rt.cfg.APIMaxInFlight, rt.cfg.APIQueueTimeout, rt.recordRejected)
			})
			protected.Use(rt.authMiddleware)

			protected.Route("/analysis", func(r chi.Router) {
				r.Post("/", rt.wrap(rt.submitAnalysis))
				r.Get("/", rt.wrap(rt.listAnalyses))
				r.Get("/nearby", rt.wrap(rt.nearbyAnalyses))
				r.Get("/stats", rt.wrap(rt.analysisStats))
				r.Get("/export", rt.wrap(rt.exportAnalyses))
				r.Get("/{id}", rt.wrap(rt.getAnalysis))
				r.Patch("/{id}/visibility", rt.wrap(rt.setVisibility))
				r.Delete("/{id}", rt.wrap(rt.deleteAnalysis))
			})
			protected.Route("/chat", func(r chi.Router) {
				r.Get("/", rt.wrap(rt.listChats))
				r.Post("/", rt.wrap(rt.startChat))
				r.Post("/message", rt.wrap(rt.sendMessage))
				r.Get("/{chatId}", rt.wrap(rt.chatHistory))
				r.Post("/{chatId}/message", rt.wrap(rt.sendMessage))
				r.Delete("/{chatId}", rt.wrap(rt.deactivateChat))
			})
			protected.Route("/weather", func(r chi.Router) {
				r.Get("/coordinates", rt.wrap(rt.weatherByCoordinates))
				r.Get("/city", rt.wrap(rt.weatherByCity))
				r.Get("/forecast", rt.wrap(rt.weatherForecast))
			})
		})
	})
	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (rt *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			rt.writeError(w, r, err)
		}
	}
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err.Error(),
		)
	}
	writeJSON(w, status, map[string]string{
		"error":      errorMessage(err, status, rt.cfg.IsDevelopment()),
		"request_id": requestIDFromContext(r.Context()),
	})
}

func (rt *Router) recordRejected(reason string) {
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordRejected(reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// health runs every dependency check under a shared deadline.
func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(rt.deps.Checks))
	for name, check := range rt.deps.Checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = "down"
			slog.Warn("health_check_failed", "check", name, "error", err.Error())
			continue
		}
		checks[name] = "ok"
	}
	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{
		"status":    overall,
		"checks":    checks,
		"timestamp": time.Now().UTC(),
	})
}

func (rt *Router) openAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPIDocument)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := decoder.Decode(dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("invalid json body"))
	}
	return nil
}

// bindQuery binds a form-style query parameter. Optional parameters take a
// pointer to a pointer and stay nil when absent.
func bindQuery(r *http.Request, name string, required bool, dest any) error {
	if err := runtime.BindQueryParameter("form", true, required, name, r.URL.Query(), dest); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "bind query", err)
	}
	return nil
}

func intOr(value *int, fallback int) int {
	if value == nil {
		return fallback
	}
	return *value
}

func allowedOrigins(clientURL string) []string {
	var out []string
	for _, origin := range strings.Split(clientURL, ",") {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" {
			out = append(out, origin)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
