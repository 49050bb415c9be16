// Package api serves the read-only search surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mosport/venue-signal/internal/model"
	"github.com/mosport/venue-signal/internal/search"
)

// Searcher answers the search and discovery queries.
type Searcher interface {
	Search(ctx context.Context, query string, lat, lon float64, limit int) ([]search.Result, error)
	TrendingTags(ctx context.Context, limit int, loc *search.Location) ([]search.TagCount, error)
	TrendingEvents(ctx context.Context, limit int) ([]model.TrendingEvent, error)
	FallbackVenues(ctx context.Context, loc *search.Location, limit int) ([]search.Result, error)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunLister reads the tier run log.
type RunLister interface {
	ListTierRuns(ctx context.Context, tier model.Tier, limit int) ([]model.TierRun, error)
}

const maxLimit = 100

// Server wires handlers to their backends.
type Server struct {
	search  Searcher
	health  Pinger
	runs    RunLister
	metrics http.Handler
	origins []string
}

// Option configures a Server.
type Option func(*Server)

// WithHealth makes /health ping the store.
func WithHealth(p Pinger) Option { return func(s *Server) { s.health = p } }

// WithRuns exposes /v1/tiers/runs.
func WithRuns(r RunLister) Option { return func(s *Server) { s.runs = r } }

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

// WithAllowedOrigins sets the CORS origins. Default is any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// New creates a Server.
func New(s Searcher, opts ...Option) *Server {
	srv := &Server{search: s, origins: []string{"*"}}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/search", s.handleSearch)
		r.Get("/trending/tags", s.handleTrendingTags)
		r.Get("/trending/events", s.handleTrendingEvents)
		r.Get("/venues/fallback", s.handleFallback)
		if s.runs != nil {
			r.Get("/tiers/runs", s.handleTierRuns)
		}
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("component", "api"),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			zap.L().Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	loc, err := parseLocation(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if loc == nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := s.search.Search(r.Context(), query, loc.Lat, loc.Lon, limit)
	if err != nil {
		s.searchError(w, err)
		return
	}
	if results == nil {
		results = []search.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query, "results": results})
}

func (s *Server) handleTrendingTags(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc, err := parseLocation(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tags, err := s.search.TrendingTags(r.Context(), limit, loc)
	if err != nil {
		s.searchError(w, err)
		return
	}
	if tags == nil {
		tags = []search.TagCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (s *Server) handleTrendingEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := s.search.TrendingEvents(r.Context(), limit)
	if err != nil {
		s.searchError(w, err)
		return
	}
	if events == nil {
		events = []model.TrendingEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleFallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc, err := parseLocation(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	venues, err := s.search.FallbackVenues(r.Context(), loc, limit)
	if err != nil {
		s.searchError(w, err)
		return
	}
	if venues == nil {
		venues = []search.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"venues": venues})
}

func (s *Server) handleTierRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var tier model.Tier
	if raw := q.Get("tier"); raw != "" {
		t, err := model.ParseTier(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		tier = t
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit == 0 {
		limit = 20
	}

	runs, err := s.runs.ListTierRuns(r.Context(), tier, limit)
	if err != nil {
		zap.L().Error("list tier runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if runs == nil {
		runs = []model.TierRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) searchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, search.ErrEmptyQuery), errors.Is(err, search.ErrInvalidLocation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		zap.L().Error("search request failed", zap.String("component", "api"), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// parseLocation returns nil when both coordinates are absent.
func parseLocation(latRaw, lonRaw string) (*search.Location, error) {
	if latRaw == "" && lonRaw == "" {
		return nil, nil
	}
	if latRaw == "" || lonRaw == "" {
		return nil, eris.New("lat and lon must be given together")
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return nil, eris.New("lat must be a number")
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return nil, eris.New("lon must be a number")
	}
	return &search.Location{Lat: lat, Lon: lon}, nil
}

// parseLimit returns 0 (engine default) when raw is empty.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxLimit {
		return 0, eris.New("limit must be between 1 and 100")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
