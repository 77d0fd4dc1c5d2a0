// Package api exposes the HTTP interface for the hero statistics store.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ow2stats/herostats/internal/metrics"
	"github.com/ow2stats/herostats/internal/stats"
	"github.com/ow2stats/herostats/internal/store"
)

// ReadyCheck reports whether a downstream dependency is reachable.
type ReadyCheck func(ctx context.Context) error

// Server wires HTTP handlers to the hero statistics store.
type Server struct {
	router chi.Router
	store  store.HeroStatStore
	ready  ReadyCheck
	logger *zap.Logger
}

// Config controls the HTTP surface.
type Config struct {
	RequestTimeout time.Duration
	APIKey         string
}

// NewServer constructs a Server with middleware and routes.
func NewServer(st store.HeroStatStore, ready ReadyCheck, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	s := &Server{
		store:  st,
		ready:  ready,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))
	if cfg.APIKey != "" {
		r.Use(apiKeyMiddleware(cfg.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/heroes", func(r chi.Router) {
			r.Get("/", s.listHeroStats)
			r.Post("/", s.createHeroStat)
			r.Post("/batch", s.batchUpsert)
		})
		r.Route("/hero/{id}", func(r chi.Router) {
			r.Get("/", s.getHeroStat)
			r.Put("/", s.updateHeroStat)
			r.Delete("/", s.deleteHeroStat)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// batchResponse is the reply shape of the batch upload endpoint. Conflicting
// keys are resolved by the store's upsert and count as successful.
type batchResponse struct {
	TotalSubmitted int                    `json:"total_submitted"`
	Successful     int                    `json:"successful"`
	Errors         []store.BatchItemError `json:"errors"`
}

func (s *Server) batchUpsert(w http.ResponseWriter, r *http.Request) {
	var records []stats.HeroStatRecord
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(records) == 0 {
		writeJSON(w, http.StatusOK, batchResponse{Errors: []store.BatchItemError{}})
		return
	}

	resp := batchResponse{
		TotalSubmitted: len(records),
		Errors:         []store.BatchItemError{},
	}

	// Reject malformed records up front so the store only sees valid ones;
	// store-level failures keep their original batch index.
	valid := make([]stats.HeroStatRecord, 0, len(records))
	indexes := make([]int, 0, len(records))
	for i, rec := range records {
		if reason := validateRecord(rec); reason != "" {
			resp.Errors = append(resp.Errors, store.BatchItemError{
				Index:   i,
				HeroID:  rec.HeroID,
				Message: reason,
			})
			continue
		}
		valid = append(valid, rec)
		indexes = append(indexes, i)
	}

	if len(valid) > 0 {
		outcome, err := s.store.UpsertBatch(r.Context(), valid)
		if err != nil {
			s.logger.Error("batch upsert failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "batch upsert failed")
			return
		}
		resp.Successful = outcome.Successful
		for _, e := range outcome.Errors {
			e.Index = indexes[e.Index]
			resp.Errors = append(resp.Errors, e)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listHeroStats(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list hero stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list hero stats")
		return
	}
	if rows == nil {
		rows = []store.HeroStatRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(rows),
		"results": rows,
	})
}

func (s *Server) createHeroStat(w http.ResponseWriter, r *http.Request) {
	var rec stats.HeroStatRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if reason := validateRecord(rec); reason != "" {
		writeError(w, http.StatusBadRequest, reason)
		return
	}
	row, err := s.store.Create(r.Context(), rec)
	if err != nil {
		s.logger.Error("create hero stat failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create hero stat")
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (s *Server) getHeroStat(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	row, err := s.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "hero stat not found")
		return
	}
	if err != nil {
		s.logger.Error("get hero stat failed", zap.Int64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load hero stat")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

type updateRatesRequest struct {
	PickRate *float64 `json:"pick_rate"`
	WinRate  *float64 `json:"win_rate"`
}

func (s *Server) updateHeroStat(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req updateRatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if reason := validateRate("pick_rate", req.PickRate); reason != "" {
		writeError(w, http.StatusBadRequest, reason)
		return
	}
	if reason := validateRate("win_rate", req.WinRate); reason != "" {
		writeError(w, http.StatusBadRequest, reason)
		return
	}
	row, err := s.store.UpdateRates(r.Context(), id, req.PickRate, req.WinRate)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "hero stat not found")
		return
	}
	if err != nil {
		s.logger.Error("update hero stat failed", zap.Int64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update hero stat")
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) deleteHeroStat(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err = s.store.Delete(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "hero stat not found")
		return
	}
	if err != nil {
		s.logger.Error("delete hero stat failed", zap.Int64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete hero stat")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func parseListFilter(r *http.Request) (store.ListFilter, error) {
	q := r.URL.Query()
	filter := store.ListFilter{
		HeroID:   q.Get("hero_id"),
		Region:   q.Get("region"),
		Platform: q.Get("platform"),
		Gamemode: q.Get("gamemode"),
		Map:      q.Get("map"),
		Tier:     q.Get("tier"),
	}
	if raw := q.Get("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return store.ListFilter{}, errors.New("since must be RFC3339")
		}
		filter.Since = ts
	}
	if raw := q.Get("until"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return store.ListFilter{}, errors.New("until must be RFC3339")
		}
		filter.Until = ts
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return store.ListFilter{}, errors.New("limit must be a non-negative integer")
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return store.ListFilter{}, errors.New("offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	return filter, nil
}

func validateRecord(rec stats.HeroStatRecord) string {
	switch {
	case rec.HeroID == "":
		return "hero_id is required"
	case rec.Region == "":
		return "region is required"
	case rec.Platform == "":
		return "platform is required"
	case rec.Gamemode == "":
		return "gamemode is required"
	case rec.Map == "":
		return "map is required"
	case rec.ObservedAt.IsZero():
		return "observed_at is required"
	}
	if reason := validateRate("pick_rate", rec.PickRate); reason != "" {
		return reason
	}
	if reason := validateRate("win_rate", rec.WinRate); reason != "" {
		return reason
	}
	return ""
}

func validateRate(field string, v *float64) string {
	if v == nil {
		return ""
	}
	if *v < 0 || *v > 100 {
		return field + " must be between 0 and 100"
	}
	return ""
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		metrics.ObserveRequestDuration(r.Method, route, elapsed)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
