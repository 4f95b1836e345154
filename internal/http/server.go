package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cartridge/unity-actor/internal/actor"
	"github.com/cartridge/unity-actor/internal/metrics"
	"github.com/cartridge/unity-actor/internal/middleware"
	"github.com/cartridge/unity-actor/internal/storage"
)

const defaultEpisodeLimit = 50

// ProgressReporter exposes the state of a running actor.
type ProgressReporter interface {
	Progress() actor.Progress
}

// Server serves the actor status API.
type Server struct {
	store    storage.Backend
	progress ProgressReporter
	metrics  *metrics.Collector
	logger   zerolog.Logger
}

// NewServer constructs a Server instance. collector may be nil.
func NewServer(store storage.Backend, progress ProgressReporter, collector *metrics.Collector, logger zerolog.Logger) *Server {
	return &Server{store: store, progress: progress, metrics: collector, logger: logger}
}

// Routes builds the HTTP router for the status API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CorrelationID)
	r.Use(middleware.RequestLogger(s.logger, s.metrics))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/episodes", s.handleListEpisodes)
		r.Get("/episodes/{episodeID}", s.handleGetEpisode)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statsResponse struct {
	Progress actor.Progress `json:"progress"`
	History  *storage.Stats `json:"history"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statsResponse{Progress: s.progress.Progress(), History: stats})
}

func (s *Server) handleListEpisodes(w http.ResponseWriter, r *http.Request) {
	limit := defaultEpisodeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	records, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"episodes": records})
}

func (s *Server) handleGetEpisode(w http.ResponseWriter, r *http.Request) {
	record, err := s.store.Get(r.Context(), chi.URLParam(r, "episodeID"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}
