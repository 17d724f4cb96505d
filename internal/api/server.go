// Package api exposes the status HTTP interface: health probes, metrics,
// and per-source health queries for the UI layer. It surfaces aggregate
// status only, never raw failure detail.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/newsloom/ingestd/internal/ingest"
)

// StatusProvider answers per-source health queries; implemented by the
// health tracker.
type StatusProvider interface {
	Status(ctx context.Context, sourceID string) (ingest.StatusReport, error)
}

// Server wires HTTP handlers to the stores and the health tracker.
type Server struct {
	router  chi.Router
	sources ingest.SourceStore
	status  StatusProvider
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(sources ingest.SourceStore, status StatusProvider, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		sources: sources,
		status:  status,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sources", func(r chi.Router) {
			r.Get("/", s.listSources)
			r.Get("/{source_id}/status", s.getSourceStatus)
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

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type sourceSummary struct {
	ID     string              `json:"id"`
	URL    string              `json:"url"`
	Type   ingest.SourceType   `json:"type"`
	Status ingest.SourceStatus `json:"status"`
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.sources.List(r.Context())
	if err != nil {
		s.logger.Error("list sources failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list sources failed"})
		return
	}
	out := make([]sourceSummary, 0, len(sources))
	for _, src := range sources {
		out = append(out, sourceSummary{
			ID:     src.ID,
			URL:    src.URL,
			Type:   src.Type,
			Status: src.Status,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getSourceStatus(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "source_id")
	report, err := s.status.Status(r.Context(), sourceID)
	if err != nil {
		if errors.Is(err, ingest.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "source not found"})
			return
		}
		s.logger.Error("source status failed",
			zap.String("source_id", sourceID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "status lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write response failed", zap.Error(err))
	}
}
