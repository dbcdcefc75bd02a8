// Package api exposes a single crawl.Engine's control surface (§6) over
// HTTP: the lifecycle verbs (navigate, pause, unpause, hard-pause,
// hard-unpause, shutdown) plus a progress readout.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sitecrawl/internal/crawler"
	"sitecrawl/internal/status"
)

// Server wires the control API onto a chi router.
type Server struct {
	engine *crawler.Engine
	logger *slog.Logger
	router chi.Router
}

// NewServer builds a Server bound to a single engine instance.
func NewServer(engine *crawler.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{engine: engine, logger: logger}
	s.router = s.routes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/progress", s.handleProgress)
	r.Get("/metrics", status.Handler().ServeHTTP)

	r.Post("/navigate", s.handleNavigate)
	r.Post("/pause", s.handlePause)
	r.Post("/unpause", s.handleUnpause)
	r.Post("/hard-pause", s.handleHardPause)
	r.Post("/hard-unpause", s.handleHardUnpause)
	r.Post("/shutdown", s.handleShutdown)
	r.Post("/reset", s.handleReset)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"state":  s.engine.State().String(),
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	status.Record(status.Progress{
		ActuallyVisited: snap.ActuallyVisited,
		VisitedCounter:  snap.VisitedCounter,
		LinksScheduled:  snap.LinksScheduled,
		PagesScheduled:  snap.PagesScheduled,
		LeftToCrawl:     snap.LeftToCrawl,
		PercentComplete: snap.PercentComplete,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    s.engine.State().String(),
		"summary":  s.engine.CrawlProgress(),
		"snapshot": snap,
	})
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := s.engine.Navigate(context.Background()); err != nil {
			s.logger.Error("navigate returned an error", "err", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]any{"state": s.engine.State().String()})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.engine.Pause()
	writeJSON(w, http.StatusOK, map[string]any{"state": s.engine.State().String()})
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	s.engine.Unpause()
	writeJSON(w, http.StatusOK, map[string]any{"state": s.engine.State().String()})
}

func (s *Server) handleHardPause(w http.ResponseWriter, r *http.Request) {
	s.engine.HardPause()
	writeJSON(w, http.StatusOK, map[string]any{"state": s.engine.State().String()})
}

func (s *Server) handleHardUnpause(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.HardUnpause(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": s.engine.State().String()})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reset(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": s.engine.State().String()})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Shutdown(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": s.engine.State().String()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
