// Package web provides the optional HTTP status server for the loader.
//
// The server exposes live run progress from the in-process tracker and,
// when persistence is configured, the run history recorded in PostgreSQL.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/bulkloader/internal/bulk"
	"github.com/JonMunkholm/bulkloader/internal/store"
)

// Server is the HTTP status server.
type Server struct {
	tracker *bulk.Tracker
	store   *store.Store // nil when persistence is disabled
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new status server. st may be nil.
func NewServer(tracker *bulk.Tracker, st *store.Store) *Server {
	s := &Server{
		tracker: tracker,
		store:   st,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Live run progress
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{runID}", s.handleGetRun)

		// Persisted run history
		r.Get("/history", s.handleHistory)
		r.Get("/history/{runID}/batches", s.handleHistoryBatches)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("starting status server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.tracker.Runs()
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, ok := s.tracker.Run(runID)
	if !ok {
		s.respondError(w, r, errNotFound("run", runID), http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, r, errPersistenceDisabled, http.StatusNotImplemented)
		return
	}

	runs, err := s.store.ListRuns(r.Context(), 50)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}
	respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleHistoryBatches(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, r, errPersistenceDisabled, http.StatusNotImplemented)
		return
	}
	runID := chi.URLParam(r, "runID")

	batches, err := s.store.GetRunBatches(r.Context(), runID)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if len(batches) == 0 {
		s.respondError(w, r, errNotFound("run", runID), http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, batches)
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("encode response", "error", err)
	}
}
