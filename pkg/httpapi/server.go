// Package httpapi exposes the resolution pipeline over a small HTTP API for
// local diagnostics and for callers that live outside the process.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillrouter/pkg/catalog"
	"github.com/jingkaihe/skillrouter/pkg/logger"
	"github.com/jingkaihe/skillrouter/pkg/planner"
	"github.com/jingkaihe/skillrouter/pkg/router"
	"github.com/jingkaihe/skillrouter/pkg/session"
)

// Server serves the resolve/commit/explain/skills endpoints.
type Server struct {
	core          *router.Router
	catalog       *catalog.Store
	mux           *mux.Router
	httpServer    *http.Server
	defaultBudget int
}

// Config holds server settings.
type Config struct {
	Host          string
	Port          int
	DefaultBudget int
}

// NewServer creates an HTTP server around a router and its catalog store.
func NewServer(core *router.Router, cat *catalog.Store, cfg Config) *Server {
	if cfg.DefaultBudget <= 0 {
		cfg.DefaultBudget = router.DefaultBudget
	}
	s := &Server{
		core:          core,
		catalog:       cat,
		mux:           mux.NewRouter(),
		defaultBudget: cfg.DefaultBudget,
	}
	s.routes()
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api").Subrouter()
	api.HandleFunc("/resolve", s.handleResolve).Methods("POST")
	api.HandleFunc("/commit", s.handleCommit).Methods("POST")
	api.HandleFunc("/explain", s.handleExplain).Methods("GET")
	api.HandleFunc("/skills", s.handleSkills).Methods("GET")
	api.HandleFunc("/skills/{name}", s.handleSkill).Methods("GET")
	api.HandleFunc("/reload", s.handleReload).Methods("POST")
}

// Handler returns the underlying HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start begins serving and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	logger.G(ctx).WithField("addr", s.httpServer.Addr).Info("http api listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server failed")
	}
}

type resolveRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
	Budget    int    `json:"budget"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid request body"))
		return
	}
	if req.SessionID == "" {
		req.SessionID = session.NewSessionID()
	}
	if req.Budget <= 0 {
		req.Budget = s.defaultBudget
	}

	plan, err := s.core.ResolveLoadPlan(r.Context(), req.Query, req.SessionID, req.Budget)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// handleCommit accepts the load plan the caller received from /api/resolve
// and marks its documents as delivered.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var plan planner.LoadPlan
	if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid request body"))
		return
	}
	if err := s.core.CommitLoaded(r.Context(), &plan); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"committed": len(plan.Items)})
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	sessionID := r.URL.Query().Get("session_id")

	expl, err := s.core.Explain(r.Context(), query, sessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, expl)
}

func (s *Server) handleSkills(w http.ResponseWriter, r *http.Request) {
	snap := s.catalog.Snapshot()

	parseErrs := make([]string, 0, len(snap.ParseErrors()))
	for _, perr := range snap.ParseErrors() {
		parseErrs = append(parseErrs, perr.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"skills":       snap.Skills(),
		"parse_errors": parseErrs,
	})
}

func (s *Server) handleSkill(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	skill := s.catalog.Snapshot().Lookup(name)
	if skill == nil {
		writeError(w, http.StatusNotFound, errors.Errorf("skill %q not found", name))
		return
	}
	writeJSON(w, http.StatusOK, skill)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	snap, err := s.catalog.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"skills":       snap.Len(),
		"parse_errors": len(snap.ParseErrors()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
