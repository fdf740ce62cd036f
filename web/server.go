// ABOUTME: HTTP status and dispatch server behind a chi router.
// ABOUTME: Lists manifest workflows, dispatches runs synchronously, and serves run history.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/2389-research/railcar/history"
	"github.com/2389-research/railcar/manifest"
	"github.com/2389-research/railcar/railway"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ServerConfig holds the configuration for the dispatch server.
type ServerConfig struct {
	Addr      string                       // listen address (default: "127.0.0.1:2389")
	Workflows []railway.WorkflowDescriptor // loaded manifest
	Registry  *railway.Registry            // step functions for dispatched runs
	History   *history.Store               // optional; nil disables the runs endpoints
}

// Server exposes workflows over HTTP: listing, synchronous dispatch, and run
// history queries.
type Server struct {
	addr      string
	workflows []railway.WorkflowDescriptor
	registry  *railway.Registry
	store     *history.Store
	events    railway.EventHandler
	router    chi.Router
}

// NewServer creates a dispatch server. Workflows are validated against the
// registry up front so a broken manifest fails at startup, not on first
// dispatch.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:2389"
	}
	if cfg.Registry == nil {
		cfg.Registry = railway.NewRegistry()
	}
	if len(cfg.Workflows) > 0 {
		if err := manifest.Validate(cfg.Workflows, cfg.Registry); err != nil {
			return nil, fmt.Errorf("server workflows: %w", err)
		}
	}

	s := &Server{
		addr:      cfg.Addr,
		workflows: cfg.Workflows,
		registry:  cfg.Registry,
		store:     cfg.History,
	}
	if cfg.History != nil {
		s.events = history.NewRecorder(cfg.History).Handle
	}
	s.router = s.buildRouter()
	return s, nil
}

// SetEventHandler adds a handler for engine events from dispatched runs.
// It composes after history recording rather than replacing it. Call before
// serving requests; the field is read without locking.
func (s *Server) SetEventHandler(handler railway.EventHandler) {
	if handler == nil {
		return
	}
	if prev := s.events; prev != nil {
		s.events = func(evt railway.EngineEvent) {
			prev(evt)
			handler(evt)
		}
		return
	}
	s.events = handler
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server. The write timeout is generous
// because dispatched runs execute synchronously inside the request.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	return srv.ListenAndServe()
}

// buildRouter constructs the chi router with all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/workflows", s.handleWorkflowList)
		r.Post("/workflows/{name}/run", s.handleWorkflowRun)
		r.Get("/runs", s.handleRunList)
		r.Get("/runs/{runID}", s.handleRunGet)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// workflowSummary is the list-view shape of a workflow.
type workflowSummary struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Dispatchable bool   `json:"dispatchable"`
	Steps        int    `json:"steps"`
}

func (s *Server) handleWorkflowList(w http.ResponseWriter, r *http.Request) {
	summaries := make([]workflowSummary, 0, len(s.workflows))
	for _, wf := range s.workflows {
		summaries = append(summaries, workflowSummary{
			Name:         wf.Name,
			Description:  wf.Description,
			Dispatchable: wf.Dispatchable,
			Steps:        len(wf.Steps),
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

// runRequest is the dispatch request body. The body may be empty.
type runRequest struct {
	Inputs map[string]any `json:"inputs"`
}

func (s *Server) handleWorkflowRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	wf := manifest.Find(s.workflows, name)
	if wf == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "workflow not found"})
		return
	}
	if !wf.Dispatchable {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "workflow is not dispatchable"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	// One engine per dispatch so the response can name the run.
	runID := railway.NewRunID()
	engine := railway.NewEngine(railway.EngineConfig{
		Registry:     s.registry,
		EventHandler: s.events,
		RunID:        runID,
	})

	final, err := engine.RunWorkflow(r.Context(), *wf, railway.NewContextWithInputs(req.Inputs))

	resp := map[string]any{
		"run_id":   runID,
		"workflow": wf.Name,
		"outputs":  final.Outputs(),
	}
	if feedback := final.Feedback(); len(feedback) > 0 {
		resp["feedback"] = feedback
	}
	if err == nil {
		resp["status"] = "completed"
		writeJSON(w, http.StatusOK, resp)
		return
	}

	log.Printf("component=web.server action=dispatch_failed workflow=%s run_id=%s err=%v", wf.Name, runID, err)
	resp["status"] = "failed"
	if serr, ok := railway.AsStepError(err); ok {
		resp["error"] = serr.Serialize()
	} else {
		resp["error"] = map[string]any{"message": err.Error()}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRunList(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "run history not configured"})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []history.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "run history not configured"})
		return
	}

	runID := chi.URLParam(r, "runID")
	run, steps, err := s.store.GetRun(runID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if run == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	if steps == nil {
		steps = []history.StepRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run, "steps": steps})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
