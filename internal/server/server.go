// Package server provides the HTTP API for running assessments.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/diligence-engine/internal/benchmarks"
	"github.com/jonathan/diligence-engine/internal/config"
	"github.com/jonathan/diligence-engine/internal/extraction"
	"github.com/jonathan/diligence-engine/internal/llm"
	"github.com/jonathan/diligence-engine/internal/observability"
	"github.com/jonathan/diligence-engine/internal/pipeline"
	"github.com/jonathan/diligence-engine/internal/stages"
	"github.com/jonathan/diligence-engine/internal/telemetry"
	"github.com/jonathan/diligence-engine/internal/types"
)

// shutdownTimeout bounds graceful shutdown on SIGINT/SIGTERM.
const shutdownTimeout = 10 * time.Second

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	cfg        config.Config
	logger     *slog.Logger
	store      *telemetry.Store
	newClient  func(ctx context.Context) (llm.Client, error)
}

// New creates a server instance. The telemetry store is optional; without a
// DSN run records stay in memory only.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		newClient: func(ctx context.Context) (llm.Client, error) {
			return llm.NewClient(ctx, llm.DefaultConfig(), cfg.APIKey)
		},
	}

	if cfg.TelemetryDSN != "" {
		store, err := telemetry.Connect(ctx, cfg.TelemetryDSN)
		if err != nil {
			return nil, fmt.Errorf("telemetry store: %w", err)
		}
		s.store = store
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /assess", s.handleAssess)
	mux.HandleFunc("POST /assess/stream", s.handleAssessStream)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		s.logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if s.store != nil {
		defer s.store.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

// assessRequest is the POST /assess body.
type assessRequest struct {
	types.PipelineInput
	QuickScreen bool `json:"quick_screen,omitempty"`
}

// assemble builds a per-run environment and runner.
func (s *Server) assemble(ctx context.Context, req *assessRequest) (*pipeline.Runner, *stages.Env, llm.Client, error) {
	if req.AssessmentID == "" {
		req.AssessmentID = uuid.NewString()
	}
	if err := config.ValidateInput(&req.PipelineInput); err != nil {
		return nil, nil, nil, err
	}

	client, err := s.newClient(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("generation client: %w", err)
	}

	runID := uuid.NewString()
	recorder := observability.NewRecorder(runID, req.AssessmentID)
	extractor := extraction.NewExtractor(extraction.DefaultTable())
	extractor.OnAttempt = recorder.Extraction

	env := &stages.Env{
		Client:     client,
		Benchmarks: benchmarks.MustDefault(),
		Extractor:  extractor,
		Recorder:   recorder,
		Logger:     s.logger.With("assessment", req.AssessmentID),
		GenRetries: s.cfg.GenRetries,
		Mode:       benchmarks.CorrectionMode(s.cfg.CorrectionMode),
	}

	stageList := stages.DefaultStages()
	if req.QuickScreen || s.cfg.QuickScreen {
		stageList = stages.QuickScreenStages()
	}
	runner := pipeline.NewRunner(env, pipeline.Options{
		Stages:          stageList,
		PreChecks:       stages.DefaultPreChecks(),
		SkipStageIDs:    s.cfg.SkipStageIDs,
		ContinueOnError: s.cfg.ContinuePastFailures(),
		MaxRetries:      s.cfg.MaxRetries,
		RunID:           runID,
	})
	return runner, env, client, nil
}

// persist writes the run record when a store is configured.
func (s *Server) persist(ctx context.Context, env *stages.Env, result *types.PipelineResult) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveRun(ctx, env.Recorder.Snapshot(), result); err != nil {
		s.logger.Error("failed to persist run record", "error", err)
	}
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	var req assessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	runner, env, client, err := s.assemble(r.Context(), &req)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer client.Close() //nolint:errcheck

	result := runner.Run(r.Context(), &req.PipelineInput, func(progress float64, message string) {
		s.logger.Debug("progress", "assessment", req.AssessmentID, "progress", progress, "message", message)
	})
	s.persist(r.Context(), env, result)

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAssessStream(w http.ResponseWriter, r *http.Request) {
	var req assessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	runner, env, client, err := s.assemble(r.Context(), &req)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer client.Close() //nolint:errcheck

	sse, err := NewSSEWriter(w)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := runner.RunStream(r.Context(), &req.PipelineInput, func(event pipeline.Event) {
		if err := sse.WriteEvent(string(event.Type), event); err != nil {
			s.logger.Debug("client gone, still finishing run", "error", err)
		}
	})
	s.persist(r.Context(), env, result)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSONError(w, http.StatusNotFound, "run persistence is not configured")
		return
	}
	result, err := s.store.LoadResult(r.Context(), r.PathValue("id"))
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload) //nolint:errcheck
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
