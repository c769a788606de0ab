package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/copyleftdev/gridplan/internal/config"
	apperrors "github.com/copyleftdev/gridplan/internal/errors"
	"github.com/copyleftdev/gridplan/internal/logging"
	"github.com/copyleftdev/gridplan/internal/metrics"
	"github.com/copyleftdev/gridplan/internal/runner"
	"github.com/copyleftdev/gridplan/internal/scenario"
	"github.com/copyleftdev/gridplan/internal/storage"
)

// maxScenarioBytes bounds the size of a submitted scenario.
const maxScenarioBytes = 32 << 20

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// RunState tracks a run started by this process.
type RunState struct {
	Run        storage.Run
	CancelFunc context.CancelFunc
}

// Server exposes planning runs over REST and JSON-RPC 2.0. Runs execute in
// the background; their records live in the store and, while this process
// owns them, in memory.
type Server struct {
	cfg     *config.Config
	logger  Logger
	store   storage.Store
	runner  *runner.Runner
	zlog    *zap.Logger
	metrics *metrics.Metrics

	runs   map[string]*RunState
	runsMu sync.RWMutex

	slots chan struct{}
	wg    sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records run progress on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a server saving runs to store, which must be initialised.
func NewServer(cfg *config.Config, logger Logger, store storage.Store, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		store:  store,
		runs:   make(map[string]*RunState),
	}
	for _, o := range opts {
		o(s)
	}

	n := cfg.Optimization.MaxConcurrentRuns
	if n < 1 {
		n = 1
	}
	s.slots = make(chan struct{}, n)

	s.zlog = logging.NewZapLogger(logger.WithFields(map[string]interface{}{"component": "planner"}))
	s.runner = runner.New(store,
		runner.WithLogger(s.zlog),
		runner.WithMetrics(s.metrics),
		runner.WithProgress(s.recordProgress))
	return s
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/runs", s.handleListRuns)
		r.Post("/runs", s.handleStartRun)
		r.Get("/runs/{id}", s.handleRunStatus)
		r.Get("/runs/{id}/result", s.handleRunResult)
		r.Delete("/runs/{id}", s.handleCancelRun)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// startRun parses and builds a scenario, records a pending run and starts
// it in the background.
func (s *Server) startRun(doc []byte) (storage.Run, error) {
	sc, err := scenario.Load(bytes.NewReader(doc), scenario.WithLogger(s.zlog))
	if err != nil {
		return storage.Run{}, err
	}
	sc.SetDefaultProcesses(s.cfg.Optimization.Processes)
	sc.Algorithm.EvalTimeout = s.cfg.Optimization.EvalTimeout
	plan, err := sc.Build()
	if err != nil {
		return storage.Run{}, err
	}

	run := s.runner.NewRun(plan.Name)
	if err := s.store.SaveRun(context.Background(), run); err != nil {
		return storage.Run{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	state := &RunState{Run: run, CancelFunc: cancel}
	s.runsMu.Lock()
	s.runs[run.ID] = state
	s.runsMu.Unlock()

	s.wg.Add(1)
	go s.execute(ctx, state, plan)

	s.logger.Info("Run accepted", map[string]interface{}{
		"run_id":      run.ID,
		"name":        plan.Name,
		"gene_length": plan.Pipeline.GeneLength(),
		"iterations":  plan.Iterations,
	})
	return run, nil
}

// execute waits for a free slot, then runs the plan.
func (s *Server) execute(ctx context.Context, state *RunState, plan *scenario.Plan) {
	defer s.wg.Done()
	defer state.CancelFunc()

	s.runsMu.RLock()
	run := state.Run
	s.runsMu.RUnlock()

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		run.Status = storage.StatusCancelled
		run.Error = ctx.Err().Error()
		if err := s.store.SaveRun(context.Background(), run); err != nil {
			s.logger.Error("Failed to save run", map[string]interface{}{"run_id": run.ID, "error": err.Error()})
		}
		s.finish(run)
		return
	}

	final, err := s.runner.Execute(ctx, run, plan)
	if err != nil {
		s.logger.Warn("Run did not complete", map[string]interface{}{
			"run_id": run.ID,
			"status": string(final.Status),
			"error":  err.Error(),
		})
	}
	s.finish(final)
}

// finish forgets a run whose final state is in the store; lookup serves it
// from there.
func (s *Server) finish(run storage.Run) {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	delete(s.runs, run.ID)
}

func (s *Server) recordProgress(run storage.Run) {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	if state, ok := s.runs[run.ID]; ok {
		run.Result = nil
		state.Run = run
	}
}

// lookup returns a run from memory or, failing that, the store.
func (s *Server) lookup(ctx context.Context, id string) (storage.Run, bool, error) {
	s.runsMu.RLock()
	state, ok := s.runs[id]
	var run storage.Run
	if ok {
		run = state.Run
	}
	s.runsMu.RUnlock()
	if ok {
		return run, true, nil
	}
	return s.store.GetRun(ctx, id)
}

// cancelRun cancels a run this process is executing. Runs that are only in
// the store have already finished.
func (s *Server) cancelRun(ctx context.Context, id string) (storage.Run, error) {
	const op = "server.cancelRun"
	s.runsMu.Lock()
	state, ok := s.runs[id]
	var run storage.Run
	if ok {
		run = state.Run
		if !run.Status.Done() {
			state.CancelFunc()
		}
	}
	s.runsMu.Unlock()

	if !ok {
		stored, found, err := s.store.GetRun(ctx, id)
		if err != nil {
			return storage.Run{}, err
		}
		if !found {
			return storage.Run{}, errNotFound(id)
		}
		run = stored
	}
	if run.Status.Done() {
		return run, apperrors.Config(op, "cannot cancel run with status: %s", run.Status)
	}

	s.logger.Info("Run cancelled", map[string]interface{}{"run_id": id})
	return run, nil
}

// summary is a run without its result.
func summary(run storage.Run) storage.Run {
	run.Result = nil
	return run
}

func errNotFound(id string) error {
	return &notFoundError{id: id}
}

type notFoundError struct{ id string }

func (e *notFoundError) Error() string { return "run not found: " + e.id }

func statusFor(err error) int {
	if _, ok := err.(*notFoundError); ok {
		return http.StatusNotFound
	}
	return apperrors.HTTPStatus(err)
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	doc, err := io.ReadAll(io.LimitReader(r.Body, maxScenarioBytes))
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	run, err := s.startRun(doc)
	if err != nil {
		s.respondJSON(w, statusFor(err), map[string]string{"error": err.Error()})
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id": run.ID,
		"status": run.Status,
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context())
	if err != nil {
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	s.respondJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, ok, err := s.lookup(r.Context(), id)
	switch {
	case err != nil:
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	case !ok:
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": errNotFound(id).Error()})
	default:
		s.respondJSON(w, http.StatusOK, summary(run))
	}
}

func (s *Server) handleRunResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, ok, err := s.lookup(r.Context(), id)
	switch {
	case err != nil:
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	case !ok:
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": errNotFound(id).Error()})
	case run.Result == nil:
		s.respondJSON(w, http.StatusConflict, map[string]interface{}{
			"error":  "run has no result",
			"status": run.Status,
		})
	default:
		s.respondJSON(w, http.StatusOK, run.Result)
	}
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.cancelRun(r.Context(), id)
	if err != nil {
		code := statusFor(err)
		if code == http.StatusBadRequest {
			code = http.StatusConflict
		}
		s.respondJSON(w, code, map[string]string{"error": err.Error()})
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id": run.ID,
		"status": "cancelling",
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}

// Close cancels every run and waits for them to record their final state.
func (s *Server) Close() error {
	s.runsMu.Lock()
	for _, state := range s.runs {
		if state.CancelFunc != nil {
			state.CancelFunc()
		}
	}
	s.runsMu.Unlock()

	s.wg.Wait()
	return nil
}
