// Package server exposes the optimization engine as a job-oriented HTTP and
// JSON-RPC 2.0 API. Each run is an independent engine instance tracked in a
// per-server job table.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quarklabs/hypertune/internal/config"
	"github.com/quarklabs/hypertune/internal/logging"
	"github.com/quarklabs/hypertune/internal/tuning"
	"github.com/quarklabs/hypertune/internal/tuning/acquisition"
	"github.com/quarklabs/hypertune/internal/tuning/bayesian"
)

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

// runJob tracks one optimization run from submission to its terminal state.
// Access goes through the server's job mutex.
type runJob struct {
	ID          string
	Status      string // "pending", "running", "completed", "partial", "failed", "cancelled"
	Objective   string
	MaxTrials   int
	Completed   int
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time

	BestScore  float64
	BestConfig tuning.Configuration

	Run    *bayesian.Run
	Cancel context.CancelFunc
	Result *tuning.OptimizationResult
}

// Server implements the HTTP and JSON-RPC surface of the tuning service.
type Server struct {
	cfg        *config.Config
	logger     Logger
	metrics    *Metrics
	objectives map[string]Objective

	jobsMu sync.RWMutex
	jobs   map[string]*runJob
}

// NewServer creates a server instance. Collectors are registered against
// reg so tests can pass an isolated registry.
func NewServer(cfg *config.Config, logger Logger, reg prometheus.Registerer) *Server {
	return &Server{
		cfg:        cfg,
		logger:     logger,
		metrics:    NewMetrics(reg),
		objectives: builtinObjectives(),
		jobs:       make(map[string]*runJob),
	}
}

// RegisterRoutes mounts the API on the given router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/runs", s.handleStartRun)
		r.Get("/runs/{id}", s.handleRunStatus)
		r.Delete("/runs/{id}", s.handleCancelRun)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// startRequest is the payload of POST /api/v1/runs and tuning.start.
type startRequest struct {
	Space     tuning.SearchSpace `json:"search_space"`
	Objective string             `json:"objective"`
	Options   *runOptions        `json:"options,omitempty"`
}

// runOptions overrides the engine defaults per run. Absent fields keep the
// server's configured defaults.
type runOptions struct {
	MaxTrials         *int     `json:"max_trials,omitempty"`
	NumInitialPoints  *int     `json:"num_initial_points,omitempty"`
	MaxParallelTrials *int     `json:"max_parallel_trials,omitempty"`
	Acquisition       *string  `json:"acquisition,omitempty"`
	ExplorationFactor *float64 `json:"exploration_factor,omitempty"`
	RandomSeed        *int64   `json:"random_seed,omitempty"`
	PoolSize          *int     `json:"pool_size,omitempty"`
	Kernel            *string  `json:"kernel,omitempty"`
	EvalTimeoutMS     *int64   `json:"eval_timeout_ms,omitempty"`
}

// buildOptions merges the engine defaults, the server configuration and the
// per-request overrides, in that order.
func (s *Server) buildOptions(req *startRequest) bayesian.Options {
	opts := bayesian.DefaultOptions()

	if s.cfg != nil {
		eng := s.cfg.Engine
		if eng.MaxTrials > 0 {
			opts.MaxTrials = eng.MaxTrials
		}
		if eng.NumInitialPoints > 0 {
			opts.NumInitialPoints = eng.NumInitialPoints
		}
		if eng.MaxParallelTrials > 0 {
			opts.MaxParallelTrials = eng.MaxParallelTrials
		}
		if eng.PoolSize > 0 {
			opts.PoolSize = eng.PoolSize
		}
		if eng.Acquisition != "" {
			opts.Acquisition = acquisition.Kind(eng.Acquisition)
		}
		if eng.ExplorationFactor > 0 {
			opts.ExplorationFactor = eng.ExplorationFactor
		}
		if eng.EvalTimeout > 0 {
			opts.EvalTimeout = eng.EvalTimeout
		}
	}

	o := req.Options
	if o == nil {
		return opts
	}
	if o.MaxTrials != nil {
		opts.MaxTrials = *o.MaxTrials
	}
	if o.NumInitialPoints != nil {
		opts.NumInitialPoints = *o.NumInitialPoints
	}
	if o.MaxParallelTrials != nil {
		opts.MaxParallelTrials = *o.MaxParallelTrials
	}
	if o.Acquisition != nil {
		opts.Acquisition = acquisition.Kind(*o.Acquisition)
	}
	if o.ExplorationFactor != nil {
		opts.ExplorationFactor = *o.ExplorationFactor
	}
	if o.RandomSeed != nil {
		opts.RandomSeed = *o.RandomSeed
	}
	if o.PoolSize != nil {
		opts.PoolSize = *o.PoolSize
	}
	if o.Kernel != nil {
		opts.Kernel = bayesian.KernelKind(*o.Kernel)
	}
	if o.EvalTimeoutMS != nil {
		opts.EvalTimeout = time.Duration(*o.EvalTimeoutMS) * time.Millisecond
	}
	return opts
}

// startRun validates the request, registers the job and launches the run.
func (s *Server) startRun(req *startRequest) (map[string]interface{}, error) {
	if req.Objective == "" {
		return nil, fmt.Errorf("objective is required")
	}
	objective, err := s.lookupObjective(req.Objective)
	if err != nil {
		return nil, err
	}

	id := fmt.Sprintf("run_%d", time.Now().UnixNano())

	opts := s.buildOptions(req)
	progress := make(chan tuning.ProgressEvent, opts.MaxTrials)
	opts.Progress = progress
	// Engine diagnostics (jitter escalation, degradation warnings) flow
	// through the server's JSON stream via the zap adapter.
	opts.Logger = logging.NewZapLogger(s.logger.WithFields(map[string]interface{}{
		"run_id": id,
	}))

	run, err := bayesian.NewRun(req.Space, opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	job := &runJob{
		ID:          id,
		Status:      "pending",
		Objective:   req.Objective,
		MaxTrials:   opts.MaxTrials,
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
		BestScore:   math.Inf(-1),
		Run:         run,
		Cancel:      cancel,
	}

	s.jobsMu.Lock()
	s.jobs[job.ID] = job
	s.jobsMu.Unlock()

	s.metrics.RunsStarted.Inc()
	s.metrics.RunningRuns.Inc()
	s.logger.Info("Run started", map[string]interface{}{
		"run_id":     job.ID,
		"objective":  job.Objective,
		"max_trials": job.MaxTrials,
	})

	go s.consumeProgress(job.ID, progress)
	go s.executeRun(ctx, job, objective, progress)

	return map[string]interface{}{
		"run_id": job.ID,
		"status": "pending",
	}, nil
}

// consumeProgress drains one run's progress events into the job table and
// the trial counters.
func (s *Server) consumeProgress(id string, progress <-chan tuning.ProgressEvent) {
	for ev := range progress {
		s.metrics.TrialsTotal.Inc()
		if ev.Failed {
			s.metrics.TrialsFailed.Inc()
		}

		s.jobsMu.Lock()
		job, ok := s.jobs[id]
		if ok {
			job.Completed = ev.TrialIndex + 1
			job.LastUpdated = time.Now()
			if ev.BestConfig != nil {
				job.BestScore = ev.BestScore
				job.BestConfig = ev.BestConfig
				s.metrics.BestScoreGauge.WithLabelValues(id).Set(ev.BestScore)
			}
		}
		s.jobsMu.Unlock()
	}
}

// executeRun drives the engine to completion and records the terminal state.
func (s *Server) executeRun(ctx context.Context, job *runJob, objective Objective, progress chan tuning.ProgressEvent) {
	defer job.Cancel()

	s.jobsMu.Lock()
	job.Status = "running"
	s.jobsMu.Unlock()

	result, err := job.Run.Optimize(ctx, objective.Evaluate)
	close(progress)

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	now := time.Now()
	job.EndTime = &now
	job.LastUpdated = now

	if err != nil {
		s.logger.Error("Run failed to execute", map[string]interface{}{
			"run_id": job.ID,
			"error":  err.Error(),
		})
		job.Status = "failed"
	} else {
		job.Status = string(result.Status)
		job.Result = result
		job.Completed = result.NumTrials
		if result.BestConfig != nil {
			job.BestScore = result.BestScore
			job.BestConfig = result.BestConfig
		}
	}

	s.metrics.RunningRuns.Dec()
	s.metrics.RunsFinished.WithLabelValues(job.Status).Inc()
	s.logger.Info("Run finished", map[string]interface{}{
		"run_id": job.ID,
		"status": job.Status,
		"trials": job.Completed,
	})
}

// runStatus builds the JSON view of one job. Failed trials carry a -Inf
// score internally; the view renders those as null.
func (s *Server) runStatus(id string) (map[string]interface{}, error) {
	s.jobsMu.RLock()
	job, exists := s.jobs[id]
	if !exists {
		s.jobsMu.RUnlock()
		return nil, fmt.Errorf("run not found")
	}

	resp := map[string]interface{}{
		"run_id":           job.ID,
		"status":           job.Status,
		"objective":        job.Objective,
		"max_trials":       job.MaxTrials,
		"completed_trials": job.Completed,
		"start_time":       job.StartTime.Format(time.RFC3339),
		"last_update":      job.LastUpdated.Format(time.RFC3339),
	}
	if job.MaxTrials > 0 {
		resp["progress"] = float64(job.Completed) / float64(job.MaxTrials)
	}
	if job.EndTime != nil {
		resp["end_time"] = job.EndTime.Format(time.RFC3339)
	}
	if job.BestConfig != nil {
		resp["best"] = map[string]interface{}{
			"configuration": job.BestConfig,
			"score":         job.BestScore,
		}
	}
	run := job.Run
	s.jobsMu.RUnlock()

	// History is read outside the job lock; the run guards its own state.
	history := run.History()
	if len(history) > 0 {
		records := make([]map[string]interface{}, len(history))
		for i, rec := range history {
			records[i] = trialView(rec)
		}
		resp["history"] = records
	}
	return resp, nil
}

func trialView(rec tuning.TrialRecord) map[string]interface{} {
	view := map[string]interface{}{
		"index":         rec.Index,
		"configuration": rec.Config,
		"phase":         rec.Phase,
		"timestamp":     rec.Timestamp.Format(time.RFC3339Nano),
	}
	if rec.Failed {
		view["failed"] = true
		view["score"] = nil
		view["error"] = rec.Error
	} else {
		view["score"] = rec.Score
	}
	return view
}

// cancelRun requests cooperative cancellation of a non-terminal run.
func (s *Server) cancelRun(id string) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	job, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("run not found")
	}

	switch job.Status {
	case "completed", "partial", "failed", "cancelled":
		return fmt.Errorf("cannot cancel run with status: %s", job.Status)
	}

	job.Cancel()
	job.LastUpdated = time.Now()

	s.logger.Info("Run cancellation requested", map[string]interface{}{
		"run_id": id,
	})
	return nil
}

// Close cancels every run still in progress.
func (s *Server) Close() error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	for _, job := range s.jobs {
		if job.Cancel != nil {
			job.Cancel()
		}
	}
	return nil
}

// handleStartRun handles POST /api/v1/runs.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	result, err := s.startRun(&req)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, result)
}

// handleRunStatus handles GET /api/v1/runs/{id}.
func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "missing run ID")
		return
	}

	result, err := s.runStatus(id)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleCancelRun handles DELETE /api/v1/runs/{id}.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, "missing run ID")
		return
	}

	if err := s.cancelRun(id); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "cancellation requested",
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"error": msg})
}
