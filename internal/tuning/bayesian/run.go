package bayesian

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quarklabs/hypertune/internal/tuning"
	"github.com/quarklabs/hypertune/internal/tuning/acquisition"
	"github.com/quarklabs/hypertune/internal/tuning/kernels"
)

// KernelKind selects the surrogate covariance function.
type KernelKind string

const (
	// KernelRBF is the squared-exponential kernel (default).
	KernelRBF KernelKind = "rbf"
	// KernelMatern52 is the Matérn 5/2 kernel.
	KernelMatern52 KernelKind = "matern52"
)

// Options configures one optimization run.
type Options struct {
	// MaxTrials is the total evaluation budget.
	MaxTrials int
	// NumInitialPoints is the number of random trials before the surrogate
	// takes over.
	NumInitialPoints int
	// MaxParallelTrials bounds concurrent evaluations within one batch.
	MaxParallelTrials int
	// Acquisition selects the candidate scoring rule.
	Acquisition acquisition.Kind
	// ExplorationFactor is the kappa of the UCB acquisition function.
	ExplorationFactor float64
	// RandomSeed makes runs reproducible.
	RandomSeed int64
	// PoolSize is the number of random candidates scored per round.
	PoolSize int
	// NoiseVariance is the observation noise added to the Gram diagonal.
	NoiseVariance float64
	// SignalVariance is the kernel amplitude sigma_f^2.
	SignalVariance float64
	// Solver selects the surrogate's linear-solve strategy.
	Solver Solver
	// Kernel selects the surrogate covariance function.
	Kernel KernelKind
	// EvalTimeout, when positive, bounds each evaluation; an overrun fails
	// that trial only.
	EvalTimeout time.Duration
	// BatchFailureLimit aborts the run when the failed fraction of a batch
	// exceeds it. Zero disables the limit.
	BatchFailureLimit float64
	// Progress, when non-nil, receives one event per completed trial.
	// Sends never block; events are dropped when the consumer lags.
	Progress chan<- tuning.ProgressEvent
	// Logger receives engine diagnostics. Nil disables them.
	Logger *zap.Logger
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		MaxTrials:         50,
		NumInitialPoints:  10,
		MaxParallelTrials: 3,
		Acquisition:       acquisition.EI,
		ExplorationFactor: 0.1,
		RandomSeed:        42,
		PoolSize:          DefaultPoolSize,
		NoiseVariance:     0.1,
		SignalVariance:    1.0,
		Solver:            SolverCholesky,
		Kernel:            KernelRBF,
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions()
	if o.MaxTrials <= 0 {
		o.MaxTrials = def.MaxTrials
	}
	if o.NumInitialPoints <= 0 {
		o.NumInitialPoints = def.NumInitialPoints
	}
	if o.MaxParallelTrials <= 0 {
		o.MaxParallelTrials = def.MaxParallelTrials
	}
	if o.Acquisition == "" {
		o.Acquisition = def.Acquisition
	}
	if o.ExplorationFactor == 0 {
		o.ExplorationFactor = def.ExplorationFactor
	}
	if o.PoolSize <= 0 {
		o.PoolSize = def.PoolSize
	}
	if o.NoiseVariance <= 0 {
		o.NoiseVariance = def.NoiseVariance
	}
	if o.SignalVariance <= 0 {
		o.SignalVariance = def.SignalVariance
	}
	if o.Solver == "" {
		o.Solver = def.Solver
	}
	if o.Kernel == "" {
		o.Kernel = def.Kernel
	}
}

// Run orchestrates one optimization: the initialization phase, the
// surrogate-guided phase, trial bookkeeping and termination. Each Run is an
// independent instance; concurrent runs share no mutable state.
type Run struct {
	space    tuning.SearchSpace
	opts     Options
	rng      *rand.Rand
	sampler  *tuning.Sampler
	gp       *GP
	selector *Selector
	logger   *zap.Logger

	mu           sync.Mutex
	running      bool
	history      []tuning.TrialRecord
	observations []tuning.Observation
	bestConfig   tuning.Configuration
	bestScore    float64
}

// evalResult carries one finished evaluation from a worker goroutine back
// to the control loop, which is the only writer of run state.
type evalResult struct {
	cfg      tuning.Configuration
	score    float64
	err      error
	timedOut bool
}

// NewRun validates the search space and prepares a run. It returns an
// InvalidSearchSpace error without side effects when the space is malformed.
func NewRun(space tuning.SearchSpace, opts Options) (*Run, error) {
	if err := space.Validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("run")

	acq, err := acquisition.New(opts.Acquisition, opts.ExplorationFactor)
	if err != nil {
		return nil, err
	}

	scales := space.DefaultLengthScales()
	var kernel kernels.Kernel
	switch opts.Kernel {
	case KernelMatern52:
		kernel = kernels.NewMatern52Kernel(scales, opts.SignalVariance)
	default:
		kernel = kernels.NewRBFKernel(scales, opts.SignalVariance)
	}

	rng := rand.New(rand.NewSource(opts.RandomSeed))
	sampler := tuning.NewSampler(space, rng)
	gp := NewGP(kernel, opts.NoiseVariance, opts.Solver, logger)

	return &Run{
		space:    space,
		opts:     opts,
		rng:      rng,
		sampler:  sampler,
		gp:       gp,
		selector: NewSelector(space, sampler, gp, acq, opts.PoolSize, logger),
		logger:   logger,
		history:  make([]tuning.TrialRecord, 0, opts.MaxTrials),

		bestScore: math.Inf(-1),
	}, nil
}

// Optimize executes the run to completion or cancellation. It fails
// immediately with AlreadyRunning if invoked while a previous call is
// still in progress on the same instance.
func (r *Run) Optimize(ctx context.Context, evaluate tuning.Evaluator) (*tuning.OptimizationResult, error) {
	const op = "Run.Optimize"

	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, tuning.NewError(tuning.KindAlreadyRunning, "optimization already in progress").
			WithComponent("run").WithOperation(op)
	}
	r.running = true
	r.history = r.history[:0]
	r.observations = r.observations[:0]
	r.bestConfig = nil
	r.bestScore = math.Inf(-1)
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	status := tuning.StatusCompleted
	totalFailures := 0

	// Initialization: random trials to seed the surrogate. The phase always
	// completes its draw, even when some evaluations fail.
	nInit := r.opts.NumInitialPoints
	if nInit > r.opts.MaxTrials {
		nInit = r.opts.MaxTrials
	}
	r.logger.Info("starting optimization",
		zap.Int("max_trials", r.opts.MaxTrials),
		zap.Int("initial_points", nInit),
		zap.Int("max_parallel", r.opts.MaxParallelTrials),
		zap.String("acquisition", string(r.opts.Acquisition)),
	)

	failures := r.evaluateBatch(ctx, evaluate, r.sampler.SampleN(nInit), tuning.PhaseInitialization, false)
	totalFailures += failures
	if r.exceedsFailureLimit(failures, nInit) {
		return r.finish(tuning.StatusFailed, totalFailures), nil
	}

	// Bayesian phase: strict barrier between batches, surrogate refit on
	// the full successful history before each batch.
	for r.completedTrials() < r.opts.MaxTrials {
		if ctx.Err() != nil {
			status = tuning.StatusCancelled
			break
		}

		batchSize := r.opts.MaxTrials - r.completedTrials()
		if batchSize > r.opts.MaxParallelTrials {
			batchSize = r.opts.MaxParallelTrials
		}

		r.mu.Lock()
		obs := append([]tuning.Observation(nil), r.observations...)
		best := r.bestScore
		r.mu.Unlock()

		degraded := false
		batch, err := r.selector.SelectBatch(obs, best, batchSize)
		if err != nil {
			if !tuning.IsKind(err, tuning.KindNumericalInstability) {
				return r.finish(tuning.StatusFailed, totalFailures), err
			}
			// Surrogate is unusable this round: degrade to uniform random
			// sampling rather than aborting.
			r.logger.Warn("surrogate degraded to flat prior for this batch", zap.Error(err))
			batch = r.sampler.SampleN(batchSize)
			degraded = true
		}

		failures := r.evaluateBatch(ctx, evaluate, batch, tuning.PhaseBayesian, degraded)
		totalFailures += failures
		if r.exceedsFailureLimit(failures, len(batch)) {
			status = tuning.StatusFailed
			break
		}
	}

	if status == tuning.StatusCompleted && totalFailures > 0 {
		status = tuning.StatusPartial
	}
	return r.finish(status, totalFailures), nil
}

// evaluateBatch dispatches the configurations to the evaluator with at
// most MaxParallelTrials in flight, then records results in completion
// order. Only the control loop mutates run state.
func (r *Run) evaluateBatch(ctx context.Context, evaluate tuning.Evaluator, batch []tuning.Configuration, phase tuning.Phase, degraded bool) (failures int) {
	results := make(chan evalResult, len(batch))
	sem := make(chan struct{}, r.opts.MaxParallelTrials)

	for _, cfg := range batch {
		sem <- struct{}{}
		go func(cfg tuning.Configuration) {
			defer func() { <-sem }()

			evalCtx := ctx
			cancel := context.CancelFunc(func() {})
			if r.opts.EvalTimeout > 0 {
				evalCtx, cancel = context.WithTimeout(ctx, r.opts.EvalTimeout)
			}
			defer cancel()

			score, err := evaluate(evalCtx, cfg)
			timedOut := err != nil && errors.Is(evalCtx.Err(), context.DeadlineExceeded)
			results <- evalResult{cfg: cfg, score: score, err: err, timedOut: timedOut}
		}(cfg)
	}

	for range batch {
		res := <-results
		if res.err != nil {
			failures++
		}
		r.record(res, phase, degraded)
	}
	return failures
}

// record appends one trial, updates the best-so-far exactly once and emits
// the progress event. Failed trials carry a -Inf score and never become
// the best; successful ones join the surrogate's training set.
func (r *Run) record(res evalResult, phase tuning.Phase, degraded bool) {
	r.mu.Lock()

	rec := tuning.TrialRecord{
		Index:     len(r.history),
		Config:    res.cfg,
		Score:     res.score,
		Phase:     phase,
		Timestamp: time.Now(),
	}
	if res.err != nil {
		rec.Failed = true
		rec.Score = math.Inf(-1)
		if res.timedOut {
			rec.Error = tuning.WrapError(res.err, tuning.KindEvaluationTimedOut, "evaluation timed out").Error()
		} else {
			rec.Error = tuning.WrapError(res.err, tuning.KindEvaluationFailed, "evaluation failed").Error()
		}
	} else if x, err := r.space.Encode(res.cfg); err == nil {
		r.observations = append(r.observations, tuning.Observation{X: x, Score: res.score})
	}
	r.history = append(r.history, rec)

	if !rec.Failed && rec.Score > r.bestScore {
		r.bestScore = rec.Score
		r.bestConfig = res.cfg.Clone()
	}

	ev := tuning.ProgressEvent{
		TrialIndex: rec.Index,
		MaxTrials:  r.opts.MaxTrials,
		Config:     res.cfg,
		Score:      rec.Score,
		BestScore:  r.bestScore,
		BestConfig: r.bestConfig,
		Phase:      phase,
		Failed:     rec.Failed,
		Degraded:   degraded,
	}
	r.mu.Unlock()

	if r.opts.Progress != nil {
		select {
		case r.opts.Progress <- ev:
		default:
		}
	}
}

func (r *Run) exceedsFailureLimit(failures, batchSize int) bool {
	if r.opts.BatchFailureLimit <= 0 || batchSize == 0 {
		return false
	}
	return float64(failures)/float64(batchSize) > r.opts.BatchFailureLimit
}

func (r *Run) completedTrials() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}

func (r *Run) finish(status tuning.RunStatus, failures int) *tuning.OptimizationResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := &tuning.OptimizationResult{
		Status:     status,
		BestConfig: r.bestConfig,
		BestScore:  r.bestScore,
		NumTrials:  len(r.history),
		Failures:   failures,
		History:    append([]tuning.TrialRecord(nil), r.history...),
	}
	r.logger.Info("optimization finished",
		zap.String("status", string(status)),
		zap.Int("trials", res.NumTrials),
		zap.Int("failures", failures),
		zap.Float64("best_score", res.BestScore),
	)
	return res
}

// BestConfiguration returns the best configuration and score observed so
// far. The configuration is nil before the first successful trial.
func (r *Run) BestConfiguration() (tuning.Configuration, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bestConfig, r.bestScore
}

// History returns a copy of the trial records so far.
func (r *Run) History() []tuning.TrialRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tuning.TrialRecord(nil), r.history...)
}

// IsRunning reports whether an Optimize call is in progress.
func (r *Run) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// SearchSpace returns the space this run optimizes over.
func (r *Run) SearchSpace() tuning.SearchSpace {
	return r.space
}

// State returns the current run summary.
func (r *Run) State() tuning.OptimizationState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return tuning.OptimizationState{
		BestConfig:      r.bestConfig,
		BestScore:       r.bestScore,
		CompletedTrials: len(r.history),
		Running:         r.running,
	}
}
