// Package tuning defines the data model for black-box hyperparameter
// optimization: search spaces, configurations and their numeric encoding,
// trial bookkeeping, and the error taxonomy shared by the engine packages.
package tuning

import (
	"context"
	"time"
)

// ParamKind identifies the type of a tunable parameter.
type ParamKind string

const (
	// KindContinuous is a real-valued parameter in [Lower, Upper].
	KindContinuous ParamKind = "continuous"
	// KindInteger is an integer parameter in [Lower, Upper] inclusive.
	KindInteger ParamKind = "integer"
	// KindDiscrete is a parameter restricted to an ordered set of numeric values.
	KindDiscrete ParamKind = "discrete"
	// KindCategorical is a parameter restricted to a set of distinct labels.
	KindCategorical ParamKind = "categorical"
)

// ParameterSpec describes one tunable dimension of a search space.
// Lower, Upper and LogScale apply to continuous and integer parameters;
// Values applies to discrete parameters; Labels applies to categorical ones.
type ParameterSpec struct {
	Name     string    `json:"name"`
	Kind     ParamKind `json:"kind"`
	Lower    float64   `json:"lower,omitempty"`
	Upper    float64   `json:"upper,omitempty"`
	LogScale bool      `json:"log_scale,omitempty"`
	Values   []float64 `json:"values,omitempty"`
	Labels   []string  `json:"labels,omitempty"`
}

// SearchSpace is an ordered, name-keyed set of parameter specs. The order
// is significant: it fixes the layout of the feature encoding.
type SearchSpace struct {
	Params []ParameterSpec `json:"parameters"`
}

// Value holds one concrete parameter value. Number is used for continuous,
// integer and discrete parameters; Label for categorical ones.
type Value struct {
	Number float64 `json:"number,omitempty"`
	Label  string  `json:"label,omitempty"`
}

// Configuration maps parameter names to concrete values, one entry per
// spec in the owning SearchSpace. Scored configurations are never mutated.
type Configuration map[string]Value

// FeatureVector is the numeric encoding of a Configuration: one coordinate
// in [0,1] per non-categorical parameter, a one-hot block per categorical one.
type FeatureVector []float64

// Observation pairs an encoded configuration with its observed score.
// Higher scores are better.
type Observation struct {
	X     FeatureVector
	Score float64
}

// Phase identifies which stage of a run produced a trial.
type Phase string

const (
	// PhaseInitialization covers the initial random-sampling trials.
	PhaseInitialization Phase = "initialization"
	// PhaseBayesian covers surrogate-guided trials.
	PhaseBayesian Phase = "bayesian_optimization"
)

// TrialRecord is one entry of the append-only optimization history.
// Failed trials carry Failed=true, a -Inf score and the evaluation error.
type TrialRecord struct {
	Index     int           `json:"index"`
	Config    Configuration `json:"configuration"`
	Score     float64       `json:"score"`
	Phase     Phase         `json:"phase"`
	Timestamp time.Time     `json:"timestamp"`
	Failed    bool          `json:"failed,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// OptimizationState is the mutable per-run summary, owned by the control
// loop and updated exactly once per completed trial.
type OptimizationState struct {
	BestConfig      Configuration `json:"best_configuration"`
	BestScore       float64       `json:"best_score"`
	CompletedTrials int           `json:"completed_trials"`
	Running         bool          `json:"is_running"`
}

// RunStatus is the terminal status of an optimization run.
type RunStatus string

const (
	// StatusCompleted means the trial budget was exhausted without failures.
	StatusCompleted RunStatus = "completed"
	// StatusPartial means the budget was exhausted but some trials failed.
	StatusPartial RunStatus = "partial"
	// StatusFailed means the run aborted early.
	StatusFailed RunStatus = "failed"
	// StatusCancelled means the caller cancelled the run between batches.
	StatusCancelled RunStatus = "cancelled"
)

// OptimizationResult is returned at the end of a run. History reflects
// every attempted trial, including failures.
type OptimizationResult struct {
	Status     RunStatus     `json:"status"`
	BestConfig Configuration `json:"best_configuration"`
	BestScore  float64       `json:"best_score"`
	NumTrials  int           `json:"num_trials"`
	Failures   int           `json:"failures"`
	History    []TrialRecord `json:"history"`
}

// ProgressEvent is pushed once per completed trial. Degraded is set when
// the surrogate fell back to a flat prior for the batch that produced the
// trial.
type ProgressEvent struct {
	TrialIndex int           `json:"trial_index"`
	MaxTrials  int           `json:"max_trials"`
	Config     Configuration `json:"configuration"`
	Score      float64       `json:"score"`
	BestScore  float64       `json:"best_score"`
	BestConfig Configuration `json:"best_configuration"`
	Phase      Phase         `json:"phase"`
	Failed     bool          `json:"failed,omitempty"`
	Degraded   bool          `json:"degraded,omitempty"`
}

// Evaluator is the caller-supplied black-box function being tuned. It may
// be slow and may fail; the context carries the per-evaluation deadline.
type Evaluator func(ctx context.Context, cfg Configuration) (float64, error)
