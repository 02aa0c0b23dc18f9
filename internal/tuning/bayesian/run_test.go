package bayesian

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarklabs/hypertune/internal/tuning"
)

func quadraticEvaluator(optimum float64) tuning.Evaluator {
	return func(_ context.Context, cfg tuning.Configuration) (float64, error) {
		x := cfg["x"].Number
		return -(x - optimum) * (x - optimum), nil
	}
}

func TestOptimizeQuadratic1D(t *testing.T) {
	space := tuning.SearchSpace{Params: []tuning.ParameterSpec{
		{Name: "x", Kind: tuning.KindContinuous, Lower: 0, Upper: 1},
	}}

	opts := DefaultOptions()
	opts.MaxTrials = 30

	run, err := NewRun(space, opts)
	require.NoError(t, err)

	result, err := run.Optimize(context.Background(), quadraticEvaluator(0.7))
	require.NoError(t, err)

	assert.Equal(t, tuning.StatusCompleted, result.Status)
	assert.Equal(t, 30, result.NumTrials)
	require.NotNil(t, result.BestConfig)

	assert.InDelta(t, 0.7, result.BestConfig["x"].Number, 0.05,
		"expected convergence near the optimum, got %v", result.BestConfig["x"].Number)
	assert.Greater(t, result.BestScore, -0.0025)
	assert.LessOrEqual(t, result.BestScore, 0.0)
}

func TestOptimizeCategorical(t *testing.T) {
	space := tuning.SearchSpace{Params: []tuning.ParameterSpec{
		{Name: "c", Kind: tuning.KindCategorical, Labels: []string{"a", "b", "c"}},
	}}

	opts := DefaultOptions()
	opts.MaxTrials = 15

	run, err := NewRun(space, opts)
	require.NoError(t, err)

	result, err := run.Optimize(context.Background(), func(_ context.Context, cfg tuning.Configuration) (float64, error) {
		if cfg["c"].Label == "b" {
			return 1.0, nil
		}
		return 0.0, nil
	})
	require.NoError(t, err)

	assert.Equal(t, tuning.StatusCompleted, result.Status)
	assert.Equal(t, 1.0, result.BestScore)
	assert.Equal(t, "b", result.BestConfig["c"].Label)
}

func TestOptimizeInvalidSearchSpace(t *testing.T) {
	_, err := NewRun(tuning.SearchSpace{}, DefaultOptions())
	require.Error(t, err)
	assert.True(t, tuning.IsKind(err, tuning.KindInvalidSearchSpace))
}

func TestOptimizeBestScoreMonotonic(t *testing.T) {
	space := tuning.SearchSpace{Params: []tuning.ParameterSpec{
		{Name: "x", Kind: tuning.KindContinuous, Lower: 0, Upper: 1},
	}}

	opts := DefaultOptions()
	opts.MaxTrials = 20
	progress := make(chan tuning.ProgressEvent, opts.MaxTrials)
	opts.Progress = progress

	run, err := NewRun(space, opts)
	require.NoError(t, err)
	result, err := run.Optimize(context.Background(), quadraticEvaluator(0.3))
	require.NoError(t, err)
	close(progress)

	prev := math.Inf(-1)
	events := 0
	for ev := range progress {
		assert.GreaterOrEqual(t, ev.BestScore, prev, "best score regressed at trial %d", ev.TrialIndex)
		prev = ev.BestScore
		events++
	}
	assert.Equal(t, result.NumTrials, events, "one event per completed trial")
	assert.Equal(t, prev, result.BestScore)
}

func TestOptimizeDeterministicHistory(t *testing.T) {
	space := tuning.SearchSpace{Params: []tuning.ParameterSpec{
		{Name: "x", Kind: tuning.KindContinuous, Lower: 0, Upper: 1},
		{Name: "c", Kind: tuning.KindCategorical, Labels: []string{"p", "q"}},
	}}

	newResult := func() *tuning.OptimizationResult {
		opts := DefaultOptions()
		opts.MaxTrials = 18
		opts.MaxParallelTrials = 1 // completion order equals dispatch order
		opts.RandomSeed = 99

		run, err := NewRun(space, opts)
		require.NoError(t, err)
		result, err := run.Optimize(context.Background(), func(_ context.Context, cfg tuning.Configuration) (float64, error) {
			score := -math.Abs(cfg["x"].Number - 0.4)
			if cfg["c"].Label == "q" {
				score += 0.1
			}
			return score, nil
		})
		require.NoError(t, err)
		return result
	}

	a, b := newResult(), newResult()
	require.Equal(t, a.NumTrials, b.NumTrials)
	for i := range a.History {
		assert.True(t, a.History[i].Config.Equal(b.History[i].Config), "trial %d configuration diverged", i)
		assert.Equal(t, a.History[i].Score, b.History[i].Score, "trial %d score diverged", i)
		assert.Equal(t, a.History[i].Phase, b.History[i].Phase, "trial %d phase diverged", i)
	}
}

func TestOptimizeBatchDiversity(t *testing.T) {
	space := tuning.SearchSpace{Params: []tuning.ParameterSpec{
		{Name: "x", Kind: tuning.KindContinuous, Lower: 0, Upper: 1},
	}}

	opts := DefaultOptions()
	opts.MaxTrials = 16
	opts.NumInitialPoints = 4
	opts.MaxParallelTrials = 4

	run, err := NewRun(space, opts)
	require.NoError(t, err)
	result, err := run.Optimize(context.Background(), quadraticEvaluator(0.5))
	require.NoError(t, err)

	// Group Bayesian-phase trials into their dispatch batches of four and
	// check pairwise distinctness within each.
	var bayes []tuning.TrialRecord
	for _, rec := range result.History {
		if rec.Phase == tuning.PhaseBayesian {
			bayes = append(bayes, rec)
		}
	}
	require.Equal(t, 12, len(bayes))

	for start := 0; start < len(bayes); start += opts.MaxParallelTrials {
		batch := bayes[start : start+opts.MaxParallelTrials]
		for i := 0; i < len(batch); i++ {
			for j := i + 1; j < len(batch); j++ {
				assert.False(t, batch[i].Config.Equal(batch[j].Config),
					"batch starting at %d repeats a configuration", start)
			}
		}
	}
}

func TestOptimizeAlreadyRunning(t *testing.T) {
	space := tuning.SearchSpace{Params: []tuning.ParameterSpec{
		{Name: "x", Kind: tuning.KindContinuous, Lower: 0, Upper: 1},
	}}

	opts := DefaultOptions()
	opts.MaxTrials = 2
	opts.NumInitialPoints = 2
	opts.MaxParallelTrials = 1

	run, err := NewRun(space, opts)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = run.Optimize(context.Background(), func(_ context.Context, _ tuning.Configuration) (float64, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return 0, nil
		})
	}()

	<-started
	assert.True(t, run.IsRunning())

	_, err = run.Optimize(context.Background(), quadraticEvaluator(0.5))
	require.Error(t, err)
	assert.True(t, tuning.IsKind(err, tuning.KindAlreadyRunning))

	close(release)
	<-done
	assert.False(t, run.IsRunning())
}

func TestOptimizePartialOnEvaluationFailures(t *testing.T) {
	space := tuning.SearchSpace{Params: []tuning.ParameterSpec{
		{Name: "x", Kind: tuning.KindContinuous, Lower: 0, Upper: 1},
	}}

	opts := DefaultOptions()
	opts.MaxTrials = 20

	run, err := NewRun(space, opts)
	require.NoError(t, err)
	result, err := run.Optimize(context.Background(), func(_ context.Context, cfg tuning.Configuration) (float64, error) {
		x := cfg["x"].Number
		if x < 0.45 {
			return 0, errors.New("training diverged")
		}
		return -(x - 0.6) * (x - 0.6), nil
	})
	require.NoError(t, err)

	assert.Equal(t, tuning.StatusPartial, result.Status)
	assert.Equal(t, 20, result.NumTrials, "failures must not consume extra budget")
	assert.Greater(t, result.Failures, 0)

	failed := 0
	for _, rec := range result.History {
		if rec.Failed {
			failed++
			assert.True(t, math.IsInf(rec.Score, -1), "failed trial must score -Inf")
			assert.Contains(t, rec.Error, "training diverged")
		}
	}
	assert.Equal(t, result.Failures, failed)

	// A failed trial never becomes the best.
	require.NotNil(t, result.BestConfig)
	assert.GreaterOrEqual(t, result.BestConfig["x"].Number, 0.45)
}

func TestOptimizeFailureLimitAborts(t *testing.T) {
	space := tuning.SearchSpace{Params: []tuning.ParameterSpec{
		{Name: "x", Kind: tuning.KindContinuous, Lower: 0, Upper: 1},
	}}

	opts := DefaultOptions()
	opts.MaxTrials = 30
	opts.NumInitialPoints = 5
	opts.BatchFailureLimit = 0.5

	run, err := NewRun(space, opts)
	require.NoError(t, err)
	result, err := run.Optimize(context.Background(), func(_ context.Context, _ tuning.Configuration) (float64, error) {
		return 0, errors.New("broken workload")
	})
	require.NoError(t, err)

	assert.Equal(t, tuning.StatusFailed, result.Status)
	assert.Equal(t, 5, result.NumTrials, "the run must abort after the failing initial batch")
}

func TestOptimizeEvaluationTimeout(t *testing.T) {
	space := tuning.SearchSpace{Params: []tuning.ParameterSpec{
		{Name: "x", Kind: tuning.KindContinuous, Lower: 0, Upper: 1},
	}}

	opts := DefaultOptions()
	opts.MaxTrials = 4
	opts.NumInitialPoints = 2
	opts.MaxParallelTrials = 2
	opts.EvalTimeout = 20 * time.Millisecond

	run, err := NewRun(space, opts)
	require.NoError(t, err)
	result, err := run.Optimize(context.Background(), func(ctx context.Context, _ tuning.Configuration) (float64, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(500 * time.Millisecond):
			return 1, nil
		}
	})
	require.NoError(t, err)

	assert.Equal(t, tuning.StatusPartial, result.Status)
	require.Equal(t, 4, result.NumTrials)
	for _, rec := range result.History {
		assert.True(t, rec.Failed)
		assert.Contains(t, rec.Error, "timed out")
	}
	assert.Nil(t, result.BestConfig)
}

func TestOptimizeCancellation(t *testing.T) {
	space := tuning.SearchSpace{Params: []tuning.ParameterSpec{
		{Name: "x", Kind: tuning.KindContinuous, Lower: 0, Upper: 1},
	}}

	opts := DefaultOptions()
	opts.MaxTrials = 50
	opts.NumInitialPoints = 5
	opts.MaxParallelTrials = 1

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	run, err := NewRun(space, opts)
	require.NoError(t, err)
	result, err := run.Optimize(ctx, func(_ context.Context, cfg tuning.Configuration) (float64, error) {
		calls++
		if calls == 8 {
			cancel()
		}
		return cfg["x"].Number, nil
	})
	require.NoError(t, err)

	assert.Equal(t, tuning.StatusCancelled, result.Status)
	assert.Less(t, result.NumTrials, opts.MaxTrials, "no new batch may start after cancellation")
	assert.GreaterOrEqual(t, result.NumTrials, 8, "in-flight work finishes its batch")
}

func TestOptimizeAccessors(t *testing.T) {
	space := tuning.SearchSpace{Params: []tuning.ParameterSpec{
		{Name: "x", Kind: tuning.KindContinuous, Lower: 0, Upper: 1},
	}}

	opts := DefaultOptions()
	opts.MaxTrials = 12

	run, err := NewRun(space, opts)
	require.NoError(t, err)

	assert.False(t, run.IsRunning())
	assert.Equal(t, space, run.SearchSpace())

	result, err := run.Optimize(context.Background(), quadraticEvaluator(0.5))
	require.NoError(t, err)

	best, score := run.BestConfiguration()
	assert.True(t, best.Equal(result.BestConfig))
	assert.Equal(t, result.BestScore, score)

	history := run.History()
	require.Len(t, history, result.NumTrials)

	state := run.State()
	assert.False(t, state.Running)
	assert.Equal(t, result.NumTrials, state.CompletedTrials)
	assert.Equal(t, result.BestScore, state.BestScore)

	// Initialization records precede Bayesian-phase records.
	sawBayes := false
	for _, rec := range history {
		if rec.Phase == tuning.PhaseBayesian {
			sawBayes = true
		} else if sawBayes {
			t.Fatal("initialization record found after a Bayesian-phase record")
		}
	}
	assert.True(t, sawBayes)
}

func TestOptimizeRespectsTrialBudgetWithSmallBatches(t *testing.T) {
	space := tuning.SearchSpace{Params: []tuning.ParameterSpec{
		{Name: "x", Kind: tuning.KindContinuous, Lower: 0, Upper: 1},
	}}

	opts := DefaultOptions()
	opts.MaxTrials = 13
	opts.NumInitialPoints = 4
	opts.MaxParallelTrials = 3

	run, err := NewRun(space, opts)
	require.NoError(t, err)
	result, err := run.Optimize(context.Background(), quadraticEvaluator(0.5))
	require.NoError(t, err)

	// 4 initial + 3 batches of 3, then a trailing partial batch.
	assert.Equal(t, 13, result.NumTrials)
}
