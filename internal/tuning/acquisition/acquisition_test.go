package acquisition

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestExpectedImprovement(t *testing.T) {
	tests := []struct {
		name     string
		mean     float64
		stddev   float64
		best     float64
		expected float64
	}{
		{
			name:     "zero stddev with improvement",
			mean:     1.5,
			stddev:   0,
			best:     1.0,
			expected: 0.5, // max(0, mean - best)
		},
		{
			name:     "zero stddev without improvement",
			mean:     0.5,
			stddev:   0,
			best:     1.0,
			expected: 0.0,
		},
		{
			name:   "symmetric case",
			mean:   1.0,
			stddev: 1.0,
			best:   1.0,
			// z = 0: EI = sigma * (0*0.5 + phi(0)) = phi(0)
			expected: 1.0 / math.Sqrt(2*math.Pi),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpectedImprovement{}.Score(tt.mean, tt.stddev, tt.best)
			assert.InDelta(t, tt.expected, got, 1e-10)
		})
	}
}

func TestExpectedImprovementFormula(t *testing.T) {
	// Against the closed form stddev*(z*CDF(z) + PDF(z)).
	mean, stddev, best := 0.3, 0.2, 0.1
	z := (mean - best) / stddev
	n := distuv.UnitNormal
	want := stddev * (z*n.CDF(z) + n.Prob(z))

	got := ExpectedImprovement{}.Score(mean, stddev, best)
	assert.InDelta(t, want, got, 1e-12)
	assert.Greater(t, got, 0.0)
}

func TestExpectedImprovementMonotonicInMean(t *testing.T) {
	ei := ExpectedImprovement{}
	prev := ei.Score(-1.0, 0.5, 0.0)
	for _, mean := range []float64{-0.5, 0.0, 0.5, 1.0} {
		v := ei.Score(mean, 0.5, 0.0)
		assert.Greater(t, v, prev, "EI must grow with the posterior mean at fixed stddev")
		prev = v
	}
}

func TestUpperConfidenceBound(t *testing.T) {
	ucb := UpperConfidenceBound{Kappa: 0.1}
	assert.InDelta(t, 1.05, ucb.Score(1.0, 0.5, math.Inf(-1)), 1e-12)

	// Exploration factor weighs uncertainty.
	wide := UpperConfidenceBound{Kappa: 2.0}
	assert.Greater(t, wide.Score(0.0, 1.0, 0.0), ucb.Score(0.0, 1.0, 0.0))
}

func TestProbabilityOfImprovement(t *testing.T) {
	pi := ProbabilityOfImprovement{}

	// Step function below the stddev threshold.
	assert.Equal(t, 1.0, pi.Score(1.1, 0, 1.0))
	assert.Equal(t, 0.0, pi.Score(0.9, 0, 1.0))
	assert.Equal(t, 0.0, pi.Score(1.0, 0, 1.0))

	// z = 0 gives probability one half.
	assert.InDelta(t, 0.5, pi.Score(1.0, 0.3, 1.0), 1e-12)

	// Large positive z saturates toward one.
	assert.InDelta(t, 1.0, pi.Score(5.0, 0.1, 0.0), 1e-9)
}

func TestNew(t *testing.T) {
	tests := []struct {
		kind    Kind
		wantErr bool
	}{
		{EI, false},
		{UCB, false},
		{PI, false},
		{Kind("thompson"), true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			fn, err := New(tt.kind, 0.1)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, fn)
		})
	}

	ucb, err := New(UCB, 2.0)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, ucb.Score(0, 1, 0), 1e-12)
}
