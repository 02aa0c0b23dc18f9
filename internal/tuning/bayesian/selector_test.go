package bayesian

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarklabs/hypertune/internal/tuning"
	"github.com/quarklabs/hypertune/internal/tuning/acquisition"
	"github.com/quarklabs/hypertune/internal/tuning/kernels"
)

func newTestSelector(t *testing.T, space tuning.SearchSpace, seed int64, poolSize int) *Selector {
	t.Helper()
	require.NoError(t, space.Validate())

	rng := rand.New(rand.NewSource(seed))
	sampler := tuning.NewSampler(space, rng)
	gp := NewGP(kernels.NewRBFKernel(space.DefaultLengthScales(), 1.0), 0.1, SolverCholesky, nil)
	acq, err := acquisition.New(acquisition.EI, 0.1)
	require.NoError(t, err)

	return NewSelector(space, sampler, gp, acq, poolSize, nil)
}

func continuousSpace() tuning.SearchSpace {
	return tuning.SearchSpace{Params: []tuning.ParameterSpec{
		{Name: "x", Kind: tuning.KindContinuous, Lower: 0, Upper: 1},
	}}
}

func encodeAll(t *testing.T, space tuning.SearchSpace, xs []float64, scores []float64) []tuning.Observation {
	t.Helper()
	obs := make([]tuning.Observation, len(xs))
	for i := range xs {
		x, err := space.Encode(tuning.Configuration{"x": {Number: xs[i]}})
		require.NoError(t, err)
		obs[i] = tuning.Observation{X: x, Score: scores[i]}
	}
	return obs
}

func TestSelectBatchDistinct(t *testing.T) {
	space := continuousSpace()
	sel := newTestSelector(t, space, 42, 200)

	obs := encodeAll(t, space, []float64{0.1, 0.3, 0.5, 0.7, 0.9}, []float64{0.2, 0.5, 0.9, 0.5, 0.1})

	batch, err := sel.SelectBatch(obs, 0.9, 4)
	require.NoError(t, err)
	require.Len(t, batch, 4)

	// Constant-liar selection must never repeat a configuration within
	// one batch.
	for i := 0; i < len(batch); i++ {
		for j := i + 1; j < len(batch); j++ {
			assert.False(t, batch[i].Equal(batch[j]), "candidates %d and %d are duplicates", i, j)
		}
	}

	for _, cfg := range batch {
		assert.NoError(t, space.ValidateConfig(cfg))
	}
}

func TestSelectBatchDeterministic(t *testing.T) {
	space := continuousSpace()
	obs := encodeAll(t, space, []float64{0.2, 0.8}, []float64{0.5, 0.3})

	a, err := newTestSelector(t, space, 7, 100).SelectBatch(obs, 0.5, 3)
	require.NoError(t, err)
	b, err := newTestSelector(t, space, 7, 100).SelectBatch(obs, 0.5, 3)
	require.NoError(t, err)

	require.Equal(t, len(a), len(b))
	for i := range a {
		assert.True(t, a[i].Equal(b[i]), "selection %d diverged", i)
	}
}

func TestSelectBatchSmallCategoricalSpace(t *testing.T) {
	// Three labels can supply at most three distinct configurations; a
	// larger batch request must stop early rather than duplicate.
	space := tuning.SearchSpace{Params: []tuning.ParameterSpec{
		{Name: "c", Kind: tuning.KindCategorical, Labels: []string{"a", "b", "c"}},
	}}
	sel := newTestSelector(t, space, 3, 100)

	xa, err := space.Encode(tuning.Configuration{"c": {Label: "a"}})
	require.NoError(t, err)
	xb, err := space.Encode(tuning.Configuration{"c": {Label: "b"}})
	require.NoError(t, err)
	obs := []tuning.Observation{{X: xa, Score: 0.0}, {X: xb, Score: 1.0}}

	batch, err := sel.SelectBatch(obs, 1.0, 5)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(batch), 3)
	assert.NotEmpty(t, batch)

	for i := 0; i < len(batch); i++ {
		for j := i + 1; j < len(batch); j++ {
			assert.False(t, batch[i].Equal(batch[j]))
		}
	}
}

func TestSelectBatchWithFlatSurrogate(t *testing.T) {
	// With fewer than two observations the surrogate is a flat prior; the
	// selector must still return a usable batch.
	space := continuousSpace()
	sel := newTestSelector(t, space, 11, 50)

	batch, err := sel.SelectBatch(nil, 0, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.False(t, batch[0].Equal(batch[1]))
}

func TestSelectBatchPrefersPromisingRegion(t *testing.T) {
	// Observations describe a peak near x = 0.5. With EI the first pick
	// of a large pool should land closer to the peak than to the edges.
	space := continuousSpace()
	sel := newTestSelector(t, space, 5, 500)

	obs := encodeAll(t, space,
		[]float64{0.05, 0.2, 0.35, 0.5, 0.65, 0.8, 0.95},
		[]float64{0.05, 0.35, 0.75, 1.0, 0.75, 0.35, 0.05})

	batch, err := sel.SelectBatch(obs, 1.0, 1)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	x := batch[0]["x"].Number
	assert.InDelta(t, 0.5, x, 0.35, "first pick should favor the peak region, got %v", x)
}
