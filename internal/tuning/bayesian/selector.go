package bayesian

import (
	"math"

	"go.uber.org/zap"

	"github.com/quarklabs/hypertune/internal/tuning"
	"github.com/quarklabs/hypertune/internal/tuning/acquisition"
)

// DefaultPoolSize is the number of random candidates scored per round.
const DefaultPoolSize = 1000

// Selector draws a pool of random candidates, scores each against the
// surrogate posterior with an acquisition function and returns the top
// batch. Batches are diversified with the constant-liar strategy: each
// pick is temporarily added to the surrogate's training set with its
// posterior mean as a fake score before the next pick, so a single
// high-acquisition point cannot dominate the whole batch.
type Selector struct {
	space    tuning.SearchSpace
	sampler  *tuning.Sampler
	gp       *GP
	acq      acquisition.Function
	poolSize int
	logger   *zap.Logger
}

// NewSelector creates a candidate selector. poolSize <= 0 selects the
// default pool size.
func NewSelector(space tuning.SearchSpace, sampler *tuning.Sampler, gp *GP, acq acquisition.Function, poolSize int, logger *zap.Logger) *Selector {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		space:    space,
		sampler:  sampler,
		gp:       gp,
		acq:      acq,
		poolSize: poolSize,
		logger:   logger.Named("selector"),
	}
}

// SelectBatch refits the surrogate on obs and returns up to k pairwise
// distinct configurations, in selection order. Fewer than k are returned
// only when the candidate pool cannot supply k distinct configurations.
func (s *Selector) SelectBatch(obs []tuning.Observation, best float64, k int) ([]tuning.Configuration, error) {
	const op = "Selector.SelectBatch"

	pool := s.sampler.SampleN(s.poolSize)
	encoded := make([][]float64, len(pool))
	for i, cfg := range pool {
		x, err := s.space.Encode(cfg)
		if err != nil {
			// The sampler produced it, so failing to encode is an engine bug.
			return nil, tuning.WrapError(err, tuning.KindInvalidConfiguration, "sampled candidate failed to encode").
				WithComponent("selector").WithOperation(op)
		}
		encoded[i] = x
	}

	// Working training set: real observations plus liar rows appended as
	// candidates are picked. Liar rows never leave this function.
	working := make([]tuning.Observation, len(obs), len(obs)+k)
	copy(working, obs)

	taken := make([]bool, len(pool))
	batch := make([]tuning.Configuration, 0, k)

	for len(batch) < k {
		if err := s.gp.Fit(working); err != nil {
			return nil, err
		}
		means, variances, err := s.gp.Predict(encoded)
		if err != nil {
			return nil, err
		}

		pick := -1
		pickScore, pickMean := math.Inf(-1), math.Inf(-1)
		for i := range pool {
			if taken[i] || s.isDuplicate(pool[i], batch) {
				continue
			}
			score := s.acq.Score(means[i], math.Sqrt(variances[i]), best)
			// Ties break on the higher posterior mean, then on generation
			// order (the earlier candidate wins by never being displaced).
			if score > pickScore || (score == pickScore && means[i] > pickMean) {
				pick, pickScore, pickMean = i, score, means[i]
			}
		}
		if pick < 0 {
			s.logger.Debug("candidate pool exhausted before filling batch",
				zap.Int("selected", len(batch)),
				zap.Int("requested", k),
			)
			break
		}

		taken[pick] = true
		batch = append(batch, pool[pick])
		working = append(working, tuning.Observation{X: encoded[pick], Score: means[pick]})
	}

	if len(batch) == 0 {
		// Degenerate pool (e.g. a one-configuration space already taken);
		// fall back to a plain random draw so the run can proceed.
		batch = append(batch, s.sampler.Sample())
	}
	return batch, nil
}

func (s *Selector) isDuplicate(cfg tuning.Configuration, batch []tuning.Configuration) bool {
	for _, b := range batch {
		if cfg.Equal(b) {
			return true
		}
	}
	return false
}
