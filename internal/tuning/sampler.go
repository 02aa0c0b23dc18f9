package tuning

import (
	"math"
	"math/rand"
)

// Sampler draws uniform random configurations from a search space,
// respecting log-scale and parameter type. It is not safe for concurrent
// use; the optimization control loop is its only caller.
type Sampler struct {
	space SearchSpace
	rng   *rand.Rand
}

// NewSampler creates a sampler over the given (already validated) space.
func NewSampler(space SearchSpace, rng *rand.Rand) *Sampler {
	return &Sampler{space: space, rng: rng}
}

// Sample draws one configuration uniformly at random: linear or
// log-uniform for continuous and integer parameters, uniform index for
// discrete and categorical ones. Log-scale integers are sampled
// log-uniformly, rounded to the nearest integer and clamped to the bounds.
func (s *Sampler) Sample() Configuration {
	cfg := make(Configuration, len(s.space.Params))
	for _, p := range s.space.Params {
		switch p.Kind {
		case KindContinuous:
			if p.LogScale {
				lo, hi := math.Log(p.Lower), math.Log(p.Upper)
				cfg[p.Name] = Value{Number: math.Exp(lo + s.rng.Float64()*(hi-lo))}
			} else {
				cfg[p.Name] = Value{Number: p.Lower + s.rng.Float64()*(p.Upper-p.Lower)}
			}
		case KindInteger:
			if p.LogScale {
				lo, hi := math.Log(p.Lower), math.Log(p.Upper)
				v := math.Round(math.Exp(lo + s.rng.Float64()*(hi-lo)))
				cfg[p.Name] = Value{Number: clamp(v, p.Lower, p.Upper)}
			} else {
				lo, hi := int64(p.Lower), int64(p.Upper)
				cfg[p.Name] = Value{Number: float64(lo + s.rng.Int63n(hi-lo+1))}
			}
		case KindDiscrete:
			cfg[p.Name] = Value{Number: p.Values[s.rng.Intn(len(p.Values))]}
		case KindCategorical:
			cfg[p.Name] = Value{Label: p.Labels[s.rng.Intn(len(p.Labels))]}
		}
	}
	return cfg
}

// SampleN draws n independent configurations.
func (s *Sampler) SampleN(n int) []Configuration {
	out := make([]Configuration, n)
	for i := range out {
		out[i] = s.Sample()
	}
	return out
}
