// Package acquisition scores candidate points against the surrogate's
// posterior, trading off the predicted score against its uncertainty.
// All functions follow the maximization convention: higher scores are
// better, and a higher acquisition value means a more promising candidate.
package acquisition

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"
)

// Kind selects one of the built-in acquisition functions.
type Kind string

const (
	// EI is Expected Improvement.
	EI Kind = "ei"
	// UCB is Upper Confidence Bound.
	UCB Kind = "ucb"
	// PI is Probability of Improvement.
	PI Kind = "pi"
)

// minStdDev is the threshold below which the posterior is treated as
// deterministic and the degenerate closed forms apply.
const minStdDev = 1e-6

// Function scores a candidate from its posterior mean, posterior standard
// deviation and the best score observed so far.
type Function interface {
	Score(mean, stddev, best float64) float64
}

// New returns the acquisition function for the given kind. kappa is the
// exploration factor used by UCB and ignored by the others.
func New(kind Kind, kappa float64) (Function, error) {
	switch kind {
	case EI:
		return ExpectedImprovement{}, nil
	case UCB:
		return UpperConfidenceBound{Kappa: kappa}, nil
	case PI:
		return ProbabilityOfImprovement{}, nil
	default:
		return nil, fmt.Errorf("unknown acquisition function %q", kind)
	}
}

// ExpectedImprovement computes E[max(0, f(x) - best)] under the posterior.
// It is the default choice: it weighs both how likely and how large an
// improvement might be.
type ExpectedImprovement struct{}

// Score computes the expected improvement. With a near-zero standard
// deviation it reduces to max(0, mean - best).
func (ExpectedImprovement) Score(mean, stddev, best float64) float64 {
	if stddev < minStdDev {
		if imp := mean - best; imp > 0 {
			return imp
		}
		return 0
	}
	z := (mean - best) / stddev
	n := distuv.UnitNormal
	return stddev * (z*n.CDF(z) + n.Prob(z))
}

// UpperConfidenceBound computes mean + Kappa*stddev. Larger Kappa explores
// uncertain regions more aggressively.
type UpperConfidenceBound struct {
	Kappa float64
}

// Score computes the upper confidence bound.
func (u UpperConfidenceBound) Score(mean, stddev, _ float64) float64 {
	return mean + u.Kappa*stddev
}

// ProbabilityOfImprovement computes P(f(x) > best) under the posterior.
type ProbabilityOfImprovement struct{}

// Score computes the probability of improvement. With a near-zero standard
// deviation it degenerates to a step function on mean > best.
func (ProbabilityOfImprovement) Score(mean, stddev, best float64) float64 {
	if stddev < minStdDev {
		if mean > best {
			return 1
		}
		return 0
	}
	return distuv.UnitNormal.CDF((mean - best) / stddev)
}
