package server

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/quarklabs/hypertune/internal/tuning"
)

// Objective is a named built-in benchmark function. Remote callers pick one
// by name when starting a run; all objectives return higher-is-better scores.
type Objective struct {
	Name        string
	Description string
	Evaluate    tuning.Evaluator
}

// numericValues collects the numeric parameters of a configuration in a
// stable name order, so score functions do not depend on map iteration.
func numericValues(cfg tuning.Configuration) []float64 {
	names := make([]string, 0, len(cfg))
	for name, v := range cfg {
		if v.Label == "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	xs := make([]float64, len(names))
	for i, name := range names {
		xs[i] = cfg[name].Number
	}
	return xs
}

// builtinObjectives returns the benchmark registry keyed by name.
func builtinObjectives() map[string]Objective {
	objectives := []Objective{
		{
			Name:        "sphere",
			Description: "negated sum of squares, optimum at the origin",
			Evaluate: func(_ context.Context, cfg tuning.Configuration) (float64, error) {
				sum := 0.0
				for _, x := range numericValues(cfg) {
					sum += x * x
				}
				return -sum, nil
			},
		},
		{
			Name:        "parabola",
			Description: "negated squared distance from 0.5 per dimension",
			Evaluate: func(_ context.Context, cfg tuning.Configuration) (float64, error) {
				sum := 0.0
				for _, x := range numericValues(cfg) {
					sum += (x - 0.5) * (x - 0.5)
				}
				return -sum, nil
			},
		},
		{
			Name:        "rastrigin",
			Description: "negated Rastrigin function, highly multimodal",
			Evaluate: func(_ context.Context, cfg tuning.Configuration) (float64, error) {
				xs := numericValues(cfg)
				sum := 10.0 * float64(len(xs))
				for _, x := range xs {
					sum += x*x - 10.0*math.Cos(2.0*math.Pi*x)
				}
				return -sum, nil
			},
		},
		{
			Name:        "categorical-step",
			Description: "scores categorical labels by position, numeric parameters quadratically",
			Evaluate: func(_ context.Context, cfg tuning.Configuration) (float64, error) {
				score := 0.0
				for _, v := range cfg {
					if v.Label != "" {
						// Reward longer labels so the optimum is well defined
						// regardless of the label set.
						score += float64(len(v.Label))
						continue
					}
					score -= (v.Number - 0.5) * (v.Number - 0.5)
				}
				return score, nil
			},
		},
	}

	registry := make(map[string]Objective, len(objectives))
	for _, o := range objectives {
		registry[o.Name] = o
	}
	return registry
}

// lookupObjective resolves an objective by name.
func (s *Server) lookupObjective(name string) (Objective, error) {
	obj, ok := s.objectives[name]
	if !ok {
		return Objective{}, fmt.Errorf("unknown objective %q", name)
	}
	return obj, nil
}
