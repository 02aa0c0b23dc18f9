package tuning

import (
	"fmt"
	"math"
)

// Validate checks the search-space invariants: at least one parameter,
// unique names, and a well-formed spec per parameter.
func (s SearchSpace) Validate() error {
	const op = "SearchSpace.Validate"

	if len(s.Params) == 0 {
		return NewError(KindInvalidSearchSpace, "search space has no parameters").WithOperation(op)
	}

	seen := make(map[string]struct{}, len(s.Params))
	for _, p := range s.Params {
		if p.Name == "" {
			return NewError(KindInvalidSearchSpace, "parameter with empty name").WithOperation(op)
		}
		if _, dup := seen[p.Name]; dup {
			return NewErrorf(KindInvalidSearchSpace, "duplicate parameter %q", p.Name).WithOperation(op)
		}
		seen[p.Name] = struct{}{}

		if err := p.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (p ParameterSpec) validate() error {
	const op = "ParameterSpec.validate"

	switch p.Kind {
	case KindContinuous, KindInteger:
		if p.Lower >= p.Upper {
			return NewErrorf(KindInvalidSearchSpace,
				"parameter %q: lower bound %v must be below upper bound %v", p.Name, p.Lower, p.Upper).WithOperation(op)
		}
		if p.LogScale && p.Lower <= 0 {
			return NewErrorf(KindInvalidSearchSpace,
				"parameter %q: log scale requires a positive lower bound, got %v", p.Name, p.Lower).WithOperation(op)
		}
	case KindDiscrete:
		if len(p.Values) == 0 {
			return NewErrorf(KindInvalidSearchSpace, "parameter %q: no discrete values", p.Name).WithOperation(op)
		}
	case KindCategorical:
		if len(p.Labels) == 0 {
			return NewErrorf(KindInvalidSearchSpace, "parameter %q: no categorical labels", p.Name).WithOperation(op)
		}
		seen := make(map[string]struct{}, len(p.Labels))
		for _, l := range p.Labels {
			if _, dup := seen[l]; dup {
				return NewErrorf(KindInvalidSearchSpace, "parameter %q: duplicate label %q", p.Name, l).WithOperation(op)
			}
			seen[l] = struct{}{}
		}
	default:
		return NewErrorf(KindInvalidSearchSpace, "parameter %q: unknown kind %q", p.Name, p.Kind).WithOperation(op)
	}
	return nil
}

// EncodedDim returns the length of the feature encoding: one coordinate per
// non-categorical parameter, one per label for categorical parameters.
func (s SearchSpace) EncodedDim() int {
	dim := 0
	for _, p := range s.Params {
		if p.Kind == KindCategorical {
			dim += len(p.Labels)
		} else {
			dim++
		}
	}
	return dim
}

// DefaultLengthScales returns the per-coordinate kernel length scales for
// this space: 0.5 for log-scale coordinates, 0.2 for other numeric ones and
// 1.0 for categorical one-hot coordinates.
func (s SearchSpace) DefaultLengthScales() []float64 {
	scales := make([]float64, 0, s.EncodedDim())
	for _, p := range s.Params {
		switch {
		case p.Kind == KindCategorical:
			for range p.Labels {
				scales = append(scales, 1.0)
			}
		case p.LogScale:
			scales = append(scales, 0.5)
		default:
			scales = append(scales, 0.2)
		}
	}
	return scales
}

// ValidateConfig checks that cfg has exactly one well-typed, in-range value
// per parameter of the space.
func (s SearchSpace) ValidateConfig(cfg Configuration) error {
	const op = "SearchSpace.ValidateConfig"

	if len(cfg) != len(s.Params) {
		return NewErrorf(KindInvalidConfiguration,
			"configuration has %d values, space has %d parameters", len(cfg), len(s.Params)).WithOperation(op)
	}
	for _, p := range s.Params {
		v, ok := cfg[p.Name]
		if !ok {
			return NewErrorf(KindInvalidConfiguration, "missing parameter %q", p.Name).WithOperation(op)
		}
		switch p.Kind {
		case KindContinuous:
			if v.Number < p.Lower || v.Number > p.Upper {
				return NewErrorf(KindInvalidConfiguration,
					"parameter %q: value %v outside [%v, %v]", p.Name, v.Number, p.Lower, p.Upper).WithOperation(op)
			}
		case KindInteger:
			if v.Number != math.Trunc(v.Number) || v.Number < p.Lower || v.Number > p.Upper {
				return NewErrorf(KindInvalidConfiguration,
					"parameter %q: value %v is not an integer in [%v, %v]", p.Name, v.Number, p.Lower, p.Upper).WithOperation(op)
			}
		case KindDiscrete:
			if indexOfValue(p.Values, v.Number) < 0 {
				return NewErrorf(KindInvalidConfiguration,
					"parameter %q: %v is not one of the allowed values", p.Name, v.Number).WithOperation(op)
			}
		case KindCategorical:
			if indexOfLabel(p.Labels, v.Label) < 0 {
				return NewErrorf(KindInvalidConfiguration,
					"parameter %q: %q is not one of the allowed labels", p.Name, v.Label).WithOperation(op)
			}
		}
	}
	return nil
}

// Encode maps a configuration to its feature vector. Numeric coordinates
// are normalized to [0,1] (log-normalized for log-scale parameters),
// discrete coordinates are index/len(values), categorical parameters
// contribute a one-hot block.
func (s SearchSpace) Encode(cfg Configuration) (FeatureVector, error) {
	const op = "SearchSpace.Encode"

	if err := s.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	x := make(FeatureVector, 0, s.EncodedDim())
	for _, p := range s.Params {
		v := cfg[p.Name]
		switch p.Kind {
		case KindContinuous, KindInteger:
			x = append(x, normalize(p, v.Number))
		case KindDiscrete:
			i := indexOfValue(p.Values, v.Number)
			x = append(x, float64(i)/float64(len(p.Values)))
		case KindCategorical:
			i := indexOfLabel(p.Labels, v.Label)
			for j := range p.Labels {
				if j == i {
					x = append(x, 1)
				} else {
					x = append(x, 0)
				}
			}
		}
	}
	return x, nil
}

// Decode is the inverse of Encode. Non-categorical coordinates round-trip
// within floating-point tolerance; categorical blocks decode by argmax.
func (s SearchSpace) Decode(x FeatureVector) (Configuration, error) {
	const op = "SearchSpace.Decode"

	if len(x) != s.EncodedDim() {
		return nil, NewErrorf(KindInvalidConfiguration,
			"feature vector has %d coordinates, space encodes to %d", len(x), s.EncodedDim()).WithOperation(op)
	}

	cfg := make(Configuration, len(s.Params))
	pos := 0
	for _, p := range s.Params {
		switch p.Kind {
		case KindContinuous:
			cfg[p.Name] = Value{Number: denormalize(p, x[pos])}
			pos++
		case KindInteger:
			v := math.Round(denormalize(p, x[pos]))
			cfg[p.Name] = Value{Number: clamp(v, p.Lower, p.Upper)}
			pos++
		case KindDiscrete:
			i := int(math.Round(x[pos] * float64(len(p.Values))))
			if i < 0 {
				i = 0
			}
			if i >= len(p.Values) {
				i = len(p.Values) - 1
			}
			cfg[p.Name] = Value{Number: p.Values[i]}
			pos++
		case KindCategorical:
			best, bestVal := 0, math.Inf(-1)
			for j := range p.Labels {
				if x[pos+j] > bestVal {
					best, bestVal = j, x[pos+j]
				}
			}
			cfg[p.Name] = Value{Label: p.Labels[best]}
			pos += len(p.Labels)
		}
	}
	return cfg, nil
}

// Equal reports whether two configurations hold identical values.
func (c Configuration) Equal(other Configuration) bool {
	if len(c) != len(other) {
		return false
	}
	for name, v := range c {
		ov, ok := other[name]
		if !ok || v != ov {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the configuration.
func (c Configuration) Clone() Configuration {
	out := make(Configuration, len(c))
	for name, v := range c {
		out[name] = v
	}
	return out
}

func normalize(p ParameterSpec, v float64) float64 {
	if p.LogScale {
		return (math.Log(v) - math.Log(p.Lower)) / (math.Log(p.Upper) - math.Log(p.Lower))
	}
	return (v - p.Lower) / (p.Upper - p.Lower)
}

func denormalize(p ParameterSpec, u float64) float64 {
	if p.LogScale {
		return math.Exp(math.Log(p.Lower) + u*(math.Log(p.Upper)-math.Log(p.Lower)))
	}
	return p.Lower + u*(p.Upper-p.Lower)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func indexOfValue(values []float64, v float64) int {
	for i, w := range values {
		if w == v {
			return i
		}
	}
	return -1
}

func indexOfLabel(labels []string, l string) int {
	for i, w := range labels {
		if w == l {
			return i
		}
	}
	return -1
}

// String implements fmt.Stringer for log output.
func (v Value) String() string {
	if v.Label != "" {
		return v.Label
	}
	return fmt.Sprintf("%g", v.Number)
}
