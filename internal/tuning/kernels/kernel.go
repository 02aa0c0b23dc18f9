// Package kernels provides covariance functions for the Gaussian Process
// surrogate. All kernels carry one length scale per encoded feature
// dimension (automatic relevance determination).
package kernels

import (
	"fmt"
	"math"
)

// Kernel represents a covariance function between encoded feature vectors.
type Kernel interface {
	// Eval computes the kernel value between two points x1 and x2.
	Eval(x1, x2 []float64) float64

	// LengthScales returns the per-dimension length scales.
	LengthScales() []float64

	// SignalVariance returns the signal variance sigma_f^2.
	SignalVariance() float64
}

// RBFKernel implements the squared-exponential kernel with per-dimension
// length scales:
//
//	k(x, y) = sigma_f^2 * exp(-1/2 * sum_d ((x_d - y_d) / l_d)^2)
type RBFKernel struct {
	lengthScales []float64
	signalVar    float64
}

// NewRBFKernel creates an RBF kernel. All length scales and the signal
// variance must be positive.
func NewRBFKernel(lengthScales []float64, signalVar float64) *RBFKernel {
	validateParams(lengthScales, signalVar)
	return &RBFKernel{
		lengthScales: append([]float64(nil), lengthScales...),
		signalVar:    signalVar,
	}
}

// Eval computes the RBF kernel value between x1 and x2.
func (k *RBFKernel) Eval(x1, x2 []float64) float64 {
	return k.signalVar * math.Exp(-0.5*scaledSqDist(x1, x2, k.lengthScales))
}

// LengthScales returns the per-dimension length scales.
func (k *RBFKernel) LengthScales() []float64 {
	return append([]float64(nil), k.lengthScales...)
}

// SignalVariance returns the signal variance.
func (k *RBFKernel) SignalVariance() float64 {
	return k.signalVar
}

// Matern52Kernel implements the Matérn 5/2 kernel with per-dimension
// length scales. It produces rougher sample paths than the RBF kernel and
// is less sensitive to the smoothness assumption.
type Matern52Kernel struct {
	lengthScales []float64
	signalVar    float64
}

// NewMatern52Kernel creates a Matérn 5/2 kernel. All length scales and the
// signal variance must be positive.
func NewMatern52Kernel(lengthScales []float64, signalVar float64) *Matern52Kernel {
	validateParams(lengthScales, signalVar)
	return &Matern52Kernel{
		lengthScales: append([]float64(nil), lengthScales...),
		signalVar:    signalVar,
	}
}

// Eval computes the Matérn 5/2 kernel value between x1 and x2.
func (k *Matern52Kernel) Eval(x1, x2 []float64) float64 {
	r := math.Sqrt(scaledSqDist(x1, x2, k.lengthScales))
	poly := 1.0 + math.Sqrt(5)*r + (5.0/3.0)*r*r
	return k.signalVar * poly * math.Exp(-math.Sqrt(5)*r)
}

// LengthScales returns the per-dimension length scales.
func (k *Matern52Kernel) LengthScales() []float64 {
	return append([]float64(nil), k.lengthScales...)
}

// SignalVariance returns the signal variance.
func (k *Matern52Kernel) SignalVariance() float64 {
	return k.signalVar
}

// scaledSqDist computes sum_d ((x1_d - x2_d) / l_d)^2. The inputs must
// have the same length as the scales.
func scaledSqDist(x1, x2, scales []float64) float64 {
	if len(x1) != len(x2) || len(x1) != len(scales) {
		panic(fmt.Sprintf("kernel input dimension mismatch: %d, %d, %d scales",
			len(x1), len(x2), len(scales)))
	}
	sum := 0.0
	for i := range x1 {
		d := (x1[i] - x2[i]) / scales[i]
		sum += d * d
	}
	return sum
}

func validateParams(lengthScales []float64, signalVar float64) {
	if len(lengthScales) == 0 {
		panic("kernel requires at least one length scale")
	}
	for i, l := range lengthScales {
		if l <= 0 {
			panic(fmt.Sprintf("length scale %d must be positive, got %v", i, l))
		}
	}
	if signalVar <= 0 {
		panic(fmt.Sprintf("signalVar must be positive, got %v", signalVar))
	}
}
