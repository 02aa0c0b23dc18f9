// Package bayesian implements the Gaussian Process surrogate, candidate
// selection and the optimization run state machine.
package bayesian

import (
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/quarklabs/hypertune/internal/tuning"
	"github.com/quarklabs/hypertune/internal/tuning/kernels"
)

// Solver selects the strategy for the surrogate's linear solve.
type Solver string

const (
	// SolverCholesky factorizes K with escalating diagonal jitter and
	// computes the exact posterior variance. This is the default.
	SolverCholesky Solver = "cholesky"
	// SolverJacobi is the legacy approximate path: a diagonal initial guess
	// refined by a fixed number of Jacobi sweeps, with a diagonal-dominance
	// variance approximation.
	SolverJacobi Solver = "jacobi"
)

const (
	// baseJitter is added to the diagonal on the first failed factorization
	// and escalated tenfold per retry.
	baseJitter = 1e-6
	// maxJitterAttempts bounds the escalation.
	maxJitterAttempts = 8
	// jacobiSweeps is the fixed refinement count of the legacy solver.
	jacobiSweeps = 5
	// minObservations below which the surrogate stays a flat prior.
	minObservations = 2
)

// GP is a Gaussian Process regression model over encoded feature vectors.
// With fewer than two observations it reports the flat prior (mean 0,
// variance 1) instead of attempting a degenerate fit.
type GP struct {
	kernel   kernels.Kernel
	noiseVar float64
	solver   Solver

	// Training data, retained between fits.
	X [][]float64
	y []float64

	// Cholesky path state.
	chol  *mat.Cholesky
	alpha *mat.VecDense

	// Jacobi path state.
	diag []float64

	flat bool

	pool   *matrixPool
	logger *zap.Logger
}

// NewGP creates a Gaussian Process with the given kernel, observation
// noise variance and solver strategy. A nil logger disables diagnostics.
func NewGP(kernel kernels.Kernel, noiseVar float64, solver Solver, logger *zap.Logger) *GP {
	if logger == nil {
		logger = zap.NewNop()
	}
	if solver == "" {
		solver = SolverCholesky
	}
	return &GP{
		kernel:   kernel,
		noiseVar: noiseVar,
		solver:   solver,
		flat:     true,
		pool:     newMatrixPool(),
		logger:   logger.Named("surrogate"),
	}
}

// Fit refits the model on the given observations. With fewer than two
// observations the model degrades to the flat prior and Fit returns nil.
func (gp *GP) Fit(obs []tuning.Observation) error {
	const op = "GP.Fit"

	gp.X = make([][]float64, len(obs))
	gp.y = make([]float64, len(obs))
	for i, o := range obs {
		gp.X[i] = append([]float64(nil), o.X...)
		gp.y[i] = o.Score
	}

	if len(obs) < minObservations {
		gp.flat = true
		gp.chol, gp.alpha, gp.diag = nil, nil, nil
		return nil
	}
	gp.flat = false

	n := len(obs)
	K := gp.gramMatrix(n)
	defer gp.pool.putSym(K)

	switch gp.solver {
	case SolverJacobi:
		return gp.fitJacobi(K, n)
	default:
		if err := gp.fitCholesky(K, n); err != nil {
			gp.logger.Warn("Cholesky fit failed, falling back to Jacobi solver",
				zap.Int("samples", n),
				zap.Error(err),
			)
			return gp.fitJacobi(K, n)
		}
		return nil
	}
}

// gramMatrix builds K + noise*I over the training points.
func (gp *GP) gramMatrix(n int) *mat.SymDense {
	K := gp.pool.getSym(n)
	for i := 0; i < n; i++ {
		K.SetSym(i, i, gp.kernel.Eval(gp.X[i], gp.X[i])+gp.noiseVar)
		for j := i + 1; j < n; j++ {
			K.SetSym(i, j, gp.kernel.Eval(gp.X[i], gp.X[j]))
		}
	}
	return K
}

// fitCholesky factorizes K, escalating the diagonal jitter on failure, and
// solves K*alpha = y.
func (gp *GP) fitCholesky(K *mat.SymDense, n int) error {
	const op = "GP.fitCholesky"

	y := mat.NewVecDense(n, gp.y)

	jitter := 0.0
	for attempt := 0; attempt < maxJitterAttempts; attempt++ {
		Kj := K
		if jitter > 0 {
			Kj = gp.pool.getSym(n)
			Kj.CopySym(K)
			for i := 0; i < n; i++ {
				Kj.SetSym(i, i, Kj.At(i, i)+jitter)
			}
		}

		var chol mat.Cholesky
		ok := chol.Factorize(Kj)
		if Kj != K {
			gp.pool.putSym(Kj)
		}
		if !ok {
			gp.logger.Debug("Cholesky factorization failed, increasing jitter",
				zap.Int("attempt", attempt+1),
				zap.Float64("jitter", jitter),
			)
			if jitter == 0 {
				jitter = baseJitter
			} else {
				jitter *= 10
			}
			continue
		}

		alpha := mat.NewVecDense(n, nil)
		if err := chol.SolveVecTo(alpha, y); err != nil {
			return tuning.WrapError(err, tuning.KindNumericalInstability, "Cholesky solve failed").
				WithComponent("surrogate").WithOperation(op)
		}
		for i := 0; i < n; i++ {
			if v := alpha.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
				return tuning.NewError(tuning.KindNumericalInstability, "non-finite solution").
					WithComponent("surrogate").WithOperation(op)
			}
		}

		gp.chol = &chol
		gp.alpha = alpha
		gp.diag = nil
		return nil
	}

	return tuning.NewErrorf(tuning.KindNumericalInstability,
		"Cholesky factorization failed after %d jitter attempts", maxJitterAttempts).
		WithComponent("surrogate").WithOperation(op)
}

// fitJacobi solves K*alpha = y approximately: alpha starts from the
// diagonal guess y_i/K_ii and is refined by a fixed number of Jacobi
// sweeps. The diagonal of K is retained for the variance approximation.
func (gp *GP) fitJacobi(K *mat.SymDense, n int) error {
	const op = "GP.fitJacobi"

	diag := make([]float64, n)
	for i := 0; i < n; i++ {
		diag[i] = K.At(i, i)
		if diag[i] <= 0 || math.IsNaN(diag[i]) {
			return tuning.NewErrorf(tuning.KindNumericalInstability,
				"non-positive Gram diagonal at %d", i).
				WithComponent("surrogate").WithOperation(op)
		}
	}

	alpha := make([]float64, n)
	for i := 0; i < n; i++ {
		alpha[i] = gp.y[i] / diag[i]
	}

	next := make([]float64, n)
	for sweep := 0; sweep < jacobiSweeps; sweep++ {
		for i := 0; i < n; i++ {
			sum := 0.0
			for j := 0; j < n; j++ {
				if j != i {
					sum += K.At(i, j) * alpha[j]
				}
			}
			next[i] = (gp.y[i] - sum) / diag[i]
		}
		alpha, next = next, alpha
	}

	for i := 0; i < n; i++ {
		if math.IsNaN(alpha[i]) || math.IsInf(alpha[i], 0) {
			return tuning.NewError(tuning.KindNumericalInstability, "Jacobi iteration diverged").
				WithComponent("surrogate").WithOperation(op)
		}
	}

	gp.alpha = mat.NewVecDense(n, alpha)
	gp.diag = diag
	gp.chol = nil
	return nil
}

// Predict returns the posterior mean and variance at each of the given
// points. An unfitted or flat-prior model reports (0, 1) everywhere.
func (gp *GP) Predict(points [][]float64) (means, variances []float64, err error) {
	const op = "GP.Predict"

	means = make([]float64, len(points))
	variances = make([]float64, len(points))

	if gp.flat || gp.alpha == nil {
		for i := range variances {
			variances[i] = 1
		}
		return means, variances, nil
	}

	n := len(gp.X)
	kstar := make([]float64, n)

	for i, x := range points {
		for j := 0; j < n; j++ {
			kstar[j] = gp.kernel.Eval(x, gp.X[j])
		}
		kss := gp.kernel.Eval(x, x) + gp.noiseVar

		mean := 0.0
		for j := 0; j < n; j++ {
			mean += kstar[j] * gp.alpha.AtVec(j)
		}
		means[i] = mean

		if gp.chol != nil {
			// Exact posterior variance: kss - k*' K^-1 k*.
			v := mat.NewVecDense(n, nil)
			if err := gp.chol.SolveVecTo(v, mat.NewVecDense(n, kstar)); err != nil {
				return nil, nil, tuning.WrapError(err, tuning.KindNumericalInstability,
					"posterior variance solve failed").WithComponent("surrogate").WithOperation(op)
			}
			quad := 0.0
			for j := 0; j < n; j++ {
				quad += kstar[j] * v.AtVec(j)
			}
			variances[i] = math.Max(0, kss-quad)
		} else {
			// Diagonal-dominance approximation used by the Jacobi path.
			sum := 0.0
			for j := 0; j < n; j++ {
				sum += kstar[j] * kstar[j] / gp.diag[j]
			}
			variances[i] = math.Max(0, kss-sum)
		}
	}

	return means, variances, nil
}

// PredictOne is a single-point convenience wrapper around Predict.
func (gp *GP) PredictOne(x []float64) (mean, variance float64, err error) {
	means, vars, err := gp.Predict([][]float64{x})
	if err != nil {
		return 0, 0, err
	}
	return means[0], vars[0], nil
}

// NumObservations returns the size of the current training set.
func (gp *GP) NumObservations() int {
	return len(gp.X)
}
