package bayesian

import "gonum.org/v1/gonum/mat"

// matrixPool recycles symmetric matrices across surrogate refits. The
// constant-liar selector refits the GP several times per batch on training
// sets of adjacent sizes, so pooling by order avoids most allocations.
type matrixPool struct {
	sym map[int][]*mat.SymDense
}

func newMatrixPool() *matrixPool {
	return &matrixPool{sym: make(map[int][]*mat.SymDense)}
}

// getSym returns a zeroed n-by-n symmetric matrix.
func (p *matrixPool) getSym(n int) *mat.SymDense {
	if free := p.sym[n]; len(free) > 0 {
		m := free[len(free)-1]
		p.sym[n] = free[:len(free)-1]
		m.Zero()
		return m
	}
	return mat.NewSymDense(n, nil)
}

// putSym returns a matrix to the pool.
func (p *matrixPool) putSym(m *mat.SymDense) {
	if m == nil {
		return
	}
	n := m.SymmetricDim()
	p.sym[n] = append(p.sym[n], m)
}
