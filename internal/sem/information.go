package sem

import (
	"fmt"
	"math"

	"gocfa/domain/core"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// gradient returns dℓ/dx for structure st at x.
func (s *sample) gradient(st structure, x []float64) (float64, []float64, error) {
	mu, sigma, err := st.implied(x)
	if err != nil {
		return math.NaN(), nil, err
	}
	gMu := make([]float64, s.p)
	gSigma := mat.NewSymDense(s.p, nil)
	ll, err := s.evaluate(mu, sigma, gMu, gSigma)
	if err != nil {
		return math.NaN(), nil, err
	}
	grad := make([]float64, st.dim())
	if err := st.pullback(x, gMu, gSigma, grad); err != nil {
		return math.NaN(), nil, err
	}
	return ll, grad, nil
}

// observedInformation returns the per-case observed information
// -(1/N) ∂²ℓ/∂x∂xᵀ, by central differences of the analytic gradient.
func (s *sample) observedInformation(st structure, x []float64) (*mat.SymDense, error) {
	k := st.dim()
	var failed error
	h := mat.NewDense(k, k, nil)
	fd.Jacobian(h, func(y, at []float64) {
		_, g, err := s.gradient(st, at)
		if err != nil {
			failed = err
			for i := range y {
				y[i] = math.NaN()
			}
			return
		}
		copy(y, g)
	}, x, &fd.JacobianSettings{Formula: fd.Central})
	if failed != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSingularInfo, failed)
	}

	n := float64(s.n)
	info := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			info.SetSym(i, j, -(h.At(i, j)+h.At(j, i))/(2*n))
		}
	}
	return info, nil
}

// scoreProduct returns (1/N) Σ sᵢsᵢᵀ over the case-wise scores.
func (s *sample) scoreProduct(st structure, x []float64) (*mat.SymDense, error) {
	mu, sigma, err := st.implied(x)
	if err != nil {
		return nil, err
	}
	k := st.dim()
	b := mat.NewSymDense(k, nil)
	score := make([]float64, k)
	sv := mat.NewVecDense(k, score)
	err = s.cases(mu, sigma, func(gMu []float64, gSigma *mat.SymDense) error {
		if err := st.pullback(x, gMu, gSigma, score); err != nil {
			return err
		}
		b.SymRankOne(b, 1/float64(s.n), sv)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// checkInformation rejects a non-positive-definite or ill-conditioned
// information matrix.
func checkInformation(info *mat.SymDense, tol float64) error {
	k, _ := info.Dims()
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			if v := info.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: non-finite entry", core.ErrSingularInfo)
			}
		}
	}
	var eig mat.EigenSym
	if !eig.Factorize(info, false) {
		return fmt.Errorf("%w: eigen decomposition failed", core.ErrSingularInfo)
	}
	vals := eig.Values(nil)
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo <= 0 || lo/hi < tol {
		return fmt.Errorf("%w: smallest eigenvalue %.3g, ratio %.3g", core.ErrSingularInfo, lo, lo/hi)
	}
	return nil
}

// invert inverts a positive definite matrix.
func invert(a *mat.SymDense) (*mat.SymDense, error) {
	var chol mat.Cholesky
	if !chol.Factorize(a) {
		return nil, fmt.Errorf("%w: not positive definite", core.ErrSingularInfo)
	}
	k, _ := a.Dims()
	inv := mat.NewSymDense(k, nil)
	if err := chol.InverseTo(inv); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSingularInfo, err)
	}
	return inv, nil
}

// sandwich returns A⁻¹BA⁻¹.
func sandwich(aInv, b *mat.SymDense) *mat.SymDense {
	var prod mat.Dense
	prod.Product(aInv, b, aInv)
	k, _ := aInv.Dims()
	out := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			out.SetSym(i, j, 0.5*(prod.At(i, j)+prod.At(j, i)))
		}
	}
	return out
}

// traceProduct returns tr(A⁻¹B).
func traceProduct(aInv, b *mat.SymDense) float64 {
	k, _ := aInv.Dims()
	var tr float64
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			tr += aInv.At(i, j) * b.At(j, i)
		}
	}
	return tr
}

// robustTrace returns tr(A⁻¹B) for a structure at its maximum.
func (s *sample) robustTrace(st structure, x []float64) (float64, error) {
	a, err := s.observedInformation(st, x)
	if err != nil {
		return math.NaN(), err
	}
	aInv, err := invert(a)
	if err != nil {
		return math.NaN(), err
	}
	b, err := s.scoreProduct(st, x)
	if err != nil {
		return math.NaN(), err
	}
	return traceProduct(aInv, b), nil
}
