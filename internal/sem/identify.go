package sem

import (
	"fmt"
	"math"

	"gocfa/domain/core"

	"gonum.org/v1/gonum/mat"
)

// degreesOfFreedom returns sample moments minus free parameters.
func (c *cfaStructure) degreesOfFreedom() int {
	return moments(c.p) - c.dim()
}

// identify applies the counting rule and the local rules that can be
// checked before estimation.
func (c *cfaStructure) identify() error {
	if df := c.degreesOfFreedom(); df < 0 {
		return fmt.Errorf("%w: %d sample moments, %d free parameters (df = %d)",
			core.ErrNegativeDF, moments(c.p), c.dim(), df)
	}
	for _, f := range c.spec.Factors {
		if f.IsSecondOrder() {
			if len(f.Of) < 2 {
				return fmt.Errorf("%w: second-order factor %s has a single child", core.ErrUnidentifiedModel, f.Name)
			}
			continue
		}
		switch {
		case len(f.Indicators) < 2:
			return fmt.Errorf("%w: factor %s has fewer than 2 indicators", core.ErrUnidentifiedModel, f.Name)
		case len(f.Indicators) == 2 && c.isolated(f.Name):
			return fmt.Errorf("%w: factor %s has 2 indicators and no covariance with another factor", core.ErrUnidentifiedModel, f.Name)
		}
	}
	return nil
}

// boundary rejects a solution where a variance has collapsed onto zero.
// Variances live on the log scale, so a negative (Heywood) estimate shows
// up as a variance that shrinks toward zero without bound.
func (c *cfaStructure) boundary(x []float64, scale, tol float64) error {
	for j, idx := range c.free {
		p := c.params[idx]
		if p.logScale && x[j] < tol*scale {
			return fmt.Errorf("%w: %s ~~ %s = %.3g", core.ErrBoundaryVariance, p.lhs, p.rhs, x[j])
		}
	}
	return nil
}

// meanVariance returns the mean diagonal entry of s.
func meanVariance(s *mat.SymDense) float64 {
	n := s.SymmetricDim()
	var sum float64
	for i := 0; i < n; i++ {
		sum += s.At(i, i)
	}
	return sum / float64(n)
}

// isolated reports whether a factor shares no free covariance or parent
// with any other factor.
func (c *cfaStructure) isolated(name string) bool {
	if _, ok := c.spec.Parent(name); ok {
		return false
	}
	for _, p := range c.params {
		if p.kind == kindFactor && p.row != p.col && p.free &&
			(p.lhs == name || p.rhs == name) {
			return false
		}
	}
	return true
}

// start derives starting values from the saturated moments.
func (c *cfaStructure) start(mu []float64, s *mat.SymDense) []float64 {
	obs := indexOf(c.observed)
	lat := indexOf(c.latent)

	psi := make([]float64, c.m)
	loading := make(map[[2]int]float64)
	marker := make([]int, c.m)
	for i := range marker {
		marker[i] = -1
	}

	for _, f := range c.spec.Factors {
		if f.IsSecondOrder() {
			continue
		}
		a := lat[f.Name]
		mk := obs[f.Indicators[0]]
		marker[a] = mk
		smm := s.At(mk, mk)

		var sum float64
		for _, ind := range f.Indicators[1:] {
			sum += s.At(mk, obs[ind])
		}
		psi0 := sum / float64(len(f.Indicators)-1)
		psi0 = math.Max(psi0, 0.05*smm)
		psi[a] = psi0

		loading[[2]int{mk, a}] = 1
		for _, ind := range f.Indicators[1:] {
			j := obs[ind]
			l := s.At(mk, j) / psi0
			loading[[2]int{j, a}] = math.Max(-5, math.Min(5, l))
		}
	}

	// Second-order factors take the covariance of their first two
	// children's markers; each child keeps the remainder as disturbance.
	for _, f := range c.spec.Factors {
		if !f.IsSecondOrder() {
			continue
		}
		g := lat[f.Name]
		a, b := lat[f.Of[0]], lat[f.Of[1]]
		floor := 0.05 * math.Min(psi[a], psi[b])
		phi := floor
		if marker[a] >= 0 && marker[b] >= 0 {
			phi = math.Max(s.At(marker[a], marker[b]), floor)
		}
		psi[g] = phi
		for _, child := range f.Of {
			k := lat[child]
			psi[k] = math.Max(psi[k]-phi, 0.1*psi[k])
		}
	}

	x := make([]float64, c.dim())
	for j, idx := range c.free {
		p := c.params[idx]
		switch p.kind {
		case kindLoading:
			x[j] = loading[[2]int{p.row, p.col}]
		case kindRegression:
			x[j] = 1
		case kindResidual:
			if p.row != p.col {
				continue
			}
			sii := s.At(p.row, p.row)
			var common float64
			for a := 0; a < c.m; a++ {
				l := loading[[2]int{p.row, a}]
				common += l * l * psi[a]
			}
			x[j] = math.Max(sii-common, 0.1*sii)
		case kindFactor:
			if p.row == p.col {
				x[j] = psi[p.row]
			}
		case kindIntercept:
			x[j] = mu[p.row]
		}
	}
	return x
}
