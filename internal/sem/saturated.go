package sem

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	emMaxIterations = 2000
	emTolerance     = 1e-9
)

// saturatedEM estimates the unrestricted mean vector and covariance matrix
// under missing-at-random with the EM algorithm.
func (s *sample) saturatedEM() ([]float64, *mat.SymDense, int, error) {
	p := s.p
	mu := make([]float64, p)
	sigma := mat.NewSymDense(p, nil)
	for j := 0; j < p; j++ {
		m, v, _ := s.available(j)
		mu[j] = m
		sigma.SetSym(j, j, v)
	}

	n := float64(s.n)
	t1 := make([]float64, p)
	t2 := mat.NewSymDense(p, nil)
	xhat := make([]float64, p)
	xv := mat.NewVecDense(p, xhat)

	for iter := 1; iter <= emMaxIterations; iter++ {
		for j := range t1 {
			t1[j] = 0
		}
		t2.Zero()

		for _, pt := range s.patterns {
			miss := complement(pt.obs, p)
			var coef *mat.Dense
			var cond *mat.SymDense
			if len(miss) > 0 {
				var err error
				coef, cond, err = conditional(sigma, pt.obs, miss)
				if err != nil {
					return nil, nil, iter, err
				}
			}
			for _, r := range pt.rows {
				for a, j := range pt.obs {
					xhat[j] = r[a]
				}
				if len(miss) > 0 {
					for b, m := range miss {
						v := mu[m]
						for a, j := range pt.obs {
							v += coef.At(b, a) * (r[a] - mu[j])
						}
						xhat[m] = v
					}
				}
				for j, v := range xhat {
					t1[j] += v
				}
				t2.SymRankOne(t2, 1, xv)
				for b, m := range miss {
					for c := b; c < len(miss); c++ {
						t2.SetSym(m, miss[c], t2.At(m, miss[c])+cond.At(b, c))
					}
				}
			}
		}

		var delta float64
		next := make([]float64, p)
		for j := range next {
			next[j] = t1[j] / n
			delta = math.Max(delta, math.Abs(next[j]-mu[j]))
		}
		for i := 0; i < p; i++ {
			for j := i; j < p; j++ {
				v := t2.At(i, j)/n - next[i]*next[j]
				delta = math.Max(delta, math.Abs(v-sigma.At(i, j)))
				sigma.SetSym(i, j, v)
			}
		}
		mu = next
		if delta < emTolerance {
			return mu, sigma, iter, nil
		}
	}
	return mu, sigma, emMaxIterations, fmt.Errorf("EM did not converge in %d iterations", emMaxIterations)
}

// conditional returns the regression coefficients of the missing block on
// the observed block and the residual covariance of the missing block.
func conditional(sigma *mat.SymDense, obs, miss []int) (*mat.Dense, *mat.SymDense, error) {
	soo := mat.NewSymDense(len(obs), nil)
	soo.SubsetSym(sigma, obs)
	var chol mat.Cholesky
	if !chol.Factorize(soo) {
		return nil, nil, errNotPositiveDefinite
	}
	smo := mat.NewDense(len(miss), len(obs), nil)
	for b, m := range miss {
		for a, o := range obs {
			smo.Set(b, a, sigma.At(m, o))
		}
	}
	// coef = Σ_mo Σ_oo⁻¹, solved as Σ_oo coefᵀ = Σ_om.
	var coefT mat.Dense
	if err := chol.SolveTo(&coefT, smo.T()); err != nil {
		return nil, nil, err
	}
	coef := mat.DenseCopyOf(coefT.T())

	var explained mat.Dense
	explained.Mul(coef, smo.T())
	cond := mat.NewSymDense(len(miss), nil)
	for b, m := range miss {
		for c := b; c < len(miss); c++ {
			cond.SetSym(b, c, sigma.At(m, miss[c])-explained.At(b, c))
		}
	}
	return coef, cond, nil
}

func complement(obs []int, p int) []int {
	var out []int
	k := 0
	for j := 0; j < p; j++ {
		if k < len(obs) && obs[k] == j {
			k++
			continue
		}
		out = append(out, j)
	}
	return out
}

// independence returns the closed-form FIML solution of the model with
// free means and variances and no covariances.
func (s *sample) independence() ([]float64, *mat.SymDense) {
	mu := make([]float64, s.p)
	sigma := mat.NewSymDense(s.p, nil)
	for j := 0; j < s.p; j++ {
		m, v, _ := s.available(j)
		mu[j] = m
		sigma.SetSym(j, j, v)
	}
	return mu, sigma
}

// saturatedStructure parameterizes μ and the lower triangle of Σ directly.
type saturatedStructure struct {
	p int
}

func (st saturatedStructure) dim() int {
	return moments(st.p)
}

func (st saturatedStructure) pack(mu []float64, sigma *mat.SymDense) []float64 {
	x := make([]float64, 0, st.dim())
	x = append(x, mu...)
	for i := 0; i < st.p; i++ {
		for j := i; j < st.p; j++ {
			x = append(x, sigma.At(i, j))
		}
	}
	return x
}

func (st saturatedStructure) implied(x []float64) ([]float64, *mat.SymDense, error) {
	mu := append([]float64(nil), x[:st.p]...)
	sigma := mat.NewSymDense(st.p, nil)
	k := st.p
	for i := 0; i < st.p; i++ {
		for j := i; j < st.p; j++ {
			sigma.SetSym(i, j, x[k])
			k++
		}
	}
	return mu, sigma, nil
}

func (st saturatedStructure) pullback(_ []float64, gMu []float64, g *mat.SymDense, dst []float64) error {
	copy(dst, gMu)
	k := st.p
	for i := 0; i < st.p; i++ {
		for j := i; j < st.p; j++ {
			if i == j {
				dst[k] = g.At(i, i)
			} else {
				dst[k] = 2 * g.At(i, j)
			}
			k++
		}
	}
	return nil
}

// independenceStructure parameterizes μ and the diagonal of Σ.
type independenceStructure struct {
	p int
}

func (st independenceStructure) dim() int {
	return 2 * st.p
}

func (st independenceStructure) pack(mu []float64, sigma *mat.SymDense) []float64 {
	x := append([]float64(nil), mu...)
	for j := 0; j < st.p; j++ {
		x = append(x, sigma.At(j, j))
	}
	return x
}

func (st independenceStructure) implied(x []float64) ([]float64, *mat.SymDense, error) {
	mu := append([]float64(nil), x[:st.p]...)
	sigma := mat.NewSymDense(st.p, nil)
	for j := 0; j < st.p; j++ {
		sigma.SetSym(j, j, x[st.p+j])
	}
	return mu, sigma, nil
}

func (st independenceStructure) pullback(_ []float64, gMu []float64, g *mat.SymDense, dst []float64) error {
	copy(dst, gMu)
	for j := 0; j < st.p; j++ {
		dst[st.p+j] = g.At(j, j)
	}
	return nil
}
