package sem

import (
	"errors"
	"fmt"
	"math"

	"gocfa/domain/core"

	"gonum.org/v1/gonum/mat"
)

var errNotPositiveDefinite = errors.New("implied covariance is not positive definite")

// pattern groups the cases sharing one set of observed variables.
type pattern struct {
	obs  []int
	rows [][]float64 // observed values only, len(obs) each
	mean []float64
	cov  *mat.SymDense // biased (divisor n) covariance about mean
}

func (pt *pattern) n() int {
	return len(pt.rows)
}

// sample is a data matrix split into missingness patterns for full
// information maximum likelihood.
type sample struct {
	vars     []string
	p        int
	n        int
	dropped  int
	patterns []*pattern
}

func newSample(vars []string, data [][]float64) (*sample, error) {
	s := &sample{vars: vars, p: len(vars)}
	byKey := make(map[string]*pattern)

	key := make([]byte, s.p)
	for r, row := range data {
		if len(row) != s.p {
			return nil, fmt.Errorf("row %d has %d values, expected %d", r, len(row), s.p)
		}
		var obs []int
		for j, v := range row {
			if math.IsNaN(v) {
				key[j] = '0'
				continue
			}
			key[j] = '1'
			obs = append(obs, j)
		}
		if len(obs) == 0 {
			s.dropped++
			continue
		}
		pt, ok := byKey[string(key)]
		if !ok {
			pt = &pattern{obs: obs}
			byKey[string(key)] = pt
			s.patterns = append(s.patterns, pt)
		}
		vals := make([]float64, len(obs))
		for k, j := range obs {
			vals[k] = row[j]
		}
		pt.rows = append(pt.rows, vals)
		s.n++
	}

	if s.n < 2 {
		return nil, fmt.Errorf("%w: %d usable rows", core.ErrInsufficientData, s.n)
	}
	for _, pt := range s.patterns {
		pt.mean, pt.cov = moments1(pt.rows, len(pt.obs))
	}
	for j, v := range s.vars {
		_, variance, count := s.available(j)
		if count < 2 || variance <= 0 {
			return nil, fmt.Errorf("%w: %s has %d observed values and variance %g", core.ErrInsufficientData, v, count, variance)
		}
	}
	return s, nil
}

// moments1 returns the mean and biased covariance of rows.
func moments1(rows [][]float64, k int) ([]float64, *mat.SymDense) {
	n := float64(len(rows))
	mean := make([]float64, k)
	for _, r := range rows {
		for j, v := range r {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= n
	}
	cov := mat.NewSymDense(k, nil)
	d := make([]float64, k)
	dv := mat.NewVecDense(k, d)
	for _, r := range rows {
		for j, v := range r {
			d[j] = v - mean[j]
		}
		cov.SymRankOne(cov, 1/n, dv)
	}
	return mean, cov
}

// available returns the available-case mean, biased variance and count of
// variable j.
func (s *sample) available(j int) (mean, variance float64, count int) {
	var sum float64
	for _, pt := range s.patterns {
		k := position(pt.obs, j)
		if k < 0 {
			continue
		}
		for _, r := range pt.rows {
			sum += r[k]
			count++
		}
	}
	if count == 0 {
		return math.NaN(), math.NaN(), 0
	}
	mean = sum / float64(count)
	for _, pt := range s.patterns {
		k := position(pt.obs, j)
		if k < 0 {
			continue
		}
		for _, r := range pt.rows {
			d := r[k] - mean
			variance += d * d
		}
	}
	return mean, variance / float64(count), count
}

func position(obs []int, j int) int {
	for k, o := range obs {
		if o == j {
			return k
		}
	}
	return -1
}

// sub holds the observed block of the implied moments for one pattern.
type sub struct {
	d    []float64 // pattern mean minus implied mean
	w    *mat.SymDense
	chol mat.Cholesky
}

func (s *sample) block(pt *pattern, mu []float64, sigma *mat.SymDense) (*sub, error) {
	k := len(pt.obs)
	so := mat.NewSymDense(k, nil)
	so.SubsetSym(sigma, pt.obs)
	b := &sub{d: make([]float64, k), w: mat.NewSymDense(k, nil)}
	if ok := b.chol.Factorize(so); !ok {
		return nil, errNotPositiveDefinite
	}
	if err := b.chol.InverseTo(b.w); err != nil {
		return nil, errNotPositiveDefinite
	}
	for a, j := range pt.obs {
		b.d[a] = pt.mean[a] - mu[j]
	}
	return b, nil
}

// evaluate returns the FIML log-likelihood at (mu, sigma). When gMu and
// gSigma are non-nil they receive dℓ/dμ and dℓ/dΣ.
func (s *sample) evaluate(mu []float64, sigma *mat.SymDense, gMu []float64, gSigma *mat.SymDense) (float64, error) {
	if gMu != nil {
		for i := range gMu {
			gMu[i] = 0
		}
		gSigma.Zero()
	}
	var ll float64
	for _, pt := range s.patterns {
		b, err := s.block(pt, mu, sigma)
		if err != nil {
			return math.NaN(), err
		}
		k := len(pt.obs)
		n := float64(pt.n())

		var trWS float64
		for a := 0; a < k; a++ {
			for c := 0; c < k; c++ {
				trWS += b.w.At(a, c) * pt.cov.At(a, c)
			}
		}
		dv := mat.NewVecDense(k, b.d)
		wd := mat.NewVecDense(k, nil)
		wd.MulVec(b.w, dv)
		dwd := mat.Dot(dv, wd)

		ll += -n / 2 * (float64(k)*math.Log(2*math.Pi) + b.chol.LogDet() + trWS + dwd)

		if gMu == nil {
			continue
		}
		for a, j := range pt.obs {
			gMu[j] += n * wd.AtVec(a)
		}
		v := mat.NewSymDense(k, nil)
		v.CopySym(pt.cov)
		v.SymRankOne(v, 1, dv)
		var wvw mat.Dense
		wvw.Product(b.w, v, b.w)
		for a := 0; a < k; a++ {
			for c := a; c < k; c++ {
				g := -n / 2 * (b.w.At(a, c) - wvw.At(a, c))
				i, j := pt.obs[a], pt.obs[c]
				gSigma.SetSym(i, j, gSigma.At(i, j)+g)
			}
		}
	}
	return ll, nil
}

// cases calls fn once per case with that case's dℓ/dμ and dℓ/dΣ.
func (s *sample) cases(mu []float64, sigma *mat.SymDense, fn func(gMu []float64, gSigma *mat.SymDense) error) error {
	gMu := make([]float64, s.p)
	gSigma := mat.NewSymDense(s.p, nil)
	for _, pt := range s.patterns {
		b, err := s.block(pt, mu, sigma)
		if err != nil {
			return err
		}
		k := len(pt.obs)
		d := make([]float64, k)
		dv := mat.NewVecDense(k, d)
		wd := mat.NewVecDense(k, nil)
		for _, r := range pt.rows {
			for a, j := range pt.obs {
				d[a] = r[a] - mu[j]
			}
			wd.MulVec(b.w, dv)
			for i := range gMu {
				gMu[i] = 0
			}
			gSigma.Zero()
			for a, i := range pt.obs {
				gMu[i] = wd.AtVec(a)
				for c := a; c < k; c++ {
					gSigma.SetSym(i, pt.obs[c], -0.5*b.w.At(a, c)+0.5*wd.AtVec(a)*wd.AtVec(c))
				}
			}
			if err := fn(gMu, gSigma); err != nil {
				return err
			}
		}
	}
	return nil
}
