package sem

import (
	"fmt"

	"gocfa/domain/model"

	"gonum.org/v1/gonum/mat"
)

// structure maps a free-parameter vector to model-implied moments and pulls
// likelihood derivatives with respect to those moments back onto the
// parameters.
type structure interface {
	dim() int
	implied(x []float64) (mu []float64, sigma *mat.SymDense, err error)
	// pullback writes dℓ/dx given dℓ/dμ and dℓ/dΣ (symmetric, in the
	// tr(G·dΣ) convention).
	pullback(x []float64, gMu []float64, gSigma *mat.SymDense, dst []float64) error
}

type paramKind int

const (
	kindLoading    paramKind = iota // Λ[row][col]: observed row on factor col
	kindRegression                  // B[row][col]: factor row on factor col
	kindResidual                    // Θ[row][col]
	kindFactor                      // Ψ[row][col]
	kindIntercept                   // ν[row]
)

type parameter struct {
	kind     paramKind
	row, col int
	lhs, op  string
	rhs      string
	free     bool
	value    float64
	logScale bool
}

// cfaStructure is a compiled Specification:
//
//	Σ = Λ (I-B)⁻¹ Ψ (I-B)⁻ᵀ Λᵀ + Θ,  μ = ν
type cfaStructure struct {
	spec     model.Specification
	observed []string
	latent   []string
	p, m     int
	params   []parameter
	free     []int
}

type matrices struct {
	lambda *mat.Dense
	beta   *mat.Dense
	a      *mat.Dense
	psi    *mat.SymDense
	theta  *mat.SymDense
	nu     []float64
	m      *mat.Dense
}

func compile(spec model.Specification) (*cfaStructure, error) {
	if err := spec.Validate(nil); err != nil {
		return nil, err
	}
	c := &cfaStructure{
		spec:     spec,
		observed: spec.Observed(),
		latent:   spec.Latents(),
	}
	c.p, c.m = len(c.observed), len(c.latent)

	obs := indexOf(c.observed)
	lat := indexOf(c.latent)

	add := func(p parameter) {
		c.params = append(c.params, p)
	}

	for _, f := range spec.Factors {
		if f.IsSecondOrder() {
			// Two children cannot separate both loadings from the factor
			// variance, so both are fixed.
			fixAll := len(f.Of) <= 2
			for k, child := range f.Of {
				free := k > 0 && !fixAll
				add(parameter{kind: kindRegression, row: lat[child], col: lat[f.Name],
					lhs: f.Name, op: "=~", rhs: child, free: free, value: 1})
			}
			continue
		}
		for k, ind := range f.Indicators {
			add(parameter{kind: kindLoading, row: obs[ind], col: lat[f.Name],
				lhs: f.Name, op: "=~", rhs: ind, free: k > 0, value: 1})
		}
	}

	for i, v := range c.observed {
		add(parameter{kind: kindResidual, row: i, col: i, lhs: v, op: "~~", rhs: v, free: true, logScale: true})
	}
	for _, cv := range spec.Covariances {
		i, iok := obs[cv.Left]
		j, jok := obs[cv.Right]
		if !iok || !jok {
			continue
		}
		add(parameter{kind: kindResidual, row: i, col: j, lhs: cv.Left, op: "~~", rhs: cv.Right, free: true})
	}

	for a, f := range c.latent {
		add(parameter{kind: kindFactor, row: a, col: a, lhs: f, op: "~~", rhs: f, free: true, logScale: true})
	}

	var exo []string
	for _, f := range c.latent {
		if _, ok := spec.Parent(f); !ok {
			exo = append(exo, f)
		}
	}
	seen := make(map[[2]int]bool)
	for i := 0; i < len(exo); i++ {
		for j := i + 1; j < len(exo); j++ {
			a, b := lat[exo[i]], lat[exo[j]]
			seen[[2]int{a, b}] = true
			add(parameter{kind: kindFactor, row: a, col: b, lhs: exo[i], op: "~~", rhs: exo[j], free: !spec.FixedZero(exo[i], exo[j])})
		}
	}
	for _, cv := range spec.Covariances {
		a, aok := lat[cv.Left]
		b, bok := lat[cv.Right]
		if !aok || !bok {
			continue
		}
		key := [2]int{min(a, b), max(a, b)}
		if seen[key] {
			for k := range c.params {
				p := &c.params[k]
				if p.kind == kindFactor && p.row == key[0] && p.col == key[1] {
					p.free = true
				}
			}
			continue
		}
		seen[key] = true
		add(parameter{kind: kindFactor, row: key[0], col: key[1], lhs: c.latent[key[0]], op: "~~", rhs: c.latent[key[1]], free: true})
	}

	for i, v := range c.observed {
		add(parameter{kind: kindIntercept, row: i, lhs: v, op: "~1", free: true})
	}

	for k, p := range c.params {
		if p.free {
			c.free = append(c.free, k)
		}
	}
	return c, nil
}

func indexOf(names []string) map[string]int {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		idx[n] = i
	}
	return idx
}

func (c *cfaStructure) dim() int {
	return len(c.free)
}

// values expands the free vector into a value for every parameter.
func (c *cfaStructure) values(x []float64) []float64 {
	vals := make([]float64, len(c.params))
	for k, p := range c.params {
		vals[k] = p.value
	}
	for j, k := range c.free {
		vals[k] = x[j]
	}
	return vals
}

func (c *cfaStructure) build(x []float64) (*matrices, error) {
	if len(x) != len(c.free) {
		return nil, fmt.Errorf("parameter vector has length %d, expected %d", len(x), len(c.free))
	}
	mx := &matrices{
		lambda: mat.NewDense(c.p, c.m, nil),
		beta:   mat.NewDense(c.m, c.m, nil),
		psi:    mat.NewSymDense(c.m, nil),
		theta:  mat.NewSymDense(c.p, nil),
		nu:     make([]float64, c.p),
	}
	for k, v := range c.values(x) {
		p := c.params[k]
		switch p.kind {
		case kindLoading:
			mx.lambda.Set(p.row, p.col, v)
		case kindRegression:
			mx.beta.Set(p.row, p.col, v)
		case kindResidual:
			mx.theta.SetSym(p.row, p.col, v)
		case kindFactor:
			mx.psi.SetSym(p.row, p.col, v)
		case kindIntercept:
			mx.nu[p.row] = v
		}
	}

	ib := mat.NewDense(c.m, c.m, nil)
	for i := 0; i < c.m; i++ {
		ib.Set(i, i, 1)
	}
	ib.Sub(ib, mx.beta)
	mx.a = mat.NewDense(c.m, c.m, nil)
	if err := mx.a.Inverse(ib); err != nil {
		return nil, fmt.Errorf("factor regression matrix is singular: %w", err)
	}
	mx.m = mat.NewDense(c.m, c.m, nil)
	mx.m.Product(mx.a, mx.psi, mx.a.T())
	return mx, nil
}

func (c *cfaStructure) implied(x []float64) ([]float64, *mat.SymDense, error) {
	mx, err := c.build(x)
	if err != nil {
		return nil, nil, err
	}
	return mx.nu, c.sigma(mx), nil
}

func (c *cfaStructure) sigma(mx *matrices) *mat.SymDense {
	var lml mat.Dense
	lml.Product(mx.lambda, mx.m, mx.lambda.T())
	sigma := mat.NewSymDense(c.p, nil)
	for i := 0; i < c.p; i++ {
		for j := i; j < c.p; j++ {
			sigma.SetSym(i, j, 0.5*(lml.At(i, j)+lml.At(j, i))+mx.theta.At(i, j))
		}
	}
	return sigma
}

func (c *cfaStructure) pullback(x []float64, gMu []float64, g *mat.SymDense, dst []float64) error {
	mx, err := c.build(x)
	if err != nil {
		return err
	}

	var gl, glm, ltgl, k, pm mat.Dense
	gl.Mul(g, mx.lambda)
	glm.Mul(&gl, mx.m)
	ltgl.Mul(mx.lambda.T(), &gl)
	k.Product(mx.m, &ltgl, mx.a)
	pm.Product(mx.a.T(), &ltgl, mx.a)

	for j, idx := range c.free {
		p := c.params[idx]
		switch p.kind {
		case kindLoading:
			dst[j] = 2 * glm.At(p.row, p.col)
		case kindRegression:
			dst[j] = 2 * k.At(p.col, p.row)
		case kindResidual:
			if p.row == p.col {
				dst[j] = g.At(p.row, p.row)
			} else {
				dst[j] = 2 * g.At(p.row, p.col)
			}
		case kindFactor:
			if p.row == p.col {
				dst[j] = pm.At(p.row, p.row)
			} else {
				dst[j] = pm.At(p.row, p.col) + pm.At(p.col, p.row)
			}
		case kindIntercept:
			dst[j] = gMu[p.row]
		}
	}
	return nil
}

// logScale reports which free parameters are variances.
func (c *cfaStructure) logScale() []bool {
	out := make([]bool, len(c.free))
	for j, idx := range c.free {
		out[j] = c.params[idx].logScale
	}
	return out
}

// moments returns the number of sample moments (covariances plus means).
func moments(p int) int {
	return p*(p+1)/2 + p
}
