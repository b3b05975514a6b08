package sem

import (
	"math"

	"gocfa/domain/core"
	"gocfa/domain/fit"
	"gocfa/domain/model"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Estimate is one row of the parameter table.
type Estimate struct {
	LHS    string  `json:"lhs"`
	Op     string  `json:"op"`
	RHS    string  `json:"rhs"`
	Free   bool    `json:"free"`
	Value  float64 `json:"est"`
	SE     float64 `json:"se"`
	Z      float64 `json:"z"`
	P      float64 `json:"pvalue"`
	StdAll float64 `json:"std_all"`
}

// Label renders the parameter in model syntax.
func (e Estimate) Label() string {
	if e.Op == "~1" {
		return e.LHS + " ~1"
	}
	return e.LHS + " " + e.Op + " " + e.RHS
}

// Fitted is the immutable outcome of one estimation.
type Fitted struct {
	Spec       model.Specification
	Cohort     string
	CohortHash core.CohortHash
	Estimator  fit.Estimator
	Variables  []string

	N          int
	Dropped    int
	Patterns   int
	Iterations int
	Converged  bool
	NPar       int
	DF         int

	LogL             float64
	UnrestrictedLogL float64
	BaselineLogL     float64

	estimates   []Estimate
	impliedMean []float64
	implied     *mat.SymDense
	sampleMean  []float64
	sampleCov   *mat.SymDense
	measures    *fit.Report
}

// Estimates returns a copy of the parameter table.
func (f *Fitted) Estimates() []Estimate {
	return append([]Estimate(nil), f.estimates...)
}

// Loadings returns the first- and second-order loading rows.
func (f *Fitted) Loadings() []Estimate {
	var out []Estimate
	for _, e := range f.estimates {
		if e.Op == "=~" {
			out = append(out, e)
		}
	}
	return out
}

// Estimate looks up a parameter by its three parts.
func (f *Fitted) Estimate(lhs, op, rhs string) (Estimate, bool) {
	for _, e := range f.estimates {
		if e.LHS == lhs && e.Op == op && e.RHS == rhs {
			return e, true
		}
	}
	return Estimate{}, false
}

// ImpliedMean returns a copy of the model-implied mean vector.
func (f *Fitted) ImpliedMean() []float64 {
	return append([]float64(nil), f.impliedMean...)
}

// ImpliedCovariance returns a copy of the model-implied covariance.
func (f *Fitted) ImpliedCovariance() *mat.SymDense {
	return copySym(f.implied)
}

// SampleMean returns a copy of the EM estimate of the mean vector.
func (f *Fitted) SampleMean() []float64 {
	return append([]float64(nil), f.sampleMean...)
}

// SampleCovariance returns a copy of the EM estimate of the covariance.
func (f *Fitted) SampleCovariance() *mat.SymDense {
	return copySym(f.sampleCov)
}

// Measures extracts the requested statistics in request order. A name
// outside the vocabulary, or a scaled statistic on a non-robust fit, fails
// the whole call.
func (f *Fitted) Measures(request []fit.Statistic) (*fit.Report, error) {
	out := fit.NewReport()
	for _, name := range request {
		if err := name.Check(f.Estimator); err != nil {
			return nil, err
		}
		v, ok := f.measures.Get(name)
		if !ok {
			v = math.NaN()
		}
		out.Set(name, v)
	}
	return out, nil
}

// Measure returns a single statistic.
func (f *Fitted) Measure(name fit.Statistic) (float64, error) {
	r, err := f.Measures([]fit.Statistic{name})
	if err != nil {
		return math.NaN(), err
	}
	v, _ := r.Get(name)
	return v, nil
}

func copySym(a *mat.SymDense) *mat.SymDense {
	if a == nil {
		return nil
	}
	n := a.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(a)
	return out
}

// estimateTable builds parameter rows with standard errors from vcov
// (natural scale, free parameters only) and lavaan std.all values.
func (c *cfaStructure) estimateTable(x []float64, vcov *mat.SymDense) ([]Estimate, error) {
	mx, err := c.build(x)
	if err != nil {
		return nil, err
	}
	sigma := c.sigma(mx)
	vals := c.values(x)

	freeAt := make(map[int]int, len(c.free))
	for j, idx := range c.free {
		freeAt[idx] = j
	}

	sdObs := func(i int) float64 { return math.Sqrt(sigma.At(i, i)) }
	sdLat := func(a int) float64 { return math.Sqrt(mx.m.At(a, a)) }

	out := make([]Estimate, len(c.params))
	for k, p := range c.params {
		e := Estimate{LHS: p.lhs, Op: p.op, RHS: p.rhs, Free: p.free, Value: vals[k],
			Z: math.NaN(), P: math.NaN()}
		if j, ok := freeAt[k]; ok && vcov != nil {
			v := vcov.At(j, j)
			if v > 0 {
				e.SE = math.Sqrt(v)
				e.Z = e.Value / e.SE
				e.P = 2 * distuv.UnitNormal.Survival(math.Abs(e.Z))
			} else {
				e.SE = math.NaN()
			}
		}
		switch p.kind {
		case kindLoading:
			e.StdAll = e.Value * sdLat(p.col) / sdObs(p.row)
		case kindRegression:
			e.StdAll = e.Value * sdLat(p.col) / sdLat(p.row)
		case kindResidual:
			e.StdAll = e.Value / (sdObs(p.row) * sdObs(p.col))
		case kindFactor:
			e.StdAll = e.Value / (sdLat(p.row) * sdLat(p.col))
		case kindIntercept:
			e.StdAll = e.Value / sdObs(p.row)
		}
		out[k] = e
	}
	return out, nil
}
