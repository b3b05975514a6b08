// Package sem fits confirmatory factor models by full-information maximum
// likelihood and computes lavaan-compatible fit measures.
package sem

import (
	"context"
	"fmt"
	"math"
	"time"

	"gocfa/domain/core"
	"gocfa/domain/dataset"
	"gocfa/domain/fit"
	"gocfa/domain/model"
	"gocfa/internal"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// Options configures the fitter.
type Options struct {
	Estimator fit.Estimator
	// MaxIterations bounds the optimizer's major iterations.
	MaxIterations int
	// GradientTolerance is the infinity norm of the per-case gradient at
	// which the optimizer stops.
	GradientTolerance float64
	// ConvergenceTolerance is the largest gradient norm accepted as a
	// solution when the optimizer stops for any other reason.
	ConvergenceTolerance float64
	// SingularTolerance is the smallest accepted ratio of the smallest to
	// the largest eigenvalue of the information matrix.
	SingularTolerance float64
	// BoundaryTolerance is the smallest accepted variance estimate,
	// relative to the mean item variance.
	BoundaryTolerance float64
	Logger            *internal.Logger
}

// DefaultOptions returns MLR with conservative optimizer settings.
func DefaultOptions() Options {
	return Options{
		Estimator:            fit.MLR,
		MaxIterations:        5000,
		GradientTolerance:    1e-7,
		ConvergenceTolerance: 1e-4,
		SingularTolerance:    1e-9,
		BoundaryTolerance:    1e-4,
		Logger:               internal.DefaultLogger,
	}
}

// Fitter estimates models. It holds no per-fit state and is safe for
// concurrent use.
type Fitter struct {
	opts Options
}

// NewFitter fills zero options with defaults.
func NewFitter(opts Options) *Fitter {
	def := DefaultOptions()
	if opts.Estimator == "" {
		opts.Estimator = def.Estimator
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = def.MaxIterations
	}
	if opts.GradientTolerance <= 0 {
		opts.GradientTolerance = def.GradientTolerance
	}
	if opts.ConvergenceTolerance <= 0 {
		opts.ConvergenceTolerance = def.ConvergenceTolerance
	}
	if opts.SingularTolerance <= 0 {
		opts.SingularTolerance = def.SingularTolerance
	}
	if opts.BoundaryTolerance <= 0 {
		opts.BoundaryTolerance = def.BoundaryTolerance
	}
	if opts.Logger == nil {
		opts.Logger = def.Logger
	}
	return &Fitter{opts: opts}
}

// Estimator returns the configured estimator.
func (f *Fitter) Estimator() fit.Estimator {
	return f.opts.Estimator
}

// Fit estimates spec on a cohort's rows.
func (f *Fitter) Fit(ctx context.Context, spec model.Specification, cohort *dataset.Cohort) (*Fitted, error) {
	if err := spec.Validate(cohort.Columns); err != nil {
		return nil, err
	}
	vars := spec.Observed()
	data, err := cohort.Matrix(vars)
	if err != nil {
		return nil, err
	}
	res, err := f.FitMatrix(ctx, spec, vars, data, cohort.Name)
	if err != nil {
		return nil, err
	}
	res.CohortHash = cohort.Hash()
	return res, nil
}

// FitMatrix estimates spec on a rows×vars matrix with NaN for missing
// values. vars must hold the specification's observed variables.
func (f *Fitter) FitMatrix(ctx context.Context, spec model.Specification, vars []string, data [][]float64, label string) (*Fitted, error) {
	started := time.Now()
	log := f.opts.Logger

	c, err := compile(spec)
	if err != nil {
		return nil, err
	}
	if err := c.identify(); err != nil {
		return nil, err
	}
	data, err = reorder(c.observed, vars, data)
	if err != nil {
		return nil, err
	}

	s, err := newSample(c.observed, data)
	if err != nil {
		return nil, err
	}
	if s.dropped > 0 {
		log.Warn("%s/%s: dropped %d rows with every item missing", spec.Name, label, s.dropped)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	satMu, satSigma, emIter, err := s.saturatedEM()
	if err != nil {
		return nil, fmt.Errorf("saturated model: %w", err)
	}
	satLogl, err := s.evaluate(satMu, satSigma, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("saturated model: %w", err)
	}
	baseMu, baseSigma := s.independence()
	baseLogl, err := s.evaluate(baseMu, baseSigma, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("baseline model: %w", err)
	}
	log.Debug("%s/%s: N=%d patterns=%d EM iterations=%d", spec.Name, label, s.n, len(s.patterns), emIter)

	x, res, err := f.optimize(ctx, c, s, c.start(satMu, satSigma))
	if err != nil {
		return nil, err
	}
	if err := c.boundary(x, meanVariance(satSigma), f.opts.BoundaryTolerance); err != nil {
		return nil, err
	}

	info, err := s.observedInformation(c, x)
	if err != nil {
		return nil, err
	}
	if err := checkInformation(info, f.opts.SingularTolerance); err != nil {
		return nil, err
	}
	aInv, err := invert(info)
	if err != nil {
		return nil, err
	}

	n := float64(s.n)
	vcov := mat.NewSymDense(c.dim(), nil)
	in := measureInputs{
		estimator: f.opts.Estimator,
		n:         s.n,
		npar:      c.dim(),
		df:        c.degreesOfFreedom(),
		baseDF:    c.p * (c.p - 1) / 2,
		logl:      -res.F * n,
		satLogl:   satLogl,
		baseLogl:  baseLogl,
	}
	if f.opts.Estimator.IsRobust() {
		b, err := s.scoreProduct(c, x)
		if err != nil {
			return nil, err
		}
		vcov.ScaleSym(1/n, sandwich(aInv, b))
		in.trModel = traceProduct(aInv, b)
		in.trSaturated, in.trIndependent = f.referenceTraces(s, satMu, satSigma, baseMu, baseSigma)
	} else {
		vcov.ScaleSym(1/n, aInv)
	}

	estimates, err := c.estimateTable(x, vcov)
	if err != nil {
		return nil, err
	}
	mu, sigma, err := c.implied(x)
	if err != nil {
		return nil, err
	}
	in.srmr = srmr(satMu, satSigma, mu, sigma)

	out := &Fitted{
		Spec:             spec,
		Cohort:           label,
		Estimator:        f.opts.Estimator,
		Variables:        append([]string(nil), c.observed...),
		N:                s.n,
		Dropped:          s.dropped,
		Patterns:         len(s.patterns),
		Iterations:       res.Stats.MajorIterations,
		Converged:        true,
		NPar:             c.dim(),
		DF:               c.degreesOfFreedom(),
		LogL:             in.logl,
		UnrestrictedLogL: satLogl,
		BaselineLogL:     baseLogl,
		estimates:        estimates,
		impliedMean:      mu,
		implied:          sigma,
		sampleMean:       satMu,
		sampleCov:        satSigma,
		measures:         computeMeasures(in),
	}
	log.Info("%s/%s: fitted in %d iterations (%s), logl=%.3f df=%d",
		spec.Name, label, out.Iterations, time.Since(started).Round(time.Millisecond), out.LogL, out.DF)
	return out, nil
}

// referenceTraces returns tr(A⁻¹B) of the saturated and independence
// models. A failure leaves NaN, which propagates to the scaled statistics.
func (f *Fitter) referenceTraces(s *sample, satMu []float64, satSigma *mat.SymDense, baseMu []float64, baseSigma *mat.SymDense) (float64, float64) {
	sat := saturatedStructure{p: s.p}
	trSat, err := s.robustTrace(sat, sat.pack(satMu, satSigma))
	if err != nil {
		f.opts.Logger.Warn("saturated information: %v", err)
		trSat = math.NaN()
	}
	base := independenceStructure{p: s.p}
	trBase, err := s.robustTrace(base, base.pack(baseMu, baseSigma))
	if err != nil {
		f.opts.Logger.Warn("baseline information: %v", err)
		trBase = math.NaN()
	}
	return trSat, trBase
}

// penalty stands in for the objective where the implied covariance is not
// positive definite. The line search needs a finite value.
const penalty = 1e10

// optimize minimizes -ℓ/N over the free parameters, with variances on the
// log scale. It returns the solution on the natural scale.
func (f *Fitter) optimize(ctx context.Context, c *cfaStructure, s *sample, start []float64) ([]float64, *optimize.Result, error) {
	logScale := c.logScale()
	n := float64(s.n)

	toNatural := func(u []float64) []float64 {
		x := make([]float64, len(u))
		for j, v := range u {
			if logScale[j] {
				x[j] = math.Exp(v)
			} else {
				x[j] = v
			}
		}
		return x
	}

	var (
		lastU    []float64
		lastF    float64
		lastGrad []float64
	)
	eval := func(u []float64) (float64, []float64) {
		if lastU != nil && floats.Equal(u, lastU) {
			return lastF, lastGrad
		}
		x := toNatural(u)
		ll, g, err := s.gradient(c, x)
		lastU = append(lastU[:0], u...)
		if err != nil {
			lastF, lastGrad = penalty, make([]float64, len(u))
			return lastF, lastGrad
		}
		for j := range g {
			g[j] = -g[j] / n
			if logScale[j] {
				g[j] *= x[j]
			}
		}
		lastF, lastGrad = -ll/n, g
		return lastF, lastGrad
	}

	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			v, _ := eval(u)
			return v
		},
		Grad: func(grad, u []float64) {
			_, g := eval(u)
			copy(grad, g)
		},
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}

	u0 := make([]float64, len(start))
	for j, v := range start {
		if logScale[j] {
			u0[j] = math.Log(v)
		} else {
			u0[j] = v
		}
	}

	settings := &optimize.Settings{
		GradientThreshold: f.opts.GradientTolerance,
		MajorIterations:   f.opts.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 25,
		},
	}
	method := &optimize.BFGS{Linesearcher: &optimize.MoreThuente{}}

	res, err := optimize.Minimize(problem, u0, settings, method)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, nil, ctxErr
	}
	if res == nil {
		return nil, nil, fmt.Errorf("%w: %v", core.ErrNotConverged, err)
	}
	if err == nil {
		err = res.Status.Err()
	}

	norm := math.Inf(1)
	if res.Gradient != nil {
		norm = floats.Norm(res.Gradient, math.Inf(1))
	}
	if res.F >= penalty || math.IsNaN(norm) || norm > f.opts.ConvergenceTolerance {
		reason := "gradient norm too large"
		if err != nil {
			reason = err.Error()
		}
		return nil, nil, fmt.Errorf("%w after %d iterations (status %v, gradient norm %.3g): %s",
			core.ErrNotConverged, res.Stats.MajorIterations, res.Status, norm, reason)
	}
	if err != nil {
		f.opts.Logger.Debug("optimizer stopped with %v at gradient norm %.3g", err, norm)
	}
	return toNatural(res.X), res, nil
}

// reorder permutes data columns from vars order into want order.
func reorder(want, vars []string, data [][]float64) ([][]float64, error) {
	pos := indexOf(vars)
	idx := make([]int, len(want))
	same := len(want) == len(vars)
	for i, w := range want {
		j, ok := pos[w]
		if !ok {
			return nil, fmt.Errorf("%w: %s", core.ErrMissingColumn, w)
		}
		idx[i] = j
		same = same && i == j
	}
	if same {
		return data, nil
	}
	out := make([][]float64, len(data))
	for r, row := range data {
		if len(row) != len(vars) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", r, len(row), len(vars))
		}
		o := make([]float64, len(want))
		for i, j := range idx {
			o[i] = row[j]
		}
		out[r] = o
	}
	return out, nil
}
