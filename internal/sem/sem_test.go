package sem

import (
	"context"
	"errors"
	"math"
	"testing"

	"gocfa/domain/core"
	"gocfa/domain/fit"
	"gocfa/domain/model"
	"gocfa/internal"
	"gocfa/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
)

func quietFitter(est fit.Estimator) *Fitter {
	opts := DefaultOptions()
	opts.Estimator = est
	opts.Logger = internal.NewDiscardLogger()
	return NewFitter(opts)
}

func synthetic(t *testing.T, mutate func(*testkit.SurveyGeneratorConfig)) ([]string, [][]float64) {
	t.Helper()
	cfg := testkit.DefaultSurveyConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	g := testkit.NewSurveyGenerator(cfg)
	return g.ItemNames(), g.Matrix()
}

func TestDegreesOfFreedom(t *testing.T) {
	items := model.Items("item", 14)
	tests := []struct {
		name string
		spec model.Specification
		npar int
		df   int
	}{
		{"one factor", model.SingleFactor("one_factor", "F", items, false), 42, 77},
		{"bifactor", model.TwoFactor("bifactor", "Neg", "Pos", items[:7], items[7:]), 42, 77},
		{"second order", model.SecondOrder("second_order", "G", "Neg", "Pos", items[:7], items[7:]), 43, 76},
		{"reduced", model.TwoFactor("reduced", "Neg", "Pos", items[:3], items[3:6]), 18, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := compile(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.npar, c.dim())
			assert.Equal(t, tt.df, c.degreesOfFreedom())
			assert.NoError(t, c.identify())
		})
	}
}

func TestIdentify_Rejects(t *testing.T) {
	items := model.Items("item", 14)
	tests := []struct {
		name string
		spec model.Specification
		want error
	}{
		{"all pairwise residual covariances", model.SingleFactor("one_factor_cov", "F", items, true), core.ErrNegativeDF},
		{"single indicator", model.Specification{Name: "s", Factors: []model.Factor{
			{Name: "A", Indicators: []string{"item1", "item2", "item3"}},
			{Name: "B", Indicators: []string{"item4"}},
		}}, core.ErrUnidentifiedModel},
		{"isolated two indicators", model.SingleFactor("two", "F", items[:2], false), core.ErrUnidentifiedModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := compile(tt.spec)
			require.NoError(t, err)
			err = c.identify()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, core.IsUnidentifiedModelError(err))
		})
	}
}

func TestFit_CovarianceAugmentedModelIsUnidentified(t *testing.T) {
	vars, data := synthetic(t, nil)
	spec := model.SingleFactor("one_factor_cov", "F", vars, true)

	_, err := quietFitter(fit.MLR).FitMatrix(context.Background(), spec, vars, data, "full")
	require.Error(t, err)
	assert.True(t, core.IsUnidentifiedModelError(err))
	assert.Equal(t, core.KindUnidentifiedModel, core.KindOf(err))
}

func TestGradient_MatchesFiniteDifferences(t *testing.T) {
	vars, data := synthetic(t, func(c *testkit.SurveyGeneratorConfig) {
		c.Respondents = 80
		c.MissingRate = 0.08
		c.FactorOf = []int{0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 0, 0, 1, 1}
		c.Correlation = 0.4
	})

	correlated := model.TwoFactor("correlated", "A", "B", vars[:5], vars[5:10])
	correlated.Orthogonal = false
	correlated.Covariances = []model.Covariance{{Left: vars[0], Right: vars[1]}}

	specs := []model.Specification{
		correlated,
		{Name: "three_children", Factors: []model.Factor{
			{Name: "A", Indicators: vars[:4]},
			{Name: "B", Indicators: vars[4:8]},
			{Name: "C", Indicators: vars[8:12]},
			{Name: "G", Of: []string{"A", "B", "C"}},
		}},
	}

	for _, spec := range specs {
		t.Run(spec.Name, func(t *testing.T) {
			c, err := compile(spec)
			require.NoError(t, err)
			d, err := reorder(c.observed, vars, data)
			require.NoError(t, err)
			s, err := newSample(c.observed, d)
			require.NoError(t, err)
			mu, sigma, _, err := s.saturatedEM()
			require.NoError(t, err)

			x := c.start(mu, sigma)
			for j := range x {
				if !c.logScale()[j] {
					x[j] += 0.03 * float64(j%3)
				}
			}

			_, analytic, err := s.gradient(c, x)
			require.NoError(t, err)

			numeric := fd.Gradient(nil, func(at []float64) float64 {
				ll, _, err := s.gradient(c, at)
				require.NoError(t, err)
				return ll
			}, x, &fd.Settings{Formula: fd.Central})

			for j := range x {
				tol := 1e-4 * math.Max(1, math.Abs(numeric[j]))
				assert.InDelta(t, numeric[j], analytic[j], tol, "parameter %d (%s %s %s)",
					j, c.params[c.free[j]].lhs, c.params[c.free[j]].op, c.params[c.free[j]].rhs)
			}
		})
	}
}

func TestSaturatedEM_CompleteDataMatchesSampleMoments(t *testing.T) {
	vars, data := synthetic(t, nil)
	s, err := newSample(vars, data)
	require.NoError(t, err)
	require.Len(t, s.patterns, 1)

	mu, sigma, _, err := s.saturatedEM()
	require.NoError(t, err)

	pt := s.patterns[0]
	for i := range vars {
		assert.InDelta(t, pt.mean[i], mu[i], 1e-9)
		for j := range vars {
			assert.InDelta(t, pt.cov.At(i, j), sigma.At(i, j), 1e-9)
		}
	}
}

func TestNewSample(t *testing.T) {
	nan := math.NaN()
	data := [][]float64{
		{1, 2, 3},
		{2, nan, 1},
		{nan, nan, nan},
		{3, 1, 2},
		{4, nan, 5},
	}
	s, err := newSample([]string{"a", "b", "c"}, data)
	require.NoError(t, err)
	assert.Equal(t, 4, s.n)
	assert.Equal(t, 1, s.dropped)
	assert.Len(t, s.patterns, 2)

	_, err = newSample([]string{"a"}, [][]float64{{1}})
	assert.ErrorIs(t, err, core.ErrInsufficientData)

	_, err = newSample([]string{"a", "b"}, [][]float64{{1, 2}, {1, 3}})
	assert.ErrorIs(t, err, core.ErrInsufficientData, "constant column")
}

func TestFit_RecoversSingleFactorLoadings(t *testing.T) {
	vars, data := synthetic(t, nil)
	spec := model.SingleFactor("one_factor", "F", vars, false)

	res, err := quietFitter(fit.MLR).FitMatrix(context.Background(), spec, vars, data, "synthetic")
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Equal(t, 50, res.N)
	assert.Equal(t, 77, res.DF)
	assert.Equal(t, 42, res.NPar)

	truth := testkit.DefaultLoadings(14)
	var mae float64
	for i, v := range vars {
		est, ok := res.Estimate("F", "=~", v)
		require.True(t, ok, v)
		assert.InDelta(t, truth[i], est.Value, 0.35, v)
		mae += math.Abs(truth[i]-est.Value) / 14
	}
	assert.Less(t, mae, 0.15)

	marker, _ := res.Estimate("F", "=~", vars[0])
	assert.False(t, marker.Free)
	assert.Equal(t, 1.0, marker.Value)

	cfiValue, err := res.Measure(fit.CFI)
	require.NoError(t, err)
	assert.Greater(t, cfiValue, 0.90)

	report, err := res.Measures(fit.DefaultRequest())
	require.NoError(t, err)
	assert.Equal(t, fit.DefaultRequest(), report.Names)
	df, _ := report.Get(fit.DFScaled)
	assert.Equal(t, 77.0, df)
	c, err := res.Measure(fit.ScalingFactor)
	require.NoError(t, err)
	assert.Greater(t, c, 0.0)
}

func TestFit_Deterministic(t *testing.T) {
	vars, data := synthetic(t, func(c *testkit.SurveyGeneratorConfig) {
		c.Respondents = 150
		c.MissingRate = 0.05
		c.FactorOf = []int{0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1}
		c.Correlation = 0.5
	})
	spec := model.SecondOrder("second_order", "G", "Neg", "Pos", vars[:7], vars[7:])
	f := quietFitter(fit.MLR)

	a, err := f.FitMatrix(context.Background(), spec, vars, data, "x")
	require.NoError(t, err)
	b, err := f.FitMatrix(context.Background(), spec, vars, data, "x")
	require.NoError(t, err)

	ea, eb := a.Estimates(), b.Estimates()
	require.Len(t, eb, len(ea))
	for i := range ea {
		label := ea[i].Label()
		assert.Equal(t, ea[i].Label(), eb[i].Label())
		assert.Equal(t, ea[i].Free, eb[i].Free, label)
		for _, pair := range [][2]float64{
			{ea[i].Value, eb[i].Value},
			{ea[i].SE, eb[i].SE},
			{ea[i].Z, eb[i].Z},
			{ea[i].P, eb[i].P},
			{ea[i].StdAll, eb[i].StdAll},
		} {
			assertSameFloat(t, pair[0], pair[1], label)
		}
	}
	ra, err := a.Measures(fit.Vocabulary())
	require.NoError(t, err)
	rb, err := b.Measures(fit.Vocabulary())
	require.NoError(t, err)
	for _, name := range ra.Names {
		va, _ := ra.Get(name)
		vb, _ := rb.Get(name)
		assertSameFloat(t, va, vb, string(name))
	}
}

// assertSameFloat treats two NaNs as equal.
func assertSameFloat(t *testing.T, want, got float64, msg string) {
	t.Helper()
	if math.IsNaN(want) {
		assert.True(t, math.IsNaN(got), msg)
		return
	}
	assert.Equal(t, want, got, msg)
}

func TestBoundary(t *testing.T) {
	items := model.Items("item", 14)
	c, err := compile(model.SecondOrder("second_order", "G", "Neg", "Pos", items[:7], items[7:]))
	require.NoError(t, err)

	x := make([]float64, c.dim())
	for j := range x {
		x[j] = 0.5
	}
	assert.NoError(t, c.boundary(x, 1, 1e-4))

	for j, idx := range c.free {
		if p := c.params[idx]; p.lhs == "G" && p.rhs == "G" {
			x[j] = 2e-13
		}
	}
	err = c.boundary(x, 1, 1e-4)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrBoundaryVariance)
	assert.True(t, core.IsUnidentifiedModelError(err))
	assert.Contains(t, err.Error(), "G ~~ G")
}

func TestFit_SecondOrderOverNegativelyCorrelatedFactors(t *testing.T) {
	vars, data := synthetic(t, func(c *testkit.SurveyGeneratorConfig) {
		c.Respondents = 300
		c.FactorOf = []int{0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1}
		c.Correlation = -0.4
	})
	f := quietFitter(fit.MLR)

	// Two fixed second-order loadings make G's variance the factor
	// covariance, which these data want negative.
	_, err := f.FitMatrix(context.Background(),
		model.SecondOrder("second_order", "G", "Neg", "Pos", vars[:7], vars[7:]), vars, data, "full")
	require.Error(t, err)
	assert.True(t, core.IsUnidentifiedModelError(err))
	assert.Equal(t, core.KindUnidentifiedModel, core.KindOf(err))

	correlated := model.TwoFactor("correlated", "Neg", "Pos", vars[:7], vars[7:])
	correlated.Orthogonal = false
	res, err := f.FitMatrix(context.Background(), correlated, vars, data, "full")
	require.NoError(t, err)
	assert.Equal(t, 76, res.DF)
	cov, ok := res.Estimate("Neg", "~~", "Pos")
	require.True(t, ok)
	assert.True(t, cov.Free)
	assert.Less(t, cov.Value, 0.0)
}

func TestCompile_SingleZeroCovariance(t *testing.T) {
	items := model.Items("item", 9)
	spec := model.Specification{Name: "three", Factors: []model.Factor{
		{Name: "A", Indicators: items[:3]},
		{Name: "B", Indicators: items[3:6]},
		{Name: "C", Indicators: items[6:]},
	}, Zero: []model.Covariance{{Left: "A", Right: "B"}}}

	c, err := compile(spec)
	require.NoError(t, err)
	free := make(map[string]bool)
	for _, p := range c.params {
		if p.kind == kindFactor && p.row != p.col {
			free[p.lhs+"~~"+p.rhs] = p.free
		}
	}
	assert.Equal(t, map[string]bool{"A~~B": false, "A~~C": true, "B~~C": true}, free)

	spec.Zero = nil
	spec.Orthogonal = true
	ortho, err := compile(spec)
	require.NoError(t, err)
	assert.Equal(t, c.dim()-2, ortho.dim())
}

func TestFit_JustIdentified(t *testing.T) {
	vars, data := synthetic(t, nil)
	spec := model.SingleFactor("three", "F", vars[:3], false)

	res, err := quietFitter(fit.ML).FitMatrix(context.Background(), spec, vars, data, "x")
	require.NoError(t, err)
	assert.Equal(t, 0, res.DF)

	r, err := res.Measures([]fit.Statistic{fit.ChiSq, fit.PValue, fit.CFI, fit.RMSEA, fit.TLI})
	require.NoError(t, err)
	chisq, _ := r.Get(fit.ChiSq)
	p, _ := r.Get(fit.PValue)
	cfiValue, _ := r.Get(fit.CFI)
	rm, _ := r.Get(fit.RMSEA)
	assert.InDelta(t, 0, chisq, 1e-4)
	assert.True(t, math.IsNaN(p))
	assert.InDelta(t, 1.0, cfiValue, 1e-6)
	assert.Equal(t, 0.0, rm)
}

func TestMeasures_RejectsUnknownAndRobustOnML(t *testing.T) {
	vars, data := synthetic(t, nil)
	spec := model.SingleFactor("one_factor", "F", vars, false)
	res, err := quietFitter(fit.ML).FitMatrix(context.Background(), spec, vars, data, "x")
	require.NoError(t, err)

	_, err = res.Measures([]fit.Statistic{fit.CFI, fit.ChiSqScaled})
	assert.True(t, core.IsUnknownStatisticError(err))

	_, err = res.Measures([]fit.Statistic{"gfi"})
	assert.True(t, core.IsUnknownStatisticError(err))

	r, err := res.Measures([]fit.Statistic{fit.SRMR, fit.ECVI, fit.AIC})
	require.NoError(t, err)
	srmrValue, _ := r.Get(fit.SRMR)
	assert.Greater(t, srmrValue, 0.0)
	assert.Less(t, srmrValue, 0.15)
}

func TestFit_NonConvergenceIsUnidentified(t *testing.T) {
	vars, data := synthetic(t, nil)
	spec := model.SingleFactor("one_factor", "F", vars, false)
	opts := DefaultOptions()
	opts.MaxIterations = 1
	opts.Logger = internal.NewDiscardLogger()

	_, err := NewFitter(opts).FitMatrix(context.Background(), spec, vars, data, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotConverged)
	assert.True(t, core.IsUnidentifiedModelError(err))
}

func TestFit_MissingDataAndCancellation(t *testing.T) {
	vars, data := synthetic(t, func(c *testkit.SurveyGeneratorConfig) {
		c.Respondents = 120
		c.MissingRate = 0.1
	})
	spec := model.SingleFactor("one_factor", "F", vars, false)

	res, err := quietFitter(fit.MLR).FitMatrix(context.Background(), spec, vars, data, "x")
	require.NoError(t, err)
	assert.Greater(t, res.Patterns, 1)
	assert.Len(t, res.ImpliedMean(), 14)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = quietFitter(fit.MLR).FitMatrix(ctx, spec, vars, data, "x")
	assert.True(t, errors.Is(err, context.Canceled))
}
