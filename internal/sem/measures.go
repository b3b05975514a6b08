package sem

import (
	"math"

	"gocfa/domain/fit"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// measureInputs collects everything the fit indices are computed from.
type measureInputs struct {
	estimator fit.Estimator
	n         int
	npar      int
	df        int
	baseDF    int
	logl      float64 // fitted model
	satLogl   float64 // unrestricted
	baseLogl  float64 // independence
	srmr      float64

	// tr(A⁻¹B) of the saturated, fitted and independence models.
	trSaturated   float64
	trModel       float64
	trIndependent float64
}

func computeMeasures(in measureInputs) *fit.Report {
	r := fit.NewReport()
	n := float64(in.n)
	df := float64(in.df)
	dfb := float64(in.baseDF)

	t := math.Max(2*(in.satLogl-in.logl), 0)
	tb := math.Max(2*(in.satLogl-in.baseLogl), 0)

	r.Set(fit.NPar, float64(in.npar))
	r.Set(fit.NTotal, n)
	r.Set(fit.LogL, in.logl)
	r.Set(fit.UnrestrictedLogL, in.satLogl)
	r.Set(fit.AIC, -2*in.logl+2*float64(in.npar))
	r.Set(fit.BIC, -2*in.logl+float64(in.npar)*math.Log(n))
	r.Set(fit.ChiSq, t)
	r.Set(fit.DF, df)
	r.Set(fit.PValue, chiSquarePValue(t, df))

	r.Set(fit.BaselineChiSq, tb)
	r.Set(fit.BaselineDF, dfb)
	r.Set(fit.CFI, cfi(t, df, tb, dfb))
	r.Set(fit.TLI, tli(t, df, tb, dfb))
	r.Set(fit.RMSEA, rmsea(t, df, n))

	if in.estimator.IsRobust() {
		c := scalingFactor(in.trSaturated-in.trModel, df)
		cb := scalingFactor(in.trSaturated-in.trIndependent, dfb)
		ts, tbs := t, tb/cb
		if in.df > 0 {
			ts = t / c
		}
		r.Set(fit.ChiSqScaled, ts)
		r.Set(fit.DFScaled, df)
		r.Set(fit.PValueScaled, chiSquarePValue(ts, df))
		r.Set(fit.ScalingFactor, c)
		r.Set(fit.CFIScaled, cfi(ts, df, tbs, dfb))
		r.Set(fit.TLIScaled, tli(ts, df, tbs, dfb))
		r.Set(fit.RMSEAScaled, rmsea(ts, df, n))
	}
	r.Set(fit.SRMR, in.srmr)
	r.Set(fit.ECVI, t/n+2*float64(in.npar)/n)
	return r
}

// scalingFactor is the Yuan-Bentler correction (difference of the
// tr(A⁻¹B) terms divided by df). Invalid values become NaN.
func scalingFactor(trace, df float64) float64 {
	if df <= 0 {
		return math.NaN()
	}
	c := trace / df
	if math.IsNaN(c) || math.IsInf(c, 0) || c <= 0 {
		return math.NaN()
	}
	return c
}

func chiSquarePValue(t, df float64) float64 {
	if df <= 0 || math.IsNaN(t) {
		return math.NaN()
	}
	return distuv.ChiSquared{K: df}.Survival(t)
}

func cfi(t, df, tb, dfb float64) float64 {
	if math.IsNaN(t) || math.IsNaN(tb) {
		return math.NaN()
	}
	num := math.Max(t-df, 0)
	den := math.Max(math.Max(t-df, tb-dfb), 0)
	if den == 0 {
		return 1
	}
	return 1 - num/den
}

func tli(t, df, tb, dfb float64) float64 {
	if math.IsNaN(t) || math.IsNaN(tb) {
		return math.NaN()
	}
	if df == 0 {
		return 1
	}
	den := tb/dfb - 1
	if den == 0 {
		return math.NaN()
	}
	return (tb/dfb - t/df) / den
}

func rmsea(t, df, n float64) float64 {
	if math.IsNaN(t) {
		return math.NaN()
	}
	if df == 0 {
		return 0
	}
	return math.Sqrt(math.Max((t-df)/(n*df), 0))
}

// srmr is the standardized root mean square residual over covariances and
// means, each residual scaled by the observed standard deviations.
func srmr(sMean []float64, s *mat.SymDense, mu []float64, sigma *mat.SymDense) float64 {
	p := len(sMean)
	var sum float64
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			e := (s.At(i, j) - sigma.At(i, j)) / math.Sqrt(s.At(i, i)*s.At(j, j))
			sum += e * e
		}
		e := (sMean[i] - mu[i]) / math.Sqrt(s.At(i, i))
		sum += e * e
	}
	return math.Sqrt(sum / float64(moments(p)))
}
