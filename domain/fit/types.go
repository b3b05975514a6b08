// Package fit defines the fit-statistic vocabulary and the reports built
// from a fitted model.
package fit

import (
	"fmt"
	"math"
	"strings"

	"gocfa/domain/core"
)

// Estimator selects the estimation method.
type Estimator string

const (
	// ML is full-information maximum likelihood with naive standard errors.
	ML Estimator = "ML"
	// MLR adds sandwich standard errors and a Yuan-Bentler scaled test statistic.
	MLR Estimator = "MLR"
)

// ParseEstimator accepts ml/mlr in any case.
func ParseEstimator(s string) (Estimator, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ML":
		return ML, nil
	case "MLR", "":
		return MLR, nil
	}
	return "", fmt.Errorf("unknown estimator %q (want ML or MLR)", s)
}

// IsRobust reports whether the estimator produces scaled statistics.
func (e Estimator) IsRobust() bool {
	return e == MLR
}

// Statistic is a fit-measure name.
type Statistic string

// Fit statistics, named as lavaan's fitMeasures reports them.
const (
	NPar             Statistic = "npar"
	NTotal           Statistic = "ntotal"
	LogL             Statistic = "logl"
	UnrestrictedLogL Statistic = "unrestricted.logl"
	AIC              Statistic = "aic"
	BIC              Statistic = "bic"
	ChiSq            Statistic = "chisq"
	DF               Statistic = "df"
	PValue           Statistic = "pvalue"
	BaselineChiSq    Statistic = "baseline.chisq"
	BaselineDF       Statistic = "baseline.df"
	CFI              Statistic = "cfi"
	TLI              Statistic = "tli"
	RMSEA            Statistic = "rmsea"
	SRMR             Statistic = "srmr"
	ECVI             Statistic = "ecvi"

	ChiSqScaled   Statistic = "chisq.scaled"
	DFScaled      Statistic = "df.scaled"
	PValueScaled  Statistic = "pvalue.scaled"
	ScalingFactor Statistic = "chisq.scaling.factor"
	CFIScaled     Statistic = "cfi.scaled"
	TLIScaled     Statistic = "tli.scaled"
	RMSEAScaled   Statistic = "rmsea.scaled"
)

var descriptions = map[Statistic]string{
	NPar:             "number of free parameters",
	NTotal:           "number of observations used",
	LogL:             "model log-likelihood",
	UnrestrictedLogL: "saturated model log-likelihood",
	AIC:              "Akaike information criterion",
	BIC:              "Bayesian information criterion",
	ChiSq:            "likelihood-ratio chi-square",
	DF:               "degrees of freedom",
	PValue:           "p-value of chisq",
	BaselineChiSq:    "independence model chi-square",
	BaselineDF:       "independence model degrees of freedom",
	CFI:              "comparative fit index",
	TLI:              "Tucker-Lewis index",
	RMSEA:            "root-mean-square error of approximation",
	SRMR:             "standardized root-mean-square residual",
	ECVI:             "expected cross-validation index",
	ChiSqScaled:      "Yuan-Bentler scaled chi-square",
	DFScaled:         "degrees of freedom of the scaled chi-square",
	PValueScaled:     "p-value of chisq.scaled",
	ScalingFactor:    "chi-square scaling correction factor",
	CFIScaled:        "comparative fit index from scaled statistics",
	TLIScaled:        "Tucker-Lewis index from scaled statistics",
	RMSEAScaled:      "RMSEA from the scaled chi-square",
}

var robustOnly = map[Statistic]bool{
	ChiSqScaled:   true,
	DFScaled:      true,
	PValueScaled:  true,
	ScalingFactor: true,
	CFIScaled:     true,
	TLIScaled:     true,
	RMSEAScaled:   true,
}

// Vocabulary lists every supported statistic in display order.
func Vocabulary() []Statistic {
	return []Statistic{
		NPar, NTotal, LogL, UnrestrictedLogL, AIC, BIC,
		ChiSq, DF, PValue, ChiSqScaled, DFScaled, PValueScaled, ScalingFactor,
		BaselineChiSq, BaselineDF,
		CFI, TLI, CFIScaled, TLIScaled,
		RMSEA, RMSEAScaled, SRMR, ECVI,
	}
}

// DefaultRequest is the statistic list used for comparison tables.
func DefaultRequest() []Statistic {
	return []Statistic{CFI, ChiSqScaled, PValueScaled, DFScaled, RMSEAScaled, SRMR, ECVI}
}

// Describe returns a human-readable description.
func (s Statistic) Describe() string {
	return descriptions[s]
}

// Known reports whether s is in the vocabulary.
func (s Statistic) Known() bool {
	_, ok := descriptions[s]
	return ok
}

// RequiresRobust reports whether s only exists for a robust estimator.
func (s Statistic) RequiresRobust() bool {
	return robustOnly[s]
}

// Check returns an UnknownStatisticError if s cannot be produced by est.
func (s Statistic) Check(est Estimator) error {
	if !s.Known() {
		return core.NewUnknownStatisticError(string(s), "not a supported fit statistic")
	}
	if s.RequiresRobust() && !est.IsRobust() {
		return core.NewUnknownStatisticError(string(s), fmt.Sprintf("requires a robust estimator, model was fit with %s", est))
	}
	return nil
}

// ParseStatistics splits a comma-separated list.
func ParseStatistics(list string) []Statistic {
	var out []Statistic
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, Statistic(strings.ToLower(p)))
		}
	}
	return out
}

// Report is an ordered statistic→value mapping.
type Report struct {
	Names  []Statistic
	Values map[Statistic]float64
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{Values: make(map[Statistic]float64)}
}

// Set adds or replaces a value, keeping first insertion order.
func (r *Report) Set(name Statistic, v float64) {
	if _, ok := r.Values[name]; !ok {
		r.Names = append(r.Names, name)
	}
	r.Values[name] = v
}

// Get returns a value.
func (r *Report) Get(name Statistic) (float64, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// Len returns the number of statistics.
func (r *Report) Len() int {
	return len(r.Names)
}

// Round returns v rounded to the given number of decimals. Used for display
// only; reports keep full precision.
func Round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Format renders v with 4 decimals, or NA.
func Format(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	if math.IsInf(v, 0) {
		return fmt.Sprintf("%v", v)
	}
	return fmt.Sprintf("%.4f", Round(v, 4))
}
