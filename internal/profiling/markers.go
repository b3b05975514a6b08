package profiling

// ItemProfile summarizes one item within a cohort. Statistics use the
// observed values only.
type ItemProfile struct {
	Name         string  `json:"name" yaml:"name"`
	N            int     `json:"n" yaml:"n"`
	Missing      int     `json:"missing" yaml:"missing"`
	MissingRatio float64 `json:"missing_ratio" yaml:"missing_ratio"`

	Mean   float64 `json:"mean" yaml:"mean"`
	StdDev float64 `json:"sd" yaml:"sd"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	Median float64 `json:"median" yaml:"median"`
	Q25    float64 `json:"q25" yaml:"q25"`
	Q75    float64 `json:"q75" yaml:"q75"`

	Skewness   float64 `json:"skew" yaml:"skew"`
	Kurtosis   float64 `json:"kurtosis" yaml:"kurtosis"` // excess
	NormalityP float64 `json:"normality_p" yaml:"normality_p"`
	IsNormal   bool    `json:"is_normal" yaml:"is_normal"`
	Outliers   int     `json:"outliers" yaml:"outliers"`
}

// MultivariateProfile is Mardia's multivariate kurtosis over complete cases.
type MultivariateProfile struct {
	CompleteCases int     `json:"complete_cases" yaml:"complete_cases"`
	Kurtosis      float64 `json:"kurtosis" yaml:"kurtosis"`
	Expected      float64 `json:"expected" yaml:"expected"` // p(p+2) under normality
	Z             float64 `json:"z" yaml:"z"`
	P             float64 `json:"p" yaml:"p"`
}

// CohortProfile is the descriptive summary printed by the describe command.
type CohortProfile struct {
	Cohort       string               `json:"cohort" yaml:"cohort"`
	Rows         int                  `json:"rows" yaml:"rows"`
	Items        []ItemProfile        `json:"items" yaml:"items"`
	Multivariate *MultivariateProfile `json:"multivariate,omitempty" yaml:"multivariate,omitempty"`
}
