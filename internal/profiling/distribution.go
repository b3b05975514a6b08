package profiling

import (
	"errors"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// normalityAlpha is the Jarque-Bera level below which an item is flagged.
const normalityAlpha = 0.05

// DistributionAnalyzer handles distribution shape analysis
type DistributionAnalyzer struct{}

// NewDistributionAnalyzer creates a new distribution analyzer
func NewDistributionAnalyzer() *DistributionAnalyzer {
	return &DistributionAnalyzer{}
}

// AnalyzeDistribution fills the summary and shape fields of p from the
// observed values of one item.
func (da *DistributionAnalyzer) AnalyzeDistribution(data []float64, p *ItemProfile) error {
	mean, err := stats.Mean(data)
	if err != nil {
		return err
	}
	popSD, err := stats.StandardDeviationPopulation(data)
	if err != nil {
		return err
	}
	sd, err := stats.StandardDeviationSample(data)
	if err != nil {
		return err
	}
	min, err := stats.Min(data)
	if err != nil {
		return err
	}
	max, err := stats.Max(data)
	if err != nil {
		return err
	}
	median, err := stats.Median(data)
	if err != nil {
		return err
	}
	q25, err := stats.Percentile(data, 25)
	if err != nil {
		return err
	}
	q75, err := stats.Percentile(data, 75)
	if err != nil {
		return err
	}

	p.Mean, p.StdDev = mean, sd
	p.Min, p.Max, p.Median = min, max, median
	p.Q25, p.Q75 = q25, q75
	p.Outliers = detectOutliers(data, q25, q75)

	if popSD == 0 {
		p.Skewness, p.Kurtosis, p.NormalityP = math.NaN(), math.NaN(), math.NaN()
		return nil
	}
	p.Skewness = calculateSkewness(data, mean, popSD)
	p.Kurtosis = calculateKurtosis(data, mean, popSD)
	p.NormalityP = jarqueBera(data, mean, popSD)
	p.IsNormal = p.NormalityP > normalityAlpha
	return nil
}

// calculateSkewness computes sample skewness using the adjusted Fisher-Pearson coefficient
func calculateSkewness(data []float64, mean, stdDev float64) float64 {
	if len(data) < 3 {
		return 0
	}
	n := float64(len(data))
	g1 := moment(data, mean, stdDev, 3)
	return g1 * math.Sqrt(n*(n-1)) / (n - 2)
}

// calculateKurtosis computes bias-corrected sample excess kurtosis
func calculateKurtosis(data []float64, mean, stdDev float64) float64 {
	if len(data) < 4 {
		return 0
	}
	n := float64(len(data))
	g2 := moment(data, mean, stdDev, 4) - 3
	return (n - 1) / ((n - 2) * (n - 3)) * ((n+1)*g2 + 6)
}

func moment(data []float64, mean, stdDev float64, k int) float64 {
	var sum float64
	for _, x := range data {
		sum += math.Pow((x-mean)/stdDev, float64(k))
	}
	return sum / float64(len(data))
}

// jarqueBera returns the p-value of the Jarque-Bera statistic, χ²(2) under
// normality.
func jarqueBera(data []float64, mean, stdDev float64) float64 {
	if len(data) < 3 {
		return math.NaN()
	}
	n := float64(len(data))
	s := moment(data, mean, stdDev, 3)
	k := moment(data, mean, stdDev, 4) - 3
	jb := n / 6 * (s*s + k*k/4)
	return distuv.ChiSquared{K: 2}.Survival(jb)
}

// detectOutliers identifies outliers using IQR method
func detectOutliers(data []float64, q25, q75 float64) int {
	iqr := q75 - q25
	lowerBound := q25 - 1.5*iqr
	upperBound := q75 + 1.5*iqr

	outlierCount := 0
	for _, x := range data {
		if x < lowerBound || x > upperBound {
			outlierCount++
		}
	}
	return outlierCount
}

var errTooFewCases = errors.New("too few complete cases for multivariate kurtosis")

// mardiaKurtosis computes b₂,ₚ = (1/n) Σ dᵢ⁴ with dᵢ the Mahalanobis
// distance under the biased covariance, and its normal approximation.
func mardiaKurtosis(rows [][]float64) (*MultivariateProfile, error) {
	n := len(rows)
	if n == 0 {
		return nil, errTooFewCases
	}
	p := len(rows[0])
	if n <= p {
		return nil, errTooFewCases
	}

	mean := make([]float64, p)
	for _, r := range rows {
		for j, v := range r {
			mean[j] += v / float64(n)
		}
	}
	cov := mat.NewSymDense(p, nil)
	d := mat.NewVecDense(p, nil)
	for _, r := range rows {
		for j, v := range r {
			d.SetVec(j, v-mean[j])
		}
		cov.SymRankOne(cov, 1/float64(n), d)
	}
	var chol mat.Cholesky
	if !chol.Factorize(cov) {
		return nil, errors.New("covariance of complete cases is singular")
	}

	var b2 float64
	w := mat.NewVecDense(p, nil)
	for _, r := range rows {
		for j, v := range r {
			d.SetVec(j, v-mean[j])
		}
		if err := chol.SolveVecTo(w, d); err != nil {
			return nil, err
		}
		m := mat.Dot(d, w)
		b2 += m * m / float64(n)
	}

	fp := float64(p)
	expected := fp * (fp + 2)
	z := (b2 - expected) / math.Sqrt(8*expected/float64(n))
	return &MultivariateProfile{
		CompleteCases: n,
		Kurtosis:      b2,
		Expected:      expected,
		Z:             z,
		P:             2 * distuv.UnitNormal.Survival(math.Abs(z)),
	}, nil
}
