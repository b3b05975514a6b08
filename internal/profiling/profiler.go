package profiling

import (
	"fmt"
	"math"

	"gocfa/domain/dataset"
)

// DataProfiler computes item descriptives for a cohort.
type DataProfiler struct {
	analyzer *DistributionAnalyzer
}

// NewDataProfiler creates a new data profiler
func NewDataProfiler() *DataProfiler {
	return &DataProfiler{analyzer: NewDistributionAnalyzer()}
}

// ProfileColumn summarizes one column; NaN values count as missing. A
// column with no observed values gets N = 0 and NaN statistics.
func (dp *DataProfiler) ProfileColumn(data []float64, name string) (ItemProfile, error) {
	p := ItemProfile{Name: name}
	observed := make([]float64, 0, len(data))
	for _, v := range data {
		if math.IsNaN(v) {
			p.Missing++
			continue
		}
		observed = append(observed, v)
	}
	p.N = len(observed)
	if len(data) > 0 {
		p.MissingRatio = float64(p.Missing) / float64(len(data))
	}
	if p.N == 0 {
		nan := math.NaN()
		p.Mean, p.StdDev, p.Min, p.Max = nan, nan, nan, nan
		p.Median, p.Q25, p.Q75 = nan, nan, nan
		p.Skewness, p.Kurtosis, p.NormalityP = nan, nan, nan
		return p, nil
	}
	if err := dp.analyzer.AnalyzeDistribution(observed, &p); err != nil {
		return p, fmt.Errorf("%s: %w", name, err)
	}
	return p, nil
}

// ProfileCohort summarizes the given columns of a cohort, plus Mardia's
// kurtosis over rows complete on all of them when there are enough.
func (dp *DataProfiler) ProfileCohort(c *dataset.Cohort, columns []string) (*CohortProfile, error) {
	out := &CohortProfile{Cohort: c.Name, Rows: c.Size()}
	for _, col := range columns {
		vals, err := c.Values(col)
		if err != nil {
			return nil, err
		}
		p, err := dp.ProfileColumn(vals, col)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, p)
	}

	rows, err := c.Matrix(columns)
	if err != nil {
		return nil, err
	}
	complete := rows[:0:0]
	for _, r := range rows {
		ok := true
		for _, v := range r {
			if math.IsNaN(v) {
				ok = false
				break
			}
		}
		if ok {
			complete = append(complete, r)
		}
	}
	if mv, err := mardiaKurtosis(complete); err == nil {
		out.Multivariate = mv
	}
	return out, nil
}
