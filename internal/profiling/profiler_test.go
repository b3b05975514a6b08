package profiling

import (
	"math"
	"testing"

	"gocfa/domain/dataset"
	"gocfa/internal/cohort"
	"gocfa/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileColumn(t *testing.T) {
	nan := math.NaN()
	p, err := NewDataProfiler().ProfileColumn([]float64{1, 2, nan, 3, 4, 5, nan, 100}, "item1")
	require.NoError(t, err)

	assert.Equal(t, 6, p.N)
	assert.Equal(t, 2, p.Missing)
	assert.InDelta(t, 0.25, p.MissingRatio, 1e-12)
	assert.InDelta(t, 115.0/6, p.Mean, 1e-12)
	assert.Equal(t, 1.0, p.Min)
	assert.Equal(t, 100.0, p.Max)
	assert.Equal(t, 1, p.Outliers)
	assert.Greater(t, p.Skewness, 1.0)
}

func TestProfileColumn_Constant(t *testing.T) {
	p, err := NewDataProfiler().ProfileColumn([]float64{3, 3, 3, 3}, "flat")
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.StdDev)
	assert.True(t, math.IsNaN(p.Skewness))
	assert.False(t, p.IsNormal)

}

func TestProfileColumn_AllMissing(t *testing.T) {
	nan := math.NaN()
	p, err := NewDataProfiler().ProfileColumn([]float64{nan, nan, nan}, "empty")
	require.NoError(t, err)
	assert.Equal(t, 0, p.N)
	assert.Equal(t, 3, p.Missing)
	assert.Equal(t, 1.0, p.MissingRatio)
	for _, v := range []float64{p.Mean, p.StdDev, p.Median, p.Skewness, p.NormalityP} {
		assert.True(t, math.IsNaN(v))
	}
	assert.False(t, p.IsNormal)
}

func TestSymmetricSample(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	var p ItemProfile
	require.NoError(t, NewDistributionAnalyzer().AnalyzeDistribution(data, &p))
	assert.InDelta(t, 0, p.Skewness, 1e-12)
	assert.Less(t, p.Kurtosis, 0.0, "uniform is platykurtic")
	assert.Equal(t, 5.0, p.Median)
}

func TestProfileCohort(t *testing.T) {
	kit := testkit.NewTestKit(11).WithRespondents(200)
	table := kit.Table(t)
	items := []string{"item1", "item2", "item3", "item4"}
	full, err := cohort.Project(table, "full", items)
	require.NoError(t, err)

	prof, err := NewDataProfiler().ProfileCohort(full, items)
	require.NoError(t, err)
	require.Len(t, prof.Items, 4)
	assert.Equal(t, 200, prof.Rows)
	require.NotNil(t, prof.Multivariate)
	assert.Equal(t, 200, prof.Multivariate.CompleteCases)
	assert.InDelta(t, 24, prof.Multivariate.Kurtosis, 6)
}

func TestProfileCohort_ColumnWithoutObservations(t *testing.T) {
	nan := math.NaN()
	table, err := dataset.NewResponseTable("t", []dataset.Column{
		{Name: "item1", Values: []float64{1, 2, 3, 4}},
		{Name: "item2", Values: []float64{nan, nan, nan, nan}},
	})
	require.NoError(t, err)
	full, err := cohort.Project(table, "full", []string{"item1", "item2"})
	require.NoError(t, err)

	prof, err := NewDataProfiler().ProfileCohort(full, []string{"item1", "item2"})
	require.NoError(t, err)
	require.Len(t, prof.Items, 2)
	assert.Equal(t, 4, prof.Items[0].N)
	assert.Equal(t, 0, prof.Items[1].N)
	assert.True(t, math.IsNaN(prof.Items[1].Mean))
}
