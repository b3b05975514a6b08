package cohort

import (
	"math"
	"testing"

	"gocfa/domain/core"
	"gocfa/domain/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable(t *testing.T) *dataset.ResponseTable {
	t.Helper()
	nan := math.NaN()
	table, err := dataset.NewResponseTable("test", []dataset.Column{
		{Name: "item1", Values: []float64{1, 2, 3, 4, 5, 1, 2, 3}},
		{Name: "age", Values: []float64{18, 25, nan, 40, 25, 60, 33, 19}},
		{Name: "sex", Values: []float64{1, 2, 2, 3, nan, 1, 0, 2}},
	})
	require.NoError(t, err)
	return table
}

func TestRecode_RowCountInvariant(t *testing.T) {
	src := sampleTable(t)
	rule := DefaultSexRule("sex", "sex_label")
	table, err := Recode(src, rule)
	require.NoError(t, err)
	assert.False(t, src.Has("sex_label"), "source table is not modified")

	full, err := Project(table, "full", []string{"item1", "age", "sex_label"})
	require.NoError(t, err)

	male := full.Where("male", ByLabel(rule, Male))
	female := full.Where("female", ByLabel(rule, Female))
	missing := full.Where("missing", func(t *dataset.ResponseTable, r int) bool {
		v, _ := t.Label("sex_label", r)
		return v == MissingLabel
	})

	assert.Equal(t, 8, full.Size())
	assert.Equal(t, 2, male.Size())
	assert.Equal(t, 3, female.Size())
	assert.Equal(t, 3, missing.Size())
	assert.Equal(t, full.Size(), male.Size()+female.Size()+missing.Size())

	assert.Empty(t, full.Where("x", ByLabel(rule, MissingLabel)).Rows)

	raw, err := table.Numeric("sex")
	require.NoError(t, err)
	assert.Equal(t, 3.0, raw[3])
}

func TestByLabel_CustomMissingLabel(t *testing.T) {
	rule := dataset.RecodeRule{
		Source:  "sex",
		Target:  "group",
		Mapping: map[float64]string{1: "a", 2: "b"},
		Missing: "unknown",
	}
	table, err := Recode(sampleTable(t), rule)
	require.NoError(t, err)
	full, err := Project(table, "full", []string{"item1", "group"})
	require.NoError(t, err)

	assert.Equal(t, 2, full.Where("a", ByLabel(rule, "a")).Size())
	assert.Equal(t, 3, full.Where("b", ByLabel(rule, "b")).Size())
	assert.Zero(t, full.Where("unknown", ByLabel(rule, "unknown")).Size())
}

func TestPartition_StrictOnNonMissingAge(t *testing.T) {
	full, err := Project(sampleTable(t), "full", []string{"item1", "age"})
	require.NoError(t, err)

	for _, threshold := range []float64{18, 25, 30, 60, 99} {
		lower, upper := Partition(full, "age", threshold, "lower", "upper")
		assert.Equal(t, full.Size()-full.MissingCount("age"), lower.Size()+upper.Size(), "threshold %v", threshold)

		inLower := make(map[int]bool)
		for _, r := range lower.Rows {
			inLower[r] = true
		}
		for _, r := range upper.Rows {
			assert.False(t, inLower[r], "row %d in both halves", r)
		}
	}

	lower, upper := Partition(full, "age", 25, "age_le_25", "age_gt_25")
	assert.Equal(t, []int{0, 1, 4, 7}, lower.Rows)
	assert.Equal(t, []int{3, 5, 6}, upper.Rows)
	assert.Equal(t, "age_le_25", lower.Name)
}

func TestProject_UnknownColumn(t *testing.T) {
	_, err := Project(sampleTable(t), "full", []string{"item1", "item2"})
	require.Error(t, err)
	assert.True(t, core.IsDataLoadError(err))
	assert.ErrorIs(t, err, core.ErrMissingColumn)
}

func TestRecode_Errors(t *testing.T) {
	_, err := Recode(sampleTable(t), DefaultSexRule("gender", "sex_label"))
	assert.ErrorIs(t, err, core.ErrMissingColumn)

	_, err = Recode(sampleTable(t), DefaultSexRule("sex", "sex"))
	assert.Error(t, err)
}

func TestLabelCounts(t *testing.T) {
	table, err := Recode(sampleTable(t), DefaultSexRule("sex", "sex_label"))
	require.NoError(t, err)
	full, err := Project(table, "full", []string{"sex_label"})
	require.NoError(t, err)

	assert.Equal(t, []LabelCount{
		{Label: MissingLabel, Count: 3},
		{Label: Female, Count: 3},
		{Label: Male, Count: 2},
	}, LabelCounts(full, "sex_label"))
}
