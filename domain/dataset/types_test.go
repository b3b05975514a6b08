package dataset

import (
	"math"
	"testing"

	"gocfa/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable(t *testing.T) *ResponseTable {
	t.Helper()
	nan := math.NaN()
	table, err := NewResponseTable("test", []Column{
		{Name: "age", Values: []float64{20, 35, nan, 50}},
		{Name: "sex", Values: []float64{1, 2, 3, nan}},
		{Name: "item1", Values: []float64{1, nan, 3, 4}},
	})
	require.NoError(t, err)
	return table
}

func TestNewResponseTableRejectsRaggedColumns(t *testing.T) {
	_, err := NewResponseTable("bad", []Column{
		{Name: "a", Values: []float64{1, 2}},
		{Name: "b", Values: []float64{1}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDataLoad)
}

func TestNewResponseTableRejectsDuplicateColumns(t *testing.T) {
	_, err := NewResponseTable("bad", []Column{
		{Name: "a", Values: []float64{1}},
		{Name: "a", Values: []float64{2}},
	})
	assert.ErrorIs(t, err, core.ErrDataLoad)
}

func TestWithColumnLeavesOriginalUntouched(t *testing.T) {
	table := sampleTable(t)
	derived, err := table.WithColumn(Column{Name: "sex_label", Labels: []string{"male", "female", "NA", "NA"}})
	require.NoError(t, err)

	assert.False(t, table.Has("sex_label"))
	assert.True(t, derived.Has("sex_label"))
	assert.Equal(t, []string{"age", "sex", "item1"}, table.Columns())
	assert.Equal(t, []string{"age", "sex", "item1", "sex_label"}, derived.Columns())

	label, ok := derived.Label("sex_label", 1)
	assert.True(t, ok)
	assert.Equal(t, "female", label)

	_, err = derived.Numeric("sex_label")
	assert.ErrorIs(t, err, core.ErrBadCell)
	_, err = derived.Numeric("nope")
	assert.ErrorIs(t, err, core.ErrMissingColumn)
}

func TestRecodeRuleLookup(t *testing.T) {
	rule := RecodeRule{Mapping: map[float64]string{1: "male", 2: "female"}, Missing: "NA"}
	assert.Equal(t, "male", rule.Lookup(1))
	assert.Equal(t, "female", rule.Lookup(2))
	assert.Equal(t, "NA", rule.Lookup(3))
	assert.Equal(t, "NA", rule.Lookup(math.NaN()))
}

func TestCohortMatrixAndWhere(t *testing.T) {
	table := sampleTable(t)
	full := &Cohort{Name: "full", Table: table, Rows: []int{0, 1, 2, 3}, Columns: []string{"item1", "age"}}

	m, err := full.Matrix([]string{"item1", "age"})
	require.NoError(t, err)
	require.Len(t, m, 4)
	assert.Equal(t, 1.0, m[0][0])
	assert.True(t, math.IsNaN(m[1][0]))
	assert.Equal(t, 2, full.MissingCount("item1")+full.MissingCount("age"))

	young := full.Where("young", func(t *ResponseTable, row int) bool {
		return t.Value("age", row) <= 35
	})
	assert.Equal(t, []int{0, 1}, young.Rows)
	assert.Equal(t, 4, full.Size(), "Where must not modify the parent cohort")
	assert.NotEqual(t, full.Hash(), young.Hash())
}
