package testkit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSurveyGenerator_Deterministic(t *testing.T) {
	cfg := DefaultSurveyConfig()
	a := NewSurveyGenerator(cfg).Matrix()
	b := NewSurveyGenerator(cfg).Matrix()
	assert.Equal(t, a, b)

	cfg.Seed = 43
	c := NewSurveyGenerator(cfg).Matrix()
	assert.NotEqual(t, a, c)
}

func TestSurveyGenerator_Table(t *testing.T) {
	cfg := DefaultSurveyConfig()
	cfg.InvalidSex = 0.2
	cfg.MissingRate = 0.1
	table, err := NewSurveyGenerator(cfg).Table()
	require.NoError(t, err)

	assert.Equal(t, 50, table.NumRows())
	assert.Len(t, table.Columns(), 16)
	assert.True(t, table.Has("item14"))

	age, err := table.Numeric("age")
	require.NoError(t, err)
	for _, v := range age {
		assert.GreaterOrEqual(t, v, 18.0)
		assert.LessOrEqual(t, v, 70.0)
	}

	sex, err := table.Numeric("sex")
	require.NoError(t, err)
	for _, v := range sex {
		assert.Contains(t, []float64{1, 2, 9}, v)
	}

	missing := 0
	for _, name := range NewSurveyGenerator(cfg).ItemNames() {
		vals, err := table.Numeric(name)
		require.NoError(t, err)
		for _, v := range vals {
			if math.IsNaN(v) {
				missing++
			}
		}
	}
	assert.Greater(t, missing, 0)
}

func TestDefaultLoadings(t *testing.T) {
	l := DefaultLoadings(14)
	require.Len(t, l, 14)
	assert.Equal(t, 1.0, l[0])
	for _, v := range l {
		assert.GreaterOrEqual(t, v, 0.6)
		assert.LessOrEqual(t, v, 1.2+1e-12)
	}
}
