package fit

import (
	"math"
	"testing"

	"gocfa/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatisticCheck(t *testing.T) {
	assert.NoError(t, CFI.Check(ML))
	assert.NoError(t, CFIScaled.Check(MLR))

	err := ChiSqScaled.Check(ML)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUnknownStatistic)
	assert.Contains(t, err.Error(), "chisq.scaled")

	err = Statistic("gfi").Check(MLR)
	assert.ErrorIs(t, err, core.ErrUnknownStatistic)
}

func TestVocabularyIsDescribed(t *testing.T) {
	for _, s := range Vocabulary() {
		assert.NotEmpty(t, s.Describe(), "statistic %s has no description", s)
	}
	for _, s := range DefaultRequest() {
		assert.True(t, s.Known())
	}
	assert.Len(t, descriptions, len(Vocabulary()))
}

func TestParseEstimator(t *testing.T) {
	e, err := ParseEstimator("mlr")
	require.NoError(t, err)
	assert.Equal(t, MLR, e)

	e, err = ParseEstimator(" ml ")
	require.NoError(t, err)
	assert.Equal(t, ML, e)
	assert.False(t, e.IsRobust())

	_, err = ParseEstimator("wlsmv")
	assert.Error(t, err)
}

func TestReportKeepsInsertionOrder(t *testing.T) {
	r := NewReport()
	r.Set(SRMR, 0.05)
	r.Set(CFI, 0.95)
	r.Set(SRMR, 0.04)

	assert.Equal(t, []Statistic{SRMR, CFI}, r.Names)
	v, ok := r.Get(SRMR)
	assert.True(t, ok)
	assert.Equal(t, 0.04, v)
	assert.Equal(t, 2, r.Len())
}

func TestFormatAndRound(t *testing.T) {
	assert.Equal(t, 0.1235, Round(0.123456, 4))
	assert.Equal(t, "0.1235", Format(0.123456))
	assert.Equal(t, "NA", Format(math.NaN()))
	assert.Equal(t, []Statistic{CFI, RMSEAScaled}, ParseStatistics("CFI, rmsea.scaled,,"))
}
