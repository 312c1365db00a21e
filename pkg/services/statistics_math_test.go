package services

import (
	"testing"

	"dinecast-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPearsonCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6}

	r, ok := pearsonCorrelation(x, []float64{2, 4, 6, 8, 10, 12})
	require.True(t, ok)
	assert.InDelta(t, 1.0, r, 1e-9)

	r, ok = pearsonCorrelation(x, []float64{12, 10, 8, 6, 4, 2})
	require.True(t, ok)
	assert.InDelta(t, -1.0, r, 1e-9)

	// 対称性とアフィン変換への不変性
	y := []float64{3, 1, 4, 1, 5, 9}
	rxy, _ := pearsonCorrelation(x, y)
	ryx, _ := pearsonCorrelation(y, x)
	assert.InDelta(t, 0.69617, rxy, 1e-5)
	assert.InDelta(t, rxy, ryx, 1e-12)

	scaled := make([]float64, len(y))
	for i, v := range y {
		scaled[i] = v*3 + 100
	}
	rs, _ := pearsonCorrelation(x, scaled)
	assert.InDelta(t, rxy, rs, 1e-12)
	assert.GreaterOrEqual(t, rxy, -1.0)
	assert.LessOrEqual(t, rxy, 1.0)
}

func TestPearsonCorrelationUndefined(t *testing.T) {
	_, ok := pearsonCorrelation([]float64{1, 2}, []float64{1, 2})
	assert.False(t, ok, "fewer than 3 points")

	_, ok = pearsonCorrelation([]float64{1, 2, 3}, []float64{1, 2})
	assert.False(t, ok, "length mismatch")

	_, ok = pearsonCorrelation([]float64{5, 5, 5, 5}, []float64{1, 2, 3, 4})
	assert.False(t, ok, "zero variance")

	_, ok = pearsonCorrelation([]float64{1, 2, 3, 4}, []float64{7, 7, 7, 7})
	assert.False(t, ok, "zero variance in y")
}

func TestClassifyStrength(t *testing.T) {
	testCases := []struct {
		r        float64
		expected string
	}{
		{0.95, models.StrengthVeryStrong},
		{0.8, models.StrengthVeryStrong},
		{0.65, models.StrengthStrong},
		{0.45, models.StrengthModerate},
		{0.25, models.StrengthWeak},
		{0.1, models.StrengthVeryWeak},
		{0, models.StrengthNone},
		{-0.3, models.StrengthNone},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, ClassifyStrength(tc.r), "r=%v", tc.r)
	}
}

func TestSimplifiedPValue(t *testing.T) {
	assert.Equal(t, 1.0, simplifiedPValue(0.9, 2))
	assert.Equal(t, 0.0, simplifiedPValue(1, 30))

	weak := simplifiedPValue(0.2, 30)
	strong := simplifiedPValue(0.8, 30)
	assert.Less(t, strong, weak)
	assert.Less(t, simplifiedPValue(0.5, 100), simplifiedPValue(0.5, 10))
}

func TestConfidenceFromStats(t *testing.T) {
	assert.InDelta(t, 100, confidenceFromStats(0, 30), 1e-9)
	assert.InDelta(t, 50, confidenceFromStats(0, 15), 1e-9)
	assert.InDelta(t, 45, confidenceFromStats(0.1, 15), 1e-9)
	assert.Equal(t, 0.0, confidenceFromStats(1, 60))
}

func TestCompareGroups(t *testing.T) {
	g := compareGroups([]float64{150, 150, 100, 100}, []bool{true, true, false, false})
	assert.Equal(t, 150.0, g.matchedMean)
	assert.Equal(t, 100.0, g.othersMean)
	assert.InDelta(t, 50, g.changePct, 1e-9)

	empty := compareGroups([]float64{100, 100}, []bool{true, true})
	assert.Equal(t, 0.0, empty.changePct)
}
