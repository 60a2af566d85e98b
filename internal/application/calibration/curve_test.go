package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBuckets() []Bucket {
	return []Bucket{
		{Price: 0.15, ObservedWins: 20, ObservedN: 100},
		{Price: 0.30, ObservedWins: 40, ObservedN: 100},
		{Price: 0.40, ObservedWins: 55, ObservedN: 100},
		{Price: 0.55, ObservedWins: 65, ObservedN: 100},
		{Price: 0.70, ObservedWins: 78, ObservedN: 100},
		{Price: 0.85, ObservedWins: 88, ObservedN: 100},
		{Price: 0.99, ObservedWins: 97, ObservedN: 100},
	}
}

func TestEstimateWithinDomainHasPositiveEdge(t *testing.T) {
	c, err := NewFromBuckets(sampleBuckets(), 0.90)
	require.NoError(t, err)

	est := c.Estimate(0.40)
	assert.InDelta(t, 0.55, est.PointEstimate, 0.05)
	assert.Less(t, est.LowerBound, est.PointEstimate)
	assert.Greater(t, est.LowerBound, 0.0)
}

func TestEstimateOutsideDomainIsZero(t *testing.T) {
	c, err := NewFromBuckets(sampleBuckets(), 0.90)
	require.NoError(t, err)

	below := c.Estimate(0.05)
	assert.Equal(t, 0.0, below.PointEstimate)
	assert.Equal(t, 0.0, below.LowerBound)

	above := c.Estimate(0.995)
	assert.Equal(t, 0.0, above.PointEstimate)
}

func TestEstimateAtDomainBoundaryIsZeroEdge(t *testing.T) {
	// Spec §8 boundary behavior: a price exactly at the calibration domain
	// boundary is treated like one outside it, so both values are zero and
	// the sizer sees no edge.
	c, err := NewFromBuckets(sampleBuckets(), 0.90)
	require.NoError(t, err)

	est := c.Estimate(0.15)
	assert.Equal(t, 0.0, est.PointEstimate)
	assert.Equal(t, 0.0, est.LowerBound)
}

func TestIsotonicRegressionEnforcesMonotone(t *testing.T) {
	out := isotonicRegression([]float64{0.2, 0.5, 0.3, 0.6, 0.55, 0.9})
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i], out[i-1])
	}
}

func TestBetaLowerBoundBelowPointEstimate(t *testing.T) {
	lb := betaLowerBound(56, 46, 0.10)
	assert.Greater(t, lb, 0.0)
	assert.Less(t, lb, 55.0/100.0)
}

func TestBetaLowerBoundNarrowsWithMoreData(t *testing.T) {
	small := betaLowerBound(6, 5, 0.10)  // 5/10 observed
	large := betaLowerBound(501, 500, 0.10) // 500/1000 observed
	assert.Less(t, small, large, "more observations should narrow the lower bound toward the point estimate")
}
