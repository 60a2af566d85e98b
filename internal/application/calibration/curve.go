package calibration

// curve.go — the pre-fit calibration artifact (spec §4.1): a monotone
// isotonic point estimator smoothed with shape-preserving cubic
// interpolation (PCHIP), plus per-bucket Beta-posterior lower bounds. The
// artifact is loaded once per process and memoized; Estimate itself is a
// pure function with no I/O, grounded on the teacher's small-pure-function
// style in domain/scoring.go.

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/nbahedge/tradeengine/internal/domain"
)

// Bucket is one pre-fit (price, observed_wins, observed_n) row of the
// calibration artifact.
type Bucket struct {
	Price        float64 `json:"price"`
	ObservedWins float64 `json:"observed_wins"`
	ObservedN    float64 `json:"observed_n"`
}

// WinRate is the bucket's raw frequentist point (used as the isotonic
// curve's input before smoothing).
func (b Bucket) WinRate() float64 {
	if b.ObservedN <= 0 {
		return 0
	}
	return b.ObservedWins / b.ObservedN
}

// artifact is the on-disk shape of the calibration file.
type artifact struct {
	Buckets []Bucket `json:"buckets"`
}

// Curve is the loaded, memoized calibration curve: a PCHIP-smoothed
// isotonic point estimator plus per-bucket Beta lower bounds.
type Curve struct {
	prices     []float64
	points     []float64 // isotonic (non-decreasing) point estimates, aligned with prices
	tangents   []float64 // PCHIP tangents, aligned with prices
	buckets    []Bucket  // raw buckets, aligned with prices, for the Beta posterior
	confidence float64
	domainLo   float64
	domainHi   float64
}

// Load reads a calibration artifact from disk, sorts its buckets by price,
// enforces isotonic monotonicity via pool-adjacent-violators, and
// precomputes PCHIP tangents. confidence is the one-sided lower-bound
// confidence level (spec §4.1 default 0.90).
func Load(path string, confidence float64) (*Curve, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("calibration.Load: read %q: %w", path, err)
	}

	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("calibration.Load: parse %q: %w", path, err)
	}
	if len(a.Buckets) < 2 {
		return nil, fmt.Errorf("calibration.Load: %q: need at least 2 buckets", path)
	}

	return NewFromBuckets(a.Buckets, confidence)
}

// NewFromBuckets builds a Curve directly from buckets, without touching
// disk — used by tests and by callers that fetch the artifact from a
// different source than a local file.
func NewFromBuckets(buckets []Bucket, confidence float64) (*Curve, error) {
	sorted := append([]Bucket(nil), buckets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })

	raw := make([]float64, len(sorted))
	prices := make([]float64, len(sorted))
	for i, b := range sorted {
		raw[i] = b.WinRate()
		prices[i] = b.Price
	}

	iso := isotonicRegression(raw)
	tangents := pchipTangents(prices, iso)

	if confidence <= 0 || confidence >= 1 {
		confidence = 0.90
	}

	return &Curve{
		prices:     prices,
		points:     iso,
		tangents:   tangents,
		buckets:    sorted,
		confidence: confidence,
		domainLo:   prices[0],
		domainHi:   prices[len(prices)-1],
	}, nil
}

// Estimate implements the calibration contract (spec §4.1): estimate(price)
// -> {point_estimate, lower_bound, band_label}. Outside the fitted domain,
// and exactly at either end of it, both values are pinned to zero (no edge).
func (c *Curve) Estimate(price float64) domain.CalibrationEstimate {
	if price <= c.domainLo || price >= c.domainHi {
		return domain.CalibrationEstimate{BandLabel: "out_of_domain"}
	}

	point := c.interpolate(price)
	lower := c.lowerBoundAt(price)
	if lower > point {
		lower = point
	}

	return domain.CalibrationEstimate{
		PointEstimate: point,
		LowerBound:    lower,
		BandLabel:     bandLabel(price),
	}
}

// interpolate evaluates the PCHIP-smoothed isotonic curve at price via
// cubic Hermite interpolation within the bracketing segment.
func (c *Curve) interpolate(price float64) float64 {
	n := len(c.prices)
	if price <= c.prices[0] {
		return c.points[0]
	}
	if price >= c.prices[n-1] {
		return c.points[n-1]
	}

	i := sort.SearchFloat64s(c.prices, price) - 1
	if i < 0 {
		i = 0
	}
	if i >= n-1 {
		i = n - 2
	}

	x0, x1 := c.prices[i], c.prices[i+1]
	y0, y1 := c.points[i], c.points[i+1]
	m0, m1 := c.tangents[i], c.tangents[i+1]

	h := x1 - x0
	t := (price - x0) / h

	h00 := 2*t*t*t - 3*t*t + 1
	h10 := t*t*t - 2*t*t + t
	h01 := -2*t*t*t + 3*t*t
	h11 := t*t*t - t*t

	return h00*y0 + h10*h*m0 + h01*y1 + h11*h*m1
}

// lowerBoundAt finds the nearest bucket to price and evaluates its Beta
// posterior lower bound at the configured confidence level.
func (c *Curve) lowerBoundAt(price float64) float64 {
	idx := nearestBucket(c.prices, price)
	b := c.buckets[idx]

	alpha := b.ObservedWins + 1
	beta := b.ObservedN - b.ObservedWins + 1
	return betaLowerBound(alpha, beta, 1-c.confidence)
}

func nearestBucket(prices []float64, price float64) int {
	best := 0
	bestDist := math.Abs(prices[0] - price)
	for i := 1; i < len(prices); i++ {
		d := math.Abs(prices[i] - price)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// bandLabel surfaces the diagnostic "sweet spot" metadata (glossary):
// purely informational now that uncertainty-based sizing has replaced the
// legacy hard cutoff.
func bandLabel(price float64) string {
	switch {
	case price >= 0.30 && price <= 0.55:
		return "sweet_spot"
	case price < 0.30:
		return "longshot"
	default:
		return "favorite"
	}
}

// isotonicRegression enforces a non-decreasing sequence via pool-adjacent-
// violators (PAVA), the standard algorithm for isotonic regression under
// squared-error loss.
func isotonicRegression(y []float64) []float64 {
	n := len(y)
	level := make([]float64, n)
	weight := make([]float64, n)
	copy(level, y)
	for i := range weight {
		weight[i] = 1
	}

	// Stack of pooled blocks, each (value, weight, count).
	type block struct {
		value  float64
		weight float64
		count  int
	}
	var stack []block

	for i := 0; i < n; i++ {
		cur := block{value: level[i], weight: weight[i], count: 1}
		for len(stack) > 0 && stack[len(stack)-1].value > cur.value {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			totalWeight := top.weight + cur.weight
			cur = block{
				value:  (top.value*top.weight + cur.value*cur.weight) / totalWeight,
				weight: totalWeight,
				count:  top.count + cur.count,
			}
		}
		stack = append(stack, cur)
	}

	out := make([]float64, 0, n)
	for _, b := range stack {
		for i := 0; i < b.count; i++ {
			out = append(out, b.value)
		}
	}
	return out
}

// pchipTangents computes Fritsch-Carlson shape-preserving tangents for a
// monotone sequence, guaranteeing the interpolant introduces no
// overshoot/undershoot between points.
func pchipTangents(x, y []float64) []float64 {
	n := len(x)
	m := make([]float64, n)
	if n < 2 {
		return m
	}

	delta := make([]float64, n-1)
	for i := 0; i < n-1; i++ {
		h := x[i+1] - x[i]
		if h <= 0 {
			delta[i] = 0
			continue
		}
		delta[i] = (y[i+1] - y[i]) / h
	}

	m[0] = delta[0]
	m[n-1] = delta[n-2]
	for i := 1; i < n-1; i++ {
		if delta[i-1]*delta[i] <= 0 {
			m[i] = 0
			continue
		}
		hBefore := x[i] - x[i-1]
		hAfter := x[i+1] - x[i]
		w1 := 2*hAfter + hBefore
		w2 := hAfter + 2*hBefore
		m[i] = (w1 + w2) / (w1/delta[i-1] + w2/delta[i])
	}
	return m
}
