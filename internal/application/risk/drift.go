package risk

// drift.go — per-calibration-band rolling win-rate z-score vs. expected
// (spec §4.4). Grounded on the teacher's live/orders.go spreadStable: the
// same fixed-window, population-statistics idiom, applied to a different
// statistic (an observed-vs-expected binomial z-score rather than a
// coefficient of variation over spread samples).

import (
	"context"
	"fmt"
	"math"

	"github.com/nbahedge/tradeengine/internal/domain"
)

// BandObservation is one settled signal's expected win probability (at the
// price it was sized against) paired with its actual outcome.
type BandObservation struct {
	Expected float64
	Won      bool
}

// ZScore computes the standard normal z-score of observed wins against the
// expected win probability under a binomial model:
//
//	z = (wins - sum(expected)) / sqrt(sum(expected * (1 - expected)))
//
// Returns 0 when the sample is too thin to be statistically meaningful.
func ZScore(obs []BandObservation, minSample int) float64 {
	n := len(obs)
	if n < minSample {
		return 0
	}

	var expectedSum, variance, wins float64
	for _, o := range obs {
		expectedSum += o.Expected
		variance += o.Expected * (1 - o.Expected)
		if o.Won {
			wins++
		}
	}
	if variance <= 0 {
		return 0
	}
	return (wins - expectedSum) / math.Sqrt(variance)
}

// MaxZScore partitions observations into calibration bands and returns the
// largest-magnitude z-score across bands (spec §4.4: a breach in any single
// band trips the drift guard, not just the aggregate).
func MaxZScore(byBand map[string][]BandObservation, minSample int) float64 {
	var maxAbs float64
	for _, obs := range byBand {
		z := ZScore(obs, minSample)
		if math.Abs(z) > math.Abs(maxAbs) {
			maxAbs = z
		}
	}
	return maxAbs
}

// computeDrift buckets recently settled signals by the calibration band
// their entry price fell into and returns the largest-magnitude per-band
// z-score. A nil estimator (no calibration artifact configured) disables
// drift detection rather than failing the tick.
func (e *Engine) computeDrift(ctx context.Context, results []domain.Result) (float64, error) {
	if e.estimator == nil || len(results) == 0 {
		return 0, nil
	}

	byBand := make(map[string][]BandObservation)
	for _, r := range results {
		sig, err := e.store.GetSignal(ctx, r.SignalID)
		if err != nil {
			return 0, fmt.Errorf("computeDrift: get signal %d: %w", r.SignalID, err)
		}
		est := e.estimator.Estimate(sig.VWAPToDate)
		if est.BandLabel == "out_of_domain" {
			continue
		}
		byBand[est.BandLabel] = append(byBand[est.BandLabel], BandObservation{
			Expected: est.PointEstimate,
			Won:      r.Won,
		})
	}

	return MaxZScore(byBand, e.cfg.DriftMinSample), nil
}
