package sizing

// sizer.go — the position sizer (spec §4.2): a fractional-Kelly calculation
// at the calibration curve's lower-bound win rate, scaled by a continuous
// confidence multiplier, then clamped through a three-way cap
// (Kelly x capital x liquidity). Grounded on the teacher's
// live/capital.go kellyFraction (fractional-Kelly, clamped to a sane
// range) and live/engine.go's constant-based caps
// (maxMarketConcentration, minShares, minOrderUSDC), generalized from an
// ad hoc single-stage clamp into the spec's explicit eight-step pipeline.

import (
	"math"

	"github.com/nbahedge/tradeengine/internal/domain"
)

// Inputs bundles everything the sizer needs for one sizing decision.
type Inputs struct {
	BankrollUSD       float64
	BestAsk           float64
	BestBid           float64
	PointEstimate     float64
	LowerBoundWinRate float64
	FractionalKelly   float64 // default 0.25
	CapitalRiskPct    float64 // default 0.02
	MaxPositionUSD    float64 // default 100
	Liquidity         domain.LiquiditySnapshot
	LiquidityFillPct  float64 // default 0.10
	MaxSpreadPct      float64 // default 0.10
	RiskMultiplier    float64 // risk engine's current sizing multiplier, GREEN=1.0
}

// Size runs the spec §4.2 eight-step sizing pipeline and returns the sized
// order plus a diagnostic record. Any guard failure returns a Zero()
// result with RejectReason set.
func Size(in Inputs) domain.SizingResult {
	if in.BestAsk <= 0 || in.BestAsk >= 1 {
		return domain.SizingResult{Rejected: true, RejectReason: "ask_out_of_range"}
	}

	// Step 1: expected-value guard.
	evPerDollar := in.LowerBoundWinRate/in.BestAsk - 1
	if evPerDollar <= 0 {
		return domain.SizingResult{EVPerDollar: evPerDollar, Rejected: true, RejectReason: "no_edge"}
	}

	// Step 8: spread guard (checked early — cheaper than sizing first).
	if in.Liquidity.BestAsk > 0 {
		spreadPct := in.Liquidity.Spread / in.Liquidity.BestAsk
		maxSpread := in.MaxSpreadPct
		if maxSpread <= 0 {
			maxSpread = 0.10
		}
		if spreadPct > maxSpread {
			return domain.SizingResult{EVPerDollar: evPerDollar, Rejected: true, RejectReason: "spread_too_wide"}
		}
	}

	// Step 2: Kelly fraction at the lower bound, clamped to [0,1].
	kelly := (in.LowerBoundWinRate - in.BestAsk) / (1 - in.BestAsk)
	kelly = clamp(kelly, 0, 1)
	if kelly <= 0 {
		return domain.SizingResult{EVPerDollar: evPerDollar, KellyFraction: kelly, Rejected: true, RejectReason: "zero_kelly"}
	}

	// Step 3: continuous confidence multiplier, replacing the legacy hard
	// sweet-spot cutoff.
	confMult := 1.0
	if in.PointEstimate > 0 {
		confMult = clamp(in.LowerBoundWinRate/in.PointEstimate, 0.5, 1.0)
	}

	fracKelly := in.FractionalKelly
	if fracKelly <= 0 {
		fracKelly = 0.25
	}
	riskMult := in.RiskMultiplier
	if riskMult == 0 {
		riskMult = 1.0
	}

	// Step 4: raw size.
	sizeUSD := in.BankrollUSD * fracKelly * kelly * confMult * riskMult

	// Step 5: capital cap.
	capitalRisk := in.CapitalRiskPct
	if capitalRisk <= 0 {
		capitalRisk = 0.02
	}
	sizeUSD = math.Min(sizeUSD, in.BankrollUSD*capitalRisk)

	// Step 6: absolute cap.
	maxPosition := in.MaxPositionUSD
	if maxPosition <= 0 {
		maxPosition = 100
	}
	sizeUSD = math.Min(sizeUSD, maxPosition)

	// Step 7: liquidity cap.
	fillPct := in.LiquidityFillPct
	if fillPct <= 0 {
		fillPct = 0.10
	}
	liquidityCap := in.Liquidity.AskDepth5c * fillPct
	sizeUSD = math.Min(sizeUSD, liquidityCap)

	if sizeUSD <= 0 {
		return domain.SizingResult{
			EVPerDollar: evPerDollar, KellyFraction: kelly, ConfidenceMult: confMult,
			Rejected: true, RejectReason: "zero_after_caps",
		}
	}

	shares := sizeUSD / in.BestAsk
	return domain.SizingResult{
		SizeUSD:        sizeUSD,
		Shares:         shares,
		EVPerDollar:    evPerDollar,
		KellyFraction:  kelly,
		ConfidenceMult: confMult,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
