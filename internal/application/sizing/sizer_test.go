package sizing

import (
	"testing"

	"github.com/nbahedge/tradeengine/internal/domain"
	"github.com/stretchr/testify/assert"
)

// TestSizeScenario1 reproduces spec §8 scenario 1 literally.
func TestSizeScenario1(t *testing.T) {
	res := Size(Inputs{
		BankrollUSD:       1000,
		BestAsk:           0.40,
		PointEstimate:     0.75,
		LowerBoundWinRate: 0.70,
		FractionalKelly:   0.25,
		MaxPositionUSD:    100,
		CapitalRiskPct:    1, // not the binding constraint in this scenario
		LiquidityFillPct:  1,
		Liquidity:         domain.LiquiditySnapshot{BestBid: 0.39, BestAsk: 0.40, Spread: 0.01, AskDepth5c: 500},
		RiskMultiplier:    1.0,
	})

	assert.False(t, res.Zero())
	assert.InDelta(t, 0.5, res.KellyFraction, 1e-9)
	assert.InDelta(t, 0.9333, res.ConfidenceMult, 1e-3)
	assert.InDelta(t, 100, res.SizeUSD, 1e-6, "capped by max_position_usd")
}

func TestSizeZeroAtAskEqualsOne(t *testing.T) {
	res := Size(Inputs{BankrollUSD: 1000, BestAsk: 1.0, LowerBoundWinRate: 0.9})
	assert.True(t, res.Zero())
}

func TestSizeZeroWithNoEdge(t *testing.T) {
	res := Size(Inputs{BankrollUSD: 1000, BestAsk: 0.60, LowerBoundWinRate: 0.50})
	assert.True(t, res.Zero())
	assert.Equal(t, "no_edge", res.RejectReason)
}

func TestSizeZeroLiquidity(t *testing.T) {
	res := Size(Inputs{
		BankrollUSD: 1000, BestAsk: 0.40, PointEstimate: 0.75, LowerBoundWinRate: 0.70,
		FractionalKelly: 0.25, MaxPositionUSD: 100, CapitalRiskPct: 1, LiquidityFillPct: 0.10,
		Liquidity: domain.LiquiditySnapshot{BestBid: 0.39, BestAsk: 0.40, Spread: 0.01, AskDepth5c: 0},
	})
	assert.True(t, res.Zero())
}

func TestSizeRejectsWideSpread(t *testing.T) {
	res := Size(Inputs{
		BankrollUSD: 1000, BestAsk: 0.40, PointEstimate: 0.75, LowerBoundWinRate: 0.70,
		MaxSpreadPct: 0.05,
		Liquidity:    domain.LiquiditySnapshot{BestBid: 0.30, BestAsk: 0.40, Spread: 0.10, AskDepth5c: 500},
	})
	assert.True(t, res.Zero())
	assert.Equal(t, "spread_too_wide", res.RejectReason)
}

// TestDCASizeScenario3 reproduces spec §8 scenario 3 literally.
func TestDCASizeScenario3(t *testing.T) {
	dec := DCASize(DCAInputs{
		TotalCostUSD:     40,
		TotalShares:      100,
		BudgetUSD:        100,
		RemainingEntries: 3,
		CurrentPrice:     0.30,
		CapMult:          2.0,
		MinOrderUSD:      1,
	})
	assert.False(t, dec.Complete)
	assert.InDelta(t, 40, dec.OrderUSD, 1e-9)
}

func TestDCASizeTargetReached(t *testing.T) {
	dec := DCASize(DCAInputs{
		TotalCostUSD: 95, TotalShares: 200, BudgetUSD: 100, RemainingEntries: 1,
		CurrentPrice: 0.50, MinOrderUSD: 5,
	})
	assert.True(t, dec.Complete)
	assert.Equal(t, domain.DCATargetReached, dec.Reason)
}

func TestDCASizeBudgetExhausted(t *testing.T) {
	dec := DCASize(DCAInputs{
		TotalCostUSD: 98, TotalShares: 50, BudgetUSD: 100, RemainingEntries: 1,
		CurrentPrice: 0.10, MinOrderUSD: 5,
	})
	assert.True(t, dec.Complete)
	assert.Equal(t, domain.DCABudgetExhausted, dec.Reason)
}
