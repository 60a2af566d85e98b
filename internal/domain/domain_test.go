package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVWAPRoundTrip(t *testing.T) {
	fills := []PricePoint{
		{Price: 0.40, Shares: 100},
		{Price: 0.44, Shares: 50},
		{Price: 0.38, Shares: 25},
	}
	vwap := VWAP(fills)

	var costSum, shareSum float64
	for _, f := range fills {
		costSum += f.Price * f.Shares
		shareSum += f.Shares
	}

	assert.InDelta(t, costSum, vwap*shareSum, 1e-9)
}

func TestVWAPEmpty(t *testing.T) {
	assert.Equal(t, 0.0, VWAP(nil))
}

func TestMergeAllowed(t *testing.T) {
	cases := []struct {
		name         string
		combinedVWAP float64
		minMargin    float64
		want         bool
	}{
		{"scenario 2 from spec", 0.97, 0.001, true},
		{"zero margin exactly at boundary", 0.999, 0.001, false},
		{"underwater merge", 1.02, 0.001, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, MergeAllowed(c.combinedVWAP, c.minMargin))
		})
	}
}

func TestMinMarginFloor(t *testing.T) {
	// spec scenario 2: 0.10/100 vs 0.05/100 -> profit floor wins.
	got := MinMarginFloor(0.10, 0.05, 100, 1)
	assert.InDelta(t, 0.001, got, 1e-9)
}

func TestRecoveryPerShare(t *testing.T) {
	assert.InDelta(t, 0.03, RecoveryPerShare(0.97), 1e-9)
	assert.Equal(t, 1.0, RecoveryPerShare(-5)) // clamps at 1
}

func TestMergeableShares(t *testing.T) {
	assert.Equal(t, 80.0, MergeableShares(80, 120))
	assert.Equal(t, 80.0, MergeableShares(120, 80))
}

func TestSignalPnLBothsideWithMerge(t *testing.T) {
	// spec scenario 2: directional filled 100@0.42, hedge filled 100@0.55,
	// both fully merged, directional wins.
	dir := Signal{FilledShares: 100, VWAPToDate: 0.42, SharesMerged: 100, MergeRecoveryUSD: 1.50}
	hedge := Signal{FilledShares: 100, VWAPToDate: 0.55, SharesMerged: 100, MergeRecoveryUSD: 1.50}

	pnlDir := SignalPnL(dir, SettlementPrice(true))
	pnlHedge := SignalPnL(hedge, SettlementPrice(false))

	assert.InDelta(t, -40.50, pnlDir, 1e-9)
	assert.InDelta(t, -53.50, pnlHedge, 1e-9)
	assert.InDelta(t, -94.00, pnlDir+pnlHedge, 1e-9)
}

func TestOrderStatusMonotonicity(t *testing.T) {
	assert.True(t, OrderPlaced.CanAdvanceTo(OrderFilled))
	assert.False(t, OrderFilled.CanAdvanceTo(OrderPlaced))
	assert.True(t, OrderPending.CanAdvanceTo(OrderPlaced))
	assert.True(t, OrderPlaced.CanAdvanceTo(OrderPlaced))
}

func TestRiskLevelSeverity(t *testing.T) {
	assert.True(t, RiskRed.WorseThan(RiskOrange))
	assert.True(t, RiskOrange.WorseThan(RiskYellow))
	assert.False(t, RiskGreen.WorseThan(RiskYellow))
	assert.Equal(t, 1.0, RiskGreen.SizingMultiplier())
	assert.Equal(t, 0.5, RiskYellow.SizingMultiplier())
	assert.Equal(t, 0.0, RiskOrange.SizingMultiplier())
	assert.Equal(t, 0.0, RiskRed.SizingMultiplier())
	assert.False(t, RiskGreen.BlocksNewEntries())
	assert.False(t, RiskYellow.BlocksNewEntries())
	assert.True(t, RiskOrange.BlocksNewEntries())
	assert.True(t, RiskRed.BlocksNewEntries())
	assert.False(t, RiskGreen.BlocksNewDCA())
	assert.True(t, RiskYellow.BlocksNewDCA())
	assert.True(t, RiskOrange.BlocksNewDCA())
	assert.True(t, RiskRed.BlocksNewDCA())
}

func TestEventSlugFor(t *testing.T) {
	// 2026-01-15 02:30 UTC is still 2026-01-14 21:30 Eastern.
	tipoff := time.Date(2026, 1, 15, 2, 30, 0, 0, time.UTC)
	slug := EventSlugFor("LAL", "BOS", tipoff)
	assert.Equal(t, "nba-lal-bos-2026-01-14", slug)
}

func TestOrderBookLiquidity(t *testing.T) {
	ob := OrderBook{
		TokenID: "t1",
		Bids:    []BookEntry{{Price: 0.39, Size: 100}},
		Asks: []BookEntry{
			{Price: 0.40, Size: 50},
			{Price: 0.46, Size: 200}, // outside the 5c band
		},
	}
	liq := ob.Liquidity()
	require.InDelta(t, 0.40, liq.BestAsk, 1e-9)
	assert.InDelta(t, 20.0, liq.AskDepth5c, 1e-9) // 50 * 0.40
}
