package mergepolicy_test

import (
	"testing"

	"github.com/nbahedge/tradeengine/internal/application/mergepolicy"
	"github.com/nbahedge/tradeengine/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_UnsupportedWallet(t *testing.T) {
	d := mergepolicy.Evaluate(mergepolicy.Inputs{
		DirectionalFills: []domain.PricePoint{{Price: 0.45, Shares: 100}},
		HedgeFills:       []domain.PricePoint{{Price: 0.40, Shares: 100}},
		WalletSupported:  false,
	})
	require.False(t, d.Eligible)
	require.Equal(t, "unsupported_wallet_class", d.SkipReason)
}

func TestEvaluate_NoMergeableShares(t *testing.T) {
	d := mergepolicy.Evaluate(mergepolicy.Inputs{
		DirectionalFills: []domain.PricePoint{{Price: 0.45, Shares: 100}},
		HedgeFills:       nil,
		WalletSupported:  true,
	})
	require.False(t, d.Eligible)
	require.Equal(t, "no_mergeable_shares", d.SkipReason)
}

func TestEvaluate_MarginBelowFloor(t *testing.T) {
	// combined VWAP of 0.97 leaves only 3c of margin per share; demand 10c.
	d := mergepolicy.Evaluate(mergepolicy.Inputs{
		DirectionalFills: []domain.PricePoint{{Price: 0.50, Shares: 100}},
		HedgeFills:       []domain.PricePoint{{Price: 0.47, Shares: 100}},
		MinProfitUSD:     10,
		EstGasUSD:        1,
		MinSharesFloor:   100,
		WalletSupported:  true,
	})
	require.False(t, d.Eligible)
	require.Equal(t, "margin_below_floor", d.SkipReason)
	require.Equal(t, 100.0, d.MergeableShares)
}

func TestEvaluate_Eligible(t *testing.T) {
	d := mergepolicy.Evaluate(mergepolicy.Inputs{
		DirectionalFills: []domain.PricePoint{{Price: 0.40, Shares: 100}},
		HedgeFills:       []domain.PricePoint{{Price: 0.38, Shares: 100}},
		MinProfitUSD:     5,
		EstGasUSD:        1,
		MinSharesFloor:   100,
		WalletSupported:  true,
	})
	require.True(t, d.Eligible)
	require.Equal(t, 100.0, d.MergeableShares)
	require.InDelta(t, 0.78, d.CombinedVWAP, 1e-9)
	require.InDelta(t, 0.22, d.RecoveryPerShare, 1e-9)
	require.InDelta(t, 22.0, d.TotalRecoveryUSD, 1e-9)
}

func TestEvaluate_AlreadyMergedReducesRemainder(t *testing.T) {
	d := mergepolicy.Evaluate(mergepolicy.Inputs{
		DirectionalFills: []domain.PricePoint{{Price: 0.40, Shares: 100}},
		HedgeFills:       []domain.PricePoint{{Price: 0.38, Shares: 100}},
		AlreadyMerged:    60,
		MinProfitUSD:     5,
		EstGasUSD:        1,
		MinSharesFloor:   10,
		WalletSupported:  true,
	})
	require.True(t, d.Eligible)
	require.Equal(t, 40.0, d.MergeableShares)
}

func TestAllocateCredit_SplitsProportionallyFIFO(t *testing.T) {
	splits := mergepolicy.AllocateCredit(150, 0.20, []mergepolicy.Contributor{
		{SignalID: 1, AvailableShares: 100},
		{SignalID: 2, AvailableShares: 80},
	})

	require.Len(t, splits, 2)
	require.Equal(t, int64(1), splits[0].SignalID)
	require.Equal(t, 100.0, splits[0].SharesMerged)
	require.InDelta(t, 20.0, splits[0].RecoveryUSD, 1e-9)

	require.Equal(t, int64(2), splits[1].SignalID)
	require.Equal(t, 50.0, splits[1].SharesMerged, "only the remaining 50 of the 150 total are left for the second contributor")
	require.InDelta(t, 10.0, splits[1].RecoveryUSD, 1e-9)
}

func TestAllocateCredit_ZeroTotalProducesNoSplits(t *testing.T) {
	splits := mergepolicy.AllocateCredit(0, 0.20, []mergepolicy.Contributor{
		{SignalID: 1, AvailableShares: 100},
	})
	require.Empty(t, splits)
}
