package domain

// Result is one row per settled signal (spec §3).
type Result struct {
	ID               int64
	SignalID         int64
	Won              bool
	PnLUSD           float64
	SettlementPrice  float64
	ScoreHome        int
	ScoreAway        int
}

// SettlementPrice resolves to $1.00 for the winning outcome, $0.00 otherwise.
func SettlementPrice(won bool) float64 {
	if won {
		return 1.0
	}
	return 0.0
}

// SignalPnL computes the uniform per-signal settlement formula (spec §4.7):
//
//	pnl = (remaining_shares * settlement_price) + merge_recovery_usd - cost - fee_usd
//
// This single formula handles single entries, DCA groups, bothside pairs,
// and partially-merged positions without branching by position structure.
func SignalPnL(s Signal, settlementPrice float64) float64 {
	remaining := s.RemainingShares()
	cost := s.Cost()
	return remaining*settlementPrice + s.MergeRecoveryUSD - cost - s.FeeUSD
}
