// Package mergepolicy wraps the pure merge-strategy predicates of
// internal/domain/merge.go into one merge-decision entry point and the
// per-signal recovery credit allocation the merge executor needs (spec
// §4.3, §4.6 step 3-5). Grounded on the teacher's
// live/merge.go mergeCompletePairs: VWAP via filled-size/bid-price,
// mergeable := min(...), a margin/profit gate before ever calling the
// chain executor, and a profit/loss record fed back into the circuit
// breaker — generalized from a single fixed MinMergeProfit floor into the
// spec's max(profit-floor, gas-floor) per-share margin and from a pair of
// console-printed orders into per-signal proportional credit rows.
package mergepolicy

import (
	"math"

	"github.com/nbahedge/tradeengine/internal/domain"
)

// Inputs bundles one merge-eligibility decision's inputs (spec §4.3/§4.6).
type Inputs struct {
	DirectionalFills []domain.PricePoint
	HedgeFills       []domain.PricePoint
	AlreadyMerged    float64 // shares already redeemed in prior partial merges
	MinProfitUSD     float64
	EstGasUSD        float64
	MinSharesFloor   float64
	WalletSupported  bool // the configured wallet class can execute a merge at all
}

// Decision is the outcome of evaluating the §4.3 gate for one job pair.
type Decision struct {
	Eligible       bool
	SkipReason     string
	MergeableShares float64
	CombinedVWAP   float64
	MinMargin      float64
	RecoveryPerShare float64
	TotalRecoveryUSD float64
}

// Evaluate computes the merge-eligibility decision for one directional/hedge
// pair: mergeable shares, combined VWAP, the margin floor, and — if the gate
// clears — the total USD recoverable from redeeming those shares (spec
// §4.3, §4.6 step 1-2).
func Evaluate(in Inputs) Decision {
	dirVWAP := domain.VWAP(in.DirectionalFills)
	hedgeVWAP := domain.VWAP(in.HedgeFills)
	combinedVWAP := dirVWAP + hedgeVWAP

	dirFilled := sumShares(in.DirectionalFills)
	hedgeFilled := sumShares(in.HedgeFills)

	mergeable := domain.MergeableShares(dirFilled, hedgeFilled) - in.AlreadyMerged
	if mergeable < 0 {
		mergeable = 0
	}

	if !in.WalletSupported {
		return Decision{SkipReason: "unsupported_wallet_class", MergeableShares: mergeable, CombinedVWAP: combinedVWAP}
	}
	if mergeable <= 0 {
		return Decision{SkipReason: "no_mergeable_shares", MergeableShares: mergeable, CombinedVWAP: combinedVWAP}
	}

	minMargin := domain.MinMarginFloor(in.MinProfitUSD, in.EstGasUSD, mergeable, in.MinSharesFloor)
	if !domain.MergeAllowed(combinedVWAP, minMargin) {
		return Decision{
			SkipReason:      "margin_below_floor",
			MergeableShares: mergeable,
			CombinedVWAP:    combinedVWAP,
			MinMargin:       minMargin,
		}
	}

	perShare := domain.RecoveryPerShare(combinedVWAP)
	return Decision{
		Eligible:         true,
		MergeableShares:  mergeable,
		CombinedVWAP:     combinedVWAP,
		MinMargin:        minMargin,
		RecoveryPerShare: perShare,
		TotalRecoveryUSD: perShare * mergeable,
	}
}

func sumShares(fills []domain.PricePoint) float64 {
	var total float64
	for _, f := range fills {
		total += f.Shares
	}
	return total
}

// CreditSplit is one signal's share of a merge operation's total recovery.
type CreditSplit struct {
	SignalID    int64
	SharesMerged float64
	RecoveryUSD float64
}

// AllocateCredit splits a merge operation's total recovery across the
// signals that contributed filled (but not yet merged) shares to it,
// proportionally to each signal's contribution (spec §4.6 step 3/5: "credit
// merge_recovery_usd per-signal proportionally to each signal's
// contribution to the merged shares" — the rule applies identically to a
// DCA group's several directional entries and to the hedge leg's own
// entries, since both sides are just lists of (signal_id, available_shares)
// pairs here).
//
// mergeableTotal is the total shares actually redeemed (min of the two
// legs' combined totals); contributors lists every signal's available
// (unmerged) shares across both legs, in fill order. Earlier fills are
// credited first (FIFO), mirroring how a DCA group's VWAP accumulates.
func AllocateCredit(mergeableTotal float64, recoveryPerShare float64, contributors []Contributor) []CreditSplit {
	remaining := mergeableTotal
	splits := make([]CreditSplit, 0, len(contributors))
	for _, c := range contributors {
		if remaining <= 0 {
			break
		}
		take := math.Min(c.AvailableShares, remaining)
		if take <= 0 {
			continue
		}
		remaining -= take
		splits = append(splits, CreditSplit{
			SignalID:     c.SignalID,
			SharesMerged: take,
			RecoveryUSD:  take * recoveryPerShare,
		})
	}
	return splits
}

// Contributor is one signal's available (filled, unmerged) shares, in the
// fill order AllocateCredit should consume them.
type Contributor struct {
	SignalID        int64
	AvailableShares float64
}
