package sizing

// dca.go — the target-holding DCA sizer (spec §4.2): given a DCA group's
// running cost, filled shares, total pre-sized budget, remaining entries,
// and current price, computes the next follow-on entry size so the group
// converges on its mark-to-market target rather than blindly splitting the
// budget into equal slices. Grounded on live/capital.go's
// calculateDeployedCapital accounting idiom, generalized from "sum by
// order status" to "gap between target value and mark-to-market value".

import (
	"math"

	"github.com/nbahedge/tradeengine/internal/domain"
)

// DCAInputs bundles one target-holding sizing decision's inputs.
type DCAInputs struct {
	TotalCostUSD    float64 // C: running cost basis of the group so far
	TotalShares     float64 // S_total: shares filled so far
	BudgetUSD       float64 // B: the group's total pre-sized budget
	RemainingEntries int    // k: DCA entries left, including this one
	CurrentPrice    float64 // p
	CapMult         float64 // default 2.0
	MinOrderUSD     float64 // below this, the group is considered done
}

// DCASize implements the spec §4.2 target-holding formula:
//
//	V = S_total * p
//	g = max(0, B - V)
//	B_r = B - C
//	cap = (B_r / max(1,k)) * cap_mult
//	order = min(g, B_r, cap)
//
// order < min_order_usd resolves to "target_reached" when the
// mark-to-market value has already met the budget, or "budget_exhausted"
// when the remaining budget itself is too thin for another entry.
func DCASize(in DCAInputs) domain.DCASizeDecision {
	capMult := in.CapMult
	if capMult <= 0 {
		capMult = 2.0
	}
	k := in.RemainingEntries
	if k < 1 {
		k = 1
	}

	markValue := in.TotalShares * in.CurrentPrice
	gap := math.Max(0, in.BudgetUSD-markValue)
	remainingBudget := in.BudgetUSD - in.TotalCostUSD
	cap := (remainingBudget / float64(k)) * capMult

	order := math.Min(gap, remainingBudget)
	order = math.Min(order, cap)
	if order < 0 {
		order = 0
	}

	minOrder := in.MinOrderUSD
	if minOrder <= 0 {
		minOrder = 5
	}

	if order < minOrder {
		if gap <= minOrder {
			return domain.DCASizeDecision{Complete: true, Reason: domain.DCATargetReached}
		}
		return domain.DCASizeDecision{Complete: true, Reason: domain.DCABudgetExhausted}
	}

	return domain.DCASizeDecision{OrderUSD: order}
}
