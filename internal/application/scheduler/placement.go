package scheduler

// placement.go — the single chokepoint every executor routes a maker limit
// buy through, so "does this tick touch the real market" is decided once
// per Scheduler rather than re-derived in directional/hedge/dca_executor.go.
// Grounded on merge_executor.go's own `s.cfg.Mode != ModeLive` simulate
// branch, generalized from merge execution to order placement: paper and
// dry-run both behave as an instantaneous full fill at the requested limit
// price, recorded with order_status=paper (spec §4.6 step 7) rather than
// ever reaching ports.MarketClient.PlaceLimitBuy.

import (
	"context"

	"github.com/nbahedge/tradeengine/internal/domain"
)

// placeOrder places req live, or simulates an immediate full paper fill,
// depending on the scheduler's configured mode. isPaper tells the caller
// which signal bookkeeping path to take.
func (s *Scheduler) placeOrder(ctx context.Context, req domain.PlaceOrderRequest) (placed domain.PlacedOrder, isPaper bool, err error) {
	if s.cfg.Mode == ModeLive {
		placed, err = s.market.PlaceLimitBuy(ctx, req)
		return placed, false, err
	}
	return domain.PlacedOrder{
		OrderID:     "paper-" + req.TokenID,
		Status:      "paper",
		MadeAmount:  req.Size,
		TakenAmount: req.Size,
	}, true, nil
}
