package scheduler

// hedge.go — the conditional hedge executor (spec §4.6 step 2, §4.3): a
// hedge leg only prices and places once its directional counterpart has
// filled inventory to hedge against, and only at a price that still leaves
// room for the merge margin floor once both legs are combined. Grounded on
// mergepolicy.Evaluate's combined-VWAP/margin-floor math, reused here
// pre-fill to decide the hedge's own limit price instead of post-fill to
// decide whether to redeem.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nbahedge/tradeengine/internal/domain"
)

// runHedge attempts to dispatch one due hedge job. A hedge job stays pending
// (not failed, not skipped) when its directional counterpart has no filled
// inventory yet — the next tick will look again.
func (s *Scheduler) runHedge(ctx context.Context, now time.Time, job domain.Job, snap domain.RiskSnapshot) (bool, error) {
	if snap.Level.BlocksNewEntries() {
		return false, nil
	}
	if job.BothsideGroupID == "" {
		return false, s.skipJob(ctx, job, "no_bothside_group")
	}

	dirVWAP, dirFilled, err := s.directionalFillState(ctx, job.BothsideGroupID, job.LegSide)
	if err != nil {
		return false, fmt.Errorf("runHedge: directional fill state: %w", err)
	}
	if dirFilled <= 0 {
		return false, nil // nothing to hedge yet; stay pending
	}

	ok, err := s.store.ClaimJob(ctx, job.ID, domain.JobPending, domain.JobExecuting)
	if err != nil {
		return false, fmt.Errorf("runHedge: claim job %d: %w", job.ID, err)
	}
	if !ok {
		return false, nil
	}
	job.Status = domain.JobExecuting

	minMargin := domain.MinMarginFloor(s.cfg.MergeMinProfitUSD, s.cfg.MergeEstGasUSD, dirFilled, s.cfg.MergeMinSharesFloor)
	maxHedgePrice := 1 - dirVWAP - minMargin
	if maxHedgePrice <= 0 {
		return false, s.skipJob(ctx, job, "no_room_for_hedge_margin")
	}

	price, err := s.market.GetPrice(ctx, job.TokenID)
	if err != nil {
		return false, s.failJob(ctx, job, fmt.Errorf("get price: %w", err))
	}

	limitPrice := price.BestAsk - 0.01
	if limitPrice <= 0 || limitPrice > maxHedgePrice {
		// The book is too expensive for the economics to clear; leave the
		// job pending rather than burning a failed/skipped terminal state
		// on a transient price condition.
		job.Status = domain.JobPending
		job.UpdatedAt = time.Now().UTC()
		if err := s.store.UpdateJob(ctx, job); err != nil {
			return false, fmt.Errorf("runHedge: revert to pending: %w", err)
		}
		return false, nil
	}

	hedgeSizeUSD := dirFilled * limitPrice
	placed, isPaper, err := s.placeOrder(ctx, domain.PlaceOrderRequest{
		TokenID:     job.TokenID,
		ConditionID: job.ConditionID,
		Price:       limitPrice,
		Size:        hedgeSizeUSD,
	})
	if err != nil {
		return false, s.failJob(ctx, job, fmt.Errorf("place hedge order: %w", err))
	}

	sig := domain.Signal{
		JobID:              job.ID,
		TokenID:            job.TokenID,
		LimitPrice:         limitPrice,
		RequestedSizeUSD:   hedgeSizeUSD,
		Shares:             dirFilled,
		SignalRole:         domain.RoleHedge,
		ClobOrderID:        placed.OrderID,
		OrderStatus:        domain.OrderPlaced,
		OrderPlacedAt:      now,
		OrderOriginalPrice: limitPrice,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if isPaper {
		sig.FilledShares = dirFilled
		sig.VWAPToDate = limitPrice
		sig.OrderStatus = domain.OrderPaper
	} else if placed.TakenAmount > 0 {
		sig.FilledShares = placed.TakenAmount / limitPrice
		sig.VWAPToDate = limitPrice
		sig.OrderStatus = domain.OrderPartiallyFilled
	}

	sigID, err := s.store.InsertSignal(ctx, sig)
	if err != nil {
		return false, fmt.Errorf("runHedge: insert signal: %w", err)
	}
	if err := s.store.AppendOrderEvent(ctx, domain.OrderEvent{
		SignalID:  sigID,
		EventType: domain.EventPlaced,
		NewPrice:  limitPrice,
		CreatedAt: now,
	}); err != nil {
		slog.Warn("scheduler: append hedge placed event failed", "signal_id", sigID, "err", err)
	}

	job.Status = domain.JobExecuted
	job.UpdatedAt = now
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return false, fmt.Errorf("runHedge: update job: %w", err)
	}

	slog.Info("scheduler: hedge order placed", "job_id", job.ID, "event_slug", job.EventSlug, "size_usd", hedgeSizeUSD, "price", limitPrice)
	return true, nil
}

// directionalFillState returns the directional counterpart's combined VWAP
// and total filled shares for a bothside group.
func (s *Scheduler) directionalFillState(ctx context.Context, groupID string, selfSide domain.LegSide) (vwap, filled float64, err error) {
	pairJobs, err := s.store.ListJobsByBothsideGroup(ctx, groupID)
	if err != nil {
		return 0, 0, err
	}
	for _, pj := range pairJobs {
		if pj.LegSide == selfSide {
			continue
		}
		sigs, err := s.store.ListSignalsByJob(ctx, pj.ID)
		if err != nil {
			return 0, 0, err
		}
		var fills []domain.PricePoint
		for _, sig := range sigs {
			if sig.FilledShares > 0 {
				fills = append(fills, domain.PricePoint{Price: sig.VWAPToDate, Shares: sig.FilledShares})
				filled += sig.FilledShares
			}
		}
		vwap = domain.VWAP(fills)
	}
	return vwap, filled, nil
}
