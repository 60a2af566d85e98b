package scheduler

// dca_executor.go — the DCA follow-on executor (spec §4.2, §4.6 step 6): for
// a directional job already holding a first entry, decide whether time or a
// price dip justifies another entry, size it against the group's remaining
// target-holding gap, and place it — or close the group out once its budget,
// entry count, or the tipoff cutoff is reached. Grounded on
// sizing.DCASize's target-holding formula and the teacher's live/orders.go
// TTL idiom, reused here as "time since last entry" instead of "time since
// order placed".

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nbahedge/tradeengine/internal/application/sizing"
	"github.com/nbahedge/tradeengine/internal/domain"
)

// runDCA attempts one follow-on entry for a dca_active job. It returns true
// when an order was placed.
func (s *Scheduler) runDCA(ctx context.Context, now time.Time, job domain.Job, snap domain.RiskSnapshot, bankroll float64) (bool, error) {
	dcaAllowed := !snap.Level.BlocksNewDCA() || (snap.Level == domain.RiskOrange && s.cfg.OrangeAllowsDCA)
	if !dcaAllowed {
		return false, nil
	}

	if job.DCAEntriesDone >= s.cfg.DCAMaxEntries {
		return false, s.completeDCA(ctx, job, domain.DCAMaxEntries)
	}
	if !now.Before(job.TipoffUTC.Add(-s.cfg.DCACutoffBeforeTipoff)) {
		return false, s.completeDCA(ctx, job, domain.DCACutoff)
	}
	if now.Sub(job.DCALastEntryAt) < s.cfg.DCAMinInterval {
		return false, nil
	}

	price, err := s.market.GetPrice(ctx, job.TokenID)
	if err != nil {
		return false, fmt.Errorf("runDCA: get price job %d: %w", job.ID, err)
	}

	// Drift guard: a follow-on entry is only justified by a genuine dip, not
	// by the price having run away from the group's first fill (spec §4.2).
	spread := (price.BestAsk - job.DCAFirstPrice) / job.DCAFirstPrice
	if spread > s.cfg.DCAMaxPriceSpread {
		return false, nil
	}
	dip := (job.DCAFirstPrice - price.BestAsk) / job.DCAFirstPrice
	if dip < s.cfg.DCAMinPriceDipPct && now.Sub(job.DCALastEntryAt) < s.cfg.DCAMinInterval*2 {
		// Neither a price trigger nor enough elapsed time to force a
		// time-based entry; wait for a clearer signal.
		return false, nil
	}

	sigs, err := s.store.ListSignalsByJob(ctx, job.ID)
	if err != nil {
		return false, fmt.Errorf("runDCA: list signals job %d: %w", job.ID, err)
	}
	totalCost, totalShares := groupTotals(sigs)

	in := s.cfg.Sizing
	in.BankrollUSD = bankroll
	budgetUSD := in.BankrollUSD * in.CapitalRiskPct
	if in.MaxPositionUSD > 0 && budgetUSD > in.MaxPositionUSD {
		budgetUSD = in.MaxPositionUSD
	}

	decision := sizing.DCASize(sizing.DCAInputs{
		TotalCostUSD:     totalCost,
		TotalShares:      totalShares,
		BudgetUSD:        budgetUSD,
		RemainingEntries: s.cfg.DCAMaxEntries - job.DCAEntriesDone,
		CurrentPrice:     price.BestAsk,
		CapMult:          s.cfg.DCACapMult,
		MinOrderUSD:      s.cfg.DCAMinOrderUSD,
	})
	if decision.Complete {
		return false, s.completeDCA(ctx, job, decision.Reason)
	}

	pf, err := s.checkPreflight(ctx, now, job.EventSlug, decision.OrderUSD)
	if err != nil {
		return false, fmt.Errorf("runDCA: preflight: %w", err)
	}
	if !pf.Allowed {
		return false, nil // try again next tick rather than terminating the group
	}

	limitPrice := price.BestAsk - 0.01
	if limitPrice <= 0 {
		return false, nil
	}

	placed, isPaper, err := s.placeOrder(ctx, domain.PlaceOrderRequest{
		TokenID:     job.TokenID,
		ConditionID: job.ConditionID,
		Price:       limitPrice,
		Size:        decision.OrderUSD,
	})
	if err != nil {
		slog.Warn("scheduler: dca order placement failed", "job_id", job.ID, "err", err)
		return false, nil
	}

	sig := domain.Signal{
		JobID:              job.ID,
		TokenID:            job.TokenID,
		LimitPrice:         limitPrice,
		RequestedSizeUSD:   decision.OrderUSD,
		Shares:             decision.OrderUSD / limitPrice,
		SignalRole:         domain.RoleDirectional,
		DCAGroupID:         job.DCAGroupID,
		DCASequence:        job.DCAEntriesDone,
		ClobOrderID:        placed.OrderID,
		OrderStatus:        domain.OrderPlaced,
		OrderPlacedAt:      now,
		OrderOriginalPrice: limitPrice,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if isPaper {
		sig.FilledShares = decision.OrderUSD / limitPrice
		sig.VWAPToDate = limitPrice
		sig.OrderStatus = domain.OrderPaper
	} else if placed.TakenAmount > 0 {
		sig.FilledShares = placed.TakenAmount / limitPrice
		sig.VWAPToDate = limitPrice
		sig.OrderStatus = domain.OrderPartiallyFilled
	}

	sigID, err := s.store.InsertSignal(ctx, sig)
	if err != nil {
		return false, fmt.Errorf("runDCA: insert signal job %d: %w", job.ID, err)
	}
	if err := s.store.AppendOrderEvent(ctx, domain.OrderEvent{
		SignalID:  sigID,
		EventType: domain.EventPlaced,
		NewPrice:  limitPrice,
		CreatedAt: now,
	}); err != nil {
		slog.Warn("scheduler: append dca placed event failed", "signal_id", sigID, "err", err)
	}

	job.DCAEntriesDone++
	job.DCALastEntryAt = now
	job.UpdatedAt = now
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return false, fmt.Errorf("runDCA: update job %d: %w", job.ID, err)
	}

	slog.Info("scheduler: dca entry placed", "job_id", job.ID, "sequence", sig.DCASequence, "size_usd", decision.OrderUSD, "price", limitPrice)
	return true, nil
}

// completeDCA transitions a dca_active job to executed, recording why the
// group stopped taking entries.
func (s *Scheduler) completeDCA(ctx context.Context, job domain.Job, reason domain.DCACompletionReason) error {
	ok, err := s.store.ClaimJob(ctx, job.ID, domain.JobDCAActive, domain.JobExecuted)
	if err != nil {
		return fmt.Errorf("completeDCA: claim job %d: %w", job.ID, err)
	}
	if !ok {
		return nil
	}
	job.Status = domain.JobExecuted
	job.CompletionNote = reason
	job.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("completeDCA: update job %d: %w", job.ID, err)
	}
	slog.Info("scheduler: dca group complete", "job_id", job.ID, "reason", reason)
	return nil
}

func groupTotals(sigs []domain.Signal) (cost, shares float64) {
	for _, sig := range sigs {
		cost += sig.Cost()
		shares += sig.FilledShares
	}
	return cost, shares
}
