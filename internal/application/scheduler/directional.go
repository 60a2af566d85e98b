package scheduler

// directional.go — the directional entry executor (spec §4.6 steps 1-6):
// claim the job, pull a fresh price/book, run the calibration+sizing
// pipeline, place the maker order, and record the signal. Grounded on the
// teacher's live/engine.go placement stage (claim -> price -> size -> place
// -> persist), generalized from a fixed YES/NO pair size into the
// fractional-Kelly sizer's output and from "always place" into "place only
// if every guard clears".

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nbahedge/tradeengine/internal/application/sizing"
	"github.com/nbahedge/tradeengine/internal/domain"
)

// runDirectional attempts to dispatch one due directional job. It returns
// true when an order was placed.
func (s *Scheduler) runDirectional(ctx context.Context, now time.Time, job domain.Job, snap domain.RiskSnapshot, bankroll float64) (bool, error) {
	if snap.Level.BlocksNewEntries() {
		return false, nil
	}

	ok, err := s.store.ClaimJob(ctx, job.ID, domain.JobPending, domain.JobExecuting)
	if err != nil {
		return false, fmt.Errorf("runDirectional: claim job %d: %w", job.ID, err)
	}
	if !ok {
		return false, nil // another process/tick already claimed it
	}
	job.Status = domain.JobExecuting

	price, err := s.market.GetPrice(ctx, job.TokenID)
	if err != nil {
		return false, s.failJob(ctx, job, fmt.Errorf("get price: %w", err))
	}
	book, err := s.market.GetOrderBook(ctx, job.TokenID)
	if err != nil {
		return false, s.failJob(ctx, job, fmt.Errorf("get order book: %w", err))
	}

	est := s.estimator.Estimate(price.BestAsk)
	if !est.HasEdge() {
		return false, s.skipJob(ctx, job, "no_edge")
	}

	pf, err := s.checkPreflight(ctx, now, job.EventSlug, 0)
	if err != nil {
		return false, fmt.Errorf("runDirectional: preflight: %w", err)
	}
	if !pf.Allowed {
		return false, s.skipJob(ctx, job, pf.Reason)
	}

	in := s.cfg.Sizing
	in.BankrollUSD = bankroll
	in.BestAsk = price.BestAsk
	in.BestBid = price.BestBid
	in.PointEstimate = est.PointEstimate
	in.LowerBoundWinRate = est.LowerBound
	in.Liquidity = book.Liquidity()
	in.RiskMultiplier = snap.SizingMultiplier

	result := sizing.Size(in)
	if result.Zero() {
		return false, s.skipJob(ctx, job, result.RejectReason)
	}

	// Re-check the per-game/per-job cap against the actual sized amount,
	// now that the sizer has produced a concrete number.
	pf, err = s.checkPreflight(ctx, now, job.EventSlug, result.SizeUSD)
	if err != nil {
		return false, fmt.Errorf("runDirectional: preflight recheck: %w", err)
	}
	if !pf.Allowed {
		return false, s.skipJob(ctx, job, pf.Reason)
	}

	limitPrice := price.BestAsk - 0.01
	if limitPrice <= 0 {
		return false, s.skipJob(ctx, job, "no_room_below_ask")
	}

	placed, isPaper, err := s.placeOrder(ctx, domain.PlaceOrderRequest{
		TokenID:     job.TokenID,
		ConditionID: job.ConditionID,
		Price:       limitPrice,
		Size:        result.SizeUSD,
	})
	if err != nil {
		return false, s.failJob(ctx, job, fmt.Errorf("place order: %w", err))
	}

	sig := domain.Signal{
		JobID:              job.ID,
		TokenID:            job.TokenID,
		LimitPrice:         limitPrice,
		RequestedSizeUSD:   result.SizeUSD,
		Shares:             result.Shares,
		SignalRole:         domain.RoleDirectional,
		DCASequence:        0,
		ClobOrderID:        placed.OrderID,
		OrderStatus:        domain.OrderPlaced,
		OrderPlacedAt:      now,
		OrderOriginalPrice: limitPrice,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if isPaper {
		sig.FilledShares = result.Shares
		sig.VWAPToDate = limitPrice
		sig.OrderStatus = domain.OrderPaper
	} else if placed.TakenAmount > 0 {
		sig.FilledShares = placed.TakenAmount / limitPrice
		sig.VWAPToDate = limitPrice
		sig.OrderStatus = domain.OrderPartiallyFilled
	}

	sigID, err := s.store.InsertSignal(ctx, sig)
	if err != nil {
		return false, fmt.Errorf("runDirectional: insert signal: %w", err)
	}
	if err := s.store.AppendOrderEvent(ctx, domain.OrderEvent{
		SignalID:  sigID,
		EventType: domain.EventPlaced,
		NewPrice:  limitPrice,
		CreatedAt: now,
	}); err != nil {
		slog.Warn("scheduler: append placed event failed", "signal_id", sigID, "err", err)
	}

	job.DCAGroupID = job.EventSlug + ":directional"
	job.DCAFirstPrice = limitPrice
	job.DCALastEntryAt = now
	job.DCAEntriesDone = 1
	job.UpdatedAt = now
	if s.cfg.DCAMaxEntries > 1 {
		job.Status = domain.JobDCAActive
	} else {
		job.Status = domain.JobExecuted
	}
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return false, fmt.Errorf("runDirectional: update job: %w", err)
	}

	slog.Info("scheduler: directional order placed", "job_id", job.ID, "event_slug", job.EventSlug, "size_usd", result.SizeUSD, "price", limitPrice)
	return true, nil
}

// failJob transitions a job to failed, incrementing its retry count, and
// returns the triggering error wrapped for the caller's error aggregation.
func (s *Scheduler) failJob(ctx context.Context, job domain.Job, cause error) error {
	job.Status = domain.JobFailed
	job.RetryCount++
	job.UpdatedAt = time.Now().UTC()
	if job.RetryCount < 3 {
		// Leave room for a future tick to retry: only jobs that have
		// exhausted retries stay failed permanently (spec §4.8 edge case).
		job.Status = domain.JobPending
	}
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failJob: update job %d after %v: %w", job.ID, cause, err)
	}
	return fmt.Errorf("job %d: %w", job.ID, cause)
}

// skipJob transitions a job to skipped with a diagnostic reason. It is not
// an error path — a guard correctly declining to trade is the normal case.
func (s *Scheduler) skipJob(ctx context.Context, job domain.Job, reason string) error {
	job.Status = domain.JobSkipped
	job.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("skipJob: update job %d: %w", job.ID, err)
	}
	slog.Debug("scheduler: job skipped", "job_id", job.ID, "reason", reason)
	return nil
}
