// Package settlement reconciles per-signal PnL once a game has resolved
// (spec §4.7), using the uniform domain.SignalPnL formula that handles
// single entries, DCA groups, bothside pairs, and partially-merged
// positions without branching. Grounded on the teacher's
// domain.LiveDailySummary/LiveStats aggregation idiom (a simple loop
// counting outcomes into a summary struct) and sqlite.go's
// exists-then-insert upsert pattern for InsertResult's idempotency guard.
package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nbahedge/tradeengine/internal/domain"
	"github.com/nbahedge/tradeengine/internal/ports"
)

// Engine settles resolved games' signals against the market's resolved
// price.
type Engine struct {
	store  ports.Store
	market ports.MarketClient
}

// New builds a settlement Engine.
func New(store ports.Store, market ports.MarketClient) *Engine {
	return &Engine{store: store, market: market}
}

// Result summarizes one Settle pass for logging/reporting.
type Result struct {
	Settled int
	Skipped int
	Pending int // box score final but the market hasn't resolved the price yet
}

// jobStatusesInFlight are the non-terminal (or not-yet-reconciled) job
// states that may still carry unsettled filled inventory. JobSkipped,
// JobFailed, JobCancelled, and JobExpired never place orders that settle.
var jobStatusesInFlight = []domain.JobStatus{
	domain.JobExecuted,
	domain.JobDCAActive,
	domain.JobExecuting,
}

// Settle scans every in-flight job whose game has resolved and settles any
// signal that hasn't already been reconciled (spec §4.7).
func (e *Engine) Settle(ctx context.Context) (Result, error) {
	var res Result

	for _, status := range jobStatusesInFlight {
		jobs, err := e.store.ListJobsByStatus(ctx, status)
		if err != nil {
			return res, fmt.Errorf("settlement.Settle: list jobs %s: %w", status, err)
		}

		for _, job := range jobs {
			if job.GameStatus == domain.GamePostponed {
				slog.Warn("settlement: game postponed, skipping", "event_slug", job.EventSlug)
				res.Skipped++
				continue
			}
			if !job.SettleableAt() {
				continue
			}

			settledAll, err := e.settleJob(ctx, job, &res)
			if err != nil {
				slog.Warn("settlement: settle job failed", "event_slug", job.EventSlug, "err", err)
				continue
			}

			if settledAll && job.Status != domain.JobExecuted {
				job.Status = domain.JobExecuted
				if err := e.store.UpdateJob(ctx, job); err != nil {
					slog.Warn("settlement: mark job executed failed", "event_slug", job.EventSlug, "err", err)
				}
			}
		}
	}

	return res, nil
}

// settleJob settles every outstanding signal on one job, returning whether
// every signal with open inventory is now reconciled.
func (e *Engine) settleJob(ctx context.Context, job domain.Job, res *Result) (bool, error) {
	sigs, err := e.store.ListSignalsByJob(ctx, job.ID)
	if err != nil {
		return false, fmt.Errorf("list signals for job %d: %w", job.ID, err)
	}

	settledAll := true
	for _, sig := range sigs {
		if sig.FilledShares <= 0 && sig.SharesMerged <= 0 {
			continue // never filled, nothing to reconcile
		}

		if _, exists, err := e.store.GetResultBySignal(ctx, sig.ID); err != nil {
			return false, fmt.Errorf("check existing result for signal %d: %w", sig.ID, err)
		} else if exists {
			continue
		}

		settled, err := e.settleSignal(ctx, job, sig)
		if err != nil {
			slog.Warn("settlement: settle signal failed", "signal_id", sig.ID, "err", err)
			settledAll = false
			continue
		}
		if !settled {
			res.Pending++
			settledAll = false
			continue
		}
		res.Settled++
	}
	return settledAll, nil
}

// settleSignal resolves won/lost from the market's settled price for the
// signal's token (spec §4.7: resolved to >= $0.95 for the winner, <= $0.05
// for the loser) and records the uniform PnL formula's result. A price
// still sitting between those bands means the box score is final but the
// market hasn't resolved the outcome price yet — settled=false tells the
// caller to retry next tick rather than guess.
func (e *Engine) settleSignal(ctx context.Context, job domain.Job, sig domain.Signal) (bool, error) {
	liq, err := e.market.GetPrice(ctx, sig.TokenID)
	if err != nil {
		return false, fmt.Errorf("get resolved price for token %s: %w", sig.TokenID, err)
	}

	resolvedPrice := liq.BestBid
	var won bool
	switch {
	case resolvedPrice >= 0.95:
		won = true
	case resolvedPrice <= 0.05:
		won = false
	default:
		return false, nil
	}

	settlementPrice := domain.SettlementPrice(won)
	pnl := domain.SignalPnL(sig, settlementPrice)

	_, err = e.store.InsertResult(ctx, domain.Result{
		SignalID:        sig.ID,
		Won:             won,
		PnLUSD:          pnl,
		SettlementPrice: settlementPrice,
		ScoreHome:       job.HomeScore,
		ScoreAway:       job.AwayScore,
	})
	if err != nil {
		return false, fmt.Errorf("insert result for signal %d: %w", sig.ID, err)
	}

	return true, nil
}
