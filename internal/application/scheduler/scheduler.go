// Package scheduler implements the per-tick job discovery, dispatch, and
// executor machinery of spec §4.6/§4.8: a stateless heartbeat that reads
// persistent state, performs bounded work, and writes state back (spec §2).
// Grounded on the teacher's cmd/scanner/main.go CLI->engine wiring and
// live/engine.go's RunOnce staged pipeline (discovery -> sync -> maintenance
// -> merge -> placement -> reporting), generalized from "always place a
// YES+NO pair against a reward-farming score" into the
// directional-then-conditional-hedge-then-DCA-then-merge state machine this
// domain needs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nbahedge/tradeengine/internal/application/risk"
	"github.com/nbahedge/tradeengine/internal/application/settlement"
	"github.com/nbahedge/tradeengine/internal/application/sizing"
	"github.com/nbahedge/tradeengine/internal/domain"
	"github.com/nbahedge/tradeengine/internal/ports"
)

// Mode distinguishes how aggressively the scheduler is allowed to act on
// the external world (spec §6 CLI surface: --mode {dry-run, paper, live}).
type Mode string

const (
	ModeDryRun Mode = "dry-run"
	ModePaper  Mode = "paper"
	ModeLive   Mode = "live"
)

// Estimator is the calibration-curve slice the sizer needs.
type Estimator interface {
	Estimate(price float64) domain.CalibrationEstimate
}

// Config bundles every tunable the scheduler's dispatch loop and its
// executors read (spec §6's enumerated tunable set).
type Config struct {
	Mode Mode

	WindowHours      int
	MaxOrdersPerTick int
	BothsideEnabled  bool
	HedgeDelay       time.Duration
	MaxRetries       int

	MaxDailyPositions     int
	MaxDailyExposureUSD   float64
	MaxPerGameExposureUSD float64
	MaxTotalExposureUSD   float64

	Sizing sizing.Inputs // static fields (FractionalKelly, CapitalRiskPct, ...); per-job fields overwritten per call

	DCAMaxEntries            int
	DCAMinInterval           time.Duration
	DCAMaxPriceSpread        float64
	DCAMinPriceDipPct        float64
	DCACapMult               float64
	DCAMinOrderUSD           float64
	DCACutoffBeforeTipoff    time.Duration

	OrangeAllowsDCA bool

	MergeEnabled       bool
	MergeMinProfitUSD  float64
	MergeEstGasUSD     float64
	MergeMinSharesFloor float64
	MergeMaxRetries    int
	WalletClass        domain.WalletClass

	LockDir         string
	AnalysisWorkers int
}

// Scheduler is the stateless per-tick coordinator. It holds no state across
// Tick calls beyond its collaborators' handles (spec §9: no long-lived
// in-memory singleton).
type Scheduler struct {
	store     ports.Store
	market    ports.MarketClient
	discovery ports.GameDiscovery
	merger    ports.MergeExecutor
	notifier  ports.Notifier
	risk      *risk.Engine
	estimator Estimator
	cfg       Config
}

// New builds a Scheduler.
func New(
	store ports.Store,
	market ports.MarketClient,
	discovery ports.GameDiscovery,
	merger ports.MergeExecutor,
	notifier ports.Notifier,
	riskEngine *risk.Engine,
	estimator Estimator,
	cfg Config,
) *Scheduler {
	if cfg.MaxOrdersPerTick <= 0 {
		cfg.MaxOrdersPerTick = 3
	}
	if cfg.WindowHours <= 0 {
		cfg.WindowHours = 8
	}
	return &Scheduler{
		store:     store,
		market:    market,
		discovery: discovery,
		merger:    merger,
		notifier:  notifier,
		risk:      riskEngine,
		estimator: estimator,
		cfg:       cfg,
	}
}

// TickOptions controls one invocation of Tick (spec §6 --date/--no-settle
// flags).
type TickOptions struct {
	Date     string // YYYY-MM-DD; empty means "today and tomorrow" per WindowHours
	NoSettle bool
}

// Tick runs one full scheduler cycle: discover -> expire -> risk check ->
// dispatch -> merge -> settle -> notify. There is no refresh pass: a job's
// game status and scores stay as discovery recorded them when it opened
// the job. It
// is idempotent and safe to call repeatedly; all state lives in the store.
func (s *Scheduler) Tick(ctx context.Context, now time.Time, opts TickOptions) (ports.TickSummary, error) {
	summary := ports.TickSummary{Mode: string(s.cfg.Mode)}

	discovered, err := s.discoverGames(ctx, now, opts.Date)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("discovery: %v", err))
		slog.Warn("scheduler: discovery failed", "err", err)
	}
	summary.JobsDiscovered = discovered

	if err := s.expireStaleJobs(ctx, now); err != nil {
		summary.Errors = append(summary.Errors, fmt.Sprintf("expire: %v", err))
		slog.Warn("scheduler: expire pass failed", "err", err)
	}

	bankBalance, err := s.market.GetBalance(ctx)
	if err != nil {
		slog.Warn("scheduler: get balance failed, risk engine will use 0", "err", err)
	}
	snap := s.risk.Tick(ctx, now, bankBalance)
	summary.RiskLevel = string(snap.Level)

	dispatched, placed, errs := s.dispatch(ctx, now, snap, bankBalance)
	summary.JobsDispatched = dispatched
	summary.OrdersPlaced = placed
	summary.Errors = append(summary.Errors, errs...)

	merges, mergeErrs := s.runMergePass(ctx, now, snap)
	summary.MergesExecuted = merges
	summary.Errors = append(summary.Errors, mergeErrs...)

	if !opts.NoSettle {
		settler := settlement.New(s.store, s.market)
		res, err := settler.Settle(ctx)
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("settlement: %v", err))
			slog.Warn("scheduler: settlement pass failed", "err", err)
		}
		summary.SignalsSettled = res.Settled
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, summary); err != nil {
			// Notification failures must never affect trading (spec §7).
			slog.Warn("scheduler: notify failed", "err", err)
		}
	}

	return summary, nil
}
