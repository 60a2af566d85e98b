// Package risk implements the four-level circuit breaker (spec §4.4):
// level computation from realized PnL/drawdown/streak/drift inputs, graded
// hysteresis on recovery, and a degraded-mode fallback when the computation
// itself fails. Grounded on the teacher's domain.CircuitBreaker
// (RecordLoss/RecordWin, a single open/closed + cooldown-until state)
// generalized from one severity level to four, with dwell-time-gated
// recovery in place of the teacher's single cooldown timer.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/nbahedge/tradeengine/internal/domain"
	"github.com/nbahedge/tradeengine/internal/ports"
)

// Config mirrors config.RiskConfig without importing the config package
// (internal/application packages take plain structs, following the
// teacher's live.Config/paper.Config split rather than depending on the
// root config package directly).
type Config struct {
	DailyLossLimitPct     float64
	WeeklyLossLimitPct    float64
	MaxDrawdownLimitPct   float64
	DriftThresholdSigma   float64
	ConsecLossYellow      int
	RedCooldown           time.Duration
	OrangeToYellow        time.Duration
	OrangeToYellowWinRate float64
	YellowToGreenDays     int
	OrangeAllowsDCA       bool
	DriftMinSample        int
}

// Estimator is the calibration-curve slice the drift detector needs: just
// enough to bucket a settled signal's entry price into the band its edge
// was originally computed against (spec §4.4's "per-band rolling win-rate
// z-score vs. expected").
type Estimator interface {
	Estimate(price float64) domain.CalibrationEstimate
}

// Engine computes and persists the risk snapshot once per tick. It never
// holds the snapshot in memory between calls (spec §9): every Tick re-reads
// LatestRiskSnapshot and writes a fresh one at the end.
type Engine struct {
	store      ports.Store
	cfg        Config
	estimator  Estimator
	ackHandler func(ctx context.Context) (acked bool, ackedAt time.Time)
}

// New builds a risk Engine. ackFn supplies the manual RED->ORANGE
// acknowledgement signal (spec §4.4); a nil ackFn means acknowledgement is
// never granted, which is the safe default (RED requires manual
// intervention by design — spec §1 non-goals).
func New(store ports.Store, cfg Config, estimator Estimator, ackFn func(ctx context.Context) (bool, time.Time)) *Engine {
	if cfg.DriftMinSample <= 0 {
		cfg.DriftMinSample = 20
	}
	return &Engine{store: store, cfg: cfg, estimator: estimator, ackHandler: ackFn}
}

// Tick computes this tick's risk snapshot from persisted fills/results,
// applies hysteresis against the previous snapshot, persists the result,
// and returns it. On any internal failure it falls back to degraded mode
// (spec §4.4/§7: YELLOW, multiplier 0.5, degraded=true — never an unsafe
// default, and never blocks trading outright on a risk-engine bug).
func (e *Engine) Tick(ctx context.Context, now time.Time, bankBalance float64) domain.RiskSnapshot {
	snap, err := e.computeSnapshot(ctx, now, bankBalance)
	if err != nil {
		slog.Error("risk: computation failed, entering degraded mode", "err", err)
		snap = domain.RiskSnapshot{
			Timestamp:        now,
			Level:            domain.RiskYellow,
			SizingMultiplier: domain.RiskYellow.SizingMultiplier(),
			DegradedMode:     true,
			LevelEnteredAt:   now,
			BankHighWaterUSD: bankBalance,
		}
	}

	if _, insErr := e.store.InsertRiskSnapshot(ctx, snap); insErr != nil {
		slog.Error("risk: failed to persist snapshot", "err", insErr)
	}
	return snap
}

func (e *Engine) computeSnapshot(ctx context.Context, now time.Time, bankBalance float64) (domain.RiskSnapshot, error) {
	prev, hasPrev, err := e.store.LatestRiskSnapshot(ctx)
	if err != nil {
		return domain.RiskSnapshot{}, fmt.Errorf("risk.computeSnapshot: latest snapshot: %w", err)
	}

	highWater := bankBalance
	if hasPrev && prev.BankHighWaterUSD > highWater {
		highWater = prev.BankHighWaterUSD
	}
	drawdownPct := 0.0
	if highWater > 0 {
		drawdownPct = (highWater - bankBalance) / highWater
	}

	dailyResults, err := e.store.ListResultsSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return domain.RiskSnapshot{}, fmt.Errorf("risk.computeSnapshot: list daily results: %w", err)
	}
	weeklyResults, err := e.store.ListResultsSince(ctx, now.AddDate(0, 0, -7))
	if err != nil {
		return domain.RiskSnapshot{}, fmt.Errorf("risk.computeSnapshot: list weekly results: %w", err)
	}
	// Streak/win-rate statistics read further back than one week so a thin
	// week doesn't starve them of sample; ListResultsSince returns rows in
	// settlement order so the tail of a wider window is still the most
	// recent settlements.
	recentResults, err := e.store.ListResultsSince(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		return domain.RiskSnapshot{}, fmt.Errorf("risk.computeSnapshot: list recent results: %w", err)
	}

	dailyPnL := sumPnL(dailyResults)
	weeklyPnL := sumPnL(weeklyResults)
	dailyPct, weeklyPct := 0.0, 0.0
	if bankBalance > 0 {
		dailyPct = dailyPnL / bankBalance
		weeklyPct = weeklyPnL / bankBalance
	}

	consecLosses := trailingLossStreak(recentResults)
	last5WinRate := winRate(lastN(recentResults, 5))
	positive3Days, err := e.threeConsecutivePositiveDays(ctx, now)
	if err != nil {
		return domain.RiskSnapshot{}, fmt.Errorf("risk.computeSnapshot: day streak: %w", err)
	}

	driftZ, err := e.computeDrift(ctx, recentResults)
	if err != nil {
		return domain.RiskSnapshot{}, fmt.Errorf("risk.computeSnapshot: drift: %w", err)
	}

	raw := RawLevel(Inputs{
		DailyPnLPct:  dailyPct,
		WeeklyPnLPct: weeklyPct,
		DrawdownPct:  drawdownPct,
		ConsecLosses: consecLosses,
		DriftZMax:    driftZ,
	}, e.cfg)

	ackNow, ackedAt := false, time.Time{}
	if e.ackHandler != nil {
		ackNow, ackedAt = e.ackHandler(ctx)
	}

	level, enteredAt := NextLevel(prev, hasPrev, raw, now, e.cfg, ackNow, last5WinRate, positive3Days)

	snap := domain.RiskSnapshot{
		Timestamp:        now,
		Level:            level,
		SizingMultiplier: level.SizingMultiplier(),
		DailyPnL:         dailyPnL,
		WeeklyPnL:        weeklyPnL,
		ConsecLosses:     consecLosses,
		MaxDrawdownPct:   drawdownPct,
		DriftZMax:        driftZ,
		DegradedMode:     false,
		LevelEnteredAt:   enteredAt,
		BankHighWaterUSD: highWater,
	}
	if ackNow {
		snap.AckedAt = ackedAt
	} else if hasPrev {
		snap.AckedAt = prev.AckedAt
	}

	if hasPrev && level != prev.Level {
		slog.Warn("risk: level transition", "from", prev.Level, "to", level, "daily_pnl_pct", dailyPct, "weekly_pnl_pct", weeklyPct, "drawdown_pct", drawdownPct)
	}

	return snap, nil
}

// RawLevel evaluates the spec §4.4 level mapping in priority order
// (highest-severity wins), ignoring hysteresis — NextLevel is responsible
// for throttling any improvement this implies.
func RawLevel(in Inputs, cfg Config) domain.RiskLevel {
	if in.WeeklyPnLPct <= -cfg.WeeklyLossLimitPct || in.DrawdownPct >= cfg.MaxDrawdownLimitPct {
		return domain.RiskRed
	}
	if in.DailyPnLPct <= -cfg.DailyLossLimitPct || math.Abs(in.DriftZMax) > cfg.DriftThresholdSigma {
		return domain.RiskOrange
	}
	if in.ConsecLosses >= cfg.ConsecLossYellow || in.DailyPnLPct <= -cfg.DailyLossLimitPct/2 {
		return domain.RiskYellow
	}
	return domain.RiskGreen
}

// Inputs bundles the raw signals RawLevel maps to a severity (spec §4.4).
type Inputs struct {
	DailyPnLPct  float64
	WeeklyPnLPct float64
	DrawdownPct  float64
	ConsecLosses int
	DriftZMax    float64
}

// NextLevel applies spec §4.4's hysteresis: escalation (toward RED) is
// immediate and resets the dwell clock; recovery (toward GREEN) advances
// at most one severity step per tick, gated by the step's specific
// dwell-time-and-condition requirement. This guarantees the "no RED->GREEN
// without intermediate ORANGE and YELLOW" property (spec §8) structurally,
// since recovery can never skip a step.
func NextLevel(prev domain.RiskSnapshot, hasPrev bool, raw domain.RiskLevel, now time.Time, cfg Config, ackNow bool, last5WinRate float64, positive3Days bool) (domain.RiskLevel, time.Time) {
	if !hasPrev {
		return raw, now
	}
	if raw.WorseThan(prev.Level) || raw == prev.Level {
		if raw.WorseThan(prev.Level) {
			return raw, now
		}
		return prev.Level, prev.LevelEnteredAt
	}

	dwell := now.Sub(prev.LevelEnteredAt)
	switch prev.Level {
	case domain.RiskRed:
		if ackNow && dwell >= cfg.RedCooldown {
			return domain.RiskOrange, now
		}
		return domain.RiskRed, prev.LevelEnteredAt
	case domain.RiskOrange:
		if dwell >= cfg.OrangeToYellow && last5WinRate >= cfg.OrangeToYellowWinRate {
			return domain.RiskYellow, now
		}
		return domain.RiskOrange, prev.LevelEnteredAt
	case domain.RiskYellow:
		if positive3Days {
			return domain.RiskGreen, now
		}
		return domain.RiskYellow, prev.LevelEnteredAt
	default:
		return raw, now
	}
}

func sumPnL(results []domain.Result) float64 {
	var total float64
	for _, r := range results {
		total += r.PnLUSD
	}
	return total
}

func trailingLossStreak(results []domain.Result) int {
	streak := 0
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].PnLUSD < 0 {
			streak++
			continue
		}
		break
	}
	return streak
}

func lastN(results []domain.Result, n int) []domain.Result {
	if len(results) <= n {
		return results
	}
	return results[len(results)-n:]
}

func winRate(results []domain.Result) float64 {
	if len(results) == 0 {
		return 0
	}
	var wins int
	for _, r := range results {
		if r.Won {
			wins++
		}
	}
	return float64(wins) / float64(len(results))
}

// threeConsecutivePositiveDays checks the YELLOW->GREEN hysteresis
// condition (spec §4.4): PnL positive in each of the last three 24-hour
// periods ending at now.
// domain.Result carries no settlement timestamp, so day boundaries are
// derived from four cumulative ListResultsSince cutoffs and consumed via
// set difference by result ID — ListResultsSince returns rows in
// settlement order, so IDs are monotonic with settlement time and a
// cumulative-window diff recovers each day's own result set exactly.
func (e *Engine) threeConsecutivePositiveDays(ctx context.Context, now time.Time) (bool, error) {
	cumulative := make([][]domain.Result, 4)
	for i := 0; i < 4; i++ {
		cutoff := now.AddDate(0, 0, -i)
		rs, err := e.store.ListResultsSince(ctx, cutoff)
		if err != nil {
			return false, err
		}
		cumulative[i] = rs
	}

	for day := 0; day < 3; day++ {
		dayOnly := diffByID(cumulative[day+1], cumulative[day])
		if len(dayOnly) == 0 || sumPnL(dayOnly) <= 0 {
			return false, nil
		}
	}
	return true, nil
}

// diffByID returns the results present in wider but not in narrower,
// keyed by Result.ID.
func diffByID(wider, narrower []domain.Result) []domain.Result {
	seen := make(map[int64]struct{}, len(narrower))
	for _, r := range narrower {
		seen[r.ID] = struct{}{}
	}
	out := make([]domain.Result, 0, len(wider))
	for _, r := range wider {
		if _, ok := seen[r.ID]; !ok {
			out = append(out, r)
		}
	}
	return out
}
