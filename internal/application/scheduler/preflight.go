package scheduler

// preflight.go — pre-trade exposure gating (spec §4.6 step 5): daily
// position count, daily USD exposure (committed signal USD only; the
// unplaced remainder of an open DCA budget is not counted), per-game
// exposure, and total open exposure, each
// checked against its configured cap before a new entry is allowed. Grounded
// on the teacher's live/capital.go calculateDeployedCapital sum-by-status
// idiom, generalized from one flat "capital at risk" figure into the spec's
// four independently-capped exposure dimensions.

import (
	"context"
	"fmt"
	"time"

	"github.com/nbahedge/tradeengine/internal/domain"
)

// preflightResult reports which, if any, exposure cap blocks a new entry.
type preflightResult struct {
	Allowed bool
	Reason  string
}

// checkPreflight evaluates every configured cap for a candidate entry of
// sizeUSD on eventSlug. Any single cap failing blocks the entry; it does not
// reduce the size to fit (sizing already ran, and a shrunk order can fall
// below spec §4.2's order-floor).
func (s *Scheduler) checkPreflight(ctx context.Context, now time.Time, eventSlug string, sizeUSD float64) (preflightResult, error) {
	dayStart := startOfDayUTC(now)

	positions, dailyExposure, err := s.dailyPositionStats(ctx, dayStart)
	if err != nil {
		return preflightResult{}, err
	}
	if s.cfg.MaxDailyPositions > 0 && positions >= s.cfg.MaxDailyPositions {
		return preflightResult{Reason: "max_daily_positions"}, nil
	}
	if s.cfg.MaxDailyExposureUSD > 0 && dailyExposure+sizeUSD > s.cfg.MaxDailyExposureUSD {
		return preflightResult{Reason: "max_daily_exposure"}, nil
	}

	perGame, err := s.gameExposure(ctx, eventSlug)
	if err != nil {
		return preflightResult{}, err
	}
	if s.cfg.MaxPerGameExposureUSD > 0 && perGame+sizeUSD > s.cfg.MaxPerGameExposureUSD {
		return preflightResult{Reason: "max_per_game_exposure"}, nil
	}

	total, err := s.totalOpenExposure(ctx)
	if err != nil {
		return preflightResult{}, err
	}
	if s.cfg.MaxTotalExposureUSD > 0 && total+sizeUSD > s.cfg.MaxTotalExposureUSD {
		return preflightResult{Reason: "max_total_exposure"}, nil
	}

	return preflightResult{Allowed: true}, nil
}

// dailyPositionStats counts the jobs of either leg created today that hold
// at least one signal, and sums their signals' committed USD. The part of
// an open DCA group's budget that no signal has placed yet is not counted.
func (s *Scheduler) dailyPositionStats(ctx context.Context, dayStart time.Time) (count int, exposureUSD float64, err error) {
	statuses := []domain.JobStatus{domain.JobExecuting, domain.JobDCAActive, domain.JobExecuted}
	for _, status := range statuses {
		jobs, err := s.store.ListJobsByStatus(ctx, status)
		if err != nil {
			return 0, 0, fmt.Errorf("dailyPositionStats: list %s: %w", status, err)
		}
		for _, job := range jobs {
			if job.CreatedAt.Before(dayStart) {
				continue
			}
			sigs, err := s.store.ListSignalsByJob(ctx, job.ID)
			if err != nil {
				return 0, 0, fmt.Errorf("dailyPositionStats: signals for job %d: %w", job.ID, err)
			}
			if len(sigs) == 0 {
				continue
			}
			count++
			exposureUSD += committedUSD(sigs)
		}
	}
	return count, exposureUSD, nil
}

// gameExposure sums committed USD across every job sharing eventSlug,
// regardless of leg side.
func (s *Scheduler) gameExposure(ctx context.Context, eventSlug string) (float64, error) {
	var total float64
	for _, side := range []domain.LegSide{domain.LegDirectional, domain.LegHedge} {
		job, ok, err := s.store.GetJobByEventSlugAndSide(ctx, eventSlug, side)
		if err != nil {
			return 0, fmt.Errorf("gameExposure: lookup %s: %w", side, err)
		}
		if !ok {
			continue
		}
		sigs, err := s.store.ListSignalsByJob(ctx, job.ID)
		if err != nil {
			return 0, fmt.Errorf("gameExposure: signals for job %d: %w", job.ID, err)
		}
		total += committedUSD(sigs)
	}
	return total, nil
}

// totalOpenExposure sums committed USD across every non-terminal job.
func (s *Scheduler) totalOpenExposure(ctx context.Context) (float64, error) {
	var total float64
	for _, status := range []domain.JobStatus{domain.JobExecuting, domain.JobDCAActive} {
		jobs, err := s.store.ListJobsByStatus(ctx, status)
		if err != nil {
			return 0, fmt.Errorf("totalOpenExposure: list %s: %w", status, err)
		}
		for _, job := range jobs {
			sigs, err := s.store.ListSignalsByJob(ctx, job.ID)
			if err != nil {
				return 0, fmt.Errorf("totalOpenExposure: signals for job %d: %w", job.ID, err)
			}
			total += committedUSD(sigs)
		}
	}
	return total, nil
}

// committedUSD sums each signal's requested size, which is committed
// capital from the moment the order is placed regardless of fill state.
func committedUSD(sigs []domain.Signal) float64 {
	var total float64
	for _, sig := range sigs {
		total += sig.RequestedSizeUSD
	}
	return total
}

func startOfDayUTC(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
