package scheduler

// expire.go — stale-job reaping (spec §4.6 step 7, §4.8): a pending job
// whose window closed without ever dispatching, and a dca_active job that
// has run past its cutoff, both need a terminal status so they stop being
// re-offered to the dispatch loop every tick. Grounded on the teacher's
// live/rotation.go age-based sweep, generalized from "cancel a stale order"
// to "retire a stale job row".

import (
	"context"
	"fmt"
	"time"

	"github.com/nbahedge/tradeengine/internal/domain"
)

// expireStaleJobs closes out two categories of job the dispatch loop should
// no longer see: pending jobs whose execute_before has passed (the game
// tipped off, or is about to, with no entry ever placed), and dca_active
// jobs past their tipoff cutoff (spec §4.2 DCA cutoff).
func (s *Scheduler) expireStaleJobs(ctx context.Context, now time.Time) error {
	if err := s.expirePending(ctx, now); err != nil {
		return err
	}
	return s.cutoffDCA(ctx, now)
}

func (s *Scheduler) expirePending(ctx context.Context, now time.Time) error {
	pending, err := s.store.ListJobsByStatus(ctx, domain.JobPending)
	if err != nil {
		return fmt.Errorf("expirePending: list: %w", err)
	}
	for _, job := range pending {
		if now.Before(job.ExecuteBefore) {
			continue
		}
		ok, err := s.store.ClaimJob(ctx, job.ID, domain.JobPending, domain.JobExpired)
		if err != nil {
			return fmt.Errorf("expirePending: claim job %d: %w", job.ID, err)
		}
		if !ok {
			continue // another process already advanced it this tick
		}
	}
	return nil
}

func (s *Scheduler) cutoffDCA(ctx context.Context, now time.Time) error {
	active, err := s.store.ListJobsByStatus(ctx, domain.JobDCAActive)
	if err != nil {
		return fmt.Errorf("cutoffDCA: list: %w", err)
	}
	cutoff := s.cfg.DCACutoffBeforeTipoff
	if cutoff <= 0 {
		cutoff = 10 * time.Minute
	}
	for _, job := range active {
		if now.Before(job.TipoffUTC.Add(-cutoff)) {
			continue
		}
		ok, err := s.store.ClaimJob(ctx, job.ID, domain.JobDCAActive, domain.JobExecuted)
		if err != nil {
			return fmt.Errorf("cutoffDCA: claim job %d: %w", job.ID, err)
		}
		if !ok {
			continue
		}
		job.Status = domain.JobExecuted
		job.CompletionNote = domain.DCACutoff
		job.UpdatedAt = now
		if err := s.store.UpdateJob(ctx, job); err != nil {
			return fmt.Errorf("cutoffDCA: update job %d: %w", job.ID, err)
		}
	}
	return nil
}
