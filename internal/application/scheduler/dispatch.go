package scheduler

// dispatch.go — the serialized per-tick dispatch loop (spec §4.6, §4.8):
// due directional jobs, due hedge jobs, and active DCA jobs are each
// considered in the store's deterministic tipoff/event_slug order, up to
// MaxOrdersPerTick placements total. Market-data prefetch runs concurrently
// ahead of this loop (analysis.go); the loop itself runs single-threaded so
// the exposure caps it reads and writes every iteration never race.

import (
	"context"
	"log/slog"
	"time"

	"github.com/nbahedge/tradeengine/internal/domain"
)

// dispatch runs one tick's directional, hedge, and DCA executor passes.
// Returns the number of jobs considered and the number of orders actually
// placed.
func (s *Scheduler) dispatch(ctx context.Context, now time.Time, snap domain.RiskSnapshot, bankroll float64) (considered, placed int, errs []string) {
	dueJobs, err := s.store.ListDueJobs(ctx, now)
	if err != nil {
		return 0, 0, []string{"dispatch: list due jobs: " + err.Error()}
	}

	// Prefetch is best-effort diagnostics only here: the executors still
	// call GetPrice/GetOrderBook themselves for a guaranteed-fresh quote
	// immediately before placing, since a prefetched snapshot can go stale
	// across a slow preceding job in the same tick.
	_ = prefetchMarketData(ctx, s.market, dueJobs, s.cfg.AnalysisWorkers)

	var directional, hedge []domain.Job
	for _, job := range dueJobs {
		if !job.ReadyForDispatch(now) {
			continue
		}
		switch job.LegSide {
		case domain.LegDirectional:
			directional = append(directional, job)
		case domain.LegHedge:
			hedge = append(hedge, job)
		}
	}

	for _, job := range directional {
		if placed >= s.cfg.MaxOrdersPerTick {
			break
		}
		considered++
		ok, err := s.runDirectional(ctx, now, job, snap, bankroll)
		if err != nil {
			errs = append(errs, "directional job "+jobLabel(job)+": "+err.Error())
			continue
		}
		if ok {
			placed++
		}
	}

	for _, job := range hedge {
		if placed >= s.cfg.MaxOrdersPerTick {
			break
		}
		considered++
		ok, err := s.runHedge(ctx, now, job, snap)
		if err != nil {
			errs = append(errs, "hedge job "+jobLabel(job)+": "+err.Error())
			continue
		}
		if ok {
			placed++
		}
	}

	dcaJobs, err := s.store.ListJobsByStatus(ctx, domain.JobDCAActive)
	if err != nil {
		errs = append(errs, "dispatch: list dca_active jobs: "+err.Error())
		return considered, placed, errs
	}
	for _, job := range dcaJobs {
		if placed >= s.cfg.MaxOrdersPerTick {
			break
		}
		considered++
		ok, err := s.runDCA(ctx, now, job, snap, bankroll)
		if err != nil {
			errs = append(errs, "dca job "+jobLabel(job)+": "+err.Error())
			continue
		}
		if ok {
			placed++
		}
	}

	if len(errs) > 0 {
		slog.Warn("scheduler: dispatch completed with errors", "considered", considered, "placed", placed, "errors", len(errs))
	}
	return considered, placed, errs
}

func jobLabel(job domain.Job) string {
	return job.EventSlug + "/" + string(job.LegSide)
}
