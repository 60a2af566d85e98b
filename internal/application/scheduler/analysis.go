package scheduler

// analysis.go — concurrent market-data prefetch ahead of the serialized
// dispatch loop. Grounded on the teacher's scanner/concurrent.go
// analyzeMarketsConcurrent worker pool (workCh/resultCh fan-out,
// runtime.NumCPU()*2 default width), generalized from "analyze a market for
// an arbitrage opportunity" to "fetch one job's price+book snapshot", since
// this engine's per-job decision logic itself must run serially (it mutates
// shared risk/exposure counters across jobs) while the read-only market
// fetch that feeds it does not.

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/nbahedge/tradeengine/internal/domain"
	"github.com/nbahedge/tradeengine/internal/ports"
)

// marketSnapshot is one due job's prefetched price/book pair, or the error
// that prevented fetching it.
type marketSnapshot struct {
	job   domain.Job
	price domain.LiquiditySnapshot
	book  domain.OrderBook
	err   error
}

// prefetchMarketData fetches price and order-book snapshots for every due
// job concurrently, returning results in the same order jobs were given. A
// worker failing to fetch one job's data does not block the others; that
// job's snapshot carries the error. The dispatch loop currently discards
// these snapshots, and each executor fetches its own quote.
func prefetchMarketData(ctx context.Context, market ports.MarketClient, jobs []domain.Job, workers int) []marketSnapshot {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}
	if workers > len(jobs) && len(jobs) > 0 {
		workers = len(jobs)
	}

	type indexed struct {
		idx int
		job domain.Job
	}
	workCh := make(chan indexed, len(jobs))
	results := make([]marketSnapshot, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for w := range workCh {
				results[w.idx] = fetchOne(ctx, market, w.job)
			}
		}()
	}

	for i, j := range jobs {
		workCh <- indexed{idx: i, job: j}
	}
	close(workCh)
	wg.Wait()

	return results
}

func fetchOne(ctx context.Context, market ports.MarketClient, job domain.Job) marketSnapshot {
	price, err := market.GetPrice(ctx, job.TokenID)
	if err != nil {
		slog.Debug("scheduler: prefetch price failed", "job_id", job.ID, "err", err)
		return marketSnapshot{job: job, err: err}
	}
	book, err := market.GetOrderBook(ctx, job.TokenID)
	if err != nil {
		slog.Debug("scheduler: prefetch book failed", "job_id", job.ID, "err", err)
		return marketSnapshot{job: job, err: err}
	}
	return marketSnapshot{job: job, price: price, book: book}
}
