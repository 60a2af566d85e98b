// Package ordermanager implements the TTL-based cancel-and-reprice loop for
// resting maker limit orders (spec §4.5). Grounded on the teacher's
// live/orders.go syncOrderState (poll the market, diff filled size against
// the local row, advance order_status, append a fill event) and
// live/rotation.go rotateStaleOrders (age-based cancel, pair-aware: never
// cancel a leg whose counterpart already has fills) — generalized from the
// teacher's YES/NO pair rotation (age threshold only) into the spec's
// single-signal TTL/replace-count loop with an explicit reprice step the
// teacher never performs (the teacher only ever cancels stale orders, it
// never replaces them at a new price).
package ordermanager

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/nbahedge/tradeengine/internal/domain"
	"github.com/nbahedge/tradeengine/internal/ports"
)

// Config mirrors config.OrderConfig plus the merge margin floor the hedge
// leg's reprice re-check needs (spec §4.5 step 4).
type Config struct {
	TTL            time.Duration
	MaxReplaces    int
	CheckBatchSize int
	RateLimitSleep time.Duration
	MinMarginFloor float64
}

// Manager runs one pass of the order-lifecycle loop per Tick call. It holds
// no state between ticks beyond the rate limiter — order state itself lives
// entirely in the store (spec §9).
type Manager struct {
	store   ports.Store
	market  ports.MarketClient
	cfg     Config
	limiter *rate.Limiter
}

// New builds an order Manager whose call pacing comes from cfg's
// configured rate-limit sleep.
func New(store ports.Store, market ports.MarketClient, cfg Config) *Manager {
	if cfg.CheckBatchSize <= 0 {
		cfg.CheckBatchSize = 10
	}
	if cfg.RateLimitSleep <= 0 {
		cfg.RateLimitSleep = 500 * time.Millisecond
	}
	return &Manager{
		store:   store,
		market:  market,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.RateLimitSleep), 1),
	}
}

// Result summarizes one Tick's outcome for logging/reporting.
type Result struct {
	Checked   int
	Filled    int
	Replaced  int
	Expired   int
	Cancelled int
}

// Tick processes up to CheckBatchSize open signals: poll fill state, then
// either keep, expire, or reprice each one (spec §4.5).
func (m *Manager) Tick(ctx context.Context, now time.Time) (Result, error) {
	var res Result

	items, err := m.store.ListOpenSignals(ctx)
	if err != nil {
		return res, fmt.Errorf("ordermanager.Tick: list open signals: %w", err)
	}

	for i, item := range items {
		if i >= m.cfg.CheckBatchSize {
			break
		}
		if err := m.limiter.Wait(ctx); err != nil {
			return res, fmt.Errorf("ordermanager.Tick: rate limiter: %w", err)
		}

		res.Checked++
		action, err := m.processOne(ctx, item, now)
		if err != nil {
			slog.Warn("ordermanager: process signal failed", "signal_id", item.Signal.ID, "err", err)
			continue
		}
		switch action {
		case actionFilled:
			res.Filled++
		case actionReplaced:
			res.Replaced++
		case actionExpired:
			res.Expired++
		case actionCancelled:
			res.Cancelled++
		}
	}

	return res, nil
}

type action int

const (
	actionNone action = iota
	actionFilled
	actionReplaced
	actionExpired
	actionCancelled
)

func (m *Manager) processOne(ctx context.Context, item ports.OrderManagerItem, now time.Time) (action, error) {
	sig := item.Signal

	// Step 1: poll fill state.
	state, err := m.market.GetOrder(ctx, sig.ClobOrderID)
	if err != nil {
		return actionNone, fmt.Errorf("get order %s: %w", sig.ClobOrderID, err)
	}

	if state.FilledShares > sig.FilledShares {
		return m.recordFill(ctx, sig, state)
	}

	// Step 2: within TTL, no action.
	if now.Sub(sig.OrderPlacedAt) < m.cfg.TTL {
		return actionNone, nil
	}

	// Step 3: replace budget exhausted or tipoff reached — expire.
	if sig.OrderReplaceCount >= m.cfg.MaxReplaces || now.After(item.ExecuteBefore) || now.Equal(item.ExecuteBefore) {
		return m.expire(ctx, sig)
	}

	// Step 4: reprice.
	return m.reprice(ctx, sig)
}

func (m *Manager) recordFill(ctx context.Context, sig domain.Signal, state domain.OrderState) (action, error) {
	newStatus := domain.OrderPartiallyFilled
	if state.FilledShares >= sig.Shares*0.999 {
		newStatus = domain.OrderFilled
	}
	if !sig.OrderStatus.CanAdvanceTo(newStatus) {
		return actionNone, nil
	}

	sig.FilledShares = state.FilledShares
	sig.VWAPToDate = state.AvgPrice
	sig.FeeRateBPS = state.FeeRateBPS
	sig.FeeUSD = state.FeeUSD
	sig.OrderStatus = newStatus
	sig.UpdatedAt = time.Now().UTC()

	if err := m.store.UpdateSignal(ctx, sig); err != nil {
		return actionNone, fmt.Errorf("update signal on fill: %w", err)
	}

	evType := domain.EventPartiallyFilled
	if newStatus == domain.OrderFilled {
		evType = domain.EventFilled
	}
	if err := m.store.AppendOrderEvent(ctx, domain.OrderEvent{
		SignalID:  sig.ID,
		EventType: evType,
		NewPrice:  sig.LimitPrice,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		slog.Warn("ordermanager: append fill event failed", "signal_id", sig.ID, "err", err)
	}

	return actionFilled, nil
}

func (m *Manager) expire(ctx context.Context, sig domain.Signal) (action, error) {
	if _, err := m.market.CancelOrder(ctx, sig.ClobOrderID); err != nil {
		slog.Warn("ordermanager: cancel on expire failed", "signal_id", sig.ID, "err", err)
	}

	if !sig.OrderStatus.CanAdvanceTo(domain.OrderExpired) {
		return actionNone, nil
	}
	sig.OrderStatus = domain.OrderExpired
	sig.UpdatedAt = time.Now().UTC()
	if err := m.store.UpdateSignal(ctx, sig); err != nil {
		return actionNone, fmt.Errorf("update signal on expire: %w", err)
	}
	if err := m.store.AppendOrderEvent(ctx, domain.OrderEvent{
		SignalID:  sig.ID,
		EventType: domain.EventExpired,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		slog.Warn("ordermanager: append expire event failed", "signal_id", sig.ID, "err", err)
	}
	return actionExpired, nil
}

func (m *Manager) reprice(ctx context.Context, sig domain.Signal) (action, error) {
	liquidity, err := m.market.GetPrice(ctx, sig.TokenID)
	if err != nil {
		return actionNone, fmt.Errorf("get price: %w", err)
	}
	newLimit := liquidity.BestAsk - 0.01
	if newLimit <= 0 {
		return actionNone, nil
	}

	if sig.SignalRole == domain.RoleHedge {
		ok, err := m.hedgeMarginHolds(ctx, sig, newLimit)
		if err != nil {
			return actionNone, fmt.Errorf("hedge margin check: %w", err)
		}
		if !ok {
			// Economics no longer support a hedge at this price; leave the
			// order resting rather than force a worse fill.
			return actionNone, nil
		}
	}

	newOrderID, err := m.market.CancelAndReplace(ctx, sig.ClobOrderID, sig.TokenID, newLimit, sig.RequestedSizeUSD)
	if err != nil {
		return actionNone, fmt.Errorf("cancel and replace: %w", err)
	}

	oldPrice := sig.LimitPrice
	sig.ClobOrderID = newOrderID
	sig.LimitPrice = newLimit
	sig.OrderPlacedAt = time.Now().UTC()
	sig.OrderReplaceCount++
	sig.UpdatedAt = time.Now().UTC()

	if err := m.store.UpdateSignal(ctx, sig); err != nil {
		return actionNone, fmt.Errorf("update signal on reprice: %w", err)
	}
	if err := m.store.AppendOrderEvent(ctx, domain.OrderEvent{
		SignalID:  sig.ID,
		EventType: domain.EventReplaced,
		OldPrice:  oldPrice,
		NewPrice:  newLimit,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		slog.Warn("ordermanager: append replace event failed", "signal_id", sig.ID, "err", err)
	}

	return actionReplaced, nil
}

// hedgeMarginHolds re-checks the merge economics a hedge reprice would
// disturb (spec §4.5 step 4): dir_vwap + new_limit <= 1 - min_margin. The
// directional leg is found via the shared job's bothside group.
func (m *Manager) hedgeMarginHolds(ctx context.Context, hedge domain.Signal, newLimit float64) (bool, error) {
	job, err := m.store.GetJob(ctx, hedge.JobID)
	if err != nil {
		return false, fmt.Errorf("get hedge job: %w", err)
	}
	if job.BothsideGroupID == "" {
		return true, nil
	}

	pairJobs, err := m.store.ListJobsByBothsideGroup(ctx, job.BothsideGroupID)
	if err != nil {
		return false, fmt.Errorf("list bothside group: %w", err)
	}

	var dirVWAP float64
	for _, pj := range pairJobs {
		if pj.LegSide == job.LegSide {
			continue
		}
		sigs, err := m.store.ListSignalsByJob(ctx, pj.ID)
		if err != nil {
			return false, fmt.Errorf("list directional signals: %w", err)
		}
		var fills []domain.PricePoint
		for _, s := range sigs {
			if s.FilledShares > 0 {
				fills = append(fills, domain.PricePoint{Price: s.VWAPToDate, Shares: s.FilledShares})
			}
		}
		dirVWAP = domain.VWAP(fills)
	}

	return dirVWAP+newLimit <= 1-m.cfg.MinMarginFloor, nil
}
