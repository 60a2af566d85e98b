package ordermanager_test

import (
	"context"
	"testing"
	"time"

	"github.com/nbahedge/tradeengine/internal/adapters/storage"
	"github.com/nbahedge/tradeengine/internal/application/ordermanager"
	"github.com/nbahedge/tradeengine/internal/domain"
	"github.com/stretchr/testify/require"
)

// fakeMarket is a hand-rolled ports.MarketClient stub: the examples never
// pull in a mocking library, so a small struct of canned responses plays
// the same role the teacher's in-package test fakes do.
type fakeMarket struct {
	orderState      domain.OrderState
	bestAsk         float64
	cancelAndReplaceID string
	cancelCalled    bool
}

func (f *fakeMarket) GetPrice(ctx context.Context, tokenID string) (domain.LiquiditySnapshot, error) {
	return domain.LiquiditySnapshot{BestAsk: f.bestAsk, BestBid: f.bestAsk - 0.02}, nil
}
func (f *fakeMarket) GetOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	return domain.OrderBook{}, nil
}
func (f *fakeMarket) PlaceLimitBuy(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	return domain.PlacedOrder{}, nil
}
func (f *fakeMarket) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	f.cancelCalled = true
	return true, nil
}
func (f *fakeMarket) GetOrder(ctx context.Context, orderID string) (domain.OrderState, error) {
	return f.orderState, nil
}
func (f *fakeMarket) CancelAndReplace(ctx context.Context, orderID, tokenID string, newPrice, newSize float64) (string, error) {
	f.cancelCalled = true
	return f.cancelAndReplaceID, nil
}
func (f *fakeMarket) GetBalance(ctx context.Context) (float64, error) { return 0, nil }

func newTestStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedJobAndSignal(t *testing.T, store *storage.SQLiteStorage, placedAt, executeBefore time.Time) domain.Signal {
	t.Helper()
	ctx := context.Background()

	jobID, err := store.InsertJob(ctx, domain.Job{
		EventSlug:     "nba-bos-nyk-2026-07-29",
		TipoffUTC:     executeBefore,
		ExecuteAfter:  placedAt.Add(-time.Hour),
		ExecuteBefore: executeBefore,
		LegSide:       domain.LegDirectional,
		Status:        domain.JobExecuting,
	})
	require.NoError(t, err)

	sigID, err := store.InsertSignal(ctx, domain.Signal{
		JobID:            jobID,
		TokenID:          "token-1",
		LimitPrice:       0.40,
		RequestedSizeUSD: 50,
		Shares:           125,
		OrderStatus:      domain.OrderPlaced,
		OrderPlacedAt:    placedAt,
		ClobOrderID:      "clob-1",
		SignalRole:       domain.RoleDirectional,
	})
	require.NoError(t, err)

	sig, err := store.GetSignal(ctx, sigID)
	require.NoError(t, err)
	return sig
}

func cfg() ordermanager.Config {
	return ordermanager.Config{
		TTL:            5 * time.Minute,
		MaxReplaces:    3,
		CheckBatchSize: 10,
		RateLimitSleep: time.Millisecond,
		MinMarginFloor: 0.03,
	}
}

func TestTick_FillDetectedAdvancesStatus(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	seedJobAndSignal(t, store, now.Add(-time.Minute), now.Add(time.Hour))

	market := &fakeMarket{orderState: domain.OrderState{Status: "filled", FilledShares: 125, AvgPrice: 0.40}}
	mgr := ordermanager.New(store, market, cfg())

	res, err := mgr.Tick(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, res.Filled)

	sigs, err := store.ListOpenSignals(context.Background())
	require.NoError(t, err)
	require.Empty(t, sigs, "filled signal should no longer appear among open signals")
}

func TestTick_WithinTTLTakesNoAction(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	seedJobAndSignal(t, store, now.Add(-time.Minute), now.Add(time.Hour))

	market := &fakeMarket{orderState: domain.OrderState{Status: "placed"}}
	mgr := ordermanager.New(store, market, cfg())

	res, err := mgr.Tick(context.Background(), now)
	require.NoError(t, err)
	require.Zero(t, res.Replaced)
	require.Zero(t, res.Expired)
	require.False(t, market.cancelCalled)
}

func TestTick_PastTTLReprices(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	seedJobAndSignal(t, store, now.Add(-6*time.Minute), now.Add(time.Hour))

	market := &fakeMarket{
		orderState:         domain.OrderState{Status: "placed"},
		bestAsk:            0.43,
		cancelAndReplaceID: "clob-2",
	}
	mgr := ordermanager.New(store, market, cfg())

	res, err := mgr.Tick(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, res.Replaced)

	sigs, err := store.ListOpenSignals(context.Background())
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	require.InDelta(t, 0.42, sigs[0].Signal.LimitPrice, 1e-9)
	require.Equal(t, 1, sigs[0].Signal.OrderReplaceCount)
	require.Equal(t, "clob-2", sigs[0].Signal.ClobOrderID)
}

func TestTick_MaxReplacesExpires(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	sig := seedJobAndSignal(t, store, now.Add(-6*time.Minute), now.Add(time.Hour))
	sig.OrderReplaceCount = 3
	require.NoError(t, store.UpdateSignal(context.Background(), sig))

	market := &fakeMarket{orderState: domain.OrderState{Status: "placed"}, bestAsk: 0.43}
	mgr := ordermanager.New(store, market, cfg())

	res, err := mgr.Tick(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, res.Expired)
	require.True(t, market.cancelCalled)
}

func TestTick_PastTipoffExpiresEvenWithinReplaceBudget(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	seedJobAndSignal(t, store, now.Add(-6*time.Minute), now.Add(-time.Minute))

	market := &fakeMarket{orderState: domain.OrderState{Status: "placed"}, bestAsk: 0.43}
	mgr := ordermanager.New(store, market, cfg())

	res, err := mgr.Tick(context.Background(), now)
	require.NoError(t, err)
	require.Equal(t, 1, res.Expired)
}
