package settlement_test

import (
	"context"
	"testing"
	"time"

	"github.com/nbahedge/tradeengine/internal/adapters/storage"
	"github.com/nbahedge/tradeengine/internal/application/settlement"
	"github.com/nbahedge/tradeengine/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeMarket struct {
	bidByToken map[string]float64
}

func (f *fakeMarket) GetPrice(ctx context.Context, tokenID string) (domain.LiquiditySnapshot, error) {
	return domain.LiquiditySnapshot{BestBid: f.bidByToken[tokenID]}, nil
}
func (f *fakeMarket) GetOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	return domain.OrderBook{}, nil
}
func (f *fakeMarket) PlaceLimitBuy(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	return domain.PlacedOrder{}, nil
}
func (f *fakeMarket) CancelOrder(ctx context.Context, orderID string) (bool, error) { return true, nil }
func (f *fakeMarket) GetOrder(ctx context.Context, orderID string) (domain.OrderState, error) {
	return domain.OrderState{}, nil
}
func (f *fakeMarket) CancelAndReplace(ctx context.Context, orderID, tokenID string, newPrice, newSize float64) (string, error) {
	return "", nil
}
func (f *fakeMarket) GetBalance(ctx context.Context) (float64, error) { return 0, nil }

func newTestStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSettle_WinningSignalSettles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	jobID, err := store.InsertJob(ctx, domain.Job{
		EventSlug:  "nba-bos-nyk-2026-07-29",
		TipoffUTC:  time.Now().Add(-3 * time.Hour),
		Status:     domain.JobExecuted,
		GameStatus: domain.GameFinal,
		HomeScore:  101,
		AwayScore:  98,
	})
	require.NoError(t, err)

	sigID, err := store.InsertSignal(ctx, domain.Signal{
		JobID:        jobID,
		TokenID:      "token-yes",
		VWAPToDate:   0.40,
		FilledShares: 100,
	})
	require.NoError(t, err)

	market := &fakeMarket{bidByToken: map[string]float64{"token-yes": 0.98}}
	eng := settlement.New(store, market)

	res, err := eng.Settle(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Settled)

	result, exists, err := store.GetResultBySignal(ctx, sigID)
	require.NoError(t, err)
	require.True(t, exists)
	require.True(t, result.Won)
	require.InDelta(t, 60.0, result.PnLUSD, 1e-9) // 100*1 - 100*0.40 - 0

	job, err := store.GetJob(ctx, jobID)
	require.NoError(t, err)
	require.Equal(t, domain.JobExecuted, job.Status)
}

func TestSettle_LosingSignalSettles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	jobID, err := store.InsertJob(ctx, domain.Job{
		EventSlug:  "nba-lal-gsw-2026-07-29",
		TipoffUTC:  time.Now().Add(-3 * time.Hour),
		Status:     domain.JobExecuted,
		GameStatus: domain.GameFinal,
	})
	require.NoError(t, err)

	sigID, err := store.InsertSignal(ctx, domain.Signal{
		JobID:        jobID,
		TokenID:      "token-no",
		VWAPToDate:   0.35,
		FilledShares: 100,
	})
	require.NoError(t, err)

	market := &fakeMarket{bidByToken: map[string]float64{"token-no": 0.02}}
	eng := settlement.New(store, market)

	res, err := eng.Settle(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Settled)

	result, exists, err := store.GetResultBySignal(ctx, sigID)
	require.NoError(t, err)
	require.True(t, exists)
	require.False(t, result.Won)
	require.InDelta(t, -35.0, result.PnLUSD, 1e-9)
}

func TestSettle_PostponedGameSkips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	jobID, err := store.InsertJob(ctx, domain.Job{
		EventSlug:  "nba-mia-bkn-2026-07-29",
		TipoffUTC:  time.Now(),
		Status:     domain.JobExecuted,
		GameStatus: domain.GamePostponed,
	})
	require.NoError(t, err)
	_, err = store.InsertSignal(ctx, domain.Signal{JobID: jobID, TokenID: "token-x", FilledShares: 50})
	require.NoError(t, err)

	eng := settlement.New(store, &fakeMarket{})
	res, err := eng.Settle(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Skipped)
	require.Zero(t, res.Settled)
}

func TestSettle_UnresolvedPriceStaysPending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	jobID, err := store.InsertJob(ctx, domain.Job{
		EventSlug:  "nba-chi-mil-2026-07-29",
		TipoffUTC:  time.Now().Add(-3 * time.Hour),
		Status:     domain.JobExecuted,
		GameStatus: domain.GameFinal,
	})
	require.NoError(t, err)
	sigID, err := store.InsertSignal(ctx, domain.Signal{JobID: jobID, TokenID: "token-mid", FilledShares: 50})
	require.NoError(t, err)

	market := &fakeMarket{bidByToken: map[string]float64{"token-mid": 0.50}}
	eng := settlement.New(store, market)

	res, err := eng.Settle(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Pending)
	require.Zero(t, res.Settled)

	_, exists, err := store.GetResultBySignal(ctx, sigID)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestSettle_AlreadySettledSignalSkipped(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	jobID, err := store.InsertJob(ctx, domain.Job{
		EventSlug:  "nba-phi-atl-2026-07-29",
		TipoffUTC:  time.Now().Add(-3 * time.Hour),
		Status:     domain.JobExecuted,
		GameStatus: domain.GameFinal,
	})
	require.NoError(t, err)
	sigID, err := store.InsertSignal(ctx, domain.Signal{JobID: jobID, TokenID: "token-y", VWAPToDate: 0.3, FilledShares: 10})
	require.NoError(t, err)
	_, err = store.InsertResult(ctx, domain.Result{SignalID: sigID, Won: true, PnLUSD: 7, SettlementPrice: 1})
	require.NoError(t, err)

	market := &fakeMarket{bidByToken: map[string]float64{"token-y": 0.99}}
	eng := settlement.New(store, market)

	res, err := eng.Settle(ctx)
	require.NoError(t, err)
	require.Zero(t, res.Settled, "already-settled signal should not be recounted")
}
