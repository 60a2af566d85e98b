package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nbahedge/tradeengine/internal/adapters/storage"
	"github.com/nbahedge/tradeengine/internal/application/risk"
	"github.com/nbahedge/tradeengine/internal/application/scheduler"
	"github.com/nbahedge/tradeengine/internal/application/sizing"
	"github.com/nbahedge/tradeengine/internal/domain"
	"github.com/nbahedge/tradeengine/internal/ports"
)

// fakeMarket is a hand-rolled ports.MarketClient stub keyed by token ID, in
// the same spirit as ordermanager_test.go's fakeMarket: the examples never
// pull in a mocking library, so a small canned-response struct plays the
// fake's role.
type fakeMarket struct {
	asks    map[string]float64
	bids    map[string]float64
	balance float64
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{asks: map[string]float64{}, bids: map[string]float64{}, balance: 1000}
}

func (f *fakeMarket) GetPrice(ctx context.Context, tokenID string) (domain.LiquiditySnapshot, error) {
	ask := f.asks[tokenID]
	bid := f.bids[tokenID]
	return domain.LiquiditySnapshot{BestBid: bid, BestAsk: ask, Spread: ask - bid, AskDepth5c: 500}, nil
}

func (f *fakeMarket) GetOrderBook(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	ask := f.asks[tokenID]
	bid := f.bids[tokenID]
	return domain.OrderBook{
		TokenID: tokenID,
		Bids:    []domain.BookEntry{{Price: bid, Size: 1000}},
		Asks:    []domain.BookEntry{{Price: ask, Size: 1000}},
	}, nil
}

func (f *fakeMarket) PlaceLimitBuy(ctx context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	return domain.PlacedOrder{OrderID: "live-" + req.TokenID, TakenAmount: req.Size, MadeAmount: 0}, nil
}

func (f *fakeMarket) CancelOrder(ctx context.Context, orderID string) (bool, error) { return true, nil }

func (f *fakeMarket) GetOrder(ctx context.Context, orderID string) (domain.OrderState, error) {
	return domain.OrderState{}, nil
}

func (f *fakeMarket) CancelAndReplace(ctx context.Context, orderID, tokenID string, newPrice, newSize float64) (string, error) {
	return "", nil
}

func (f *fakeMarket) GetBalance(ctx context.Context) (float64, error) { return f.balance, nil }

// fakeDiscovery returns a fixed slate of games regardless of date, mirroring
// the teacher's fixture-backed discovery stubs.
type fakeDiscovery struct {
	games []domain.GameInfo
}

func (f *fakeDiscovery) GetGames(ctx context.Context, date string) ([]domain.GameInfo, error) {
	return f.games, nil
}

// alwaysEdgeEstimator reports a fixed positive edge regardless of price, so
// dispatch tests don't need a real calibration artifact.
type alwaysEdgeEstimator struct {
	pointEstimate float64
	lowerBound    float64
}

func (e alwaysEdgeEstimator) Estimate(price float64) domain.CalibrationEstimate {
	return domain.CalibrationEstimate{PointEstimate: e.pointEstimate, LowerBound: e.lowerBound, BandLabel: "test"}
}

func newTestStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testGame(away, home string, tipoff time.Time) domain.GameInfo {
	return domain.GameInfo{
		AwayAbbr:    away,
		HomeAbbr:    home,
		TipoffUTC:   tipoff,
		Status:      domain.GameScheduled,
		ConditionID: "cond-" + away + home,
		Outcomes: []domain.Outcome{
			{TokenID: "token-" + away, Name: away},
			{TokenID: "token-" + home, Name: home},
		},
	}
}

func baseConfig(mode scheduler.Mode) scheduler.Config {
	return scheduler.Config{
		Mode:                  mode,
		WindowHours:           8,
		MaxOrdersPerTick:      10,
		BothsideEnabled:       true,
		HedgeDelay:            10 * time.Minute,
		MaxDailyPositions:     100,
		MaxDailyExposureUSD:   10000,
		MaxPerGameExposureUSD: 5000,
		MaxTotalExposureUSD:   20000,
		Sizing: sizing.Inputs{
			FractionalKelly:  0.25,
			CapitalRiskPct:   0.5, // generous, so the size tests aren't fighting the bankroll cap
			MaxPositionUSD:   500,
			LiquidityFillPct: 0.5,
			MaxSpreadPct:     0.5,
		},
		DCAMaxEntries:         1,
		MergeEnabled:          true,
		MergeMinProfitUSD:     0.10,
		MergeEstGasUSD:        0.05,
		MergeMinSharesFloor:   1,
		MergeMaxRetries:       3,
		WalletClass:           domain.WalletEOA,
		AnalysisWorkers:       2,
	}
}

func newRiskEngine(t *testing.T, store ports.Store) *risk.Engine {
	t.Helper()
	return risk.New(store, risk.Config{
		DailyLossLimitPct:   0.5,
		WeeklyLossLimitPct:  0.5,
		MaxDrawdownLimitPct: 0.5,
		DriftThresholdSigma: 3,
		ConsecLossYellow:    100,
	}, alwaysEdgeEstimator{pointEstimate: 0.7, lowerBound: 0.6}, nil)
}

// TestTickOpensAndFillsDirectionalInPaperMode exercises the full tick
// pipeline in paper mode: discovery opens a directional+hedge pair, the
// directional leg fills immediately as a simulated paper order, and the
// hedge leg stays pending (its execute-after time is HedgeDelay, 10
// minutes, after discovery, so it is not yet due this tick).
func TestTickOpensAndFillsDirectionalInPaperMode(t *testing.T) {
	store := newTestStore(t)
	market := newFakeMarket()
	market.asks["token-BOS"] = 0.40
	market.bids["token-BOS"] = 0.38
	market.asks["token-NYK"] = 0.58
	market.bids["token-NYK"] = 0.56

	now := time.Date(2026, 7, 29, 18, 0, 0, 0, time.UTC)
	tipoff := now.Add(2 * time.Hour)
	disc := &fakeDiscovery{games: []domain.GameInfo{testGame("BOS", "NYK", tipoff)}}

	cfg := baseConfig(scheduler.ModePaper)
	sched := scheduler.New(store, market, disc, nil, nil, newRiskEngine(t, store), alwaysEdgeEstimator{pointEstimate: 0.7, lowerBound: 0.6}, cfg)

	summary, err := sched.Tick(context.Background(), now, scheduler.TickOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, summary.JobsDiscovered) // directional + hedge
	require.Equal(t, 1, summary.OrdersPlaced)   // only the directional leg has anything to dispatch yet
	require.Empty(t, summary.Errors)

	dirJob, ok, err := store.GetJobByEventSlugAndSide(context.Background(), "nba-bos-nyk-2026-07-29", domain.LegDirectional)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.JobExecuted, dirJob.Status)

	sigs, err := store.ListSignalsByJob(context.Background(), dirJob.ID)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	require.Equal(t, domain.OrderPaper, sigs[0].OrderStatus)
	require.Equal(t, sigs[0].Shares, sigs[0].FilledShares)
	require.Greater(t, sigs[0].RequestedSizeUSD, 0.0)

	hedgeJob, ok, err := store.GetJobByEventSlugAndSide(context.Background(), "nba-bos-nyk-2026-07-29", domain.LegHedge)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.JobPending, hedgeJob.Status)
}

// TestTickHedgeFillsOnceDirectionalFilled runs two ticks: the first opens
// and fills the directional leg, the second hedges against that fill and
// immediately clears the merge economics so the pair gets merged the same
// tick (spec §8 scenario: bothside merge in paper mode).
func TestTickHedgeFillsOnceDirectionalFilled(t *testing.T) {
	store := newTestStore(t)
	market := newFakeMarket()
	market.asks["token-BOS"] = 0.40
	market.bids["token-BOS"] = 0.38
	market.asks["token-NYK"] = 0.55
	market.bids["token-NYK"] = 0.53

	now := time.Date(2026, 7, 29, 18, 0, 0, 0, time.UTC)
	tipoff := now.Add(4 * time.Hour)
	disc := &fakeDiscovery{games: []domain.GameInfo{testGame("BOS", "NYK", tipoff)}}

	cfg := baseConfig(scheduler.ModePaper)
	sched := scheduler.New(store, market, disc, nil, nil, newRiskEngine(t, store), alwaysEdgeEstimator{pointEstimate: 0.7, lowerBound: 0.6}, cfg)

	ctx := context.Background()
	_, err := sched.Tick(ctx, now, scheduler.TickOptions{NoSettle: true})
	require.NoError(t, err)

	second := now.Add(11 * time.Minute)
	summary, err := sched.Tick(ctx, second, scheduler.TickOptions{NoSettle: true})
	require.NoError(t, err)
	require.Equal(t, 0, summary.JobsDiscovered) // both legs already exist
	require.Equal(t, 1, summary.OrdersPlaced)   // the hedge leg fills this time

	hedgeJob, ok, err := store.GetJobByEventSlugAndSide(ctx, "nba-bos-nyk-2026-07-29", domain.LegHedge)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.JobExecuted, hedgeJob.Status)

	hedgeSigs, err := store.ListSignalsByJob(ctx, hedgeJob.ID)
	require.NoError(t, err)
	require.Len(t, hedgeSigs, 1)
	require.Equal(t, domain.OrderPaper, hedgeSigs[0].OrderStatus)

	// 0.39 (dir ask-1c) + 0.54 (hedge ask-1c) leaves < $1 combined cost per
	// share pair, clearing the configured $0.10 min-profit floor, so the
	// same tick's merge pass should have executed.
	require.Equal(t, 1, summary.MergesExecuted)
	dirJob, _, err := store.GetJobByEventSlugAndSide(ctx, "nba-bos-nyk-2026-07-29", domain.LegDirectional)
	require.NoError(t, err)
	require.Equal(t, domain.MergeSimulated, dirJob.MergeStatus)
}

// TestTickBlockedByRedRiskLevel confirms a RED circuit-breaker snapshot
// stops new directional entries from being dispatched, without touching
// discovery or merge (spec §4.4: risk never blocks discovery/merge/settle).
func TestTickBlockedByRedRiskLevel(t *testing.T) {
	store := newTestStore(t)
	market := newFakeMarket()
	market.asks["token-BOS"] = 0.40
	market.bids["token-BOS"] = 0.38
	market.asks["token-NYK"] = 0.58
	market.bids["token-NYK"] = 0.56

	now := time.Date(2026, 7, 29, 18, 0, 0, 0, time.UTC)
	disc := &fakeDiscovery{games: []domain.GameInfo{testGame("BOS", "NYK", now.Add(2 * time.Hour))}}

	ctx := context.Background()
	// Seed a RED snapshot so the risk engine's hysteresis holds it RED on
	// this tick regardless of the (empty) realized PnL history.
	_, err := store.InsertRiskSnapshot(ctx, domain.RiskSnapshot{
		Level:            domain.RiskRed,
		SizingMultiplier: 0,
		LevelEnteredAt:   now,
		BankHighWaterUSD: 1000,
	})
	require.NoError(t, err)

	cfg := baseConfig(scheduler.ModePaper)
	sched := scheduler.New(store, market, disc, nil, nil, newRiskEngine(t, store), alwaysEdgeEstimator{pointEstimate: 0.7, lowerBound: 0.6}, cfg)

	summary, err := sched.Tick(ctx, now, scheduler.TickOptions{NoSettle: true})
	require.NoError(t, err)
	require.Equal(t, 2, summary.JobsDiscovered)
	require.Equal(t, 0, summary.OrdersPlaced)
	require.Equal(t, string(domain.RiskRed), summary.RiskLevel)

	dirJob, ok, err := store.GetJobByEventSlugAndSide(ctx, "nba-bos-nyk-2026-07-29", domain.LegDirectional)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.JobPending, dirJob.Status)
}

// TestDiscoverGamesIdempotent confirms a repeated discovery pass never
// double-opens jobs for a game already on record (spec §4.6 step 0).
func TestDiscoverGamesIdempotent(t *testing.T) {
	store := newTestStore(t)
	market := newFakeMarket()
	now := time.Date(2026, 7, 29, 18, 0, 0, 0, time.UTC)
	disc := &fakeDiscovery{games: []domain.GameInfo{testGame("LAL", "GSW", now.Add(3 * time.Hour))}}

	cfg := baseConfig(scheduler.ModeDryRun)
	sched := scheduler.New(store, market, disc, nil, nil, newRiskEngine(t, store), alwaysEdgeEstimator{}, cfg)

	ctx := context.Background()
	summary1, err := sched.Tick(ctx, now, scheduler.TickOptions{NoSettle: true})
	require.NoError(t, err)
	require.Equal(t, 2, summary1.JobsDiscovered)

	summary2, err := sched.Tick(ctx, now.Add(time.Minute), scheduler.TickOptions{NoSettle: true})
	require.NoError(t, err)
	require.Equal(t, 0, summary2.JobsDiscovered)
}

// TestTickDCAFollowOnEntryOnDip confirms a directional job configured for
// multiple DCA entries opens a second follow-on entry once enough time has
// passed and the price has dipped past the configured threshold (spec
// §4.2 target-holding DCA).
func TestTickDCAFollowOnEntryOnDip(t *testing.T) {
	store := newTestStore(t)
	market := newFakeMarket()
	market.asks["token-CHI"] = 0.40
	market.bids["token-CHI"] = 0.38

	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	disc := &fakeDiscovery{games: []domain.GameInfo{testGame("CHI", "MIL", now.Add(6 * time.Hour))}}

	cfg := baseConfig(scheduler.ModePaper)
	cfg.BothsideEnabled = false
	cfg.DCAMaxEntries = 3
	cfg.DCAMinInterval = 5 * time.Minute
	cfg.DCAMaxPriceSpread = 0.5
	cfg.DCAMinPriceDipPct = 0.02
	cfg.DCAMinOrderUSD = 1
	cfg.DCACutoffBeforeTipoff = 10 * time.Minute
	sched := scheduler.New(store, market, disc, nil, nil, newRiskEngine(t, store), alwaysEdgeEstimator{pointEstimate: 0.7, lowerBound: 0.6}, cfg)

	ctx := context.Background()
	summary1, err := sched.Tick(ctx, now, scheduler.TickOptions{NoSettle: true})
	require.NoError(t, err)
	require.Equal(t, 1, summary1.OrdersPlaced)

	dirJob, ok, err := store.GetJobByEventSlugAndSide(ctx, "nba-chi-mil-2026-07-29", domain.LegDirectional)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.JobDCAActive, dirJob.Status)
	require.Equal(t, 1, dirJob.DCAEntriesDone)

	// Price dips 5% and enough time has passed for the next entry.
	market.asks["token-CHI"] = 0.38
	market.bids["token-CHI"] = 0.36
	second := now.Add(6 * time.Minute)
	summary2, err := sched.Tick(ctx, second, scheduler.TickOptions{NoSettle: true})
	require.NoError(t, err)
	require.Equal(t, 1, summary2.OrdersPlaced)

	dirJob, ok, err = store.GetJobByEventSlugAndSide(ctx, "nba-chi-mil-2026-07-29", domain.LegDirectional)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, dirJob.DCAEntriesDone)

	sigs, err := store.ListSignalsByJob(ctx, dirJob.ID)
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	for _, sig := range sigs {
		require.Equal(t, domain.OrderPaper, sig.OrderStatus)
	}
}

// TestTickDryRunNeverPlacesLiveOrder confirms dry-run mode behaves exactly
// like paper mode for placement (both simulate a fill; spec §6 --mode
// dry-run is paper's quiet sibling, no notifier chatter).
func TestTickDryRunNeverPlacesLiveOrder(t *testing.T) {
	store := newTestStore(t)
	market := newFakeMarket()
	market.asks["token-MIA"] = 0.30
	market.bids["token-MIA"] = 0.28
	market.asks["token-DEN"] = 0.68
	market.bids["token-DEN"] = 0.66

	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	disc := &fakeDiscovery{games: []domain.GameInfo{testGame("MIA", "DEN", now.Add(5 * time.Hour))}}

	cfg := baseConfig(scheduler.ModeDryRun)
	cfg.BothsideEnabled = false
	sched := scheduler.New(store, market, disc, nil, nil, newRiskEngine(t, store), alwaysEdgeEstimator{pointEstimate: 0.7, lowerBound: 0.6}, cfg)

	summary, err := sched.Tick(context.Background(), now, scheduler.TickOptions{NoSettle: true})
	require.NoError(t, err)
	require.Equal(t, 1, summary.OrdersPlaced)

	dirJob, ok, err := store.GetJobByEventSlugAndSide(context.Background(), "nba-mia-den-2026-07-29", domain.LegDirectional)
	require.NoError(t, err)
	require.True(t, ok)
	sigs, err := store.ListSignalsByJob(context.Background(), dirJob.ID)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	require.Equal(t, domain.OrderPaper, sigs[0].OrderStatus)
	require.NotContains(t, sigs[0].ClobOrderID, "live-")
}

// TestTickNoEdgeSkipsJob confirms a calibration curve reporting no edge
// skips the job rather than placing, and leaves it in a terminal skipped
// state instead of retrying every tick.
func TestTickNoEdgeSkipsJob(t *testing.T) {
	store := newTestStore(t)
	market := newFakeMarket()
	market.asks["token-PHX"] = 0.50
	market.bids["token-PHX"] = 0.48
	market.asks["token-SAC"] = 0.48
	market.bids["token-SAC"] = 0.46

	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	disc := &fakeDiscovery{games: []domain.GameInfo{testGame("PHX", "SAC", now.Add(5 * time.Hour))}}

	cfg := baseConfig(scheduler.ModePaper)
	cfg.BothsideEnabled = false
	sched := scheduler.New(store, market, disc, nil, nil, newRiskEngine(t, store), alwaysEdgeEstimator{pointEstimate: 0.4, lowerBound: 0}, cfg)

	summary, err := sched.Tick(context.Background(), now, scheduler.TickOptions{NoSettle: true})
	require.NoError(t, err)
	require.Equal(t, 0, summary.OrdersPlaced)

	dirJob, ok, err := store.GetJobByEventSlugAndSide(context.Background(), "nba-phx-sac-2026-07-29", domain.LegDirectional)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.JobSkipped, dirJob.Status)
}
