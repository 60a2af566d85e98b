// Command tradeengine is the CLI surface of spec §6: a single `tick`
// invocation (the default action) driven by an external heartbeat, plus
// the order-manager and watchdog passes as separate flag-selected actions
// since they run on their own, faster cadences (spec §5). Grounded on the
// teacher's cmd/scanner/main.go flag-parse-then-dispatch wiring: one flag
// set, one config load, one set of adapters constructed up front, and a
// run* function per mode rather than a subcommand framework (no cobra
// anywhere in the pack).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nbahedge/tradeengine/config"
	"github.com/nbahedge/tradeengine/internal/adapters/market"
	"github.com/nbahedge/tradeengine/internal/adapters/notify"
	"github.com/nbahedge/tradeengine/internal/adapters/onchain"
	"github.com/nbahedge/tradeengine/internal/adapters/storage"
	"github.com/nbahedge/tradeengine/internal/application/calibration"
	"github.com/nbahedge/tradeengine/internal/application/ordermanager"
	"github.com/nbahedge/tradeengine/internal/application/risk"
	"github.com/nbahedge/tradeengine/internal/application/scheduler"
	"github.com/nbahedge/tradeengine/internal/application/sizing"
	"github.com/nbahedge/tradeengine/internal/domain"
	"github.com/nbahedge/tradeengine/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	mode := flag.String("mode", "dry-run", "trading mode: dry-run|paper|live")
	date := flag.String("date", "", "override discovery date (YYYY-MM-DD), default: today+window")
	noSettle := flag.Bool("no-settle", false, "skip the settlement pass this tick")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print the full tick-summary table instead of one compact line")
	orderManager := flag.Bool("order-manager", false, "run the order-manager heartbeat instead of a scheduler tick")
	watchdog := flag.Bool("watchdog", false, "check the scheduler lock's heartbeat staleness and exit")
	status := flag.Bool("status", false, "print the latest risk snapshot and exit")
	ackRed := flag.Bool("ack-red", false, "acknowledge a RED circuit-breaker level, enabling the RED->ORANGE hysteresis window")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	tradeMode := scheduler.Mode(*mode)
	switch tradeMode {
	case scheduler.ModeDryRun, scheduler.ModePaper, scheduler.ModeLive:
	default:
		slog.Error("invalid --mode", "mode", *mode)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *watchdog {
		runWatchdog(cfg)
		return
	}

	if *status {
		runStatus(ctx, store)
		return
	}

	lockName := "tick"
	if *orderManager {
		lockName = "order-manager"
	}
	ran, err := scheduler.WithLock(cfg.Schedule.LockDir, lockName, func() error {
		if *orderManager {
			return runOrderManager(ctx, cfg, store, tradeMode)
		}
		return runTick(ctx, cfg, store, tradeMode, *date, *noSettle, *table, *ackRed)
	})
	if err != nil {
		slog.Error("run failed", "err", err)
		os.Exit(1)
	}
	if !ran {
		slog.Warn("another instance already holds the lock, skipping this invocation", "lock", lockName)
	}
}

// runTick builds the scheduler's full collaborator set and runs one tick
// (spec §2's per-tick data flow). Every invocation is expected to run in
// seconds to low minutes and then exit (spec §5: there is no long-lived
// daemon).
func runTick(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, mode scheduler.Mode, date string, noSettle, table, ackRed bool) error {
	marketClient, discovery, merger, err := buildMarketCollaborators(cfg, mode)
	if err != nil {
		return fmt.Errorf("runTick: build market collaborators: %w", err)
	}

	curve, err := calibration.Load(cfg.Sizing.CalibArtifactPath, cfg.Sizing.CalibConfidence)
	if err != nil {
		return fmt.Errorf("runTick: load calibration curve: %w", err)
	}

	ackFn := func(ctx context.Context) (bool, time.Time) { return false, time.Time{} }
	if ackRed {
		now := time.Now().UTC()
		ackFn = func(ctx context.Context) (bool, time.Time) { return true, now }
	}
	riskEngine := risk.New(store, risk.Config{
		DailyLossLimitPct:     cfg.Risk.DailyLossLimitPct,
		WeeklyLossLimitPct:    cfg.Risk.WeeklyLossLimitPct,
		MaxDrawdownLimitPct:   cfg.Risk.MaxDrawdownLimitPct,
		DriftThresholdSigma:   cfg.Risk.DriftThresholdSigma,
		ConsecLossYellow:      cfg.Risk.ConsecLossYellow,
		RedCooldown:           durationHours(cfg.Risk.RedCooldownHours),
		OrangeToYellow:        durationHours(cfg.Risk.OrangeToYellowHours),
		OrangeToYellowWinRate: cfg.Risk.OrangeToYellowWinRate,
		YellowToGreenDays:     cfg.Risk.YellowToGreenDays,
		OrangeAllowsDCA:       cfg.Risk.OrangeAllowsDCA,
	}, curve, ackFn)

	notifier := notify.NewConsole(table)

	walletClass := domain.WalletEOA
	if cfg.Merge.WalletClass == string(domain.WalletProxy) {
		walletClass = domain.WalletProxy
	}

	sched := scheduler.New(store, marketClient, discovery, merger, notifier, riskEngine, curve, scheduler.Config{
		Mode:             mode,
		WindowHours:      cfg.Schedule.WindowHours,
		MaxOrdersPerTick: cfg.Schedule.MaxOrdersPerTick,
		BothsideEnabled:  cfg.Schedule.BothsideEnabled,
		HedgeDelay:       cfg.HedgeDelay(),
		MaxRetries:       cfg.Schedule.MaxRetries,

		MaxDailyPositions:     cfg.Schedule.MaxDailyPositions,
		MaxDailyExposureUSD:   cfg.Schedule.MaxDailyExposureUSD,
		MaxPerGameExposureUSD: cfg.Schedule.MaxPerGameExposureUSD,
		MaxTotalExposureUSD:   cfg.Schedule.MaxTotalExposureUSD,

		Sizing: sizing.Inputs{
			FractionalKelly:  cfg.Sizing.FractionalKelly,
			CapitalRiskPct:   cfg.Sizing.CapitalRiskPct,
			MaxPositionUSD:   cfg.Sizing.MaxPositionUSD,
			LiquidityFillPct: cfg.Sizing.LiquidityFillPct,
			MaxSpreadPct:     cfg.Sizing.MaxSpreadPct,
		},

		DCAMaxEntries:         cfg.DCA.MaxEntries,
		DCAMinInterval:        durationMinutes(cfg.DCA.MinIntervalMin),
		DCAMaxPriceSpread:     cfg.DCA.MaxPriceSpread,
		DCAMinPriceDipPct:     cfg.DCA.MinPriceDipPct,
		DCACapMult:            cfg.DCA.CapMult,
		DCAMinOrderUSD:        cfg.DCA.MinOrderUSD,
		DCACutoffBeforeTipoff: durationMinutes(cfg.DCA.CutoffBeforeTipoffMin),

		OrangeAllowsDCA: cfg.Risk.OrangeAllowsDCA,

		MergeEnabled:        cfg.Merge.Enabled,
		MergeMinProfitUSD:   cfg.Merge.MinProfitUSD,
		MergeEstGasUSD:      cfg.Merge.EstGasUSD,
		MergeMinSharesFloor: cfg.Merge.MinSharesFloor,
		MergeMaxRetries:     cfg.Merge.MaxRetries,
		WalletClass:         walletClass,

		LockDir: cfg.Schedule.LockDir,
	})

	summary, err := sched.Tick(ctx, time.Now().UTC(), scheduler.TickOptions{Date: date, NoSettle: noSettle})
	if err != nil {
		return fmt.Errorf("scheduler tick: %w", err)
	}
	slog.Info("tick complete",
		"mode", summary.Mode,
		"discovered", summary.JobsDiscovered,
		"dispatched", summary.JobsDispatched,
		"orders", summary.OrdersPlaced,
		"merges", summary.MergesExecuted,
		"settled", summary.SignalsSettled,
		"risk", summary.RiskLevel,
		"errors", len(summary.Errors),
	)
	return nil
}

// runOrderManager runs one pass of the TTL/cancel-reprice loop (spec §4.5).
// It is invoked on its own, faster cadence (~2 min) and only does anything
// in live mode — paper/dry-run signals are never left resting against a
// real book (spec §4.5: "live mode only").
func runOrderManager(ctx context.Context, cfg *config.Config, store *storage.SQLiteStorage, mode scheduler.Mode) error {
	if mode != scheduler.ModeLive {
		slog.Info("order-manager: not live mode, nothing to do", "mode", mode)
		return nil
	}

	marketClient, _, _, err := buildMarketCollaborators(cfg, mode)
	if err != nil {
		return fmt.Errorf("runOrderManager: build market collaborators: %w", err)
	}

	minMargin := domain.MinMarginFloor(cfg.Merge.MinProfitUSD, cfg.Merge.EstGasUSD, 1, cfg.Merge.MinSharesFloor)
	mgr := ordermanager.New(store, marketClient, ordermanager.Config{
		TTL:            cfg.OrderTTL(),
		MaxReplaces:    cfg.Order.MaxReplaces,
		CheckBatchSize: cfg.Order.CheckBatchSize,
		RateLimitSleep: cfg.RateLimitSleep(),
		MinMarginFloor: minMargin,
	})

	res, err := mgr.Tick(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("order manager tick: %w", err)
	}
	slog.Info("order-manager tick complete",
		"checked", res.Checked,
		"filled", res.Filled,
		"replaced", res.Replaced,
		"expired", res.Expired,
	)
	return nil
}

// runWatchdog reads the scheduler lock directory's mtime and warns if the
// last tick has gone stale (spec §5: a 35-minute staleness threshold
// detects a wedged process, not a merely slow one). It never touches the
// store and always exits 0 — the watchdog is an alerting signal, not a
// recovery mechanism.
func runWatchdog(cfg *config.Config) {
	age, held, err := scheduler.StaleSince(cfg.Schedule.LockDir, "tick", time.Now().UTC())
	if err != nil {
		slog.Error("watchdog: stat lock failed", "err", err)
		return
	}
	if !held {
		slog.Info("watchdog: no tick lock currently held")
		return
	}
	if age > cfg.WatchdogStale() {
		slog.Error("watchdog: tick heartbeat is stale", "age", age, "threshold", cfg.WatchdogStale())
		return
	}
	slog.Info("watchdog: tick heartbeat healthy", "age", age)
}

// runStatus prints the most recent risk snapshot — a manual inspection
// command outside the core per spec §6.
func runStatus(ctx context.Context, store *storage.SQLiteStorage) {
	snap, ok, err := store.LatestRiskSnapshot(ctx)
	if err != nil {
		slog.Error("status: read risk snapshot failed", "err", err)
		return
	}
	if !ok {
		fmt.Println("no risk snapshot recorded yet")
		return
	}
	fmt.Printf("risk level:        %s\n", snap.Level)
	fmt.Printf("sizing multiplier: %.2f\n", snap.SizingMultiplier)
	fmt.Printf("daily pnl:         %.2f\n", snap.DailyPnL)
	fmt.Printf("weekly pnl:        %.2f\n", snap.WeeklyPnL)
	fmt.Printf("consecutive losses:%d\n", snap.ConsecLosses)
	fmt.Printf("max drawdown pct:  %.4f\n", snap.MaxDrawdownPct)
	fmt.Printf("drift z max:       %.3f\n", snap.DriftZMax)
	fmt.Printf("degraded mode:     %v\n", snap.DegradedMode)
	fmt.Printf("as of:             %s\n", snap.Timestamp.Format(time.RFC3339))
}

// buildMarketCollaborators wires the CLOB/Gamma HTTP client and the
// configured merge-executor wallet class. In dry-run/paper mode the
// read-only PaperClient satisfies ports.MarketClient for
// every call the scheduler needs (PlaceLimitBuy is only ever reached from
// ModeLive — see placement.go), so no private key or RPC dial is required
// outside live mode.
func buildMarketCollaborators(cfg *config.Config, mode scheduler.Mode) (ports.MarketClient, ports.GameDiscovery, ports.MergeExecutor, error) {
	discovery := market.NewDiscovery(cfg.API.GammaBase)

	if mode != scheduler.ModeLive {
		return market.NewPaperClient(cfg.API.CLOBBase, cfg.Sizing.PaperBankrollUSD), discovery, nil, nil
	}

	privateKey := os.Getenv("PRIVATE_KEY")
	if privateKey == "" {
		return nil, nil, nil, fmt.Errorf("buildMarketCollaborators: PRIVATE_KEY is required in live mode")
	}
	auth, err := market.NewAuthClient(cfg.API.CLOBBase, privateKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build auth client: %w", err)
	}
	trading, err := market.NewTradingClient(auth, cfg.API.RPCURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build trading client: %w", err)
	}

	var merger ports.MergeExecutor
	switch cfg.Merge.WalletClass {
	case string(domain.WalletProxy):
		proxyAddr := os.Getenv("PROXY_ADDRESS")
		if proxyAddr == "" {
			return nil, nil, nil, fmt.Errorf("buildMarketCollaborators: PROXY_ADDRESS is required for wallet_class=proxy_wallet")
		}
		merger, err = onchain.NewProxyExecutor(cfg.API.RPCURL, privateKey, proxyAddr)
	default:
		merger, err = onchain.NewEOAExecutor(cfg.API.RPCURL, privateKey)
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build merge executor: %w", err)
	}

	return trading, discovery, merger, nil
}

func durationHours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

func durationMinutes(m int) time.Duration {
	return time.Duration(m) * time.Minute
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
