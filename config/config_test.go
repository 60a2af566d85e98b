package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nbahedge/tradeengine/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFillsDefaultsForUnsetFields(t *testing.T) {
	path := writeConfig(t, "sizing:\n  fractional_kelly: 0.5\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, 0.5, cfg.Sizing.FractionalKelly) // explicit value preserved
	require.Equal(t, 100.0, cfg.Sizing.MaxPositionUSD) // default filled in
	require.Equal(t, 1000.0, cfg.Sizing.PaperBankrollUSD)
	require.Equal(t, 8, cfg.Schedule.WindowHours)
	require.Equal(t, 5, cfg.DCA.MaxEntries)
	require.Equal(t, 0.03, cfg.Risk.DailyLossLimitPct)
	require.Equal(t, "eoa_wallet", cfg.Merge.WalletClass)
	require.Equal(t, "https://clob.polymarket.com", cfg.API.CLOBBase)
	require.Equal(t, "tradeengine.db", cfg.Storage.DSN)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoadPreservesExplicitZeroOverridingValues(t *testing.T) {
	// bothside_enabled: false is a meaningful zero value (bool), not a
	// "missing" field the defaulting pass should touch.
	path := writeConfig(t, "schedule:\n  bothside_enabled: false\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.False(t, cfg.Schedule.BothsideEnabled)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestLoadEnvOverridesApplyAfterYAML(t *testing.T) {
	path := writeConfig(t, "api:\n  clob_base: https://example.test\n")
	t.Setenv("CLOB_BASE", "https://overridden.test")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://overridden.test", cfg.API.CLOBBase)
}

func TestDerivedDurations(t *testing.T) {
	path := writeConfig(t, "order:\n  order_ttl_min: 7\n  rate_limit_sleep_ms: 250\nschedule:\n  hedge_delay_min: 15\n  watchdog_stale_min: 40\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "7m0s", cfg.OrderTTL().String())
	require.Equal(t, "250ms", cfg.RateLimitSleep().String())
	require.Equal(t, "15m0s", cfg.HedgeDelay().String())
	require.Equal(t, "40m0s", cfg.WatchdogStale().String())
}
