package risk_test

import (
	"context"
	"testing"
	"time"

	"github.com/nbahedge/tradeengine/internal/adapters/storage"
	"github.com/nbahedge/tradeengine/internal/application/risk"
	"github.com/nbahedge/tradeengine/internal/domain"
	"github.com/stretchr/testify/require"
)

func testConfig() risk.Config {
	return risk.Config{
		DailyLossLimitPct:     0.03,
		WeeklyLossLimitPct:    0.05,
		MaxDrawdownLimitPct:   0.15,
		DriftThresholdSigma:   2.0,
		ConsecLossYellow:      5,
		RedCooldown:           72 * time.Hour,
		OrangeToYellow:        24 * time.Hour,
		OrangeToYellowWinRate: 0.60,
		YellowToGreenDays:     3,
		DriftMinSample:        20,
	}
}

func TestRawLevel_Priority(t *testing.T) {
	cfg := testConfig()

	// RED takes priority over everything else.
	require.Equal(t, domain.RiskRed, risk.RawLevel(risk.Inputs{WeeklyPnLPct: -0.06}, cfg))
	require.Equal(t, domain.RiskRed, risk.RawLevel(risk.Inputs{DrawdownPct: 0.16}, cfg))

	// ORANGE: daily loss limit or drift breach, absent a RED condition.
	require.Equal(t, domain.RiskOrange, risk.RawLevel(risk.Inputs{DailyPnLPct: -0.04}, cfg))
	require.Equal(t, domain.RiskOrange, risk.RawLevel(risk.Inputs{DriftZMax: 2.5}, cfg))

	// YELLOW: consecutive losses or half the daily limit.
	require.Equal(t, domain.RiskYellow, risk.RawLevel(risk.Inputs{ConsecLosses: 5}, cfg))
	require.Equal(t, domain.RiskYellow, risk.RawLevel(risk.Inputs{DailyPnLPct: -0.02}, cfg))

	require.Equal(t, domain.RiskGreen, risk.RawLevel(risk.Inputs{}, cfg))
}

func TestNextLevel_EscalationIsImmediate(t *testing.T) {
	cfg := testConfig()
	now := time.Now().UTC()
	prev := domain.RiskSnapshot{Level: domain.RiskGreen, LevelEnteredAt: now.Add(-time.Hour)}

	level, enteredAt := risk.NextLevel(prev, true, domain.RiskRed, now, cfg, false, 0, false)
	require.Equal(t, domain.RiskRed, level)
	require.Equal(t, now, enteredAt)
}

func TestNextLevel_RecoveryAdvancesOneStepAtATime(t *testing.T) {
	cfg := testConfig()
	now := time.Now().UTC()

	// RED for less than the cooldown window: stays RED even if raw says GREEN
	// and the operator has acknowledged.
	prev := domain.RiskSnapshot{Level: domain.RiskRed, LevelEnteredAt: now.Add(-1 * time.Hour)}
	level, _ := risk.NextLevel(prev, true, domain.RiskGreen, now, cfg, true, 1.0, true)
	require.Equal(t, domain.RiskRed, level, "RED cannot recover before the dwell window elapses")

	// RED past cooldown but never acknowledged: still stuck at RED.
	prev = domain.RiskSnapshot{Level: domain.RiskRed, LevelEnteredAt: now.Add(-73 * time.Hour)}
	level, _ = risk.NextLevel(prev, true, domain.RiskGreen, now, cfg, false, 1.0, true)
	require.Equal(t, domain.RiskRed, level, "RED requires manual acknowledgement to recover")

	// RED past cooldown and acknowledged: steps down to ORANGE, not all the
	// way to GREEN even though the raw level says GREEN.
	level, enteredAt := risk.NextLevel(prev, true, domain.RiskGreen, now, cfg, true, 1.0, true)
	require.Equal(t, domain.RiskOrange, level)
	require.Equal(t, now, enteredAt)

	// ORANGE with insufficient win rate stays ORANGE.
	prev = domain.RiskSnapshot{Level: domain.RiskOrange, LevelEnteredAt: now.Add(-25 * time.Hour)}
	level, _ = risk.NextLevel(prev, true, domain.RiskGreen, now, cfg, false, 0.40, true)
	require.Equal(t, domain.RiskOrange, level)

	// ORANGE with dwell and win rate met steps to YELLOW, not GREEN.
	level, _ = risk.NextLevel(prev, true, domain.RiskGreen, now, cfg, false, 0.75, true)
	require.Equal(t, domain.RiskYellow, level)

	// YELLOW without 3 consecutive positive days stays YELLOW.
	prev = domain.RiskSnapshot{Level: domain.RiskYellow, LevelEnteredAt: now.Add(-96 * time.Hour)}
	level, _ = risk.NextLevel(prev, true, domain.RiskGreen, now, cfg, false, 1.0, false)
	require.Equal(t, domain.RiskYellow, level)

	// YELLOW with the condition met recovers to GREEN.
	level, _ = risk.NextLevel(prev, true, domain.RiskGreen, now, cfg, false, 1.0, true)
	require.Equal(t, domain.RiskGreen, level)
}

func TestEngine_DegradesOnStoreFailure(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, store.Close()) // closed DB makes every subsequent call fail

	eng := risk.New(store, testConfig(), nil, nil)
	snap := eng.Tick(context.Background(), time.Now().UTC(), 1000)

	require.True(t, snap.DegradedMode)
	require.Equal(t, domain.RiskYellow, snap.Level)
	require.Equal(t, 0.5, snap.SizingMultiplier)
}

func TestEngine_Tick_FreshStoreStartsGreen(t *testing.T) {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer store.Close()

	eng := risk.New(store, testConfig(), nil, nil)
	snap := eng.Tick(context.Background(), time.Now().UTC(), 1000)

	require.False(t, snap.DegradedMode)
	require.Equal(t, domain.RiskGreen, snap.Level)
	require.Equal(t, 1.0, snap.SizingMultiplier)
	require.Equal(t, 1000.0, snap.BankHighWaterUSD)
}

func TestZScore_ThinSampleReturnsZero(t *testing.T) {
	obs := []risk.BandObservation{{Expected: 0.5, Won: true}}
	require.Zero(t, risk.ZScore(obs, 20))
}

func TestZScore_SystematicUnderperformance(t *testing.T) {
	obs := make([]risk.BandObservation, 30)
	for i := range obs {
		obs[i] = risk.BandObservation{Expected: 0.70, Won: i%10 == 0} // wins far below the 70% expectation
	}
	z := risk.ZScore(obs, 20)
	require.Less(t, z, -2.0)
}
