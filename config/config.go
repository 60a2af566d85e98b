package config

// config.go — typed configuration for the trade engine: a YAML file
// overlaid with environment variables, following the teacher's
// config.Load/applyEnvOverrides/setDefaults pattern.

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete tunable surface of spec §6.
type Config struct {
	Sizing   SizingConfig   `yaml:"sizing"`
	Schedule ScheduleConfig `yaml:"schedule"`
	DCA      DCAConfig      `yaml:"dca"`
	Risk     RiskConfig     `yaml:"risk"`
	Order    OrderConfig    `yaml:"order"`
	Merge    MergeConfig    `yaml:"merge"`
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
}

// SizingConfig controls the position sizer (spec §4.2).
type SizingConfig struct {
	FractionalKelly   float64 `yaml:"fractional_kelly"`
	MaxPositionUSD    float64 `yaml:"max_position_usd"`
	CapitalRiskPct    float64 `yaml:"capital_risk_pct"`
	LiquidityFillPct  float64 `yaml:"liquidity_fill_pct"`
	MaxSpreadPct      float64 `yaml:"max_spread_pct"`
	CalibConfidence   float64 `yaml:"calibration_confidence_level"`
	CalibArtifactPath string  `yaml:"calibration_artifact_path"`
	PaperBankrollUSD  float64 `yaml:"paper_bankroll_usd"`
}

// ScheduleConfig controls game discovery and the dispatcher's execution
// window and retry bookkeeping (spec §4.6, §4.8, §7).
type ScheduleConfig struct {
	WindowHours      int     `yaml:"schedule_window_hours"`
	MaxOrdersPerTick int     `yaml:"max_orders_per_tick"`
	BothsideEnabled  bool    `yaml:"bothside_enabled"`
	HedgeDelayMin    int     `yaml:"hedge_delay_min"`
	MaxRetries       int     `yaml:"schedule_max_retries"`
	MaxDailyPositions int    `yaml:"max_daily_positions"`
	MaxDailyExposureUSD float64 `yaml:"max_daily_exposure_usd"`
	MaxPerGameExposureUSD float64 `yaml:"max_per_game_exposure_usd"`
	MaxTotalExposureUSD   float64 `yaml:"max_total_exposure_usd"`
	WatchdogStaleMin      int     `yaml:"watchdog_stale_min"`
	LockDir               string  `yaml:"lock_dir"`
}

// DCAConfig controls the dollar-cost-averaging follow-on sizer (spec §4.2,
// §4.6).
type DCAConfig struct {
	MaxEntries      int     `yaml:"dca_max_entries"`
	MinIntervalMin  int     `yaml:"dca_min_interval_min"`
	MaxPriceSpread  float64 `yaml:"dca_max_price_spread"`
	MinPriceDipPct  float64 `yaml:"dca_min_price_dip_pct"`
	CapMult         float64 `yaml:"dca_cap_mult"`
	MinOrderUSD     float64 `yaml:"dca_min_order_usd"`
	CutoffBeforeTipoffMin int `yaml:"dca_cutoff_before_tipoff_min"`
}

// RiskConfig controls the four-level circuit breaker (spec §4.4).
type RiskConfig struct {
	DailyLossLimitPct    float64 `yaml:"daily_loss_limit_pct"`
	WeeklyLossLimitPct   float64 `yaml:"weekly_loss_limit_pct"`
	MaxDrawdownLimitPct  float64 `yaml:"max_drawdown_limit_pct"`
	DriftThresholdSigma  float64 `yaml:"drift_threshold_sigma"`
	ConsecLossYellow     int     `yaml:"consec_loss_yellow"`
	RedCooldownHours      float64 `yaml:"red_cooldown_hours"`
	OrangeToYellowHours   float64 `yaml:"orange_to_yellow_hours"`
	OrangeToYellowWinRate float64 `yaml:"orange_to_yellow_win_rate"`
	YellowToGreenDays     int     `yaml:"yellow_to_green_days"`
	OrangeAllowsDCA       bool    `yaml:"orange_allows_dca"`
}

// OrderConfig controls the order manager's TTL/replace loop (spec §4.5).
type OrderConfig struct {
	TTLMin          int     `yaml:"order_ttl_min"`
	MaxReplaces     int     `yaml:"order_max_replaces"`
	CheckBatchSize  int     `yaml:"check_batch_size"`
	RateLimitSleepMS int    `yaml:"rate_limit_sleep_ms"`
}

// MergeConfig controls the merge/redeem executor (spec §4.3, §4.6).
type MergeConfig struct {
	Enabled          bool    `yaml:"merge_enabled"`
	MinProfitUSD     float64 `yaml:"min_profit_usd"`
	EstGasUSD        float64 `yaml:"est_gas_usd"`
	MinSharesFloor   float64 `yaml:"min_shares_floor"`
	MaxRetries       int     `yaml:"merge_max_retries"`
	WalletClass      string  `yaml:"wallet_class"` // "eoa_wallet" | "proxy_wallet"
}

// APIConfig holds base URLs for the market/discovery collaborators.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
	RPCURL    string `yaml:"rpc_url"`
}

// StorageConfig controls where persistent state lives.
type StorageConfig struct {
	DSN string `yaml:"dsn"`
}

// LogConfig controls the structured logger's format and level.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML config file, overlays a .env file if present, applies
// environment-variable overrides, then fills in defaults for every unset
// tunable (spec §6's enumerated default set).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	// Boolean tunables that default to on are preset before parsing, so an
	// explicit false in the YAML still overrides them.
	cfg.Schedule.BothsideEnabled = true
	cfg.Merge.Enabled = true
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// OrderTTL returns the order manager's reprice TTL as a time.Duration.
func (c *Config) OrderTTL() time.Duration {
	return time.Duration(c.Order.TTLMin) * time.Minute
}

// RateLimitSleep returns the order manager's inter-call pacing delay.
func (c *Config) RateLimitSleep() time.Duration {
	return time.Duration(c.Order.RateLimitSleepMS) * time.Millisecond
}

// HedgeDelay returns the configured delay before a hedge job becomes
// eligible for dispatch (spec §4.6).
func (c *Config) HedgeDelay() time.Duration {
	return time.Duration(c.Schedule.HedgeDelayMin) * time.Minute
}

// WatchdogStale returns the staleness threshold for the heartbeat-file
// watchdog (spec §5).
func (c *Config) WatchdogStale() time.Duration {
	return time.Duration(c.Schedule.WatchdogStaleMin) * time.Minute
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("CLOB_BASE"); v != "" {
		cfg.API.CLOBBase = v
	}
	if v := os.Getenv("GAMMA_BASE"); v != "" {
		cfg.API.GammaBase = v
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.API.RPCURL = v
	}
	if v := os.Getenv("WALLET_CLASS"); v != "" {
		cfg.Merge.WalletClass = v
	}
	if v := os.Getenv("FRACTIONAL_KELLY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Sizing.FractionalKelly = f
		}
	}
	if v := os.Getenv("MAX_POSITION_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Sizing.MaxPositionUSD = f
		}
	}
}

// setDefaults fills in spec §6's enumerated default tunable set wherever
// the YAML config left a zero value.
func setDefaults(cfg *Config) {
	s := &cfg.Sizing
	if s.FractionalKelly <= 0 {
		s.FractionalKelly = 0.25
	}
	if s.MaxPositionUSD <= 0 {
		s.MaxPositionUSD = 100
	}
	if s.CapitalRiskPct <= 0 {
		s.CapitalRiskPct = 0.02
	}
	if s.LiquidityFillPct <= 0 {
		s.LiquidityFillPct = 0.10
	}
	if s.MaxSpreadPct <= 0 {
		s.MaxSpreadPct = 0.10
	}
	if s.CalibConfidence <= 0 {
		s.CalibConfidence = 0.90
	}
	if s.CalibArtifactPath == "" {
		s.CalibArtifactPath = "calibration_artifact.json"
	}
	if s.PaperBankrollUSD <= 0 {
		s.PaperBankrollUSD = 1000
	}

	sch := &cfg.Schedule
	if sch.WindowHours <= 0 {
		sch.WindowHours = 8
	}
	if sch.MaxOrdersPerTick <= 0 {
		sch.MaxOrdersPerTick = 3
	}
	if sch.HedgeDelayMin <= 0 {
		sch.HedgeDelayMin = 10
	}
	if sch.MaxRetries <= 0 {
		sch.MaxRetries = 3
	}
	if sch.MaxDailyPositions <= 0 {
		sch.MaxDailyPositions = 10
	}
	if sch.MaxDailyExposureUSD <= 0 {
		sch.MaxDailyExposureUSD = 1000
	}
	if sch.MaxPerGameExposureUSD <= 0 {
		sch.MaxPerGameExposureUSD = 200
	}
	if sch.MaxTotalExposureUSD <= 0 {
		sch.MaxTotalExposureUSD = 5000
	}
	if sch.WatchdogStaleMin <= 0 {
		sch.WatchdogStaleMin = 35
	}
	if sch.LockDir == "" {
		sch.LockDir = "/tmp/tradeengine.lock"
	}

	d := &cfg.DCA
	if d.MaxEntries <= 0 {
		d.MaxEntries = 5
	}
	if d.MinIntervalMin <= 0 {
		d.MinIntervalMin = 30
	}
	if d.MaxPriceSpread <= 0 {
		d.MaxPriceSpread = 0.15
	}
	if d.MinPriceDipPct <= 0 {
		d.MinPriceDipPct = 0.03
	}
	if d.CapMult <= 0 {
		d.CapMult = 2.0
	}
	if d.MinOrderUSD <= 0 {
		d.MinOrderUSD = 5
	}
	if d.CutoffBeforeTipoffMin <= 0 {
		d.CutoffBeforeTipoffMin = 30
	}

	r := &cfg.Risk
	if r.DailyLossLimitPct <= 0 {
		r.DailyLossLimitPct = 0.03
	}
	if r.WeeklyLossLimitPct <= 0 {
		r.WeeklyLossLimitPct = 0.05
	}
	if r.MaxDrawdownLimitPct <= 0 {
		r.MaxDrawdownLimitPct = 0.15
	}
	if r.DriftThresholdSigma <= 0 {
		r.DriftThresholdSigma = 2.0
	}
	if r.ConsecLossYellow <= 0 {
		r.ConsecLossYellow = 5
	}
	if r.RedCooldownHours <= 0 {
		r.RedCooldownHours = 72
	}
	if r.OrangeToYellowHours <= 0 {
		r.OrangeToYellowHours = 24
	}
	if r.OrangeToYellowWinRate <= 0 {
		r.OrangeToYellowWinRate = 0.60
	}
	if r.YellowToGreenDays <= 0 {
		r.YellowToGreenDays = 3
	}

	o := &cfg.Order
	if o.TTLMin <= 0 {
		o.TTLMin = 5
	}
	if o.MaxReplaces <= 0 {
		o.MaxReplaces = 3
	}
	if o.CheckBatchSize <= 0 {
		o.CheckBatchSize = 10
	}
	if o.RateLimitSleepMS <= 0 {
		o.RateLimitSleepMS = 500
	}

	m := &cfg.Merge
	if m.MinProfitUSD <= 0 {
		m.MinProfitUSD = 0.10
	}
	if m.EstGasUSD <= 0 {
		m.EstGasUSD = 0.05
	}
	if m.MinSharesFloor <= 0 {
		m.MinSharesFloor = 1
	}
	if m.MaxRetries <= 0 {
		m.MaxRetries = 3
	}
	if m.WalletClass == "" {
		m.WalletClass = "eoa_wallet"
	}

	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "tradeengine.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
