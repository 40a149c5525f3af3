// Package config loads the engine's full configuration surface from a
// YAML file with environment variable overrides, following the pack's
// viper + mapstructure convention rather than hand-rolled flag parsing.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/uprootiny/arbitragefx-sub000/internal/engine"
	"github.com/uprootiny/arbitragefx-sub000/internal/execution"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure; ARBFX_-prefixed env vars override individual fields.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	API       APIConfig       `mapstructure:"api"`
	WAL       WALConfig       `mapstructure:"wal"`
	Symbols   []string        `mapstructure:"symbols"`
}

// EngineConfig mirrors internal/engine.Config's field-for-field tuning
// surface (spec.md §6.3).
type EngineConfig struct {
	EMAFastAlpha         float64 `mapstructure:"ema_fast_alpha"`
	EMASlowAlpha         float64 `mapstructure:"ema_slow_alpha"`
	EntryThreshold       float64 `mapstructure:"entry_threshold"`
	ExitThreshold        float64 `mapstructure:"exit_threshold"`
	PositionSize         float64 `mapstructure:"position_size"`
	MaxPositionPct       float64 `mapstructure:"max_position_pct"`
	MaxDailyLossPct      float64 `mapstructure:"max_daily_loss_pct"`
	MaxTradesPerDay      uint32  `mapstructure:"max_trades_per_day"`
	CooldownMs           int64   `mapstructure:"cooldown_ms"`
	DataStaleMs          int64   `mapstructure:"data_stale_ms"`
	MaxSpreadPct         float64 `mapstructure:"max_spread_pct"`
	MaxConsecutiveErrors uint32  `mapstructure:"max_consecutive_errors"`
	TakeProfitPct        float64 `mapstructure:"take_profit_pct"`
	StopLossPct          float64 `mapstructure:"stop_loss_pct"`
	StartingCash         float64 `mapstructure:"starting_cash"`
	CancelAfterCandles   int64   `mapstructure:"cancel_after_candles"`
	CandleGranularityMs  int64   `mapstructure:"candle_granularity_ms"`
	KillFilePath         string  `mapstructure:"kill_file_path"`
}

// RiskConfig mirrors internal/execution.RiskConfig's execution-boundary
// limits, distinct from the engine's own ethics guards.
type RiskConfig struct {
	MaxOrderQty           float64 `mapstructure:"max_order_qty"`
	MaxDailyVolume        float64 `mapstructure:"max_daily_volume"`
	MaxConsecutiveRejects int     `mapstructure:"max_consecutive_rejects"`
	KillSwitchLossUSD     float64 `mapstructure:"kill_switch_loss_usd"`
}

// ExecutionConfig tunes the adapter layer: retry policy and whether to
// run against the simulated paper adapter or a live venue.
type ExecutionConfig struct {
	PaperTrading    bool    `mapstructure:"paper_trading"`
	RetryAttempts   int     `mapstructure:"retry_attempts"`
	CommissionRate  float64 `mapstructure:"commission_rate"`
	BaseSlippageBps float64 `mapstructure:"base_slippage_bps"`
	BaseSpreadBps   float64 `mapstructure:"base_spread_bps"`
}

// LoggingConfig controls the zap logger's level and encoding.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig controls the Prometheus metrics HTTP listener.
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// APIConfig controls the control-plane HTTP/WebSocket server.
type APIConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// WALConfig controls where the write-ahead log lives on disk.
type WALConfig struct {
	Path string `mapstructure:"path"`
}

// Default returns a complete, conservative configuration usable without
// a config file, matching internal/engine.Default()'s values.
func Default() Config {
	eng := engine.Default()
	return Config{
		Engine: EngineConfig{
			EMAFastAlpha: eng.EMAFastAlpha, EMASlowAlpha: eng.EMASlowAlpha,
			EntryThreshold: eng.EntryThreshold, ExitThreshold: eng.ExitThreshold,
			PositionSize: eng.PositionSize, MaxPositionPct: eng.MaxPositionPct,
			MaxDailyLossPct: eng.MaxDailyLossPct, MaxTradesPerDay: eng.MaxTradesPerDay,
			CooldownMs: eng.CooldownMs, DataStaleMs: eng.DataStaleMs,
			MaxSpreadPct: eng.MaxSpreadPct, MaxConsecutiveErrors: eng.MaxConsecutiveErrors,
			TakeProfitPct: eng.TakeProfitPct, StopLossPct: eng.StopLossPct,
			StartingCash: eng.StartingCash, CancelAfterCandles: eng.CancelAfterCandles,
			CandleGranularityMs: eng.CandleGranularityMs,
		},
		Risk: RiskConfig{
			MaxOrderQty: 10, MaxDailyVolume: 100_000,
			MaxConsecutiveRejects: 5, KillSwitchLossUSD: 1000,
		},
		Execution: ExecutionConfig{
			PaperTrading: true, RetryAttempts: 5,
			CommissionRate: 0.001, BaseSlippageBps: 10, BaseSpreadBps: 20,
		},
		Logging:   LoggingConfig{Level: "info", Format: "console"},
		Telemetry: TelemetryConfig{Enabled: true, Host: "0.0.0.0", Port: 9090},
		API:       APIConfig{Host: "0.0.0.0", Port: 8080, AllowedOrigins: []string{"*"}},
		WAL:       WALConfig{Path: "data/engine.wal"},
		Symbols:   []string{"BTCUSDT"},
	}
}

// Load reads config from a YAML file, applying ARBFX_*-prefixed
// environment variable overrides on top (e.g. ARBFX_ENGINE_STARTING_CASH).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ARBFX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// ToEngineConfig projects the loaded config onto internal/engine.Config.
func (c Config) ToEngineConfig() engine.Config {
	e := c.Engine
	return engine.Config{
		EMAFastAlpha: e.EMAFastAlpha, EMASlowAlpha: e.EMASlowAlpha,
		EntryThreshold: e.EntryThreshold, ExitThreshold: e.ExitThreshold,
		PositionSize: e.PositionSize, MaxPositionPct: e.MaxPositionPct,
		MaxDailyLossPct: e.MaxDailyLossPct, MaxTradesPerDay: e.MaxTradesPerDay,
		CooldownMs: e.CooldownMs, DataStaleMs: e.DataStaleMs,
		MaxSpreadPct: e.MaxSpreadPct, MaxConsecutiveErrors: e.MaxConsecutiveErrors,
		TakeProfitPct: e.TakeProfitPct, StopLossPct: e.StopLossPct,
		StartingCash: e.StartingCash, CancelAfterCandles: e.CancelAfterCandles,
		CandleGranularityMs: e.CandleGranularityMs, KillFilePath: e.KillFilePath,
	}
}

// ToRiskConfig projects the loaded config onto internal/execution.RiskConfig.
func (c Config) ToRiskConfig() execution.RiskConfig {
	return execution.RiskConfig{
		MaxOrderQty: c.Risk.MaxOrderQty, MaxDailyVolume: c.Risk.MaxDailyVolume,
		MaxConsecutiveRejects: c.Risk.MaxConsecutiveRejects, KillSwitchLossUSD: c.Risk.KillSwitchLossUSD,
	}
}

// ToCostModelConfig projects the loaded config onto
// internal/execution.CostModelConfig for the paper adapter.
func (c Config) ToCostModelConfig() execution.CostModelConfig {
	cm := execution.DefaultCostModelConfig()
	cm.CommissionRate = c.Execution.CommissionRate
	cm.BaseSlippageBps = c.Execution.BaseSlippageBps
	cm.BaseSpreadBps = c.Execution.BaseSpreadBps
	return cm
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Engine.StartingCash <= 0 {
		return fmt.Errorf("engine.starting_cash must be > 0")
	}
	if c.Engine.PositionSize <= 0 {
		return fmt.Errorf("engine.position_size must be > 0")
	}
	if c.Engine.MaxTradesPerDay == 0 {
		return fmt.Errorf("engine.max_trades_per_day must be > 0")
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if c.Risk.MaxOrderQty <= 0 {
		return fmt.Errorf("risk.max_order_qty must be > 0")
	}
	if c.API.Port <= 0 {
		return fmt.Errorf("api.port must be > 0")
	}
	return nil
}
