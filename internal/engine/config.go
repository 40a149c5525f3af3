package engine

// Config is the full configuration surface of spec.md §6.3; internal/config
// loads this (plus ambient fields) via viper and hands it to Reduce.
type Config struct {
	EMAFastAlpha float64
	EMASlowAlpha float64

	EntryThreshold float64
	ExitThreshold  float64

	PositionSize   float64
	MaxPositionPct float64

	MaxDailyLossPct float64
	MaxTradesPerDay uint32

	CooldownMs int64

	DataStaleMs  int64
	MaxSpreadPct float64

	MaxConsecutiveErrors uint32

	TakeProfitPct float64
	StopLossPct   float64

	StartingCash float64

	CancelAfterCandles  int64
	CandleGranularityMs int64

	KillFilePath string
}

// Default returns the reference configuration used across tests and the
// command-line entrypoint's built-in defaults.
func Default() Config {
	return Config{
		EMAFastAlpha:         0.2,
		EMASlowAlpha:         0.05,
		EntryThreshold:       0.3,
		ExitThreshold:        0.3,
		PositionSize:         0.01,
		MaxPositionPct:       0.5,
		MaxDailyLossPct:      0.05,
		MaxTradesPerDay:      20,
		CooldownMs:           10_000,
		DataStaleMs:          300_000,
		MaxSpreadPct:         0.01,
		MaxConsecutiveErrors: 3,
		TakeProfitPct:        0.004,
		StopLossPct:          0.003,
		StartingCash:         10_000,
		CancelAfterCandles:   20,
		CandleGranularityMs:  60_000,
	}
}
