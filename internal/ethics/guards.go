// Package ethics implements the three-poison risk/ethics guard layer: a
// precondition predicate on every signal that rejects trades violating
// greed, aversion, and delusion invariants, plus the microstructure,
// operational, and regime guards spec.md §4.5 adds alongside them.
//
// The guard vocabulary follows the Buddhist three-poisons framing the
// original engine used: greed (over-extension), aversion (revenge trading),
// delusion (acting on insufficient or stale information). Each poison maps
// to one or more concrete numeric checks below; none of this is metaphor at
// runtime, it is the literal precondition a signal must satisfy.
package ethics

// Poison categorizes a Violation by which failure mode it guards against.
type Poison string

const (
	PoisonGreed           Poison = "greed"
	PoisonAversion        Poison = "aversion"
	PoisonDelusion        Poison = "delusion"
	PoisonMicrostructure  Poison = "microstructure"
	PoisonOperational     Poison = "operational"
	PoisonRegime          Poison = "regime"
)

// Code names the specific guard that tripped.
type Code string

const (
	GreedOverExtension      Code = "greed_over_extension"
	GreedOverTrading        Code = "greed_over_trading"
	AversionRevenge         Code = "aversion_revenge"
	AversionCascade         Code = "aversion_cascade"
	DelusionInsufficient    Code = "delusion_insufficient_data"
	DelusionStale           Code = "delusion_stale_data"
	MicrostructureSpread    Code = "microstructure_spread"
	OperationalPendingOrder Code = "operational_pending_order"
	RegimeReflexive         Code = "regime_reflexive"
)

// Violation is the structured result of a failed guard check; it exists
// for logging only, never to drive a retry.
type Violation struct {
	Poison  Poison
	Code    Code
	Message string
}

// minCandlesForSignal and consecutiveLossCascade are the original engine's
// hardcoded thresholds, not configuration: they are structural floors below
// which a signal cannot be trusted regardless of operator preference.
const (
	minCandlesForSignal   = 10
	consecutiveLossCascade = 3
)

// Config carries the operator-tunable portion of the guard table
// (spec.md §6.3); the hardcoded floors above are deliberately absent here.
type Config struct {
	MaxPositionPct   float64
	MaxTradesPerDay  uint32
	CooldownMs       int64
	DataStaleMs      int64
	MaxSpreadPct     float64
}

// SymbolInput is the slice of symbol/portfolio/risk/regime state the guard
// table needs, decoupled from internal/engine.State so this package has no
// import-cycle dependency on the reducer core.
type SymbolInput struct {
	Now                int64
	TotalExposure      float64
	Equity             float64
	TradesToday        uint32
	LastLossTs         int64
	ConsecutiveLosses  uint32
	CandleCount        uint64
	LastTs             int64
	Spread             float64
	HasPendingOrder    bool
	RegimeMultiplier   float64
}

// Check runs the full guard table in spec.md §4.5's order — greed, then
// aversion, then delusion, then microstructure, then operational, then
// regime — and returns the first violation encountered, or nil if the
// state is aligned.
func Check(in SymbolInput, cfg Config) *Violation {
	exposurePct := 0.0
	if in.Equity > 0 {
		exposurePct = in.TotalExposure / in.Equity
	}
	if exposurePct > cfg.MaxPositionPct {
		return &Violation{PoisonGreed, GreedOverExtension, "exposure exceeds max_position_pct"}
	}
	if in.TradesToday >= cfg.MaxTradesPerDay {
		return &Violation{PoisonGreed, GreedOverTrading, "trades_today at max_trades_per_day"}
	}

	msSinceLoss := in.Now - in.LastLossTs
	if in.LastLossTs > 0 && msSinceLoss < cfg.CooldownMs {
		return &Violation{PoisonAversion, AversionRevenge, "within cooldown_ms of last loss"}
	}
	if in.ConsecutiveLosses >= consecutiveLossCascade {
		return &Violation{PoisonAversion, AversionCascade, "three or more consecutive losses"}
	}

	if in.CandleCount < minCandlesForSignal {
		return &Violation{PoisonDelusion, DelusionInsufficient, "fewer than 10 candles observed"}
	}
	dataAge := in.Now - in.LastTs
	if dataAge > cfg.DataStaleMs {
		return &Violation{PoisonDelusion, DelusionStale, "symbol data older than data_stale_ms"}
	}

	if in.Spread > cfg.MaxSpreadPct {
		return &Violation{PoisonMicrostructure, MicrostructureSpread, "spread exceeds max_spread_pct"}
	}

	if in.HasPendingOrder {
		return &Violation{PoisonOperational, OperationalPendingOrder, "an order is already pending for this symbol"}
	}

	if in.RegimeMultiplier == 0 {
		return &Violation{PoisonRegime, RegimeReflexive, "regime effective multiplier is zero"}
	}

	return nil
}
