// Package signal implements the mean-reversion, non-grasping entry/exit
// logic of spec.md §4.7: require exhaustion (RSI extreme) plus deceleration
// (momentum derivative flattening) before providing liquidity, rather than
// chasing a move.
package signal

import "github.com/uprootiny/arbitragefx-sub000/pkg/types"

// Config carries the operator-tunable entry/exit thresholds.
type Config struct {
	EntryThreshold float64
	ExitThreshold  float64
	PositionSize   float64
	TakeProfitPct  float64
	StopLossPct    float64
}

// PositionView is the minimal open-position shape the generator needs.
type PositionView struct {
	Qty   float64
	Entry float64
}

// Inputs bundles the indicator reads the generator consults.
type Inputs struct {
	Score        float64 // mean_reversion_score
	RSI          float64
	Acceleration float64
	LastPrice    float64
}

// Decision is the outcome of evaluating one symbol: either no action, or
// exactly one side/qty to place at market.
type Decision struct {
	Should bool
	Side   types.Side
	Qty    float64
}

func sign(x float64) float64 {
	if x > 0 {
		return 1
	}
	if x < 0 {
		return -1
	}
	return 0
}

// Evaluate runs the exit-then-entry decision tree for one symbol. pos is
// nil when flat. adjustedSize must already be position_size scaled by the
// regime's effective multiplier; callers are responsible for applying the
// guard table (internal/ethics) before calling Evaluate — Evaluate itself
// performs no guard checks, it is pure signal logic.
func Evaluate(cfg Config, in Inputs, pos *PositionView, adjustedSize float64) Decision {
	if pos != nil && pos.Qty != 0 {
		return evaluateExit(cfg, in, pos)
	}
	return evaluateEntry(cfg, in, adjustedSize)
}

func evaluateExit(cfg Config, in Inputs, pos *PositionView) Decision {
	posSign := sign(pos.Qty)
	movePct := (in.LastPrice - pos.Entry) / pos.Entry * posSign

	closeSide := types.SideSell
	if pos.Qty < 0 {
		closeSide = types.SideBuy
	}
	qty := absf(pos.Qty)

	switch {
	case movePct >= cfg.TakeProfitPct:
		return Decision{Should: true, Side: closeSide, Qty: qty}
	case movePct <= -cfg.StopLossPct:
		return Decision{Should: true, Side: closeSide, Qty: qty}
	case in.Score*posSign < -cfg.ExitThreshold:
		return Decision{Should: true, Side: closeSide, Qty: qty}
	default:
		return Decision{}
	}
}

func evaluateEntry(cfg Config, in Inputs, adjustedSize float64) Decision {
	switch {
	case in.Score > cfg.EntryThreshold && in.RSI < 35 && in.Acceleration > -0.001:
		return Decision{Should: true, Side: types.SideBuy, Qty: adjustedSize}
	case in.Score < -cfg.EntryThreshold && in.RSI > 65 && in.Acceleration < 0.001:
		return Decision{Should: true, Side: types.SideSell, Qty: adjustedSize}
	default:
		return Decision{}
	}
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// MinAdjustedSizeFrac is the floor spec.md §4.7 sets on the regime-scaled
// size relative to the raw position size: below this, preconditions fail
// and no entry is attempted even if the score/RSI/acceleration gates pass.
const MinAdjustedSizeFrac = 0.1

// PreconditionsHold checks the two size/data preconditions that gate entry
// generation, independent of the guard table: enough candles observed, and
// a regime multiplier that hasn't crushed the adjusted size below the
// floor.
func PreconditionsHold(candleCount uint64, positionSize, adjustedSize float64) bool {
	if candleCount < 10 {
		return false
	}
	return adjustedSize >= MinAdjustedSizeFrac*positionSize
}
