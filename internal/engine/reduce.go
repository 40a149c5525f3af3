package engine

import (
	"fmt"
	"math"

	"github.com/uprootiny/arbitragefx-sub000/internal/ethics"
	"github.com/uprootiny/arbitragefx-sub000/internal/regime"
	"github.com/uprootiny/arbitragefx-sub000/internal/signal"
	"github.com/uprootiny/arbitragefx-sub000/pkg/types"
)

// fundingBaseline and volatilityBaseline are the reference narrative
// detector's fixed baselines (original_source's update_regime_state): the
// system tracks no rolling funding mean or instrument-specific volatility
// baseline of its own, so funding_zscore and volatility_ratio are computed
// against these fixed constants rather than an adaptive one.
const (
	fundingBaseline    = 0.0001
	volatilityBaseline = 500.0
	staleCheckMs       = 300_000
)

// Reduce is the reducer core's single entry point: dispatch rules 1-4 of
// spec.md §4.1. It mutates state in place and returns the ordered commands
// to emit plus the post-transition hash.
func Reduce(state *State, event types.Event, cfg Config) ([]types.Command, uint64) {
	ts := event.Timestamp()
	if ts > state.Now {
		state.Now = ts
	}
	state.Seq++

	var commands []types.Command
	if state.Halted {
		return commands, StateHash(state)
	}

	switch event.Family() {
	case types.FamilyMarket:
		commands = handleMarket(state, event, cfg)
	case types.FamilyExec:
		commands = handleExec(state, event, cfg)
	case types.FamilySys:
		commands = handleSys(state, event, cfg)
	}

	return commands, StateHash(state)
}

func logf(level types.LogLevel, format string, args ...interface{}) types.LogCommand {
	return types.LogCommand{Level: level, Msg: fmt.Sprintf(format, args...)}
}

func handleMarket(state *State, event types.Event, cfg Config) []types.Command {
	var commands []types.Command

	switch e := event.(type) {
	case types.Candle:
		sym := state.symbol(e.Symbol)
		sym.OnCandle(e.Ts, e.Close, cfg.EMAFastAlpha, cfg.EMASlowAlpha)
		state.Portfolio.MarkToMarket(state.markPrices())

		commands = append(commands, updateRegime(state, e.Symbol, e.Ts)...)

		violation := checkTradeGuards(state, e.Symbol, cfg)
		if violation != nil {
			commands = append(commands, logf(types.LogDebug, "ethics guard: %s (%s)", violation.Code, violation.Message))
		} else if cmd := generateSignal(state, e.Symbol, cfg); cmd != nil {
			commands = append(commands, cmd)
		}

	case types.Trade:
		sym := state.symbol(e.Symbol)
		sym.OnTrade(e.Ts, e.Price)

	case types.Funding:
		sym := state.symbol(e.Symbol)
		sym.OnFunding(e.Rate)

	case types.Liquidation:
		sym := state.symbol(e.Symbol)
		sym.OnLiquidation(e.Qty, e.Price)

	case types.BookUpdate:
		sym := state.symbol(e.Symbol)
		sym.SetSpread(e.Bid, e.Ask)
		if sym.Spread > cfg.MaxSpreadPct {
			commands = append(commands, types.HaltCommand{Reason: types.HaltSpreadTooWide})
			state.Halted = true
			state.HaltReason = types.HaltSpreadTooWide
		}
	}

	return commands
}

// updateRegime folds the symbol's current indicators into the engine's
// regime state and returns a transition log command when the
// classification changes.
func updateRegime(state *State, symbol string, ts int64) []types.Command {
	sym, ok := state.Symbols[symbol]
	if !ok {
		return nil
	}

	priceChangePct := 0.0
	if sym.PrevClose > 0 {
		priceChangePct = (sym.LastPrice - sym.PrevClose) / sym.PrevClose
	}
	volatilityRatio := 1.0
	if sym.Volatility > 0 {
		volatilityRatio = sym.Volatility / volatilityBaseline
	}

	ind := regime.Indicators{
		FundingZScore:    sym.FundingRate / fundingBaseline,
		LiquidationScore: sym.LiquidationScore,
		PVDivergence:     0, // no volume series tracked
		VolatilityRatio:  volatilityRatio,
		OIChangeRate:     0, // no open-interest series tracked
	}
	_ = priceChangePct // retained for parity with the reference computation; not part of the score

	prev := state.Regime.Current
	state.Regime.Update(ts, ind, nil)
	state.Regime.CheckStaleness(ts)

	var commands []types.Command
	if state.Regime.Current != prev {
		commands = append(commands, logf(types.LogInfo, "regime change: %s -> %s (score=%.2f mult=%.2f)",
			prev, state.Regime.Current, state.Regime.NarrativeScore, state.Regime.PositionMult))
	}
	return commands
}

// checkTradeGuards runs should_trade's full guard sequence for symbol:
// halted (already excluded by Reduce's dispatch), the three-poison table,
// spread, pending-order collision, and regime reflexive.
func checkTradeGuards(state *State, symbol string, cfg Config) *ethics.Violation {
	sym, ok := state.Symbols[symbol]
	if !ok {
		return &ethics.Violation{Poison: ethics.PoisonDelusion, Code: ethics.DelusionInsufficient, Message: "unknown symbol"}
	}

	in := ethics.SymbolInput{
		Now:               state.Now,
		TotalExposure:     state.Portfolio.TotalExposure(state.markPrices()),
		Equity:            state.Portfolio.Equity,
		TradesToday:       state.Risk.TradesToday,
		LastLossTs:        state.Risk.LastLossTs,
		ConsecutiveLosses: state.Risk.ConsecutiveLosses,
		CandleCount:       sym.CandleCount,
		LastTs:            sym.LastTs,
		Spread:            sym.Spread,
		HasPendingOrder:   state.hasPendingOrder(symbol),
		RegimeMultiplier:  state.Regime.EffectiveMultiplier(),
	}
	gcfg := ethics.Config{
		MaxPositionPct:  cfg.MaxPositionPct,
		MaxTradesPerDay: cfg.MaxTradesPerDay,
		CooldownMs:      cfg.CooldownMs,
		DataStaleMs:     cfg.DataStaleMs,
		MaxSpreadPct:    cfg.MaxSpreadPct,
	}
	return ethics.Check(in, gcfg)
}

// generateSignal runs the exit-then-entry decision tree for symbol and
// returns a PlaceOrder command, or nil when no action is the correct
// action. Client IDs follow the reference convention of a purpose prefix,
// the symbol, and the current sequence number, which keeps them unique
// within a WAL without a separate counter.
func generateSignal(state *State, symbol string, cfg Config) types.Command {
	sym := state.Symbols[symbol]
	if sym.CandleCount < 10 {
		return nil
	}

	scfg := signal.Config{
		EntryThreshold: cfg.EntryThreshold,
		ExitThreshold:  cfg.ExitThreshold,
		PositionSize:   cfg.PositionSize,
		TakeProfitPct:  cfg.TakeProfitPct,
		StopLossPct:    cfg.StopLossPct,
	}
	in := signal.Inputs{
		Score:        sym.MeanReversionScore(),
		RSI:          sym.RSI(),
		Acceleration: sym.MomentumAcceleration(),
		LastPrice:    sym.LastPrice,
	}

	if pos, ok := state.Portfolio.Positions[symbol]; ok && pos.Qty != 0 {
		d := signal.Evaluate(scfg, in, &signal.PositionView{Qty: pos.Qty, Entry: pos.Entry}, 0)
		if !d.Should {
			return nil
		}
		prefix := exitPrefix(in, pos.Entry, sym.LastPrice, pos.Qty, cfg, scfg)
		clientID := fmt.Sprintf("%s-%s-%d", prefix, symbol, state.Seq)
		state.trackNewOrder(clientID, symbol, d.Side, d.Qty)
		return types.PlaceOrder{Symbol: symbol, ClientID: clientID, Side: d.Side, Qty: d.Qty}
	}

	regimeMult := state.Regime.EffectiveMultiplier()
	adjustedSize := cfg.PositionSize * regimeMult
	if !signal.PreconditionsHold(sym.CandleCount, cfg.PositionSize, adjustedSize) {
		return nil
	}

	d := signal.Evaluate(scfg, in, nil, adjustedSize)
	if !d.Should {
		return nil
	}
	prefix := "buy"
	if d.Side == types.SideSell {
		prefix = "sell"
	}
	clientID := fmt.Sprintf("%s-%s-%d", prefix, symbol, state.Seq)
	state.trackNewOrder(clientID, symbol, d.Side, d.Qty)
	return types.PlaceOrder{Symbol: symbol, ClientID: clientID, Side: d.Side, Qty: d.Qty}
}

// exitPrefix recovers which exit condition fired, purely to preserve the
// reference client_id naming convention (tp-/sl-/rev-) for observability;
// it duplicates signal.Evaluate's own ordering by design; production paths
// should rely on that ordering and not this reconstruction.
func exitPrefix(in signal.Inputs, entry, lastPrice, qty float64, cfg Config, scfg signal.Config) string {
	dir := 1.0
	if qty < 0 {
		dir = -1.0
	}
	movePct := (lastPrice - entry) / entry * dir
	switch {
	case movePct >= cfg.TakeProfitPct:
		return "tp"
	case movePct <= -cfg.StopLossPct:
		return "sl"
	default:
		return "rev"
	}
}

func handleExec(state *State, event types.Event, cfg Config) []types.Command {
	var commands []types.Command

	switch e := event.(type) {
	case types.OrderAck:
		if order, ok := state.Orders[e.ClientID]; ok && CanTransition(order.Status, StatusAcked) {
			order.Status = StatusAcked
			order.OrderID = e.OrderID
		}
		state.Risk.ConsecutiveErrors = 0

	case types.Fill:
		if state.AppliedFills[e.FillID] {
			break
		}

		order := state.Orders[e.ClientID]
		if err := ValidateFill(order, e.Qty, e.Price); err != nil {
			panic(err)
		}
		state.AppliedFills[e.FillID] = true

		delete(state.Orders, e.ClientID)

		realized := state.Portfolio.ApplyFill(e.Symbol, e.Side, e.Qty, e.Price, e.Fee, state.markPrices())

		state.Risk.LastTradeTs = e.Ts
		state.Risk.DailyPnL += realized
		state.Risk.TradesToday++

		if realized < 0 {
			state.Risk.LastLossTs = e.Ts
			state.Risk.ConsecutiveLosses++
		} else {
			state.Risk.ConsecutiveLosses = 0
		}
		state.Risk.ConsecutiveErrors = 0

		starting := state.Portfolio.Cash + state.Portfolio.RealizedPnL - state.Risk.DailyPnL
		if starting > 0 && state.Risk.DailyPnL < -starting*cfg.MaxDailyLossPct {
			commands = append(commands, types.HaltCommand{Reason: types.HaltMaxDrawdown})
			state.Halted = true
			state.HaltReason = types.HaltMaxDrawdown
		}

		commands = append(commands, logf(types.LogInfo, "fill %s %s %.6f @ %.2f pnl=%.4f",
			e.Symbol, e.Side, e.Qty, e.Price, realized))

	case types.PartialFill:
		if state.AppliedFills[e.FillID] {
			break
		}

		order, ok := state.Orders[e.ClientID]
		if err := ValidateFill(order, e.Qty, e.Price); err != nil {
			panic(err)
		}
		state.AppliedFills[e.FillID] = true

		if ok && CanTransition(order.Status, StatusPartiallyFilled) {
			order.FilledQty += e.Qty
			order.Status = StatusPartiallyFilled
		}
		state.Portfolio.ApplyFill(e.Symbol, e.Side, e.Qty, e.Price, e.Fee, state.markPrices())
		state.Risk.ConsecutiveErrors = 0

	case types.CancelAck:
		if order, ok := state.Orders[e.ClientID]; ok && CanTransition(order.Status, StatusCanceled) {
			order.Status = StatusCanceled
		}
		delete(state.Orders, e.ClientID)

	case types.Reject:
		if order, ok := state.Orders[e.ClientID]; ok && CanTransition(order.Status, StatusRejected) {
			order.Status = StatusRejected
		}
		delete(state.Orders, e.ClientID)
		state.Risk.ConsecutiveErrors++

		if state.Risk.ConsecutiveErrors >= cfg.MaxConsecutiveErrors {
			commands = append(commands, types.HaltCommand{Reason: types.HaltMaxErrors})
			state.Halted = true
			state.HaltReason = types.HaltMaxErrors
		}
	}

	return commands
}

func handleSys(state *State, event types.Event, cfg Config) []types.Command {
	var commands []types.Command

	switch e := event.(type) {
	case types.Timer:
		for _, sym := range state.Symbols {
			sym.DecayLiquidation()
		}

		for symbol, sym := range state.Symbols {
			if sym.IsStale(e.Ts, cfg.DataStaleMs) {
				commands = append(commands, types.HaltCommand{Reason: types.HaltDataStale})
				state.Halted = true
				state.HaltReason = types.HaltDataStale
				_ = symbol
				break
			}
		}

		day := e.Ts / 86_400_000
		if day != state.Risk.TradeDay {
			state.Risk.TradeDay = day
			state.Risk.TradesToday = 0
			state.Risk.DailyPnL = 0
		}

	case types.Reconnect:
		commands = append(commands, logf(types.LogWarn, "reconnect: %s", e.Source))

	case types.DataStale:
		commands = append(commands, types.HaltCommand{Reason: types.HaltDataStale})
		state.Halted = true
		state.HaltReason = types.HaltDataStale

	case types.Health:
		if e.Status == types.HealthCritical {
			commands = append(commands, types.HaltCommand{Reason: types.HaltManual})
			state.Halted = true
			state.HaltReason = types.HaltManual
		}

	case types.Halt:
		state.Halted = true
		state.HaltReason = e.Reason
		commands = append(commands, types.CancelAll{})
	}

	return commands
}

// InvariantError marks a reducer-detected invariant violation: per spec.md
// §7, the reducer performs no I/O, so every error it can raise is a
// programming error that must terminate the process rather than be
// swallowed.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return e.Msg }

// ValidateFill raises an InvariantError for the conditions spec.md §4.10
// classifies as invariant violations rather than ordinary rejects:
// over-fill past the ordered quantity, or a non-finite price/quantity.
// handleExec panics on its error before the fill ever reaches the ledger,
// since an invariant violation here is fatal, not an ordinary reject.
func ValidateFill(order *Order, fillQty, price float64) error {
	if math.IsNaN(price) || math.IsNaN(fillQty) || math.IsInf(price, 0) || math.IsInf(fillQty, 0) {
		return &InvariantError{Msg: "non-finite price or quantity in fill"}
	}
	if order != nil && order.FilledQty+fillQty > order.Qty+1e-9 {
		return &InvariantError{Msg: "fill quantity exceeds ordered quantity"}
	}
	return nil
}
