// Package engine is the reducer core: a pure state-transition function
// (State, Event) -> (State, Commands) with deterministic hashing. It owns
// the order state machine and dispatches into internal/ledger,
// internal/ethics, internal/regime, internal/signal, and
// internal/indicators for their respective slices of state.
package engine

import (
	"github.com/uprootiny/arbitragefx-sub000/internal/indicators"
	"github.com/uprootiny/arbitragefx-sub000/internal/ledger"
	"github.com/uprootiny/arbitragefx-sub000/internal/regime"
	"github.com/uprootiny/arbitragefx-sub000/pkg/types"
)

// OrderStatus is a node in the order state machine (spec.md §4.3).
type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusAcked          OrderStatus = "acked"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled         OrderStatus = "filled"
	StatusCanceled       OrderStatus = "canceled"
	StatusRejected       OrderStatus = "rejected"
)

// IsTerminal reports whether a status has no further transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected
}

// transitions enumerates the permitted edges of the order state machine.
// Any transition not present here is rejected by CanTransition.
var transitions = map[OrderStatus]map[OrderStatus]bool{
	StatusPending: {
		StatusAcked:    true,
		StatusRejected: true,
	},
	StatusAcked: {
		StatusPartiallyFilled: true,
		StatusFilled:          true,
		StatusCanceled:        true,
	},
	StatusPartiallyFilled: {
		StatusFilled:   true,
		StatusCanceled: true,
	},
}

// CanTransition reports whether from -> to is a permitted edge.
func CanTransition(from, to OrderStatus) bool {
	edges, ok := transitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// Order is one resting order's state (spec.md §3.4).
type Order struct {
	ClientID  string
	OrderID   string
	Symbol    string
	Side      types.Side
	Qty       float64
	FilledQty float64
	Price     float64
	Status    OrderStatus
	CreatedTs int64
}

// RiskState is the per-engine risk counters (spec.md §3.5).
type RiskState struct {
	TradesToday       uint32
	TradeDay          int64
	DailyPnL          float64
	LastTradeTs       int64
	LastLossTs        int64
	ConsecutiveErrors uint32
	ConsecutiveLosses uint32
}

// EngineStrategyState is the per-strategy slice of engine state the WAL
// needs to isolate recovery across strategies (§10 supplemented feature,
// grounded on original_source's per-strategy snapshot map).
type EngineStrategyState struct {
	StrategyID string
	Portfolio  *ledger.Portfolio
}

// State is the root aggregate (spec.md §3.7). now/seq are inputs to the
// state hash and advance on every event, including no-ops.
type State struct {
	Now         int64
	Seq         uint64
	Halted      bool
	HaltReason  types.HaltReason
	Symbols     map[string]*indicators.Symbol
	Portfolio   *ledger.Portfolio
	Orders      map[string]*Order // keyed by client_id
	Risk        RiskState
	Strategies  map[string]*EngineStrategyState
	Regime      *regime.State

	// AppliedFills is the seen-set of fill_ids already applied to the
	// portfolio (spec.md §4.10, §8 property 6). Not part of the state
	// hash's defined field order (§4.8) — it is bookkeeping to make the
	// reducer idempotent, not observable engine state.
	AppliedFills map[string]bool
}

// New returns an empty engine state seeded with startingCash.
func New(startingCash float64) *State {
	return &State{
		Symbols:      make(map[string]*indicators.Symbol),
		Portfolio:    ledger.New(startingCash),
		Orders:       make(map[string]*Order),
		Strategies:   make(map[string]*EngineStrategyState),
		Regime:       regime.NewState(),
		AppliedFills: make(map[string]bool),
	}
}

// symbol returns (creating if absent) the indicator block for symbol.
func (s *State) symbol(sym string) *indicators.Symbol {
	ind, ok := s.Symbols[sym]
	if !ok {
		ind = indicators.New()
		s.Symbols[sym] = ind
	}
	return ind
}

// markPrices snapshots last_price across all tracked symbols, the input
// the portfolio's equity recomputation and the greed guard both need.
func (s *State) markPrices() map[string]float64 {
	out := make(map[string]float64, len(s.Symbols))
	for sym, ind := range s.Symbols {
		out[sym] = ind.LastPrice
	}
	return out
}

// trackNewOrder records a just-emitted PlaceOrder command as Pending. The
// reference reducer leaves this bookkeeping to the caller; doing it here
// keeps the operational pending-order guard and the order state machine
// meaningful rather than dead code.
func (s *State) trackNewOrder(clientID, symbol string, side types.Side, qty float64) {
	s.Orders[clientID] = &Order{
		ClientID:  clientID,
		Symbol:    symbol,
		Side:      side,
		Qty:       qty,
		Status:    StatusPending,
		CreatedTs: s.Now,
	}
}

// hasPendingOrder reports whether any order for symbol is in Pending.
func (s *State) hasPendingOrder(symbol string) bool {
	for _, o := range s.Orders {
		if o.Symbol == symbol && o.Status == StatusPending {
			return true
		}
	}
	return false
}
