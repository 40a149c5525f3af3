package execution

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/uprootiny/arbitragefx-sub000/pkg/types"
)

// MarketView is the minimal slice of live market state a paper adapter
// needs to cost an order: last price, top-of-book, and a volatility
// estimate. internal/engine's State satisfies this trivially, but the
// interface is kept adapter-side so execution never imports engine.
type MarketView interface {
	LastPrice(symbol string) (float64, bool)
	TopOfBook(symbol string) (bid, ask float64, ok bool)
	Volatility(symbol string) float64
}

// CostModelConfig parameterizes the simulated commission, spread, and
// market-impact costs a fill incurs. Mirrors the reference module's
// Almgren-Chriss-based execution model (permanent + temporary + linear
// impact terms), trimmed to float64 since paper fills feed straight into
// the reducer's float64 portfolio math.
type CostModelConfig struct {
	CommissionRate   float64 // fraction of notional, e.g. 0.001 = 10 bps
	CommissionMin    float64
	BaseSlippageBps  float64
	VolatilityFactor float64
	BaseSpreadBps    float64
	PermanentImpact  float64 // gamma
	TemporaryImpact  float64 // eta
}

// DefaultCostModelConfig returns the crypto-perpetual cost profile: wider
// spreads and higher slippage sensitivity than an equities venue would
// have.
func DefaultCostModelConfig() CostModelConfig {
	return CostModelConfig{
		CommissionRate:   0.001,
		CommissionMin:    0,
		BaseSlippageBps:  10,
		VolatilityFactor: 1.0,
		BaseSpreadBps:    20,
		PermanentImpact:  0.2,
		TemporaryImpact:  0.1,
	}
}

// PaperAdapter simulates venue fills against a MarketView rather than
// placing real orders, for backtests and dry runs. It implements Adapter.
type PaperAdapter struct {
	market MarketView
	cfg    CostModelConfig

	mu       sync.Mutex
	orders   map[string]types.PlaceOrder // clientID -> order; Place fills immediately and adds nothing here
	seq      atomic.Int64
}

// NewPaperAdapter constructs a simulated adapter over market.
func NewPaperAdapter(market MarketView, cfg CostModelConfig) *PaperAdapter {
	return &PaperAdapter{market: market, cfg: cfg, orders: make(map[string]types.PlaceOrder)}
}

// Place fills immediately at a cost-adjusted price: market orders assume
// crossing the spread, limit orders use the quoted price as the base.
func (p *PaperAdapter) Place(_ context.Context, order types.PlaceOrder) (string, float64, error) {
	bid, ask, haveBook := p.market.TopOfBook(order.Symbol)
	last, haveLast := p.market.LastPrice(order.Symbol)
	if !haveBook && !haveLast {
		return "", 0, fmt.Errorf("no market data for %s", order.Symbol)
	}

	base := last
	if order.Price > 0 {
		base = order.Price
	}
	if haveBook && order.Price <= 0 {
		if order.Side == types.SideBuy && ask > 0 {
			base = ask
		} else if order.Side == types.SideSell && bid > 0 {
			base = bid
		}
	}

	vol := p.market.Volatility(order.Symbol)
	costRatio := p.costRatio(order.Qty, vol)

	fillPrice := base * (1 + order.Side.Sign()*costRatio)

	p.mu.Lock()
	orderID := fmt.Sprintf("paper-%d", p.seq.Add(1))
	p.mu.Unlock()

	return orderID, fillPrice, nil
}

// costRatio combines slippage and Almgren-Chriss-style market impact into
// a single fractional price adjustment, without the reference model's
// commission (charged separately, see Commission) or MEV terms (no DEX venue is
// in scope here).
func (p *PaperAdapter) costRatio(qty, volatility float64) float64 {
	slippageBps := p.cfg.BaseSlippageBps * (1 + volatility*p.cfg.VolatilityFactor)
	spreadHalfBps := p.cfg.BaseSpreadBps / 2

	impact := p.cfg.PermanentImpact*math.Sqrt(math.Max(qty, 0)) + p.cfg.TemporaryImpact*qty

	return (slippageBps+spreadHalfBps)/10000 + impact/10000
}

// Commission returns the simulated fee for a notional trade, quantized to
// 8 decimal places the way a real venue's fee ledger would round rather
// than carrying raw float64 error forward into the fill.
func (p *PaperAdapter) Commission(notional float64) float64 {
	fee := notional * p.cfg.CommissionRate
	if fee < p.cfg.CommissionMin {
		fee = p.cfg.CommissionMin
	}
	return quantize(fee)
}

// quantize rounds a float64 to 8 decimal places via shopspring/decimal,
// the exact fixed-point representation a venue's wire format uses, rather
// than trusting float64's own rounding at the execution boundary.
func quantize(amount float64) float64 {
	d := decimal.NewFromFloat(amount).Round(8)
	out, _ := d.Float64()
	return out
}

// Cancel and CancelAll only delete matching entries from the orders map:
// paper fills are immediate and Place records nothing there, so there is
// nothing in flight to cancel.
func (p *PaperAdapter) Cancel(_ context.Context, cancel types.CancelOrder) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.orders, cancel.ClientID)
	return nil
}

func (p *PaperAdapter) CancelAll(_ context.Context, cancel types.CancelAll) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, o := range p.orders {
		if cancel.Symbol == "" || o.Symbol == cancel.Symbol {
			delete(p.orders, id)
		}
	}
	return nil
}

// FetchCandle is unimplemented for the paper adapter: candles arrive
// through the event bus from a historical feed, not polled from a venue.
func (p *PaperAdapter) FetchCandle(_ context.Context, symbol string) (types.Candle, error) {
	return types.Candle{}, fmt.Errorf("paper adapter does not poll candles for %s", symbol)
}

// FetchAux returns a zero snapshot: the paper adapter has no funding or
// liquidation feed of its own, those are injected directly as events in
// backtests.
func (p *PaperAdapter) FetchAux(_ context.Context, symbol string) (AuxSnapshot, error) {
	return AuxSnapshot{Symbol: symbol}, nil
}

// Execute dispatches a Command to the matching capability method and
// reports results as Fill/OrderAck/CancelAck events, mirroring what
// Executor.Submit does for a live adapter, for callers that want a
// single synchronous call instead of the async bus-publishing path.
func (p *PaperAdapter) Execute(ctx context.Context, cmd types.Command) ([]types.Event, error) {
	switch c := cmd.(type) {
	case types.PlaceOrder:
		orderID, price, err := p.Place(ctx, c)
		if err != nil {
			return nil, err
		}
		notional := price * c.Qty
		return []types.Event{
			types.OrderAck{ClientID: c.ClientID, OrderID: orderID},
			types.Fill{
				Symbol: c.Symbol, ClientID: c.ClientID, OrderID: orderID,
				FillID: fmt.Sprintf("fill-%s", orderID), Price: price, Qty: c.Qty,
				Fee: p.Commission(notional), Side: c.Side,
			},
		}, nil
	case types.CancelOrder:
		if err := p.Cancel(ctx, c); err != nil {
			return nil, err
		}
		return []types.Event{types.CancelAck{ClientID: c.ClientID}}, nil
	case types.CancelAll:
		return nil, p.CancelAll(ctx, c)
	default:
		return nil, fmt.Errorf("paper adapter cannot execute command kind %s", cmd.Kind())
	}
}
