// Package ledger implements the portfolio fill-application law: the single
// place that money moves when a fill is applied, so the reducer core never
// has to reason about weighted-average entries or realized PnL itself.
package ledger

import (
	"math"

	"github.com/uprootiny/arbitragefx-sub000/pkg/types"
)

// Position is one symbol's open exposure.
type Position struct {
	Qty   float64
	Entry float64
}

// Portfolio tracks cash, positions, and realized/unrealized PnL.
type Portfolio struct {
	Cash        float64
	Equity      float64
	EquityPeak  float64
	RealizedPnL float64
	Positions   map[string]*Position
}

// New returns a portfolio seeded with startingCash.
func New(startingCash float64) *Portfolio {
	return &Portfolio{
		Cash:       startingCash,
		Equity:     startingCash,
		EquityPeak: startingCash,
		Positions:  make(map[string]*Position),
	}
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

// ApplyFill applies a single fill to the portfolio following spec.md §4.3's
// fill-application law exactly: realized PnL is recognized only on the
// closing/flipping portion of a fill, cash always decreases by notional
// plus fee regardless of side, and the entry price follows a weighted
// average on same-direction adds, is held on a same-direction reduce, and
// is reset to the fill price on a flip.
//
// prices is the full mark map (symbol -> last price) used to recompute
// equity across the whole book, since a single fill can move the realized
// PnL baseline this symbol's unrealized contribution is measured against.
func (p *Portfolio) ApplyFill(symbol string, side types.Side, qty, price, fee float64, prices map[string]float64) (realized float64) {
	pos, ok := p.Positions[symbol]
	if !ok {
		pos = &Position{}
		p.Positions[symbol] = pos
	}

	prevQty := pos.Qty
	signedQty := qty * side.Sign()
	newQty := prevQty + signedQty

	if prevQty != 0 && sign(prevQty) != sign(signedQty) {
		closeQty := math.Min(math.Abs(prevQty), math.Abs(signedQty))
		dir := sign(prevQty)
		realized = (price - pos.Entry) * closeQty * dir
	}

	p.Cash -= price*math.Abs(signedQty) + fee

	switch {
	case prevQty == 0:
		pos.Entry = price
	case sign(prevQty) == sign(newQty) && math.Abs(newQty) > math.Abs(prevQty):
		pos.Entry = (pos.Entry*math.Abs(prevQty) + price*math.Abs(signedQty)) / (math.Abs(prevQty) + math.Abs(signedQty))
	case sign(prevQty) == sign(newQty):
		// reducing, not flipping: entry unchanged
	case newQty != 0:
		pos.Entry = price
	default:
		newQty = 0
		pos.Entry = 0
	}
	pos.Qty = newQty

	p.recomputeEquity(prices)
	p.RealizedPnL += realized
	return realized
}

// recomputeEquity recomputes equity from cash and marked positions and
// advances the equity peak; it never allows the peak to fall.
func (p *Portfolio) recomputeEquity(prices map[string]float64) {
	equity := p.Cash
	for sym, pos := range p.Positions {
		equity += pos.Qty * prices[sym]
	}
	p.Equity = equity
	if equity > p.EquityPeak {
		p.EquityPeak = equity
	}
}

// MarkToMarket recomputes equity without applying a fill, e.g. after a
// Trade or Candle event moves a symbol's last price.
func (p *Portfolio) MarkToMarket(prices map[string]float64) {
	p.recomputeEquity(prices)
}

// TotalExposure returns the gross notional across all open positions at
// the given mark prices, used by the over-extension guard.
func (p *Portfolio) TotalExposure(prices map[string]float64) float64 {
	total := 0.0
	for sym, pos := range p.Positions {
		total += math.Abs(pos.Qty) * prices[sym]
	}
	return total
}
