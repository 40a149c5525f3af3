package api

import (
	"github.com/shopspring/decimal"

	"github.com/uprootiny/arbitragefx-sub000/pkg/types"
)

// FillMessage is the wire representation of a fill: price/qty/fee cross
// an exchange boundary, so they are carried as shopspring/decimal values
// rather than the reducer's internal float64, avoiding binary-float
// rounding in the JSON a client parses.
type FillMessage struct {
	Ts       int64           `json:"ts"`
	Symbol   string          `json:"symbol"`
	ClientID string          `json:"client_id"`
	OrderID  string          `json:"order_id"`
	FillID   string          `json:"fill_id"`
	Side     string          `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Qty      decimal.Decimal `json:"qty"`
	Fee      decimal.Decimal `json:"fee"`
}

// NewFillMessage converts a reducer-facing types.Fill into its wire form.
func NewFillMessage(f types.Fill) FillMessage {
	return FillMessage{
		Ts: f.Ts, Symbol: f.Symbol, ClientID: f.ClientID, OrderID: f.OrderID, FillID: f.FillID,
		Side:  string(f.Side),
		Price: decimal.NewFromFloat(f.Price).Round(8),
		Qty:   decimal.NewFromFloat(f.Qty).Round(8),
		Fee:   decimal.NewFromFloat(f.Fee).Round(8),
	}
}
