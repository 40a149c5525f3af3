// Package execution bridges the reducer's Command stream to external
// venues. It is deliberately narrow: the core never calls an exchange
// directly, it only ever produces Commands, and this package is the only
// place in the module allowed to block on network I/O or retry.
//
// Dispatch is a fixed capability set — place, cancel, cancel_all,
// fetch_candle, fetch_aux, execute — rather than the rich multi-method
// adapter surface (Connect/GetOrderBook/GetBalance/...) a full exchange
// SDK would expose. Anything a venue needs beyond that set belongs inside
// the adapter implementation, not in this package's interface.
package execution

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/uprootiny/arbitragefx-sub000/internal/wal"
	"github.com/uprootiny/arbitragefx-sub000/internal/workers"
	"github.com/uprootiny/arbitragefx-sub000/pkg/types"
	"github.com/uprootiny/arbitragefx-sub000/pkg/utils"
)

// AuxSnapshot is the funding/liquidation/open-interest data fetch_aux
// returns, from which the executor synthesizes the Funding/Liquidation
// market events the reducer expects.
type AuxSnapshot struct {
	Symbol         string
	FundingRate    float64
	NextFundingTs  int64
	OpenInterest   float64
	RecentLiqQty   float64
	RecentLiqSide  types.Side
	RecentLiqPrice float64
}

// Adapter is the narrow capability set every venue integration must
// implement. Place and Cancel may suspend on network I/O. The Executor
// calls Place, Cancel and CancelAll directly; Execute is a separate
// command-to-events entrypoint that the Executor does not call.
type Adapter interface {
	Place(ctx context.Context, order types.PlaceOrder) (orderID string, fillPrice float64, err error)
	Cancel(ctx context.Context, cancel types.CancelOrder) error
	CancelAll(ctx context.Context, cancel types.CancelAll) error
	FetchCandle(ctx context.Context, symbol string) (types.Candle, error)
	FetchAux(ctx context.Context, symbol string) (AuxSnapshot, error)
	Execute(ctx context.Context, cmd types.Command) ([]types.Event, error)
}

// Publisher is the minimal surface of internal/events.Bus the executor
// needs; kept as an interface to avoid a direct dependency and to let
// tests substitute a recorder.
type Publisher interface {
	Publish(event types.Event)
}

// Config tunes retry behavior. Values come from
// pkg/utils.RetryConfig's adapter retry policy rather than duplicating it.
type Config struct {
	Retry utils.RetryConfig
}

// DefaultConfig returns the module's standard adapter retry policy.
func DefaultConfig() Config {
	return Config{Retry: utils.DefaultRetryConfig()}
}

// Executor drives one Adapter, logging every place/cancel intent to a Wal
// before submission and publishing the resulting exec events back onto
// the bus the reducer reads from.
type Executor struct {
	logger  *zap.Logger
	adapter Adapter
	log     *wal.Wal
	bus     Publisher
	risk    *RiskManager
	cfg     Config

	mu         sync.Mutex
	killSwitch atomic.Bool
	seq        atomic.Int64
}

// NewExecutor wires an adapter to its WAL and outbound bus. risk may be
// nil, in which case every order passes unchecked.
func NewExecutor(logger *zap.Logger, adapter Adapter, log *wal.Wal, bus Publisher, risk *RiskManager, cfg Config) *Executor {
	return &Executor{
		logger:  logger.Named("execution"),
		adapter: adapter,
		log:     log,
		bus:     bus,
		risk:    risk,
		cfg:     cfg,
	}
}

// Halt trips the kill switch: every subsequent PlaceOrder is rejected
// without reaching the adapter, until Resume is called.
func (ex *Executor) Halt() { ex.killSwitch.Store(true) }

// Resume clears a previously tripped kill switch.
func (ex *Executor) Resume() { ex.killSwitch.Store(false) }

// Submit dispatches one reducer Command, the sole entrypoint callers use;
// it is the "execute" member of the capability set, internally routing to
// place/cancel/cancel_all.
func (ex *Executor) Submit(ctx context.Context, cmd types.Command) {
	switch c := cmd.(type) {
	case types.PlaceOrder:
		ex.place(ctx, c)
	case types.CancelOrder:
		ex.cancel(ctx, c)
	case types.CancelAll:
		ex.cancelAll(ctx, c)
	case types.HaltCommand:
		ex.logger.Warn("halt command received", zap.String("reason", string(c.Reason)))
	case types.LogCommand:
		ex.logCommand(c)
	default:
		ex.logger.Error("unrecognized command", zap.String("kind", string(cmd.Kind())))
	}
}

func (ex *Executor) logCommand(c types.LogCommand) {
	switch c.Level {
	case types.LogDebug:
		ex.logger.Debug(c.Msg)
	case types.LogWarn:
		ex.logger.Warn(c.Msg)
	case types.LogError:
		ex.logger.Error(c.Msg)
	default:
		ex.logger.Info(c.Msg)
	}
}

func (ex *Executor) place(ctx context.Context, order types.PlaceOrder) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if ex.killSwitch.Load() {
		ex.bus.Publish(types.Reject{ClientID: order.ClientID, Reason: "kill_switch_engaged"})
		return
	}

	if ex.risk != nil {
		if err := ex.risk.CheckOrder(order); err != nil {
			ex.logger.Warn("order rejected by execution-boundary risk check",
				zap.String("client_id", order.ClientID), zap.Error(err))
			ex.bus.Publish(types.Reject{ClientID: order.ClientID, Reason: err.Error()})
			return
		}
	}

	if ex.log != nil {
		ex.log.AppendEntry(wal.Record{
			Operation: wal.OpPlaceOrder,
			Ts:        0,
			IntentID:  order.ClientID,
			Symbol:    order.Symbol,
			Side:      string(order.Side),
			Qty:       order.Qty,
			Fsync:     true,
		})
	}

	type placeResult struct {
		orderID   string
		fillPrice float64
	}
	res, err := utils.Retry(ex.cfg.Retry, func() (placeResult, error) {
		id, price, err := ex.adapter.Place(ctx, order)
		return placeResult{id, price}, err
	})
	if err != nil {
		ex.logger.Error("adapter place failed", zap.String("client_id", order.ClientID), zap.Error(err))
		ex.bus.Publish(types.Reject{ClientID: order.ClientID, Reason: err.Error()})
		if ex.risk != nil {
			ex.risk.RecordReject()
		}
		return
	}

	ex.bus.Publish(types.OrderAck{ClientID: order.ClientID, OrderID: res.orderID})

	fillID := fmt.Sprintf("fill-%s-%d", order.ClientID, ex.seq.Add(1))
	fill := types.Fill{
		Symbol:   order.Symbol,
		ClientID: order.ClientID,
		OrderID:  res.orderID,
		FillID:   fillID,
		Price:    res.fillPrice,
		Qty:      order.Qty,
		Side:     order.Side,
	}
	if ex.log != nil {
		ex.log.AppendEntry(wal.Record{
			Operation: wal.OpFill,
			Ts:        0,
			IntentID:  order.ClientID,
			Price:     fill.Price,
			Qty:       fill.Qty,
			Fsync:     true,
		})
	}
	if ex.risk != nil {
		ex.risk.RecordFill(fill)
	}
	ex.bus.Publish(fill)
}

func (ex *Executor) cancel(ctx context.Context, cancel types.CancelOrder) {
	if ex.log != nil {
		ex.log.AppendEntry(wal.Record{Operation: wal.OpCancel, Ts: 0, IntentID: cancel.ClientID, Symbol: cancel.Symbol, Fsync: true})
	}
	if _, err := utils.Retry(ex.cfg.Retry, func() (struct{}, error) {
		return struct{}{}, ex.adapter.Cancel(ctx, cancel)
	}); err != nil {
		ex.logger.Error("adapter cancel failed", zap.String("client_id", cancel.ClientID), zap.Error(err))
		return
	}
	ex.bus.Publish(types.CancelAck{ClientID: cancel.ClientID})
}

func (ex *Executor) cancelAll(ctx context.Context, cancel types.CancelAll) {
	if err := ex.adapter.CancelAll(ctx, cancel); err != nil {
		ex.logger.Error("adapter cancel_all failed", zap.String("symbol", cancel.Symbol), zap.Error(err))
	}
}

// PollAux fetches one symbol's auxiliary market data and translates it
// into the Funding/Liquidation events the reducer's indicator update path
// consumes. Callers schedule this on a ticker; it is not invoked by
// Submit, since aux data isn't a reducer command response.
func (ex *Executor) PollAux(ctx context.Context, ts int64, symbol string) error {
	snap, err := ex.adapter.FetchAux(ctx, symbol)
	if err != nil {
		return err
	}
	ex.bus.Publish(types.Funding{Ts: ts, Symbol: symbol, Rate: snap.FundingRate, NextTs: snap.NextFundingTs})
	if snap.RecentLiqQty > 0 {
		ex.bus.Publish(types.Liquidation{
			Ts: ts, Symbol: symbol, Side: snap.RecentLiqSide, Qty: snap.RecentLiqQty, Price: snap.RecentLiqPrice,
		})
	}
	return nil
}

// PollCandle fetches the latest candle for symbol and republishes it as a
// market event, for adapters polled rather than pushed to.
func (ex *Executor) PollCandle(ctx context.Context, symbol string) error {
	candle, err := ex.adapter.FetchCandle(ctx, symbol)
	if err != nil {
		return err
	}
	ex.bus.Publish(candle)
	return nil
}

// PollAllAux fans PollAux out across symbols concurrently through a
// workers.Pool: this is the one leg of the system where the reducer's
// single-threaded ordering guarantee doesn't apply, since each symbol's
// aux fetch is an independent suspend-on-I/O call and nothing here
// touches reducer state directly — results only ever reach the reducer
// by being published back onto the (single-consumer) event bus.
func (ex *Executor) PollAllAux(ctx context.Context, ts int64, symbols []string) []error {
	pool := workers.NewPool(ex.logger, workers.DefaultPoolConfig("aux-poll"))
	pool.Start()
	defer pool.Stop()

	bp := workers.NewBatchProcessor(pool, len(symbols))
	items := make([]interface{}, len(symbols))
	for i, s := range symbols {
		items[i] = s
	}

	var mu sync.Mutex
	var errs []error
	err := bp.ProcessBatch(items, func(item interface{}) error {
		symbol := item.(string)
		if pollErr := ex.PollAux(ctx, ts, symbol); pollErr != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("%s: %w", symbol, pollErr))
			mu.Unlock()
			return pollErr
		}
		return nil
	})
	if err != nil && len(errs) == 0 {
		errs = append(errs, err)
	}
	return errs
}
