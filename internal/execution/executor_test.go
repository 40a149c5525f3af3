package execution_test

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/uprootiny/arbitragefx-sub000/internal/execution"
	"github.com/uprootiny/arbitragefx-sub000/pkg/types"
)

type recordingBus struct {
	mu     sync.Mutex
	events []types.Event
}

func (b *recordingBus) Publish(e types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) all() []types.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.Event(nil), b.events...)
}

type fakeAdapter struct {
	placeErr error
	orderID  string
	price    float64
}

func (f *fakeAdapter) Place(_ context.Context, order types.PlaceOrder) (string, float64, error) {
	if f.placeErr != nil {
		return "", 0, f.placeErr
	}
	return f.orderID, f.price, nil
}
func (f *fakeAdapter) Cancel(context.Context, types.CancelOrder) error     { return nil }
func (f *fakeAdapter) CancelAll(context.Context, types.CancelAll) error    { return nil }
func (f *fakeAdapter) FetchCandle(context.Context, string) (types.Candle, error) {
	return types.Candle{}, nil
}
func (f *fakeAdapter) FetchAux(context.Context, string) (execution.AuxSnapshot, error) {
	return execution.AuxSnapshot{}, nil
}
func (f *fakeAdapter) Execute(context.Context, types.Command) ([]types.Event, error) { return nil, nil }

func TestExecutorPlaceEmitsAckThenFill(t *testing.T) {
	adapter := &fakeAdapter{orderID: "ORD-1", price: 50000}
	bus := &recordingBus{}
	ex := execution.NewExecutor(zap.NewNop(), adapter, nil, bus, nil, execution.DefaultConfig())

	ex.Submit(context.Background(), types.PlaceOrder{Symbol: "BTCUSDT", ClientID: "buy-BTCUSDT-1", Side: types.SideBuy, Qty: 0.01})

	events := bus.all()
	if len(events) != 2 {
		t.Fatalf("expected ack+fill, got %d events: %+v", len(events), events)
	}
	if _, ok := events[0].(types.OrderAck); !ok {
		t.Fatalf("expected first event to be OrderAck, got %T", events[0])
	}
	fill, ok := events[1].(types.Fill)
	if !ok || fill.Price != 50000 {
		t.Fatalf("expected Fill at 50000, got %+v", events[1])
	}
}

func TestExecutorKillSwitchRejectsBeforeAdapter(t *testing.T) {
	adapter := &fakeAdapter{orderID: "ORD-1", price: 50000}
	bus := &recordingBus{}
	ex := execution.NewExecutor(zap.NewNop(), adapter, nil, bus, nil, execution.DefaultConfig())
	ex.Halt()

	ex.Submit(context.Background(), types.PlaceOrder{Symbol: "BTCUSDT", ClientID: "buy-BTCUSDT-1", Side: types.SideBuy, Qty: 0.01})

	events := bus.all()
	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	reject, ok := events[0].(types.Reject)
	if !ok || reject.Reason != "kill_switch_engaged" {
		t.Fatalf("expected kill-switch reject, got %+v", events[0])
	}
}

func TestExecutorRiskRejectsOversizedOrder(t *testing.T) {
	adapter := &fakeAdapter{orderID: "ORD-1", price: 50000}
	bus := &recordingBus{}
	risk := execution.NewRiskManager(execution.RiskConfig{MaxOrderQty: 1, MaxConsecutiveRejects: 5}, nil)
	ex := execution.NewExecutor(zap.NewNop(), adapter, nil, bus, risk, execution.DefaultConfig())

	ex.Submit(context.Background(), types.PlaceOrder{Symbol: "BTCUSDT", ClientID: "buy-BTCUSDT-1", Side: types.SideBuy, Qty: 5})

	events := bus.all()
	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	if _, ok := events[0].(types.Reject); !ok {
		t.Fatalf("expected a Reject, got %T", events[0])
	}
}

func TestExecutorConsecutiveRejectsTripsKillSwitch(t *testing.T) {
	adapter := &fakeAdapter{placeErr: context.DeadlineExceeded}
	bus := &recordingBus{}
	var tripped bool
	cfg := execution.DefaultConfig()
	cfg.Retry.MaxAttempts = 1
	risk := execution.NewRiskManager(execution.RiskConfig{MaxOrderQty: 10, MaxConsecutiveRejects: 2}, func() { tripped = true })
	ex := execution.NewExecutor(zap.NewNop(), adapter, nil, bus, risk, cfg)

	for i := 0; i < 2; i++ {
		ex.Submit(context.Background(), types.PlaceOrder{Symbol: "BTCUSDT", ClientID: "buy-BTCUSDT-1", Side: types.SideBuy, Qty: 1})
	}

	if !tripped {
		t.Fatal("expected kill switch callback to fire after reaching MaxConsecutiveRejects")
	}
}

func TestExecutorCancelEmitsCancelAck(t *testing.T) {
	adapter := &fakeAdapter{}
	bus := &recordingBus{}
	ex := execution.NewExecutor(zap.NewNop(), adapter, nil, bus, nil, execution.DefaultConfig())

	ex.Submit(context.Background(), types.CancelOrder{Symbol: "BTCUSDT", ClientID: "buy-BTCUSDT-1"})

	events := bus.all()
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	if _, ok := events[0].(types.CancelAck); !ok {
		t.Fatalf("expected CancelAck, got %T", events[0])
	}
}
