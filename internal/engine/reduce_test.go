package engine_test

import (
	"math"
	"testing"

	"github.com/uprootiny/arbitragefx-sub000/internal/engine"
	"github.com/uprootiny/arbitragefx-sub000/internal/indicators"
	"github.com/uprootiny/arbitragefx-sub000/internal/ledger"
	"github.com/uprootiny/arbitragefx-sub000/pkg/types"
)

func candle(ts int64, close float64) types.Candle {
	return types.Candle{Ts: ts, Symbol: "BTCUSDT", Open: close, High: close + 50, Low: close - 50, Close: close, Volume: 100}
}

func TestReduceCandleUpdatesLastPriceAndHashesNonZero(t *testing.T) {
	s := engine.New(10000)
	cfg := engine.Default()

	_, hash := engine.Reduce(s, candle(1000, 50050), cfg)

	if s.Symbols["BTCUSDT"].LastPrice != 50050 {
		t.Fatalf("expected last_price 50050, got %v", s.Symbols["BTCUSDT"].LastPrice)
	}
	if hash == 0 {
		t.Fatal("expected nonzero state hash")
	}
}

func TestReduceFillUpdatesPortfolioAndLogs(t *testing.T) {
	s := engine.New(10000)
	cfg := engine.Default()

	fill := types.Fill{Ts: 1000, Symbol: "BTCUSDT", ClientID: "test-1", OrderID: "ex-1", FillID: "f-1",
		Price: 50000, Qty: 0.001, Fee: 0.05, Side: types.SideBuy}
	cmds, _ := engine.Reduce(s, fill, cfg)

	if _, ok := s.Portfolio.Positions["BTCUSDT"]; !ok {
		t.Fatal("expected BTCUSDT position to exist after fill")
	}
	if len(cmds) == 0 {
		t.Fatal("expected a log command")
	}
}

func TestReduceHaltsOnConsecutiveErrors(t *testing.T) {
	s := engine.New(10000)
	cfg := engine.Default()
	cfg.MaxConsecutiveErrors = 3

	for i := 0; i < 3; i++ {
		reject := types.Reject{Ts: 1000 + int64(i), ClientID: "test-x", Reason: "test"}
		engine.Reduce(s, reject, cfg)
	}

	if !s.Halted {
		t.Fatal("expected engine to be halted after 3 consecutive rejects")
	}
	if s.HaltReason != types.HaltMaxErrors {
		t.Fatalf("expected halt reason max_errors, got %v", s.HaltReason)
	}
}

func TestReduceRegimeUpdatesOnCandle(t *testing.T) {
	s := engine.New(10000)
	cfg := engine.Default()

	if s.Regime.PositionMult != 1.0 {
		t.Fatalf("expected initial position_mult 1.0, got %v", s.Regime.PositionMult)
	}

	engine.Reduce(s, candle(1000, 50050), cfg)

	if s.Regime.LastUpdateTsMs == 0 {
		t.Fatal("expected regime last_update_ts_ms to advance")
	}
	if s.Regime.IsStale {
		t.Fatal("expected regime not stale immediately after an update")
	}
}

func TestReduceWarmupPreventsTrading(t *testing.T) {
	s := engine.New(10000)
	cfg := engine.Default()
	cfg.EntryThreshold = 0.1

	for i := int64(0); i < 5; i++ {
		cmds, _ := engine.Reduce(s, candle(i*1000, 50050), cfg)
		if hasPlaceOrder(cmds) {
			t.Fatal("should not trade with insufficient warmup")
		}
	}
}

func TestReduceNaturalRegimeStaysGroundedOnQuietMarket(t *testing.T) {
	s := engine.New(10000)
	cfg := engine.Default()

	for i := int64(0); i < 15; i++ {
		engine.Reduce(s, candle(i*1000, 50000), cfg)
	}

	if s.Regime.Current != "grounded" {
		t.Fatalf("expected grounded regime on a flat, quiet market, got %v", s.Regime.Current)
	}
	if s.Regime.EffectiveMultiplier() != 1.0 {
		t.Fatalf("expected full position multiplier in a grounded regime, got %v", s.Regime.EffectiveMultiplier())
	}
}

func hasPlaceOrder(cmds []types.Command) bool {
	for _, c := range cmds {
		if c.Kind() == types.CommandPlaceOrder {
			return true
		}
	}
	return false
}

func TestReduceTakeProfitProducesSellOrder(t *testing.T) {
	s := engine.New(10000)
	cfg := engine.Default()
	cfg.TakeProfitPct = 0.004

	s.Portfolio.Positions["BTCUSDT"] = &ledger.Position{Qty: 0.01, Entry: 50000}
	seed := indicators.New()
	seed.LastPrice = 50250
	seed.CandleCount = 20
	s.Symbols["BTCUSDT"] = seed

	cmds, _ := engine.Reduce(s, candle(1000, 50250), cfg)

	found := false
	for _, c := range cmds {
		if po, ok := c.(types.PlaceOrder); ok {
			found = true
			if po.Side != types.SideSell {
				t.Fatalf("expected sell to close long, got %v", po.Side)
			}
		}
	}
	if !found {
		t.Fatal("expected a take-profit PlaceOrder command")
	}
}

func TestReduceStopLossProducesSellOrder(t *testing.T) {
	s := engine.New(10000)
	cfg := engine.Default()
	cfg.StopLossPct = 0.003

	s.Portfolio.Positions["BTCUSDT"] = &ledger.Position{Qty: 0.01, Entry: 50000}
	seed := indicators.New()
	seed.LastPrice = 49800
	seed.CandleCount = 20
	s.Symbols["BTCUSDT"] = seed

	cmds, _ := engine.Reduce(s, candle(1000, 49800), cfg)

	found := false
	for _, c := range cmds {
		if po, ok := c.(types.PlaceOrder); ok {
			found = true
			if po.Side != types.SideSell {
				t.Fatalf("expected sell to close long, got %v", po.Side)
			}
		}
	}
	if !found {
		t.Fatal("expected a stop-loss PlaceOrder command")
	}
}

func TestReduceIsDeterministicAcrossReplay(t *testing.T) {
	events := []types.Event{
		candle(1000, 50050),
		candle(2000, 50100),
		types.Fill{Ts: 2500, Symbol: "BTCUSDT", ClientID: "c-1", Price: 50100, Qty: 0.001, Fee: 0.01, Side: types.SideBuy},
		candle(3000, 50200),
	}

	hashOf := func() uint64 {
		s := engine.New(10000)
		cfg := engine.Default()
		var last uint64
		for _, e := range events {
			_, last = engine.Reduce(s, e, cfg)
		}
		return last
	}

	h1 := hashOf()
	h2 := hashOf()
	if h1 != h2 {
		t.Fatalf("expected identical replay hashes, got %d != %d", h1, h2)
	}
}

func TestReduceFillIsIdempotentOnDuplicateFillID(t *testing.T) {
	s := engine.New(10000)
	cfg := engine.Default()

	fill := types.Fill{Ts: 1000, Symbol: "BTCUSDT", ClientID: "c-1", OrderID: "o-1", FillID: "f-1",
		Price: 50000, Qty: 0.001, Fee: 0.05, Side: types.SideBuy}

	engine.Reduce(s, fill, cfg)
	cashAfterFirst := s.Portfolio.Cash
	qtyAfterFirst := s.Portfolio.Positions["BTCUSDT"].Qty

	cmds, _ := engine.Reduce(s, fill, cfg)

	if len(cmds) != 0 {
		t.Fatalf("expected zero commands on duplicate fill_id, got %v", cmds)
	}
	if s.Portfolio.Cash != cashAfterFirst {
		t.Fatalf("expected cash unchanged on duplicate fill_id: %v vs %v", s.Portfolio.Cash, cashAfterFirst)
	}
	if s.Portfolio.Positions["BTCUSDT"].Qty != qtyAfterFirst {
		t.Fatalf("expected position qty unchanged on duplicate fill_id: %v vs %v",
			s.Portfolio.Positions["BTCUSDT"].Qty, qtyAfterFirst)
	}
}

func TestReduceFillPanicsOnNonFinitePrice(t *testing.T) {
	s := engine.New(10000)
	cfg := engine.Default()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on non-finite fill price")
		}
	}()

	engine.Reduce(s, types.Fill{Ts: 1000, Symbol: "BTCUSDT", ClientID: "c-1", FillID: "f-1",
		Price: math.NaN(), Qty: 0.001, Side: types.SideBuy}, cfg)
}

func TestReduceFillPanicsOnQuantityExceedingOrder(t *testing.T) {
	s := engine.New(10000)
	cfg := engine.Default()
	s.Orders["c-1"] = &engine.Order{
		ClientID: "c-1", Symbol: "BTCUSDT", Side: types.SideBuy, Qty: 0.001, Status: engine.StatusAcked,
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on fill quantity exceeding ordered quantity")
		}
	}()

	engine.Reduce(s, types.Fill{Ts: 1000, Symbol: "BTCUSDT", ClientID: "c-1", FillID: "f-1",
		Price: 50000, Qty: 1.0, Side: types.SideBuy}, cfg)
}
