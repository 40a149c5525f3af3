package signal_test

import (
	"testing"

	"github.com/uprootiny/arbitragefx-sub000/internal/signal"
	"github.com/uprootiny/arbitragefx-sub000/pkg/types"
)

func cfg() signal.Config {
	return signal.Config{
		EntryThreshold: 0.3,
		ExitThreshold:  0.3,
		PositionSize:   0.01,
		TakeProfitPct:  0.004,
		StopLossPct:    0.003,
	}
}

func TestTakeProfitExit(t *testing.T) {
	pos := &signal.PositionView{Qty: 0.01, Entry: 50000}
	in := signal.Inputs{LastPrice: 50300} // +0.6% move
	d := signal.Evaluate(cfg(), in, pos, 0)
	if !d.Should || d.Side != types.SideSell || d.Qty != 0.01 {
		t.Fatalf("expected take-profit sell of 0.01, got %+v", d)
	}
}

func TestStopLossExit(t *testing.T) {
	pos := &signal.PositionView{Qty: 0.01, Entry: 50000}
	in := signal.Inputs{LastPrice: 49750} // -0.5% move
	d := signal.Evaluate(cfg(), in, pos, 0)
	if !d.Should || d.Side != types.SideSell {
		t.Fatalf("expected stop-loss sell, got %+v", d)
	}
}

func TestShortTakeProfitBuysToClose(t *testing.T) {
	// Exercise the short-side mirror of take-profit to confirm sign
	// handling.
	pos := &signal.PositionView{Qty: -0.01, Entry: 50000}
	in := signal.Inputs{LastPrice: 49800} // price fell, short profits: move_pct = +0.4%
	d := signal.Evaluate(cfg(), in, pos, 0)
	if !d.Should || d.Side != types.SideBuy {
		t.Fatalf("expected short take-profit buy-to-close, got %+v", d)
	}
}

func TestHoldWhenNoExitCondition(t *testing.T) {
	pos := &signal.PositionView{Qty: 0.01, Entry: 50000}
	in := signal.Inputs{LastPrice: 50010, Score: 0}
	d := signal.Evaluate(cfg(), in, pos, 0)
	if d.Should {
		t.Fatalf("expected hold, got %+v", d)
	}
}

func TestEntryRequiresAllThreeConfirmations(t *testing.T) {
	// Score alone is not enough.
	d := signal.Evaluate(cfg(), signal.Inputs{Score: 0.5, RSI: 50, Acceleration: 0}, nil, 0.01)
	if d.Should {
		t.Fatalf("expected no entry without RSI/acceleration confirmation, got %+v", d)
	}

	d = signal.Evaluate(cfg(), signal.Inputs{Score: 0.5, RSI: 30, Acceleration: 0.001}, nil, 0.01)
	if !d.Should || d.Side != types.SideBuy {
		t.Fatalf("expected buy entry with full confirmation, got %+v", d)
	}
}

func TestShortEntryRequiresAllThreeConfirmations(t *testing.T) {
	d := signal.Evaluate(cfg(), signal.Inputs{Score: -0.5, RSI: 70, Acceleration: -0.001}, nil, 0.01)
	if !d.Should || d.Side != types.SideSell {
		t.Fatalf("expected sell entry with full confirmation, got %+v", d)
	}
}

func TestEntryUsesAdjustedSizeNotRawSize(t *testing.T) {
	d := signal.Evaluate(cfg(), signal.Inputs{Score: 0.5, RSI: 30, Acceleration: 0.001}, nil, 0.003)
	if !d.Should || d.Qty != 0.003 {
		t.Fatalf("expected entry sized at adjusted_size 0.003, got %+v", d)
	}
}

func TestPreconditionsHoldRequiresTenCandles(t *testing.T) {
	if signal.PreconditionsHold(9, 0.01, 0.01) {
		t.Fatal("expected preconditions to fail below 10 candles")
	}
	if !signal.PreconditionsHold(10, 0.01, 0.01) {
		t.Fatal("expected preconditions to hold at 10 candles with full size")
	}
}

func TestPreconditionsHoldSizeFloor(t *testing.T) {
	if signal.PreconditionsHold(20, 0.01, 0.0005) {
		t.Fatal("expected preconditions to fail when adjusted size is below 10% of position size")
	}
	if !signal.PreconditionsHold(20, 0.01, 0.001) {
		t.Fatal("expected preconditions to hold exactly at the 10% floor")
	}
}
