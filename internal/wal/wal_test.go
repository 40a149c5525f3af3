package wal_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/uprootiny/arbitragefx-sub000/internal/wal"
)

func tempWalPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.wal")
}

func TestWalRoundtrip(t *testing.T) {
	path := tempWalPath(t)

	w, err := wal.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := w.AppendEntry(wal.Record{
		Operation: wal.OpPlaceOrder, Ts: 1234567890, IntentID: "I-1",
		ParamsHash: "abc123", Symbol: "BTCUSDT", Side: "BUY", Qty: 0.001, Fsync: true,
	}); err != nil {
		t.Fatalf("append place_order: %v", err)
	}
	if err := w.AppendEntry(wal.Record{
		Operation: wal.OpFill, Ts: 1234567891, IntentID: "I-1",
		ParamsHash: "abc123", Price: 50000, Qty: 0.001, Fee: 0.05, Fsync: true,
	}); err != nil {
		t.Fatalf("append fill: %v", err)
	}
	w.Close()

	state, err := wal.Recover(path)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(state.PendingOrders) != 0 {
		t.Fatalf("expected no pending orders (fill completed it), got %d", len(state.PendingOrders))
	}
	if len(state.FillsSinceSnapshot) != 1 || state.FillsSinceSnapshot[0].Price != 50000 {
		t.Fatalf("expected one fill at price 50000, got %+v", state.FillsSinceSnapshot)
	}
}

func TestPerStrategySnapshotRecovery(t *testing.T) {
	path := tempWalPath(t)
	w, _ := wal.Open(path)
	defer w.Close()

	w.AppendEntry(wal.Record{Operation: wal.OpSnapshot, Ts: 1000, StrategyID: "strategy_a",
		Cash: 10000, Position: 0.5, EntryPrice: 50000, Equity: 10500, PnL: 500})
	w.AppendEntry(wal.Record{Operation: wal.OpSnapshot, Ts: 1000, StrategyID: "strategy_b",
		Cash: 8000, Position: -0.3, EntryPrice: 51000, Equity: 7800, PnL: -200})

	state, err := wal.Recover(path)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(state.SnapshotsByStrategy) != 2 {
		t.Fatalf("expected 2 per-strategy snapshots, got %d", len(state.SnapshotsByStrategy))
	}
	a := state.SnapshotsByStrategy["strategy_a"]
	if a.Position != 0.5 || a.PnL != 500 {
		t.Fatalf("strategy_a snapshot corrupted: %+v", a)
	}
	b := state.SnapshotsByStrategy["strategy_b"]
	if b.Position != -0.3 || b.PnL != -200 {
		t.Fatalf("strategy_b snapshot corrupted: %+v", b)
	}
}

func TestFillsAfterSnapshotPreserved(t *testing.T) {
	path := tempWalPath(t)
	w, _ := wal.Open(path)
	defer w.Close()

	w.AppendEntry(wal.Record{Operation: wal.OpFill, Ts: 900, IntentID: "I-old", Price: 49000, Qty: 0.1, Fee: 0.01})
	w.AppendEntry(wal.Record{Operation: wal.OpSnapshot, Ts: 1000, StrategyID: "strat",
		Cash: 10000, Position: 0, EntryPrice: 0, Equity: 10000, PnL: 0})
	w.AppendEntry(wal.Record{Operation: wal.OpFill, Ts: 1100, IntentID: "I-strat-1100", Price: 50000, Qty: 0.05, Fee: 0.005})
	w.AppendEntry(wal.Record{Operation: wal.OpFill, Ts: 1200, IntentID: "I-strat-1200", Price: 50500, Qty: 0.03, Fee: 0.003})

	state, err := wal.Recover(path)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(state.FillsSinceSnapshot) != 2 {
		t.Fatalf("expected 2 fills since snapshot, got %d", len(state.FillsSinceSnapshot))
	}
	if state.FillsSinceSnapshot[0].Price != 50000 || state.FillsSinceSnapshot[1].Price != 50500 {
		t.Fatalf("unexpected fill ordering: %+v", state.FillsSinceSnapshot)
	}
}

func TestPendingOrdersTracked(t *testing.T) {
	path := tempWalPath(t)
	w, _ := wal.Open(path)
	defer w.Close()

	w.AppendEntry(wal.Record{Operation: wal.OpPlaceOrder, Ts: 1000, IntentID: "I-pending",
		Symbol: "BTCUSDT", Side: "BUY", Qty: 0.1})
	w.AppendEntry(wal.Record{Operation: wal.OpPlaceOrder, Ts: 1001, IntentID: "I-filled",
		Symbol: "BTCUSDT", Side: "SELL", Qty: 0.05})
	w.AppendEntry(wal.Record{Operation: wal.OpFill, Ts: 1002, IntentID: "I-filled", Price: 50000, Qty: 0.05, Fee: 0.005})

	state, err := wal.Recover(path)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(state.PendingOrders) != 1 || state.PendingOrders[0].IntentID != "I-pending" {
		t.Fatalf("expected exactly one pending order I-pending, got %+v", state.PendingOrders)
	}
}

func TestRecoveryHashDeterminism(t *testing.T) {
	path := tempWalPath(t)
	w, _ := wal.Open(path)
	defer w.Close()

	w.AppendEntry(wal.Record{Operation: wal.OpPlaceOrder, Ts: 1000, IntentID: "I-1", StrategyID: "s-1",
		ClientOrderID: "CID-1", ParamsHash: "h1", Symbol: "BTCUSDT", Side: "BUY", Qty: 0.1})
	w.AppendEntry(wal.Record{Operation: wal.OpSnapshot, Ts: 1000, StrategyID: "s-1",
		Cash: 1000, Position: 0.1, EntryPrice: 50000, Equity: 1005, PnL: 5})
	w.AppendEntry(wal.Record{Operation: wal.OpFill, Ts: 1001, IntentID: "I-1", ParamsHash: "h1",
		Price: 50000, Qty: 0.1, Fee: 0.01})

	s1, err := wal.Recover(path)
	if err != nil {
		t.Fatalf("recover 1: %v", err)
	}
	s2, err := wal.Recover(path)
	if err != nil {
		t.Fatalf("recover 2: %v", err)
	}
	if wal.RecoveryHash(s1) != wal.RecoveryHash(s2) {
		t.Fatal("expected identical recovery hashes across repeated replays of the same WAL")
	}
}

func TestReplayOfMissingFileIsEmpty(t *testing.T) {
	lines, err := wal.Replay(filepath.Join(os.TempDir(), "does-not-exist-wal-test.log"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected no lines, got %d", len(lines))
	}
}
