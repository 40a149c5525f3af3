// Package wal is the write-ahead log and recovery path: every command the
// engine hands to the execution layer is appended as a newline-delimited
// JSON record before it is submitted, so a crash between submission and
// acknowledgement can be resolved deterministically on restart.
package wal

import (
	"bufio"
	"encoding/json"
	"os"
	"sort"
)

// Operation tags which fields of Record are meaningful.
type Operation string

const (
	OpPlaceOrder Operation = "place_order"
	OpFill       Operation = "fill"
	OpCancel     Operation = "cancel"
	OpSnapshot   Operation = "snapshot"
)

// Record is the single on-disk entry shape, one operation's fields
// populated per line, following the reference WAL's flat-tagged-struct
// convention rather than a sum type (Go has no serde-style tagged enum).
type Record struct {
	Operation Operation `json:"operation"`

	Ts int64 `json:"ts"`

	IntentID      string `json:"intent_id,omitempty"`
	StrategyID    string `json:"strategy_id,omitempty"`
	ClientOrderID string `json:"client_order_id,omitempty"`
	ParamsHash    string `json:"params_hash,omitempty"`
	Symbol        string `json:"symbol,omitempty"`
	Side          string `json:"side,omitempty"`
	Qty           float64 `json:"qty,omitempty"`
	Fsync         bool    `json:"fsync,omitempty"`

	Price float64 `json:"price,omitempty"`
	Fee   float64 `json:"fee,omitempty"`

	Cash       float64 `json:"cash,omitempty"`
	Position   float64 `json:"position,omitempty"`
	EntryPrice float64 `json:"entry_price,omitempty"`
	Equity     float64 `json:"equity,omitempty"`
	PnL        float64 `json:"pnl,omitempty"`
}

// Wal is an append-only file handle kept open for the engine process's
// lifetime.
type Wal struct {
	file *os.File
	path string
}

// Open creates path if absent and positions for append.
func Open(path string) (*Wal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &Wal{file: f, path: path}, nil
}

// Close releases the underlying file handle.
func (w *Wal) Close() error { return w.file.Close() }

// AppendEntry serializes rec and appends it as one line. When rec.Fsync is
// set, the write is flushed to stable storage before returning.
func (w *Wal) AppendEntry(rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	if _, err := w.file.Write(line); err != nil {
		return err
	}
	if rec.Fsync {
		return w.file.Sync()
	}
	return nil
}

// WriteSnapshot appends a per-strategy portfolio snapshot.
func (w *Wal) WriteSnapshot(ts int64, strategyID string, cash, position, entryPrice, equity, pnl float64) error {
	return w.AppendEntry(Record{
		Operation:  OpSnapshot,
		Ts:         ts,
		StrategyID: strategyID,
		Cash:       cash,
		Position:   position,
		EntryPrice: entryPrice,
		Equity:     equity,
		PnL:        pnl,
	})
}

// Truncate discards the WAL's contents after a successful checkpoint.
func (w *Wal) Truncate() error {
	if err := w.file.Truncate(0); err != nil {
		return err
	}
	_, err := w.file.Seek(0, 0)
	return err
}

// Replay returns every line of path's WAL, or an empty slice if the file
// doesn't exist yet.
func Replay(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// PendingOrder is one order recovery observed as placed but not yet
// resolved by a matching Fill or Cancel.
type PendingOrder struct {
	IntentID      string
	StrategyID    string
	ClientOrderID string
	Symbol        string
	Side          string
	Qty           float64
	Ts            int64
}

// SnapshotData is one strategy's last checkpointed portfolio state.
type SnapshotData struct {
	Ts         int64
	StrategyID string
	Cash       float64
	Position   float64
	EntryPrice float64
	Equity     float64
	PnL        float64
}

// FillData is one fill observed since the most recent snapshot.
type FillData struct {
	Ts       int64
	IntentID string
	Price    float64
	Qty      float64
	Fee      float64
}

// RecoveryState is the result of replaying a WAL to reconstruct engine
// state after a restart: per-strategy snapshots, unresolved orders, and
// the fills that happened after the last snapshot (for replay forward).
type RecoveryState struct {
	PendingOrders      []PendingOrder
	SnapshotsByStrategy map[string]SnapshotData
	FillsSinceSnapshot []FillData
}

// Recover replays path and reconstructs RecoveryState. A Snapshot clears
// fills_since_snapshot unconditionally across all strategies — the
// reference implementation's documented simplification rather than
// filtering per-strategy, which this build preserves rather than silently
// tightening.
func Recover(path string) (RecoveryState, error) {
	lines, err := Replay(path)
	if err != nil {
		return RecoveryState{}, err
	}

	state := RecoveryState{SnapshotsByStrategy: make(map[string]SnapshotData)}
	completed := make(map[string]bool)

	for _, line := range lines {
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}

		switch rec.Operation {
		case OpPlaceOrder:
			state.PendingOrders = append(state.PendingOrders, PendingOrder{
				IntentID:      rec.IntentID,
				StrategyID:    rec.StrategyID,
				ClientOrderID: rec.ClientOrderID,
				Symbol:        rec.Symbol,
				Side:          rec.Side,
				Qty:           rec.Qty,
				Ts:            rec.Ts,
			})

		case OpFill:
			completed[rec.IntentID] = true
			state.FillsSinceSnapshot = append(state.FillsSinceSnapshot, FillData{
				Ts: rec.Ts, IntentID: rec.IntentID, Price: rec.Price, Qty: rec.Qty, Fee: rec.Fee,
			})

		case OpCancel:
			completed[rec.IntentID] = true

		case OpSnapshot:
			state.SnapshotsByStrategy[rec.StrategyID] = SnapshotData{
				Ts: rec.Ts, StrategyID: rec.StrategyID, Cash: rec.Cash, Position: rec.Position,
				EntryPrice: rec.EntryPrice, Equity: rec.Equity, PnL: rec.PnL,
			}
			state.FillsSinceSnapshot = nil
		}
	}

	remaining := state.PendingOrders[:0]
	for _, o := range state.PendingOrders {
		if !completed[o.IntentID] {
			remaining = append(remaining, o)
		}
	}
	state.PendingOrders = remaining

	return state, nil
}

// quantize mirrors internal/engine.StateHash's 1e8 fixed-point scale, kept
// independent here since the WAL's recovery hash has no dependency on the
// reducer's State type.
func quantize(x float64) int64 { return int64(x * 1e8) }

// RecoveryHash is a content-addressed digest of a RecoveryState: sorted by
// intent_id for pending orders and by strategy_id for snapshots, so two
// replays of the same WAL always agree regardless of map iteration order.
func RecoveryHash(s RecoveryState) uint64 {
	h := fnvOffset

	pending := append([]PendingOrder(nil), s.PendingOrders...)
	sort.Slice(pending, func(i, j int) bool { return pending[i].IntentID < pending[j].IntentID })
	for _, p := range pending {
		h = mix(h, p.IntentID)
		h = mix(h, p.StrategyID)
		h = mix(h, p.ClientOrderID)
		h = mix(h, p.Symbol)
		h = mix(h, p.Side)
		h = mixInt(h, quantize(p.Qty))
		h = mixInt(h, p.Ts)
	}

	snaps := make([]SnapshotData, 0, len(s.SnapshotsByStrategy))
	for _, snap := range s.SnapshotsByStrategy {
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].StrategyID < snaps[j].StrategyID })
	for _, snap := range snaps {
		h = mix(h, snap.StrategyID)
		h = mixInt(h, snap.Ts)
		h = mixInt(h, quantize(snap.Cash))
		h = mixInt(h, quantize(snap.Position))
		h = mixInt(h, quantize(snap.EntryPrice))
		h = mixInt(h, quantize(snap.Equity))
		h = mixInt(h, quantize(snap.PnL))
	}

	fills := append([]FillData(nil), s.FillsSinceSnapshot...)
	sort.Slice(fills, func(i, j int) bool { return fills[i].Ts < fills[j].Ts })
	for _, f := range fills {
		h = mix(h, f.IntentID)
		h = mixInt(h, f.Ts)
		h = mixInt(h, quantize(f.Price))
		h = mixInt(h, quantize(f.Qty))
		h = mixInt(h, quantize(f.Fee))
	}

	return h
}

const (
	fnvOffset uint64 = 14695981039346656037
	fnvPrime  uint64 = 1099511628211
)

func mix(h uint64, s string) uint64 {
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime
	}
	h ^= 0xff
	h *= fnvPrime
	return h
}

func mixInt(h uint64, v int64) uint64 {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		h ^= (u >> (8 * i)) & 0xff
		h *= fnvPrime
	}
	return h
}
