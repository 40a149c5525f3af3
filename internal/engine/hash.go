package engine

import (
	"math"
	"sort"
)

// fnvOffset/fnvPrime are the 64-bit FNV-1a constants. Go has no bit-identical
// equivalent of Rust's std::hash::DefaultHasher (that hasher is explicitly
// unspecified across versions/platforms), so the state hash here is defined
// as FNV-1a over a fixed little-endian byte encoding of the quantized
// fields below, in the field order spec.md §4.8 specifies. This is stable
// across Go versions and platforms, which is the only property the
// contract actually requires (byte-identical hashes between two runs of
// the same process, not bit-parity with the original implementation).
const (
	fnvOffset uint64 = 14695981039346656037
	fnvPrime  uint64 = 1099511628211
)

type hasher struct{ h uint64 }

func newHasher() *hasher { return &hasher{h: fnvOffset} }

func (hh *hasher) writeByte(b byte) {
	hh.h ^= uint64(b)
	hh.h *= fnvPrime
}

func (hh *hasher) writeUint64(v uint64) {
	for i := 0; i < 8; i++ {
		hh.writeByte(byte(v >> (8 * i)))
	}
}

func (hh *hasher) writeInt64(v int64) { hh.writeUint64(uint64(v)) }

func (hh *hasher) writeUint32(v uint32) { hh.writeUint64(uint64(v)) }

func (hh *hasher) writeBool(b bool) {
	if b {
		hh.writeByte(1)
	} else {
		hh.writeByte(0)
	}
}

func (hh *hasher) writeString(s string) {
	for i := 0; i < len(s); i++ {
		hh.writeByte(s[i])
	}
	hh.writeByte(0)
}

// quantize matches spec.md §4.8's floor(x * 1e8) signed-integer scale.
func quantize(x float64) int64 {
	return int64(math.Floor(x * 1e8))
}

// StateHash computes the 64-bit digest over quantized state, in the field
// order spec.md §4.8 requires: now/seq/halted, quantized cash/equity,
// positions sorted by symbol, open orders sorted by client_id, then the
// risk counters.
func StateHash(s *State) uint64 {
	hh := newHasher()

	hh.writeInt64(s.Now)
	hh.writeUint64(s.Seq)
	hh.writeBool(s.Halted)

	hh.writeInt64(quantize(s.Portfolio.Cash))
	hh.writeInt64(quantize(s.Portfolio.Equity))

	symbols := make([]string, 0, len(s.Portfolio.Positions))
	for sym := range s.Portfolio.Positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		pos := s.Portfolio.Positions[sym]
		hh.writeString(sym)
		hh.writeInt64(quantize(pos.Qty))
		hh.writeInt64(quantize(pos.Entry))
	}

	clientIDs := make([]string, 0, len(s.Orders))
	for id := range s.Orders {
		clientIDs = append(clientIDs, id)
	}
	sort.Strings(clientIDs)
	for _, id := range clientIDs {
		hh.writeString(id)
	}

	hh.writeUint32(s.Risk.TradesToday)
	hh.writeInt64(quantize(s.Risk.DailyPnL))
	hh.writeUint32(s.Risk.ConsecutiveErrors)

	return hh.h
}
