package execution

import (
	"fmt"
	"sync"

	"github.com/uprootiny/arbitragefx-sub000/pkg/types"
)

// RiskConfig bounds what the execution boundary will submit to an
// adapter, independent of the core's own ethics guards: these limits
// protect against a misbehaving or compromised venue connection rather
// than against a bad trading decision, which internal/ethics already
// screens before a Command is ever produced.
type RiskConfig struct {
	MaxOrderQty         float64
	MaxDailyVolume      float64
	MaxConsecutiveRejects int
	KillSwitchLossUSD   float64
}

// DefaultRiskConfig returns conservative execution-boundary limits.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxOrderQty:           10,
		MaxDailyVolume:        100_000,
		MaxConsecutiveRejects: 5,
		KillSwitchLossUSD:     1000,
	}
}

// RiskManager is the execution package's own, smaller checkpoint: it sees
// raw PlaceOrder commands and fills after they leave the reducer, and
// will trip the Executor's kill switch independently of anything the
// core decided.
type RiskManager struct {
	cfg RiskConfig

	mu                sync.Mutex
	dailyVolume       float64
	consecutiveRejects int
	realizedLoss      float64

	onKillSwitch func()
}

// NewRiskManager constructs a RiskManager. onKillSwitch, if non-nil, is
// invoked by every RecordReject or RecordRealizedLoss call that finds a
// limit tripped, so it runs again on each such call while the limit stays
// met (e.g. to call Executor.Halt).
func NewRiskManager(cfg RiskConfig, onKillSwitch func()) *RiskManager {
	return &RiskManager{cfg: cfg, onKillSwitch: onKillSwitch}
}

// CheckOrder rejects an order exceeding the boundary's quantity or
// volume limits before it reaches the adapter.
func (rm *RiskManager) CheckOrder(order types.PlaceOrder) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if order.Qty <= 0 {
		return fmt.Errorf("non-positive order quantity %v", order.Qty)
	}
	if order.Qty > rm.cfg.MaxOrderQty {
		return fmt.Errorf("order qty %v exceeds execution-boundary max %v", order.Qty, rm.cfg.MaxOrderQty)
	}
	notional := order.Qty * order.Price
	if rm.cfg.MaxDailyVolume > 0 && rm.dailyVolume+notional > rm.cfg.MaxDailyVolume {
		return fmt.Errorf("order would exceed daily volume cap %v", rm.cfg.MaxDailyVolume)
	}
	return nil
}

// RecordFill updates daily volume tracking and resets the consecutive
// reject counter.
func (rm *RiskManager) RecordFill(fill types.Fill) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.dailyVolume += fill.Qty * fill.Price
	rm.consecutiveRejects = 0
}

// RecordReject increments the consecutive reject streak, tripping the
// kill switch once MaxConsecutiveRejects is reached — a sign the venue
// connection itself is unhealthy, not that any one order was bad.
func (rm *RiskManager) RecordReject() {
	rm.mu.Lock()
	rm.consecutiveRejects++
	trip := rm.consecutiveRejects >= rm.cfg.MaxConsecutiveRejects
	rm.mu.Unlock()
	if trip && rm.onKillSwitch != nil {
		rm.onKillSwitch()
	}
}

// RecordRealizedLoss accumulates realized loss against the kill-switch
// threshold; a positive delta widens realizedLoss, a negative delta
// (profit) narrows it back.
func (rm *RiskManager) RecordRealizedLoss(delta float64) {
	rm.mu.Lock()
	rm.realizedLoss += delta
	trip := rm.cfg.KillSwitchLossUSD > 0 && rm.realizedLoss >= rm.cfg.KillSwitchLossUSD
	rm.mu.Unlock()
	if trip && rm.onKillSwitch != nil {
		rm.onKillSwitch()
	}
}

// ResetDaily clears the rolling daily volume counter; called by the
// engine's day-change system event handler.
func (rm *RiskManager) ResetDaily() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.dailyVolume = 0
}
