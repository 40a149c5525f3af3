// Package regime classifies how much of current price action is reflexive
// narrative versus grounded flow, and scales allowable position size down
// as narrative dominance rises.
package regime

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Regime is the narrative-dominance classification.
type Regime string

const (
	Grounded        Regime = "grounded"
	Uncertain       Regime = "uncertain"
	NarrativeDriven Regime = "narrative_driven"
	Reflexive       Regime = "reflexive"
)

// PositionMultiplier returns the scalar entries should be sized by.
func (r Regime) PositionMultiplier() float64 {
	switch r {
	case Grounded:
		return 1.0
	case Uncertain:
		return 0.7
	case NarrativeDriven:
		return 0.3
	case Reflexive:
		return 0.0
	default:
		return 1.0
	}
}

// ShouldReduceExposure reports whether this regime calls for trimming risk
// beyond simply scaling new entries down.
func (r Regime) ShouldReduceExposure() bool {
	return r == NarrativeDriven || r == Reflexive
}

// DefensiveAction is an advisory response to a regime, grounded on the
// original detector's defensive_actions() table. The actions are advisory
// only: no caller in this module consumes them, and sizing and order
// cancellation do not depend on them.
type DefensiveAction string

const (
	ActionWidenStops  DefensiveAction = "widen_stops"
	ActionReduceSize  DefensiveAction = "reduce_size"
	ActionHaltEntries DefensiveAction = "halt_entries"
	ActionFlatten     DefensiveAction = "flatten"
)

// DefensiveActions returns the advisory actions associated with a regime.
func DefensiveActions(r Regime) []DefensiveAction {
	switch r {
	case Uncertain:
		return []DefensiveAction{ActionWidenStops}
	case NarrativeDriven:
		return []DefensiveAction{ActionWidenStops, ActionReduceSize}
	case Reflexive:
		return []DefensiveAction{ActionHaltEntries, ActionFlatten}
	default:
		return nil
	}
}

func classify(score float64) Regime {
	switch {
	case score < 0.25:
		return Grounded
	case score < 0.50:
		return Uncertain
	case score < 0.75:
		return NarrativeDriven
	default:
		return Reflexive
	}
}

func clip01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Indicators are the per-candle narrative inputs the score is computed from.
type Indicators struct {
	FundingZScore     float64
	LiquidationScore  float64
	PVDivergence      float64
	VolatilityRatio   float64 // current_vol / baseline_vol
	OIChangeRate      float64
}

// Score computes the weighted narrative_score in [0, 1]; weights sum to 1.
func Score(ind Indicators) float64 {
	return 0.25*clip01(math.Abs(ind.FundingZScore)/3.0) +
		0.20*clip01(ind.LiquidationScore/2.0) +
		0.15*clip01(math.Abs(ind.PVDivergence)) +
		0.20*clip01(math.Max(0, (ind.VolatilityRatio-1.0)/2.0)) +
		0.20*clip01(math.Abs(ind.OIChangeRate)/0.1)
}

// staleAfter is how long without an update before a regime is marked stale.
const staleAfter = 5 * time.Minute

// State is the persistent per-engine regime state (spec.md §3.6).
type State struct {
	Current          Regime
	NarrativeScore   float64
	PositionMult     float64
	LastUpdateTsMs   int64
	IsStale          bool
	BarsInRegime     int64
}

// NewState returns a freshly-initialized regime state, Grounded by default.
func NewState() *State {
	return &State{Current: Grounded, PositionMult: 1.0}
}

// EffectiveMultiplier is 0.5 whenever the regime hasn't been refreshed
// recently, regardless of the last known classification, and the
// classification's own multiplier otherwise.
func (s *State) EffectiveMultiplier() float64 {
	if s.IsStale {
		return 0.5
	}
	return s.PositionMult
}

// Update recomputes the regime classification for a new candle's
// indicators, logging a transition when the classification changes.
// nowMs must be non-decreasing across calls.
func (s *State) Update(nowMs int64, ind Indicators, logger *zap.Logger) {
	score := Score(ind)
	next := classify(score)

	if next != s.Current {
		if logger != nil {
			logger.Info("regime transition",
				zap.String("from", string(s.Current)),
				zap.String("to", string(next)),
				zap.Float64("narrative_score", score))
		}
		s.BarsInRegime = 0
	} else {
		s.BarsInRegime++
	}

	s.Current = next
	s.NarrativeScore = score
	s.PositionMult = next.PositionMultiplier()
	s.LastUpdateTsMs = nowMs
	s.IsStale = false
}

// CheckStaleness marks the regime stale when it hasn't refreshed recently.
func (s *State) CheckStaleness(nowMs int64) {
	if nowMs-s.LastUpdateTsMs > staleAfter.Milliseconds() {
		s.IsStale = true
	}
}

// Detector wraps regime State with a history buffer and mutex, following
// the reference module's mutex-guarded detector convention, for ambient
// observability callers (e.g. the API layer) that want read access without
// taking the engine's own state lock.
type Detector struct {
	logger *zap.Logger

	mu      sync.RWMutex
	current *State
	history []Regime
	maxHist int
}

// DefaultHistorySize bounds how many past classifications are retained.
const DefaultHistorySize = 500

// NewDetector constructs an observability-facing wrapper around a shared
// regime State.
func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{
		logger:  logger.Named("regime"),
		current: NewState(),
		maxHist: DefaultHistorySize,
	}
}

// Observe records a classification transition produced by the engine's own
// authoritative regime.State.Update call.
func (d *Detector) Observe(s *State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = s
	d.history = append(d.history, s.Current)
	if len(d.history) > d.maxHist {
		d.history = d.history[len(d.history)-d.maxHist:]
	}
}

// Current returns a copy of the last observed regime state.
func (d *Detector) Current() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return *d.current
}

// History returns a copy of the recent classification history.
func (d *Detector) History() []Regime {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Regime, len(d.history))
	copy(out, d.history)
	return out
}
