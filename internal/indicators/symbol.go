// Package indicators maintains the per-symbol rolling statistics the
// reducer core consults on every candle: EMA pair, Welford variance, RSI
// gain/loss EMAs, session high/low, and the derived scores the signal
// generator and regime detector read from.
package indicators

import "math"

// rsiAlpha is the EMA smoothing factor for a 14-period RSI.
const rsiAlpha = 1.0 / 14.0

// Symbol holds one symbol's rolling indicator state.
type Symbol struct {
	LastPrice     float64
	LastTs        int64
	PrevClose     float64
	PrevPrevClose float64

	EMAFast float64
	EMASlow float64

	// Welford online variance accumulators over closes.
	PriceN    uint64
	PriceMean float64
	PriceM2   float64

	SessionHigh float64
	SessionLow  float64
	sessionInit bool

	GainEMA float64
	LossEMA float64

	CandleCount uint64
	LastTradeTs int64

	FundingRate      float64
	LiquidationScore float64
	Spread           float64

	Volatility float64
}

// New returns a zeroed symbol state.
func New() *Symbol {
	return &Symbol{}
}

// OnCandle folds a new close into every rolling statistic, in the exact
// order required for prev_close/prev_prev_close to reflect the candle
// immediately before this one: history is shifted before last_price is
// overwritten.
func (s *Symbol) OnCandle(ts int64, close float64, alphaFast, alphaSlow float64) {
	s.PrevPrevClose = s.PrevClose
	s.PrevClose = s.LastPrice

	s.LastPrice = close
	s.LastTs = ts
	s.CandleCount++

	if !s.sessionInit {
		s.SessionHigh = close
		s.SessionLow = close
		s.sessionInit = true
	} else {
		s.SessionHigh = math.Max(s.SessionHigh, close)
		s.SessionLow = math.Min(s.SessionLow, close)
	}

	if s.EMAFast == 0 {
		s.EMAFast = close
		s.EMASlow = close
	} else {
		s.EMAFast = alphaFast*close + (1-alphaFast)*s.EMAFast
		s.EMASlow = alphaSlow*close + (1-alphaSlow)*s.EMASlow
	}

	s.PriceN++
	delta := close - s.PriceMean
	s.PriceMean += delta / float64(s.PriceN)
	delta2 := close - s.PriceMean
	s.PriceM2 += delta * delta2

	if s.PriceN > 1 {
		s.Volatility = math.Sqrt(s.PriceM2 / (float64(s.PriceN) - 1))
	}

	if s.PrevClose > 0 {
		change := close - s.PrevClose
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else if change < 0 {
			loss = -change
		}
		if s.GainEMA == 0 && s.LossEMA == 0 {
			s.GainEMA = gain
			s.LossEMA = loss
		} else {
			s.GainEMA = rsiAlpha*gain + (1-rsiAlpha)*s.GainEMA
			s.LossEMA = rsiAlpha*loss + (1-rsiAlpha)*s.LossEMA
		}
	}
}

// OnTrade overwrites the last observed price outside of candle boundaries.
func (s *Symbol) OnTrade(ts int64, price float64) {
	s.LastPrice = price
	s.LastTradeTs = ts
}

// OnFunding stores the latest funding rate.
func (s *Symbol) OnFunding(rate float64) {
	s.FundingRate = rate
}

// OnLiquidation folds a liquidation print into the decaying score.
func (s *Symbol) OnLiquidation(qty, price float64) {
	s.LiquidationScore += qty * price / 100000.0
}

// DecayLiquidation applies the 5%-per-timer-tick decay.
func (s *Symbol) DecayLiquidation() {
	s.LiquidationScore *= 0.95
}

// SetSpread records the current book spread.
func (s *Symbol) SetSpread(bid, ask float64) {
	if bid != 0 {
		s.Spread = (ask - bid) / bid
	}
	s.LastPrice = (bid + ask) / 2
}

// ZMomentum is the z-score of the EMA spread: a lagging trend estimate.
func (s *Symbol) ZMomentum() float64 {
	if s.Volatility > 0 {
		return (s.EMAFast - s.EMASlow) / s.Volatility
	}
	return 0
}

// RSI is the Wilder-style relative strength index derived from the gain/
// loss EMAs, in [0, 100].
func (s *Symbol) RSI() float64 {
	if s.LossEMA < 1e-9 {
		if s.GainEMA > 1e-9 {
			return 100
		}
		return 50
	}
	return 100 - (100 / (1 + s.GainEMA/s.LossEMA))
}

// ZMeanDeviation is the z-score of the last price against the running
// Welford mean; negative means the price sits below the mean.
func (s *Symbol) ZMeanDeviation() float64 {
	if s.Volatility > 0 && s.PriceN > 5 {
		return (s.LastPrice - s.PriceMean) / s.Volatility
	}
	return 0
}

// RangePosition locates the last price within the session's high/low range,
// in [0, 1]; 0.5 when the range is degenerate.
func (s *Symbol) RangePosition() float64 {
	rng := s.SessionHigh - s.SessionLow
	if rng > 0 {
		return (s.LastPrice - s.SessionLow) / rng
	}
	return 0.5
}

// MomentumAcceleration is the discrete second derivative of rate-of-change;
// negative values mean momentum is decelerating (an exhaustion signal).
func (s *Symbol) MomentumAcceleration() float64 {
	if s.PrevClose > 0 && s.PrevPrevClose > 0 {
		rocNow := (s.LastPrice - s.PrevClose) / s.PrevClose
		rocPrev := (s.PrevClose - s.PrevPrevClose) / s.PrevPrevClose
		return rocNow - rocPrev
	}
	return 0
}

// MeanReversionScore composites RSI exhaustion, mean deviation, and funding
// pressure into a single signed score: positive favors buying an oversold,
// funding-crowded-short move; negative favors selling an overbought,
// funding-crowded-long move.
func (s *Symbol) MeanReversionScore() float64 {
	rsi := s.RSI()
	var rsiSignal float64
	switch {
	case rsi < 30:
		rsiSignal = (30 - rsi) / 30
	case rsi > 70:
		rsiSignal = -(rsi - 70) / 30
	}

	meanSignal := -s.ZMeanDeviation() * 0.2
	fundingSignal := -s.FundingRate * 500.0

	return rsiSignal*0.5 + meanSignal*0.3 + fundingSignal*0.2
}

// IsStale reports whether the symbol hasn't seen a candle in maxAgeMs.
func (s *Symbol) IsStale(now int64, maxAgeMs int64) bool {
	if now < s.LastTs {
		return false
	}
	return now-s.LastTs > maxAgeMs
}
