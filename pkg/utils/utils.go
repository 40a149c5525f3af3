// Package utils provides small, dependency-light helpers used by the
// execution package.
package utils

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatSymbol normalizes a trading symbol to BASE/QUOTE form.
func FormatSymbol(symbol string) string {
	symbol = strings.TrimSpace(symbol)
	symbol = strings.ToUpper(symbol)
	symbol = strings.ReplaceAll(symbol, "-", "/")
	symbol = strings.ReplaceAll(symbol, "_", "/")

	if !strings.Contains(symbol, "/") {
		quotes := []string{"USDT", "USDC", "USD", "BTC", "ETH", "BNB"}
		for _, quote := range quotes {
			if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
				base := strings.TrimSuffix(symbol, quote)
				return base + "/" + quote
			}
		}
	}
	return symbol
}

// ParseSymbol splits a normalized BASE/QUOTE symbol.
func ParseSymbol(symbol string) (base, quote string) {
	parts := strings.SplitN(FormatSymbol(symbol), "/", 2)
	if len(parts) != 2 {
		return symbol, ""
	}
	return parts[0], parts[1]
}

// RoundToTickSize rounds a price down to the nearest multiple of tickSize.
func RoundToTickSize(price, tickSize decimal.Decimal) decimal.Decimal {
	if tickSize.IsZero() {
		return price
	}
	return price.Div(tickSize).Floor().Mul(tickSize)
}

// RoundToStepSize rounds a quantity down to the nearest multiple of stepSize.
func RoundToStepSize(qty, stepSize decimal.Decimal) decimal.Decimal {
	if stepSize.IsZero() {
		return qty
	}
	return qty.Div(stepSize).Floor().Mul(stepSize)
}

// ClampDecimal restricts value to [min, max].
func ClampDecimal(value, min, max decimal.Decimal) decimal.Decimal {
	if value.LessThan(min) {
		return min
	}
	if value.GreaterThan(max) {
		return max
	}
	return value
}

// RetryConfig configures exponential backoff with jitter, the retry policy
// spec.md §7 assigns to adapters on transient external failure.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFrac   float64 // fraction of the delay to randomize, e.g. 0.2
}

// DefaultRetryConfig returns a conservative adapter retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		JitterFrac:   0.2,
	}
}

// Retry calls fn until it succeeds or MaxAttempts is reached, sleeping with
// exponential backoff plus jitter between attempts.
func Retry[T any](config RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	var err error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}
		if attempt == config.MaxAttempts {
			break
		}

		jitter := time.Duration(float64(delay) * config.JitterFrac * (rand.Float64()*2 - 1))
		time.Sleep(delay + jitter)

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return result, fmt.Errorf("after %d attempts: %w", config.MaxAttempts, err)
}
