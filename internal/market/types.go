// Package market holds candle data types, the provider boundary to external
// market-data sources, and the in-memory candle store the engine reads from.
package market

import (
	"strings"
	"time"
)

// Candle represents one OHLCV bar.
type Candle struct {
	OpenTime  int64   `json:"openTime"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"closeTime"`
}

// Bullish reports whether the candle closed above its open.
func (c Candle) Bullish() bool { return c.Close > c.Open }

// Body returns the absolute body size.
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Range returns high minus low.
func (c Candle) Range() float64 { return c.High - c.Low }

// UpperWick returns the length of the upper shadow.
func (c Candle) UpperWick() float64 {
	top := c.Open
	if c.Close > top {
		top = c.Close
	}
	return c.High - top
}

// LowerWick returns the length of the lower shadow.
func (c Candle) LowerWick() float64 {
	bottom := c.Open
	if c.Close < bottom {
		bottom = c.Close
	}
	return bottom - c.Low
}

// Timeframe represents different chart timeframes.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// AllTimeframes is the fixed ordered set the engine evaluates, lowest first.
var AllTimeframes = []Timeframe{TF1m, TF5m, TF15m, TF30m, TF1h, TF4h, TF1d}

// Duration returns the bar duration of the timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF30m:
		return 30 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// CacheTTL returns how long fetched candles for this timeframe stay fresh.
func (tf Timeframe) CacheTTL() time.Duration {
	switch tf {
	case TF1m:
		return 30 * time.Second
	case TF5m:
		return 2 * time.Minute
	case TF15m:
		return 5 * time.Minute
	case TF30m:
		return 10 * time.Minute
	case TF1h:
		return 30 * time.Minute
	case TF4h:
		return 2 * time.Hour
	case TF1d:
		return 12 * time.Hour
	default:
		return time.Minute
	}
}

// AssetClass partitions instruments for plausibility bounds and defaults.
type AssetClass int

const (
	AssetCrypto AssetClass = iota
	AssetForex
	AssetMetal
)

func (a AssetClass) String() string {
	switch a {
	case AssetForex:
		return "FOREX"
	case AssetMetal:
		return "METAL"
	default:
		return "CRYPTO"
	}
}

var forexCodes = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true,
	"CHF": true, "AUD": true, "NZD": true, "CAD": true,
}

// ClassifySymbol derives the asset class from the instrument name.
// Metals first (XAU/XAG prefixes), then six-letter currency pairs, crypto
// otherwise.
func ClassifySymbol(symbol string) AssetClass {
	s := strings.ToUpper(symbol)
	if strings.HasPrefix(s, "XAU") || strings.HasPrefix(s, "XAG") {
		return AssetMetal
	}
	if len(s) == 6 && forexCodes[s[:3]] && forexCodes[s[3:]] {
		return AssetForex
	}
	return AssetCrypto
}
