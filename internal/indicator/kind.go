// Package indicator provides the validated, cached indicator-reading layer.
// Raw values come from a Provider; the Cache owns plausibility checks,
// fallback substitution and default policy so an unavailable or absurd value
// never propagates as a silent zero.
package indicator

// Kind identifies one indicator series.
type Kind int

const (
	KindMAFast Kind = iota // short moving average
	KindMAMedium
	KindMASlow
	KindMALong // long-horizon trend filter average
	KindRSI
	KindMACDLine
	KindMACDSignal
	KindMACDHist
	KindATR
	KindADX
	KindStochK
	KindStochD
	KindBandUpper
	KindBandMiddle
	KindBandLower
)

func (k Kind) String() string {
	switch k {
	case KindMAFast:
		return "ma_fast"
	case KindMAMedium:
		return "ma_medium"
	case KindMASlow:
		return "ma_slow"
	case KindMALong:
		return "ma_long"
	case KindRSI:
		return "rsi"
	case KindMACDLine:
		return "macd_line"
	case KindMACDSignal:
		return "macd_signal"
	case KindMACDHist:
		return "macd_hist"
	case KindATR:
		return "atr"
	case KindADX:
		return "adx"
	case KindStochK:
		return "stoch_k"
	case KindStochD:
		return "stoch_d"
	case KindBandUpper:
		return "band_upper"
	case KindBandMiddle:
		return "band_middle"
	case KindBandLower:
		return "band_lower"
	default:
		return "unknown"
	}
}

// Oscillator reports whether the kind lives on a fixed 0..100 scale.
func (k Kind) Oscillator() bool {
	switch k {
	case KindRSI, KindADX, KindStochK, KindStochD:
		return true
	}
	return false
}

// PriceLevel reports whether the kind is an absolute price level.
func (k Kind) PriceLevel() bool {
	switch k {
	case KindMAFast, KindMAMedium, KindMASlow, KindMALong,
		KindBandUpper, KindBandMiddle, KindBandLower:
		return true
	}
	return false
}

// Volatility reports whether the kind is eligible for timeframe fallback
// substitution.
func (k Kind) Volatility() bool {
	return k == KindATR
}
