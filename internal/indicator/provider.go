package indicator

import (
	"context"
	"fmt"

	"trading-fusion-engine/internal/market"
)

// Provider is the external indicator source. Value may fail or return a
// sentinel; the Cache owns all degradation policy.
type Provider interface {
	Value(ctx context.Context, symbol string, tf market.Timeframe, kind Kind, shift int) (float64, error)
}

// Periods configures the series lengths the compute provider uses.
type Periods struct {
	MAFast      int     `json:"ma_fast"`
	MAMedium    int     `json:"ma_medium"`
	MASlow      int     `json:"ma_slow"`
	MALong      int     `json:"ma_long"`
	RSI         int     `json:"rsi"`
	MACDFast    int     `json:"macd_fast"`
	MACDSlow    int     `json:"macd_slow"`
	MACDSignal  int     `json:"macd_signal"`
	ATR         int     `json:"atr"`
	ADX         int     `json:"adx"`
	StochK      int     `json:"stoch_k"`
	StochD      int     `json:"stoch_d"`
	BandPeriod  int     `json:"band_period"`
	BandStdDevs float64 `json:"band_std_devs"`
}

// DefaultPeriods are the conventional settings.
func DefaultPeriods() Periods {
	return Periods{
		MAFast:      9,
		MAMedium:    21,
		MASlow:      50,
		MALong:      200,
		RSI:         14,
		MACDFast:    12,
		MACDSlow:    26,
		MACDSignal:  9,
		ATR:         14,
		ADX:         14,
		StochK:      14,
		StochD:      3,
		BandPeriod:  20,
		BandStdDevs: 2.0,
	}
}

// ComputeProvider derives indicator values from provider candles. It stands in
// for an exchange- or platform-supplied indicator feed and is the only place
// in the repository that runs primitive indicator math.
type ComputeProvider struct {
	candles market.Provider
	periods Periods
	history int
}

// NewComputeProvider creates a candle-backed indicator provider.
func NewComputeProvider(candles market.Provider, periods Periods) *ComputeProvider {
	history := periods.MALong + 10
	if history < 260 {
		history = 260
	}
	return &ComputeProvider{
		candles: candles,
		periods: periods,
		history: history,
	}
}

// Value computes the requested reading at the given bar shift (0 = current
// bar, 1 = last closed bar, ...).
func (p *ComputeProvider) Value(ctx context.Context, symbol string, tf market.Timeframe, kind Kind, shift int) (float64, error) {
	if shift < 0 {
		return 0, fmt.Errorf("negative shift %d", shift)
	}

	candles, err := p.candles.Candles(ctx, symbol, tf, p.history+shift)
	if err != nil {
		return 0, err
	}
	if len(candles) <= shift {
		return 0, fmt.Errorf("insufficient history for %s %s shift %d", symbol, tf, shift)
	}
	if shift > 0 {
		candles = candles[:len(candles)-shift]
	}

	switch kind {
	case KindMAFast:
		return EMA(candles, p.periods.MAFast), nil
	case KindMAMedium:
		return EMA(candles, p.periods.MAMedium), nil
	case KindMASlow:
		return EMA(candles, p.periods.MASlow), nil
	case KindMALong:
		return EMA(candles, p.periods.MALong), nil
	case KindRSI:
		return RSI(candles, p.periods.RSI), nil
	case KindMACDLine:
		return MACD(candles, p.periods.MACDFast, p.periods.MACDSlow, p.periods.MACDSignal).Line, nil
	case KindMACDSignal:
		return MACD(candles, p.periods.MACDFast, p.periods.MACDSlow, p.periods.MACDSignal).Signal, nil
	case KindMACDHist:
		return MACD(candles, p.periods.MACDFast, p.periods.MACDSlow, p.periods.MACDSignal).Histogram, nil
	case KindATR:
		return ATR(candles, p.periods.ATR), nil
	case KindADX:
		return ADX(candles, p.periods.ADX), nil
	case KindStochK:
		return StochasticOscillator(candles, p.periods.StochK, p.periods.StochD).K, nil
	case KindStochD:
		return StochasticOscillator(candles, p.periods.StochK, p.periods.StochD).D, nil
	case KindBandUpper:
		return BollingerBands(candles, p.periods.BandPeriod, p.periods.BandStdDevs).Upper, nil
	case KindBandMiddle:
		return BollingerBands(candles, p.periods.BandPeriod, p.periods.BandStdDevs).Middle, nil
	case KindBandLower:
		return BollingerBands(candles, p.periods.BandPeriod, p.periods.BandStdDevs).Lower, nil
	default:
		return 0, fmt.Errorf("unknown indicator kind %d", kind)
	}
}
