package scorers

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"trading-fusion-engine/internal/indicator"
	"trading-fusion-engine/internal/logging"
	"trading-fusion-engine/internal/market"
	"trading-fusion-engine/internal/signal"
)

// seriesMarket serves one candle series regardless of timeframe plus a fixed
// tick, for scorers that read price structure alongside indicator values.
type seriesMarket struct {
	series []market.Candle
	tick   float64
}

func (m *seriesMarket) Candles(_ context.Context, _ string, _ market.Timeframe, limit int) ([]market.Candle, error) {
	if len(m.series) == 0 {
		return nil, fmt.Errorf("no candles")
	}
	if limit < len(m.series) {
		return m.series[len(m.series)-limit:], nil
	}
	return m.series, nil
}

func (m *seriesMarket) TickPrice(context.Context, string) (float64, error) {
	return m.tick, nil
}

func flatCandles(n int, closePrice float64) []market.Candle {
	bars := make([]market.Candle, n)
	for i := range bars {
		bars[i] = market.Candle{
			Open:  closePrice,
			High:  closePrice + 0.5,
			Low:   closePrice - 0.5,
			Close: closePrice,
		}
	}
	return bars
}

func trendOscFixture(values map[string]float64, candles []market.Candle) *TrendOscScorer {
	p := &shiftProvider{values: values}
	mkt := &seriesMarket{series: candles, tick: 100}
	cache := indicator.NewCache("BTCUSDT", p, mkt, time.Minute, logging.Nop())
	return NewTrendOscScorer("BTCUSDT", DefaultConfig(), cache, mkt)
}

func TestClassifyEvent(t *testing.T) {
	cases := []struct {
		prevLine, prevSig, line, sigLine float64
		want                             crossEvent
	}{
		{0.1, 0.2, 0.3, 0.2, crossBullish},
		{0.3, 0.2, 0.1, 0.2, crossBearish},
		{-0.1, 0.3, 0.05, 0.3, zeroCrossUp},
		{0.1, 0.3, -0.1, 0.0, zeroCrossDown},
		{0.2, 0.1, 0.3, 0.1, crossNone},
		// A signal cross outranks the simultaneous zero-line cross.
		{0.1, -0.1, -0.05, -0.02, crossBearish},
	}
	for _, c := range cases {
		got := classifyEvent(c.prevLine, c.prevSig, c.line, c.sigLine)
		if got != c.want {
			t.Errorf("classifyEvent(%.2f, %.2f, %.2f, %.2f) = %d, want %d",
				c.prevLine, c.prevSig, c.line, c.sigLine, got, c.want)
		}
	}
}

func TestTrendOscSignalCross(t *testing.T) {
	s := trendOscFixture(map[string]float64{
		skey(indicator.KindMACDLine, 0):   0.5,
		skey(indicator.KindMACDSignal, 0): 0.2,
		skey(indicator.KindMACDHist, 0):   0.3,
		skey(indicator.KindMACDLine, 1):   0.1,
		skey(indicator.KindMACDSignal, 1): 0.2,
		skey(indicator.KindMACDHist, 1):   0.2,
		skey(indicator.KindMACDHist, 2):   0.1,
		skey(indicator.KindRSI, 0):        60,
		skey(indicator.KindADX, 0):        30,
	}, flatCandles(2, 100))

	sig := s.Evaluate(context.Background(), 0, nil)
	if sig.Bias != signal.BiasBullish {
		t.Fatalf("line crossing above signal should read bullish, got %s", sig.Bias)
	}
	if !strings.Contains(sig.Detail, "[signal cross]") {
		t.Errorf("detail should mark the cross override, got %q", sig.Detail)
	}

	// delta 36, zero distance 40, histogram 24, cross bonus 15
	wantScore := 0.30*36 + 0.20*40 + 0.20*24 + 15
	if math.Abs(sig.Score-wantScore) > 1e-9 {
		t.Errorf("expected score %.2f, got %.2f", wantScore, sig.Score)
	}
	// half the score, cross bonus, slope consistency, zero alignment,
	// momentum and trend-strength agreement
	wantConf := 0.5*wantScore + 15 + 10 + 5 + 5 + 5
	if math.Abs(sig.Confidence-wantConf) > 1e-9 {
		t.Errorf("expected confidence %.2f, got %.2f", wantConf, sig.Confidence)
	}
}

// With the line below its signal the plain position read is bearish; the
// zero-line crossing flips the bias bullish anyway.
func TestTrendOscZeroCrossOverridesPositionBias(t *testing.T) {
	s := trendOscFixture(map[string]float64{
		skey(indicator.KindMACDLine, 0):   0.05,
		skey(indicator.KindMACDSignal, 0): 0.3,
		skey(indicator.KindMACDHist, 0):   -0.25,
		skey(indicator.KindMACDLine, 1):   -0.1,
		skey(indicator.KindMACDSignal, 1): 0.3,
		skey(indicator.KindMACDHist, 1):   -0.2,
		skey(indicator.KindMACDHist, 2):   -0.1,
		skey(indicator.KindRSI, 0):        60,
		skey(indicator.KindADX, 0):        30,
	}, flatCandles(2, 100))

	sig := s.Evaluate(context.Background(), 0, nil)
	if got := positionBias(0.05, 0.3); got != signal.BiasBearish {
		t.Fatalf("position read should be bearish, got %s", got)
	}
	if sig.Bias != signal.BiasBullish {
		t.Fatalf("zero cross up should override the position bias, got %s", sig.Bias)
	}
	if !strings.Contains(sig.Detail, "[zero cross]") {
		t.Errorf("detail should mark the zero-cross override, got %q", sig.Detail)
	}

	wantScore := 0.30*30 + 0.20*4 + 0.20*20 + 10
	if math.Abs(sig.Score-wantScore) > 1e-9 {
		t.Errorf("expected score %.2f, got %.2f", wantScore, sig.Score)
	}
	// No zero alignment: the line just turned positive against a negative
	// histogram. RSI and ADX still agree.
	wantConf := 0.5*wantScore + 10 + 10 + 5 + 5
	if math.Abs(sig.Confidence-wantConf) > 1e-9 {
		t.Errorf("expected confidence %.2f, got %.2f", wantConf, sig.Confidence)
	}
}

// divergenceCandles builds a series whose recent price high exceeds the
// earlier one while the oscillator reading at the new high is lower.
func divergenceCandles() []market.Candle {
	bars := flatCandles(25, 100)
	bars[6].High = 110  // earlier extreme
	bars[21].High = 115 // price pushes higher
	return bars
}

func TestTrendOscBearishDivergence(t *testing.T) {
	// Bar 21 is 3 shifts back, bar 6 is 18 shifts back.
	s := trendOscFixture(map[string]float64{
		skey(indicator.KindMACDLine, 0):   0.4,
		skey(indicator.KindMACDSignal, 0): 0.2,
		skey(indicator.KindMACDHist, 0):   0.1,
		skey(indicator.KindMACDLine, 1):   0.5,
		skey(indicator.KindMACDSignal, 1): 0.2,
		skey(indicator.KindMACDLine, 3):   0.2,
		skey(indicator.KindMACDLine, 18):  0.8,
	}, divergenceCandles())

	sig := s.Evaluate(context.Background(), 0, nil)
	if sig.Bias != signal.BiasBearish {
		t.Fatalf("higher high on a weaker oscillator should read bearish, got %s", sig.Bias)
	}
	if math.Abs(sig.Confidence-divergenceConfidence) > 1e-9 {
		t.Errorf("divergence should pin confidence at %v, got %.2f", divergenceConfidence, sig.Confidence)
	}
	if !strings.Contains(sig.Detail, "[divergence]") {
		t.Errorf("detail should mark the divergence override, got %q", sig.Detail)
	}

	// base 15.2 plus the divergence bump
	wantScore := 0.30*24 + 0.20*32 + 0.20*8 + 20
	if math.Abs(sig.Score-wantScore) > 1e-9 {
		t.Errorf("expected score %.2f, got %.2f", wantScore, sig.Score)
	}
}

// Divergence needs provider-grade oscillator readings at both extremes; a
// defaulted value at either bar must not fabricate a reversal.
func TestTrendOscDivergenceIgnoresDegradedReadings(t *testing.T) {
	s := trendOscFixture(map[string]float64{
		skey(indicator.KindMACDLine, 0):   0.4,
		skey(indicator.KindMACDSignal, 0): 0.2,
		skey(indicator.KindMACDHist, 0):   0.1,
		skey(indicator.KindMACDLine, 1):   0.5,
		skey(indicator.KindMACDSignal, 1): 0.2,
		skey(indicator.KindMACDLine, 3):   0.2,
		// no reading at the earlier extreme
	}, divergenceCandles())

	sig := s.Evaluate(context.Background(), 0, nil)
	if strings.Contains(sig.Detail, "[divergence]") {
		t.Errorf("defaulted extreme reading must not count as divergence: %q", sig.Detail)
	}
	if sig.Bias == signal.BiasBearish {
		t.Errorf("expected no bearish divergence call, got %s", sig.Bias)
	}
}

func TestTrendOscUnavailableIsNeutral(t *testing.T) {
	s := trendOscFixture(map[string]float64{}, flatCandles(2, 100))

	sig := s.Evaluate(context.Background(), 0, nil)
	if sig.Bias != signal.BiasNeutral || sig.Score != 0 {
		t.Errorf("missing oscillator must yield a neutral zero signal, got %+v", sig)
	}
	if !sig.Degraded {
		t.Error("unavailable oscillator should flag the signal degraded")
	}
}
