package scorers

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"trading-fusion-engine/internal/indicator"
	"trading-fusion-engine/internal/logging"
	"trading-fusion-engine/internal/market"
	"trading-fusion-engine/internal/signal"
)

func candleFixture(values map[string]float64, candles []market.Candle) *CandleScorer {
	p := &shiftProvider{values: values}
	mkt := &seriesMarket{series: candles, tick: 100}
	cache := indicator.NewCache("BTCUSDT", p, mkt, time.Minute, logging.Nop())
	return NewCandleScorer("BTCUSDT", DefaultConfig(), cache, mkt)
}

// dullCandle is pattern-free filler: its body is too large for a doji and too
// small for long-candle formations, with wicks short of hammer geometry.
func dullCandle() market.Candle {
	return market.Candle{Open: 100.2, High: 100.9, Low: 99.9, Close: 100.4}
}

// engulfingCandles ends on a bullish engulfing pair with a dominant second
// body, which the detector grades at 0.80.
func engulfingCandles() []market.Candle {
	return []market.Candle{
		dullCandle(),
		dullCandle(),
		dullCandle(),
		{Open: 101, High: 101.2, Low: 100.2, Close: 100.3},
		{Open: 100.2, High: 101.8, Low: 100.1, Close: 101.6},
	}
}

// One agreeing indicator is not enough: the formation keeps its raw grade and
// stays below the actionable bar.
func TestCandleSingleConfirmationNotActionable(t *testing.T) {
	s := candleFixture(map[string]float64{
		skey(indicator.KindRSI, 0): 60,
	}, engulfingCandles())

	sig := s.Evaluate(context.Background(), 0)
	if sig.Bias != signal.BiasBullish {
		t.Fatalf("bullish engulfing should read bullish, got %s", sig.Bias)
	}
	if math.Abs(sig.Confidence-80) > 1e-9 {
		t.Errorf("one confirmation must not boost the grade, got %.2f", sig.Confidence)
	}
	if math.Abs(sig.Score-72) > 1e-9 {
		t.Errorf("expected score 72, got %.2f", sig.Score)
	}
	if strings.Contains(sig.Detail, "actionable") {
		t.Errorf("one confirmation must not be actionable: %q", sig.Detail)
	}
}

func TestCandleTwoConfirmationsActionable(t *testing.T) {
	s := candleFixture(map[string]float64{
		skey(indicator.KindRSI, 0): 60,
		skey(indicator.KindADX, 0): 30,
		skey(indicator.KindATR, 0): 1.0,
	}, engulfingCandles())

	sig := s.Evaluate(context.Background(), 0)
	if sig.Bias != signal.BiasBullish {
		t.Fatalf("expected bullish bias, got %s", sig.Bias)
	}
	// 0.80 formation, boosted 15% by two agreeing confirmations
	wantConf := 80 * confirmBoost
	if math.Abs(sig.Confidence-wantConf) > 1e-9 {
		t.Errorf("expected confidence %.2f, got %.2f", wantConf, sig.Confidence)
	}
	if math.Abs(sig.Score-wantConf*0.9) > 1e-9 {
		t.Errorf("expected score %.2f, got %.2f", wantConf*0.9, sig.Score)
	}
	if !strings.Contains(sig.Detail, "confirms 2/2") {
		t.Errorf("expected two of two confirmations in detail, got %q", sig.Detail)
	}
	if !strings.Contains(sig.Detail, "actionable") {
		t.Errorf("boosted formation with two confirmations should be actionable: %q", sig.Detail)
	}
	// ATR 1.0 off the 101.6 close
	if !strings.Contains(sig.Detail, "stop 100.6 target 103.6 rr 2.0") {
		t.Errorf("expected the ATR stop and target sketch, got %q", sig.Detail)
	}
}

// Disagreeing indicators still count as checked but never as agreement.
func TestCandleDisagreeingIndicatorsKeepFormationWeak(t *testing.T) {
	s := candleFixture(map[string]float64{
		skey(indicator.KindRSI, 0): 40, // against the bullish formation
		skey(indicator.KindADX, 0): 20, // no trend strength
	}, engulfingCandles())

	sig := s.Evaluate(context.Background(), 0)
	if math.Abs(sig.Confidence-80) > 1e-9 {
		t.Errorf("zero agreements must leave the raw grade, got %.2f", sig.Confidence)
	}
	if !strings.Contains(sig.Detail, "confirms 0/2") {
		t.Errorf("expected zero of two confirmations in detail, got %q", sig.Detail)
	}
	if strings.Contains(sig.Detail, "actionable") {
		t.Errorf("unconfirmed formation must not be actionable: %q", sig.Detail)
	}
}

func TestCandleNoFormationIsNeutral(t *testing.T) {
	s := candleFixture(map[string]float64{}, []market.Candle{
		dullCandle(), dullCandle(), dullCandle(), dullCandle(), dullCandle(),
	})

	sig := s.Evaluate(context.Background(), 0)
	if sig.Bias != signal.BiasNeutral || sig.Score != 0 {
		t.Errorf("pattern-free window must yield a neutral zero signal, got %+v", sig)
	}
}

func TestCandleInsufficientHistoryIsNeutral(t *testing.T) {
	s := candleFixture(map[string]float64{}, []market.Candle{
		dullCandle(), dullCandle(), dullCandle(),
	})

	sig := s.Evaluate(context.Background(), 0)
	if sig.Bias != signal.BiasNeutral || !sig.Degraded {
		t.Errorf("short history must yield a degraded neutral signal, got %+v", sig)
	}
}
