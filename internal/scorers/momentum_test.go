package scorers

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"trading-fusion-engine/internal/indicator"
	"trading-fusion-engine/internal/logging"
	"trading-fusion-engine/internal/market"
	"trading-fusion-engine/internal/signal"
)

type shiftProvider struct {
	values map[string]float64 // "kind:shift" -> value
	calls  int
}

func skey(kind indicator.Kind, shift int) string {
	return fmt.Sprintf("%s:%d", kind, shift)
}

func (p *shiftProvider) Value(_ context.Context, _ string, _ market.Timeframe, kind indicator.Kind, shift int) (float64, error) {
	p.calls++
	v, ok := p.values[skey(kind, shift)]
	if !ok {
		return 0, fmt.Errorf("no value for %s shift %d", kind, shift)
	}
	return v, nil
}

type fixedTick struct{ price float64 }

func (m *fixedTick) Candles(context.Context, string, market.Timeframe, int) ([]market.Candle, error) {
	return nil, fmt.Errorf("no candles")
}

func (m *fixedTick) TickPrice(context.Context, string) (float64, error) {
	return m.price, nil
}

func momentumFixture(values map[string]float64) (*MomentumScorer, *shiftProvider) {
	p := &shiftProvider{values: values}
	cache := indicator.NewCache("BTCUSDT", p, &fixedTick{price: 100}, time.Minute, logging.Nop())
	return NewMomentumScorer("BTCUSDT", DefaultConfig(), cache), p
}

func rsiSeries(current, past float64, trailing float64) map[string]float64 {
	values := map[string]float64{
		skey(indicator.KindRSI, 0): current,
	}
	for i := 1; i <= persistenceWindow; i++ {
		values[skey(indicator.KindRSI, i)] = trailing
	}
	values[skey(indicator.KindRSI, momentumSlopeBars)] = past
	return values
}

func TestMomentumBullish(t *testing.T) {
	s, _ := momentumFixture(rsiSeries(65, 60, 60))

	sig := s.Evaluate(context.Background(), 0)
	if sig.Bias != signal.BiasBullish {
		t.Fatalf("expected bullish bias, got %s", sig.Bias)
	}
	// distance 15, slope 5
	wantScore := 15*2.0 + 5*1.5
	if math.Abs(sig.Score-wantScore) > 1e-9 {
		t.Errorf("expected score %.1f, got %.1f", wantScore, sig.Score)
	}
	// no extreme, full five-bar persistence
	wantConf := wantScore*0.8 + 15
	if math.Abs(sig.Confidence-wantConf) > 1e-9 {
		t.Errorf("expected confidence %.1f, got %.1f", wantConf, sig.Confidence)
	}
}

func TestMomentumBearishExtreme(t *testing.T) {
	s, _ := momentumFixture(rsiSeries(25, 30, 25))

	sig := s.Evaluate(context.Background(), 0)
	if sig.Bias != signal.BiasBearish {
		t.Fatalf("expected bearish bias, got %s", sig.Bias)
	}
	// distance -25, slope -5, oversold bonus, full persistence
	wantScore := 25*2.0 + 5*1.5
	wantConf := wantScore*0.8 + 15 + 15
	if math.Abs(sig.Score-wantScore) > 1e-9 {
		t.Errorf("expected score %.1f, got %.1f", wantScore, sig.Score)
	}
	if math.Abs(sig.Confidence-wantConf) > 1e-9 {
		t.Errorf("expected confidence %.1f, got %.1f", wantConf, sig.Confidence)
	}
}

func TestMomentumFlatIsNeutral(t *testing.T) {
	s, _ := momentumFixture(rsiSeries(51, 51, 51))

	sig := s.Evaluate(context.Background(), 0)
	if sig.Bias != signal.BiasNeutral {
		t.Errorf("expected neutral bias near the midpoint, got %s", sig.Bias)
	}
	if sig.Score >= 5 {
		t.Errorf("flat oscillator should score low, got %.1f", sig.Score)
	}
}

func TestMomentumUnavailableIsNeutral(t *testing.T) {
	s, _ := momentumFixture(map[string]float64{}) // provider has nothing

	sig := s.Evaluate(context.Background(), 0)
	if sig.Bias != signal.BiasNeutral || sig.Score != 0 {
		t.Errorf("missing oscillator must yield a neutral zero signal, got %+v", sig)
	}
}

func TestMomentumResultIsCached(t *testing.T) {
	s, p := momentumFixture(rsiSeries(65, 60, 60))
	ctx := context.Background()

	first := s.Evaluate(ctx, 0)
	calls := p.calls
	second := s.Evaluate(ctx, 0)
	if p.calls != calls {
		t.Errorf("second evaluate within TTL must not recompute: %d -> %d", calls, p.calls)
	}
	if first != second {
		t.Error("cached evaluate should return the same result")
	}
}
