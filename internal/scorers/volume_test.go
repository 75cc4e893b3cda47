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

func volumeFixture(candles []market.Candle) *VolumeScorer {
	p := &shiftProvider{values: map[string]float64{}}
	mkt := &seriesMarket{series: candles, tick: 100}
	cache := indicator.NewCache("BTCUSDT", p, mkt, time.Minute, logging.Nop())
	return NewVolumeScorer("BTCUSDT", DefaultConfig(), cache, mkt)
}

// risingCandles builds a steadily climbing series with per-bar volumes.
func risingCandles(n int, volume func(i int) float64) []market.Candle {
	bars := make([]market.Candle, n)
	price := 100.0
	for i := range bars {
		bars[i] = market.Candle{
			Open:   price,
			Close:  price + 0.5,
			High:   price + 0.7,
			Low:    price - 0.2,
			Volume: volume(i),
		}
		price += 0.5
	}
	return bars
}

func TestVolumeConfirmedRallyScoresHigh(t *testing.T) {
	// Every bar carries average volume; the last runs 1.5x.
	s := volumeFixture(risingCandles(31, func(i int) float64 {
		if i == 30 {
			return 150
		}
		return 100
	}))

	sig := s.Evaluate(context.Background(), 0)
	if sig.Bias != signal.BiasBullish {
		t.Fatalf("rising close on confirmed volume should read bullish, got %s", sig.Bias)
	}
	// conviction 70 at ratio 1.5, all ten window bars confirmed
	wantScore := 70.0 + 10*4
	if sig.Score != signal.Clamp(wantScore) {
		t.Errorf("expected score %.1f, got %.1f", signal.Clamp(wantScore), sig.Score)
	}
}

// A climax bar confirms the move but flags exhaustion: the confidence takes
// the 0.85 haircut even though the score stays maximal.
func TestVolumeClimaxDiscountsConfidence(t *testing.T) {
	s := volumeFixture(risingCandles(31, func(i int) float64 {
		if i == 30 {
			return 350 // 3.5x the 100 average
		}
		return 100
	}))

	sig := s.Evaluate(context.Background(), 0)
	if sig.Bias != signal.BiasBullish {
		t.Fatalf("expected bullish bias, got %s", sig.Bias)
	}
	if sig.Score != 100 {
		t.Errorf("climax conviction with full confirmation should score 100, got %.1f", sig.Score)
	}
	// clamp(0.6*100 + 10*3) = 90, then the exhaustion discount
	wantConf := 90 * 0.85
	if math.Abs(sig.Confidence-wantConf) > 1e-9 {
		t.Errorf("expected confidence %.2f, got %.2f", wantConf, sig.Confidence)
	}
	if !strings.Contains(sig.Detail, "climax") {
		t.Errorf("detail should flag the climax, got %q", sig.Detail)
	}
}

// Price extending while the last bars' volume dries up is divergence: the
// penalty drops the score below the directional floor and the bias goes
// neutral.
func TestVolumeDivergenceNeutralizesBias(t *testing.T) {
	s := volumeFixture(risingCandles(31, func(i int) float64 {
		switch {
		case i == 21 || i == 22:
			return 200
		case i == 29 || i == 30:
			return 50
		default:
			return 100
		}
	}))

	sig := s.Evaluate(context.Background(), 0)
	if !strings.Contains(sig.Detail, "diverging") {
		t.Fatalf("drying volume under extending price should flag divergence, got %q", sig.Detail)
	}
	if sig.Bias != signal.BiasNeutral {
		t.Errorf("diverging move should not carry a directional bias, got %s", sig.Bias)
	}
	// avg 107.5: conviction 20 at ratio 0.47, two confirmed bars, minus the
	// divergence penalty
	wantScore := signal.Clamp(20 + 2*4 - 20)
	if math.Abs(sig.Score-wantScore) > 1e-9 {
		t.Errorf("expected score %.1f, got %.1f", wantScore, sig.Score)
	}
	if sig.Confidence != 0 {
		t.Errorf("penalized confidence should clamp to 0, got %.2f", sig.Confidence)
	}
}

func TestVolumeBearishMove(t *testing.T) {
	bars := make([]market.Candle, 31)
	price := 115.0
	for i := range bars {
		bars[i] = market.Candle{
			Open:   price,
			Close:  price - 0.5,
			High:   price + 0.2,
			Low:    price - 0.7,
			Volume: 150,
		}
		price -= 0.5
	}
	s := volumeFixture(bars)

	sig := s.Evaluate(context.Background(), 0)
	if sig.Bias != signal.BiasBearish {
		t.Fatalf("falling close on confirmed volume should read bearish, got %s", sig.Bias)
	}
	// conviction 50 at ratio 1.0, all ten bars confirmed
	wantScore := 50.0 + 10*4
	if math.Abs(sig.Score-wantScore) > 1e-9 {
		t.Errorf("expected score %.1f, got %.1f", wantScore, sig.Score)
	}
}

func TestVolumeInsufficientHistoryIsNeutral(t *testing.T) {
	s := volumeFixture(risingCandles(5, func(int) float64 { return 100 }))

	sig := s.Evaluate(context.Background(), 0)
	if sig.Bias != signal.BiasNeutral || sig.Score != 0 {
		t.Errorf("short history must yield a neutral zero signal, got %+v", sig)
	}
	if !sig.Degraded {
		t.Error("missing history should flag the signal degraded")
	}
}
