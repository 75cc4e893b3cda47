package market

import (
	"context"
	"fmt"
	"testing"
)

type countingProvider struct {
	calls int
	fail  bool
	last  float64
}

func (p *countingProvider) Candles(_ context.Context, _ string, _ Timeframe, limit int) ([]Candle, error) {
	p.calls++
	if p.fail {
		return nil, fmt.Errorf("exchange unavailable")
	}
	out := make([]Candle, limit)
	for i := range out {
		out[i] = Candle{Open: p.last, High: p.last + 1, Low: p.last - 1, Close: p.last, Volume: 100}
	}
	return out, nil
}

func (p *countingProvider) TickPrice(context.Context, string) (float64, error) {
	if p.fail {
		return 0, fmt.Errorf("exchange unavailable")
	}
	return p.last, nil
}

func TestCachedProviderServesFromCache(t *testing.T) {
	inner := &countingProvider{last: 100}
	p := NewCachedProvider(inner)
	ctx := context.Background()

	if _, err := p.Candles(ctx, "BTCUSDT", TF1h, 10); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	calls := inner.calls
	if _, err := p.Candles(ctx, "BTCUSDT", TF1h, 10); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if inner.calls != calls {
		t.Errorf("second call within TTL must not reach the provider: %d -> %d", calls, inner.calls)
	}

	// A different limit is a different cache key.
	if _, err := p.Candles(ctx, "BTCUSDT", TF1h, 20); err != nil {
		t.Fatalf("different-limit fetch: %v", err)
	}
	if inner.calls != calls+1 {
		t.Errorf("different limit should fetch, calls %d -> %d", calls, inner.calls)
	}
}

func TestCachedProviderStaleBeatsUnavailable(t *testing.T) {
	inner := &countingProvider{last: 100}
	p := NewCachedProvider(inner)
	ctx := context.Background()

	primed, err := p.Candles(ctx, "BTCUSDT", TF1h, 10)
	if err != nil {
		t.Fatalf("priming fetch: %v", err)
	}

	// Force the entry stale, then break the provider.
	key := fmt.Sprintf("%s:%s:%d", "BTCUSDT", TF1h, 10)
	p.mu.Lock()
	p.cache[key].expiresAt = p.cache[key].fetchedAt.Add(-1)
	p.mu.Unlock()
	inner.fail = true

	got, err := p.Candles(ctx, "BTCUSDT", TF1h, 10)
	if err != nil {
		t.Fatalf("stale read should not error: %v", err)
	}
	if len(got) != len(primed) {
		t.Errorf("expected the stale series, got %d bars", len(got))
	}
}

func TestCachedProviderFailsWithoutHistory(t *testing.T) {
	inner := &countingProvider{fail: true}
	p := NewCachedProvider(inner)

	if _, err := p.Candles(context.Background(), "BTCUSDT", TF1h, 10); err == nil {
		t.Error("no cache and no provider must be an error")
	}
}

func TestCachedProviderTickFallsBackToLastClose(t *testing.T) {
	inner := &countingProvider{last: 100}
	p := NewCachedProvider(inner)
	ctx := context.Background()

	if _, err := p.Candles(ctx, "BTCUSDT", TF1h, 10); err != nil {
		t.Fatalf("priming fetch: %v", err)
	}
	inner.fail = true

	price, err := p.TickPrice(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("tick fallback should not error: %v", err)
	}
	if price != 100 {
		t.Errorf("expected last cached close 100, got %.2f", price)
	}
}

func TestSimProviderIsDeterministic(t *testing.T) {
	s := NewSimProvider()
	ctx := context.Background()

	a, err := s.Candles(ctx, "BTCUSDT", TF1h, 50)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}
	b, err := s.Candles(ctx, "BTCUSDT", TF1h, 50)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}

	if len(a) != 50 || len(b) != 50 {
		t.Fatalf("expected 50 bars, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("bar %d differs between identical requests", i)
		}
	}
}

func TestSimProviderBarsAreWellFormed(t *testing.T) {
	s := NewSimProvider()
	candles, err := s.Candles(context.Background(), "ETHUSDT", TF15m, 30)
	if err != nil {
		t.Fatalf("candles: %v", err)
	}

	for i, c := range candles {
		if c.High < c.Open || c.High < c.Close || c.Low > c.Open || c.Low > c.Close {
			t.Errorf("bar %d violates OHLC ordering: %+v", i, c)
		}
		if c.Volume <= 0 {
			t.Errorf("bar %d has non-positive volume", i)
		}
		if i > 0 && candles[i-1].OpenTime >= c.OpenTime {
			t.Errorf("bar %d not strictly after its predecessor", i)
		}
	}
}

func TestSimProviderSymbolsDiffer(t *testing.T) {
	s := NewSimProvider()
	ctx := context.Background()

	btc, _ := s.TickPrice(ctx, "BTCUSDT")
	eth, _ := s.TickPrice(ctx, "ETHUSDT")
	if btc == eth {
		t.Error("different symbols should map to different base prices")
	}
}

func TestClassifySymbol(t *testing.T) {
	cases := []struct {
		symbol string
		want   AssetClass
	}{
		{"BTCUSDT", AssetCrypto},
		{"XAUUSD", AssetMetal},
		{"EURUSD", AssetForex},
		{"eurusd", AssetForex},
		{"DOGEUSDT", AssetCrypto},
	}
	for _, tc := range cases {
		if got := ClassifySymbol(tc.symbol); got != tc.want {
			t.Errorf("ClassifySymbol(%q) = %v, want %v", tc.symbol, got, tc.want)
		}
	}
}
