package market

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"
)

// SimProvider generates deterministic synthetic candles so the engine can run
// without an exchange connection (dry-run mode) and so tests are repeatable.
// Each symbol gets a base price derived from its name, price action is a slow
// trend plus two sine components plus volume waves.
type SimProvider struct {
	mu    sync.Mutex
	base  map[string]float64
	drift float64
}

// NewSimProvider creates a simulated market data provider.
func NewSimProvider() *SimProvider {
	return &SimProvider{
		base:  make(map[string]float64),
		drift: 0.00004,
	}
}

func (s *SimProvider) basePrice(symbol string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.base[symbol]; ok {
		return p
	}
	h := fnv.New32a()
	h.Write([]byte(symbol))
	// Spread base prices across roughly 1..10000.
	p := 1.0 + float64(h.Sum32()%1000000)/100.0
	s.base[symbol] = p
	return p
}

// Candles returns limit synthetic bars ending at the current aligned bar.
func (s *SimProvider) Candles(_ context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error) {
	base := s.basePrice(symbol)
	step := tf.Duration()
	end := time.Now().Truncate(step)

	candles := make([]Candle, 0, limit)
	for i := limit - 1; i >= 0; i-- {
		openTime := end.Add(-time.Duration(i) * step)
		open := s.priceAt(base, openTime)
		closeP := s.priceAt(base, openTime.Add(step))
		high := math.Max(open, closeP) * 1.0015
		low := math.Min(open, closeP) * 0.9985
		vol := s.volumeAt(base, openTime)

		candles = append(candles, Candle{
			OpenTime:  openTime.UnixMilli(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closeP,
			Volume:    vol,
			CloseTime: openTime.Add(step).UnixMilli() - 1,
		})
	}
	return candles, nil
}

// TickPrice returns the instantaneous synthetic price.
func (s *SimProvider) TickPrice(_ context.Context, symbol string) (float64, error) {
	return s.priceAt(s.basePrice(symbol), time.Now()), nil
}

func (s *SimProvider) priceAt(base float64, t time.Time) float64 {
	minutes := float64(t.Unix()) / 60.0
	trend := 1.0 + s.drift*math.Mod(minutes, 7200)
	wave := 0.01*math.Sin(minutes/90.0) + 0.004*math.Sin(minutes/17.0)
	return base * trend * (1.0 + wave)
}

func (s *SimProvider) volumeAt(base float64, t time.Time) float64 {
	minutes := float64(t.Unix()) / 60.0
	// Volume swells near the wave extremes.
	return 1000.0 + 600.0*math.Abs(math.Sin(minutes/90.0)) + 90.0*math.Sin(minutes/7.0) + base/100.0
}
