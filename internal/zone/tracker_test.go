package zone

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"trading-fusion-engine/internal/indicator"
	"trading-fusion-engine/internal/logging"
	"trading-fusion-engine/internal/market"
)

type fakeMarket struct {
	candles map[market.Timeframe][]market.Candle
	tick    float64
}

func (f *fakeMarket) Candles(_ context.Context, _ string, tf market.Timeframe, limit int) ([]market.Candle, error) {
	series, ok := f.candles[tf]
	if !ok {
		return nil, fmt.Errorf("no data for %s", tf)
	}
	if limit < len(series) {
		return series[len(series)-limit:], nil
	}
	return series, nil
}

func (f *fakeMarket) TickPrice(_ context.Context, _ string) (float64, error) {
	return f.tick, nil
}

type fakeIndicators struct {
	values map[indicator.Kind]float64
}

func (f *fakeIndicators) Value(_ context.Context, _ string, _ market.Timeframe, kind indicator.Kind, _ int) (float64, error) {
	v, ok := f.values[kind]
	if !ok {
		return 0, fmt.Errorf("no value for %s", kind)
	}
	return v, nil
}

func testTracker(t *testing.T, atr, tick float64) (*Tracker, *fakeMarket) {
	t.Helper()
	md := &fakeMarket{candles: map[market.Timeframe][]market.Candle{}, tick: tick}
	ind := indicator.NewCache("BTCUSDT",
		&fakeIndicators{values: map[indicator.Kind]float64{indicator.KindATR: atr}},
		md, time.Minute, logging.Nop())
	return NewTracker("BTCUSDT", DefaultConfig(), ind, md, logging.Nop()), md
}

func addZone(tr *Tracker, level float64, zoneType Type, strength float64) *Zone {
	z := &Zone{
		ID:              uuid.NewString(),
		Level:           level,
		Type:            zoneType,
		Strength:        strength,
		Relevance:       1.0,
		CreatedAt:       time.Now(),
		SourceTimeframe: market.TF4h,
	}
	tr.zones = append(tr.zones, z)
	return z
}

func TestFindSwings(t *testing.T) {
	flat := func(p float64) market.Candle {
		return market.Candle{Open: p, High: p + 1, Low: p - 1, Close: p}
	}
	candles := []market.Candle{
		flat(100), flat(100), flat(100),
		{Open: 100, High: 120, Low: 99, Close: 105}, // swing high at 120
		flat(100), flat(100),
		{Open: 100, High: 101, Low: 80, Close: 95}, // swing low at 80
		flat(100), flat(100), flat(100),
	}

	swings := findSwings(candles, 2)
	if len(swings) != 2 {
		t.Fatalf("expected 2 swings, got %d", len(swings))
	}
	if swings[0].zoneType != Resistance || swings[0].price != 120 {
		t.Errorf("expected resistance at 120, got %v at %.1f", swings[0].zoneType, swings[0].price)
	}
	if swings[1].zoneType != Support || swings[1].price != 80 {
		t.Errorf("expected support at 80, got %v at %.1f", swings[1].zoneType, swings[1].price)
	}
}

func TestRebuildInsufficientHistoryYieldsEmptySet(t *testing.T) {
	tr, _ := testTracker(t, 0.5, 100)
	tr.Rebuild(context.Background())
	if n := len(tr.Active()); n != 0 {
		t.Errorf("expected no zones without history, got %d", n)
	}
}

func TestMergeKeepsStronger(t *testing.T) {
	tr, _ := testTracker(t, 0.5, 100)
	addZone(tr, 100, Support, 0.7)

	// Within the merge radius and stronger: absorbs the existing zone.
	survived := tr.merge(&Zone{ID: uuid.NewString(), Level: 100.1, Type: Support, Strength: 0.9, Relevance: 1})
	if survived {
		t.Error("candidate inside the merge radius should not survive as a new zone")
	}
	active := tr.Active()
	if len(active) != 1 {
		t.Fatalf("expected 1 zone after merge, got %d", len(active))
	}
	if active[0].Strength != 0.9 || active[0].Level != 100.1 {
		t.Errorf("merge should keep the stronger candidate: %+v", active[0])
	}

	// Weaker candidate inside the radius changes nothing.
	tr.merge(&Zone{ID: uuid.NewString(), Level: 100.2, Type: Support, Strength: 0.3, Relevance: 1})
	if got := tr.Active()[0].Strength; got != 0.9 {
		t.Errorf("weaker candidate should be dropped, strength now %.2f", got)
	}
}

func TestTouchLatchIncrementsOncePerEntry(t *testing.T) {
	tr, _ := testTracker(t, 0.05, 100)
	z := addZone(tr, 100, Support, 0.5)
	ctx := context.Background()

	tr.OnTick(ctx, 100.05) // inside touch tolerance (0.15)
	tr.OnTick(ctx, 100.10) // still inside, same entry
	if z.TouchCount != 1 {
		t.Errorf("expected 1 touch for continuous contact, got %d", z.TouchCount)
	}
	if diff := z.Strength - 0.6; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected strength 0.6 after one touch, got %.4f", z.Strength)
	}

	tr.OnTick(ctx, 105) // leave
	tr.OnTick(ctx, 100) // re-enter
	if z.TouchCount != 2 {
		t.Errorf("expected 2 touches after re-entry, got %d", z.TouchCount)
	}
}

func TestTouchStrengthCapsAtOne(t *testing.T) {
	tr, _ := testTracker(t, 0.05, 100)
	z := addZone(tr, 100, Support, 0.95)
	ctx := context.Background()

	tr.OnTick(ctx, 100)
	if z.Strength != 1.0 {
		t.Errorf("strength must cap at 1.0, got %.3f", z.Strength)
	}
}

func TestThreeFailedTestsArchive(t *testing.T) {
	tr, _ := testTracker(t, 0.5, 100)
	z := addZone(tr, 100, Support, 0.8)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tr.OnTick(ctx, 100)    // test the zone
		tr.OnBarClose(ctx, 98) // close well below support minus buffer
	}

	if !z.Archived {
		t.Fatalf("expected archive after 3 failed tests, got %d", z.FailedTests)
	}
	if len(tr.Active()) != 0 {
		t.Error("archived zone must leave the active set")
	}
	if got := tr.Query(10, 100); len(got) != 0 {
		t.Error("archived zone must not appear in queries")
	}
	if got := tr.ArchivedZones(); len(got) != 1 {
		t.Errorf("archived zone must remain for audit, got %d", len(got))
	}
}

func TestBarCloseWithoutTestIsNotFailed(t *testing.T) {
	tr, _ := testTracker(t, 0.5, 100)
	z := addZone(tr, 100, Support, 0.8)

	// Close beyond the buffer but the zone was never tested this bar.
	tr.OnBarClose(context.Background(), 98)
	if z.FailedTests != 0 {
		t.Errorf("untested zone cannot fail, got %d", z.FailedTests)
	}
}

func TestAgeExpiryDependsOnSourceTimeframe(t *testing.T) {
	tr, _ := testTracker(t, 0.5, 100)
	old := addZone(tr, 100, Support, 0.8)
	old.SourceTimeframe = market.TF4h
	old.CreatedAt = time.Now().Add(-50 * 24 * time.Hour) // beyond the 45d limit

	daily := addZone(tr, 110, Resistance, 0.8)
	daily.SourceTimeframe = market.TF1d
	daily.CreatedAt = time.Now().Add(-50 * 24 * time.Hour) // within the 90d limit

	tr.RecomputeRelevance(context.Background(), 100)

	if !old.Archived {
		t.Error("4h zone past its age limit should be archived")
	}
	if daily.Archived {
		t.Error("1d zone within its age limit should survive")
	}
}

func TestRelevanceBlend(t *testing.T) {
	tr, _ := testTracker(t, 1.0, 100)
	z := addZone(tr, 100, Support, 0.8)
	z.CreatedAt = time.Now().Add(-15 * 24 * time.Hour) // half the age span
	z.FailedTests = 0

	tr.RecomputeRelevance(context.Background(), 100)

	// age decay ~0.5, distance decay 1.0 (at the level), fail decay 1.0
	want := 0.4*0.5 + 0.35*1.0 + 0.25*1.0
	if diff := z.Relevance - want; diff > 0.01 || diff < -0.01 {
		t.Errorf("expected relevance ~%.3f, got %.3f", want, z.Relevance)
	}
}

func TestScoreDecaysWithDistance(t *testing.T) {
	tr, _ := testTracker(t, 1.0, 100)
	addZone(tr, 100, Support, 1.0)
	ctx := context.Background()

	inside, _, _ := tr.Score(ctx, 100.5) // within the 1-ATR buffer
	if inside != 100 {
		t.Errorf("full score inside the buffer, got %.2f", inside)
	}

	near, _, _ := tr.Score(ctx, 102) // one buffer beyond
	if near <= 0 || near >= inside {
		t.Errorf("score should decay outside the buffer: inside %.2f near %.2f", inside, near)
	}

	far, _, _ := tr.Score(ctx, 110) // beyond 4 buffers
	if far != 0 {
		t.Errorf("score should reach zero far from the zone, got %.2f", far)
	}
}

func TestBiasAt(t *testing.T) {
	tr, _ := testTracker(t, 1.0, 100)
	addZone(tr, 100, Support, 1.0)
	ctx := context.Background()

	if got := tr.BiasAt(ctx, 100.2); got != BiasInZoneBuy {
		t.Errorf("inside support buffer: expected IN_ZONE_BUY, got %s", got)
	}
	if got := tr.BiasAt(ctx, 104); got != BiasLeanBuy {
		t.Errorf("holding above support: expected BUY_BIAS, got %s", got)
	}
	if got := tr.BiasAt(ctx, 96); got != BiasLeanSell {
		t.Errorf("broken below support: expected SELL_BIAS, got %s", got)
	}
}

func TestQueryReturnsNearestFirst(t *testing.T) {
	tr, _ := testTracker(t, 0.5, 100)
	addZone(tr, 90, Support, 0.8)
	addZone(tr, 100, Support, 0.8)
	addZone(tr, 110, Resistance, 0.8)

	got := tr.Query(2, 101)
	if len(got) != 2 {
		t.Fatalf("expected 2 zones, got %d", len(got))
	}
	if got[0].Level != 100 || got[1].Level != 110 {
		t.Errorf("expected [100 110], got [%.0f %.0f]", got[0].Level, got[1].Level)
	}
}
