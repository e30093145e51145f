package candle_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tradelab/sim-engine/internal/candle"
	"github.com/tradelab/sim-engine/internal/garch"
	"github.com/tradelab/sim-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestBuilder_ExtendsWithinBucket(t *testing.T) {
	b := candle.NewBuilder()

	if closed := b.Apply(60, d(100), d(1)); closed != nil {
		t.Fatalf("first tick should not close a bar, got %+v", closed)
	}
	if closed := b.Apply(90, d(105), d(2)); closed != nil {
		t.Fatalf("same-bucket tick should not close a bar, got %+v", closed)
	}
	if closed := b.Apply(119, d(95), d(3)); closed != nil {
		t.Fatalf("same-bucket tick should not close a bar, got %+v", closed)
	}

	cur, ok := b.Current()
	if !ok {
		t.Fatal("expected a current bar")
	}
	if cur.Time != 60 {
		t.Errorf("bar time should be bucket start 60, got %d", cur.Time)
	}
	if !cur.Open.Equal(d(100)) || !cur.High.Equal(d(105)) || !cur.Low.Equal(d(95)) || !cur.Close.Equal(d(95)) {
		t.Errorf("unexpected OHLC: %+v", cur)
	}
	if !cur.Volume.Equal(d(6)) {
		t.Errorf("volume should accumulate to 6, got %s", cur.Volume)
	}
}

func TestBuilder_ClosesOnNewBucket(t *testing.T) {
	b := candle.NewBuilder()

	b.Apply(60, d(100), d(1))
	b.Apply(100, d(110), d(1))

	closed := b.Apply(120, d(108), d(5))
	if closed == nil {
		t.Fatal("tick in a new minute should close the previous bar")
	}
	if closed.Time != 60 || !closed.Close.Equal(d(110)) || !closed.Volume.Equal(d(2)) {
		t.Errorf("unexpected closed bar: %+v", closed)
	}

	cur, _ := b.Current()
	if cur.Time != 120 {
		t.Errorf("new bar should start at 120, got %d", cur.Time)
	}
	if !cur.Open.Equal(d(108)) || !cur.High.Equal(d(108)) || !cur.Low.Equal(d(108)) || !cur.Close.Equal(d(108)) {
		t.Errorf("new bar should be seeded at the tick price: %+v", cur)
	}
	if !cur.Volume.Equal(d(5)) {
		t.Errorf("new bar volume should be 5, got %s", cur.Volume)
	}
}

func TestBackfill_CountAndAlignment(t *testing.T) {
	proc := garch.NewProcess(50000, garch.NewRand(11))
	next := func() (decimal.Decimal, decimal.Decimal) {
		tk := proc.NextTick(2)
		return tk.Price, tk.Volume
	}

	now := int64(1_700_000_030) // mid-minute
	bars := candle.Backfill(next, 60, 12, now)

	if len(bars) != 60 {
		t.Fatalf("expected 60 bars, got %d", len(bars))
	}

	nowBucket := model.BaseTimeframe.Bucket(now)
	for i, bar := range bars {
		if bar.Time%60 != 0 {
			t.Errorf("bar %d not minute-aligned: %d", i, bar.Time)
		}
		if bar.Time >= nowBucket {
			t.Errorf("bar %d overlaps the live bucket: %d >= %d", i, bar.Time, nowBucket)
		}
		if i > 0 && bar.Time != bars[i-1].Time+60 {
			t.Errorf("bar %d not contiguous: %d after %d", i, bar.Time, bars[i-1].Time)
		}
		assertOHLCInvariant(t, bar)
	}
	if bars[len(bars)-1].Time != nowBucket-60 {
		t.Errorf("history should end right before the live bucket, got %d", bars[len(bars)-1].Time)
	}
}

func TestBackfill_DeterministicGivenSeed(t *testing.T) {
	mk := func() []model.Candle {
		proc := garch.NewProcess(100, garch.NewRand(5))
		next := func() (decimal.Decimal, decimal.Decimal) {
			tk := proc.NextTick(2)
			return tk.Price, tk.Volume
		}
		return candle.Backfill(next, 10, 8, 1_700_000_000)
	}

	a, b := mk(), mk()
	for i := range a {
		if !candleEqual(a[i], b[i]) {
			t.Fatalf("bar %d differs between identically-seeded backfills", i)
		}
	}
}

func assertOHLCInvariant(t *testing.T, c model.Candle) {
	t.Helper()
	if c.Low.GreaterThan(c.Open) || c.Low.GreaterThan(c.Close) || c.Low.GreaterThan(c.High) {
		t.Errorf("low above open/close/high: %+v", c)
	}
	if c.High.LessThan(c.Open) || c.High.LessThan(c.Close) {
		t.Errorf("high below open/close: %+v", c)
	}
}

func candleEqual(a, b model.Candle) bool {
	return a.Time == b.Time &&
		a.Open.Equal(b.Open) &&
		a.High.Equal(b.High) &&
		a.Low.Equal(b.Low) &&
		a.Close.Equal(b.Close) &&
		a.Volume.Equal(b.Volume)
}
