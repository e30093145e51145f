// Package candle turns the synthetic tick stream into OHLCV bars and
// re-buckets base 1-minute bars into coarser display timeframes.
package candle

import (
	"github.com/shopspring/decimal"

	"github.com/tradelab/sim-engine/internal/model"
)

// Builder folds a stream of ticks into 1-minute bars. It maintains exactly
// one current bar keyed by the tick's minute bucket; when a tick lands in a
// new bucket the current bar is closed and returned.
//
// Not safe for concurrent use. A builder has a single logical owner.
type Builder struct {
	current *model.Candle
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Current returns a snapshot of the in-progress bar and whether one exists.
func (b *Builder) Current() (model.Candle, bool) {
	if b.current == nil {
		return model.Candle{}, false
	}
	return *b.current, true
}

// Apply folds one tick, taken at epoch-seconds ts, into the current bar.
// If the tick opens a new minute bucket, the previous bar is closed and
// returned; otherwise closed is nil.
func (b *Builder) Apply(ts int64, price, volume decimal.Decimal) (closed *model.Candle) {
	bucket := model.BaseTimeframe.Bucket(ts)

	if b.current != nil && b.current.Time == bucket {
		extend(b.current, price, volume)
		return nil
	}

	closed = b.current
	b.current = seed(bucket, price, volume)
	return closed
}

// Backfill produces count completed 1-minute bars by drawing ticksPerBar
// ticks per bar from next. Bars are stamped backwards from (and excluding)
// the bucket containing now, so the live builder can continue seamlessly in
// that bucket.
func Backfill(next func() (price, volume decimal.Decimal), count, ticksPerBar int, now int64) []model.Candle {
	if count <= 0 || ticksPerBar <= 0 {
		return nil
	}

	start := model.BaseTimeframe.Bucket(now) - int64(count)*model.BaseTimeframe.Seconds()
	bars := make([]model.Candle, 0, count)

	for i := 0; i < count; i++ {
		price, volume := next()
		bar := seed(start+int64(i)*model.BaseTimeframe.Seconds(), price, volume)
		for j := 1; j < ticksPerBar; j++ {
			price, volume = next()
			extend(bar, price, volume)
		}
		bars = append(bars, *bar)
	}
	return bars
}

func seed(bucket int64, price, volume decimal.Decimal) *model.Candle {
	return &model.Candle{
		Time:   bucket,
		Open:   price,
		High:   price,
		Low:    price,
		Close:  price,
		Volume: volume,
	}
}

func extend(bar *model.Candle, price, volume decimal.Decimal) {
	if price.GreaterThan(bar.High) {
		bar.High = price
	}
	if price.LessThan(bar.Low) {
		bar.Low = price
	}
	bar.Close = price
	bar.Volume = bar.Volume.Add(volume)
}
