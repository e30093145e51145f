package candle

import "github.com/tradelab/sim-engine/internal/model"

// Aggregate re-buckets a sequence of completed base bars into the given
// timeframe. Base bars must be in ascending time order.
func Aggregate(base []model.Candle, tf model.Timeframe) []model.Candle {
	if len(base) == 0 {
		return nil
	}

	var out []model.Candle
	var cur *model.Candle

	for _, b := range base {
		bucket := tf.Bucket(b.Time)
		if cur == nil || cur.Time != bucket {
			if cur != nil {
				out = append(out, *cur)
			}
			bar := b
			bar.Time = bucket
			cur = &bar
			continue
		}
		if b.High.GreaterThan(cur.High) {
			cur.High = b.High
		}
		if b.Low.LessThan(cur.Low) {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume = cur.Volume.Add(b.Volume)
	}
	return append(out, *cur)
}

// Fold incrementally maintains one in-progress aggregate bar from repeated
// snapshots of the live base bar. A single base bar is typically seen many
// times before it closes, so the fold adds only the volume delta between
// consecutive snapshots of the same base bar: the aggregate volume must
// equal the sum of genuinely new volume, never repeated full-bar volumes.
type Fold struct {
	tf       model.Timeframe
	current  *model.Candle
	lastBase *model.Candle // last snapshot seen, for volume-delta accounting
}

// NewFold creates a fold for the given timeframe.
func NewFold(tf model.Timeframe) *Fold {
	return &Fold{tf: tf}
}

// Timeframe returns the fold's timeframe.
func (f *Fold) Timeframe() model.Timeframe {
	return f.tf
}

// Reset drops all incremental state. Used when the active timeframe changes
// and the history is re-aggregated from scratch.
func (f *Fold) Reset() {
	f.current = nil
	f.lastBase = nil
}

// Seed primes the fold with the last already-aggregated bar so live updates
// continue it instead of starting a fresh bucket. base is the most recent
// base-bar snapshot contributing to that bar, or nil if none.
func (f *Fold) Seed(aggregate model.Candle, base *model.Candle) {
	agg := aggregate
	f.current = &agg
	f.lastBase = nil
	if base != nil {
		b := *base
		f.lastBase = &b
	}
}

// Update folds a new snapshot of the live base bar into the aggregate bar.
// It returns the current aggregate bar and, when the snapshot opened a new
// aggregate bucket, the finalized previous bar.
func (f *Fold) Update(base model.Candle) (current model.Candle, closed *model.Candle) {
	bucket := f.tf.Bucket(base.Time)

	if f.current == nil || f.current.Time != bucket {
		closed = f.current
		bar := base
		bar.Time = bucket
		f.current = &bar
		snap := base
		f.lastBase = &snap
		return *f.current, closed
	}

	if f.lastBase != nil && f.lastBase.Time == base.Time {
		// Same base bar updated again: count only the new volume.
		f.current.Volume = f.current.Volume.Add(base.Volume.Sub(f.lastBase.Volume))
	} else {
		// First sight of a new base bar in this bucket.
		f.current.Volume = f.current.Volume.Add(base.Volume)
	}

	if base.High.GreaterThan(f.current.High) {
		f.current.High = base.High
	}
	if base.Low.LessThan(f.current.Low) {
		f.current.Low = base.Low
	}
	f.current.Close = base.Close

	snap := base
	f.lastBase = &snap
	return *f.current, nil
}
