// Package session orchestrates one simulation per user: it owns a price
// process and candle builder per instrument, drives periodic tick
// generation, folds base bars into the active display timeframe, marks the
// portfolio to market, and serializes order intents against the portfolio.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradelab/sim-engine/internal/candle"
	"github.com/tradelab/sim-engine/internal/garch"
	"github.com/tradelab/sim-engine/internal/ledger"
	"github.com/tradelab/sim-engine/internal/metrics"
	"github.com/tradelab/sim-engine/internal/model"
	"github.com/tradelab/sim-engine/internal/store"
)

var (
	// ErrUnknownInstrument is returned for intents against an instrument
	// not in the session's active set.
	ErrUnknownInstrument = errors.New("session: unknown instrument")

	// ErrNoPosition is returned when closing or reversing a position that
	// does not exist.
	ErrNoPosition = errors.New("session: no open position")

	// ErrPersistenceUnavailable is returned when the portfolio cannot be
	// loaded. Session start is blocked rather than fabricating a guest
	// portfolio that would risk silent data loss.
	ErrPersistenceUnavailable = errors.New("session: persistence unavailable")
)

// Config holds the tunables for a simulation session.
//
// Each instrument's LastPrice is used as the starting price of its
// synthetic price process.
type Config struct {
	Instruments  []model.Instrument
	StartingCash decimal.Decimal
	TickInterval time.Duration // price process cadence
	EmitInterval time.Duration // subscriber fan-out cadence
	SaveDelay    time.Duration // debounce window for persistence
	HistoryBars  int           // completed 1m bars to backfill
	TicksPerBar  int           // synthetic ticks per backfilled bar
	Seed         int64         // 0 → derived from the clock
	Clock        Clock
}

func (c *Config) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = 200 * time.Millisecond
	}
	if c.EmitInterval <= 0 {
		c.EmitInterval = time.Second
	}
	if c.SaveDelay <= 0 {
		c.SaveDelay = 1500 * time.Millisecond
	}
	if c.HistoryBars <= 0 {
		c.HistoryBars = 180
	}
	if c.TicksPerBar <= 0 {
		c.TicksPerBar = 30
	}
	if c.StartingCash.IsZero() {
		c.StartingCash = decimal.NewFromInt(100000)
	}
	if c.Clock == nil {
		c.Clock = RealClock()
	}
	if c.Seed == 0 {
		c.Seed = c.Clock.Now().UnixNano()
	}
}

// market is the per-instrument simulation state. Mutated exclusively by the
// session's run goroutine (ticks) and the session mutex (reads).
type market struct {
	instrument model.Instrument
	proc       *garch.Process
	builder    *candle.Builder
	priceScale int32

	history    []model.Candle // completed base 1m bars, ascending
	fold       *candle.Fold
	aggHistory []model.Candle // completed aggregate bars for the active timeframe
	liveAgg    model.Candle
	hasLive    bool
}

// Session is one user's running simulation. All exported methods are safe
// for concurrent use; order intents are serialized by the session mutex
// because the weighted-average-price update is not commutative under
// interleaving.
type Session struct {
	userID string
	store  store.Store
	cfg    Config
	clock  Clock

	mu        sync.Mutex
	portfolio *model.Portfolio
	markets   map[string]*market
	order     []string // instrument iteration order, stable
	timeframe model.Timeframe

	subs      map[string]map[int]func(model.Candle)
	nextSubID int

	dirty   bool
	saveDue time.Time

	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a session for the user, loading the persisted portfolio or
// creating (and persisting) a default one, and backfilling candle history
// for every instrument. The returned session is not ticking until Start.
func New(ctx context.Context, userID string, st store.Store, cfg Config) (*Session, error) {
	cfg.applyDefaults()
	if len(cfg.Instruments) == 0 {
		return nil, errors.New("session: no instruments configured")
	}

	p, err := st.LoadPortfolio(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		p = model.NewPortfolio(cfg.StartingCash)
		if err := st.SavePortfolio(ctx, userID, p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
		}
		slog.Info("created default portfolio", "user", userID, "cash", cfg.StartingCash.String())
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
	}

	s := &Session{
		userID:    userID,
		store:     st,
		cfg:       cfg,
		clock:     cfg.Clock,
		portfolio: p,
		markets:   make(map[string]*market, len(cfg.Instruments)),
		timeframe: model.BaseTimeframe,
		subs:      make(map[string]map[int]func(model.Candle)),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	now := s.clock.Now().Unix()
	for i, inst := range cfg.Instruments {
		mk := s.newMarket(inst, cfg.Seed+int64(i)*2, now)
		s.markets[inst.Key] = mk
		s.order = append(s.order, inst.Key)
	}

	// Positions persisted with stale prices get re-marked immediately.
	s.portfolio = ledger.Mark(s.portfolio, s.lastPricesLocked())

	return s, nil
}

// newMarket backfills history with one seeded process, then discards it for
// an independently seeded live process continuing from the final historical
// price. This decouples how much history is shown from how fast the live
// feed runs.
func (s *Session) newMarket(inst model.Instrument, seed, now int64) *market {
	scale := -inst.TickSize.Exponent()
	if scale < 0 {
		scale = 0
	}

	backfill := garch.NewProcess(inst.LastPrice.InexactFloat64(), garch.NewRand(seed))
	next := func() (decimal.Decimal, decimal.Decimal) {
		t := backfill.NextTick(scale)
		return t.Price, t.Volume
	}
	history := candle.Backfill(next, s.cfg.HistoryBars, s.cfg.TicksPerBar, now)

	lastClose := inst.LastPrice
	if n := len(history); n > 0 {
		lastClose = history[n-1].Close
	}
	inst.LastPrice = lastClose

	mk := &market{
		instrument: inst,
		proc:       garch.NewProcess(lastClose.InexactFloat64(), garch.NewRand(seed+1)),
		builder:    candle.NewBuilder(),
		priceScale: scale,
		history:    history,
		fold:       candle.NewFold(s.timeframe),
	}
	mk.rebuildAggregate(s.timeframe)
	return mk
}

// rebuildAggregate re-runs batch aggregation over the base history and
// re-seeds the incremental fold, keeping the live base bar (if any) folded
// in. Called at construction and on timeframe change.
func (mk *market) rebuildAggregate(tf model.Timeframe) {
	mk.fold = candle.NewFold(tf)
	mk.aggHistory = nil
	mk.hasLive = false

	agg := candle.Aggregate(mk.history, tf)
	if n := len(agg); n > 0 {
		mk.aggHistory = agg[:n-1]
		mk.liveAgg = agg[n-1]
		mk.hasLive = true
		last := mk.history[len(mk.history)-1]
		mk.fold.Seed(agg[n-1], &last)
	}

	if cur, ok := mk.builder.Current(); ok {
		mk.foldLive(cur)
	}
}

// foldLive pushes a live base-bar snapshot through the fold.
func (mk *market) foldLive(base model.Candle) {
	current, closed := mk.fold.Update(base)
	if closed != nil {
		mk.aggHistory = append(mk.aggHistory, *closed)
	}
	mk.liveAgg = current
	mk.hasLive = true
}

// Start launches the tick and emit loops. Safe to call once.
func (s *Session) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	metrics.ActiveSessions.Inc()
	go s.run()
}

// Stop halts both timers deterministically. No tick or subscriber callback
// is delivered after Stop returns. A final save runs if state is dirty.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		<-s.doneCh
		return
	}
	s.stopped = true
	wasStarted := s.started
	s.started = true // block a later Start on a stopped session
	close(s.stopCh)
	if !wasStarted {
		close(s.doneCh)
	}
	s.mu.Unlock()

	<-s.doneCh
	if wasStarted {
		metrics.ActiveSessions.Dec()
	}
	s.flushSave(true)
}

// run owns the two tickers: a high-frequency tick loop mutating the
// generator/builder pairs, and a lower-frequency emit loop pushing the
// latest aggregate-bar snapshot to subscribers. UI throttling is therefore
// independent of simulation fidelity.
func (s *Session) run() {
	tick := s.clock.NewTicker(s.cfg.TickInterval)
	emit := s.clock.NewTicker(s.cfg.EmitInterval)
	defer tick.Stop()
	defer emit.Stop()

	for {
		select {
		case <-s.stopCh:
			close(s.doneCh)
			return
		case now := <-tick.C():
			s.onTick(now)
			s.flushSave(false)
		case <-emit.C():
			s.emit()
		}
	}
}

// onTick advances every instrument's price process by one tick and updates
// the candle pipeline and the portfolio mark.
func (s *Session) onTick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now.Unix()
	for _, key := range s.order {
		mk := s.markets[key]
		t := mk.proc.NextTick(mk.priceScale)
		mk.instrument.LastPrice = t.Price
		metrics.TicksTotal.WithLabelValues(key).Inc()

		closed := mk.builder.Apply(ts, t.Price, t.Volume)
		if closed != nil {
			mk.history = append(mk.history, *closed)
			if len(mk.history) > s.cfg.HistoryBars*2 {
				mk.history = mk.history[len(mk.history)-s.cfg.HistoryBars:]
			}
		}
		if cur, ok := mk.builder.Current(); ok {
			mk.foldLive(cur)
		}
	}

	s.portfolio = ledger.Mark(s.portfolio, s.lastPricesLocked())
}

// emit delivers the current aggregate bar of each subscribed instrument.
// Callbacks run outside the session lock.
func (s *Session) emit() {
	type delivery struct {
		cb  func(model.Candle)
		bar model.Candle
	}
	var out []delivery

	s.mu.Lock()
	for key, subs := range s.subs {
		mk := s.markets[key]
		if mk == nil || !mk.hasLive || len(subs) == 0 {
			continue
		}
		for _, cb := range subs {
			out = append(out, delivery{cb: cb, bar: mk.liveAgg})
		}
	}
	s.mu.Unlock()

	for _, d := range out {
		d.cb(d.bar)
	}
}

// lastPricesLocked snapshots the latest price per instrument. Caller holds mu.
func (s *Session) lastPricesLocked() map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(s.order))
	for _, key := range s.order {
		prices[key] = s.markets[key].instrument.LastPrice
	}
	return prices
}

// markDirtyLocked schedules a debounced save. Repeated mutations inside the
// window coalesce into one write. Caller holds mu.
func (s *Session) markDirtyLocked() {
	s.dirty = true
	s.saveDue = s.clock.Now().Add(s.cfg.SaveDelay)
}

// flushSave persists the portfolio once the debounce window has elapsed
// (or immediately when force is set). A failed save is logged, never fatal:
// the in-memory portfolio stays the source of truth and the write is
// retried after the next window.
func (s *Session) flushSave(force bool) {
	s.mu.Lock()
	if !s.dirty || (!force && s.clock.Now().Before(s.saveDue)) {
		s.mu.Unlock()
		return
	}
	s.dirty = false
	snapshot := s.portfolio.Clone()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.SavePortfolio(ctx, s.userID, snapshot); err != nil {
		metrics.SavesTotal.WithLabelValues("error").Inc()
		slog.Error("portfolio save failed", "user", s.userID, "err", err)
		s.mu.Lock()
		s.dirty = true
		s.saveDue = s.clock.Now().Add(s.cfg.SaveDelay)
		s.mu.Unlock()
		return
	}
	metrics.SavesTotal.WithLabelValues("ok").Inc()
}
