package session

import (
	"github.com/shopspring/decimal"

	"github.com/tradelab/sim-engine/internal/ledger"
	"github.com/tradelab/sim-engine/internal/metrics"
	"github.com/tradelab/sim-engine/internal/model"
)

// PlaceOrder executes a trade intent at the current synthetic mark and
// returns the updated portfolio. Rejections leave the portfolio unchanged.
func (s *Session) PlaceOrder(instrumentKey, side string, quantity decimal.Decimal) (*model.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mk, ok := s.markets[instrumentKey]
	if !ok {
		metrics.OrderRejections.WithLabelValues("unknown_instrument").Inc()
		return nil, ErrUnknownInstrument
	}

	return s.executeLocked(ledger.Intent{
		InstrumentKey: instrumentKey,
		Side:          side,
		Quantity:      quantity,
	}, mk.instrument.LastPrice)
}

// ClosePosition reduces an open position by quantity at the current mark.
// A zero quantity closes the full position. The quantity is clamped to the
// position's magnitude, so a close can never flip the position.
func (s *Session) ClosePosition(instrumentKey string, quantity decimal.Decimal) (*model.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mk, ok := s.markets[instrumentKey]
	if !ok {
		metrics.OrderRejections.WithLabelValues("unknown_instrument").Inc()
		return nil, ErrUnknownInstrument
	}
	pos, ok := s.portfolio.Positions[instrumentKey]
	if !ok {
		metrics.OrderRejections.WithLabelValues("no_position").Inc()
		return nil, ErrNoPosition
	}

	magnitude := pos.Quantity.Abs()
	if quantity.LessThanOrEqual(decimal.Zero) || quantity.GreaterThan(magnitude) {
		quantity = magnitude
	}

	side := model.SideSell
	if pos.Quantity.IsNegative() {
		side = model.SideBuy
	}

	return s.executeLocked(ledger.Intent{
		InstrumentKey: instrumentKey,
		Side:          side,
		Quantity:      quantity,
	}, mk.instrument.LastPrice)
}

// ReversePosition closes the full existing position and opens the opposite
// position of the same magnitude in one logical operation built from two
// ledger calls. Either both apply or neither does.
func (s *Session) ReversePosition(instrumentKey string) (*model.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mk, ok := s.markets[instrumentKey]
	if !ok {
		metrics.OrderRejections.WithLabelValues("unknown_instrument").Inc()
		return nil, ErrUnknownInstrument
	}
	pos, ok := s.portfolio.Positions[instrumentKey]
	if !ok {
		metrics.OrderRejections.WithLabelValues("no_position").Inc()
		return nil, ErrNoPosition
	}

	magnitude := pos.Quantity.Abs()
	closeSide := model.SideSell
	if pos.Quantity.IsNegative() {
		closeSide = model.SideBuy
	}
	price := mk.instrument.LastPrice
	now := s.clock.Now()

	closed, err := ledger.Execute(s.portfolio, ledger.Intent{
		InstrumentKey: instrumentKey,
		Side:          closeSide,
		Quantity:      magnitude,
	}, price, now)
	if err != nil {
		metrics.OrderRejections.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	reversed, err := ledger.Execute(closed, ledger.Intent{
		InstrumentKey: instrumentKey,
		Side:          opposite(closeSide),
		Quantity:      magnitude,
	}, price, now)
	if err != nil {
		// Neither leg is committed.
		metrics.OrderRejections.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	s.portfolio = reversed
	s.markDirtyLocked()
	metrics.OrdersTotal.WithLabelValues(closeSide).Inc()
	metrics.OrdersTotal.WithLabelValues(opposite(closeSide)).Inc()
	return reversed.Clone(), nil
}

// executeLocked runs one ledger execution and commits the result.
// Caller holds mu.
func (s *Session) executeLocked(intent ledger.Intent, price decimal.Decimal) (*model.Portfolio, error) {
	next, err := ledger.Execute(s.portfolio, intent, price, s.clock.Now())
	if err != nil {
		metrics.OrderRejections.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	s.portfolio = next
	s.markDirtyLocked()
	metrics.OrdersTotal.WithLabelValues(intent.Side).Inc()
	return next.Clone(), nil
}

func opposite(side string) string {
	if side == model.SideBuy {
		return model.SideSell
	}
	return model.SideBuy
}

func rejectionReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case err == ledger.ErrInsufficientCash:
		return "insufficient_cash"
	case err == ledger.ErrInvalidQuantity:
		return "invalid_quantity"
	case err == ledger.ErrInvalidPrice:
		return "invalid_price"
	case err == ledger.ErrInvalidSide:
		return "invalid_side"
	default:
		return "other"
	}
}

// Portfolio returns a marked snapshot of the portfolio.
func (s *Session) Portfolio() *model.Portfolio {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.portfolio.Clone()
}

// Instruments returns the instrument set with current cached prices.
func (s *Session) Instruments() []model.Instrument {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Instrument, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.markets[key].instrument)
	}
	return out
}

// Timeframe returns the active display timeframe.
func (s *Session) Timeframe() model.Timeframe {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeframe
}

// SetTimeframe switches the active display timeframe. The price processes
// keep running; only the aggregation state is rebuilt from the existing
// base-bar history.
func (s *Session) SetTimeframe(tf model.Timeframe) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tf == s.timeframe {
		return
	}
	s.timeframe = tf
	for _, key := range s.order {
		s.markets[key].rebuildAggregate(tf)
	}
}

// Candles returns the aggregate-timeframe bars for an instrument, completed
// history first, ending with the in-progress bar.
func (s *Session) Candles(instrumentKey string) ([]model.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mk, ok := s.markets[instrumentKey]
	if !ok {
		return nil, ErrUnknownInstrument
	}

	out := make([]model.Candle, 0, len(mk.aggHistory)+1)
	out = append(out, mk.aggHistory...)
	if mk.hasLive {
		out = append(out, mk.liveAgg)
	}
	return out, nil
}

// Subscribe registers a callback receiving the instrument's in-progress
// aggregate bar at the emit cadence (not on every tick). The returned
// function removes the subscription.
func (s *Session) Subscribe(instrumentKey string, cb func(model.Candle)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[instrumentKey]; !ok {
		return nil, ErrUnknownInstrument
	}

	if s.subs[instrumentKey] == nil {
		s.subs[instrumentKey] = make(map[int]func(model.Candle))
	}
	id := s.nextSubID
	s.nextSubID++
	s.subs[instrumentKey][id] = cb

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[instrumentKey], id)
	}, nil
}

// LastPrice returns the latest synthetic mark for an instrument.
func (s *Session) LastPrice(instrumentKey string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mk, ok := s.markets[instrumentKey]
	if !ok {
		return decimal.Decimal{}, ErrUnknownInstrument
	}
	return mk.instrument.LastPrice, nil
}
