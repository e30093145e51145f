// Package ledger implements order execution and position accounting: it
// applies trade intents to a portfolio, maintaining cash, weighted-average
// cost basis, signed long/short quantities, and realized-trade records.
//
// Execute and Mark are pure: they operate on a deep copy and return the new
// state, so a rejected intent leaves the caller's portfolio untouched and
// no operation can partially mutate cash without mutating quantity.
//
// All monetary values use shopspring/decimal — never float64 for money.
package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tradelab/sim-engine/internal/model"
)

var (
	// ErrInvalidQuantity is returned for intents with quantity <= 0.
	ErrInvalidQuantity = errors.New("ledger: quantity must be positive")

	// ErrInvalidPrice is returned for non-positive execution prices.
	ErrInvalidPrice = errors.New("ledger: execution price must be positive")

	// ErrInvalidSide is returned for a side other than BUY or SELL.
	ErrInvalidSide = errors.New("ledger: side must be BUY or SELL")

	// ErrInsufficientCash is returned when a BUY's notional exceeds cash.
	// The portfolio is returned unchanged.
	ErrInsufficientCash = errors.New("ledger: insufficient cash")
)

// hundred is the percent scale factor.
var hundred = decimal.NewFromInt(100)

// Intent is a trade intent: buy or sell a positive quantity of one
// instrument at the current mark.
type Intent struct {
	InstrumentKey string
	Side          string // BUY or SELL
	Quantity      decimal.Decimal
}

// Execute applies an intent to the portfolio at the given execution price.
// It returns a new portfolio with cash, positions, and the order/trade logs
// updated, after a full mark-to-market pass at the executed price.
//
// Cash policy: every BUY (opening, adding, or covering a short) is rejected
// with ErrInsufficientCash when its notional exceeds cash. SELLs never
// require cash.
//
// An order that reduces a position past zero is split: the existing
// magnitude is closed as one realized Trade, and the remainder opens a
// fresh opposite position at the execution price with a new CreatedAt.
func Execute(p *model.Portfolio, intent Intent, price decimal.Decimal, now time.Time) (*model.Portfolio, error) {
	if intent.Quantity.LessThanOrEqual(decimal.Zero) {
		return p, ErrInvalidQuantity
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return p, ErrInvalidPrice
	}
	if intent.Side != model.SideBuy && intent.Side != model.SideSell {
		return p, ErrInvalidSide
	}

	notional := intent.Quantity.Mul(price)
	if intent.Side == model.SideBuy && p.Cash.LessThan(notional) {
		return p, ErrInsufficientCash
	}

	cp := p.Clone()
	pos := cp.Positions[intent.InstrumentKey]

	switch {
	case pos == nil:
		open(cp, intent, price, now)

	case pos.Quantity.IsPositive() && intent.Side == model.SideBuy:
		addTo(cp, pos, intent.Quantity, price)

	case pos.Quantity.IsNegative() && intent.Side == model.SideSell:
		addTo(cp, pos, intent.Quantity, price)

	default:
		reduce(cp, pos, intent, price, now)
	}

	cp.Orders = append([]model.Order{{
		ID:            uuid.New().String(),
		InstrumentKey: intent.InstrumentKey,
		Side:          intent.Side,
		Quantity:      intent.Quantity,
		Price:         price,
		Status:        model.OrderStatusExecuted,
		CreatedAt:     now,
	}}, cp.Orders...)

	mark(cp, map[string]decimal.Decimal{intent.InstrumentKey: price})
	return cp, nil
}

// open creates a new position from a flat book.
func open(p *model.Portfolio, intent Intent, price decimal.Decimal, now time.Time) {
	qty := intent.Quantity
	if intent.Side == model.SideBuy {
		p.Cash = p.Cash.Sub(qty.Mul(price))
	} else {
		qty = qty.Neg()
		p.Cash = p.Cash.Add(intent.Quantity.Mul(price))
	}

	p.Positions[intent.InstrumentKey] = &model.Position{
		InstrumentKey: intent.InstrumentKey,
		Quantity:      qty,
		AveragePrice:  price,
		LastPrice:     price,
		CreatedAt:     now,
	}
}

// addTo grows an existing position in its own direction, recomputing the
// weighted-average cost basis.
func addTo(p *model.Portfolio, pos *model.Position, qty, price decimal.Decimal) {
	magnitude := pos.Quantity.Abs()
	pos.AveragePrice = pos.AveragePrice.Mul(magnitude).
		Add(qty.Mul(price)).
		Div(magnitude.Add(qty))

	if pos.Quantity.IsPositive() {
		pos.Quantity = pos.Quantity.Add(qty)
		p.Cash = p.Cash.Sub(qty.Mul(price))
	} else {
		pos.Quantity = pos.Quantity.Sub(qty)
		p.Cash = p.Cash.Add(qty.Mul(price))
	}
}

// reduce shrinks a position with an opposite-direction order, realizing
// P&L for the closed quantity. If the order overshoots the position's
// magnitude, the remainder opens a fresh opposite position at price.
func reduce(p *model.Portfolio, pos *model.Position, intent Intent, price decimal.Decimal, now time.Time) {
	magnitude := pos.Quantity.Abs()
	closedQty := decimal.Min(intent.Quantity, magnitude)

	side := model.TradeSideLong
	realized := price.Sub(pos.AveragePrice).Mul(closedQty)
	if pos.Quantity.IsNegative() {
		side = model.TradeSideShort
		realized = pos.AveragePrice.Sub(price).Mul(closedQty)
	}

	p.Trades = append([]model.Trade{{
		ID:            uuid.New().String(),
		InstrumentKey: pos.InstrumentKey,
		Side:          side,
		Quantity:      closedQty,
		EntryPrice:    pos.AveragePrice,
		ExitPrice:     price,
		RealizedPnL:   realized,
		EntryTime:     pos.CreatedAt,
		ExitTime:      now,
	}}, p.Trades...)

	if intent.Side == model.SideSell {
		p.Cash = p.Cash.Add(intent.Quantity.Mul(price))
	} else {
		p.Cash = p.Cash.Sub(intent.Quantity.Mul(price))
	}

	remainder := intent.Quantity.Sub(closedQty)
	if remainder.IsZero() {
		if pos.Quantity.Abs().Equal(closedQty) {
			delete(p.Positions, pos.InstrumentKey)
			return
		}
		if pos.Quantity.IsPositive() {
			pos.Quantity = pos.Quantity.Sub(closedQty)
		} else {
			pos.Quantity = pos.Quantity.Add(closedQty)
		}
		return
	}

	// Overshoot: the old exposure is fully closed, the remainder opens the
	// opposite side at the execution price with a fresh CreatedAt.
	flipped := remainder
	if intent.Side == model.SideSell {
		flipped = remainder.Neg()
	}
	p.Positions[pos.InstrumentKey] = &model.Position{
		InstrumentKey: pos.InstrumentKey,
		Quantity:      flipped,
		AveragePrice:  price,
		LastPrice:     price,
		CreatedAt:     now,
	}
}
