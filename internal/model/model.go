// Package model defines the core domain types shared across the simulation
// engine. All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Trade sides — the side of the position that was closed, not the order side.
const (
	TradeSideLong  = "LONG"
	TradeSideShort = "SHORT"
)

// Order lifecycle statuses. All orders execute synchronously at the current
// mark, so OPEN is only ever observable inside a single Execute call.
const (
	OrderStatusOpen     = "OPEN"
	OrderStatusExecuted = "EXECUTED"
)

// SchemaVersion is the current portfolio persistence schema version.
// Loads of a blob with a different version fail rather than coerce.
const SchemaVersion = 1

// Instrument is immutable reference data for a tradable symbol.
// LastPrice is a cache updated by the simulation session.
type Instrument struct {
	Key       string          `json:"key"`
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	TickSize  decimal.Decimal `json:"tick_size"`
	LotSize   decimal.Decimal `json:"lot_size"`
	LastPrice decimal.Decimal `json:"last_price"`
}

// Candle is one OHLCV bar. Time is the bar-start epoch in seconds, aligned
// to the period boundary. Invariant: Low <= Open, Close <= High.
type Candle struct {
	Time   int64           `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// Order is an executed trade intent. Most-recent-first in Portfolio.Orders.
type Order struct {
	ID            string          `json:"id"`
	InstrumentKey string          `json:"instrument_key"`
	Side          string          `json:"side"` // BUY or SELL
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Position is one open exposure. Quantity is signed: positive = long,
// negative = short. A position with zero quantity does not exist and must
// be removed from the portfolio.
type Position struct {
	InstrumentKey string          `json:"instrument_key"`
	Quantity      decimal.Decimal `json:"quantity"`
	AveragePrice  decimal.Decimal `json:"average_price"`
	LastPrice     decimal.Decimal `json:"last_price"`
	PnL           decimal.Decimal `json:"pnl"`
	PnLPercent    decimal.Decimal `json:"pnl_percent"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Trade is an immutable record of realized P&L, created exactly once per
// execution that reduces the magnitude of an existing position.
type Trade struct {
	ID            string          `json:"id"`
	InstrumentKey string          `json:"instrument_key"`
	Side          string          `json:"side"` // LONG or SHORT
	Quantity      decimal.Decimal `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	ExitPrice     decimal.Decimal `json:"exit_price"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	EntryTime     time.Time       `json:"entry_time"`
	ExitTime      time.Time       `json:"exit_time"`
}

// Portfolio is the full account state for one user. Mutated only through
// ledger operations; the valuer touches only LastPrice/PnL/TotalValue.
type Portfolio struct {
	Version    int                  `json:"version"`
	Cash       decimal.Decimal      `json:"cash"`
	Positions  map[string]*Position `json:"positions"`
	Orders     []Order              `json:"orders"` // most-recent-first
	Trades     []Trade              `json:"trades"` // most-recent-first
	TotalValue decimal.Decimal      `json:"total_value"`
}

// NewPortfolio creates a fresh portfolio with the given starting cash.
func NewPortfolio(startingCash decimal.Decimal) *Portfolio {
	return &Portfolio{
		Version:    SchemaVersion,
		Cash:       startingCash,
		Positions:  make(map[string]*Position),
		TotalValue: startingCash,
	}
}

// Clone returns a deep copy. Ledger operations work on a clone so a rejected
// intent leaves the caller's portfolio untouched.
func (p *Portfolio) Clone() *Portfolio {
	cp := &Portfolio{
		Version:    p.Version,
		Cash:       p.Cash,
		Positions:  make(map[string]*Position, len(p.Positions)),
		Orders:     make([]Order, len(p.Orders)),
		Trades:     make([]Trade, len(p.Trades)),
		TotalValue: p.TotalValue,
	}
	for k, pos := range p.Positions {
		posCopy := *pos
		cp.Positions[k] = &posCopy
	}
	copy(cp.Orders, p.Orders)
	copy(cp.Trades, p.Trades)
	return cp
}
