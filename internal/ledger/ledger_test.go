package ledger_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradelab/sim-engine/internal/ledger"
	"github.com/tradelab/sim-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newPortfolio(cash float64) *model.Portfolio {
	return model.NewPortfolio(d(cash))
}

func buy(key string, qty float64) ledger.Intent {
	return ledger.Intent{InstrumentKey: key, Side: model.SideBuy, Quantity: d(qty)}
}

func sell(key string, qty float64) ledger.Intent {
	return ledger.Intent{InstrumentKey: key, Side: model.SideSell, Quantity: d(qty)}
}

func mustExecute(t *testing.T, p *model.Portfolio, intent ledger.Intent, price float64) *model.Portfolio {
	t.Helper()
	next, err := ledger.Execute(p, intent, d(price), now)
	if err != nil {
		t.Fatalf("execute %s %s: %v", intent.Side, intent.Quantity, err)
	}
	return next
}

// The concrete long scenario: 100000 cash, BUY 1 BTC at 50000, mark at
// 51000, SELL 1 at 51000.
func TestExecute_LongRoundTrip(t *testing.T) {
	p := newPortfolio(100000)

	p = mustExecute(t, p, buy("BTCUSD", 1), 50000)

	pos := p.Positions["BTCUSD"]
	if pos == nil {
		t.Fatal("expected an open position")
	}
	if !pos.Quantity.Equal(d(1)) || !pos.AveragePrice.Equal(d(50000)) {
		t.Errorf("unexpected position: qty=%s avg=%s", pos.Quantity, pos.AveragePrice)
	}
	if !p.Cash.Equal(d(50000)) {
		t.Errorf("cash should be 50000, got %s", p.Cash)
	}

	p = ledger.Mark(p, map[string]decimal.Decimal{"BTCUSD": d(51000)})
	pos = p.Positions["BTCUSD"]
	if !pos.PnL.Equal(d(1000)) {
		t.Errorf("pnl should be 1000, got %s", pos.PnL)
	}
	if !pos.PnLPercent.Equal(d(2)) {
		t.Errorf("pnl percent should be 2, got %s", pos.PnLPercent)
	}

	p = mustExecute(t, p, sell("BTCUSD", 1), 51000)

	if _, ok := p.Positions["BTCUSD"]; ok {
		t.Error("position should be removed when quantity reaches zero")
	}
	if len(p.Trades) != 1 {
		t.Fatalf("expected exactly one trade, got %d", len(p.Trades))
	}
	trade := p.Trades[0]
	if trade.Side != model.TradeSideLong {
		t.Errorf("trade side should be LONG, got %s", trade.Side)
	}
	if !trade.EntryPrice.Equal(d(50000)) || !trade.ExitPrice.Equal(d(51000)) {
		t.Errorf("unexpected entry/exit: %s/%s", trade.EntryPrice, trade.ExitPrice)
	}
	if !trade.RealizedPnL.Equal(d(1000)) {
		t.Errorf("realized pnl should be 1000, got %s", trade.RealizedPnL)
	}
	if !p.Cash.Equal(d(101000)) {
		t.Errorf("cash should be 101000, got %s", p.Cash)
	}
	if !p.TotalValue.Equal(d(101000)) {
		t.Errorf("total value should be 101000 with no positions, got %s", p.TotalValue)
	}
}

// The concrete short scenario: SELL 2 at 100 opens a short, BUY 1 at 90
// covers half.
func TestExecute_ShortOpenAndPartialCover(t *testing.T) {
	p := newPortfolio(1000)

	p = mustExecute(t, p, sell("ETHUSD", 2), 100)

	pos := p.Positions["ETHUSD"]
	if !pos.Quantity.Equal(d(-2)) || !pos.AveragePrice.Equal(d(100)) {
		t.Errorf("unexpected short position: qty=%s avg=%s", pos.Quantity, pos.AveragePrice)
	}
	if !p.Cash.Equal(d(1200)) {
		t.Errorf("short proceeds should raise cash to 1200, got %s", p.Cash)
	}

	p = mustExecute(t, p, buy("ETHUSD", 1), 90)

	pos = p.Positions["ETHUSD"]
	if !pos.Quantity.Equal(d(-1)) {
		t.Errorf("quantity should be -1 after covering 1, got %s", pos.Quantity)
	}
	if !pos.AveragePrice.Equal(d(100)) {
		t.Errorf("average price must not change on a reduce, got %s", pos.AveragePrice)
	}
	if len(p.Trades) != 1 {
		t.Fatalf("expected one trade, got %d", len(p.Trades))
	}
	trade := p.Trades[0]
	if trade.Side != model.TradeSideShort {
		t.Errorf("trade side should be SHORT, got %s", trade.Side)
	}
	if !trade.RealizedPnL.Equal(d(10)) {
		t.Errorf("realized pnl should be (100-90)*1 = 10, got %s", trade.RealizedPnL)
	}
	if !trade.Quantity.Equal(d(1)) {
		t.Errorf("trade quantity should be 1, got %s", trade.Quantity)
	}
}

func TestExecute_WeightedAverageIdempotence(t *testing.T) {
	p := newPortfolio(100000)

	p = mustExecute(t, p, buy("BTCUSD", 1), 30000)
	p = mustExecute(t, p, buy("BTCUSD", 1), 30000)

	pos := p.Positions["BTCUSD"]
	if !pos.AveragePrice.Equal(d(30000)) {
		t.Errorf("adding at the same price must keep the average, got %s", pos.AveragePrice)
	}
	if !pos.Quantity.Equal(d(2)) {
		t.Errorf("quantity should be 2, got %s", pos.Quantity)
	}
}

func TestExecute_WeightedAverageBlends(t *testing.T) {
	p := newPortfolio(1000)

	p = mustExecute(t, p, buy("ETHUSD", 1), 100)
	p = mustExecute(t, p, buy("ETHUSD", 1), 200)

	pos := p.Positions["ETHUSD"]
	if !pos.AveragePrice.Equal(d(150)) {
		t.Errorf("average of 100 and 200 should be 150, got %s", pos.AveragePrice)
	}

	// Shorts blend the same way on the absolute quantity.
	p2 := newPortfolio(1000)
	p2 = mustExecute(t, p2, sell("ETHUSD", 1), 100)
	p2 = mustExecute(t, p2, sell("ETHUSD", 3), 200)

	pos2 := p2.Positions["ETHUSD"]
	if !pos2.Quantity.Equal(d(-4)) {
		t.Errorf("short quantity should be -4, got %s", pos2.Quantity)
	}
	if !pos2.AveragePrice.Equal(d(175)) {
		t.Errorf("short average should be (100+3*200)/4 = 175, got %s", pos2.AveragePrice)
	}
}

func TestExecute_InsufficientCashRejected(t *testing.T) {
	p := newPortfolio(100)
	before := p.Clone()

	next, err := ledger.Execute(p, buy("BTCUSD", 1), d(50000), now)
	if err != ledger.ErrInsufficientCash {
		t.Fatalf("expected ErrInsufficientCash, got %v", err)
	}
	if next != p {
		t.Error("rejected execution must return the input portfolio")
	}
	assertUnchanged(t, before, p)
}

func TestExecute_InvalidQuantityRejected(t *testing.T) {
	p := newPortfolio(1000)

	if _, err := ledger.Execute(p, buy("BTCUSD", 0), d(100), now); err != ledger.ErrInvalidQuantity {
		t.Errorf("zero quantity: expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := ledger.Execute(p, buy("BTCUSD", -5), d(100), now); err != ledger.ErrInvalidQuantity {
		t.Errorf("negative quantity: expected ErrInvalidQuantity, got %v", err)
	}
	if _, err := ledger.Execute(p, buy("BTCUSD", 1), d(0), now); err != ledger.ErrInvalidPrice {
		t.Errorf("zero price: expected ErrInvalidPrice, got %v", err)
	}
	if _, err := ledger.Execute(p, ledger.Intent{InstrumentKey: "BTCUSD", Side: "HOLD", Quantity: d(1)}, d(100), now); err != ledger.ErrInvalidSide {
		t.Errorf("bad side: expected ErrInvalidSide, got %v", err)
	}
	if len(p.Orders) != 0 || len(p.Positions) != 0 {
		t.Error("rejections must not mutate the portfolio")
	}
}

// Overshoot through zero: short -2 at avg 100, BUY 5 at 90. The existing
// magnitude is closed as one trade and the remainder opens a fresh long at
// the execution price.
func TestExecute_ReduceOvershootFlipsPosition(t *testing.T) {
	p := newPortfolio(10000)
	p = mustExecute(t, p, sell("ETHUSD", 2), 100)
	cashBefore := p.Cash

	p = mustExecute(t, p, buy("ETHUSD", 5), 90)

	if len(p.Trades) != 1 {
		t.Fatalf("expected one realized trade, got %d", len(p.Trades))
	}
	trade := p.Trades[0]
	if !trade.Quantity.Equal(d(2)) {
		t.Errorf("trade quantity should clamp to the closed magnitude 2, got %s", trade.Quantity)
	}
	if !trade.RealizedPnL.Equal(d(20)) {
		t.Errorf("realized pnl should be (100-90)*2 = 20, got %s", trade.RealizedPnL)
	}

	pos := p.Positions["ETHUSD"]
	if pos == nil {
		t.Fatal("remainder should open a long position")
	}
	if !pos.Quantity.Equal(d(3)) {
		t.Errorf("flipped quantity should be +3, got %s", pos.Quantity)
	}
	if !pos.AveragePrice.Equal(d(90)) {
		t.Errorf("flipped position must take the execution price as basis, got %s", pos.AveragePrice)
	}
	if !pos.CreatedAt.Equal(now) {
		t.Errorf("flipped position should get a fresh CreatedAt")
	}
	if !p.Cash.Equal(cashBefore.Sub(d(450))) {
		t.Errorf("cash should drop by the full 5*90 notional, got %s", p.Cash)
	}
}

func TestExecute_OrderLogMostRecentFirst(t *testing.T) {
	p := newPortfolio(10000)

	p = mustExecute(t, p, buy("ETHUSD", 1), 100)
	p = mustExecute(t, p, buy("ETHUSD", 2), 110)

	if len(p.Orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(p.Orders))
	}
	if !p.Orders[0].Quantity.Equal(d(2)) {
		t.Errorf("most recent order should be first, got qty %s", p.Orders[0].Quantity)
	}
	for _, o := range p.Orders {
		if o.Status != model.OrderStatusExecuted {
			t.Errorf("order %s should be EXECUTED, got %s", o.ID, o.Status)
		}
		if o.ID == "" {
			t.Error("order should carry an ID")
		}
	}
}

// Cash plus realized and unrealized P&L must reconcile exactly with the
// sum of signed notionals over any order sequence.
func TestExecute_CashReconciles(t *testing.T) {
	p := newPortfolio(100000)

	steps := []struct {
		intent ledger.Intent
		price  float64
	}{
		{buy("BTCUSD", 2), 100},
		{buy("BTCUSD", 1), 130},
		{sell("BTCUSD", 2), 150},
		{sell("ETHUSD", 4), 50},
		{buy("ETHUSD", 4), 40},
		{sell("BTCUSD", 1), 90},
	}

	expected := d(100000)
	for _, s := range steps {
		p = mustExecute(t, p, s.intent, s.price)
		notional := s.intent.Quantity.Mul(d(s.price))
		if s.intent.Side == model.SideBuy {
			expected = expected.Sub(notional)
		} else {
			expected = expected.Add(notional)
		}
	}

	if !p.Cash.Equal(expected) {
		t.Errorf("cash drifted: got %s, want %s", p.Cash, expected)
	}
	if len(p.Positions) != 0 {
		t.Errorf("all positions should be flat, got %d", len(p.Positions))
	}

	// Realized P&L across trades equals the cash delta.
	realized := decimal.Zero
	for _, tr := range p.Trades {
		realized = realized.Add(tr.RealizedPnL)
	}
	if !p.Cash.Sub(d(100000)).Equal(realized) {
		t.Errorf("realized pnl %s does not match cash delta %s", realized, p.Cash.Sub(d(100000)))
	}
}

func TestExecute_InputPortfolioNeverMutated(t *testing.T) {
	p := newPortfolio(10000)
	p = mustExecute(t, p, buy("ETHUSD", 1), 100)
	before := p.Clone()

	mustExecute(t, p, sell("ETHUSD", 1), 120)
	assertUnchanged(t, before, p)
}

func assertUnchanged(t *testing.T, want, got *model.Portfolio) {
	t.Helper()
	if !want.Cash.Equal(got.Cash) {
		t.Errorf("cash changed: %s -> %s", want.Cash, got.Cash)
	}
	if len(want.Positions) != len(got.Positions) {
		t.Errorf("positions changed: %d -> %d", len(want.Positions), len(got.Positions))
	}
	if len(want.Orders) != len(got.Orders) || len(want.Trades) != len(got.Trades) {
		t.Error("order/trade logs changed")
	}
	for key, wp := range want.Positions {
		gp := got.Positions[key]
		if gp == nil || !wp.Quantity.Equal(gp.Quantity) || !wp.AveragePrice.Equal(gp.AveragePrice) {
			t.Errorf("position %s changed", key)
		}
	}
}
