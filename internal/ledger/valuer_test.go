package ledger_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tradelab/sim-engine/internal/ledger"
)

func TestMark_LongAndShortSigns(t *testing.T) {
	p := newPortfolio(10000)
	p = mustExecute(t, p, buy("BTCUSD", 2), 100)
	p = mustExecute(t, p, sell("ETHUSD", 3), 50)

	p = ledger.Mark(p, map[string]decimal.Decimal{
		"BTCUSD": d(110),
		"ETHUSD": d(60),
	})

	long := p.Positions["BTCUSD"]
	if !long.PnL.Equal(d(20)) {
		t.Errorf("long pnl should be (110-100)*2 = 20, got %s", long.PnL)
	}
	short := p.Positions["ETHUSD"]
	if !short.PnL.Equal(d(-30)) {
		t.Errorf("short pnl should be (60-50)*-3 = -30, got %s", short.PnL)
	}

	// totalValue = cash + Σ lastPrice*quantity.
	want := p.Cash.Add(d(110).Mul(d(2))).Add(d(60).Mul(d(-3)))
	if !p.TotalValue.Equal(want) {
		t.Errorf("total value should be %s, got %s", want, p.TotalValue)
	}
}

func TestMark_StalePriceRetained(t *testing.T) {
	p := newPortfolio(10000)
	p = mustExecute(t, p, buy("BTCUSD", 1), 100)
	p = ledger.Mark(p, map[string]decimal.Decimal{"BTCUSD": d(120)})

	// No update for BTCUSD: the previous mark sticks.
	p = ledger.Mark(p, map[string]decimal.Decimal{"ETHUSD": d(999)})

	pos := p.Positions["BTCUSD"]
	if !pos.LastPrice.Equal(d(120)) {
		t.Errorf("stale mark should be retained, got %s", pos.LastPrice)
	}
	if !pos.PnL.Equal(d(20)) {
		t.Errorf("pnl should still be 20, got %s", pos.PnL)
	}
}

func TestMark_Idempotent(t *testing.T) {
	p := newPortfolio(10000)
	p = mustExecute(t, p, buy("BTCUSD", 1), 100)

	prices := map[string]decimal.Decimal{"BTCUSD": d(105)}
	once := ledger.Mark(p, prices)
	twice := ledger.Mark(once, prices)

	if !once.TotalValue.Equal(twice.TotalValue) {
		t.Errorf("marking twice changed total value: %s vs %s", once.TotalValue, twice.TotalValue)
	}
	if !once.Cash.Equal(twice.Cash) {
		t.Error("mark must never touch cash")
	}
	if !once.Positions["BTCUSD"].Quantity.Equal(twice.Positions["BTCUSD"].Quantity) {
		t.Error("mark must never touch quantities")
	}
}

func TestMark_DoesNotMutateInput(t *testing.T) {
	p := newPortfolio(10000)
	p = mustExecute(t, p, buy("BTCUSD", 1), 100)

	ledger.Mark(p, map[string]decimal.Decimal{"BTCUSD": d(500)})

	if !p.Positions["BTCUSD"].LastPrice.Equal(d(100)) {
		t.Errorf("input portfolio mutated: last price %s", p.Positions["BTCUSD"].LastPrice)
	}
}
