package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/tradelab/sim-engine/internal/model"
)

// Mark recomputes unrealized P&L and total equity for every open position
// against the supplied price map. Positions without an entry in the map
// keep their last known price. Pure and idempotent: cash and quantities are
// never touched.
func Mark(p *model.Portfolio, prices map[string]decimal.Decimal) *model.Portfolio {
	cp := p.Clone()
	mark(cp, prices)
	return cp
}

func mark(p *model.Portfolio, prices map[string]decimal.Decimal) {
	total := p.Cash

	for key, pos := range p.Positions {
		if price, ok := prices[key]; ok {
			pos.LastPrice = price
		}

		// One signed formula covers long and short: Quantity carries the sign.
		pos.PnL = pos.LastPrice.Sub(pos.AveragePrice).Mul(pos.Quantity)

		exposure := pos.AveragePrice.Mul(pos.Quantity.Abs())
		if exposure.IsPositive() {
			pos.PnLPercent = pos.PnL.Div(exposure).Mul(hundred)
		} else {
			pos.PnLPercent = decimal.Zero
		}

		total = total.Add(pos.LastPrice.Mul(pos.Quantity))
	}

	p.TotalValue = total
}
