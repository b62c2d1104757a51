package domain

import "github.com/shopspring/decimal"

// PortfolioSnapshot is a point-in-time view of the ledger, safe to hand to
// the UI/push layer.
type PortfolioSnapshot struct {
	InitialBalance   decimal.Decimal `json:"initial_balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	PositionValue    decimal.Decimal `json:"position_value"`
	TotalValue       decimal.Decimal `json:"total_value"`
	TotalPnL         decimal.Decimal `json:"total_pnl"`
	TotalReturnPct   decimal.Decimal `json:"total_return_pct"`
	WinRate          float64         `json:"win_rate"` // winning sells / total sells, 0 if none
	TotalTrades      int             `json:"total_trades"`
	TotalCommission  decimal.Decimal `json:"total_commission"`
	Positions        []Position      `json:"positions"` // copies; closed positions stay with quantity zero
}

// Find returns the position for a symbol, if any. Check Quantity to tell an
// open position from a closed one.
func (s PortfolioSnapshot) Find(symbol string) (Position, bool) {
	for _, pos := range s.Positions {
		if pos.Symbol == symbol {
			return pos, true
		}
	}
	return Position{}, false
}
