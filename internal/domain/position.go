package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Position tracks holdings for a single symbol. It is created on the first
// fill and persists after a full close: quantity returns to zero while
// realized P&L and commission keep accumulating across re-entries.
//
// Invariants: Quantity >= 0 always; AvgPrice == 0 iff Quantity == 0.
type Position struct {
	Symbol          string          `json:"symbol"`
	Quantity        decimal.Decimal `json:"quantity"`
	AvgPrice        decimal.Decimal `json:"avg_price"`
	TotalCost       decimal.Decimal `json:"total_cost"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL   decimal.Decimal `json:"unrealized_pnl"`
	TotalCommission decimal.Decimal `json:"total_commission"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewPosition creates an empty position for a symbol.
func NewPosition(symbol string) *Position {
	return &Position{Symbol: symbol}
}

// ApplyBuy folds a buy fill into the position. The new average price is the
// notional-weighted average over all buy fills.
func (p *Position) ApplyBuy(quantity, price decimal.Decimal, at time.Time) {
	notional := quantity.Mul(price)
	newCost := p.TotalCost.Add(notional)
	newQty := p.Quantity.Add(quantity)

	p.AvgPrice = newCost.Div(newQty)
	p.Quantity = newQty
	p.TotalCost = newCost
	p.UpdatedAt = at
}

// ApplySell folds a sell fill into the position and returns the realized
// profit or loss of this fill. Selling more than held fails with
// ErrInsufficientPosition and leaves the position unchanged.
func (p *Position) ApplySell(quantity, price decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	if quantity.GreaterThan(p.Quantity) {
		return decimal.Zero, fmt.Errorf("sell %s %s with %s held: %w",
			quantity, p.Symbol, p.Quantity, ErrInsufficientPosition)
	}

	sellCost := quantity.Mul(p.AvgPrice)
	realized := quantity.Mul(price).Sub(sellCost)

	p.RealizedPnL = p.RealizedPnL.Add(realized)
	p.Quantity = p.Quantity.Sub(quantity)
	if p.Quantity.IsZero() {
		p.TotalCost = decimal.Zero
		p.AvgPrice = decimal.Zero
		p.UnrealizedPnL = decimal.Zero
	} else {
		p.TotalCost = p.TotalCost.Sub(sellCost)
	}
	p.UpdatedAt = at
	return realized, nil
}

// MarkToMarket recomputes the unrealized P&L against the given price.
func (p *Position) MarkToMarket(price decimal.Decimal) {
	if p.Quantity.IsPositive() && price.IsPositive() {
		p.UnrealizedPnL = p.Quantity.Mul(price).Sub(p.TotalCost)
	} else {
		p.UnrealizedPnL = decimal.Zero
	}
}

// TotalPnL returns realized plus unrealized P&L.
func (p *Position) TotalPnL() decimal.Decimal {
	return p.RealizedPnL.Add(p.UnrealizedPnL)
}

// VerifyInvariant panics if the position violates its structural invariants.
// A violation is a programming error, not a recoverable condition.
func (p *Position) VerifyInvariant() {
	if p.Quantity.IsNegative() {
		panic(fmt.Sprintf("POSITION_INVARIANT_NEGATIVE_QTY: %s = %s", p.Symbol, p.Quantity))
	}
	if p.Quantity.IsZero() != p.AvgPrice.IsZero() {
		panic(fmt.Sprintf("POSITION_INVARIANT_AVG_PRICE: %s qty=%s avg=%s",
			p.Symbol, p.Quantity, p.AvgPrice))
	}
}
