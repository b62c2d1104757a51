package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order represents a simulated trading order. The simulator owns the order
// until it reaches a terminal status; after that it is immutable history.
type Order struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	Side           string          `json:"side"` // "BUY", "SELL"
	Type           string          `json:"type"` // "MARKET", "LIMIT", "STOP_LOSS", "TAKE_PROFIT"
	Quantity       decimal.Decimal `json:"quantity"`
	LimitPrice     decimal.Decimal `json:"limit_price"`
	StopPrice      decimal.Decimal `json:"stop_price"`
	Status         string          `json:"status"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	AvgFillPrice   decimal.Decimal `json:"avg_fill_price"`
	Commission     decimal.Decimal `json:"commission"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeMarket     = "MARKET"
	OrderTypeLimit      = "LIMIT"
	OrderTypeStopLoss   = "STOP_LOSS"
	OrderTypeTakeProfit = "TAKE_PROFIT"

	OrderStatusPending   = "PENDING"
	OrderStatusFilled    = "FILLED"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusRejected  = "REJECTED"
	OrderStatusExpired   = "EXPIRED"
)

// IsOpen checks if the order is still active. PENDING is the only
// non-terminal status.
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusPending
}

// IsTerminal reports whether the order can never change again.
func (o *Order) IsTerminal() bool {
	return !o.IsOpen()
}
