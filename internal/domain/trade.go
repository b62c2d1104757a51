package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is a fill record. Immutable once created; the ledger keeps trades
// as an append-only sequence.
type Trade struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"order_id"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Notional   decimal.Decimal `json:"notional"` // Quantity × Price
	Commission decimal.Decimal `json:"commission"`
	Timestamp  time.Time       `json:"timestamp"`
}
