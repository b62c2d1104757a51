package event

import (
	"time"

	"github.com/shopspring/decimal"

	"simtrader/internal/domain"
)

// Event kinds.
const (
	KindPriceTick = "price_tick"
	KindCandle    = "candle"
)

// Event is anything the engine inbox can carry.
type Event interface {
	Kind() string
}

// PriceTickEvent carries one market price update.
type PriceTickEvent struct {
	Symbol    string
	Price     decimal.Decimal
	Timestamp time.Time
}

func (e *PriceTickEvent) Kind() string { return KindPriceTick }

// CandleEvent carries one closed candle.
type CandleEvent struct {
	Symbol string
	Candle domain.Candle
}

func (e *CandleEvent) Kind() string { return KindCandle }
