package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceTick is a single price observation for a symbol at a point in time.
type PriceTick struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// Candle is an OHLCV bar aggregating ticks over a fixed interval.
// Indicators may carry precomputed values from the data source
// (e.g. "rsi", "ma_10"); strategies compute what is missing themselves.
type Candle struct {
	Timestamp  time.Time                  `json:"timestamp"`
	Open       decimal.Decimal            `json:"open"`
	High       decimal.Decimal            `json:"high"`
	Low        decimal.Decimal            `json:"low"`
	Close      decimal.Decimal            `json:"close"`
	Volume     decimal.Decimal            `json:"volume"`
	Indicators map[string]decimal.Decimal `json:"indicators,omitempty"`
}

// Closes extracts the close series from a candle slice.
func Closes(candles []Candle) []decimal.Decimal {
	out := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
