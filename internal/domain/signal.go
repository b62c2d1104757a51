package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Signal is a directional trade recommendation produced by a strategy.
// A signal is never mutated after creation.
type Signal struct {
	Direction string            `json:"direction"` // SideBuy or SideSell
	Strength  float64           `json:"strength"`  // in (0, 1]
	Price     decimal.Decimal   `json:"price"`     // reference price at emission
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (s Signal) String() string {
	return fmt.Sprintf("Signal(%s strength=%.2f price=%s)", s.Direction, s.Strength, s.Price)
}
