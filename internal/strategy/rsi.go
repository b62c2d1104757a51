package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"simtrader/internal/domain"
)

// RSIThreshold fires on edges crossing the oversold/overbought bounds:
// BUY when RSI drops below the oversold bound, SELL when it rises above
// the overbought bound. Strength grows with the distance past the bound.
type RSIThreshold struct {
	name       string
	period     int
	overbought decimal.Decimal
	oversold   decimal.Decimal

	log signalLog
}

// NewRSIThreshold creates an RSI threshold-crossing generator.
func NewRSIThreshold(name string, period int, overbought, oversold decimal.Decimal) *RSIThreshold {
	return &RSIThreshold{
		name:       name,
		period:     period,
		overbought: overbought,
		oversold:   oversold,
		log:        newSignalLog(),
	}
}

func (s *RSIThreshold) Name() string { return s.name }

func (s *RSIThreshold) Generate(candles []domain.Candle) *domain.Signal {
	// The previous bar's RSI needs one extra close beyond the period window.
	if len(candles) < s.period+2 {
		return nil
	}
	closes := domain.Closes(candles)

	curr := rsi(closes, s.period)
	prev := rsi(closes[:len(closes)-1], s.period)

	var direction, condition string
	var strength decimal.Decimal
	switch {
	case prev.GreaterThanOrEqual(s.oversold) && curr.LessThan(s.oversold):
		direction, condition = domain.SideBuy, "oversold"
		strength = s.oversold.Sub(curr).Div(s.oversold)
	case prev.LessThanOrEqual(s.overbought) && curr.GreaterThan(s.overbought):
		direction, condition = domain.SideSell, "overbought"
		strength = curr.Sub(s.overbought).Div(decimal.NewFromInt(100).Sub(s.overbought))
	default:
		return nil
	}

	sig := domain.Signal{
		Direction: direction,
		Strength:  clipStrength(strength),
		Price:     closes[len(closes)-1],
		Timestamp: time.Now(),
		Metadata: map[string]string{
			"rsi":       curr.StringFixed(2),
			"condition": condition,
		},
	}
	s.log.record(sig)
	return &sig
}

func (s *RSIThreshold) History() []domain.Signal { return s.log.snapshot() }

// Stats summarizes the generator's emitted signals.
func (s *RSIThreshold) Stats() Stats { return s.log.stats() }
