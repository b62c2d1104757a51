package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"simtrader/internal/domain"
)

// DualMA fires on crossings of a short over a long simple moving average.
// A golden cross (short crossing above long) with a relative gap above the
// threshold emits BUY; the mirrored dead cross emits SELL.
type DualMA struct {
	name        string
	shortPeriod int
	longPeriod  int
	threshold   decimal.Decimal // percent, e.g. 0.1 means 0.1%

	log signalLog
}

// NewDualMA creates a dual moving-average crossover generator.
func NewDualMA(name string, shortPeriod, longPeriod int, thresholdPct decimal.Decimal) *DualMA {
	if shortPeriod >= longPeriod {
		panic("strategy: DualMA shortPeriod must be less than longPeriod")
	}
	return &DualMA{
		name:        name,
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		threshold:   thresholdPct,
		log:         newSignalLog(),
	}
}

func (s *DualMA) Name() string { return s.name }

func (s *DualMA) Generate(candles []domain.Candle) *domain.Signal {
	// A crossing needs the averages at the current and the previous bar.
	if len(candles) < s.longPeriod+1 {
		return nil
	}
	closes := domain.Closes(candles)

	currShort := sma(closes, s.shortPeriod)
	currLong := sma(closes, s.longPeriod)
	prev := closes[:len(closes)-1]
	prevShort := sma(prev, s.shortPeriod)
	prevLong := sma(prev, s.longPeriod)

	if currLong.IsZero() {
		return nil
	}
	gap := currShort.Sub(currLong).Abs().Div(currLong)
	if gap.LessThanOrEqual(s.threshold.Div(decimal.NewFromInt(100))) {
		return nil
	}

	var direction, cross string
	switch {
	case prevShort.LessThanOrEqual(prevLong) && currShort.GreaterThan(currLong):
		direction, cross = domain.SideBuy, "golden_cross"
	case prevShort.GreaterThanOrEqual(prevLong) && currShort.LessThan(currLong):
		direction, cross = domain.SideSell, "death_cross"
	default:
		return nil
	}

	sig := domain.Signal{
		Direction: direction,
		Strength:  clipStrength(gap.Mul(decimal.NewFromInt(10))),
		Price:     closes[len(closes)-1],
		Timestamp: time.Now(),
		Metadata: map[string]string{
			"short_ma": currShort.String(),
			"long_ma":  currLong.String(),
			"cross":    cross,
		},
	}
	s.log.record(sig)
	return &sig
}

func (s *DualMA) History() []domain.Signal { return s.log.snapshot() }

// Stats summarizes the generator's emitted signals.
func (s *DualMA) Stats() Stats { return s.log.stats() }
