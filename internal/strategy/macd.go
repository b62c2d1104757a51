package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"simtrader/internal/domain"
)

// MACD fires on histogram zero-crossings. The histogram is the difference
// between the fast/slow EMA spread and its own EMA signal line; a crossing
// from <=0 to >0 emits BUY, the reverse emits SELL.
type MACD struct {
	name         string
	fastPeriod   int
	slowPeriod   int
	signalPeriod int

	log signalLog
}

// NewMACD creates a MACD histogram zero-crossing generator.
func NewMACD(name string, fast, slow, signal int) *MACD {
	if fast >= slow {
		panic("strategy: MACD fast period must be less than slow period")
	}
	return &MACD{
		name:         name,
		fastPeriod:   fast,
		slowPeriod:   slow,
		signalPeriod: signal,
		log:          newSignalLog(),
	}
}

func (s *MACD) Name() string { return s.name }

func (s *MACD) Generate(candles []domain.Candle) *domain.Signal {
	minLen := s.slowPeriod
	if s.signalPeriod > minLen {
		minLen = s.signalPeriod
	}
	if len(candles) < minLen+1 {
		return nil
	}
	closes := domain.Closes(candles)

	fast := emaSeries(closes, s.fastPeriod)
	slow := emaSeries(closes, s.slowPeriod)
	macd := make([]decimal.Decimal, len(closes))
	for i := range closes {
		macd[i] = fast[i].Sub(slow[i])
	}
	signalLine := emaSeries(macd, s.signalPeriod)

	n := len(closes)
	currHist := macd[n-1].Sub(signalLine[n-1])
	prevHist := macd[n-2].Sub(signalLine[n-2])

	var direction, cross string
	switch {
	case prevHist.LessThanOrEqual(decimal.Zero) && currHist.IsPositive():
		direction, cross = domain.SideBuy, "bullish"
	case prevHist.GreaterThanOrEqual(decimal.Zero) && currHist.IsNegative():
		direction, cross = domain.SideSell, "bearish"
	default:
		return nil
	}

	strength := 1.0
	if !signalLine[n-1].IsZero() {
		strength = clipStrength(currHist.Abs().Div(signalLine[n-1].Abs()).Mul(decimal.NewFromInt(2)))
	}

	sig := domain.Signal{
		Direction: direction,
		Strength:  strength,
		Price:     closes[n-1],
		Timestamp: time.Now(),
		Metadata: map[string]string{
			"macd":      macd[n-1].StringFixed(6),
			"signal":    signalLine[n-1].StringFixed(6),
			"histogram": currHist.StringFixed(6),
			"cross":     cross,
		},
	}
	s.log.record(sig)
	return &sig
}

func (s *MACD) History() []domain.Signal { return s.log.snapshot() }

// Stats summarizes the generator's emitted signals.
func (s *MACD) Stats() Stats { return s.log.stats() }
