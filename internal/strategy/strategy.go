package strategy

import (
	"simtrader/internal/domain"
)

// historyLimit bounds each generator's signal history ring.
const historyLimit = 1000

// SignalGenerator produces at most one signal from a candle series.
// Implementations are deterministic: insufficient history yields nil,
// never an error. The only side effect of Generate is appending the
// emitted signal to the generator's own bounded history.
type SignalGenerator interface {
	// Name returns the generator's registry name.
	Name() string

	// Generate inspects the series and returns a signal or nil.
	// The series is ordered oldest-first and must not be retained.
	Generate(candles []domain.Candle) *domain.Signal

	// History returns a copy of the emitted signals, oldest-first.
	History() []domain.Signal
}

// Stats summarizes a generator's emitted signals.
type Stats struct {
	Total       int
	Buys        int
	Sells       int
	AvgStrength float64
	Last        *domain.Signal
}

// signalLog is a fixed-size ring of emitted signals shared by all
// generator implementations.
type signalLog struct {
	buf   []domain.Signal
	head  int
	count int
}

func newSignalLog() signalLog {
	return signalLog{buf: make([]domain.Signal, historyLimit)}
}

func (l *signalLog) record(s domain.Signal) {
	l.buf[l.head] = s
	l.head = (l.head + 1) % len(l.buf)
	if l.count < len(l.buf) {
		l.count++
	}
}

// snapshot returns the recorded signals oldest-first.
func (l *signalLog) snapshot() []domain.Signal {
	out := make([]domain.Signal, 0, l.count)
	start := l.head - l.count
	if start < 0 {
		start += len(l.buf)
	}
	for i := 0; i < l.count; i++ {
		out = append(out, l.buf[(start+i)%len(l.buf)])
	}
	return out
}

func (l *signalLog) stats() Stats {
	sigs := l.snapshot()
	st := Stats{Total: len(sigs)}
	if len(sigs) == 0 {
		return st
	}
	var sum float64
	for i := range sigs {
		switch sigs[i].Direction {
		case domain.SideBuy:
			st.Buys++
		case domain.SideSell:
			st.Sells++
		}
		sum += sigs[i].Strength
	}
	st.AvgStrength = sum / float64(len(sigs))
	last := sigs[len(sigs)-1]
	st.Last = &last
	return st
}
