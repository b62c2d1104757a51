package analytics

import (
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const secondsPerYear = 365.25 * 24 * 3600

// Metrics summarizes an equity curve. Percentages are plain percents
// (12.5 means 12.5%).
type Metrics struct {
	TotalReturnPct  float64
	AnnualReturnPct float64
	VolatilityPct   float64
	Sharpe          float64
	MaxDrawdownPct  float64
	Calmar          float64
	Observations    int
}

type equityPoint struct {
	at    time.Time
	value float64
}

// Analyzer accumulates an equity curve and derives risk-adjusted
// performance statistics from it.
type Analyzer struct {
	mu     sync.Mutex
	points []equityPoint
}

// NewAnalyzer creates an empty analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Observe appends one equity observation. Out-of-order or non-positive
// observations are dropped.
func (a *Analyzer) Observe(at time.Time, equity decimal.Decimal) {
	v, _ := equity.Float64()
	if v <= 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.points); n > 0 && !at.After(a.points[n-1].at) {
		return
	}
	a.points = append(a.points, equityPoint{at: at, value: v})
}

// Metrics computes the summary statistics over all observations so far.
// Fewer than two observations yield zero metrics.
func (a *Analyzer) Metrics() Metrics {
	a.mu.Lock()
	points := make([]equityPoint, len(a.points))
	copy(points, a.points)
	a.mu.Unlock()

	m := Metrics{Observations: len(points)}
	if len(points) < 2 {
		return m
	}

	first, last := points[0], points[len(points)-1]
	totalReturn := last.value/first.value - 1
	m.TotalReturnPct = totalReturn * 100

	elapsed := last.at.Sub(first.at).Seconds()
	if elapsed > 0 {
		annualized := math.Pow(1+totalReturn, secondsPerYear/elapsed) - 1
		m.AnnualReturnPct = annualized * 100
	}

	// Per-observation returns, annualized by the average sample spacing.
	returns := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		returns = append(returns, points[i].value/points[i-1].value-1)
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	if elapsed > 0 {
		samplesPerYear := float64(len(returns)) * secondsPerYear / elapsed
		m.VolatilityPct = math.Sqrt(variance) * math.Sqrt(samplesPerYear) * 100
	}
	if m.VolatilityPct > 0 {
		m.Sharpe = m.AnnualReturnPct / m.VolatilityPct
	}

	m.MaxDrawdownPct = maxDrawdown(points) * 100
	if m.MaxDrawdownPct > 0 {
		m.Calmar = m.AnnualReturnPct / m.MaxDrawdownPct
	}
	return m
}

// maxDrawdown returns the largest peak-to-trough decline as a fraction.
func maxDrawdown(points []equityPoint) float64 {
	peak := points[0].value
	worst := 0.0
	for _, p := range points {
		if p.value > peak {
			peak = p.value
		}
		if dd := (peak - p.value) / peak; dd > worst {
			worst = dd
		}
	}
	return worst
}
