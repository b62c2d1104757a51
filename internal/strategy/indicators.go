package strategy

import "github.com/shopspring/decimal"

// Indicator helpers over close series. All take series ordered oldest-first
// and assume len(series) is sufficient; callers gate on lookback.

// sma returns the simple moving average of the last period values.
func sma(series []decimal.Decimal, period int) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range series[len(series)-period:] {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}

// emaSeries returns the full exponential moving average series with
// alpha = 2/(span+1), seeded with the first value.
func emaSeries(series []decimal.Decimal, span int) []decimal.Decimal {
	alpha := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(span) + 1))
	oneMinus := decimal.NewFromInt(1).Sub(alpha)

	out := make([]decimal.Decimal, len(series))
	out[0] = series[0]
	for i := 1; i < len(series); i++ {
		out[i] = series[i].Mul(alpha).Add(out[i-1].Mul(oneMinus))
	}
	return out
}

// rsi computes the relative strength index of the last value using a
// simple mean of gains and losses over the trailing period. Requires
// len(series) >= period+1. Returns 100 when there are no losses.
func rsi(series []decimal.Decimal, period int) decimal.Decimal {
	window := series[len(series)-period-1:]
	gain := decimal.Zero
	loss := decimal.Zero
	for i := 1; i < len(window); i++ {
		delta := window[i].Sub(window[i-1])
		if delta.IsPositive() {
			gain = gain.Add(delta)
		} else {
			loss = loss.Sub(delta)
		}
	}
	if loss.IsZero() {
		return decimal.NewFromInt(100)
	}
	rs := gain.Div(loss)
	hundred := decimal.NewFromInt(100)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}

// clipStrength clamps a strength value into (0, 1].
func clipStrength(v decimal.Decimal) float64 {
	f, _ := v.Float64()
	if f > 1.0 {
		return 1.0
	}
	return f
}
