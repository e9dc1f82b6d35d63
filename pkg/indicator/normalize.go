package indicator

import "math"

// The score functions map raw indicator readings into [0, 1], saturating
// smoothly so a single extreme bar cannot dominate a composite.

// TrendScore measures how far price stretches above its moving average, in
// band widths. Prices at or below the average score zero.
func TrendScore(price, sma, std float64) float64 {
	if std <= 0 || price <= sma {
		return 0
	}
	return math.Tanh((price - sma) / (2 * std))
}

// VolatilityScore measures current volatility against a baseline level.
// Volatility at or below baseline scores zero.
func VolatilityScore(current, baseline float64) float64 {
	if baseline <= 0 || current <= baseline {
		return 0
	}
	return math.Tanh(current/baseline - 1)
}

// VolumeScore squashes a volume z-score through a logistic centered at two
// standard deviations, so only genuinely unusual activity registers.
func VolumeScore(z float64) float64 {
	return 1 / (1 + math.Exp(-(z-2)))
}

// MomentumScore maps the overbought half of the RSI range to [0, 1]
// quadratically, ignoring the oversold half entirely.
func MomentumScore(rsi float64) float64 {
	if rsi <= 50 {
		return 0
	}
	x := (rsi - 50) / 50
	return x * x
}
