// Package indicator holds the stateless numeric helpers behind the RSI and Bollinger Band signals.
package indicator

import "math"

// Mean returns the arithmetic mean of values, or 0 when values is empty.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StandardDeviation returns the population standard deviation of values around mean.
func StandardDeviation(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}

// MeanAbsoluteMove averages the magnitudes of the diffs matching the requested sign.
// Diffs of the other sign count as zero, so the denominator is always len(diffs).
func MeanAbsoluteMove(diffs []float64, wantPositive bool) float64 {
	if len(diffs) == 0 {
		return 0
	}
	sum := 0.0
	for _, d := range diffs {
		switch {
		case wantPositive && d > 0:
			sum += d
		case !wantPositive && d < 0:
			sum -= d
		}
	}
	return sum / float64(len(diffs))
}

// RelativeStrengthIndex maps a gain/loss ratio onto [0, scale).
func RelativeStrengthIndex(scale, ratio float64) float64 {
	return scale - scale/(1+ratio)
}

// ExponentialMovingAverage advances an EMA by one close.
func ExponentialMovingAverage(lastClose, lastEMA float64, period int) float64 {
	if period < 1 {
		period = 1
	}
	multiplier := 2.0 / float64(period+1)
	return lastClose*multiplier + lastEMA*(1-multiplier)
}

// Differences returns values[i]-values[i-1] for every consecutive pair.
func Differences(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		out = append(out, values[i]-values[i-1])
	}
	return out
}
