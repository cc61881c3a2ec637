package indicator

// RSIScale is the classic 0-100 RSI range.
const RSIScale = 100.0

// RSIResult carries the RSI value along with the averages it was derived from.
type RSIResult struct {
	Value   float64
	AvgUp   float64
	AvgDown float64
}

// RSI computes the relative strength index over a close series ordered oldest first.
// A zero downward average yields a ratio of 0.
func RSI(closes []float64) RSIResult {
	diffs := Differences(closes)
	up := MeanAbsoluteMove(diffs, true)
	down := MeanAbsoluteMove(diffs, false)
	ratio := 0.0
	if down != 0 {
		ratio = up / down
	}
	return RSIResult{
		Value:   RelativeStrengthIndex(RSIScale, ratio),
		AvgUp:   up,
		AvgDown: down,
	}
}

// Bands is a Bollinger envelope around the mean of a close series.
type Bands struct {
	Lower  float64
	Upper  float64
	Mean   float64
	StdDev float64
}

// Bollinger returns mean ± k standard deviations of closes.
func Bollinger(closes []float64, k float64) Bands {
	mean := Mean(closes)
	sd := StandardDeviation(closes, mean)
	return Bands{
		Lower:  mean - k*sd,
		Upper:  mean + k*sd,
		Mean:   mean,
		StdDev: sd,
	}
}
