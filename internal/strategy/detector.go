// Package strategy turns indicator readings into debounced trading decisions.
package strategy

import (
	"fmt"

	"tothemoon-go/internal/dataset"
	"tothemoon-go/internal/indicator"
	"tothemoon-go/internal/signal"
)

// Policy decides how the RSI and Bollinger classifications are combined.
type Policy string

const (
	// PolicyAny fires when either indicator fires.
	PolicyAny Policy = "or"
	// PolicyAll fires only when both indicators agree.
	PolicyAll Policy = "and"
)

// Params expresses the tunable knobs of the detector.
type Params struct {
	RSIPeriod     int
	BBPeriod      int
	BBStdDevs     float64
	RSIOverbought float64
	RSIOversold   float64
}

// DefaultParams mirrors the classic 13/20 periods with 70/30 RSI bounds and 2σ bands.
func DefaultParams() Params {
	return Params{
		RSIPeriod:     13,
		BBPeriod:      20,
		BBStdDevs:     2,
		RSIOverbought: 70,
		RSIOversold:   30,
	}
}

func (p Params) withDefaults() Params {
	def := DefaultParams()
	if p.RSIPeriod <= 0 {
		p.RSIPeriod = def.RSIPeriod
	}
	if p.BBPeriod <= 0 {
		p.BBPeriod = def.BBPeriod
	}
	if p.BBStdDevs <= 0 {
		p.BBStdDevs = def.BBStdDevs
	}
	if p.RSIOverbought <= 0 {
		p.RSIOverbought = def.RSIOverbought
	}
	if p.RSIOversold <= 0 {
		p.RSIOversold = def.RSIOversold
	}
	return p
}

// Evaluation is everything the detector derived from one price.
type Evaluation struct {
	Row         dataset.Row
	RSI         indicator.RSIResult
	Bands       indicator.Bands
	RSIReady    bool
	BandsReady  bool
	RSIAction   signal.Action
	BandsAction signal.Action
	Decision    signal.Action
}

// Reason renders the evaluation for logs.
func (e Evaluation) Reason() string {
	return fmt.Sprintf("rsi=%.2f(%s) bb=[%.4f, %.4f](%s)",
		e.Row.RSI, e.RSIAction, e.Row.Lower, e.Row.Upper, e.BandsAction)
}

// Detector classifies a price against the closes that precede it.
type Detector struct {
	params Params
	policy Policy
}

// NewDetector builds a detector; zero-valued params fall back to DefaultParams.
func NewDetector(policy Policy, params Params) *Detector {
	if policy != PolicyAll {
		policy = PolicyAny
	}
	return &Detector{params: params.withDefaults(), policy: policy}
}

// Name returns the identifier for logging.
func (d *Detector) Name() string { return "RSI+BB/" + string(d.policy) }

// Params returns the effective parameters.
func (d *Detector) Params() Params { return d.params }

// Lookback is the longest history any indicator reads.
func (d *Detector) Lookback() int {
	if d.params.RSIPeriod > d.params.BBPeriod {
		return d.params.RSIPeriod
	}
	return d.params.BBPeriod
}

// Evaluate computes RSI and Bollinger Bands over the tail of history plus price.
// An indicator whose period is not yet covered by history reports 0 and Hold.
func (d *Detector) Evaluate(history []float64, price float64) Evaluation {
	var ev Evaluation
	ev.Row.Close = price

	if len(history) >= d.params.RSIPeriod {
		ev.RSIReady = true
		ev.RSI = indicator.RSI(withPrice(history, d.params.RSIPeriod, price))
		ev.Row.RSI = ev.RSI.Value
		switch {
		case ev.RSI.Value > d.params.RSIOverbought:
			ev.RSIAction = signal.Sell
		case ev.RSI.Value < d.params.RSIOversold:
			ev.RSIAction = signal.Buy
		}
	}

	if len(history) >= d.params.BBPeriod {
		ev.BandsReady = true
		ev.Bands = indicator.Bollinger(withPrice(history, d.params.BBPeriod, price), d.params.BBStdDevs)
		ev.Row.Lower = ev.Bands.Lower
		ev.Row.Upper = ev.Bands.Upper
		switch {
		case price > ev.Bands.Upper:
			ev.BandsAction = signal.Sell
		case price < ev.Bands.Lower:
			ev.BandsAction = signal.Buy
		}
	}

	ev.Decision = Combine(d.policy, ev.RSIAction, ev.BandsAction)
	return ev
}

// Combine merges the two indicator classifications. Under PolicyAny a Sell from
// either side wins over a Buy from the other.
func Combine(policy Policy, rsi, bands signal.Action) signal.Action {
	if policy == PolicyAll {
		if rsi == bands {
			return rsi
		}
		return signal.Hold
	}
	switch {
	case rsi == signal.Sell || bands == signal.Sell:
		return signal.Sell
	case rsi == signal.Buy || bands == signal.Buy:
		return signal.Buy
	default:
		return signal.Hold
	}
}

func withPrice(history []float64, period int, price float64) []float64 {
	tail := history[len(history)-period:]
	out := make([]float64, 0, period+1)
	out = append(out, tail...)
	return append(out, price)
}
