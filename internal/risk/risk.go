// Package risk sizes simulated trades.
package risk

// Limits bounds the cash committed to a single trade.
type Limits struct {
	// MinNotionalPerTrade is the smallest invested amount worth trading; anything at
	// or below it is treated as insufficient funds.
	MinNotionalPerTrade float64
	// MaxNotionalPerTrade caps a single trade; 0 disables the cap.
	MaxNotionalPerTrade float64
}

// DefaultLimits trades anything above one unit of cash, uncapped.
func DefaultLimits() Limits {
	return Limits{MinNotionalPerTrade: 1}
}

// Allow reports whether notional is large enough to trade.
func (l Limits) Allow(notional float64) bool {
	return notional > l.MinNotionalPerTrade
}

// Cap trims notional to MaxNotionalPerTrade when a cap is configured.
func (l Limits) Cap(notional float64) float64 {
	if l.MaxNotionalPerTrade > 0 && notional > l.MaxNotionalPerTrade {
		return l.MaxNotionalPerTrade
	}
	return notional
}
