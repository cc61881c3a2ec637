// Package signal standardizes payloads shared between data ingestion and strategy layers.
package signal

import (
	"strings"
	"time"
)

// Action is the classification of a single tick.
type Action int

const (
	// Hold means no indicator fired.
	Hold Action = iota
	// Buy means an indicator reads the symbol as oversold.
	Buy
	// Sell means an indicator reads the symbol as overbought.
	Sell
)

func (a Action) String() string {
	switch a {
	case Buy:
		return "Buy"
	case Sell:
		return "Sell"
	default:
		return "Hold"
	}
}

// Triggering reports whether the action counts towards a debounce streak.
func (a Action) Triggering() bool { return a == Buy || a == Sell }

// Tick models one observed price for a symbol.
type Tick struct {
	Symbol string
	Price  float64
	Ts     time.Time
}

// Candle is one historical bar as far as the engine cares about it.
type Candle struct {
	Symbol string
	Close  float64
	Volume float64
	Ts     time.Time
}

// Signal expresses the decision the detector reached for a tick.
type Signal struct {
	Symbol string
	Action Action
	Price  float64
	Reason string
	Ts     time.Time
}

// NormalizeSymbol uppercases a pair and strips separators such as "BTC/USDT".
func NormalizeSymbol(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "/", "")
	return strings.ToUpper(s)
}
