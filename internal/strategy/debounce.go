package strategy

import "tothemoon-go/internal/signal"

type streak struct {
	side  signal.Action
	count int
}

// Debouncer counts consecutive triggering ticks per symbol and reports when a streak
// is long enough to act on. Not safe for concurrent use.
type Debouncer struct {
	threshold int
	streaks   map[string]*streak
}

// NewDebouncer requires threshold consecutive ticks before firing (minimum 1).
func NewDebouncer(threshold int) *Debouncer {
	if threshold < 1 {
		threshold = 1
	}
	return &Debouncer{threshold: threshold, streaks: make(map[string]*streak)}
}

// Threshold is the streak length that fires.
func (d *Debouncer) Threshold() int { return d.threshold }

// Observe feeds one classified tick. Hold clears the streak; a change of direction
// restarts it at one.
func (d *Debouncer) Observe(symbol string, action signal.Action) (count int, fire bool) {
	st := d.streaks[symbol]
	if st == nil {
		st = &streak{}
		d.streaks[symbol] = st
	}
	if !action.Triggering() {
		st.side, st.count = signal.Hold, 0
		return 0, false
	}
	if st.side != action {
		st.side, st.count = action, 0
	}
	st.count++
	return st.count, st.count >= d.threshold
}

// Reset zeroes the streak after a trade executes.
func (d *Debouncer) Reset(symbol string) {
	if st, ok := d.streaks[symbol]; ok {
		st.side, st.count = signal.Hold, 0
		return
	}
	d.streaks[symbol] = &streak{}
}

// Count returns the current streak length for symbol.
func (d *Debouncer) Count(symbol string) int {
	if st, ok := d.streaks[symbol]; ok {
		return st.count
	}
	return 0
}

// Forget drops all state for symbol.
func (d *Debouncer) Forget(symbol string) { delete(d.streaks, symbol) }
