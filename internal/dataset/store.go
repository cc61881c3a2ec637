// Package dataset keeps the rolling per-symbol indicator history the signal detector reads from.
package dataset

import (
	"errors"
	"sort"
)

// ErrUnknownSymbol is returned for lookups against a symbol without a window.
var ErrUnknownSymbol = errors.New("symbol is not tracked")

// Row is one feature row: indicator values computed for a close at one point in time.
type Row struct {
	RSI   float64
	Lower float64
	Upper float64
	Close float64
}

// Values returns the row in its canonical [rsi, bb_lower, bb_upper, close] order.
func (r Row) Values() []float64 {
	return []float64{r.RSI, r.Lower, r.Upper, r.Close}
}

// Window is the bounded history of rows for one symbol.
type Window struct {
	rows *Ring[Row]
}

// NewWindow creates an empty window bounded by capacity.
func NewWindow(capacity int) *Window {
	return &Window{rows: NewRing[Row](capacity)}
}

// Append stores row, evicting the oldest row first when the window is full.
func (w *Window) Append(row Row) { w.rows.Push(row) }

// Len is the number of rows currently held.
func (w *Window) Len() int { return w.rows.Len() }

// Cap is the eviction bound.
func (w *Window) Cap() int { return w.rows.Cap() }

// Rows copies the rows out oldest first.
func (w *Window) Rows() []Row { return w.rows.Slice() }

// Last returns the newest row.
func (w *Window) Last() (Row, bool) { return w.rows.Last() }

// Closes returns the close prices of at most the n newest rows, oldest first.
func (w *Window) Closes(n int) []float64 {
	total := w.rows.Len()
	if n <= 0 || n > total {
		n = total
	}
	out := make([]float64, 0, n)
	for i := total - n; i < total; i++ {
		row, _ := w.rows.Get(i)
		out = append(out, row.Close)
	}
	return out
}

// Store maps symbols to their windows. It is not safe for concurrent use;
// the engine serializes every access.
type Store struct {
	capacity int
	windows  map[string]*Window
}

// NewStore creates a store whose windows hold at most capacity rows.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = 1
	}
	return &Store{capacity: capacity, windows: make(map[string]*Window)}
}

// Capacity is the per-symbol eviction bound.
func (s *Store) Capacity() int { return s.capacity }

// Ensure returns the window for symbol, creating an empty one if needed.
func (s *Store) Ensure(symbol string) *Window {
	w, ok := s.windows[symbol]
	if !ok {
		w = NewWindow(s.capacity)
		s.windows[symbol] = w
	}
	return w
}

// Window returns the window for symbol if tracked.
func (s *Store) Window(symbol string) (*Window, bool) {
	w, ok := s.windows[symbol]
	return w, ok
}

// Has reports whether symbol is tracked.
func (s *Store) Has(symbol string) bool {
	_, ok := s.windows[symbol]
	return ok
}

// Append adds row to the symbol's window, creating the window on first use.
func (s *Store) Append(symbol string, row Row) {
	s.Ensure(symbol).Append(row)
}

// Closes returns up to n of the newest closes for symbol.
func (s *Store) Closes(symbol string, n int) []float64 {
	w, ok := s.windows[symbol]
	if !ok {
		return nil
	}
	return w.Closes(n)
}

// Snapshot returns the newest row stored for symbol.
func (s *Store) Snapshot(symbol string) (Row, error) {
	w, ok := s.windows[symbol]
	if !ok {
		return Row{}, ErrUnknownSymbol
	}
	row, ok := w.Last()
	if !ok {
		return Row{}, ErrUnknownSymbol
	}
	return row, nil
}

// Delete forgets every row for symbol.
func (s *Store) Delete(symbol string) { delete(s.windows, symbol) }

// Symbols lists tracked symbols in sorted order.
func (s *Store) Symbols() []string {
	out := make([]string, 0, len(s.windows))
	for sym := range s.windows {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
