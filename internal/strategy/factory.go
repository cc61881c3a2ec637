package strategy

import (
	"errors"
	"fmt"
	"strings"

	"tothemoon-go/internal/dataset"
)

// Strategy defines behaviour shared by the signal detectors used by the engine.
type Strategy interface {
	Evaluate(history []float64, price float64) Evaluation
	Lookback() int
	Name() string
}

// WindowCapacity sizes the per-symbol history so every indicator has its full
// lookback plus headroom rows.
func WindowCapacity(s Strategy, headroom int) int {
	if headroom < 0 {
		headroom = 0
	}
	return s.Lookback() + headroom
}

// ErrUnknownMode rejects a combine mode Build does not recognise.
var ErrUnknownMode = errors.New("unknown strategy mode")

// Build returns a detector matching the configured combine mode. An empty mode means OR.
func Build(mode string, params Params) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "and", "all", "strict":
		return NewDetector(PolicyAll, params), nil
	case "", "or", "any":
		return NewDetector(PolicyAny, params), nil
	}
	return nil, fmt.Errorf("%q: %w", mode, ErrUnknownMode)
}

// Replay runs closes through s as if each were a persisted tick, appending every
// resulting row to window. No debounce state is touched.
func Replay(s Strategy, window *dataset.Window, closes []float64) {
	for _, price := range closes {
		ev := s.Evaluate(window.Closes(s.Lookback()), price)
		window.Append(ev.Row)
	}
}
