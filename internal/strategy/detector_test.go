package strategy

import (
	"errors"
	"testing"

	"tothemoon-go/internal/dataset"
	"tothemoon-go/internal/signal"
)

func flat(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

func TestEvaluateWarmupPlaceholders(t *testing.T) {
	det := NewDetector(PolicyAny, DefaultParams())
	ev := det.Evaluate(nil, 100)
	if ev.RSIReady || ev.BandsReady {
		t.Fatalf("expected indicators not ready on empty history")
	}
	if ev.Row.RSI != 0 || ev.Row.Lower != 0 || ev.Row.Upper != 0 || ev.Row.Close != 100 {
		t.Fatalf("expected zero placeholders, got %+v", ev.Row)
	}
	if ev.Decision != signal.Hold {
		t.Fatalf("expected hold during warm-up, got %s", ev.Decision)
	}

	ev = det.Evaluate(flat(13, 100), 100)
	if !ev.RSIReady || ev.BandsReady {
		t.Fatalf("expected RSI ready at 13 closes and bands still warming up")
	}
}

func TestEvaluateSpikeAboveUpperBand(t *testing.T) {
	history := flat(21, 100)
	ev := NewDetector(PolicyAny, DefaultParams()).Evaluate(history, 150)
	if ev.BandsAction != signal.Sell {
		t.Fatalf("expected band sell, got %s (upper %.2f)", ev.BandsAction, ev.Row.Upper)
	}
	if ev.Decision != signal.Sell {
		t.Fatalf("expected sell decision under OR policy, got %s", ev.Decision)
	}

	strict := NewDetector(PolicyAll, DefaultParams()).Evaluate(history, 150)
	if strict.Decision != signal.Hold {
		t.Fatalf("expected hold under AND policy when indicators disagree, got %s", strict.Decision)
	}
}

func TestEvaluateDropBelowLowerBand(t *testing.T) {
	ev := NewDetector(PolicyAll, DefaultParams()).Evaluate(flat(21, 100), 50)
	if ev.RSIAction != signal.Buy || ev.BandsAction != signal.Buy {
		t.Fatalf("expected both indicators to buy, got rsi=%s bb=%s", ev.RSIAction, ev.BandsAction)
	}
	if ev.Decision != signal.Buy {
		t.Fatalf("expected buy decision, got %s", ev.Decision)
	}
}

func TestEvaluateOverboughtRSI(t *testing.T) {
	history := []float64{100, 99, 101, 103, 105, 107, 109, 111, 113, 115, 117, 119, 121}
	ev := NewDetector(PolicyAny, DefaultParams()).Evaluate(history, 123)
	if ev.RSI.Value < 95 || ev.RSI.Value > 97 {
		t.Fatalf("expected rsi ~96, got %.2f", ev.RSI.Value)
	}
	if ev.RSIAction != signal.Sell || ev.Decision != signal.Sell {
		t.Fatalf("expected rsi sell, got %s/%s", ev.RSIAction, ev.Decision)
	}
}

func TestCombine(t *testing.T) {
	cases := []struct {
		policy    Policy
		rsi, band signal.Action
		want      signal.Action
	}{
		{PolicyAny, signal.Hold, signal.Hold, signal.Hold},
		{PolicyAny, signal.Buy, signal.Hold, signal.Buy},
		{PolicyAny, signal.Hold, signal.Sell, signal.Sell},
		{PolicyAny, signal.Buy, signal.Sell, signal.Sell},
		{PolicyAll, signal.Buy, signal.Hold, signal.Hold},
		{PolicyAll, signal.Sell, signal.Sell, signal.Sell},
	}
	for _, tc := range cases {
		if got := Combine(tc.policy, tc.rsi, tc.band); got != tc.want {
			t.Fatalf("Combine(%s, %s, %s) = %s, want %s", tc.policy, tc.rsi, tc.band, got, tc.want)
		}
	}
}

func TestBuildSelectsPolicy(t *testing.T) {
	if s, err := Build("AND", Params{}); err != nil || s.Name() != "RSI+BB/and" {
		t.Fatalf("unexpected strategy %v (%v)", s, err)
	}
	if s, err := Build(" or ", Params{}); err != nil || s.Name() != "RSI+BB/or" {
		t.Fatalf("unexpected strategy %v (%v)", s, err)
	}
	if _, err := Build("unknown", Params{}); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected unknown mode error, got %v", err)
	}
	s, err := Build("", Params{})
	if err != nil {
		t.Fatalf("empty mode: %v", err)
	}
	if s.Lookback() != 20 || WindowCapacity(s, 1) != 21 {
		t.Fatalf("unexpected lookback %d", s.Lookback())
	}
}

func TestReplayFillsWindow(t *testing.T) {
	s, err := Build("or", DefaultParams())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	window := dataset.NewWindow(WindowCapacity(s, 1))
	Replay(s, window, flat(25, 100))
	if window.Len() != 21 {
		t.Fatalf("expected full window, got %d rows", window.Len())
	}
	last, _ := window.Last()
	if last.Lower != 100 || last.Upper != 100 || last.Close != 100 {
		t.Fatalf("expected warmed-up bands on flat data, got %+v", last)
	}
	first := window.Rows()[0]
	if first.Close != 100 {
		t.Fatalf("unexpected first row %+v", first)
	}
}
