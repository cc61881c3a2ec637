package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestServeRegistersMetrics(t *testing.T) {
	srv := Serve("127.0.0.1:0")
	defer srv.Close()

	TicksTotal.WithLabelValues("BTCUSDT").Inc()
	SignalsTotal.WithLabelValues("BTCUSDT", "Sell").Inc()
	PollCyclesTotal.WithLabelValues("ok").Inc()
	BalanceUSD.Set(1000)

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	want := map[string]bool{"ticks_total": false, "signals_total": false, "poll_cycles_total": false, "balance_usd": false}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("%s metric not found", name)
		}
	}
}
