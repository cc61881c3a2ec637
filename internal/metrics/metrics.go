// Package metrics exposes Prometheus instrumentation for the trading session.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks ingested"},
		[]string{"symbol"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Paper trades executed"},
		[]string{"symbol", "side"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Tick classifications by combined action"},
		[]string{"symbol", "action"},
	)
	PollCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "poll_cycles_total", Help: "Poll cycles by outcome"},
		[]string{"result"},
	)
	PollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "poll_duration_seconds", Help: "Wall time of one poll cycle", Buckets: prometheus.DefBuckets},
	)
	BalanceUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "balance_usd", Help: "Free cash balance"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, OrdersTotal, SignalsTotal, PollCyclesTotal, PollDuration, BalanceUSD)
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
