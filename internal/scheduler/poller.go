package scheduler

import (
	"context"
	"errors"
	"time"

	"tothemoon-go/internal/engine"
	"tothemoon-go/internal/metrics"

	"github.com/rs/zerolog"
)

// PriceSource returns the latest price of every listed symbol.
type PriceSource interface {
	CurrentPrices(ctx context.Context) (map[string]float64, error)
}

// Ticker consumes one price snapshot.
type Ticker interface {
	OnPrices(prices map[string]float64, persist bool) []engine.TickResult
}

// PollerOptions tunes the poll loop.
type PollerOptions struct {
	Interval     time.Duration
	Timeout      time.Duration
	HistoryEvery time.Duration
	Log          zerolog.Logger
	// Report receives every tick result, e.g. to print trade notices.
	Report func(engine.TickResult)
}

// Poller fetches prices on a fixed interval and feeds them to the engine.
type Poller struct {
	prices PriceSource
	ticker Ticker
	opts   PollerOptions
	now    func() time.Time
}

// NewPoller applies 10s interval, 5s timeout, and 1m history defaults.
func NewPoller(prices PriceSource, ticker Ticker, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.HistoryEvery < 0 {
		opts.HistoryEvery = 0
	} else if opts.HistoryEvery == 0 {
		opts.HistoryEvery = time.Minute
	}
	return &Poller{prices: prices, ticker: ticker, opts: opts, now: time.Now}
}

// Cycle runs one poll on its own goroutine and waits for it. A failed fetch is
// returned and nothing reaches the engine.
func (p *Poller) Cycle(ctx context.Context, persist bool) error {
	started := time.Now()
	done := make(chan error, 1)
	go func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.Timeout)
		defer cancel()
		prices, err := p.prices.CurrentPrices(cctx)
		if err != nil {
			done <- err
			return
		}
		if len(prices) == 0 {
			done <- errors.New("empty price snapshot")
			return
		}
		for _, res := range p.ticker.OnPrices(prices, persist) {
			p.report(res)
		}
		done <- nil
	}()
	err := <-done
	metrics.PollDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.PollCyclesTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.PollCyclesTotal.WithLabelValues("ok").Inc()
	return nil
}

func (p *Poller) report(res engine.TickResult) {
	if p.opts.Report != nil {
		p.opts.Report(res)
	}
	log := p.opts.Log
	switch {
	case res.Transaction != nil && res.Err != nil:
		log.Warn().Err(res.Err).Str("sym", res.Signal.Symbol).Msg("trade kept in memory only")
	case res.Transaction != nil:
		log.Info().Str("sym", res.Signal.Symbol).Str("side", string(res.Transaction.Side)).Float64("amount", res.Transaction.Amount).Float64("px", res.Transaction.Rate).Msg("trade executed")
	case res.Err != nil:
		log.Warn().Err(res.Err).Str("sym", res.Signal.Symbol).Str("action", res.Signal.Action.String()).Msg("signal not executed")
	}
}

// Run polls immediately, then once per interval until ctrl stops or ctx ends.
// Every cycle after HistoryEvery has elapsed since the last mark is persisted.
func (p *Poller) Run(ctx context.Context, ctrl *Controller) error {
	persist := false
	mark := p.now()
	for first := true; ; first = false {
		if !first && !ctrl.Wait(ctx, p.opts.Interval) {
			break
		}
		if ctrl.Stopped() || ctx.Err() != nil {
			break
		}
		if err := p.Cycle(ctx, persist); err != nil {
			p.opts.Log.Warn().Err(err).Bool("persist", persist).Msg("poll cycle failed")
		}
		persist = false
		if now := p.now(); now.Sub(mark) >= p.opts.HistoryEvery {
			persist = true
			mark = now
		}
	}
	p.opts.Log.Debug().Msg("poller stopped")
	return nil
}
