// Package session assembles one interactive trading session from configuration.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"tothemoon-go/internal/command"
	"tothemoon-go/internal/config"
	"tothemoon-go/internal/dataset"
	"tothemoon-go/internal/engine"
	"tothemoon-go/internal/exchange"
	"tothemoon-go/internal/execution"
	"tothemoon-go/internal/health"
	"tothemoon-go/internal/metrics"
	"tothemoon-go/internal/paper"
	"tothemoon-go/internal/risk"
	"tothemoon-go/internal/scheduler"
	"tothemoon-go/internal/strategy"

	"github.com/rs/zerolog"
)

const emptyWatchlist = "[WARNING] Make sure to use add [symbol] command, otherwise your watchlist is empty"

// Session owns the feed, engine, and both activities of a run.
type Session struct {
	cfg *config.Config
	log zerolog.Logger
	in  *bufio.Reader
	out io.Writer

	feed      *exchange.Feed
	recorder  *paper.CSVRecorder
	engine    *engine.Engine
	processor *command.Processor
	poller    *scheduler.Poller
	ctrl      *scheduler.Controller

	metricsSrv *http.Server
	healthSrv  *health.Server
}

// New wires every component described by cfg. The ledger directory is cleared here.
func New(cfg *config.Config, in io.Reader, out io.Writer, log zerolog.Logger) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Session{
		cfg:  cfg,
		log:  log,
		in:   bufio.NewReader(in),
		out:  &syncWriter{w: out},
		ctrl: scheduler.NewController(),
	}

	s.feed = exchange.NewFeed(cfg.Exchange.Provider, cfg.Exchange.Symbols, log,
		exchange.WithBaseURL(cfg.Exchange.BaseURL),
		exchange.WithWSURL(cfg.Exchange.WSURL),
		exchange.WithKlineLimit(cfg.Exchange.KlineLimit),
		exchange.WithStaleAfter(3*cfg.PollInterval()),
	)

	params := cfg.Strategy.Params
	strat, err := strategy.Build(cfg.Strategy.Mode, strategy.Params{
		RSIPeriod:     params.RSIPeriod,
		BBPeriod:      params.BBPeriod,
		BBStdDevs:     params.BBStdDevs,
		RSIOverbought: params.RSIOverbought,
		RSIOversold:   params.RSIOversold,
	})
	if err != nil {
		return nil, err
	}

	recorder, err := paper.NewCSVRecorder(cfg.Ledger.Dir, cfg.Ledger.File)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	s.recorder = recorder
	account := paper.NewAccount(cfg.Paper.StartingCash, paper.Settings{
		Fee:   cfg.Paper.TradingFee,
		Split: cfg.Paper.InvestmentSplit,
		Limits: risk.Limits{
			MinNotionalPerTrade: cfg.Risk.MinNotionalPerTrade,
			MaxNotionalPerTrade: cfg.Risk.MaxNotionalPerTrade,
		},
	})
	ledger := paper.NewLedger(cfg.Ledger.Recent)

	s.engine = engine.New(engine.Options{
		Strategy:        strat,
		Headroom:        params.WindowHeadroom,
		SignalThreshold: params.SignalThreshold,
		Account:         account,
		Ledger:          ledger,
		Executor:        execution.NewExecutor(log, ledger, recorder),
		History:         s.historySource(),
		Log:             log,
	})
	s.processor = command.NewProcessor(s.engine, s.in, s.out, recorder.Path(), log)
	s.poller = scheduler.NewPoller(s.feed, s.engine, scheduler.PollerOptions{
		Interval:     cfg.PollInterval(),
		Timeout:      cfg.RequestTimeout(),
		HistoryEvery: cfg.HistoryInterval(),
		Log:          log,
		Report:       s.reportTrade,
	})

	if cfg.App.MetricsAddr != "" {
		s.metricsSrv = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}
	if cfg.App.HealthAddr != "" {
		hs, err := health.Serve(cfg.App.HealthAddr, log)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("health server: %w", err)
		}
		s.healthSrv = hs
	}
	return s, nil
}

func (s *Session) historySource() engine.HistorySource {
	if strings.EqualFold(s.cfg.Bootstrap.Source, "csv") {
		return dataset.CSVSource{Dir: s.cfg.Bootstrap.Dir, Fallback: s.feed, Refresh: s.cfg.Bootstrap.Refresh}
	}
	return s.feed
}

// Engine exposes the trading engine.
func (s *Session) Engine() *engine.Engine { return s.engine }

// Controller exposes the session stop signal.
func (s *Session) Controller() *scheduler.Controller { return s.ctrl }

// LedgerPath is the durable transaction log of this session.
func (s *Session) LedgerPath() string { return s.recorder.Path() }

// Symbols picks the start-up watchlist: args first, then the config, then a prompt
// answered on the session input.
func (s *Session) Symbols(args []string) []string {
	if syms := command.ParseSymbols(args...); len(syms) > 0 {
		return syms
	}
	if syms := command.ParseSymbols(s.cfg.Exchange.Symbols...); len(syms) > 0 {
		return syms
	}
	fmt.Fprintln(s.out, "Enter the symbols to watch separated by spaces (e.g. BTCUSDT ETHUSDT):")
	line, err := s.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		s.log.Warn().Err(err).Msg("read symbols")
	}
	return command.ParseSymbols(line)
}

// Watch refreshes the market snapshot and adds every symbol, reporting the ones the
// market does not list. It returns the resulting watchlist.
func (s *Session) Watch(ctx context.Context, symbols []string) []string {
	if len(symbols) > 0 {
		s.feed.SetSymbols(symbols)
	}
	go func() {
		if err := s.feed.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn().Err(err).Msg("market stream stopped")
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout())
	prices, err := s.feed.CurrentPrices(fetchCtx)
	cancel()
	if err != nil {
		s.log.Warn().Err(err).Msg("initial market snapshot")
	}
	s.engine.UpdateMarket(prices)

	for _, sym := range symbols {
		if _, err := s.engine.Add(ctx, sym); err != nil {
			s.log.Debug().Err(err).Str("sym", sym).Msg("add at start-up")
			fmt.Fprintf(s.out, "%s is unavailable\n", sym)
		}
	}
	watch := s.engine.Watchlist()
	if len(watch) == 0 {
		fmt.Fprintln(s.out, emptyWatchlist)
	}
	return watch
}

// Run prints the command banner and blocks until withdraw, a signal, or ctx ends.
// It returns the estimated value the session ends with.
func (s *Session) Run(ctx context.Context) (float64, error) {
	s.processor.Banner()
	if s.healthSrv != nil {
		s.healthSrv.SetServing(true)
		defer s.healthSrv.SetServing(false)
	}
	err := scheduler.Run(ctx, s.ctrl, s.poller, s.processor)
	return s.engine.WithdrawAll(), err
}

// Close releases the ledger file and the auxiliary servers.
func (s *Session) Close() error {
	var errs []error
	if s.healthSrv != nil {
		s.healthSrv.Close()
	}
	if s.metricsSrv != nil {
		errs = append(errs, s.metricsSrv.Close())
	}
	if s.recorder != nil {
		errs = append(errs, s.recorder.Close())
	}
	return errors.Join(errs...)
}

func (s *Session) reportTrade(res engine.TickResult) {
	if res.Transaction == nil {
		return
	}
	tx := res.Transaction
	fmt.Fprintf(s.out, "%s %s %s at %s USD\n", tx.Side, strconv.FormatFloat(tx.Amount, 'f', -1, 64),
		tx.Symbol, strconv.FormatFloat(tx.Rate, 'f', -1, 64))
}

// syncWriter serializes output from the poll and command activities.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}
