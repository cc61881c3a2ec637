// Package engine owns every piece of mutable trading state and serializes access to it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tothemoon-go/internal/dataset"
	"tothemoon-go/internal/execution"
	"tothemoon-go/internal/metrics"
	"tothemoon-go/internal/paper"
	"tothemoon-go/internal/signal"
	"tothemoon-go/internal/strategy"

	"github.com/rs/zerolog"
)

var (
	ErrInvalidAmount     = paper.ErrInvalidAmount
	ErrInsufficientFunds = paper.ErrInsufficientFunds
	ErrNothingToSell     = paper.ErrNothingToSell
	ErrIOFailure         = paper.ErrIOFailure
	ErrNotFound          = dataset.ErrUnknownSymbol
	// ErrInvalidOperation rejects add/remove requests that fail validity or watchlist checks.
	ErrInvalidOperation = errors.New("invalid operation")
)

// QuoteAsset must appear exactly once in every tradable symbol.
const QuoteAsset = "USD"

// HistorySource provides closes used to warm up a newly added symbol.
type HistorySource interface {
	HistoricalCloses(ctx context.Context, symbol string) ([]float64, error)
}

// Options wires the engine's collaborators.
type Options struct {
	Strategy        strategy.Strategy
	Headroom        int
	SignalThreshold int
	Account         *paper.Account
	Ledger          *paper.Ledger
	Executor        *execution.Executor
	History         HistorySource
	Log             zerolog.Logger
}

// TickResult describes what one price did to a symbol.
type TickResult struct {
	Signal      signal.Signal
	Evaluation  strategy.Evaluation
	Count       int
	Persisted   bool
	Transaction *execution.Transaction
	Err         error
}

// Engine holds the window store, debounce counters, account, and ledger behind one mutex.
type Engine struct {
	mu       sync.Mutex
	log      zerolog.Logger
	strategy strategy.Strategy
	store    *dataset.Store
	debounce *strategy.Debouncer
	account  *paper.Account
	ledger   *paper.Ledger
	exec     *execution.Executor
	history  HistorySource
	last     map[string]dataset.Row
	prices   map[string]float64
	marketAt time.Time
	now      func() time.Time
}

// New assembles an engine; nil collaborators fall back to in-memory defaults.
func New(opts Options) *Engine {
	if opts.Strategy == nil {
		opts.Strategy = strategy.NewDetector(strategy.PolicyAny, strategy.DefaultParams())
	}
	if opts.Headroom <= 0 {
		opts.Headroom = 1
	}
	if opts.Account == nil {
		opts.Account = paper.NewAccount(0, paper.DefaultSettings())
	}
	if opts.Ledger == nil {
		opts.Ledger = paper.NewLedger(paper.DefaultRecent)
	}
	if opts.Executor == nil {
		opts.Executor = execution.NewExecutor(opts.Log, opts.Ledger)
	}
	metrics.BalanceUSD.Set(opts.Account.Cash())
	return &Engine{
		log:      opts.Log,
		strategy: opts.Strategy,
		store:    dataset.NewStore(strategy.WindowCapacity(opts.Strategy, opts.Headroom)),
		debounce: strategy.NewDebouncer(opts.SignalThreshold),
		account:  opts.Account,
		ledger:   opts.Ledger,
		exec:     opts.Executor,
		history:  opts.History,
		last:     make(map[string]dataset.Row),
		prices:   make(map[string]float64),
		now:      time.Now,
	}
}

// Strategy returns the detector in use.
func (e *Engine) Strategy() strategy.Strategy { return e.strategy }

// Threshold is the debounce streak length that triggers a trade.
func (e *Engine) Threshold() int { return e.debounce.Threshold() }

// UpdateMarket replaces the latest market price snapshot.
func (e *Engine) UpdateMarket(prices map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prices = make(map[string]float64, len(prices))
	for sym, px := range prices {
		e.prices[signal.NormalizeSymbol(sym)] = px
	}
	e.marketAt = e.now()
}

// Market returns a copy of the latest market snapshot and when it was taken.
func (e *Engine) Market() (map[string]float64, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]float64, len(e.prices))
	for sym, px := range e.prices {
		out[sym] = px
	}
	return out, e.marketAt
}

// Validate normalizes raw and checks it is quoted in USD and known to the market.
func (e *Engine) Validate(raw string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.validateLocked(raw)
}

func (e *Engine) validateLocked(raw string) (string, error) {
	sym := signal.NormalizeSymbol(raw)
	if sym == "" || strings.Count(sym, QuoteAsset) != 1 {
		return sym, fmt.Errorf("%q is not a %s pair: %w", sym, QuoteAsset, ErrInvalidOperation)
	}
	if _, ok := e.prices[sym]; !ok {
		return sym, fmt.Errorf("%q is not listed on the market: %w", sym, ErrInvalidOperation)
	}
	return sym, nil
}

// Add validates raw, fetches its history outside the lock, and starts watching it.
// History failures are logged and the symbol starts with an empty window.
func (e *Engine) Add(ctx context.Context, raw string) (string, error) {
	e.mu.Lock()
	sym, err := e.validateLocked(raw)
	if err == nil && e.store.Has(sym) {
		err = fmt.Errorf("%s is already watched: %w", sym, ErrInvalidOperation)
	}
	e.mu.Unlock()
	if err != nil {
		return sym, err
	}

	var closes []float64
	if e.history != nil {
		closes, err = e.history.HistoricalCloses(ctx, sym)
		if err != nil {
			e.log.Warn().Err(err).Str("sym", sym).Msg("history unavailable, starting cold")
			closes = nil
		}
	}
	return sym, e.Bootstrap(sym, closes)
}

// Bootstrap starts watching symbol and replays closes through the detector to fill
// its window. No debounce state is touched and no trades are made.
func (e *Engine) Bootstrap(symbol string, closes []float64) error {
	sym := signal.NormalizeSymbol(symbol)
	if sym == "" {
		return fmt.Errorf("bootstrap empty symbol: %w", ErrInvalidOperation)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	window := e.store.Ensure(sym)
	strategy.Replay(e.strategy, window, closes)
	e.account.Open(sym)
	e.debounce.Reset(sym)
	if row, ok := window.Last(); ok {
		e.last[sym] = row
	}
	e.log.Info().Str("sym", sym).Int("closes", len(closes)).Int("rows", window.Len()).Msg("watching")
	return nil
}

// Remove sells any holding at the last recorded close, then forgets the symbol.
// The returned transaction is nil when nothing was held.
func (e *Engine) Remove(raw string) (*execution.Transaction, error) {
	sym := signal.NormalizeSymbol(raw)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.store.Has(sym) {
		return nil, fmt.Errorf("remove %s: %w", sym, errors.Join(ErrInvalidOperation, ErrNotFound))
	}
	var (
		tx  *execution.Transaction
		err error
	)
	if qty, _ := e.account.Holding(sym); qty > 0 {
		price := e.lastPriceLocked(sym)
		tx, err = e.tradeLocked(sym, signal.Sell, price)
		if tx == nil && err != nil {
			return nil, err
		}
	}
	e.store.Delete(sym)
	e.account.Close(sym)
	e.debounce.Forget(sym)
	delete(e.last, sym)
	e.log.Info().Str("sym", sym).Msg("stopped watching")
	return tx, err
}

// Deposit credits the cash balance.
func (e *Engine) Deposit(amount float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.account.Deposit(amount); err != nil {
		return err
	}
	metrics.BalanceUSD.Set(e.account.Cash())
	return nil
}

// Balance returns free cash.
func (e *Engine) Balance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.account.Cash()
}

// Holdings returns the account marked at each symbol's last known price.
func (e *Engine) Holdings() paper.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.account.Snapshot(e.valuationLocked())
}

// WithdrawAll values cash plus every holding at its last known price. Nothing is sold.
func (e *Engine) WithdrawAll() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.account.WithdrawAll(e.valuationLocked())
}

// Transactions returns the recent ledger, oldest first.
func (e *Engine) Transactions() []execution.Transaction {
	return e.ledger.Snapshot()
}

// Watchlist lists watched symbols in sorted order.
func (e *Engine) Watchlist() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Symbols()
}

// Indicator returns the last computed row for symbol, including preview ticks.
func (e *Engine) Indicator(raw string) (dataset.Row, error) {
	sym := signal.NormalizeSymbol(raw)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.store.Has(sym) {
		return dataset.Row{}, fmt.Errorf("indicators for %s: %w", sym, ErrNotFound)
	}
	if row, ok := e.last[sym]; ok {
		return row, nil
	}
	return e.store.Snapshot(sym)
}

// Indicators returns the last computed row of every watched symbol that has one.
func (e *Engine) Indicators() map[string]dataset.Row {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]dataset.Row, len(e.last))
	for sym, row := range e.last {
		out[sym] = row
	}
	return out
}

// History returns a copy of the persisted rows of symbol, oldest first.
func (e *Engine) History(raw string) ([]dataset.Row, error) {
	sym := signal.NormalizeSymbol(raw)
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.store.Window(sym)
	if !ok {
		return nil, fmt.Errorf("history for %s: %w", sym, ErrNotFound)
	}
	return w.Rows(), nil
}

// Counter returns the current debounce streak of symbol.
func (e *Engine) Counter(symbol string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.debounce.Count(signal.NormalizeSymbol(symbol))
}

// ProcessTick classifies one price, advances the debounce streak, and trades once the
// streak reaches the threshold. persist appends the row to the symbol's history;
// otherwise only the last snapshot changes.
func (e *Engine) ProcessTick(tick signal.Tick, persist bool) TickResult {
	sym := signal.NormalizeSymbol(tick.Symbol)
	if tick.Ts.IsZero() {
		tick.Ts = e.now()
	}
	res := TickResult{Signal: signal.Signal{Symbol: sym, Price: tick.Price, Ts: tick.Ts}}
	if !(tick.Price > 0) {
		res.Err = fmt.Errorf("tick %s at %v: %w", sym, tick.Price, ErrInvalidAmount)
		return res
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.store.Has(sym) {
		res.Err = fmt.Errorf("tick %s: %w", sym, ErrNotFound)
		return res
	}
	ev := e.strategy.Evaluate(e.store.Closes(sym, e.strategy.Lookback()), tick.Price)
	if persist {
		e.store.Append(sym, ev.Row)
	}
	e.last[sym] = ev.Row
	res.Evaluation = ev
	res.Persisted = persist
	res.Signal.Action = ev.Decision
	res.Signal.Reason = ev.Reason()
	metrics.TicksTotal.WithLabelValues(sym).Inc()
	metrics.SignalsTotal.WithLabelValues(sym, ev.Decision.String()).Inc()

	count, fire := e.debounce.Observe(sym, ev.Decision)
	res.Count = count
	e.log.Debug().Str("sym", sym).Float64("px", tick.Price).Str("action", ev.Decision.String()).Int("count", count).Str("reason", res.Signal.Reason).Msg("tick")
	if !fire {
		return res
	}
	res.Transaction, res.Err = e.tradeLocked(sym, ev.Decision, tick.Price)
	res.Count = e.debounce.Count(sym)
	return res
}

// OnPrices refreshes the market snapshot and runs one tick for every watched symbol
// with a price. Symbols missing from prices are skipped.
func (e *Engine) OnPrices(prices map[string]float64, persist bool) []TickResult {
	e.UpdateMarket(prices)
	ts := e.now()
	var results []TickResult
	for _, sym := range e.Watchlist() {
		px, ok := prices[sym]
		if !ok {
			e.log.Warn().Str("sym", sym).Msg("no price this cycle")
			continue
		}
		results = append(results, e.ProcessTick(signal.Tick{Symbol: sym, Price: px, Ts: ts}, persist))
	}
	return results
}

// tradeLocked fills a simulated order and records it. A recorder failure still
// returns the transaction, which stays in the in-memory ledger.
func (e *Engine) tradeLocked(sym string, action signal.Action, price float64) (*execution.Transaction, error) {
	var (
		order execution.Order
		err   error
	)
	switch action {
	case signal.Buy:
		order, err = e.account.Buy(sym, price)
	case signal.Sell:
		order, err = e.account.Sell(sym, price)
	default:
		return nil, nil
	}
	if err != nil {
		e.log.Warn().Err(err).Str("sym", sym).Str("action", action.String()).Msg("trade skipped")
		return nil, err
	}
	e.debounce.Reset(sym)
	metrics.BalanceUSD.Set(e.account.Cash())

	tx, err := e.exec.Submit(order)
	if err != nil {
		if !errors.Is(err, ErrIOFailure) {
			err = errors.Join(ErrIOFailure, err)
		}
		return &tx, fmt.Errorf("%s %s: %w", action, sym, err)
	}
	return &tx, nil
}

func (e *Engine) lastPriceLocked(sym string) float64 {
	if row, ok := e.last[sym]; ok && row.Close > 0 {
		return row.Close
	}
	if row, err := e.store.Snapshot(sym); err == nil && row.Close > 0 {
		return row.Close
	}
	return e.prices[sym]
}

func (e *Engine) valuationLocked() map[string]float64 {
	syms := e.store.Symbols()
	out := make(map[string]float64, len(syms))
	for _, sym := range syms {
		out[sym] = e.lastPriceLocked(sym)
	}
	return out
}

// SortedSymbols returns the keys of prices in lexical order.
func SortedSymbols[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for sym := range m {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
