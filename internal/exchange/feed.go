// Package exchange hosts the market-data connectors the engine polls.
package exchange

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"tothemoon-go/internal/dataset"
	"tothemoon-go/internal/signal"
)

const (
	// ProviderStub serves a deterministic synthetic market (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderBinance polls the Binance public REST API.
	ProviderBinance = "binance"
	// ProviderBinanceWS caches the Binance all-market mini ticker stream and falls back to REST.
	ProviderBinanceWS = "binance_ws"
)

const (
	defaultBaseURL    = "https://api.binance.com"
	defaultWSURL      = "wss://stream.binance.com:9443/ws/!miniTicker@arr"
	defaultKlineLimit = 100
	defaultStaleAfter = time.Minute
)

// DefaultSymbols seeds the stub market.
var DefaultSymbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "ADAUSDT"}

// Feed represents a pluggable market data source implementation.
type Feed struct {
	provider   string
	symbols    []string
	log        zerolog.Logger
	baseURL    string
	wsURL      string
	client     *http.Client
	klineLimit int
	staleAfter time.Duration
	validate   *validator.Validate

	mu         sync.RWMutex
	lastPrices map[string]float64
	lastUpdate time.Time
	stub       *stubMarket
}

// Option configures Feed construction parameters.
type Option func(*Feed)

// WithBaseURL overrides the REST endpoint root.
func WithBaseURL(url string) Option {
	return func(f *Feed) {
		if url != "" {
			f.baseURL = strings.TrimSuffix(url, "/")
		}
	}
}

// WithWSURL overrides the mini ticker stream endpoint.
func WithWSURL(url string) Option {
	return func(f *Feed) {
		if url != "" {
			f.wsURL = url
		}
	}
}

// WithHTTPClient injects the client used for REST calls.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Feed) {
		if client != nil {
			f.client = client
		}
	}
}

// WithKlineLimit sets how many one-minute candles a history request asks for.
func WithKlineLimit(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.klineLimit = n
		}
	}
}

// WithStaleAfter bounds how old the stream cache may be before REST is used instead.
func WithStaleAfter(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.staleAfter = d
		}
	}
}

// NewFeed constructs a feed backed by the requested provider.
func NewFeed(provider string, symbols []string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	f := &Feed{
		provider:   strings.ToLower(provider),
		log:        log,
		baseURL:    defaultBaseURL,
		wsURL:      defaultWSURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		klineLimit: defaultKlineLimit,
		staleAfter: defaultStaleAfter,
		validate:   validator.New(),
		lastPrices: make(map[string]float64),
	}
	f.setSymbols(symbols)
	for _, opt := range opts {
		opt(f)
	}
	if f.provider == ProviderStub {
		if len(f.symbols) == 0 {
			f.setSymbols(DefaultSymbols)
		}
		f.stub = newStubMarket(f.snapshotSymbols())
	}
	return f
}

// Provider returns the normalized provider name.
func (f *Feed) Provider() string { return f.provider }

// SetSymbols replaces the tracked symbol list (deduplicated, sorted for determinism).
// The stub market starts walking any symbol it has not seen before.
func (f *Feed) SetSymbols(symbols []string) {
	f.setSymbols(symbols)
	if f.stub != nil {
		f.stub.track(f.snapshotSymbols())
	}
}

func (f *Feed) setSymbols(symbols []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = signal.NormalizeSymbol(sym)
		if sym == "" {
			continue
		}
		unique[sym] = struct{}{}
	}
	f.symbols = f.symbols[:0]
	for sym := range unique {
		f.symbols = append(f.symbols, sym)
	}
	sort.Strings(f.symbols)
}

// Symbols returns the configured symbol list.
func (f *Feed) Symbols() []string { return f.snapshotSymbols() }

func (f *Feed) snapshotSymbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.symbols))
	copy(out, f.symbols)
	return out
}

// CurrentPrices returns the latest price of every symbol the provider lists.
func (f *Feed) CurrentPrices(ctx context.Context) (map[string]float64, error) {
	switch f.provider {
	case ProviderBinance:
		return f.fetchTickerPrices(ctx)
	case ProviderBinanceWS:
		if prices, ok := f.cachedPrices(); ok {
			return prices, nil
		}
		return f.fetchTickerPrices(ctx)
	case ProviderStub:
		return f.stub.step(), nil
	default:
		return nil, fmt.Errorf("unknown market provider %q", f.provider)
	}
}

// HistoricalCandles returns one-minute candles for symbol, oldest first.
func (f *Feed) HistoricalCandles(ctx context.Context, symbol string) ([]signal.Candle, error) {
	symbol = signal.NormalizeSymbol(symbol)
	switch f.provider {
	case ProviderBinance, ProviderBinanceWS:
		return f.fetchKlines(ctx, symbol)
	case ProviderStub:
		return f.stub.history(symbol, f.klineLimit, time.Now()), nil
	default:
		return nil, fmt.Errorf("unknown market provider %q", f.provider)
	}
}

// HistoricalCloses returns the close of every historical candle, oldest first.
func (f *Feed) HistoricalCloses(ctx context.Context, symbol string) ([]float64, error) {
	candles, err := f.HistoricalCandles(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return dataset.Closes(candles), nil
}

// Start runs background work for streaming providers until ctx is canceled.
// Polling providers return immediately.
func (f *Feed) Start(ctx context.Context) error {
	if f.provider != ProviderBinanceWS {
		return nil
	}
	return f.runBinanceStream(ctx)
}

func (f *Feed) cachedPrices() (map[string]float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.lastPrices) == 0 || time.Since(f.lastUpdate) > f.staleAfter {
		return nil, false
	}
	out := make(map[string]float64, len(f.lastPrices))
	for sym, px := range f.lastPrices {
		out[sym] = px
	}
	return out, true
}

func (f *Feed) storePrices(prices map[string]float64) {
	if len(prices) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for sym, px := range prices {
		f.lastPrices[sym] = px
	}
	f.lastUpdate = time.Now()
}
