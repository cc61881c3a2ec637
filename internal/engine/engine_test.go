package engine

import (
	"context"
	"errors"
	"math"
	"os"
	"strings"
	"testing"

	"tothemoon-go/internal/execution"
	"tothemoon-go/internal/paper"
	"tothemoon-go/internal/signal"
	"tothemoon-go/internal/strategy"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	closes map[string][]float64
	err    error
}

func (f fakeHistory) HistoricalCloses(_ context.Context, symbol string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.closes[symbol], nil
}

type failingRecorder struct{}

func (failingRecorder) Record(execution.Transaction) error {
	return errors.Join(paper.ErrIOFailure, os.ErrPermission)
}

func flat(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

// alternating oscillates between 100 and 101 so RSI sits near 50.
func alternating(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i%2)
	}
	return out
}

func newEngine(t *testing.T, cash float64, mode string, threshold int, recorders ...execution.Recorder) *Engine {
	t.Helper()
	ledger := paper.NewLedger(paper.DefaultRecent)
	strat, err := strategy.Build(mode, strategy.DefaultParams())
	require.NoError(t, err)
	return New(Options{
		Strategy:        strat,
		Headroom:        1,
		SignalThreshold: threshold,
		Account:         paper.NewAccount(cash, paper.DefaultSettings()),
		Ledger:          ledger,
		Executor:        execution.NewExecutor(zerolog.Nop(), append([]execution.Recorder{ledger}, recorders...)...),
		Log:             zerolog.Nop(),
	})
}

func feed(e *Engine, sym string, price float64, n int) []TickResult {
	out := make([]TickResult, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, e.ProcessTick(signal.Tick{Symbol: sym, Price: price}, false))
	}
	return out
}

func TestEndToEndBuyThenSell(t *testing.T) {
	e := newEngine(t, 1000, "or", 5)
	require.NoError(t, e.Bootstrap("BTCUSD", flat(25, 100)))

	buys := feed(e, "BTCUSD", 50, 5)
	for i, res := range buys[:4] {
		require.NoError(t, res.Err)
		assert.Nil(t, res.Transaction)
		assert.Equal(t, i+1, res.Count)
		assert.Equal(t, signal.Buy, res.Signal.Action)
	}
	require.NotNil(t, buys[4].Transaction)
	assert.Equal(t, execution.Buy, buys[4].Transaction.Side)
	assert.Equal(t, 0, e.Counter("BTCUSD"))

	snap := e.Holdings()
	holding := snap.Positions["BTCUSD"].Qty
	assert.InDelta(t, 100*0.995/50, holding, 1e-9)
	assert.InDelta(t, 900, snap.Cash, 1e-9)

	sells := feed(e, "BTCUSD", 150, 5)
	for _, res := range sells[:4] {
		assert.Nil(t, res.Transaction)
	}
	tx := sells[4].Transaction
	require.NotNil(t, tx)
	require.NoError(t, sells[4].Err)
	assert.Equal(t, execution.Sell, tx.Side)
	assert.Equal(t, "BTCUSD", tx.Symbol)
	assert.InDelta(t, holding, tx.Amount, 1e-12)
	assert.Equal(t, 150.0, tx.Rate)
	assert.Equal(t, 0, e.Counter("BTCUSD"))
	assert.Len(t, e.Transactions(), 2)

	rows, err := e.History("BTCUSD")
	require.NoError(t, err)
	assert.Len(t, rows, 21)
	assert.Equal(t, 100.0, rows[len(rows)-1].Close)
}

func TestPersistAppendsToHistory(t *testing.T) {
	e := newEngine(t, 1000, "or", 5)
	require.NoError(t, e.Bootstrap("ETHUSD", flat(5, 10)))

	e.ProcessTick(signal.Tick{Symbol: "ETHUSD", Price: 11}, false)
	rows, _ := e.History("ETHUSD")
	assert.Len(t, rows, 5)
	row, err := e.Indicator("eth/usd")
	require.NoError(t, err)
	assert.Equal(t, 11.0, row.Close)

	e.ProcessTick(signal.Tick{Symbol: "ETHUSD", Price: 12}, true)
	rows, _ = e.History("ETHUSD")
	require.Len(t, rows, 6)
	assert.Equal(t, 12.0, rows[5].Close)
	assert.Zero(t, rows[5].RSI, "RSI still warming up")
}

func TestHoldResetsCounterAndAndPolicy(t *testing.T) {
	e := newEngine(t, 1000, "and", 5)
	require.NoError(t, e.Bootstrap("BTCUSD", flat(21, 100)))

	for _, res := range feed(e, "BTCUSD", 150, 6) {
		assert.Equal(t, signal.Hold, res.Signal.Action)
		assert.Nil(t, res.Transaction)
	}
	assert.Empty(t, e.Transactions())

	e2 := newEngine(t, 1000, "or", 5)
	require.NoError(t, e2.Bootstrap("BTCUSD", alternating(21)))
	feed(e2, "BTCUSD", 150, 3)
	assert.Equal(t, 3, e2.Counter("BTCUSD"))
	res := feed(e2, "BTCUSD", 100.5, 1)[0]
	assert.Equal(t, signal.Hold, res.Signal.Action, res.Signal.Reason)
	assert.Equal(t, 0, e2.Counter("BTCUSD"))
}

func TestInsufficientFundsKeepsCounter(t *testing.T) {
	e := newEngine(t, 5, "or", 3)
	require.NoError(t, e.Bootstrap("BTCUSD", flat(21, 100)))

	results := feed(e, "BTCUSD", 50, 4)
	assert.ErrorIs(t, results[2].Err, ErrInsufficientFunds)
	assert.Nil(t, results[2].Transaction)
	assert.Equal(t, 3, results[2].Count)
	assert.ErrorIs(t, results[3].Err, ErrInsufficientFunds)
	assert.Equal(t, 4, results[3].Count)
	assert.Equal(t, 5.0, e.Balance())
}

func TestNothingToSellAtThreshold(t *testing.T) {
	e := newEngine(t, 1000, "or", 2)
	require.NoError(t, e.Bootstrap("BTCUSD", flat(21, 100)))
	results := feed(e, "BTCUSD", 150, 2)
	assert.ErrorIs(t, results[1].Err, ErrNothingToSell)
	assert.Empty(t, e.Transactions())
}

func TestDeposit(t *testing.T) {
	e := newEngine(t, 0, "or", 5)
	require.NoError(t, e.Deposit(100))
	err := e.Deposit(-5)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Equal(t, 100.0, e.Balance())
}

func TestDepositRejectsInfinityAndKeepsTrading(t *testing.T) {
	e := newEngine(t, 1000, "or", 5)
	require.NoError(t, e.Bootstrap("BTCUSD", flat(21, 100)))

	assert.ErrorIs(t, e.Deposit(math.Inf(1)), ErrInvalidAmount)
	assert.ErrorIs(t, e.Deposit(math.NaN()), ErrInvalidAmount)
	assert.Equal(t, 1000.0, e.Balance())

	results := feed(e, "BTCUSD", 50, 5)
	require.NotNil(t, results[4].Transaction)
	assert.False(t, math.IsNaN(e.Balance()))
	assert.InDelta(t, 900, e.Balance(), 1e-9)
	assert.False(t, math.IsInf(e.WithdrawAll(), 0))
}

func TestRemove(t *testing.T) {
	e := newEngine(t, 1000, "or", 1)
	require.NoError(t, e.Bootstrap("BTCUSD", flat(21, 100)))
	require.NoError(t, e.Bootstrap("ETHUSD", flat(21, 10)))

	res := e.ProcessTick(signal.Tick{Symbol: "BTCUSD", Price: 50}, false)
	require.NotNil(t, res.Transaction)

	tx, err := e.Remove("btc/usd")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, execution.Sell, tx.Side)
	assert.Equal(t, 50.0, tx.Rate)
	assert.Len(t, e.Transactions(), 2)
	assert.Equal(t, []string{"ETHUSD"}, e.Watchlist())
	_, err = e.Indicator("BTCUSD")
	assert.ErrorIs(t, err, ErrNotFound)
	_, held := e.Holdings().Positions["BTCUSD"]
	assert.False(t, held)

	tx, err = e.Remove("ETHUSD")
	require.NoError(t, err)
	assert.Nil(t, tx)
	assert.Len(t, e.Transactions(), 2)

	_, err = e.Remove("ETHUSD")
	assert.ErrorIs(t, err, ErrInvalidOperation)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddValidatesSymbols(t *testing.T) {
	e := newEngine(t, 1000, "or", 5)
	e.history = fakeHistory{closes: map[string][]float64{"BTCUSDT": flat(30, 100)}}
	e.UpdateMarket(map[string]float64{"BTCUSDT": 100, "ETHBTC": 0.05, "USDCUSDT": 1})

	_, err := e.Add(context.Background(), "eth/btc")
	assert.ErrorIs(t, err, ErrInvalidOperation)
	_, err = e.Add(context.Background(), "USDCUSDT")
	assert.ErrorIs(t, err, ErrInvalidOperation)
	_, err = e.Add(context.Background(), "XRPUSDT")
	assert.ErrorIs(t, err, ErrInvalidOperation)

	sym, err := e.Add(context.Background(), " btc/usdt ")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", sym)
	rows, err := e.History(sym)
	require.NoError(t, err)
	assert.Len(t, rows, 21)

	_, err = e.Add(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestAddWithFailingHistoryStartsCold(t *testing.T) {
	e := newEngine(t, 1000, "or", 5)
	e.history = fakeHistory{err: errors.New("timeout")}
	e.UpdateMarket(map[string]float64{"SOLUSDT": 20})

	_, err := e.Add(context.Background(), "SOLUSDT")
	require.NoError(t, err)
	rows, err := e.History("SOLUSDT")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRecorderFailureKeepsInMemoryTransaction(t *testing.T) {
	e := newEngine(t, 1000, "or", 1, failingRecorder{})
	require.NoError(t, e.Bootstrap("BTCUSD", flat(21, 100)))

	res := e.ProcessTick(signal.Tick{Symbol: "BTCUSD", Price: 50}, false)
	assert.ErrorIs(t, res.Err, ErrIOFailure)
	require.NotNil(t, res.Transaction)
	assert.Len(t, e.Transactions(), 1)
	assert.Less(t, e.Balance(), 1000.0)
}

func TestLedgerBoundAndDurableLog(t *testing.T) {
	rec, err := paper.NewCSVRecorder(t.TempDir(), "results.csv")
	require.NoError(t, err)
	e := newEngine(t, 1000, "or", 1, rec)
	require.NoError(t, e.Bootstrap("BTCUSD", flat(21, 100)))

	for i := 0; i < 15; i++ {
		require.NotNil(t, e.ProcessTick(signal.Tick{Symbol: "BTCUSD", Price: 50}, false).Transaction)
		require.NotNil(t, e.ProcessTick(signal.Tick{Symbol: "BTCUSD", Price: 150}, false).Transaction)
	}
	require.NoError(t, rec.Close())

	recent := e.Transactions()
	assert.Len(t, recent, paper.DefaultRecent)
	assert.Equal(t, execution.Buy, recent[0].Side)

	raw, err := os.ReadFile(rec.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 31)
	assert.True(t, strings.HasSuffix(lines[1], ",50"))
	assert.True(t, strings.HasSuffix(lines[30], ",150"))
}

func TestWithdrawAllValuesHoldings(t *testing.T) {
	e := newEngine(t, 1000, "or", 1)
	require.NoError(t, e.Bootstrap("BTCUSD", flat(21, 100)))
	res := e.ProcessTick(signal.Tick{Symbol: "BTCUSD", Price: 50}, false)
	require.NotNil(t, res.Transaction)

	assert.InDelta(t, 900+res.Transaction.Amount*50, e.WithdrawAll(), 1e-9)
	assert.InDelta(t, res.Transaction.Amount, e.Holdings().Positions["BTCUSD"].Qty, 1e-12)
}

func TestOnPricesSkipsMissingSymbols(t *testing.T) {
	e := newEngine(t, 1000, "or", 5)
	require.NoError(t, e.Bootstrap("BTCUSD", nil))
	require.NoError(t, e.Bootstrap("ETHUSD", nil))

	results := e.OnPrices(map[string]float64{"BTCUSD": 10, "XRPUSD": 1}, true)
	require.Len(t, results, 1)
	assert.Equal(t, "BTCUSD", results[0].Signal.Symbol)
	market, _ := e.Market()
	assert.Equal(t, []string{"BTCUSD", "XRPUSD"}, SortedSymbols(market))

	res := e.ProcessTick(signal.Tick{Symbol: "DOGEUSD", Price: 1}, true)
	assert.ErrorIs(t, res.Err, ErrNotFound)
}
