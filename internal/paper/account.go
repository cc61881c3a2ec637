// Package paper simulates a cash balance, holdings, and the trade ledger.
package paper

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"tothemoon-go/internal/execution"
	"tothemoon-go/internal/risk"
)

var (
	// ErrInvalidAmount rejects non-positive deposits and prices.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientFunds means the next fixed-fraction slice is too small to trade.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNothingToSell means the symbol has no holding.
	ErrNothingToSell = errors.New("nothing to sell")
)

const epsilon = 1e-12

// Settings holds the trading frictions applied by the account.
type Settings struct {
	// Fee is the proportional fee charged on every trade, e.g. 0.005.
	Fee float64
	// Split is the fixed-fraction divisor: each buy invests cash/Split.
	Split  float64
	Limits risk.Limits
}

// DefaultSettings returns a 0.5% fee, one tenth of cash per buy, and the default limits.
func DefaultSettings() Settings {
	return Settings{Fee: 0.005, Split: 10, Limits: risk.DefaultLimits()}
}

type positionState struct {
	Qty     float64
	AvgCost float64
}

// Account tracks virtual cash, realized PnL, and per-symbol holdings.
type Account struct {
	mu           sync.Mutex
	startingCash float64
	cash         float64
	realizedPnL  float64
	settings     Settings
	positions    map[string]positionState
}

// PositionSnapshot exposes a read-only view of a single holding.
type PositionSnapshot struct {
	Qty         float64
	AvgCost     float64
	MarketValue float64
	Unrealized  float64
}

// Snapshot represents a copy of the account state marked to the supplied prices.
type Snapshot struct {
	Cash        float64
	RealizedPnL float64
	Equity      float64
	Positions   map[string]PositionSnapshot
}

// Symbols returns the held symbols in lexical order.
func (s Snapshot) Symbols() []string {
	out := make([]string, 0, len(s.Positions))
	for sym := range s.Positions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// NewAccount constructs an account with starting cash; zero settings fall back to defaults.
func NewAccount(startingCash float64, settings Settings) *Account {
	def := DefaultSettings()
	if settings.Fee < 0 || settings.Fee >= 1 {
		settings.Fee = def.Fee
	}
	if settings.Split <= 0 {
		settings.Split = def.Split
	}
	if startingCash < 0 {
		startingCash = 0
	}
	return &Account{
		startingCash: startingCash,
		cash:         startingCash,
		settings:     settings,
		positions:    make(map[string]positionState),
	}
}

// StartingCash returns the initial bankroll.
func (a *Account) StartingCash() float64 { return a.startingCash }

// Settings returns the effective trading frictions.
func (a *Account) Settings() Settings { return a.settings }

// Open registers a zero holding for symbol if none exists.
func (a *Account) Open(symbol string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.positions[symbol]; !ok {
		a.positions[symbol] = positionState{}
	}
}

// Close forgets symbol. Any remaining holding is discarded, so sell first.
func (a *Account) Close(symbol string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.positions, symbol)
}

// Deposit adds cash to the balance.
func (a *Account) Deposit(amount float64) error {
	if !positiveFinite(amount) {
		return fmt.Errorf("deposit %v: %w", amount, ErrInvalidAmount)
	}
	a.mu.Lock()
	a.cash += amount
	a.mu.Unlock()
	return nil
}

// Buy invests the next fixed-fraction slice of cash into symbol at price, net of fees.
// The returned order carries the quantity acquired.
func (a *Account) Buy(symbol string, price float64) (execution.Order, error) {
	if !positiveFinite(price) {
		return execution.Order{}, fmt.Errorf("buy %s at %v: %w", symbol, price, ErrInvalidAmount)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	invested := a.cash / a.settings.Split
	if !a.settings.Limits.Allow(invested) {
		return execution.Order{}, fmt.Errorf("buy %s with %.2f: %w", symbol, invested, ErrInsufficientFunds)
	}
	invested = a.settings.Limits.Cap(invested)
	qty := invested * (1 - a.settings.Fee) / price

	state := a.positions[symbol]
	newQty := state.Qty + qty
	a.positions[symbol] = positionState{
		Qty:     newQty,
		AvgCost: (state.AvgCost*state.Qty + invested) / newQty,
	}
	a.cash -= invested
	return execution.Order{Symbol: symbol, Side: execution.Buy, Qty: qty, Price: price}, nil
}

// Sell liquidates the full holding of symbol at price, net of fees.
func (a *Account) Sell(symbol string, price float64) (execution.Order, error) {
	if !positiveFinite(price) {
		return execution.Order{}, fmt.Errorf("sell %s at %v: %w", symbol, price, ErrInvalidAmount)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	state, ok := a.positions[symbol]
	if !ok || state.Qty <= epsilon {
		return execution.Order{}, fmt.Errorf("sell %s: %w", symbol, ErrNothingToSell)
	}
	proceeds := state.Qty * price * (1 - a.settings.Fee)
	a.realizedPnL += proceeds - state.AvgCost*state.Qty
	a.cash += proceeds
	a.positions[symbol] = positionState{}
	return execution.Order{Symbol: symbol, Side: execution.Sell, Qty: state.Qty, Price: price}, nil
}

// Snapshot returns a copy of balances marked using the supplied prices map.
// Symbols without a price contribute nothing to equity.
func (a *Account) Snapshot(prices map[string]float64) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make(map[string]PositionSnapshot, len(a.positions))
	equity := a.cash
	for sym, pos := range a.positions {
		mark := prices[sym]
		marketValue := pos.Qty * mark
		unrealized := marketValue - pos.AvgCost*pos.Qty
		if mark == 0 {
			marketValue = 0
			unrealized = 0
		}
		positions[sym] = PositionSnapshot{
			Qty:         pos.Qty,
			AvgCost:     pos.AvgCost,
			MarketValue: marketValue,
			Unrealized:  unrealized,
		}
		equity += marketValue
	}

	return Snapshot{
		Cash:        a.cash,
		RealizedPnL: a.realizedPnL,
		Equity:      equity,
		Positions:   positions,
	}
}

// WithdrawAll values the account at prices without mutating it.
func (a *Account) WithdrawAll(prices map[string]float64) float64 {
	return a.Snapshot(prices).Equity
}

// Cash reports the free balance.
func (a *Account) Cash() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash
}

// Holding returns the quantity held for symbol and whether the symbol is open.
func (a *Account) Holding(symbol string) (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pos, ok := a.positions[symbol]
	return pos.Qty, ok
}

// RealizedPnL returns total closed-trade profit and loss net of fees.
func (a *Account) RealizedPnL() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.realizedPnL
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
