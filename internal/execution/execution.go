// Package execution turns sized orders into recorded transactions.
package execution

import (
	"errors"
	"fmt"
	"time"

	"tothemoon-go/internal/metrics"

	"github.com/rs/zerolog"
)

// Side enumerates order directions used by the executor.
type Side string

const (
	// Buy converts cash into a holding.
	Buy Side = "Buy"
	// Sell liquidates a holding back into cash.
	Sell Side = "Sell"
)

// Order represents a filled simulated trade awaiting recording.
type Order struct {
	Symbol string
	Side   Side
	Qty    float64
	Price  float64
}

// Transaction is the immutable record of one executed trade.
type Transaction struct {
	Time   time.Time `json:"time"`
	Symbol string    `json:"symbol"`
	Side   Side      `json:"side"`
	Amount float64   `json:"amount"`
	Rate   float64   `json:"rate"`
}

// String renders the transaction the way the history command prints it.
func (tx Transaction) String() string {
	return fmt.Sprintf("%s  %-4s %s  amount=%g  rate=%g",
		tx.Time.Format("2006-01-02 15:04:05"), tx.Side, tx.Symbol, tx.Amount, tx.Rate)
}

// Recorder captures transactions for later inspection.
type Recorder interface {
	Record(Transaction) error
}

// Executor stamps orders into transactions and hands them to every recorder.
type Executor struct {
	log       zerolog.Logger
	recorders []Recorder
	now       func() time.Time
}

// NewExecutor wraps a zerolog logger and the recorders that receive each transaction.
func NewExecutor(log zerolog.Logger, recorders ...Recorder) *Executor {
	return &Executor{log: log, recorders: recorders, now: time.Now}
}

// WithClock overrides the timestamp source.
func (executor *Executor) WithClock(now func() time.Time) *Executor {
	if now != nil {
		executor.now = now
	}
	return executor
}

// Submit records the order. The transaction is returned even when a recorder
// fails; the joined recorder errors are returned alongside it.
func (executor *Executor) Submit(order Order) (Transaction, error) {
	tx := Transaction{
		Time:   executor.now(),
		Symbol: order.Symbol,
		Side:   order.Side,
		Amount: order.Qty,
		Rate:   order.Price,
	}
	metrics.OrdersTotal.WithLabelValues(order.Symbol, string(order.Side)).Inc()
	executor.log.Info().Str("sym", order.Symbol).Str("side", string(order.Side)).Float64("qty", order.Qty).Float64("px", order.Price).Msg("paper trade")

	var errs []error
	for _, rec := range executor.recorders {
		if err := rec.Record(tx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		executor.log.Warn().Err(err).Str("sym", order.Symbol).Msg("record transaction")
		return tx, err
	}
	return tx, nil
}
