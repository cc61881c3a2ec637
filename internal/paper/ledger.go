package paper

import (
	"sync"

	"tothemoon-go/internal/dataset"
	"tothemoon-go/internal/execution"
)

// DefaultRecent is how many transactions the in-memory ledger keeps.
const DefaultRecent = 20

// Ledger keeps the most recent transactions in memory, oldest evicted first.
type Ledger struct {
	mu  sync.Mutex
	txs *dataset.Ring[execution.Transaction]
}

// NewLedger creates an empty ledger holding up to capacity transactions.
func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultRecent
	}
	return &Ledger{txs: dataset.NewRing[execution.Transaction](capacity)}
}

// Record appends a transaction, evicting the oldest when full.
func (l *Ledger) Record(tx execution.Transaction) error {
	l.mu.Lock()
	l.txs.Push(tx)
	l.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the recorded transactions, oldest first.
func (l *Ledger) Snapshot() []execution.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.txs.Slice()
}

// Len reports how many transactions are held.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.txs.Len()
}

// Cap reports the ledger bound.
func (l *Ledger) Cap() int { return l.txs.Cap() }

// Reset clears all stored transactions.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.txs.Reset()
	l.mu.Unlock()
}
