package paper

import (
	"testing"

	"tothemoon-go/internal/execution"
)

func TestLedgerRecordSnapshot(t *testing.T) {
	ledger := NewLedger(2)
	tx := execution.Transaction{Symbol: "BTCUSDT", Amount: 1}
	if err := ledger.Record(tx); err != nil {
		t.Fatalf("Record error: %v", err)
	}

	snapshot := ledger.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(snapshot))
	}
	if snapshot[0].Symbol != tx.Symbol {
		t.Fatalf("unexpected transaction symbol")
	}

	ledger.Reset()
	if len(ledger.Snapshot()) != 0 {
		t.Fatalf("expected ledger reset")
	}
}

func TestLedgerEvictsOldest(t *testing.T) {
	ledger := NewLedger(DefaultRecent)
	for i := 0; i < 25; i++ {
		_ = ledger.Record(execution.Transaction{Symbol: "ETHUSDT", Amount: float64(i)})
	}
	snapshot := ledger.Snapshot()
	if len(snapshot) != DefaultRecent || ledger.Len() != DefaultRecent {
		t.Fatalf("expected %d transactions, got %d", DefaultRecent, len(snapshot))
	}
	if snapshot[0].Amount != 5 || snapshot[len(snapshot)-1].Amount != 24 {
		t.Fatalf("expected oldest five evicted, got first=%v last=%v", snapshot[0].Amount, snapshot[len(snapshot)-1].Amount)
	}
}
