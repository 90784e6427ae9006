package consensus

import (
	"testing"

	"cchlayer/ledger"
	"cchlayer/metadex"
)

func TestHashBalancesIndependentOfInsertionOrder(t *testing.T) {
	first := ledger.NewLedger()
	first.Credit("cch1alice", 1, 100, ledger.Available)
	first.Credit("cch1bob", 1, 50, ledger.Available)
	first.Credit("cch1alice", 2, 7, ledger.Frozen)

	second := ledger.NewLedger()
	second.Credit("cch1alice", 2, 7, ledger.Frozen)
	second.Credit("cch1bob", 1, 50, ledger.Available)
	second.Credit("cch1alice", 1, 100, ledger.Available)

	if HashBalances(first) != HashBalances(second) {
		t.Fatal("digest depends on insertion order")
	}
}

func TestHashBalancesSensitiveToBucket(t *testing.T) {
	first := ledger.NewLedger()
	first.Credit("cch1alice", 1, 100, ledger.Available)

	second := ledger.NewLedger()
	second.Credit("cch1alice", 1, 100, ledger.Frozen)

	if HashBalances(first) == HashBalances(second) {
		t.Fatal("digest ignores bucket placement")
	}
}

func TestHashBalancesEmptyLedgerIsStable(t *testing.T) {
	if HashBalances(ledger.NewLedger()) != HashBalances(ledger.NewLedger()) {
		t.Fatal("empty digest not stable")
	}
}

func TestHashMetaDExCoversBookAndFilter(t *testing.T) {
	l := ledger.NewLedger()
	l.Credit("cch1alice", 1, 1000, ledger.Available)
	l.Credit("cch1alice", 2, 1000, ledger.Available)
	e := metadex.NewEngine(l, nil)
	if _, err := e.Trade("tx-1", "cch1alice", 1, 100, 2, 50, 1, 0); err != nil {
		t.Fatalf("trade 1: %v", err)
	}
	empty := metadex.NewEngine(ledger.NewLedger(), nil)
	if HashMetaDEx(e, 0) == HashMetaDEx(empty, 0) {
		t.Fatal("digest ignores resting orders")
	}
	// Filtering to a property with no orders matches the empty book.
	if HashMetaDEx(e, 9) != HashMetaDEx(empty, 0) {
		t.Fatal("filtered digest not equal to empty digest")
	}
	if HashMetaDEx(e, 1) != HashMetaDEx(e, 0) {
		t.Fatal("filter covering the whole book changed the digest")
	}

	if _, err := e.Trade("tx-2", "cch1alice", 2, 100, 1, 60, 1, 1); err != nil {
		t.Fatalf("trade 2: %v", err)
	}
	if HashMetaDEx(e, 1) == HashMetaDEx(e, 0) {
		t.Fatal("filter did not restrict the digest")
	}
}

func TestHashMetaDExIsPure(t *testing.T) {
	l := ledger.NewLedger()
	l.Credit("cch1alice", 1, 1000, ledger.Available)
	e := metadex.NewEngine(l, nil)
	if _, err := e.Trade("tx-1", "cch1alice", 1, 100, 2, 50, 1, 0); err != nil {
		t.Fatalf("trade: %v", err)
	}
	if HashMetaDEx(e, 0) != HashMetaDEx(e, 0) {
		t.Fatal("repeated digest differs")
	}
}
