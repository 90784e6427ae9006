package fees

import (
	"testing"

	"cchlayer/ledger"
	"cchlayer/storage"
)

const (
	alice = "cch1alice"
	bob   = "cch1bob"
)

// newTestEngine seeds a property with the given supply split across alice and
// bob and returns an engine with an open journal at height 1.
func newTestEngine(t *testing.T, aliceHolds, bobHolds int64) (*Engine, *ledger.Ledger, uint32) {
	t.Helper()
	l := ledger.NewLedger()
	props := ledger.NewProperties()
	l.BeginBlock(0)
	props.BeginBlock(0)
	id, err := props.Create(ledger.EcosystemMain, ledger.PropertyMetadata{
		Name:        "TestCoin",
		Divisible:   true,
		Issuer:      alice,
		TotalTokens: aliceHolds + bobHolds,
	})
	if err != nil {
		t.Fatalf("create property: %v", err)
	}
	if aliceHolds > 0 {
		if err := l.Credit(alice, id, aliceHolds, ledger.Available); err != nil {
			t.Fatalf("seed alice: %v", err)
		}
	}
	if bobHolds > 0 {
		if err := l.Credit(bob, id, bobHolds, ledger.Available); err != nil {
			t.Fatalf("seed bob: %v", err)
		}
	}
	e := NewEngine(l, props)
	l.BeginBlock(1)
	props.BeginBlock(1)
	e.BeginBlock(1)
	return e, l, id
}

func TestAddFeeMergesSameBlock(t *testing.T) {
	e, _, id := newTestEngine(t, 1, 0)
	e.AddFee(id, 10, 300)
	e.AddFee(id, 10, 200)
	e.AddFee(id, 12, 500)
	history := e.CacheHistory(id)
	if len(history) != 2 {
		t.Fatalf("unexpected cache entries: %+v", history)
	}
	if history[0].Amount != 500 || history[0].Block != 10 {
		t.Fatalf("same-block fees not merged: %+v", history[0])
	}
	if got := e.CachedAmount(id); got != 1000 {
		t.Fatalf("cached amount %d, want 1000", got)
	}
}

func TestThresholdFloorsAtOne(t *testing.T) {
	e, _, id := newTestEngine(t, 90_000_000, 0)
	threshold, err := e.Threshold(id)
	if err != nil {
		t.Fatalf("threshold: %v", err)
	}
	if threshold != 900 {
		t.Fatalf("threshold %d, want 900", threshold)
	}

	small, _, smallID := newTestEngine(t, 5, 0)
	threshold, err = small.Threshold(smallID)
	if err != nil {
		t.Fatalf("threshold: %v", err)
	}
	if threshold != 1 {
		t.Fatalf("dust threshold %d, want 1", threshold)
	}
}

// Fees accumulate across blocks until the cache crosses totalTokens/100000,
// then the whole cache pays out pro-rata and resets.
func TestDistributionTriggersAtThreshold(t *testing.T) {
	e, l, id := newTestEngine(t, 60_000_000, 30_000_000) // threshold 900
	e.AddFee(id, 1, 400)
	if err := e.EvalBlock(1); err != nil {
		t.Fatalf("eval 1: %v", err)
	}
	if e.DistributionCount() != 0 {
		t.Fatal("distribution fired below threshold")
	}
	e.AddFee(id, 2, 600)
	if err := e.EvalBlock(2); err != nil {
		t.Fatalf("eval 2: %v", err)
	}
	if e.DistributionCount() != 1 {
		t.Fatal("distribution did not fire at threshold")
	}
	if got := e.CachedAmount(id); got != 0 {
		t.Fatalf("cache not cleared: %d", got)
	}
	// 1000 split 2:1 between alice and bob, plus their principal.
	record, ok := e.Distribution(1)
	if !ok || record.Total != 1000 || record.Block != 2 {
		t.Fatalf("unexpected record: %+v", record)
	}
	if got := l.BalanceOf(alice, id).Available; got != 60_000_000+667 {
		t.Fatalf("alice received %d extra, want 667", got-60_000_000)
	}
	if got := l.BalanceOf(bob, id).Available; got != 30_000_000+333 {
		t.Fatalf("bob received %d extra, want 333", got-30_000_000)
	}
}

func TestResidualGoesToHoldersInAddressOrder(t *testing.T) {
	// Equal holders, odd total: the leftover unit lands on the first address.
	e, l, id := newTestEngine(t, 50_000_000, 50_000_000)
	e.AddFee(id, 1, 1001)
	if err := e.EvalBlock(1); err != nil {
		t.Fatalf("eval: %v", err)
	}
	if got := l.BalanceOf(alice, id).Available - 50_000_000; got != 501 {
		t.Fatalf("alice share %d, want 501", got)
	}
	if got := l.BalanceOf(bob, id).Available - 50_000_000; got != 500 {
		t.Fatalf("bob share %d, want 500", got)
	}
}

func TestStaleEntriesAreForfeited(t *testing.T) {
	e, _, id := newTestEngine(t, 90_000_000, 0) // threshold 900
	e.AddFee(id, 1, 400)
	e.AddFee(id, 40, 400)
	// At height 52 the block-1 entry is 51 blocks old and burns.
	if err := e.EvalBlock(52); err != nil {
		t.Fatalf("eval: %v", err)
	}
	history := e.CacheHistory(id)
	if len(history) != 1 || history[0].Block != 40 {
		t.Fatalf("unexpected cache after prune: %+v", history)
	}
	if e.DistributionCount() != 0 {
		t.Fatal("forfeited fees still triggered a distribution")
	}
}

// An entry aging out in the same block the cache would cross the threshold is
// forfeited first; only the surviving entries count toward the trigger.
func TestForfeitureWinsOverSameBlockThreshold(t *testing.T) {
	e, _, id := newTestEngine(t, 90_000_000, 0) // threshold 900
	e.AddFee(id, 1, 500)
	e.AddFee(id, 40, 450)
	// Pre-prune total is 950, but the block-1 entry is 51 blocks old at 52.
	if err := e.EvalBlock(52); err != nil {
		t.Fatalf("eval: %v", err)
	}
	if e.DistributionCount() != 0 {
		t.Fatal("distribution fired on a forfeited entry")
	}
	if got := e.CachedAmount(id); got != 450 {
		t.Fatalf("cache %d after prune, want 450", got)
	}
}

func TestDistributionSkippedWithoutHolders(t *testing.T) {
	e, _, id := newTestEngine(t, 1, 0)
	// Remove the only holder so the payout has nowhere to go.
	l := e.ledger
	if err := l.Debit(alice, id, 1, ledger.Available); err != nil {
		t.Fatalf("debit: %v", err)
	}
	e.AddFee(id, 1, 10)
	if err := e.EvalBlock(1); err != nil {
		t.Fatalf("eval: %v", err)
	}
	if e.DistributionCount() != 0 {
		t.Fatal("distribution fired without holders")
	}
	if got := e.CachedAmount(id); got != 10 {
		t.Fatalf("cache altered: %d", got)
	}
}

func TestFeeShare(t *testing.T) {
	e, _, id := newTestEngine(t, 75, 25)
	weight, total := e.FeeShare(alice, id)
	if weight != 75 || total != 100 {
		t.Fatalf("unexpected share: %d/%d", weight, total)
	}
	weight, total = e.FeeShare("cch1stranger", id)
	if weight != 0 || total != 100 {
		t.Fatalf("unexpected stranger share: %d/%d", weight, total)
	}
}

func TestRollbackRestoresCacheAndHistory(t *testing.T) {
	e, l, id := newTestEngine(t, 60_000_000, 30_000_000)
	e.AddFee(id, 1, 400)
	if err := e.EvalBlock(1); err != nil {
		t.Fatalf("eval 1: %v", err)
	}

	l.BeginBlock(2)
	e.BeginBlock(2)
	e.AddFee(id, 2, 600)
	if err := e.EvalBlock(2); err != nil {
		t.Fatalf("eval 2: %v", err)
	}
	if e.DistributionCount() != 1 {
		t.Fatal("distribution did not fire")
	}

	if err := e.RollbackTo(2); err != nil {
		t.Fatalf("fees rollback: %v", err)
	}
	if err := l.RollbackTo(2); err != nil {
		t.Fatalf("ledger rollback: %v", err)
	}
	if e.DistributionCount() != 0 {
		t.Fatal("distribution record survived rollback")
	}
	history := e.CacheHistory(id)
	if len(history) != 1 || history[0].Block != 1 || history[0].Amount != 400 {
		t.Fatalf("cache not restored: %+v", history)
	}
	if got := l.BalanceOf(alice, id).Available; got != 60_000_000 {
		t.Fatalf("alice credit survived rollback: %d", got)
	}

	// The freed id is reused by the next distribution.
	l.BeginBlock(2)
	e.BeginBlock(2)
	e.AddFee(id, 2, 600)
	if err := e.EvalBlock(2); err != nil {
		t.Fatalf("eval replay: %v", err)
	}
	if record, ok := e.Distribution(1); !ok || record.Total != 1000 {
		t.Fatalf("replayed distribution: %+v, ok=%v", record, ok)
	}
}

func TestPersistRoundTrip(t *testing.T) {
	e, l, id := newTestEngine(t, 60_000_000, 30_000_000)
	e.AddFee(id, 1, 400)
	e.AddFee(id, 2, 600)
	if err := e.EvalBlock(2); err != nil {
		t.Fatalf("eval: %v", err)
	}
	e.AddFee(id, 3, 123)

	db := storage.NewMemDB()
	defer db.Close()
	batch := new(storage.Batch)
	if err := e.Flush(batch); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := db.Write(batch); err != nil {
		t.Fatalf("write: %v", err)
	}

	restored := NewEngine(l, e.props)
	if err := restored.Load(db); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := restored.CachedAmount(id); got != 123 {
		t.Fatalf("cache not restored: %d", got)
	}
	record, ok := restored.Distribution(1)
	if !ok || record.Total != 1000 || len(record.Recipients) != 2 {
		t.Fatalf("history not restored: %+v", record)
	}
	// nextID recovers from the stored records.
	restored.BeginBlock(3)
	restored.ledger.BeginBlock(3)
	restored.AddFee(id, 3, 2000)
	if err := restored.EvalBlock(3); err != nil {
		t.Fatalf("eval after reload: %v", err)
	}
	if _, ok := restored.Distribution(2); !ok {
		t.Fatal("distribution id sequence not recovered")
	}
}
