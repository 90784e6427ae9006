package dex

import (
	"errors"
	"testing"

	"cchlayer/ledger"
	"cchlayer/storage"
)

const (
	seller = "cch1seller"
	buyer  = "cch1buyer"
	prop   = uint32(5)
)

func newTestEngine(t *testing.T, sellerBalance int64) (*Engine, *ledger.Ledger) {
	t.Helper()
	l := ledger.NewLedger()
	l.BeginBlock(0)
	if err := l.Credit(seller, prop, sellerBalance, ledger.Available); err != nil {
		t.Fatalf("seed seller: %v", err)
	}
	e := NewEngine(l)
	l.BeginBlock(1)
	e.BeginBlock(1)
	return e, l
}

func TestCreateOfferReservesTokens(t *testing.T) {
	e, l := newTestEngine(t, 100)
	if err := e.CreateOffer(seller, prop, 60, 30, 10, 0, 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	tally := l.BalanceOf(seller, prop)
	if tally.Available != 40 || tally.SellReserved != 60 {
		t.Fatalf("unexpected tally after offer: %+v", tally)
	}
	if err := e.CreateOffer(seller, prop, 10, 5, 10, 0, 1); !errors.Is(err, ErrOfferExists) {
		t.Fatalf("expected ErrOfferExists, got %v", err)
	}
}

func TestCreateOfferInsufficientBalance(t *testing.T) {
	e, _ := newTestEngine(t, 10)
	if err := e.CreateOffer(seller, prop, 60, 30, 10, 0, 1); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if _, exists := e.GetOffer(seller, prop); exists {
		t.Fatal("offer published despite failed reservation")
	}
}

func TestUpdateOfferReReservesDelta(t *testing.T) {
	e, l := newTestEngine(t, 100)
	if err := e.CreateOffer(seller, prop, 60, 30, 10, 0, 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.UpdateOffer(seller, prop, 80, 50, 20, 1, 1); err != nil {
		t.Fatalf("update up: %v", err)
	}
	tally := l.BalanceOf(seller, prop)
	if tally.Available != 20 || tally.SellReserved != 80 {
		t.Fatalf("unexpected tally after raise: %+v", tally)
	}
	if err := e.UpdateOffer(seller, prop, 30, 50, 20, 1, 1); err != nil {
		t.Fatalf("update down: %v", err)
	}
	tally = l.BalanceOf(seller, prop)
	if tally.Available != 70 || tally.SellReserved != 30 {
		t.Fatalf("unexpected tally after lower: %+v", tally)
	}
	offer, _ := e.GetOffer(seller, prop)
	if offer.OriginalAmountForSale != 30 || offer.AmountDesired != 50 {
		t.Fatalf("originals not replaced: %+v", offer)
	}
}

func TestCancelOfferReleasesUnaccepted(t *testing.T) {
	e, l := newTestEngine(t, 100)
	if err := e.CreateOffer(seller, prop, 60, 30, 10, 0, 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.AcceptOffer(buyer, seller, prop, 20, 1); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := e.CancelOffer(seller, prop); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	tally := l.BalanceOf(seller, prop)
	if tally.Available != 80 || tally.SellReserved != 0 || tally.AcceptReserved != 20 {
		t.Fatalf("unexpected tally after cancel: %+v", tally)
	}
	if _, exists := e.GetAccept(seller, prop, buyer); !exists {
		t.Fatal("open accept removed by offer cancel")
	}
}

func TestAcceptCapsAtRemainingAmount(t *testing.T) {
	e, _ := newTestEngine(t, 100)
	if err := e.CreateOffer(seller, prop, 50, 25, 10, 0, 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.AcceptOffer(buyer, seller, prop, 200, 1); err != nil {
		t.Fatalf("accept: %v", err)
	}
	accept, _ := e.GetAccept(seller, prop, buyer)
	if accept.AmountReserved != 50 {
		t.Fatalf("accept not capped: %d", accept.AmountReserved)
	}
	offer, _ := e.GetOffer(seller, prop)
	if offer.AmountForSale != 0 {
		t.Fatalf("offer remainder not consumed: %d", offer.AmountForSale)
	}
	if err := e.AcceptOffer("cch1other", seller, prop, 1, 1); !errors.Is(err, ErrNothingToAccept) {
		t.Fatalf("expected ErrNothingToAccept, got %v", err)
	}
}

func TestAcceptSnapshotSurvivesOfferUpdate(t *testing.T) {
	e, _ := newTestEngine(t, 100)
	if err := e.CreateOffer(seller, prop, 60, 30, 10, 0, 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.AcceptOffer(buyer, seller, prop, 20, 1); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := e.UpdateOffer(seller, prop, 40, 400, 10, 0, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	accept, _ := e.GetAccept(seller, prop, buyer)
	if accept.OriginalAmountForSale != 60 || accept.OriginalAmountDesired != 30 {
		t.Fatalf("snapshot altered by update: %+v", accept)
	}
	// 20 of 60 at 30 desired costs exactly 10 under the snapshotted terms.
	if got := requiredPayment(accept, accept.AmountReserved); got != 10 {
		t.Fatalf("unexpected obligation: %d", got)
	}
}

func TestIndivisiblePaymentExactOrNothing(t *testing.T) {
	e, l := newTestEngine(t, 100)
	if err := e.CreateOffer(seller, prop, 10, 7, 10, 0, 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.AcceptOffer(buyer, seller, prop, 10, 1); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := e.ProcessPayment(buyer, seller, prop, 6, false); !errors.Is(err, ErrPaymentTooLow) {
		t.Fatalf("expected ErrPaymentTooLow, got %v", err)
	}
	if err := e.ProcessPayment(buyer, seller, prop, 8, false); !errors.Is(err, ErrPaymentTooHigh) {
		t.Fatalf("expected ErrPaymentTooHigh, got %v", err)
	}
	if err := e.ProcessPayment(buyer, seller, prop, 7, false); err != nil {
		t.Fatalf("exact payment: %v", err)
	}
	if got := l.BalanceOf(buyer, prop).Available; got != 10 {
		t.Fatalf("buyer not settled: %d", got)
	}
	if _, exists := e.GetAccept(seller, prop, buyer); exists {
		t.Fatal("accept not closed after full payment")
	}
}

func TestDivisiblePartialPaymentProRata(t *testing.T) {
	e, l := newTestEngine(t, 1000)
	if err := e.CreateOffer(seller, prop, 100, 50, 10, 0, 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.AcceptOffer(buyer, seller, prop, 100, 1); err != nil {
		t.Fatalf("accept: %v", err)
	}
	// 20 CCH at 50-for-100 buys 40 tokens.
	if err := e.ProcessPayment(buyer, seller, prop, 20, true); err != nil {
		t.Fatalf("partial payment: %v", err)
	}
	if got := l.BalanceOf(buyer, prop).Available; got != 40 {
		t.Fatalf("unexpected buyer balance: %d", got)
	}
	accept, exists := e.GetAccept(seller, prop, buyer)
	if !exists || accept.AmountReserved != 60 {
		t.Fatalf("unexpected remaining reservation: %+v", accept)
	}
	// 30 more settles the rest.
	if err := e.ProcessPayment(buyer, seller, prop, 30, true); err != nil {
		t.Fatalf("final payment: %v", err)
	}
	if _, exists := e.GetAccept(seller, prop, buyer); exists {
		t.Fatal("accept not closed")
	}
}

func TestDivisiblePaymentBelowOneUnitRejected(t *testing.T) {
	e, _ := newTestEngine(t, 100)
	// 1 token costs 10 CCH; anything under 10 releases nothing.
	if err := e.CreateOffer(seller, prop, 10, 100, 10, 0, 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.AcceptOffer(buyer, seller, prop, 10, 1); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := e.ProcessPayment(buyer, seller, prop, 9, true); !errors.Is(err, ErrPaymentTooLow) {
		t.Fatalf("expected ErrPaymentTooLow, got %v", err)
	}
}

func TestExpiryReturnsTokensToLiveOffer(t *testing.T) {
	e, l := newTestEngine(t, 100)
	if err := e.CreateOffer(seller, prop, 60, 30, 5, 0, 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.AcceptOffer(buyer, seller, prop, 20, 1); err != nil {
		t.Fatalf("accept: %v", err)
	}
	// Inside the window nothing expires.
	if err := e.ExpireAccepts(6); err != nil {
		t.Fatalf("expire at 6: %v", err)
	}
	if _, exists := e.GetAccept(seller, prop, buyer); !exists {
		t.Fatal("accept expired inside window")
	}
	if err := e.ExpireAccepts(7); err != nil {
		t.Fatalf("expire at 7: %v", err)
	}
	if _, exists := e.GetAccept(seller, prop, buyer); exists {
		t.Fatal("accept not expired past window")
	}
	offer, _ := e.GetOffer(seller, prop)
	if offer.AmountForSale != 60 {
		t.Fatalf("tokens not returned to offer: %d", offer.AmountForSale)
	}
	tally := l.BalanceOf(seller, prop)
	if tally.SellReserved != 60 || tally.AcceptReserved != 0 {
		t.Fatalf("unexpected tally after expiry: %+v", tally)
	}
}

func TestExpiryReturnsTokensToSellerWhenOfferGone(t *testing.T) {
	e, l := newTestEngine(t, 100)
	if err := e.CreateOffer(seller, prop, 60, 30, 5, 0, 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.AcceptOffer(buyer, seller, prop, 20, 1); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := e.CancelOffer(seller, prop); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := e.ExpireAccepts(7); err != nil {
		t.Fatalf("expire: %v", err)
	}
	tally := l.BalanceOf(seller, prop)
	if tally.Available != 100 || tally.AcceptReserved != 0 {
		t.Fatalf("tokens not returned to seller: %+v", tally)
	}
}

func TestRollbackRestoresOfferAndAccept(t *testing.T) {
	e, l := newTestEngine(t, 100)
	if err := e.CreateOffer(seller, prop, 60, 30, 10, 0, 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	l.BeginBlock(2)
	e.BeginBlock(2)
	if err := e.AcceptOffer(buyer, seller, prop, 20, 2); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := e.RollbackTo(2); err != nil {
		t.Fatalf("dex rollback: %v", err)
	}
	if err := l.RollbackTo(2); err != nil {
		t.Fatalf("ledger rollback: %v", err)
	}
	if _, exists := e.GetAccept(seller, prop, buyer); exists {
		t.Fatal("accept survived rollback")
	}
	offer, _ := e.GetOffer(seller, prop)
	if offer.AmountForSale != 60 {
		t.Fatalf("offer remainder not restored: %d", offer.AmountForSale)
	}
	tally := l.BalanceOf(seller, prop)
	if tally.SellReserved != 60 || tally.AcceptReserved != 0 {
		t.Fatalf("tally not restored: %+v", tally)
	}
}

func TestPersistRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t, 100)
	if err := e.CreateOffer(seller, prop, 60, 30, 10, 2, 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.AcceptOffer(buyer, seller, prop, 20, 1); err != nil {
		t.Fatalf("accept: %v", err)
	}

	db := storage.NewMemDB()
	defer db.Close()
	batch := new(storage.Batch)
	if err := e.Flush(batch); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := db.Write(batch); err != nil {
		t.Fatalf("write: %v", err)
	}

	restored := NewEngine(ledger.NewLedger())
	if err := restored.Load(db); err != nil {
		t.Fatalf("load: %v", err)
	}
	offer, ok := restored.GetOffer(seller, prop)
	if !ok || offer.AmountForSale != 40 || offer.MinAcceptFee != 2 {
		t.Fatalf("offer not restored: %+v", offer)
	}
	accept, ok := restored.GetAccept(seller, prop, buyer)
	if !ok || accept.AmountReserved != 20 || accept.OriginalAmountDesired != 30 {
		t.Fatalf("accept not restored: %+v", accept)
	}
}
