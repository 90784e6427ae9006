// Package dex implements the direct exchange: sell offers denominated in the
// base chain currency (CCH), buyer accept reservations against those offers,
// and payment-driven settlement with a block-based payment window.
package dex

import (
	"fmt"
	"sort"

	"cchlayer/ledger"
	"cchlayer/numeric"
)

// OfferKey identifies the single live offer a seller may have per property.
type OfferKey struct {
	Seller   string
	Property uint32
}

// Offer is an active token-for-CCH sell offer. AmountForSale counts down as
// buyers accept; AmountDesired and OriginalAmountForSale hold the offered
// price ratio and are only replaced when the seller updates the offer.
type Offer struct {
	Seller                string
	Property              uint32
	AmountForSale         int64
	AmountDesired         int64
	OriginalAmountForSale int64
	PaymentWindowBlocks   int64
	MinAcceptFee          int64
	Block                 int64
}

// AcceptKey identifies a buyer's reservation against an offer.
type AcceptKey struct {
	Seller   string
	Property uint32
	Buyer    string
}

// Accept is a buyer reservation. The original offer amounts are snapshotted
// here at accept time so the CCH obligation stays fixed even if the seller
// later updates or cancels the offer.
type Accept struct {
	Seller                string
	Property              uint32
	Buyer                 string
	AmountReserved        int64
	OriginalAmountForSale int64
	OriginalAmountDesired int64
	AcceptBlock           int64
	PaymentWindowBlocks   int64
}

type dexUndo struct {
	offerKey   *OfferKey
	offerPrev  *Offer
	offerMade  bool
	acceptKey  *AcceptKey
	acceptPrev *Accept
	acceptMade bool
}

type dexJournal struct {
	height  int64
	entries []dexUndo
}

// Engine holds the DEx state. Balance effects go through the ledger, which
// journals them independently; the engine only journals its own structural
// changes.
type Engine struct {
	ledger  *ledger.Ledger
	offers  map[OfferKey]Offer
	accepts map[AcceptKey]Accept
	dirty   map[OfferKey]struct{}
	dirtyA  map[AcceptKey]struct{}
	journal []dexJournal
}

// NewEngine returns an empty DEx engine bound to the ledger.
func NewEngine(l *ledger.Ledger) *Engine {
	return &Engine{
		ledger:  l,
		offers:  make(map[OfferKey]Offer),
		accepts: make(map[AcceptKey]Accept),
		dirty:   make(map[OfferKey]struct{}),
		dirtyA:  make(map[AcceptKey]struct{}),
	}
}

// BeginBlock opens a journal for the given height.
func (e *Engine) BeginBlock(height int64) {
	e.journal = append(e.journal, dexJournal{height: height})
}

func (e *Engine) record(u dexUndo) {
	if len(e.journal) == 0 {
		return
	}
	j := &e.journal[len(e.journal)-1]
	j.entries = append(j.entries, u)
}

func (e *Engine) setOffer(key OfferKey, offer Offer) {
	prev, existed := e.offers[key]
	if existed {
		e.record(dexUndo{offerKey: &key, offerPrev: &prev})
	} else {
		e.record(dexUndo{offerKey: &key, offerMade: true})
	}
	e.offers[key] = offer
	e.dirty[key] = struct{}{}
}

func (e *Engine) deleteOffer(key OfferKey) {
	prev, existed := e.offers[key]
	if !existed {
		return
	}
	e.record(dexUndo{offerKey: &key, offerPrev: &prev})
	delete(e.offers, key)
	e.dirty[key] = struct{}{}
}

func (e *Engine) setAccept(key AcceptKey, accept Accept) {
	prev, existed := e.accepts[key]
	if existed {
		e.record(dexUndo{acceptKey: &key, acceptPrev: &prev})
	} else {
		e.record(dexUndo{acceptKey: &key, acceptMade: true})
	}
	e.accepts[key] = accept
	e.dirtyA[key] = struct{}{}
}

func (e *Engine) deleteAccept(key AcceptKey) {
	prev, existed := e.accepts[key]
	if !existed {
		return
	}
	e.record(dexUndo{acceptKey: &key, acceptPrev: &prev})
	delete(e.accepts, key)
	e.dirtyA[key] = struct{}{}
}

// CreateOffer reserves amountForSale into the seller's sell-reserved bucket
// and publishes the offer. A seller has at most one live offer per property.
func (e *Engine) CreateOffer(seller string, property uint32, amountForSale, amountDesired, paymentWindow, minAcceptFee, block int64) error {
	key := OfferKey{Seller: seller, Property: property}
	if _, exists := e.offers[key]; exists {
		return fmt.Errorf("%w: %s property %d", ErrOfferExists, seller, property)
	}
	if amountForSale <= 0 || amountDesired <= 0 || paymentWindow <= 0 {
		return fmt.Errorf("%w: offer %d for %d window %d", ledger.ErrAmountOutOfRange, amountForSale, amountDesired, paymentWindow)
	}
	if err := e.ledger.Move(seller, property, amountForSale, ledger.Available, ledger.SellReserved); err != nil {
		return err
	}
	e.setOffer(key, Offer{
		Seller:                seller,
		Property:              property,
		AmountForSale:         amountForSale,
		AmountDesired:         amountDesired,
		OriginalAmountForSale: amountForSale,
		PaymentWindowBlocks:   paymentWindow,
		MinAcceptFee:          minAcceptFee,
		Block:                 block,
	})
	return nil
}

// UpdateOffer replaces the unaccepted portion of an existing offer with new
// terms, re-reserving the delta. Open accepts are untouched: their CCH
// obligations were snapshotted from the original amounts at accept time.
func (e *Engine) UpdateOffer(seller string, property uint32, amountForSale, amountDesired, paymentWindow, minAcceptFee, block int64) error {
	key := OfferKey{Seller: seller, Property: property}
	offer, exists := e.offers[key]
	if !exists {
		return fmt.Errorf("%w: update by %s property %d", ErrNoOffer, seller, property)
	}
	if amountForSale <= 0 || amountDesired <= 0 || paymentWindow <= 0 {
		return fmt.Errorf("%w: offer %d for %d window %d", ledger.ErrAmountOutOfRange, amountForSale, amountDesired, paymentWindow)
	}
	delta := amountForSale - offer.AmountForSale
	if delta > 0 {
		if err := e.ledger.Move(seller, property, delta, ledger.Available, ledger.SellReserved); err != nil {
			return err
		}
	} else if delta < 0 {
		if err := e.ledger.Move(seller, property, -delta, ledger.SellReserved, ledger.Available); err != nil {
			return err
		}
	}
	e.setOffer(key, Offer{
		Seller:                seller,
		Property:              property,
		AmountForSale:         amountForSale,
		AmountDesired:         amountDesired,
		OriginalAmountForSale: amountForSale,
		PaymentWindowBlocks:   paymentWindow,
		MinAcceptFee:          minAcceptFee,
		Block:                 block,
	})
	return nil
}

// CancelOffer releases the unaccepted reservation back to available and
// removes the offer. Open accepts run to settlement or expiry on their
// snapshotted terms.
func (e *Engine) CancelOffer(seller string, property uint32) error {
	key := OfferKey{Seller: seller, Property: property}
	offer, exists := e.offers[key]
	if !exists {
		return fmt.Errorf("%w: cancel by %s property %d", ErrNoOffer, seller, property)
	}
	if offer.AmountForSale > 0 {
		if err := e.ledger.Move(seller, property, offer.AmountForSale, ledger.SellReserved, ledger.Available); err != nil {
			return err
		}
	}
	e.deleteOffer(key)
	return nil
}

// AcceptOffer reserves min(requested, remaining) of the offer for the buyer.
// A buyer holds at most one open accept per offer.
func (e *Engine) AcceptOffer(buyer, seller string, property uint32, requested, block int64) error {
	offerKey := OfferKey{Seller: seller, Property: property}
	offer, exists := e.offers[offerKey]
	if !exists {
		return fmt.Errorf("%w: accept of %s property %d", ErrNoOffer, seller, property)
	}
	acceptKey := AcceptKey{Seller: seller, Property: property, Buyer: buyer}
	if _, open := e.accepts[acceptKey]; open {
		return fmt.Errorf("%w: %s on %s property %d", ErrAcceptOverlap, buyer, seller, property)
	}
	if requested <= 0 {
		return fmt.Errorf("%w: accept %d", ledger.ErrAmountOutOfRange, requested)
	}
	amount := numeric.Min(requested, offer.AmountForSale)
	if amount == 0 {
		return fmt.Errorf("%w: %s property %d", ErrNothingToAccept, seller, property)
	}
	if err := e.ledger.Move(seller, property, amount, ledger.SellReserved, ledger.AcceptReserved); err != nil {
		return err
	}
	offer.AmountForSale -= amount
	e.setOffer(offerKey, offer)
	e.setAccept(acceptKey, Accept{
		Seller:                seller,
		Property:              property,
		Buyer:                 buyer,
		AmountReserved:        amount,
		OriginalAmountForSale: offer.OriginalAmountForSale,
		OriginalAmountDesired: offer.AmountDesired,
		AcceptBlock:           block,
		PaymentWindowBlocks:   offer.PaymentWindowBlocks,
	})
	return nil
}

// requiredPayment computes the CCH owed for releasing amount tokens under the
// accept's snapshotted ratio, rounding up so the seller is never underpaid.
func requiredPayment(a Accept, amount int64) int64 {
	return numeric.MulDivCeil(a.OriginalAmountDesired, amount, a.OriginalAmountForSale)
}

// ProcessPayment settles a verified CCH payment from buyer to seller against
// the open accept. Indivisible properties demand the exact amount for the
// full remaining reservation; divisible properties settle pro-rata as long as
// the payment covers the price of the tokens released. Overpayment is
// rejected outright.
func (e *Engine) ProcessPayment(buyer, seller string, property uint32, amountPaid int64, divisible bool) error {
	key := AcceptKey{Seller: seller, Property: property, Buyer: buyer}
	accept, exists := e.accepts[key]
	if !exists {
		return fmt.Errorf("%w: payment from %s to %s property %d", ErrNoAccept, buyer, seller, property)
	}
	if amountPaid <= 0 {
		return fmt.Errorf("%w: payment %d", ledger.ErrAmountOutOfRange, amountPaid)
	}
	fullPrice := requiredPayment(accept, accept.AmountReserved)
	if amountPaid > fullPrice {
		return fmt.Errorf("%w: paid %d, owed %d", ErrPaymentTooHigh, amountPaid, fullPrice)
	}

	var release int64
	if divisible {
		release = numeric.Min(accept.AmountReserved,
			numeric.MulDivFloor(amountPaid, accept.OriginalAmountForSale, accept.OriginalAmountDesired))
		if release <= 0 || requiredPayment(accept, release) > amountPaid {
			return fmt.Errorf("%w: paid %d releases nothing", ErrPaymentTooLow, amountPaid)
		}
	} else {
		if amountPaid != fullPrice {
			return fmt.Errorf("%w: paid %d, need exactly %d", ErrPaymentTooLow, amountPaid, fullPrice)
		}
		release = accept.AmountReserved
	}

	// The reservation guarantees the transfer; a failure here means the
	// accept bookkeeping diverged from the tallies.
	if err := e.ledger.Transfer(seller, buyer, property, release, ledger.AcceptReserved, ledger.Available); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrNegativeBalance, err)
	}
	accept.AmountReserved -= release
	if accept.AmountReserved == 0 {
		e.deleteAccept(key)
	} else {
		e.setAccept(key, accept)
	}
	return nil
}

// ExpireAccepts releases every accept whose payment window has lapsed at the
// given height. Tokens rejoin the offer's unaccepted remainder when the offer
// is still live, otherwise they return to the seller's available balance.
// Called once per block before intent processing.
func (e *Engine) ExpireAccepts(height int64) error {
	keys := e.sortedAcceptKeys()
	for _, key := range keys {
		accept := e.accepts[key]
		if height-accept.AcceptBlock <= accept.PaymentWindowBlocks {
			continue
		}
		offerKey := OfferKey{Seller: key.Seller, Property: key.Property}
		if offer, live := e.offers[offerKey]; live {
			if err := e.ledger.Move(key.Seller, key.Property, accept.AmountReserved, ledger.AcceptReserved, ledger.SellReserved); err != nil {
				return fmt.Errorf("%w: %v", ledger.ErrNegativeBalance, err)
			}
			offer.AmountForSale += accept.AmountReserved
			e.setOffer(offerKey, offer)
		} else {
			if err := e.ledger.Move(key.Seller, key.Property, accept.AmountReserved, ledger.AcceptReserved, ledger.Available); err != nil {
				return fmt.Errorf("%w: %v", ledger.ErrNegativeBalance, err)
			}
		}
		e.deleteAccept(key)
	}
	return nil
}

func (e *Engine) sortedAcceptKeys() []AcceptKey {
	keys := make([]AcceptKey, 0, len(e.accepts))
	for key := range e.accepts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Seller != b.Seller {
			return a.Seller < b.Seller
		}
		if a.Property != b.Property {
			return a.Property < b.Property
		}
		return a.Buyer < b.Buyer
	})
	return keys
}

// GetOffer returns the live offer for (seller, property).
func (e *Engine) GetOffer(seller string, property uint32) (Offer, bool) {
	offer, ok := e.offers[OfferKey{Seller: seller, Property: property}]
	return offer, ok
}

// GetAccept returns the open accept for (seller, property, buyer).
func (e *Engine) GetAccept(seller string, property uint32, buyer string) (Accept, bool) {
	accept, ok := e.accepts[AcceptKey{Seller: seller, Property: property, Buyer: buyer}]
	return accept, ok
}

// AcceptsForOffer lists the open accepts against an offer, sorted by buyer.
func (e *Engine) AcceptsForOffer(seller string, property uint32) []Accept {
	accepts := make([]Accept, 0)
	for key, accept := range e.accepts {
		if key.Seller == seller && key.Property == property {
			accepts = append(accepts, accept)
		}
	}
	sort.Slice(accepts, func(i, j int) bool { return accepts[i].Buyer < accepts[j].Buyer })
	return accepts
}

// RollbackTo reverts structural changes journalled at height >= target.
// Balance effects are reverted by the ledger's own journal.
func (e *Engine) RollbackTo(target int64) error {
	if len(e.journal) > 0 && e.journal[0].height > target {
		return fmt.Errorf("%w: oldest retained block %d, rollback to %d", ErrRollbackDepth, e.journal[0].height, target)
	}
	for len(e.journal) > 0 {
		j := e.journal[len(e.journal)-1]
		if j.height < target {
			break
		}
		for i := len(j.entries) - 1; i >= 0; i-- {
			u := j.entries[i]
			switch {
			case u.offerKey != nil && u.offerMade:
				delete(e.offers, *u.offerKey)
				e.dirty[*u.offerKey] = struct{}{}
			case u.offerKey != nil:
				e.offers[*u.offerKey] = *u.offerPrev
				e.dirty[*u.offerKey] = struct{}{}
			case u.acceptKey != nil && u.acceptMade:
				delete(e.accepts, *u.acceptKey)
				e.dirtyA[*u.acceptKey] = struct{}{}
			case u.acceptKey != nil:
				e.accepts[*u.acceptKey] = *u.acceptPrev
				e.dirtyA[*u.acceptKey] = struct{}{}
			}
		}
		e.journal = e.journal[:len(e.journal)-1]
	}
	return nil
}

// PruneJournal drops journals for blocks below keepFrom.
func (e *Engine) PruneJournal(keepFrom int64) {
	idx := 0
	for idx < len(e.journal) && e.journal[idx].height < keepFrom {
		idx++
	}
	if idx > 0 {
		e.journal = append([]dexJournal(nil), e.journal[idx:]...)
	}
}
