// Package metadex implements the distributed token exchange: a price-ordered
// order book per property pair with continuous matching on insertion. All
// price logic is exact integer arithmetic; the book's iteration order is part
// of the consensus contract.
package metadex

import (
	"fmt"
	"sort"

	"cchlayer/ledger"
	"cchlayer/numeric"
)

// feeDivisor yields the 0.05% protocol fee charged on the amount a liquidity
// taker receives.
const feeDivisor = 2000

// FeeSink receives protocol fees collected on completed fills. Implemented by
// the fee cache.
type FeeSink interface {
	AddFee(property uint32, block int64, amount int64)
}

type mdexUndo struct {
	inserted string // txid inserted into the book
	removed  *Order // full copy of a removed order
	amended  *Order // prior value of an order changed in place
}

type mdexJournal struct {
	height  int64
	entries []mdexUndo
}

// Engine holds every live order book. Balance effects go through the ledger;
// the engine journals only its structural changes.
type Engine struct {
	ledger  *ledger.Ledger
	fees    FeeSink
	books   map[Pair]*book
	byTx    map[string]*Order
	dirty   map[string]struct{}
	journal []mdexJournal
}

// NewEngine returns an empty MetaDEx engine. The fee sink may be nil, in
// which case fills charge no protocol fee.
func NewEngine(l *ledger.Ledger, fees FeeSink) *Engine {
	return &Engine{
		ledger: l,
		fees:   fees,
		books:  make(map[Pair]*book),
		byTx:   make(map[string]*Order),
		dirty:  make(map[string]struct{}),
	}
}

// BeginBlock opens a journal for the given height.
func (e *Engine) BeginBlock(height int64) {
	e.journal = append(e.journal, mdexJournal{height: height})
}

func (e *Engine) record(u mdexUndo) {
	if len(e.journal) == 0 {
		return
	}
	j := &e.journal[len(e.journal)-1]
	j.entries = append(j.entries, u)
}

func (e *Engine) bookFor(p Pair) *book {
	b, ok := e.books[p]
	if !ok {
		b = &book{}
		e.books[p] = b
	}
	return b
}

func (e *Engine) insertOrder(o *Order) {
	pair := Pair{PropertyForSale: o.PropertyForSale, PropertyDesired: o.PropertyDesired}
	e.bookFor(pair).insert(o)
	e.byTx[o.TxID] = o
	e.dirty[o.TxID] = struct{}{}
	e.record(mdexUndo{inserted: o.TxID})
}

func (e *Engine) removeOrder(o *Order) {
	pair := Pair{PropertyForSale: o.PropertyForSale, PropertyDesired: o.PropertyDesired}
	copyOf := *o
	e.bookFor(pair).remove(o.TxID)
	delete(e.byTx, o.TxID)
	e.dirty[o.TxID] = struct{}{}
	e.record(mdexUndo{removed: &copyOf})
}

func (e *Engine) amendOrder(o *Order, mutate func(*Order)) {
	prev := *o
	mutate(o)
	e.dirty[o.TxID] = struct{}{}
	e.record(mdexUndo{amended: &prev})
}

// Trade validates a new trade-offer intent, reserves the amount for sale,
// matches it against the opposite book in price priority, and rests any
// remainder at its own price level. Returns the amount filled immediately.
func (e *Engine) Trade(txid, seller string, propertyForSale uint32, amountForSale int64, propertyDesired uint32, amountDesired int64, block int64, position uint32) (int64, error) {
	if propertyForSale == propertyDesired {
		return 0, fmt.Errorf("%w: property %d", ErrSameProperty, propertyForSale)
	}
	if ledger.EcosystemOf(propertyForSale) != ledger.EcosystemOf(propertyDesired) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrEcosystemMismatch, propertyForSale, propertyDesired)
	}
	if amountForSale <= 0 || amountDesired <= 0 {
		return 0, fmt.Errorf("%w: trade %d for %d", ledger.ErrAmountOutOfRange, amountForSale, amountDesired)
	}
	if _, dup := e.byTx[txid]; dup {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateOrder, txid)
	}
	if err := e.ledger.Move(seller, propertyForSale, amountForSale, ledger.Available, ledger.MetaReserved); err != nil {
		return 0, err
	}

	order := &Order{
		TxID:            txid,
		Seller:          seller,
		PropertyForSale: propertyForSale,
		AmountForSale:   amountForSale,
		AmountRemaining: amountForSale,
		PropertyDesired: propertyDesired,
		AmountDesired:   amountDesired,
		Block:           block,
		Position:        position,
	}
	if err := e.match(order); err != nil {
		// Fills settle as they happen; an error mid-match means the
		// reservations were inconsistent, which the caller must treat as
		// fatal.
		return 0, fmt.Errorf("%w: %v", ledger.ErrNegativeBalance, err)
	}

	filled := amountForSale - order.AmountRemaining
	if order.AmountRemaining > 0 {
		order.AmountToFill = numeric.MulDivCeil(order.AmountDesired, order.AmountRemaining, order.AmountForSale)
		if order.AmountToFill > 0 {
			e.insertOrder(order)
			return filled, nil
		}
		// The remainder is priced below one base unit of the desired
		// property; nothing can ever fill it, so release the reservation.
		if err := e.ledger.Move(seller, propertyForSale, order.AmountRemaining, ledger.MetaReserved, ledger.Available); err != nil {
			return 0, fmt.Errorf("%w: %v", ledger.ErrNegativeBalance, err)
		}
	}
	return filled, nil
}

// crosses reports whether the resting order's price is at least as favorable
// as the taker is willing to accept: rest.desired/rest.forSale must not
// exceed taker.forSale/taker.desired. Cross-multiplied to stay exact.
func crosses(rest, taker *Order) bool {
	return numeric.MulCmp(rest.AmountDesired, taker.AmountDesired, rest.AmountForSale, taker.AmountForSale) <= 0
}

// match consumes the opposite book in strict price priority, FIFO within a
// price level. Each fill settles immediately through the ledger at the
// resting order's price.
func (e *Engine) match(taker *Order) error {
	pair := Pair{PropertyForSale: taker.PropertyForSale, PropertyDesired: taker.PropertyDesired}
	opposite, ok := e.books[pair.Opposite()]
	if !ok {
		return nil
	}
	i := 0
	for taker.AmountRemaining > 0 && i < len(opposite.orders) {
		rest := opposite.orders[i]
		if rest.Seller == taker.Seller {
			i++
			continue
		}
		if !crosses(rest, taker) {
			// The book is price ordered, so no later order crosses either.
			break
		}

		filledForSale := numeric.Min(taker.AmountRemaining, rest.AmountToFill)
		var filledDesired int64
		if filledForSale == rest.AmountToFill {
			filledDesired = rest.AmountRemaining
		} else {
			filledDesired = numeric.Min(rest.AmountRemaining,
				numeric.MulDivFloor(filledForSale, rest.AmountForSale, rest.AmountDesired))
		}
		if filledDesired <= 0 {
			i++
			continue
		}

		// Taker pays the resting seller in the property the rest desires.
		if err := e.ledger.Transfer(taker.Seller, rest.Seller, taker.PropertyForSale, filledForSale, ledger.MetaReserved, ledger.Available); err != nil {
			return err
		}
		// Resting seller pays the taker, net of the protocol fee, which
		// leaves the tallies and accumulates in the fee cache.
		fee := int64(0)
		if e.fees != nil {
			fee = filledDesired / feeDivisor
		}
		if fee > 0 {
			if err := e.ledger.Debit(rest.Seller, taker.PropertyDesired, fee, ledger.MetaReserved); err != nil {
				return err
			}
			e.fees.AddFee(taker.PropertyDesired, taker.Block, fee)
		}
		if err := e.ledger.Transfer(rest.Seller, taker.Seller, taker.PropertyDesired, filledDesired-fee, ledger.MetaReserved, ledger.Available); err != nil {
			return err
		}

		taker.AmountRemaining -= filledForSale
		remaining := rest.AmountRemaining - filledDesired
		toFill := rest.AmountToFill - filledForSale
		if remaining == 0 || toFill == 0 {
			e.removeOrder(rest)
			if remaining > 0 {
				// Fully paid but rounding left dust reserved; refund it.
				if err := e.ledger.Move(rest.Seller, rest.PropertyForSale, remaining, ledger.MetaReserved, ledger.Available); err != nil {
					return err
				}
			}
			// Removal shifted the slice; the same index is the next order.
		} else {
			e.amendOrder(rest, func(o *Order) {
				o.AmountRemaining = remaining
				o.AmountToFill = toFill
			})
			i++
		}
	}
	return nil
}

// CancelAtPrice removes every resting order of the sender in the pair whose
// unit price matches amountDesired/amountForSale, releasing the reservations.
// A no-op when nothing matches.
func (e *Engine) CancelAtPrice(seller string, propertyForSale, propertyDesired uint32, amountForSale, amountDesired int64) (int, error) {
	if amountForSale <= 0 || amountDesired <= 0 {
		return 0, fmt.Errorf("%w: cancel price %d for %d", ledger.ErrAmountOutOfRange, amountForSale, amountDesired)
	}
	return e.cancelWhere(func(o *Order) bool {
		return o.Seller == seller &&
			o.PropertyForSale == propertyForSale &&
			o.PropertyDesired == propertyDesired &&
			o.samePrice(amountDesired, amountForSale)
	})
}

// CancelPair removes every resting order of the sender in the pair regardless
// of price.
func (e *Engine) CancelPair(seller string, propertyForSale, propertyDesired uint32) (int, error) {
	return e.cancelWhere(func(o *Order) bool {
		return o.Seller == seller &&
			o.PropertyForSale == propertyForSale &&
			o.PropertyDesired == propertyDesired
	})
}

// CancelEcosystem removes every resting order the sender holds in the
// ecosystem.
func (e *Engine) CancelEcosystem(seller string, eco ledger.Ecosystem) (int, error) {
	return e.cancelWhere(func(o *Order) bool {
		return o.Seller == seller && ledger.EcosystemOf(o.PropertyForSale) == eco
	})
}

func (e *Engine) cancelWhere(match func(*Order) bool) (int, error) {
	doomed := make([]*Order, 0)
	for _, pair := range e.sortedPairs() {
		for _, o := range e.books[pair].orders {
			if match(o) {
				doomed = append(doomed, o)
			}
		}
	}
	for _, o := range doomed {
		if err := e.ledger.Move(o.Seller, o.PropertyForSale, o.AmountRemaining, ledger.MetaReserved, ledger.Available); err != nil {
			return 0, fmt.Errorf("%w: %v", ledger.ErrNegativeBalance, err)
		}
		e.removeOrder(o)
	}
	return len(doomed), nil
}

func (e *Engine) sortedPairs() []Pair {
	pairs := make([]Pair, 0, len(e.books))
	for pair, b := range e.books {
		if !b.empty() {
			pairs = append(pairs, pair)
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].PropertyForSale != pairs[j].PropertyForSale {
			return pairs[i].PropertyForSale < pairs[j].PropertyForSale
		}
		return pairs[i].PropertyDesired < pairs[j].PropertyDesired
	})
	return pairs
}

// Orders returns copies of the resting orders for the pair in match order.
func (e *Engine) Orders(pair Pair) []Order {
	b, ok := e.books[pair]
	if !ok {
		return nil
	}
	orders := make([]Order, len(b.orders))
	for i, o := range b.orders {
		orders[i] = *o
	}
	return orders
}

// ListBook returns every live order selling propertyForSale, optionally
// restricted to one desired property (pass nil for all), grouped by pair in
// canonical order and in match order within each pair.
func (e *Engine) ListBook(propertyForSale uint32, propertyDesired *uint32) []Order {
	orders := make([]Order, 0)
	for _, pair := range e.sortedPairs() {
		if pair.PropertyForSale != propertyForSale {
			continue
		}
		if propertyDesired != nil && pair.PropertyDesired != *propertyDesired {
			continue
		}
		for _, o := range e.books[pair].orders {
			orders = append(orders, *o)
		}
	}
	return orders
}

// ForEach visits every live order: pairs in canonical (forSale, desired)
// order, match order within a pair. The MetaDEx consensus hash is defined
// over this iteration, optionally filtered by property for sale (0 for all).
func (e *Engine) ForEach(propertyFilter uint32, fn func(o Order) error) error {
	for _, pair := range e.sortedPairs() {
		if propertyFilter != 0 && pair.PropertyForSale != propertyFilter {
			continue
		}
		for _, o := range e.books[pair].orders {
			if err := fn(*o); err != nil {
				return err
			}
		}
	}
	return nil
}

// RollbackTo reverts structural changes journalled at height >= target.
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
			case u.inserted != "":
				if o, live := e.byTx[u.inserted]; live {
					pair := Pair{PropertyForSale: o.PropertyForSale, PropertyDesired: o.PropertyDesired}
					e.bookFor(pair).remove(o.TxID)
					delete(e.byTx, o.TxID)
					e.dirty[o.TxID] = struct{}{}
				}
			case u.removed != nil:
				restored := *u.removed
				pair := Pair{PropertyForSale: restored.PropertyForSale, PropertyDesired: restored.PropertyDesired}
				e.bookFor(pair).insert(&restored)
				e.byTx[restored.TxID] = &restored
				e.dirty[restored.TxID] = struct{}{}
			case u.amended != nil:
				if o, live := e.byTx[u.amended.TxID]; live {
					*o = *u.amended
					e.dirty[o.TxID] = struct{}{}
				}
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
		e.journal = append([]mdexJournal(nil), e.journal[idx:]...)
	}
}
