package metadex

import (
	"sort"

	"cchlayer/numeric"
)

// Pair identifies one side of a market: orders selling PropertyForSale in
// exchange for PropertyDesired. The opposite side of the same market is the
// swapped pair.
type Pair struct {
	PropertyForSale uint32
	PropertyDesired uint32
}

// Opposite returns the pair for the other side of the market.
func (p Pair) Opposite() Pair {
	return Pair{PropertyForSale: p.PropertyDesired, PropertyDesired: p.PropertyForSale}
}

// Order is one resting trade offer. The unit price AmountDesired/AmountForSale
// is held as the original integer pair and never reduced, so price comparison
// stays exact under partial fills.
type Order struct {
	TxID            string
	Seller          string
	PropertyForSale uint32
	AmountForSale   int64
	AmountRemaining int64
	PropertyDesired uint32
	AmountDesired   int64
	AmountToFill    int64
	Block           int64
	Position        uint32
}

// before reports whether o sorts ahead of other in the book: cheaper unit
// price first, then FIFO by (block, position). This ordering is a documented
// contract; the consensus hash over the book depends on it.
func (o *Order) before(other *Order) bool {
	cmp := numeric.CmpRatios(o.AmountDesired, o.AmountForSale, other.AmountDesired, other.AmountForSale)
	if cmp != 0 {
		return cmp < 0
	}
	if o.Block != other.Block {
		return o.Block < other.Block
	}
	return o.Position < other.Position
}

// samePrice reports whether o's unit price equals desired/forSale.
func (o *Order) samePrice(amountDesired, amountForSale int64) bool {
	return numeric.CmpRatios(o.AmountDesired, o.AmountForSale, amountDesired, amountForSale) == 0
}

// book holds the resting orders of one pair in match order.
type book struct {
	orders []*Order
}

func (b *book) insert(o *Order) {
	idx := sort.Search(len(b.orders), func(i int) bool { return o.before(b.orders[i]) })
	b.orders = append(b.orders, nil)
	copy(b.orders[idx+1:], b.orders[idx:])
	b.orders[idx] = o
}

func (b *book) remove(txid string) *Order {
	for i, o := range b.orders {
		if o.TxID == txid {
			b.orders = append(b.orders[:i], b.orders[i+1:]...)
			return o
		}
	}
	return nil
}

func (b *book) empty() bool { return len(b.orders) == 0 }
