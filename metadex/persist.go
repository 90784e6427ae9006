package metadex

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"cchlayer/storage"
)

var orderPrefix = []byte("mdex/order/")

func orderStoreKey(txid string) []byte {
	buf := make([]byte, 0, len(orderPrefix)+len(txid))
	buf = append(buf, orderPrefix...)
	return append(buf, txid...)
}

type storedOrder struct {
	TxID            string
	Seller          string
	PropertyForSale uint32
	AmountForSale   uint64
	AmountRemaining uint64
	PropertyDesired uint32
	AmountDesired   uint64
	AmountToFill    uint64
	Block           uint64
	Position        uint32
}

// Load replaces the in-memory books with the persisted orders. Books are
// rebuilt by sorted insertion, so the match order is restored exactly.
func (e *Engine) Load(db storage.Database) error {
	e.books = make(map[Pair]*book)
	e.byTx = make(map[string]*Order)
	e.dirty = make(map[string]struct{})
	it := db.NewIterator(orderPrefix)
	defer it.Release()
	for it.Next() {
		var stored storedOrder
		if err := rlp.DecodeBytes(it.Value(), &stored); err != nil {
			return fmt.Errorf("decode order %q: %w", it.Key(), err)
		}
		order := &Order{
			TxID:            stored.TxID,
			Seller:          stored.Seller,
			PropertyForSale: stored.PropertyForSale,
			AmountForSale:   int64(stored.AmountForSale),
			AmountRemaining: int64(stored.AmountRemaining),
			PropertyDesired: stored.PropertyDesired,
			AmountDesired:   int64(stored.AmountDesired),
			AmountToFill:    int64(stored.AmountToFill),
			Block:           int64(stored.Block),
			Position:        stored.Position,
		}
		pair := Pair{PropertyForSale: order.PropertyForSale, PropertyDesired: order.PropertyDesired}
		e.bookFor(pair).insert(order)
		e.byTx[order.TxID] = order
	}
	return nil
}

// Flush appends dirty orders to the batch and clears the dirty set.
func (e *Engine) Flush(batch *storage.Batch) error {
	for txid := range e.dirty {
		order, live := e.byTx[txid]
		if !live {
			batch.Delete(orderStoreKey(txid))
			continue
		}
		encoded, err := rlp.EncodeToBytes(storedOrder{
			TxID:            order.TxID,
			Seller:          order.Seller,
			PropertyForSale: order.PropertyForSale,
			AmountForSale:   uint64(order.AmountForSale),
			AmountRemaining: uint64(order.AmountRemaining),
			PropertyDesired: order.PropertyDesired,
			AmountDesired:   uint64(order.AmountDesired),
			AmountToFill:    uint64(order.AmountToFill),
			Block:           uint64(order.Block),
			Position:        order.Position,
		})
		if err != nil {
			return err
		}
		batch.Put(orderStoreKey(txid), encoded)
	}
	e.dirty = make(map[string]struct{})
	return nil
}
