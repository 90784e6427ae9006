package dex

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"cchlayer/storage"
)

var (
	offerPrefix  = []byte("dex/offer/")
	acceptPrefix = []byte("dex/accept/")
)

func offerStoreKey(key OfferKey) []byte {
	buf := make([]byte, 0, len(offerPrefix)+len(key.Seller)+5)
	buf = append(buf, offerPrefix...)
	buf = append(buf, key.Seller...)
	buf = append(buf, '/')
	return binary.BigEndian.AppendUint32(buf, key.Property)
}

func acceptStoreKey(key AcceptKey) []byte {
	buf := make([]byte, 0, len(acceptPrefix)+len(key.Seller)+len(key.Buyer)+6)
	buf = append(buf, acceptPrefix...)
	buf = append(buf, key.Seller...)
	buf = append(buf, '/')
	buf = binary.BigEndian.AppendUint32(buf, key.Property)
	buf = append(buf, '/')
	return append(buf, key.Buyer...)
}

type storedOffer struct {
	Seller                string
	Property              uint32
	AmountForSale         uint64
	AmountDesired         uint64
	OriginalAmountForSale uint64
	PaymentWindowBlocks   uint64
	MinAcceptFee          uint64
	Block                 uint64
}

type storedAccept struct {
	Seller                string
	Property              uint32
	Buyer                 string
	AmountReserved        uint64
	OriginalAmountForSale uint64
	OriginalAmountDesired uint64
	AcceptBlock           uint64
	PaymentWindowBlocks   uint64
}

// Load replaces the in-memory offers and accepts with the persisted state.
func (e *Engine) Load(db storage.Database) error {
	e.offers = make(map[OfferKey]Offer)
	e.accepts = make(map[AcceptKey]Accept)
	e.dirty = make(map[OfferKey]struct{})
	e.dirtyA = make(map[AcceptKey]struct{})

	it := db.NewIterator(offerPrefix)
	for it.Next() {
		var stored storedOffer
		if err := rlp.DecodeBytes(it.Value(), &stored); err != nil {
			it.Release()
			return fmt.Errorf("decode offer %q: %w", it.Key(), err)
		}
		key := OfferKey{Seller: stored.Seller, Property: stored.Property}
		e.offers[key] = Offer{
			Seller:                stored.Seller,
			Property:              stored.Property,
			AmountForSale:         int64(stored.AmountForSale),
			AmountDesired:         int64(stored.AmountDesired),
			OriginalAmountForSale: int64(stored.OriginalAmountForSale),
			PaymentWindowBlocks:   int64(stored.PaymentWindowBlocks),
			MinAcceptFee:          int64(stored.MinAcceptFee),
			Block:                 int64(stored.Block),
		}
	}
	it.Release()

	it = db.NewIterator(acceptPrefix)
	defer it.Release()
	for it.Next() {
		var stored storedAccept
		if err := rlp.DecodeBytes(it.Value(), &stored); err != nil {
			return fmt.Errorf("decode accept %q: %w", it.Key(), err)
		}
		key := AcceptKey{Seller: stored.Seller, Property: stored.Property, Buyer: stored.Buyer}
		e.accepts[key] = Accept{
			Seller:                stored.Seller,
			Property:              stored.Property,
			Buyer:                 stored.Buyer,
			AmountReserved:        int64(stored.AmountReserved),
			OriginalAmountForSale: int64(stored.OriginalAmountForSale),
			OriginalAmountDesired: int64(stored.OriginalAmountDesired),
			AcceptBlock:           int64(stored.AcceptBlock),
			PaymentWindowBlocks:   int64(stored.PaymentWindowBlocks),
		}
	}
	return nil
}

// Flush appends dirty offers and accepts to the batch and clears the dirty
// sets.
func (e *Engine) Flush(batch *storage.Batch) error {
	for key := range e.dirty {
		offer, ok := e.offers[key]
		if !ok {
			batch.Delete(offerStoreKey(key))
			continue
		}
		encoded, err := rlp.EncodeToBytes(storedOffer{
			Seller:                offer.Seller,
			Property:              offer.Property,
			AmountForSale:         uint64(offer.AmountForSale),
			AmountDesired:         uint64(offer.AmountDesired),
			OriginalAmountForSale: uint64(offer.OriginalAmountForSale),
			PaymentWindowBlocks:   uint64(offer.PaymentWindowBlocks),
			MinAcceptFee:          uint64(offer.MinAcceptFee),
			Block:                 uint64(offer.Block),
		})
		if err != nil {
			return err
		}
		batch.Put(offerStoreKey(key), encoded)
	}
	e.dirty = make(map[OfferKey]struct{})

	for key := range e.dirtyA {
		accept, ok := e.accepts[key]
		if !ok {
			batch.Delete(acceptStoreKey(key))
			continue
		}
		encoded, err := rlp.EncodeToBytes(storedAccept{
			Seller:                accept.Seller,
			Property:              accept.Property,
			Buyer:                 accept.Buyer,
			AmountReserved:        uint64(accept.AmountReserved),
			OriginalAmountForSale: uint64(accept.OriginalAmountForSale),
			OriginalAmountDesired: uint64(accept.OriginalAmountDesired),
			AcceptBlock:           uint64(accept.AcceptBlock),
			PaymentWindowBlocks:   uint64(accept.PaymentWindowBlocks),
		})
		if err != nil {
			return err
		}
		batch.Put(acceptStoreKey(key), encoded)
	}
	e.dirtyA = make(map[AcceptKey]struct{})
	return nil
}
