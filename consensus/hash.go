// Package consensus derives the state digests independent nodes compare to
// detect divergence. Both hashes are pure functions of live state, recomputed
// on every call; nothing here is cached.
package consensus

import (
	"crypto/sha256"
	"encoding/binary"
	"hash"

	"cchlayer/ledger"
	"cchlayer/metadex"
)

func writeString(h hash.Hash, s string) {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	h.Write(lenBuf[:])
	h.Write([]byte(s))
}

func writeUint32(h hash.Hash, v uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	h.Write(buf[:])
}

func writeUint64(h hash.Hash, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}

// HashBalances digests every non-zero account as a fixed-width record of
// (address, property, available, reserved, frozen), in the ledger's canonical
// order. Two nodes that processed the same intent sequence produce
// bit-identical digests.
func HashBalances(l *ledger.Ledger) [32]byte {
	h := sha256.New()
	l.ForEach(func(key ledger.AccountKey, t ledger.Tally) error {
		writeString(h, key.Address)
		writeUint32(h, key.Property)
		writeUint64(h, uint64(t.Available))
		writeUint64(h, uint64(t.Reserved()))
		writeUint64(h, uint64(t.Frozen))
		return nil
	})
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

// HashMetaDEx digests the live order book in its documented iteration order,
// optionally restricted to one property for sale (0 for all).
func HashMetaDEx(e *metadex.Engine, propertyFilter uint32) [32]byte {
	h := sha256.New()
	e.ForEach(propertyFilter, func(o metadex.Order) error {
		writeString(h, o.TxID)
		writeString(h, o.Seller)
		writeUint32(h, o.PropertyForSale)
		writeUint64(h, uint64(o.AmountForSale))
		writeUint64(h, uint64(o.AmountRemaining))
		writeUint32(h, o.PropertyDesired)
		writeUint64(h, uint64(o.AmountDesired))
		writeUint64(h, uint64(o.AmountToFill))
		writeUint64(h, uint64(o.Block))
		writeUint32(h, o.Position)
		return nil
	})
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest
}
