package fees

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"cchlayer/storage"
)

var (
	cachePrefix   = []byte("fee/cache/")
	historyPrefix = []byte("fee/hist/")
)

func cacheStoreKey(property uint32) []byte {
	buf := make([]byte, 0, len(cachePrefix)+4)
	buf = append(buf, cachePrefix...)
	return binary.BigEndian.AppendUint32(buf, property)
}

func historyStoreKey(id uint32) []byte {
	buf := make([]byte, 0, len(historyPrefix)+4)
	buf = append(buf, historyPrefix...)
	return binary.BigEndian.AppendUint32(buf, id)
}

type storedCacheEntry struct {
	Block  uint64
	Amount uint64
}

type storedRecipient struct {
	Address string
	Amount  uint64
}

type storedDistribution struct {
	ID         uint32
	Property   uint32
	Block      uint64
	Total      uint64
	Recipients []storedRecipient
}

// Load replaces the in-memory cache and history with the persisted state.
func (e *Engine) Load(db storage.Database) error {
	e.cache = make(map[uint32][]CacheEntry)
	e.history = make(map[uint32]DistributionRecord)
	e.dirty = make(map[uint32]struct{})
	e.dirtyH = make(map[uint32]struct{})
	e.nextID = 1

	it := db.NewIterator(cachePrefix)
	for it.Next() {
		key := it.Key()
		if len(key) < len(cachePrefix)+4 {
			it.Release()
			return fmt.Errorf("malformed fee cache key %q", key)
		}
		property := binary.BigEndian.Uint32(key[len(key)-4:])
		var stored []storedCacheEntry
		if err := rlp.DecodeBytes(it.Value(), &stored); err != nil {
			it.Release()
			return fmt.Errorf("decode fee cache %d: %w", property, err)
		}
		entries := make([]CacheEntry, len(stored))
		for i, s := range stored {
			entries[i] = CacheEntry{Property: property, Block: int64(s.Block), Amount: int64(s.Amount)}
		}
		e.cache[property] = entries
	}
	it.Release()

	it = db.NewIterator(historyPrefix)
	defer it.Release()
	for it.Next() {
		var stored storedDistribution
		if err := rlp.DecodeBytes(it.Value(), &stored); err != nil {
			return fmt.Errorf("decode fee distribution %q: %w", it.Key(), err)
		}
		record := DistributionRecord{
			ID:       stored.ID,
			Property: stored.Property,
			Block:    int64(stored.Block),
			Total:    int64(stored.Total),
		}
		for _, r := range stored.Recipients {
			record.Recipients = append(record.Recipients, Recipient{Address: r.Address, Amount: int64(r.Amount)})
		}
		e.history[record.ID] = record
		if record.ID >= e.nextID {
			e.nextID = record.ID + 1
		}
	}
	return nil
}

// Flush appends dirty cache entries and distribution records to the batch.
func (e *Engine) Flush(batch *storage.Batch) error {
	for property := range e.dirty {
		entries, live := e.cache[property]
		if !live || len(entries) == 0 {
			batch.Delete(cacheStoreKey(property))
			continue
		}
		stored := make([]storedCacheEntry, len(entries))
		for i, entry := range entries {
			stored[i] = storedCacheEntry{Block: uint64(entry.Block), Amount: uint64(entry.Amount)}
		}
		encoded, err := rlp.EncodeToBytes(stored)
		if err != nil {
			return err
		}
		batch.Put(cacheStoreKey(property), encoded)
	}
	e.dirty = make(map[uint32]struct{})

	for id := range e.dirtyH {
		record, live := e.history[id]
		if !live {
			batch.Delete(historyStoreKey(id))
			continue
		}
		stored := storedDistribution{
			ID:       record.ID,
			Property: record.Property,
			Block:    uint64(record.Block),
			Total:    uint64(record.Total),
		}
		for _, r := range record.Recipients {
			stored.Recipients = append(stored.Recipients, storedRecipient{Address: r.Address, Amount: uint64(r.Amount)})
		}
		encoded, err := rlp.EncodeToBytes(stored)
		if err != nil {
			return err
		}
		batch.Put(historyStoreKey(id), encoded)
	}
	e.dirtyH = make(map[uint32]struct{})
	return nil
}
