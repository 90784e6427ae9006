package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"cchlayer/storage"
)

var (
	tallyPrefix    = []byte("tally/")
	propMetaPrefix = []byte("prop/meta/")
	propNextKey    = []byte("prop/next")
)

func tallyKey(address string, property uint32) []byte {
	buf := make([]byte, 0, len(tallyPrefix)+len(address)+5)
	buf = append(buf, tallyPrefix...)
	buf = append(buf, address...)
	buf = append(buf, '/')
	return binary.BigEndian.AppendUint32(buf, property)
}

func propMetaKey(id uint32) []byte {
	buf := make([]byte, 0, len(propMetaPrefix)+4)
	buf = append(buf, propMetaPrefix...)
	return binary.BigEndian.AppendUint32(buf, id)
}

type storedTally struct {
	Available      uint64
	SellReserved   uint64
	AcceptReserved uint64
	MetaReserved   uint64
	Frozen         uint64
}

type storedProperty struct {
	ID                uint32
	Name              string
	URL               string
	Data              string
	Divisible         bool
	Issuer            string
	Delegate          string
	Managed           bool
	FreezingEnabled   bool
	TotalTokens       uint64
	CrowdsaleActive   bool
	CrowdsaleDesired  uint32
	CrowdsaleRate     uint64
	CrowdsaleDeadline uint64
}

type storedPropertyCursor struct {
	NextMain uint32
	NextTest uint32
}

// Load replaces the in-memory tallies with the persisted state.
func (l *Ledger) Load(db storage.Database) error {
	l.tallies = make(map[AccountKey]Tally)
	l.dirty = make(map[AccountKey]struct{})
	it := db.NewIterator(tallyPrefix)
	defer it.Release()
	for it.Next() {
		key := it.Key()
		rest := key[len(tallyPrefix):]
		if len(rest) < 5 {
			return fmt.Errorf("malformed tally key %q", key)
		}
		address := string(rest[:len(rest)-5])
		property := binary.BigEndian.Uint32(rest[len(rest)-4:])
		var stored storedTally
		if err := rlp.DecodeBytes(it.Value(), &stored); err != nil {
			return fmt.Errorf("decode tally %s/%d: %w", address, property, err)
		}
		l.tallies[AccountKey{Address: address, Property: property}] = Tally{
			Available:      int64(stored.Available),
			SellReserved:   int64(stored.SellReserved),
			AcceptReserved: int64(stored.AcceptReserved),
			MetaReserved:   int64(stored.MetaReserved),
			Frozen:         int64(stored.Frozen),
		}
	}
	return nil
}

// Flush appends every dirty tally to the batch and clears the dirty set.
// Zero tallies are deleted rather than written.
func (l *Ledger) Flush(batch *storage.Batch) error {
	for key := range l.dirty {
		t, ok := l.tallies[key]
		if !ok || t.IsZero() {
			batch.Delete(tallyKey(key.Address, key.Property))
			continue
		}
		encoded, err := rlp.EncodeToBytes(storedTally{
			Available:      uint64(t.Available),
			SellReserved:   uint64(t.SellReserved),
			AcceptReserved: uint64(t.AcceptReserved),
			MetaReserved:   uint64(t.MetaReserved),
			Frozen:         uint64(t.Frozen),
		})
		if err != nil {
			return err
		}
		batch.Put(tallyKey(key.Address, key.Property), encoded)
	}
	l.dirty = make(map[AccountKey]struct{})
	return nil
}

// Load replaces the in-memory registry with the persisted state.
func (p *Properties) Load(db storage.Database) error {
	p.byID = make(map[uint32]PropertyMetadata)
	p.dirty = make(map[uint32]struct{})
	p.nextMain = 1
	p.nextTest = TestEcosystemFirstProperty
	it := db.NewIterator(propMetaPrefix)
	defer it.Release()
	for it.Next() {
		var stored storedProperty
		if err := rlp.DecodeBytes(it.Value(), &stored); err != nil {
			return fmt.Errorf("decode property %q: %w", it.Key(), err)
		}
		p.byID[stored.ID] = PropertyMetadata{
			ID:                stored.ID,
			Name:              stored.Name,
			URL:               stored.URL,
			Data:              stored.Data,
			Divisible:         stored.Divisible,
			Issuer:            stored.Issuer,
			Delegate:          stored.Delegate,
			Managed:           stored.Managed,
			FreezingEnabled:   stored.FreezingEnabled,
			TotalTokens:       int64(stored.TotalTokens),
			CrowdsaleActive:   stored.CrowdsaleActive,
			CrowdsaleDesired:  stored.CrowdsaleDesired,
			CrowdsaleRate:     int64(stored.CrowdsaleRate),
			CrowdsaleDeadline: int64(stored.CrowdsaleDeadline),
		}
	}
	data, err := db.Get(propNextKey)
	if err == nil && len(data) > 0 {
		var cursor storedPropertyCursor
		if err := rlp.DecodeBytes(data, &cursor); err != nil {
			return fmt.Errorf("decode property cursor: %w", err)
		}
		p.nextMain = cursor.NextMain
		p.nextTest = cursor.NextTest
	}
	return nil
}

// Flush appends dirty metadata records and the id cursor to the batch.
func (p *Properties) Flush(batch *storage.Batch) error {
	for id := range p.dirty {
		meta, ok := p.byID[id]
		if !ok {
			batch.Delete(propMetaKey(id))
			continue
		}
		encoded, err := rlp.EncodeToBytes(storedProperty{
			ID:                meta.ID,
			Name:              meta.Name,
			URL:               meta.URL,
			Data:              meta.Data,
			Divisible:         meta.Divisible,
			Issuer:            meta.Issuer,
			Delegate:          meta.Delegate,
			Managed:           meta.Managed,
			FreezingEnabled:   meta.FreezingEnabled,
			TotalTokens:       uint64(meta.TotalTokens),
			CrowdsaleActive:   meta.CrowdsaleActive,
			CrowdsaleDesired:  meta.CrowdsaleDesired,
			CrowdsaleRate:     uint64(meta.CrowdsaleRate),
			CrowdsaleDeadline: uint64(meta.CrowdsaleDeadline),
		})
		if err != nil {
			return err
		}
		batch.Put(propMetaKey(id), encoded)
	}
	p.dirty = make(map[uint32]struct{})
	encoded, err := rlp.EncodeToBytes(storedPropertyCursor{NextMain: p.nextMain, NextTest: p.nextTest})
	if err != nil {
		return err
	}
	batch.Put(propNextKey, encoded)
	return nil
}
