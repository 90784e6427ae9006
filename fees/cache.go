// Package fees implements the protocol fee economy: a rolling per-property
// cache of fees collected on MetaDEx fills, threshold-triggered pro-rata
// distribution to holders, and an immutable distribution history.
package fees

import (
	stderrors "errors"
	"fmt"
	"sort"

	"cchlayer/ledger"
	"cchlayer/numeric"
)

// ThresholdDivisor sets the distribution trigger: the cache for a property
// pays out once it reaches totalTokens/ThresholdDivisor.
const ThresholdDivisor = 100000

// PruneWindow is the age in blocks past which undistributed cache entries are
// forfeited. Deliberate economic design: stale fees are burned, not banked.
const PruneWindow = 50

var ErrRollbackDepth = stderrors.New("fees: rollback beyond retained journal")

// CacheEntry is one block's accumulated fee for a property.
type CacheEntry struct {
	Property uint32
	Block    int64
	Amount   int64
}

// Recipient is one holder's share of a distribution.
type Recipient struct {
	Address string
	Amount  int64
}

// DistributionRecord captures a completed distribution. Immutable once
// written except for full rollback.
type DistributionRecord struct {
	ID         uint32
	Property   uint32
	Block      int64
	Total      int64
	Recipients []Recipient
}

type feeUndo struct {
	added       *CacheEntry  // increment to reverse
	restored    []CacheEntry // entries to put back (prune or clear)
	distributed uint32       // distribution id to delete, 0 if none
}

type feeJournal struct {
	height  int64
	entries []feeUndo
}

// Engine owns the fee cache and distribution history.
type Engine struct {
	ledger  *ledger.Ledger
	props   *ledger.Properties
	cache   map[uint32][]CacheEntry // per property, ascending block
	history map[uint32]DistributionRecord
	nextID  uint32
	dirty   map[uint32]struct{} // properties with changed cache
	dirtyH  map[uint32]struct{} // distribution ids written or deleted
	journal []feeJournal
}

// NewEngine returns an empty fee engine bound to the ledger and property
// registry.
func NewEngine(l *ledger.Ledger, props *ledger.Properties) *Engine {
	return &Engine{
		ledger:  l,
		props:   props,
		cache:   make(map[uint32][]CacheEntry),
		history: make(map[uint32]DistributionRecord),
		nextID:  1,
		dirty:   make(map[uint32]struct{}),
		dirtyH:  make(map[uint32]struct{}),
	}
}

// BeginBlock opens a journal for the given height.
func (e *Engine) BeginBlock(height int64) {
	e.journal = append(e.journal, feeJournal{height: height})
}

func (e *Engine) record(u feeUndo) {
	if len(e.journal) == 0 {
		return
	}
	j := &e.journal[len(e.journal)-1]
	j.entries = append(j.entries, u)
}

// AddFee appends a fee increment for the property at the given block. Fees
// collected within one block merge into a single cache entry.
func (e *Engine) AddFee(property uint32, block int64, amount int64) {
	if amount <= 0 {
		return
	}
	entries := e.cache[property]
	if n := len(entries); n > 0 && entries[n-1].Block == block {
		entries[n-1].Amount += amount
	} else {
		entries = append(entries, CacheEntry{Property: property, Block: block, Amount: amount})
	}
	e.cache[property] = entries
	e.dirty[property] = struct{}{}
	e.record(feeUndo{added: &CacheEntry{Property: property, Block: block, Amount: amount}})
}

// CachedAmount sums the live cache entries for the property.
func (e *Engine) CachedAmount(property uint32) int64 {
	var total int64
	for _, entry := range e.cache[property] {
		total += entry.Amount
	}
	return total
}

// CacheHistory returns the live cache entries for the property in block
// order.
func (e *Engine) CacheHistory(property uint32) []CacheEntry {
	return append([]CacheEntry(nil), e.cache[property]...)
}

// Threshold returns the cache level at which a distribution triggers for the
// property. Never below one base unit, so dust-supply properties still pay
// out.
func (e *Engine) Threshold(property uint32) (int64, error) {
	meta, err := e.props.Get(property)
	if err != nil {
		return 0, err
	}
	threshold := meta.TotalTokens / ThresholdDivisor
	if threshold < 1 {
		threshold = 1
	}
	return threshold, nil
}

// EvalBlock runs after every processed block: prunes stale cache entries and
// distributes every cache that reached its threshold. Properties are visited
// in ascending id order for determinism.
//
// Pruning runs first. An entry that has sat unconsumed for the full window is
// forfeited even when the block's pre-prune total would have crossed the
// threshold; only fees young enough to survive the window count toward a
// distribution.
func (e *Engine) EvalBlock(height int64) error {
	props := make([]uint32, 0, len(e.cache))
	for property := range e.cache {
		props = append(props, property)
	}
	sort.Slice(props, func(i, j int) bool { return props[i] < props[j] })
	for _, property := range props {
		e.prune(property, height)
		if len(e.cache[property]) == 0 {
			continue
		}
		threshold, err := e.Threshold(property)
		if err != nil {
			return err
		}
		if e.CachedAmount(property) >= threshold {
			if err := e.distribute(property, height); err != nil {
				return err
			}
		}
	}
	return nil
}

// prune forfeits entries older than PruneWindow blocks relative to height.
func (e *Engine) prune(property uint32, height int64) {
	entries := e.cache[property]
	idx := 0
	for idx < len(entries) && entries[idx].Block < height-PruneWindow {
		idx++
	}
	if idx == 0 {
		return
	}
	pruned := append([]CacheEntry(nil), entries[:idx]...)
	e.cache[property] = append([]CacheEntry(nil), entries[idx:]...)
	e.dirty[property] = struct{}{}
	e.record(feeUndo{restored: pruned})
}

// SplitProRata divides total among the holders in proportion to their weight.
// Rounding residue is assigned one unit at a time in address order so the
// whole amount is always allocated. holders must be non-empty.
func SplitProRata(total int64, holders []ledger.Holder) []Recipient {
	var totalWeight int64
	for _, h := range holders {
		totalWeight += h.Weight
	}
	recipients := make([]Recipient, 0, len(holders))
	var paid int64
	for _, h := range holders {
		share := numeric.MulDivFloor(total, h.Weight, totalWeight)
		recipients = append(recipients, Recipient{Address: h.Address, Amount: share})
		paid += share
	}
	for i := 0; paid < total; i = (i + 1) % len(recipients) {
		recipients[i].Amount++
		paid++
	}
	return recipients
}

// distribute pays the entire cached amount to the property's holders pro-rata
// by available+reserved balance, records the distribution, and zeroes the
// cache.
func (e *Engine) distribute(property uint32, height int64) error {
	total := e.CachedAmount(property)
	holders := e.ledger.HoldersOf(property)
	if len(holders) == 0 {
		return nil
	}
	recipients := SplitProRata(total, holders)

	record := DistributionRecord{
		ID:       e.nextID,
		Property: property,
		Block:    height,
		Total:    total,
	}
	for _, r := range recipients {
		if r.Amount == 0 {
			continue
		}
		if err := e.ledger.Credit(r.Address, property, r.Amount, ledger.Available); err != nil {
			return fmt.Errorf("distribute fee cache of %d: %w", property, err)
		}
		record.Recipients = append(record.Recipients, r)
	}

	consumed := e.cache[property]
	delete(e.cache, property)
	e.dirty[property] = struct{}{}
	e.history[record.ID] = record
	e.dirtyH[record.ID] = struct{}{}
	e.nextID++
	e.record(feeUndo{restored: consumed, distributed: record.ID})
	return nil
}

// DistributionCount reports how many distributions are on record.
func (e *Engine) DistributionCount() int {
	return len(e.history)
}

// Distribution returns the record for a distribution id.
func (e *Engine) Distribution(id uint32) (DistributionRecord, bool) {
	record, ok := e.history[id]
	return record, ok
}

// DistributionsForProperty lists distribution ids for the property in
// ascending order.
func (e *Engine) DistributionsForProperty(property uint32) []uint32 {
	ids := make([]uint32, 0)
	for id, record := range e.history {
		if record.Property == property {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// FeeShare returns the fraction of a future distribution the address would
// receive for the property right now, as an exact weight/total pair. The RPC
// layer formats it; the core never turns it into a float.
func (e *Engine) FeeShare(address string, property uint32) (weight, total int64) {
	for _, h := range e.ledger.HoldersOf(property) {
		total += h.Weight
		if h.Address == address {
			weight = h.Weight
		}
	}
	return weight, total
}

// RollbackTo reverts cache and history changes journalled at height >=
// target. Balance credits are reverted by the ledger's own journal.
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
			if u.distributed != 0 {
				delete(e.history, u.distributed)
				e.dirtyH[u.distributed] = struct{}{}
				e.nextID = u.distributed
			}
			if len(u.restored) > 0 {
				property := u.restored[0].Property
				merged := append(append([]CacheEntry(nil), u.restored...), e.cache[property]...)
				sort.Slice(merged, func(a, b int) bool { return merged[a].Block < merged[b].Block })
				e.cache[property] = merged
				e.dirty[property] = struct{}{}
			}
			if u.added != nil {
				entries := e.cache[u.added.Property]
				for k := len(entries) - 1; k >= 0; k-- {
					if entries[k].Block == u.added.Block {
						entries[k].Amount -= u.added.Amount
						if entries[k].Amount == 0 {
							entries = append(entries[:k], entries[k+1:]...)
						}
						break
					}
				}
				if len(entries) == 0 {
					delete(e.cache, u.added.Property)
				} else {
					e.cache[u.added.Property] = entries
				}
				e.dirty[u.added.Property] = struct{}{}
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
		e.journal = append([]feeJournal(nil), e.journal[idx:]...)
	}
}
