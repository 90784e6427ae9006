package ledger

import (
	"fmt"
	"sort"
)

// AccountKey identifies one account: a holder address paired with a property
// id.
type AccountKey struct {
	Address  string
	Property uint32
}

type balanceDelta struct {
	key    AccountKey
	bucket Bucket
	amount int64
}

type blockJournal struct {
	height int64
	deltas []balanceDelta
}

// Ledger is the authoritative per-address, per-property balance state. Every
// component mutates balances exclusively through it, which is what makes a
// whole-block rollback possible: the ledger journals each applied delta and
// can replay the inverse sequence.
//
// The ledger itself is not goroutine safe; the block processor serialises
// access under its state lock.
type Ledger struct {
	tallies map[AccountKey]Tally
	dirty   map[AccountKey]struct{}
	journal []blockJournal
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		tallies: make(map[AccountKey]Tally),
		dirty:   make(map[AccountKey]struct{}),
	}
}

// BeginBlock opens a journal for the given height. Mutations applied before
// the first BeginBlock (genesis seeding in tests) are not journalled.
func (l *Ledger) BeginBlock(height int64) {
	l.journal = append(l.journal, blockJournal{height: height})
}

func (l *Ledger) record(key AccountKey, bucket Bucket, amount int64) {
	if len(l.journal) == 0 {
		return
	}
	j := &l.journal[len(l.journal)-1]
	j.deltas = append(j.deltas, balanceDelta{key: key, bucket: bucket, amount: amount})
}

func (l *Ledger) apply(key AccountKey, bucket Bucket, amount int64) error {
	t := l.tallies[key]
	next := t.get(bucket) + amount
	if next < 0 {
		return fmt.Errorf("%w: %s/%d %s %d%+d", ErrInsufficientBalance, key.Address, key.Property, bucket, t.get(bucket), amount)
	}
	t.set(bucket, next)
	if t.IsZero() {
		delete(l.tallies, key)
	} else {
		l.tallies[key] = t
	}
	l.dirty[key] = struct{}{}
	return nil
}

// Credit adds amount to the given bucket.
func (l *Ledger) Credit(address string, property uint32, amount int64, bucket Bucket) error {
	if amount <= 0 {
		return fmt.Errorf("%w: credit %d", ErrAmountOutOfRange, amount)
	}
	key := AccountKey{Address: address, Property: property}
	if err := l.apply(key, bucket, amount); err != nil {
		return err
	}
	l.record(key, bucket, amount)
	return nil
}

// Debit removes amount from the given bucket, failing with
// ErrInsufficientBalance if the bucket would go negative. The tally is left
// untouched on failure.
func (l *Ledger) Debit(address string, property uint32, amount int64, bucket Bucket) error {
	if amount <= 0 {
		return fmt.Errorf("%w: debit %d", ErrAmountOutOfRange, amount)
	}
	key := AccountKey{Address: address, Property: property}
	if err := l.apply(key, bucket, -amount); err != nil {
		return err
	}
	l.record(key, bucket, -amount)
	return nil
}

// Move shifts amount between two buckets of the same account. It either fully
// applies or leaves the tally untouched.
func (l *Ledger) Move(address string, property uint32, amount int64, from, to Bucket) error {
	if amount <= 0 {
		return fmt.Errorf("%w: move %d", ErrAmountOutOfRange, amount)
	}
	if from == to {
		return fmt.Errorf("%w: move within %s", ErrAmountOutOfRange, from)
	}
	key := AccountKey{Address: address, Property: property}
	if err := l.apply(key, from, -amount); err != nil {
		return err
	}
	if err := l.apply(key, to, amount); err != nil {
		// The source debit succeeded, so crediting the destination cannot
		// underflow; reaching this means the tally was corrupt.
		return fmt.Errorf("%w: %v", ErrNegativeBalance, err)
	}
	l.record(key, from, -amount)
	l.record(key, to, amount)
	return nil
}

// Transfer moves amount from one address's bucket to another address's
// bucket. The debit is validated before the credit so a failure leaves both
// tallies untouched.
func (l *Ledger) Transfer(from, to string, property uint32, amount int64, fromBucket, toBucket Bucket) error {
	if amount <= 0 {
		return fmt.Errorf("%w: transfer %d", ErrAmountOutOfRange, amount)
	}
	fromKey := AccountKey{Address: from, Property: property}
	toKey := AccountKey{Address: to, Property: property}
	if err := l.apply(fromKey, fromBucket, -amount); err != nil {
		return err
	}
	if err := l.apply(toKey, toBucket, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrNegativeBalance, err)
	}
	l.record(fromKey, fromBucket, -amount)
	l.record(toKey, toBucket, amount)
	return nil
}

// BalanceOf returns the tally for the account. Missing accounts read as all
// zero.
func (l *Ledger) BalanceOf(address string, property uint32) Tally {
	return l.tallies[AccountKey{Address: address, Property: property}]
}

// PropertyIterator yields the property ids an address holds. It snapshots at
// creation time, so it is restartable and unaffected by concurrent blocks.
type PropertyIterator struct {
	props []uint32
	pos   int
}

// Next returns the next property id, or false when exhausted.
func (it *PropertyIterator) Next() (uint32, bool) {
	if it.pos >= len(it.props) {
		return 0, false
	}
	p := it.props[it.pos]
	it.pos++
	return p, true
}

// Reset rewinds the iterator to the first property.
func (it *PropertyIterator) Reset() { it.pos = 0 }

// PropertiesHeldBy returns an iterator over the property ids for which the
// address has any non-zero holdings, in ascending id order.
func (l *Ledger) PropertiesHeldBy(address string) *PropertyIterator {
	props := make([]uint32, 0)
	for key, t := range l.tallies {
		if key.Address == address && !t.IsZero() {
			props = append(props, key.Property)
		}
	}
	sort.Slice(props, func(i, j int) bool { return props[i] < props[j] })
	return &PropertyIterator{props: props}
}

// ForEach visits every non-zero account in canonical order: address
// ascending, then property id ascending. This is the iteration order the
// consensus hash is defined over.
func (l *Ledger) ForEach(fn func(key AccountKey, t Tally) error) error {
	keys := make([]AccountKey, 0, len(l.tallies))
	for key := range l.tallies {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Address != keys[j].Address {
			return keys[i].Address < keys[j].Address
		}
		return keys[i].Property < keys[j].Property
	})
	for _, key := range keys {
		if err := fn(key, l.tallies[key]); err != nil {
			return err
		}
	}
	return nil
}

// Holder is one address's stake in a property, used for pro-rata fee
// distribution.
type Holder struct {
	Address string
	Weight  int64
}

// HoldersOf lists every address with a non-zero available+reserved balance of
// the property, sorted by address. Frozen tokens carry no distribution
// weight.
func (l *Ledger) HoldersOf(property uint32) []Holder {
	holders := make([]Holder, 0)
	for key, t := range l.tallies {
		if key.Property != property {
			continue
		}
		weight := t.Available + t.Reserved()
		if weight > 0 {
			holders = append(holders, Holder{Address: key.Address, Weight: weight})
		}
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i].Address < holders[j].Address })
	return holders
}

// TotalHeld sums every bucket of every account for the property. Together
// with the fee cache it must account for the property's total tokens.
func (l *Ledger) TotalHeld(property uint32) int64 {
	var total int64
	for key, t := range l.tallies {
		if key.Property == property {
			total += t.Total()
		}
	}
	return total
}

// RollbackTo reverts every journalled block with height >= target, newest
// first. It fails if the journal does not reach back far enough, which the
// caller must treat as fatal.
func (l *Ledger) RollbackTo(target int64) error {
	if len(l.journal) > 0 && l.journal[0].height > target {
		return fmt.Errorf("%w: oldest retained block %d, rollback to %d", ErrRollbackDepth, l.journal[0].height, target)
	}
	for len(l.journal) > 0 {
		j := l.journal[len(l.journal)-1]
		if j.height < target {
			break
		}
		for i := len(j.deltas) - 1; i >= 0; i-- {
			d := j.deltas[i]
			if err := l.apply(d.key, d.bucket, -d.amount); err != nil {
				return fmt.Errorf("revert block %d: %w", j.height, err)
			}
		}
		l.journal = l.journal[:len(l.journal)-1]
	}
	return nil
}

// PruneJournal drops journals for blocks below keepFrom, bounding memory. A
// reorg past the pruned horizon can no longer be rolled back.
func (l *Ledger) PruneJournal(keepFrom int64) {
	idx := 0
	for idx < len(l.journal) && l.journal[idx].height < keepFrom {
		idx++
	}
	if idx > 0 {
		l.journal = append([]blockJournal(nil), l.journal[idx:]...)
	}
}
