package ledger

import "fmt"

// Bucket identifies one of the five sub-balances an account holds for a
// property. Tokens sit in exactly one bucket at a time; exchange engines move
// them between buckets through the Ledger API and never hold balances of
// their own.
type Bucket uint8

const (
	Available Bucket = iota
	SellReserved
	AcceptReserved
	MetaReserved
	Frozen
)

func (b Bucket) String() string {
	switch b {
	case Available:
		return "available"
	case SellReserved:
		return "sell-reserved"
	case AcceptReserved:
		return "accept-reserved"
	case MetaReserved:
		return "meta-reserved"
	case Frozen:
		return "frozen"
	}
	return fmt.Sprintf("bucket(%d)", uint8(b))
}

// Tally is the balance state of one (address, property) account. All amounts
// are in base units (10^-8 for divisible properties) and must never go
// negative.
type Tally struct {
	Available      int64
	SellReserved   int64
	AcceptReserved int64
	MetaReserved   int64
	Frozen         int64
}

func (t Tally) get(b Bucket) int64 {
	switch b {
	case Available:
		return t.Available
	case SellReserved:
		return t.SellReserved
	case AcceptReserved:
		return t.AcceptReserved
	case MetaReserved:
		return t.MetaReserved
	case Frozen:
		return t.Frozen
	}
	return 0
}

func (t *Tally) set(b Bucket, v int64) {
	switch b {
	case Available:
		t.Available = v
	case SellReserved:
		t.SellReserved = v
	case AcceptReserved:
		t.AcceptReserved = v
	case MetaReserved:
		t.MetaReserved = v
	case Frozen:
		t.Frozen = v
	}
}

// Reserved returns the sum of the three reservation buckets. The frozen
// bucket is not part of it.
func (t Tally) Reserved() int64 {
	return t.SellReserved + t.AcceptReserved + t.MetaReserved
}

// Total returns the full holdings of the account across every bucket.
func (t Tally) Total() int64 {
	return t.Available + t.Reserved() + t.Frozen
}

// IsZero reports whether every bucket is empty.
func (t Tally) IsZero() bool {
	return t.Total() == 0
}
