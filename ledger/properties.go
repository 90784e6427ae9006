package ledger

import (
	"fmt"
	"sort"
)

// Ecosystem is one of the two independent property numbering spaces.
type Ecosystem uint8

const (
	EcosystemMain Ecosystem = 1
	EcosystemTest Ecosystem = 2
)

// TestEcosystemFirstProperty is the id assigned to the first property created
// in the test ecosystem. Main ecosystem ids start at 1.
const TestEcosystemFirstProperty uint32 = 2147483651

// EcosystemOf reports which numbering space a property id belongs to.
func EcosystemOf(property uint32) Ecosystem {
	if property >= TestEcosystemFirstProperty {
		return EcosystemTest
	}
	return EcosystemMain
}

// PropertyMetadata describes a token type. Created on issuance and mutated by
// grant/revoke/change-issuer/freezing/crowdsale intents; never deleted.
type PropertyMetadata struct {
	ID              uint32
	Name            string
	URL             string
	Data            string
	Divisible       bool
	Issuer          string
	Delegate        string
	Managed         bool
	FreezingEnabled bool
	TotalTokens     int64

	// Crowdsale-issued properties mint supply as participants contribute the
	// desired property. A closed crowdsale leaves these fields as a record.
	CrowdsaleActive   bool
	CrowdsaleDesired  uint32
	CrowdsaleRate     int64 // tokens minted per base unit contributed
	CrowdsaleDeadline int64 // block height at which the sale closes
}

type propertyUndo struct {
	id      uint32
	created bool
	prev    PropertyMetadata
}

type propertyJournal struct {
	height  int64
	entries []propertyUndo
}

// Properties is the registry of issued token types for both ecosystems.
type Properties struct {
	byID     map[uint32]PropertyMetadata
	nextMain uint32
	nextTest uint32
	dirty    map[uint32]struct{}
	journal  []propertyJournal
}

// NewProperties returns a registry with no properties issued.
func NewProperties() *Properties {
	return &Properties{
		byID:     make(map[uint32]PropertyMetadata),
		nextMain: 1,
		nextTest: TestEcosystemFirstProperty,
		dirty:    make(map[uint32]struct{}),
	}
}

// BeginBlock opens a journal for the given height.
func (p *Properties) BeginBlock(height int64) {
	p.journal = append(p.journal, propertyJournal{height: height})
}

func (p *Properties) record(u propertyUndo) {
	if len(p.journal) == 0 {
		return
	}
	j := &p.journal[len(p.journal)-1]
	j.entries = append(j.entries, u)
}

// Create assigns the next id in the ecosystem and registers the metadata.
func (p *Properties) Create(eco Ecosystem, meta PropertyMetadata) (uint32, error) {
	var id uint32
	switch eco {
	case EcosystemMain:
		id = p.nextMain
		p.nextMain++
	case EcosystemTest:
		id = p.nextTest
		p.nextTest++
	default:
		return 0, fmt.Errorf("unknown ecosystem %d", eco)
	}
	meta.ID = id
	p.byID[id] = meta
	p.dirty[id] = struct{}{}
	p.record(propertyUndo{id: id, created: true})
	return id, nil
}

// Get returns a copy of the metadata for the property.
func (p *Properties) Get(id uint32) (PropertyMetadata, error) {
	meta, ok := p.byID[id]
	if !ok {
		return PropertyMetadata{}, fmt.Errorf("%w: %d", ErrPropertyNotFound, id)
	}
	return meta, nil
}

// Exists reports whether the property has been issued.
func (p *Properties) Exists(id uint32) bool {
	_, ok := p.byID[id]
	return ok
}

// Update replaces the metadata for an existing property, journalling the
// prior value for rollback.
func (p *Properties) Update(meta PropertyMetadata) error {
	prev, ok := p.byID[meta.ID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrPropertyNotFound, meta.ID)
	}
	p.record(propertyUndo{id: meta.ID, prev: prev})
	p.byID[meta.ID] = meta
	p.dirty[meta.ID] = struct{}{}
	return nil
}

// AddTotal adjusts the total-tokens counter, used by grant and revoke.
func (p *Properties) AddTotal(id uint32, delta int64) error {
	meta, ok := p.byID[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrPropertyNotFound, id)
	}
	if meta.TotalTokens+delta < 0 {
		return fmt.Errorf("%w: total tokens of %d would go negative", ErrAmountOutOfRange, id)
	}
	p.record(propertyUndo{id: id, prev: meta})
	meta.TotalTokens += delta
	p.byID[id] = meta
	p.dirty[id] = struct{}{}
	return nil
}

// IDs lists every issued property id in ascending order, optionally limited
// to one ecosystem (pass 0 for both).
func (p *Properties) IDs(eco Ecosystem) []uint32 {
	ids := make([]uint32, 0, len(p.byID))
	for id := range p.byID {
		if eco != 0 && EcosystemOf(id) != eco {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RollbackTo reverts creations and updates journalled at height >= target.
func (p *Properties) RollbackTo(target int64) error {
	if len(p.journal) > 0 && p.journal[0].height > target {
		return fmt.Errorf("%w: oldest retained block %d, rollback to %d", ErrRollbackDepth, p.journal[0].height, target)
	}
	for len(p.journal) > 0 {
		j := p.journal[len(p.journal)-1]
		if j.height < target {
			break
		}
		for i := len(j.entries) - 1; i >= 0; i-- {
			u := j.entries[i]
			if u.created {
				delete(p.byID, u.id)
				if EcosystemOf(u.id) == EcosystemTest {
					p.nextTest = u.id
				} else {
					p.nextMain = u.id
				}
			} else {
				p.byID[u.id] = u.prev
			}
			p.dirty[u.id] = struct{}{}
		}
		p.journal = p.journal[:len(p.journal)-1]
	}
	return nil
}

// PruneJournal drops journals for blocks below keepFrom.
func (p *Properties) PruneJournal(keepFrom int64) {
	idx := 0
	for idx < len(p.journal) && p.journal[idx].height < keepFrom {
		idx++
	}
	if idx > 0 {
		p.journal = append([]propertyJournal(nil), p.journal[idx:]...)
	}
}
