// Package core hosts the block processor: the single writer that turns the
// ordered intent stream into ledger, exchange and fee state, flushes each
// block to storage, and unwinds contiguous block suffixes on reorgs.
package core

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"cchlayer/consensus"
	"cchlayer/dex"
	"cchlayer/fees"
	"cchlayer/ledger"
	"cchlayer/metadex"
	"cchlayer/numeric"
	"cchlayer/observability"
	"cchlayer/storage"
)

// DefaultJournalDepth bounds how many blocks back a reorg can be unwound.
const DefaultJournalDepth = 128

var tipKey = []byte("chain/tip")

// Processor owns all mutable overlay state. Mutations are serialised under
// the write lock; read-only queries share the read lock and never observe a
// half-applied block.
type Processor struct {
	mu sync.RWMutex

	db      storage.Database
	ledger  *ledger.Ledger
	props   *ledger.Properties
	dex     *dex.Engine
	metadex *metadex.Engine
	fees    *fees.Engine

	log     *slog.Logger
	metrics *observability.ProcessorMetrics

	tip          int64
	journalDepth int64
	journalFloor int64 // lowest height the in-memory undo journals cover
	haltErr      error
}

// NewProcessor loads the persisted overlay state from db and wires the five
// components together.
func NewProcessor(db storage.Database, log *slog.Logger, journalDepth int64) (*Processor, error) {
	if journalDepth <= 0 {
		journalDepth = DefaultJournalDepth
	}
	l := ledger.NewLedger()
	props := ledger.NewProperties()
	feeEngine := fees.NewEngine(l, props)
	p := &Processor{
		db:           db,
		ledger:       l,
		props:        props,
		dex:          dex.NewEngine(l),
		metadex:      metadex.NewEngine(l, feeEngine),
		fees:         feeEngine,
		log:          log,
		metrics:      observability.Processor(),
		journalDepth: journalDepth,
	}
	if err := p.load(); err != nil {
		return nil, err
	}
	// Undo journals are not persisted. After a restart nothing below the
	// next block can be rewound, no matter what the configured depth allows.
	p.journalFloor = p.tip + 1
	return p, nil
}

func (p *Processor) load() error {
	if err := p.ledger.Load(p.db); err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	if err := p.props.Load(p.db); err != nil {
		return fmt.Errorf("load properties: %w", err)
	}
	if err := p.dex.Load(p.db); err != nil {
		return fmt.Errorf("load dex: %w", err)
	}
	if err := p.metadex.Load(p.db); err != nil {
		return fmt.Errorf("load metadex: %w", err)
	}
	if err := p.fees.Load(p.db); err != nil {
		return fmt.Errorf("load fees: %w", err)
	}
	data, err := p.db.Get(tipKey)
	if err == nil && len(data) > 0 {
		var tip uint64
		if err := rlp.DecodeBytes(data, &tip); err != nil {
			return fmt.Errorf("decode chain tip: %w", err)
		}
		p.tip = int64(tip)
	}
	return nil
}

func (p *Processor) halt(err error) error {
	p.haltErr = fmt.Errorf("%w: %v", ErrCorruptState, err)
	p.log.Error("halting block processing", "err", err)
	return p.haltErr
}

// Tip returns the height of the last applied block.
func (p *Processor) Tip() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tip
}

// ProcessBlock applies every intent of the block in order, evaluates fee
// distribution thresholds, and flushes the result to storage. Rejected
// intents are logged and produce no state change; internal invariant
// violations halt the processor permanently.
func (p *Processor) ProcessBlock(height int64, intents []Intent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.haltErr != nil {
		return fmt.Errorf("%w: %v", ErrHalted, p.haltErr)
	}
	if p.tip != 0 && height != p.tip+1 {
		return fmt.Errorf("%w: got %d, tip %d", ErrOutOfOrder, height, p.tip)
	}

	p.ledger.BeginBlock(height)
	p.props.BeginBlock(height)
	p.dex.BeginBlock(height)
	p.metadex.BeginBlock(height)
	p.fees.BeginBlock(height)

	if err := p.dex.ExpireAccepts(height); err != nil {
		return p.halt(fmt.Errorf("expire accepts at %d: %w", height, err))
	}
	if err := p.closeExpiredCrowdsales(height); err != nil {
		return p.halt(fmt.Errorf("close crowdsales at %d: %w", height, err))
	}

	for position, intent := range intents {
		p.metrics.Intents.WithLabelValues(intent.Kind()).Inc()
		if err := p.applyIntent(height, uint32(position), intent); err != nil {
			if errors.Is(err, ledger.ErrNegativeBalance) {
				return p.halt(fmt.Errorf("intent %s at %d:%d: %w", intent.Kind(), height, position, err))
			}
			p.metrics.IntentsRejected.WithLabelValues(intent.Kind()).Inc()
			p.log.Info("intent rejected",
				"kind", intent.Kind(),
				"sender", intent.Sender(),
				"height", height,
				"position", position,
				"err", err,
			)
		}
	}

	distributionsBefore := p.fees.DistributionCount()
	if err := p.fees.EvalBlock(height); err != nil {
		return p.halt(fmt.Errorf("evaluate fee caches at %d: %w", height, err))
	}
	if d := p.fees.DistributionCount() - distributionsBefore; d > 0 {
		p.metrics.FeeDistributed.Add(float64(d))
	}

	p.tip = height
	if err := p.flush(); err != nil {
		return p.halt(fmt.Errorf("flush block %d: %w", height, err))
	}

	keepFrom := height - p.journalDepth + 1
	p.ledger.PruneJournal(keepFrom)
	p.props.PruneJournal(keepFrom)
	p.dex.PruneJournal(keepFrom)
	p.metadex.PruneJournal(keepFrom)
	p.fees.PruneJournal(keepFrom)
	if keepFrom > p.journalFloor {
		p.journalFloor = keepFrom
	}

	p.metrics.BlocksProcessed.Inc()
	p.metrics.BlockHeight.Set(float64(height))
	return nil
}

// BlockDisconnected unwinds every applied block at or above height, as a
// single logical unit across all five components. A rollback failure is
// fatal: the state no longer matches any valid chain position.
func (p *Processor) BlockDisconnected(height int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.haltErr != nil {
		return fmt.Errorf("%w: %v", ErrHalted, p.haltErr)
	}
	if height > p.tip {
		return nil
	}
	// Every block in [height, tip] must be covered by live journals. The
	// per-component guards only see what is in memory, so after a restart
	// they would treat an empty journal as nothing to undo.
	if height < p.journalFloor {
		return p.halt(fmt.Errorf("%w: journals start at %d, rollback to %d", ErrRollbackDepth, p.journalFloor, height))
	}
	if err := p.fees.RollbackTo(height); err != nil {
		return p.halt(err)
	}
	if err := p.metadex.RollbackTo(height); err != nil {
		return p.halt(err)
	}
	if err := p.dex.RollbackTo(height); err != nil {
		return p.halt(err)
	}
	if err := p.props.RollbackTo(height); err != nil {
		return p.halt(err)
	}
	if err := p.ledger.RollbackTo(height); err != nil {
		return p.halt(err)
	}
	p.tip = height - 1
	if err := p.flush(); err != nil {
		return p.halt(fmt.Errorf("flush rollback to %d: %w", height, err))
	}
	p.metrics.Rollbacks.Inc()
	p.metrics.BlockHeight.Set(float64(p.tip))
	p.log.Info("rolled back chain suffix", "from", height, "tip", p.tip)
	return nil
}

func (p *Processor) flush() error {
	batch := new(storage.Batch)
	if err := p.ledger.Flush(batch); err != nil {
		return err
	}
	if err := p.props.Flush(batch); err != nil {
		return err
	}
	if err := p.dex.Flush(batch); err != nil {
		return err
	}
	if err := p.metadex.Flush(batch); err != nil {
		return err
	}
	if err := p.fees.Flush(batch); err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(uint64(p.tip))
	if err != nil {
		return err
	}
	batch.Put(tipKey, encoded)
	return p.db.Write(batch)
}

func (p *Processor) applyIntent(height int64, position uint32, intent Intent) error {
	switch in := intent.(type) {
	case SimpleSend:
		if !p.props.Exists(in.Property) {
			return fmt.Errorf("%w: %d", ledger.ErrPropertyNotFound, in.Property)
		}
		return p.ledger.Transfer(in.SenderAddress, in.Recipient, in.Property, in.Amount, ledger.Available, ledger.Available)

	case SendAll:
		return p.applySendAll(in)

	case SendToOwners:
		return p.applySendToOwners(in)

	case IssuanceFixed:
		if in.Amount <= 0 || in.Name == "" {
			return fmt.Errorf("%w: fixed issuance of %q/%d", ledger.ErrAmountOutOfRange, in.Name, in.Amount)
		}
		id, err := p.props.Create(in.Ecosystem, ledger.PropertyMetadata{
			Name:        in.Name,
			URL:         in.URL,
			Data:        in.Data,
			Divisible:   in.Divisible,
			Issuer:      in.SenderAddress,
			TotalTokens: in.Amount,
		})
		if err != nil {
			return err
		}
		return p.ledger.Credit(in.SenderAddress, id, in.Amount, ledger.Available)

	case IssuanceCrowdsale:
		if in.Name == "" || in.TokensPerUnit <= 0 {
			return fmt.Errorf("%w: crowdsale issuance of %q at rate %d", ledger.ErrAmountOutOfRange, in.Name, in.TokensPerUnit)
		}
		if in.Deadline <= height {
			return fmt.Errorf("%w: crowdsale deadline %d at height %d", ledger.ErrAmountOutOfRange, in.Deadline, height)
		}
		if !p.props.Exists(in.DesiredProperty) {
			return fmt.Errorf("%w: %d", ledger.ErrPropertyNotFound, in.DesiredProperty)
		}
		if ledger.EcosystemOf(in.DesiredProperty) != in.Ecosystem {
			return fmt.Errorf("%w: desired property %d outside ecosystem %d", ledger.ErrAmountOutOfRange, in.DesiredProperty, in.Ecosystem)
		}
		_, err := p.props.Create(in.Ecosystem, ledger.PropertyMetadata{
			Name:              in.Name,
			URL:               in.URL,
			Data:              in.Data,
			Divisible:         in.Divisible,
			Issuer:            in.SenderAddress,
			CrowdsaleActive:   true,
			CrowdsaleDesired:  in.DesiredProperty,
			CrowdsaleRate:     in.TokensPerUnit,
			CrowdsaleDeadline: in.Deadline,
		})
		return err

	case CrowdsaleParticipate:
		return p.applyCrowdsaleParticipate(in)

	case CrowdsaleClose:
		meta, err := p.props.Get(in.Property)
		if err != nil {
			return err
		}
		if meta.Issuer != in.SenderAddress {
			return fmt.Errorf("%w: %s may not close crowdsale %d", ErrNotAuthorized, in.SenderAddress, in.Property)
		}
		if !meta.CrowdsaleActive {
			return fmt.Errorf("%w: %d", ErrCrowdsaleClosed, in.Property)
		}
		meta.CrowdsaleActive = false
		return p.props.Update(meta)

	case IssuanceManaged:
		if in.Name == "" {
			return fmt.Errorf("%w: managed issuance without name", ledger.ErrAmountOutOfRange)
		}
		_, err := p.props.Create(in.Ecosystem, ledger.PropertyMetadata{
			Name:      in.Name,
			URL:       in.URL,
			Data:      in.Data,
			Divisible: in.Divisible,
			Issuer:    in.SenderAddress,
			Managed:   true,
		})
		return err

	case Grant:
		meta, err := p.requireManager(in.Property, in.SenderAddress)
		if err != nil {
			return err
		}
		if !meta.Managed {
			return fmt.Errorf("%w: %d", ErrNotManaged, in.Property)
		}
		if in.Amount <= 0 {
			return fmt.Errorf("%w: grant %d", ledger.ErrAmountOutOfRange, in.Amount)
		}
		if err := p.props.AddTotal(in.Property, in.Amount); err != nil {
			return err
		}
		return p.ledger.Credit(in.Recipient, in.Property, in.Amount, ledger.Available)

	case Revoke:
		meta, err := p.requireManager(in.Property, in.SenderAddress)
		if err != nil {
			return err
		}
		if !meta.Managed {
			return fmt.Errorf("%w: %d", ErrNotManaged, in.Property)
		}
		if err := p.ledger.Debit(in.SenderAddress, in.Property, in.Amount, ledger.Available); err != nil {
			return err
		}
		return p.props.AddTotal(in.Property, -in.Amount)

	case ChangeIssuer:
		meta, err := p.props.Get(in.Property)
		if err != nil {
			return err
		}
		if meta.Issuer != in.SenderAddress {
			return fmt.Errorf("%w: %s is not issuer of %d", ErrNotAuthorized, in.SenderAddress, in.Property)
		}
		meta.Issuer = in.NewIssuer
		return p.props.Update(meta)

	case EnableFreezing:
		meta, err := p.requireManager(in.Property, in.SenderAddress)
		if err != nil {
			return err
		}
		if !meta.Managed {
			return fmt.Errorf("%w: %d", ErrNotManaged, in.Property)
		}
		meta.FreezingEnabled = true
		return p.props.Update(meta)

	case DisableFreezing:
		return p.applyDisableFreezing(in)

	case Freeze:
		meta, err := p.requireManager(in.Property, in.SenderAddress)
		if err != nil {
			return err
		}
		if !meta.FreezingEnabled {
			return fmt.Errorf("%w: %d", ErrFreezingDisabled, in.Property)
		}
		if amount := p.ledger.BalanceOf(in.Target, in.Property).Available; amount > 0 {
			return p.ledger.Move(in.Target, in.Property, amount, ledger.Available, ledger.Frozen)
		}
		return nil

	case Unfreeze:
		meta, err := p.requireManager(in.Property, in.SenderAddress)
		if err != nil {
			return err
		}
		if !meta.FreezingEnabled {
			return fmt.Errorf("%w: %d", ErrFreezingDisabled, in.Property)
		}
		if amount := p.ledger.BalanceOf(in.Target, in.Property).Frozen; amount > 0 {
			return p.ledger.Move(in.Target, in.Property, amount, ledger.Frozen, ledger.Available)
		}
		return nil

	case DExSell:
		if !p.props.Exists(in.Property) {
			return fmt.Errorf("%w: %d", ledger.ErrPropertyNotFound, in.Property)
		}
		switch in.Action {
		case DExActionNew:
			return p.dex.CreateOffer(in.SenderAddress, in.Property, in.AmountForSale, in.AmountDesired, in.PaymentWindow, in.MinAcceptFee, height)
		case DExActionUpdate:
			return p.dex.UpdateOffer(in.SenderAddress, in.Property, in.AmountForSale, in.AmountDesired, in.PaymentWindow, in.MinAcceptFee, height)
		case DExActionCancel:
			return p.dex.CancelOffer(in.SenderAddress, in.Property)
		}
		return fmt.Errorf("%w: dex action %d", ledger.ErrAmountOutOfRange, in.Action)

	case DExAccept:
		offer, ok := p.dex.GetOffer(in.Seller, in.Property)
		if !ok {
			return fmt.Errorf("%w: accept of %s property %d", dex.ErrNoOffer, in.Seller, in.Property)
		}
		if in.Fee < offer.MinAcceptFee {
			return fmt.Errorf("%w: accept fee %d below offer minimum %d", ledger.ErrAmountOutOfRange, in.Fee, offer.MinAcceptFee)
		}
		return p.dex.AcceptOffer(in.SenderAddress, in.Seller, in.Property, in.Amount, height)

	case DExPayment:
		meta, err := p.props.Get(in.Property)
		if err != nil {
			return err
		}
		return p.dex.ProcessPayment(in.SenderAddress, in.Seller, in.Property, in.Amount, meta.Divisible)

	case MetaDExTrade:
		if !p.props.Exists(in.PropertyForSale) {
			return fmt.Errorf("%w: %d", ledger.ErrPropertyNotFound, in.PropertyForSale)
		}
		if !p.props.Exists(in.PropertyDesired) {
			return fmt.Errorf("%w: %d", ledger.ErrPropertyNotFound, in.PropertyDesired)
		}
		filled, err := p.metadex.Trade(in.TxID, in.SenderAddress, in.PropertyForSale, in.AmountForSale, in.PropertyDesired, in.AmountDesired, height, position)
		if err == nil && filled > 0 {
			p.metrics.TradesMatched.Inc()
		}
		return err

	case MetaDExCancelPrice:
		_, err := p.metadex.CancelAtPrice(in.SenderAddress, in.PropertyForSale, in.PropertyDesired, in.AmountForSale, in.AmountDesired)
		return err

	case MetaDExCancelPair:
		_, err := p.metadex.CancelPair(in.SenderAddress, in.PropertyForSale, in.PropertyDesired)
		return err

	case MetaDExCancelEcosystem:
		_, err := p.metadex.CancelEcosystem(in.SenderAddress, in.Ecosystem)
		return err
	}

	// Unrecognized intents carry no ledger effect; log and move on.
	p.log.Warn("skipping unrecognized intent", "kind", intent.Kind(), "sender", intent.Sender())
	return nil
}

func (p *Processor) requireManager(property uint32, sender string) (ledger.PropertyMetadata, error) {
	meta, err := p.props.Get(property)
	if err != nil {
		return ledger.PropertyMetadata{}, err
	}
	if meta.Issuer != sender && (meta.Delegate == "" || meta.Delegate != sender) {
		return ledger.PropertyMetadata{}, fmt.Errorf("%w: %s may not manage %d", ErrNotAuthorized, sender, property)
	}
	return meta, nil
}

func (p *Processor) applySendAll(in SendAll) error {
	it := p.ledger.PropertiesHeldBy(in.SenderAddress)
	moved := false
	for property, ok := it.Next(); ok; property, ok = it.Next() {
		if ledger.EcosystemOf(property) != in.Ecosystem {
			continue
		}
		amount := p.ledger.BalanceOf(in.SenderAddress, property).Available
		if amount <= 0 {
			continue
		}
		if err := p.ledger.Transfer(in.SenderAddress, in.Recipient, property, amount, ledger.Available, ledger.Available); err != nil {
			return err
		}
		moved = true
	}
	if !moved {
		return fmt.Errorf("%w: send-all with nothing to send", ledger.ErrInsufficientBalance)
	}
	return nil
}

func (p *Processor) applySendToOwners(in SendToOwners) error {
	if in.Amount <= 0 {
		return fmt.Errorf("%w: send-to-owners of %d", ledger.ErrAmountOutOfRange, in.Amount)
	}
	if !p.props.Exists(in.Property) {
		return fmt.Errorf("%w: %d", ledger.ErrPropertyNotFound, in.Property)
	}
	distProperty := in.DistributionProperty
	if distProperty == 0 {
		distProperty = in.Property
	}
	if !p.props.Exists(distProperty) {
		return fmt.Errorf("%w: %d", ledger.ErrPropertyNotFound, distProperty)
	}
	holders := make([]ledger.Holder, 0)
	for _, h := range p.ledger.HoldersOf(distProperty) {
		if h.Address != in.SenderAddress {
			holders = append(holders, h)
		}
	}
	if len(holders) == 0 {
		return fmt.Errorf("%w: nobody holds %d", ErrNoRecipients, distProperty)
	}
	if err := p.ledger.Debit(in.SenderAddress, in.Property, in.Amount, ledger.Available); err != nil {
		return err
	}
	for _, r := range fees.SplitProRata(in.Amount, holders) {
		if r.Amount == 0 {
			continue
		}
		if err := p.ledger.Credit(r.Address, in.Property, r.Amount, ledger.Available); err != nil {
			// The debit already applied; a failed credit leaves the block
			// half-written and must halt rather than reject.
			return fmt.Errorf("%w: %v", ledger.ErrNegativeBalance, err)
		}
	}
	return nil
}

func (p *Processor) applyCrowdsaleParticipate(in CrowdsaleParticipate) error {
	meta, err := p.props.Get(in.Property)
	if err != nil {
		return err
	}
	if !meta.CrowdsaleActive {
		return fmt.Errorf("%w: %d", ErrCrowdsaleClosed, in.Property)
	}
	if in.SenderAddress == meta.Issuer {
		return fmt.Errorf("%w: issuer cannot participate in %d", ErrNotAuthorized, in.Property)
	}
	if in.Amount <= 0 {
		return fmt.Errorf("%w: contribution %d", ledger.ErrAmountOutOfRange, in.Amount)
	}
	minted, ok := numeric.MulChecked(in.Amount, meta.CrowdsaleRate)
	if !ok {
		return fmt.Errorf("%w: crowdsale mint of %d*%d overflows", ledger.ErrAmountOutOfRange, in.Amount, meta.CrowdsaleRate)
	}
	if err := p.ledger.Transfer(in.SenderAddress, meta.Issuer, meta.CrowdsaleDesired, in.Amount, ledger.Available, ledger.Available); err != nil {
		return err
	}
	if err := p.props.AddTotal(in.Property, minted); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrNegativeBalance, err)
	}
	if err := p.ledger.Credit(in.SenderAddress, in.Property, minted, ledger.Available); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrNegativeBalance, err)
	}
	return nil
}

// closeExpiredCrowdsales runs at the start of every block, before intents.
// A crowdsale whose deadline height has arrived no longer accepts
// participations in that block.
func (p *Processor) closeExpiredCrowdsales(height int64) error {
	for _, id := range p.props.IDs(0) {
		meta, err := p.props.Get(id)
		if err != nil {
			return err
		}
		if !meta.CrowdsaleActive || meta.CrowdsaleDeadline > height {
			continue
		}
		meta.CrowdsaleActive = false
		if err := p.props.Update(meta); err != nil {
			return err
		}
		p.log.Info("crowdsale reached deadline", "property", id, "height", height)
	}
	return nil
}

func (p *Processor) applyDisableFreezing(in DisableFreezing) error {
	meta, err := p.requireManager(in.Property, in.SenderAddress)
	if err != nil {
		return err
	}
	if !meta.FreezingEnabled {
		return fmt.Errorf("%w: already disabled for %d", ErrFreezingDisabled, in.Property)
	}
	meta.FreezingEnabled = false
	if err := p.props.Update(meta); err != nil {
		return err
	}
	// Disabling the capability thaws every frozen balance of the property.
	type thaw struct {
		address string
		amount  int64
	}
	thaws := make([]thaw, 0)
	p.ledger.ForEach(func(key ledger.AccountKey, t ledger.Tally) error {
		if key.Property == in.Property && t.Frozen > 0 {
			thaws = append(thaws, thaw{address: key.Address, amount: t.Frozen})
		}
		return nil
	})
	for _, th := range thaws {
		if err := p.ledger.Move(th.address, in.Property, th.amount, ledger.Frozen, ledger.Available); err != nil {
			return fmt.Errorf("%w: %v", ledger.ErrNegativeBalance, err)
		}
	}
	return nil
}

// --- Read-only queries. These take the lock in shared mode and are safe to
// call concurrently with each other. ---

// GetBalance returns the tally for an account.
func (p *Processor) GetBalance(address string, property uint32) ledger.Tally {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ledger.BalanceOf(address, property)
}

// GetProperty returns the metadata for a property.
func (p *Processor) GetProperty(property uint32) (ledger.PropertyMetadata, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.props.Get(property)
}

// ListProperties lists issued property ids, optionally limited to an
// ecosystem (0 for both).
func (p *Processor) ListProperties(eco ledger.Ecosystem) []uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.props.IDs(eco)
}

// GetOffer returns the live DEx offer for (seller, property).
func (p *Processor) GetOffer(seller string, property uint32) (dex.Offer, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dex.GetOffer(seller, property)
}

// GetAccept returns the open DEx accept for (seller, property, buyer).
func (p *Processor) GetAccept(seller string, property uint32, buyer string) (dex.Accept, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dex.GetAccept(seller, property, buyer)
}

// ListOrderBook returns the live MetaDEx orders selling a property,
// optionally filtered by desired property.
func (p *Processor) ListOrderBook(propertyForSale uint32, propertyDesired *uint32) []metadex.Order {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metadex.ListBook(propertyForSale, propertyDesired)
}

// GetFeeCache returns the live fee cache entries for a property.
func (p *Processor) GetFeeCache(property uint32) []fees.CacheEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fees.CacheHistory(property)
}

// GetFeeTrigger returns the distribution threshold for a property.
func (p *Processor) GetFeeTrigger(property uint32) (int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fees.Threshold(property)
}

// GetFeeShare returns the exact weight/total pair describing the share of a
// future distribution the address would receive.
func (p *Processor) GetFeeShare(address string, property uint32) (int64, int64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fees.FeeShare(address, property)
}

// GetFeeDistribution returns a recorded distribution by id.
func (p *Processor) GetFeeDistribution(id uint32) (fees.DistributionRecord, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fees.Distribution(id)
}

// GetFeeDistributionsForProperty lists distribution ids for a property.
func (p *Processor) GetFeeDistributionsForProperty(property uint32) []uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fees.DistributionsForProperty(property)
}

// ConsensusHash recomputes the balance digest.
func (p *Processor) ConsensusHash() [32]byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return consensus.HashBalances(p.ledger)
}

// MetaDExHash recomputes the order book digest, optionally filtered by
// property for sale (0 for all).
func (p *Processor) MetaDExHash(propertyFilter uint32) [32]byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return consensus.HashMetaDEx(p.metadex, propertyFilter)
}
