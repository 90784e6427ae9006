package core

import stderrors "errors"

var (
	// ErrCorruptState marks an internal invariant violation. The processor
	// halts rather than continuing, since continuing would diverge consensus.
	ErrCorruptState = stderrors.New("core: corrupt state")
	// ErrHalted is returned for every call after a fatal failure.
	ErrHalted = stderrors.New("core: processing halted")
	// ErrOutOfOrder rejects a block delivered outside strict height order.
	ErrOutOfOrder = stderrors.New("core: block out of order")
	// ErrRollbackDepth marks a reorg reaching below the blocks the in-memory
	// journals cover. The state cannot be rewound, so the processor halts.
	ErrRollbackDepth = stderrors.New("core: rollback beyond retained journals")
	// ErrCrowdsaleClosed rejects participation in a crowdsale that is not
	// active.
	ErrCrowdsaleClosed = stderrors.New("core: crowdsale not active")
	// ErrNoRecipients rejects a send-to-owners with nobody to receive.
	ErrNoRecipients = stderrors.New("core: no eligible owners")
	// ErrNotAuthorized rejects management intents from a non-issuer.
	ErrNotAuthorized = stderrors.New("core: sender not authorized")
	// ErrFreezingDisabled rejects freeze intents when the property does not
	// have freezing enabled.
	ErrFreezingDisabled = stderrors.New("core: freezing not enabled")
	// ErrNotManaged rejects grant/revoke on fixed-supply properties.
	ErrNotManaged = stderrors.New("core: property supply is not managed")
)
