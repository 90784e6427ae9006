package metadex

import stderrors "errors"

var (
	ErrEcosystemMismatch = stderrors.New("metadex: properties are in different ecosystems")
	ErrSameProperty      = stderrors.New("metadex: cannot trade a property for itself")
	ErrDuplicateOrder    = stderrors.New("metadex: order txid already in book")
	ErrRollbackDepth     = stderrors.New("metadex: rollback beyond retained journal")
)
