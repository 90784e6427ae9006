package dex

import stderrors "errors"

var (
	ErrNoOffer         = stderrors.New("dex: no matching offer")
	ErrOfferExists     = stderrors.New("dex: active offer already exists")
	ErrNoAccept        = stderrors.New("dex: no matching accept")
	ErrAcceptOverlap   = stderrors.New("dex: accept already open for buyer")
	ErrNothingToAccept = stderrors.New("dex: offer has nothing left to accept")
	ErrPaymentTooLow   = stderrors.New("dex: payment below required amount")
	ErrPaymentTooHigh  = stderrors.New("dex: payment exceeds outstanding obligation")
	ErrRollbackDepth   = stderrors.New("dex: rollback beyond retained journal")
)
