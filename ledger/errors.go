package ledger

import stderrors "errors"

var (
	ErrInsufficientBalance = stderrors.New("ledger: insufficient balance")
	ErrAmountOutOfRange    = stderrors.New("ledger: amount out of range")
	ErrPropertyNotFound    = stderrors.New("ledger: property not found")
	ErrNegativeBalance     = stderrors.New("ledger: negative balance detected")
	ErrRollbackDepth       = stderrors.New("ledger: rollback beyond retained journal")
)
