package mempool

import "errors"

var (
	// ErrTxInPool is returned when a tx with the same id is already unassigned or assigned to a block
	ErrTxInPool = errors.New("tx already exists in pool")
	// ErrTxCommitted is returned by the precheck when the tx is already on the chain
	ErrTxCommitted = errors.New("tx already committed")
	ErrInvalidTx   = errors.New("invalid tx")
)
