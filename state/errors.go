package state

import "errors"

var (
	ErrSkippedSequence  = errors.New("block sequence does not follow its predecessor")
	ErrBrokenLink       = errors.New("block last hash does not match its predecessor")
	ErrWrongHash        = errors.New("block hash does not match its content")
	ErrInvalidSignature = errors.New("block signature verification failed")
	ErrWrongProposer    = errors.New("block proposer is not the expected proposer")
	ErrUnknownProposer  = errors.New("block proposer is not a validator of this shard")
	ErrEmptyProposal    = errors.New("no txs to propose")

	// 对账时区块或者前驱还没有到达，可以重试
	ErrCandidateMissing   = errors.New("candidate block not in block pool yet")
	ErrPredecessorMissing = errors.New("predecessor not committed yet")

	// 对账时发现同一个位置已经有其他区块，不可重试
	ErrConflictingBlock = errors.New("another block already committed at this sequence")
	ErrAlreadyCommitted = errors.New("block already committed")
	ErrReconcileTimeout = errors.New("block reconciliation gave up")
)

// IsRetryable 对账失败时是否值得重试
func IsRetryable(err error) bool {
	return errors.Is(err, ErrCandidateMissing) || errors.Is(err, ErrPredecessorMissing)
}
