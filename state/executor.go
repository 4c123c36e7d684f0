package state

import (
	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"

	"shardbft/mempool"
	"shardbft/types"
)

type BlockExecutor interface {
	// CreateProposal 按交易到达的顺序从mempool取出最多threshold个交易，
	// 在previous之后生成区块，并把交易分配给这个区块
	CreateProposal(signer types.Signer, previous *types.Block) (*types.Block, error)

	// ApplyBlock 区块追加到链上之后调用：归档区块，清理mempool中重复的提案
	ApplyBlock(block *types.Block) error

	SetLogger(logger log.Logger)
}

func NewBlockExecutor(chain *Blockchain, mempool mempool.Mempool, store Store) BlockExecutor {
	return &blockExecutor{
		chain:   chain,
		mempool: mempool,
		store:   store,
		logger:  log.NewNopLogger(),
	}
}

type blockExecutor struct {
	chain   *Blockchain
	mempool mempool.Mempool

	// 可以为nil，此时不归档
	store Store

	logger log.Logger
}

// SetLogger implements BlockExecutor
func (exec *blockExecutor) SetLogger(logger log.Logger) {
	exec.logger = logger
}

// CreateProposal implements BlockExecutor
func (exec *blockExecutor) CreateProposal(signer types.Signer, previous *types.Block) (*types.Block, error) {
	txs := exec.mempool.ReapMaxTxs(exec.mempool.Threshold())
	if len(txs) == 0 {
		return nil, ErrEmptyProposal
	}

	block, err := exec.chain.CreateBlock(txs, signer, previous)
	if err != nil {
		return nil, err
	}
	exec.mempool.Assign(block)

	exec.logger.Debug("created proposal", "block", block)
	return block, nil
}

// ApplyBlock implements BlockExecutor
func (exec *blockExecutor) ApplyBlock(block *types.Block) error {
	exec.mempool.RemoveDuplicates(block.Hash, block.Data)

	if exec.store == nil {
		return nil
	}
	if err := exec.store.SaveBlock(exec.chain.ShardID(), block); err != nil {
		return errors.Wrapf(err, "archive block #%d", block.SequenceNo)
	}
	return nil
}
