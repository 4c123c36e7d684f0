package state

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	"github.com/tendermint/tendermint/libs/log"

	"shardbft/mempool"
	"shardbft/slot"
	"shardbft/types"
)

// VoteSource 按区块hash返回收集到的投票
type VoteSource interface {
	GetList(blockHash []byte) []types.Vote
}

// Blockchain 一个分片已经提交的区块序列，以创世块开头，只能追加
// 同时负责proposer轮换和区块校验
type Blockchain struct {
	mtx sync.RWMutex

	shardID    string
	validators *types.ValidatorSet
	verifier   types.Verifier
	clock      slot.Clock

	// chain[i].SequenceNo == i
	chain  []*types.Block
	hashes map[string]int64

	// 已提交交易的id -> 区块序号
	txIndex  map[string]int64
	totalTxs int

	// 区块提交时的本地时间，用来统计最近一分钟的吞吐
	commitTimes []commitRecord

	logger log.Logger
}

type commitRecord struct {
	at  time.Time
	txs int
}

type BlockchainOption func(*Blockchain)

func SetBlockchainClock(clock slot.Clock) BlockchainOption {
	return func(bc *Blockchain) {
		bc.clock = clock
	}
}

func NewBlockchain(
	shardID string,
	validators *types.ValidatorSet,
	verifier types.Verifier,
	options ...BlockchainOption,
) *Blockchain {
	genesis := types.MakeGenesisBlock()
	bc := &Blockchain{
		shardID:    shardID,
		validators: validators,
		verifier:   verifier,
		clock:      slot.SystemClock{},
		chain:      []*types.Block{genesis},
		hashes:     map[string]int64{genesis.Hash.String(): 0},
		txIndex:    make(map[string]int64),
		logger:     log.NewNopLogger(),
	}
	for _, opt := range options {
		opt(bc)
	}
	return bc
}

func (bc *Blockchain) SetLogger(logger log.Logger) {
	bc.logger = logger
}

func (bc *Blockchain) ShardID() string {
	return bc.shardID
}

func (bc *Blockchain) Validators() *types.ValidatorSet {
	return bc.validators
}

// Tip 返回最后提交的区块
func (bc *Blockchain) Tip() *types.Block {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	return bc.chain[len(bc.chain)-1]
}

// Height 包括创世块在内的区块数
func (bc *Blockchain) Height() int {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	return len(bc.chain)
}

// BlockAt 返回序号为seq的区块，不存在时返回nil
func (bc *Blockchain) BlockAt(seq int64) *types.Block {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	if seq < 0 || seq >= int64(len(bc.chain)) {
		return nil
	}
	return bc.chain[seq]
}

// BlockByHash 返回已提交的区块，不存在时返回nil
func (bc *Blockchain) BlockByHash(hash []byte) *types.Block {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	seq, ok := bc.hashes[tmbytes.HexBytes(hash).String()]
	if !ok {
		return nil
	}
	return bc.chain[seq]
}

func (bc *Blockchain) HasBlock(hash []byte) bool {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	_, ok := bc.hashes[tmbytes.HexBytes(hash).String()]
	return ok
}

// IsCommittedTx 交易是否已经在链上
func (bc *Blockchain) IsCommittedTx(id string) bool {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	_, ok := bc.txIndex[id]
	return ok
}

// CheckTx 作为交易池的precheck，拒绝已经提交的交易
func (bc *Blockchain) CheckTx(tx types.Transaction) error {
	if bc.IsCommittedTx(tx.ID) {
		return mempool.ErrTxCommitted
	}
	return nil
}

// CreateBlock 在previous之后生成一个新的区块并签名，previous为nil时接在链尾
func (bc *Blockchain) CreateBlock(txs types.Txs, signer types.Signer, previous *types.Block) (*types.Block, error) {
	if previous == nil {
		previous = bc.Tip()
	}

	block := &types.Block{
		Timestamp:  bc.clock.Now(),
		LastHash:   previous.Hash,
		Data:       txs.Copy(),
		Proposer:   signer.PubKey(),
		SequenceNo: previous.SequenceNo + 1,
	}
	block.Hash = types.ComputeBlockHash(block.Timestamp, block.LastHash, block.Data)

	sig, err := signer.Sign(block.Hash)
	if err != nil {
		return nil, errors.Wrap(err, "sign block")
	}
	block.Signature = sig
	return block, nil
}

// GetProposer 返回本轮的proposer和它在验证者集合中的下标
// 下标 = (参考区块hash的第一个字节 + 当前的分钟数) mod n
// 参考区块是序号为hint-1的已提交区块，不存在时使用链尾
func (bc *Blockchain) GetProposer(hint int64) (types.PubKey, int) {
	n := bc.validators.Size()
	if n == 0 {
		return nil, -1
	}

	ref := bc.BlockAt(hint - 1)
	if ref == nil {
		ref = bc.Tip()
	}

	var entropy int
	if len(ref.Hash) > 0 {
		entropy = int(ref.Hash[0])
	}
	idx := (entropy + bc.clock.Now().Minute()) % n
	return bc.validators.GetByIndex(idx).PubKey, idx
}

// IsProposer pubKey是否是当前的proposer
func (bc *Blockchain) IsProposer(pubKey types.PubKey, hint int64) bool {
	proposer, _ := bc.GetProposer(hint)
	return types.PubKeyEqual(proposer, pubKey)
}

// ValidateBlock 依次检查序号连续、hash链接、内容hash、签名和proposer
// previous为nil时以链尾作为前驱
func (bc *Blockchain) ValidateBlock(block *types.Block, hint int64, previous *types.Block) error {
	if err := block.ValidateBasic(); err != nil {
		return err
	}
	if previous == nil {
		previous = bc.Tip()
	}
	if previous.SequenceNo+1 != block.SequenceNo {
		return errors.Wrapf(ErrSkippedSequence, "expected %d, got %d", previous.SequenceNo+1, block.SequenceNo)
	}
	if !bytes.Equal(previous.Hash, block.LastHash) {
		return errors.Wrapf(ErrBrokenLink, "expected %v, got %v", previous.Hash, block.LastHash)
	}
	if !bytes.Equal(types.ComputeBlockHash(block.Timestamp, block.LastHash, block.Data), block.Hash) {
		return ErrWrongHash
	}
	if !bc.validators.IsValidValidator(block.Proposer) {
		return ErrUnknownProposer
	}
	if !bc.verifier.Verify(block.Proposer, block.Signature, block.Hash) {
		return ErrInvalidSignature
	}
	if proposer, idx := bc.GetProposer(hint); !types.PubKeyEqual(proposer, block.Proposer) {
		return errors.Wrapf(ErrWrongProposer, "expected #%d %v", idx, proposer)
	}
	return nil
}

// IsValidBlock 同ValidateBlock，失败时记录原因
func (bc *Blockchain) IsValidBlock(block *types.Block, hint int64, previous *types.Block) bool {
	if err := bc.ValidateBlock(block, hint, previous); err != nil {
		bc.logger.Debug("invalid block", "block", block, "reason", err)
		return false
	}
	return true
}

// AddUpdatedBlock 尝试把达成commit quorum的区块追加到链上
// 候选区块必须已经在BlockPool中，且前驱必须是当前的链尾，否则返回可以重试的错误
// 成功时把prepare/commit投票附在区块上
func (bc *Blockchain) AddUpdatedBlock(hash []byte, pool *BlockPool, prepares, commits VoteSource) (*types.Block, error) {
	if bc.HasBlock(hash) {
		return nil, ErrAlreadyCommitted
	}
	candidate := pool.Get(hash, PrimaryBucket)
	if candidate == nil {
		return nil, ErrCandidateMissing
	}

	bc.mtx.Lock()
	defer bc.mtx.Unlock()

	tip := bc.chain[len(bc.chain)-1]
	switch {
	case candidate.SequenceNo > tip.SequenceNo+1:
		return nil, ErrPredecessorMissing
	case candidate.SequenceNo <= tip.SequenceNo:
		return nil, ErrConflictingBlock
	case !bytes.Equal(tip.Hash, candidate.LastHash):
		if _, ok := bc.hashes[candidate.LastHash.String()]; ok {
			return nil, ErrConflictingBlock
		}
		return nil, ErrPredecessorMissing
	}

	block := candidate.Copy()
	block.PrepareMessages = prepares.GetList(hash)
	block.CommitMessages = commits.GetList(hash)

	bc.chain = append(bc.chain, block)
	bc.hashes[block.Hash.String()] = block.SequenceNo
	for _, tx := range block.Data {
		bc.txIndex[tx.ID] = block.SequenceNo
	}
	bc.totalTxs += len(block.Data)
	bc.commitTimes = append(bc.commitTimes, commitRecord{at: bc.clock.Now(), txs: len(block.Data)})
	bc.pruneCommitTimes()

	bc.logger.Info("appended block", "seq", block.SequenceNo, "hash", block.Hash, "txs", len(block.Data))
	return block, nil
}

// GetTotal 返回不含创世块的区块数和交易数
func (bc *Blockchain) GetTotal() (blocks int, txs int) {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	return len(bc.chain) - 1, bc.totalTxs
}

// GetRate 最近一分钟提交的交易数
func (bc *Blockchain) GetRate() int {
	bc.mtx.Lock()
	defer bc.mtx.Unlock()
	bc.pruneCommitTimes()
	n := 0
	for _, r := range bc.commitTimes {
		n += r.txs
	}
	return n
}

func (bc *Blockchain) pruneCommitTimes() {
	cutoff := bc.clock.Now().Add(-time.Minute)
	i := 0
	for i < len(bc.commitTimes) && bc.commitTimes[i].at.Before(cutoff) {
		i++
	}
	bc.commitTimes = bc.commitTimes[i:]
}

// Blocks 返回链的拷贝
func (bc *Blockchain) Blocks() []*types.Block {
	bc.mtx.RLock()
	defer bc.mtx.RUnlock()
	return append([]*types.Block(nil), bc.chain...)
}

func (bc *Blockchain) String() string {
	blocks, txs := bc.GetTotal()
	return fmt.Sprintf("Blockchain{shard:%s blocks:%d txs:%d tip:%v}", bc.shardID, blocks, txs, bc.Tip().Hash)
}
