package state

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"shardbft/config"
	"shardbft/mempool"
	"shardbft/privval"
	"shardbft/types"
)

type memStore struct {
	blocks map[string][]*types.Block
	err    error
}

func (ms *memStore) SaveBlock(shardID string, block *types.Block) error {
	if ms.err != nil {
		return ms.err
	}
	ms.blocks[shardID] = append(ms.blocks[shardID], block)
	return nil
}

func (ms *memStore) LoadBlock(shardID string, seq int64) (*types.Block, error) {
	for _, b := range ms.blocks[shardID] {
		if b.SequenceNo == seq {
			return b, nil
		}
	}
	return nil, errors.New("not found")
}

func (ms *memStore) LastSequence(shardID string) (int64, error) {
	blocks := ms.blocks[shardID]
	if len(blocks) == 0 {
		return -1, nil
	}
	return blocks[len(blocks)-1].SequenceNo, nil
}

func newTestExecutor(t *testing.T, threshold int) (*testNet, *mempool.TransactionPool, *memStore, BlockExecutor) {
	tn := newTestNet(t, 4)
	mem := mempool.NewTransactionPool(config.TestMempoolConfig(), threshold, privval.Ed25519Verifier{},
		mempool.SetClock(tn.clock), mempool.SetPreCheck(tn.chain.CheckTx))
	mem.SetLogger(log.TestingLogger())
	store := &memStore{blocks: make(map[string][]*types.Block)}
	exec := NewBlockExecutor(tn.chain, mem, store)
	exec.SetLogger(log.TestingLogger())
	return tn, mem, store, exec
}

func TestCreateProposal(t *testing.T) {
	tn, mem, _, exec := newTestExecutor(t, 2)

	_, err := exec.CreateProposal(tn.proposer(1), nil)
	assert.Equal(t, ErrEmptyProposal, err)

	signer := privval.GenFilePVWithSeed("", []byte("client"))
	for i := 0; i < 3; i++ {
		tx, err := types.NewTransaction([]byte{byte(i)}, signer)
		require.NoError(t, err)
		require.NoError(t, mem.Add(tx))
	}

	block, err := exec.CreateProposal(tn.proposer(1), nil)
	require.NoError(t, err)
	assert.Len(t, block.Data, 2, "a proposal never exceeds the threshold")
	assert.NoError(t, tn.chain.ValidateBlock(block, block.SequenceNo, nil))

	// 提案里的交易已经分配给区块
	assert.Equal(t, 1, mem.Size())
	assigned, ok := mem.Assigned(block.Hash)
	require.True(t, ok)
	assert.Len(t, assigned, 2)
}

func TestApplyBlock(t *testing.T) {
	tn, mem, store, exec := newTestExecutor(t, 10)
	pool := NewBlockPool()

	signer := privval.GenFilePVWithSeed("", []byte("client"))
	txs := make(types.Txs, 3)
	for i := range txs {
		tx, err := types.NewTransaction([]byte{byte(i)}, signer)
		require.NoError(t, err)
		require.NoError(t, mem.Add(tx))
		txs[i] = tx
	}

	block, err := exec.CreateProposal(tn.proposer(1), nil)
	require.NoError(t, err)
	pool.Add(block, PrimaryBucket)

	appended, err := tn.chain.AddUpdatedBlock(block.Hash, pool, voteList{}, voteList{})
	require.NoError(t, err)
	require.NoError(t, exec.ApplyBlock(appended))

	last, err := store.LastSequence(tn.chain.ShardID())
	require.NoError(t, err)
	assert.Equal(t, int64(1), last)

	// 已提交的交易不能再进入交易池
	mem.Clear(block.Hash, block.Data)
	assert.Equal(t, mempool.ErrTxCommitted, mem.Add(txs[0]))

	store.err = errors.New("disk full")
	assert.Error(t, exec.ApplyBlock(appended))
}

func TestBlockPool(t *testing.T) {
	tn := newTestNet(t, 4)
	pool := NewBlockPool()
	b := tn.propose(t, nil, "pooled")

	assert.Nil(t, pool.Get(b.Hash, PrimaryBucket))
	pool.Add(b, CommitteeBucket)
	assert.False(t, pool.Exists(b, PrimaryBucket))
	assert.True(t, pool.Exists(b, CommitteeBucket))
	assert.Equal(t, 1, pool.Size(CommitteeBucket))

	// 重复添加是幂等的
	pool.Add(b, PrimaryBucket)
	pool.Add(b, PrimaryBucket)
	assert.Equal(t, 1, pool.Size(PrimaryBucket))
	assert.Equal(t, b, pool.Get(b.Hash, PrimaryBucket))
	assert.Len(t, pool.Blocks(PrimaryBucket), 1)

	pool.Remove(b.Hash, PrimaryBucket)
	assert.False(t, pool.ExistsByHash(b.Hash, PrimaryBucket))
	assert.True(t, pool.ExistsByHash(b.Hash, CommitteeBucket))
}
