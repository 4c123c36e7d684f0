package state

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"shardbft/mempool"
	"shardbft/privval"
	"shardbft/slot/mock"
	"shardbft/types"
)

// ----- utility func -----

type testNet struct {
	chain   *Blockchain
	clock   *mock.Clock
	signers map[string]types.Signer
	keys    []types.PubKey
}

func newTestNet(t *testing.T, n int) *testNet {
	signers := make(map[string]types.Signer, n)
	keys := make([]types.PubKey, n)
	for i := 0; i < n; i++ {
		pv := privval.GenFilePVWithSeed("", []byte(fmt.Sprintf("state-test-%d", i)))
		keys[i] = pv.PubKey()
		signers[types.KeyString(pv.PubKey())] = pv
	}
	clock := mock.NewClock(time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC))
	chain := NewBlockchain("shard-0", types.NewValidatorSetFromKeys(keys), privval.Ed25519Verifier{},
		SetBlockchainClock(clock))
	chain.SetLogger(log.TestingLogger())
	return &testNet{chain: chain, clock: clock, signers: signers, keys: keys}
}

func (tn *testNet) proposer(hint int64) types.Signer {
	pub, _ := tn.chain.GetProposer(hint)
	return tn.signers[types.KeyString(pub)]
}

func (tn *testNet) nonProposer(hint int64) types.Signer {
	pub, _ := tn.chain.GetProposer(hint)
	for _, key := range tn.keys {
		if !types.PubKeyEqual(key, pub) {
			return tn.signers[types.KeyString(key)]
		}
	}
	return nil
}

// propose 由合法的proposer在previous之后出块
func (tn *testNet) propose(t *testing.T, previous *types.Block, data string) *types.Block {
	if previous == nil {
		previous = tn.chain.Tip()
	}
	tx, err := types.NewTransaction([]byte(data), tn.proposer(previous.SequenceNo+1))
	require.NoError(t, err)
	block, err := tn.chain.CreateBlock(types.Txs{tx}, tn.proposer(previous.SequenceNo+1), previous)
	require.NoError(t, err)
	return block
}

type voteList map[string][]types.Vote

func (vl voteList) GetList(hash []byte) []types.Vote {
	return vl[types.KeyString(hash)]
}

// ----- tests -----

func TestGenesis(t *testing.T) {
	tn := newTestNet(t, 4)
	assert.Equal(t, 1, tn.chain.Height())
	assert.True(t, tn.chain.Tip().IsGenesis())
	assert.Equal(t, int64(0), tn.chain.Tip().SequenceNo)

	blocks, txs := tn.chain.GetTotal()
	assert.Equal(t, 0, blocks)
	assert.Equal(t, 0, txs)
}

func TestGetProposerRotation(t *testing.T) {
	tn := newTestNet(t, 4)

	_, idx := tn.chain.GetProposer(1)
	assert.Equal(t, int(types.GenesisHash[0])%4, idx)

	// 同样的参考区块和分钟，结果一样
	_, again := tn.chain.GetProposer(1)
	assert.Equal(t, idx, again)

	// 每过一分钟轮换到下一个
	tn.clock.Advance(time.Minute)
	_, next := tn.chain.GetProposer(1)
	assert.Equal(t, (idx+1)%4, next)

	// 超出范围的hint使用链尾
	_, fallback := tn.chain.GetProposer(100)
	assert.Equal(t, next, fallback)
}

func TestGetProposerReferenceBlock(t *testing.T) {
	tn := newTestNet(t, 4)
	pool := NewBlockPool()

	b1 := tn.propose(t, nil, "b1")
	pool.Add(b1, PrimaryBucket)
	_, err := tn.chain.AddUpdatedBlock(b1.Hash, pool, voteList{}, voteList{})
	require.NoError(t, err)

	_, viaGenesis := tn.chain.GetProposer(1)
	_, viaB1 := tn.chain.GetProposer(2)
	assert.Equal(t, int(types.GenesisHash[0])%4, viaGenesis)
	assert.Equal(t, int(b1.Hash[0])%4, viaB1)

	_, viaTip := tn.chain.GetProposer(0)
	assert.Equal(t, viaB1, viaTip)

	assert.True(t, tn.chain.BlockAt(0).IsGenesis())
	assert.Equal(t, b1.Hash, tn.chain.BlockAt(1).Hash)
	assert.Nil(t, tn.chain.BlockAt(2))
	assert.Nil(t, tn.chain.BlockAt(-1))
}

func TestValidateBlock(t *testing.T) {
	tn := newTestNet(t, 4)
	genesis := tn.chain.Tip()
	valid := tn.propose(t, nil, "valid")

	skipped := valid.Copy()
	skipped.SequenceNo = 2

	broken := valid.Copy()
	broken.LastHash = []byte("not-the-genesis")

	tampered := valid.Copy()
	other, err := types.NewTransaction([]byte("other"), tn.proposer(1))
	require.NoError(t, err)
	tampered.Data = types.Txs{other}

	badSig := valid.Copy()
	badSig.Signature = append([]byte(nil), valid.Signature...)
	badSig.Signature[0] ^= 0xff

	wrongProposer, err := tn.chain.CreateBlock(valid.Data, tn.nonProposer(1), genesis)
	require.NoError(t, err)

	outsider := privval.GenFilePVWithSeed("", []byte("outsider"))
	unknown, err := tn.chain.CreateBlock(valid.Data, outsider, genesis)
	require.NoError(t, err)

	cases := []struct {
		name  string
		block *types.Block
		err   error
	}{
		{"valid", valid, nil},
		{"skipped sequence", skipped, ErrSkippedSequence},
		{"broken link", broken, ErrBrokenLink},
		{"wrong hash", tampered, ErrWrongHash},
		{"bad signature", badSig, ErrInvalidSignature},
		{"wrong proposer", wrongProposer, ErrWrongProposer},
		{"unknown proposer", unknown, ErrUnknownProposer},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := tn.chain.ValidateBlock(tc.block, tc.block.SequenceNo, genesis)
			if tc.err == nil {
				assert.NoError(t, err)
				assert.True(t, tn.chain.IsValidBlock(tc.block, tc.block.SequenceNo, nil))
				return
			}
			assert.True(t, errors.Is(err, tc.err), "expected %v, got %v", tc.err, err)
			assert.False(t, tn.chain.IsValidBlock(tc.block, tc.block.SequenceNo, genesis))
		})
	}
}

func TestAddUpdatedBlock(t *testing.T) {
	tn := newTestNet(t, 4)
	pool := NewBlockPool()

	b1 := tn.propose(t, nil, "b1")
	b2 := tn.propose(t, b1, "b2")

	prepares := voteList{types.KeyString(b1.Hash): {{BlockHash: b1.Hash, PublicKey: tn.keys[0], Signature: []byte("p")}}}
	commits := voteList{types.KeyString(b1.Hash): {{BlockHash: b1.Hash, PublicKey: tn.keys[1], Signature: []byte("c")}}}

	_, err := tn.chain.AddUpdatedBlock(b1.Hash, pool, prepares, commits)
	assert.Equal(t, ErrCandidateMissing, err)

	// b2先达成quorum，前驱还没有提交
	pool.Add(b2, PrimaryBucket)
	_, err = tn.chain.AddUpdatedBlock(b2.Hash, pool, voteList{}, voteList{})
	assert.Equal(t, ErrPredecessorMissing, err)

	pool.Add(b1, PrimaryBucket)
	appended, err := tn.chain.AddUpdatedBlock(b1.Hash, pool, prepares, commits)
	require.NoError(t, err)
	assert.Len(t, appended.PrepareMessages, 1)
	assert.Len(t, appended.CommitMessages, 1)
	assert.True(t, tn.chain.IsCommittedTx(b1.Data[0].ID))
	assert.Equal(t, mempool.ErrTxCommitted, tn.chain.CheckTx(b1.Data[0]))

	_, err = tn.chain.AddUpdatedBlock(b1.Hash, pool, prepares, commits)
	assert.Equal(t, ErrAlreadyCommitted, err)

	_, err = tn.chain.AddUpdatedBlock(b2.Hash, pool, voteList{}, voteList{})
	require.NoError(t, err)

	// 和b2冲突的区块
	b2x := tn.propose(t, b1, "b2x")
	pool.Add(b2x, PrimaryBucket)
	_, err = tn.chain.AddUpdatedBlock(b2x.Hash, pool, voteList{}, voteList{})
	assert.Equal(t, ErrConflictingBlock, err)

	// 链接关系
	blocks := tn.chain.Blocks()
	require.Len(t, blocks, 3)
	for i := 1; i < len(blocks); i++ {
		assert.Equal(t, blocks[i-1].Hash, blocks[i].LastHash)
		assert.Equal(t, blocks[i-1].SequenceNo+1, blocks[i].SequenceNo)
	}

	total, txs := tn.chain.GetTotal()
	assert.Equal(t, 2, total)
	assert.Equal(t, 2, txs)
	assert.Equal(t, 2, tn.chain.GetRate())

	tn.clock.Advance(2 * time.Minute)
	assert.Equal(t, 0, tn.chain.GetRate())
}

func TestReconcileWaitsForCandidate(t *testing.T) {
	tn := newTestNet(t, 4)
	pool := NewBlockPool()
	b1 := tn.propose(t, nil, "late")

	attempts := 0
	block, err := Reconcile(context.Background(), NewLinearBackoff(time.Millisecond, 10),
		func(ctx context.Context) (*types.Block, error) {
			attempts++
			if attempts == 3 {
				pool.Add(b1, PrimaryBucket)
			}
			return tn.chain.AddUpdatedBlock(b1.Hash, pool, voteList{}, voteList{})
		})
	require.NoError(t, err)
	assert.Equal(t, b1.Hash, block.Hash)
	assert.Equal(t, 3, attempts)
}

func TestReconcileGivesUp(t *testing.T) {
	attempts := 0
	_, err := Reconcile(context.Background(), NewLinearBackoff(time.Millisecond, 5),
		func(ctx context.Context) (*types.Block, error) {
			attempts++
			return nil, ErrPredecessorMissing
		})
	assert.Equal(t, ErrReconcileTimeout, err)
	assert.Equal(t, 5, attempts)
}

func TestReconcileStopsOnPermanentError(t *testing.T) {
	attempts := 0
	_, err := Reconcile(context.Background(), NewLinearBackoff(time.Millisecond, 5),
		func(ctx context.Context) (*types.Block, error) {
			attempts++
			return nil, ErrConflictingBlock
		})
	assert.Equal(t, ErrConflictingBlock, err)
	assert.Equal(t, 1, attempts)
}

func TestReconcileCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		_, err := Reconcile(ctx, NewLinearBackoff(time.Hour, 5),
			func(ctx context.Context) (*types.Block, error) {
				return nil, ErrCandidateMissing
			})
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		assert.Equal(t, context.Canceled, err)
	case <-time.After(5 * time.Second):
		t.Fatal("reconcile did not stop after cancel")
	}
}
