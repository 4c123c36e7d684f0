package types

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/tmhash"

	"shardbft/privval"
	"shardbft/types"
)

func makeSigners(n int) []types.Signer {
	signers := make([]types.Signer, n)
	for i := range signers {
		signers[i] = privval.GenFilePVWithSeed("", []byte(fmt.Sprintf("vote-pool-%d", i)))
	}
	return signers
}

func TestVotePoolIdempotence(t *testing.T) {
	pool := NewPreparePool(privval.Ed25519Verifier{})
	signers := makeSigners(2)
	hash := tmhash.Sum([]byte("block"))

	vote, err := pool.Create(hash, signers[0])
	require.NoError(t, err)
	assert.True(t, pool.IsValid(vote))
	assert.False(t, pool.Exists(vote))

	require.NoError(t, pool.Add(vote))
	assert.Equal(t, ErrDuplicateVote, pool.Add(vote))
	assert.Equal(t, 1, pool.Count(hash))

	// 同一个公钥换一个签名也算重复
	forged := vote
	forged.Signature = []byte("different")
	assert.True(t, pool.Exists(forged))
	assert.Equal(t, ErrDuplicateVote, pool.Add(forged))
	assert.Equal(t, 1, pool.Count(hash))

	other, err := pool.Create(hash, signers[1])
	require.NoError(t, err)
	require.NoError(t, pool.Add(other))
	assert.Len(t, pool.GetList(hash), 2)
	assert.Nil(t, pool.GetList(tmhash.Sum([]byte("nothing"))))
}

func TestVotePoolSignatureKinds(t *testing.T) {
	prepares := NewPreparePool(privval.Ed25519Verifier{})
	commits := NewCommitPool(privval.Ed25519Verifier{})
	signer := makeSigners(1)[0]
	hash := tmhash.Sum([]byte("block"))

	prepare, err := prepares.Create(hash, signer)
	require.NoError(t, err)
	commit, err := commits.Create(hash, signer)
	require.NoError(t, err)

	assert.True(t, prepares.IsValid(prepare))
	assert.True(t, commits.IsValid(commit))
	// prepare的签名不能当作commit使用
	assert.False(t, commits.IsValid(prepare))
	assert.False(t, prepares.IsValid(commit))

	wrongHash := prepare
	wrongHash.BlockHash = tmhash.Sum([]byte("other"))
	assert.False(t, prepares.IsValid(wrongHash))

	empty := prepare
	empty.Signature = nil
	assert.False(t, prepares.IsValid(empty))
}

func TestQuorumMonotonicity(t *testing.T) {
	const n = 7
	minApprovals := types.MinApprovals(n)
	signers := makeSigners(n)
	hash := tmhash.Sum([]byte("block"))
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 20; round++ {
		pool := NewCommitPool(privval.Ed25519Verifier{})
		distinct := make(map[string]struct{})

		for step := 0; step < 3*n; step++ {
			signer := signers[rng.Intn(n)]
			vote, err := pool.Create(hash, signer)
			require.NoError(t, err)
			if rng.Intn(4) == 0 {
				// 无效签名的投票不会被加入
				vote.Signature = []byte("bad")
			}

			if pool.IsValid(vote) {
				if pool.Add(vote) == nil {
					distinct[types.KeyString(vote.PublicKey)] = struct{}{}
				}
			}
			assert.Equal(t, len(distinct) >= minApprovals, pool.HasQuorum(hash, minApprovals),
				"round %d step %d: %d distinct votes", round, step, len(distinct))
			assert.Equal(t, len(distinct), pool.Count(hash))
		}
	}
}

func TestVotePoolPrune(t *testing.T) {
	pool := NewPreparePool(privval.Ed25519Verifier{})
	signer := makeSigners(1)[0]
	hash := tmhash.Sum([]byte("block"))

	vote, err := pool.Create(hash, signer)
	require.NoError(t, err)
	require.NoError(t, pool.Add(vote))
	assert.Equal(t, 1, pool.Size())

	pool.Prune(hash)
	assert.Equal(t, 0, pool.Size())
	assert.False(t, pool.Exists(vote))
	assert.False(t, pool.HasQuorum(hash, 1))
	assert.False(t, pool.HasQuorum(hash, 0), "a zero threshold never counts as quorum")
}

func TestRoundChangePool(t *testing.T) {
	pool := NewRoundChangePool(privval.Ed25519Verifier{})
	signers := makeSigners(4)
	signer := signers[0]
	tx, err := types.NewTransaction([]byte("tx"), signer)
	require.NoError(t, err)
	block := &types.Block{Hash: tmhash.Sum([]byte("block")), Data: types.Txs{tx}}

	rc, err := pool.Create(block, signer)
	require.NoError(t, err)
	assert.Equal(t, types.RoundChangeTag, rc.Message)
	assert.Len(t, rc.Data, 1)
	assert.True(t, pool.IsValid(rc))

	require.NoError(t, pool.Add(rc))
	assert.Equal(t, ErrDuplicateVote, pool.Add(rc))

	wrongTag := rc
	wrongTag.Message = "NEW ROUND"
	assert.False(t, pool.IsValid(wrongTag))

	for _, s := range signers[1:3] {
		other, err := pool.Create(block, s)
		require.NoError(t, err)
		require.NoError(t, pool.Add(other))
	}
	assert.True(t, pool.HasQuorum(block.Hash, types.MinApprovals(4)))
	assert.Len(t, pool.GetList(block.Hash), 3)

	pool.Prune(block.Hash)
	assert.Equal(t, 0, pool.Size())
}

func TestPhaseTracker(t *testing.T) {
	pt := NewPhaseTracker()
	assert.Equal(t, PhaseNone, pt.Get("a"))
	assert.True(t, pt.Advance("a", PhaseProposed))
	assert.False(t, pt.Advance("a", PhaseProposed))
	assert.True(t, pt.Advance("a", PhaseCommitted))
	assert.False(t, pt.Advance("a", PhasePrepared), "phases never move backwards")
	assert.Equal(t, "Committed", pt.Get("a").String())
	pt.Delete("a")
	assert.Equal(t, 0, pt.Size())
}
