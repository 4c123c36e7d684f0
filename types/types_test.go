package types_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shardbft/privval"
	"shardbft/types"
)

var verifier = privval.Ed25519Verifier{}

func TestMinApprovals(t *testing.T) {
	testCases := []struct {
		n, quorum, faulty int
	}{
		{0, 0, 0},
		{1, 1, 0},
		{2, 2, 0},
		{3, 2, 0},
		{4, 3, 1},
		{5, 4, 1},
		{6, 4, 1},
		{7, 5, 2},
		{10, 7, 3},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.quorum, types.MinApprovals(tc.n), "n=%d", tc.n)
		assert.Equal(t, tc.faulty, types.MaxFaulty(tc.n), "n=%d", tc.n)
	}
}

func TestVerifyTx(t *testing.T) {
	client := privval.GenFilePVWithSeed("", []byte("types-test-client"))
	other := privval.GenFilePVWithSeed("", []byte("types-test-other"))

	tx, err := types.NewTransaction([]byte("transfer 10"), client)
	require.NoError(t, err)
	assert.True(t, types.VerifyTx(tx, verifier))

	tampered := tx
	tampered.Input.Data = []byte("transfer 1000")
	assert.False(t, types.VerifyTx(tampered, verifier))

	// hash重新计算后签名对不上
	tampered.Hash = tampered.Input.Hash()
	assert.False(t, types.VerifyTx(tampered, verifier))

	wrongSender := tx
	wrongSender.From = other.PubKey()
	assert.False(t, types.VerifyTx(wrongSender, verifier))

	noSig := tx
	noSig.Signature = nil
	assert.Equal(t, types.ErrTxNoSignature, noSig.ValidateBasic())
	assert.False(t, types.VerifyTx(noSig, verifier))
}

func TestVoteSignHash(t *testing.T) {
	blockHash := []byte("block")
	prepare := types.VoteSignHash(types.PrepareVote, blockHash)
	commit := types.VoteSignHash(types.CommitVote, blockHash)
	assert.NotEqual(t, prepare, commit)
	assert.Equal(t, prepare, types.VoteSignHash(types.PrepareVote, blockHash))
	assert.NotEqual(t, prepare, types.VoteSignHash(types.PrepareVote, []byte("other")))
}

func TestComputeBlockHash(t *testing.T) {
	client := privval.GenFilePVWithSeed("", []byte("types-test-client"))
	tx, err := types.NewTransaction([]byte("a"), client)
	require.NoError(t, err)

	ts := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	h := types.ComputeBlockHash(ts, types.GenesisHash, types.Txs{tx})
	assert.Equal(t, h, types.ComputeBlockHash(ts, types.GenesisHash, types.Txs{tx}))
	assert.NotEqual(t, h, types.ComputeBlockHash(ts.Add(time.Nanosecond), types.GenesisHash, types.Txs{tx}))
	assert.NotEqual(t, h, types.ComputeBlockHash(ts, []byte("other"), types.Txs{tx}))
	assert.NotEqual(t, h, types.ComputeBlockHash(ts, types.GenesisHash, types.Txs{}))
}

func TestBlockCopy(t *testing.T) {
	client := privval.GenFilePVWithSeed("", []byte("types-test-client"))
	tx, err := types.NewTransaction([]byte("a"), client)
	require.NoError(t, err)

	b := &types.Block{
		Hash:            []byte("hash"),
		Data:            types.Txs{tx},
		PrepareMessages: []types.Vote{{BlockHash: []byte("hash")}},
	}
	cp := b.Copy()
	cp.Data[0].ID = "changed"
	cp.PrepareMessages[0].BlockHash = []byte("changed")
	assert.Equal(t, tx.ID, b.Data[0].ID)
	assert.Equal(t, "hash", string(b.PrepareMessages[0].BlockHash))
	assert.Nil(t, (*types.Block)(nil).Copy())

	genesis := types.MakeGenesisBlock()
	assert.True(t, genesis.IsGenesis())
	assert.Error(t, genesis.ValidateBasic(), "genesis carries no signature")
}

func TestEnvelopeValidateBasic(t *testing.T) {
	valid := []*types.Envelope{
		types.NewTxEnvelope(types.Transaction{}),
		types.NewBlockEnvelope(types.MsgPrePrepare, &types.Block{}),
		types.NewBlockEnvelope(types.MsgBlockFromCore, &types.Block{}),
		types.NewVoteEnvelope(types.MsgCommit, types.Vote{}),
		types.NewRoundChangeEnvelope(types.RoundChange{}),
		{Type: types.MsgRateToCore, Rate: &types.RateReport{}},
		{Type: types.MsgConfigFromCore, Config: &types.ShardConfig{}},
	}
	for _, env := range valid {
		assert.NoError(t, env.ValidateBasic(), env.String())
	}

	invalid := []*types.Envelope{
		nil,
		{Type: types.MsgTransaction},
		{Type: types.MsgPrePrepare, Vote: &types.Vote{}},
		{Type: types.MsgPrepare},
		{Type: types.MsgRoundChange},
		{Type: types.MsgRateToCore},
		{Type: types.MsgConfigFromCore},
		{Type: types.NumMsgTypes},
	}
	for i, env := range invalid {
		assert.Error(t, env.ValidateBasic(), "case %d", i)
	}

	assert.Equal(t, "PRE-PREPARE", types.MsgPrePrepare.String())
	assert.Equal(t, "UNKNOWN(42)", types.MsgType(42).String())
}

func TestGenesisDocSaveLoad(t *testing.T) {
	a := privval.GenFilePVWithSeedAndIdx("", 1, 0)
	b := privval.GenFilePVWithSeedAndIdx("", 1, 1)

	genDoc := &types.GenesisDoc{
		ShardID: "shard-7",
		Validators: []types.GenesisValidator{
			{PubKey: a.PubKey()},
			{PubKey: b.PubKey(), Name: "bob"},
		},
	}
	require.NoError(t, genDoc.ValidateAndComplete())
	assert.Equal(t, "validator-0", genDoc.Validators[0].Name)
	assert.False(t, genDoc.GenesisTime.IsZero())

	file := filepath.Join(t.TempDir(), "genesis.json")
	require.NoError(t, genDoc.SaveAs(file))
	loaded, err := types.GenesisDocFromFile(file)
	require.NoError(t, err)
	assert.Equal(t, genDoc.ShardID, loaded.ShardID)
	assert.Equal(t, genDoc.Validators, loaded.Validators)
	assert.True(t, genDoc.GenesisTime.Equal(loaded.GenesisTime))

	vals := loaded.ValidatorSet()
	assert.Equal(t, 2, vals.Size())
	assert.True(t, vals.IsValidValidator(b.PubKey()))
	idx, _ := vals.GetByPubKey(b.PubKey())
	assert.Equal(t, 1, idx)
	// 顺序与创世文件一致
	assert.Equal(t, []types.PubKey{a.PubKey(), b.PubKey()}, vals.List())

	assert.Error(t, (&types.GenesisDoc{ShardID: "x"}).ValidateAndComplete())
	assert.Error(t, (&types.GenesisDoc{Validators: genDoc.Validators}).ValidateAndComplete())

	_, err = types.GenesisDocFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
