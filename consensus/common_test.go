package consensus

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log/term"
	"github.com/stretchr/testify/require"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/p2p"
	tmdb "github.com/tendermint/tm-db"

	"shardbft/config"
	"shardbft/mempool"
	"shardbft/privval"
	"shardbft/slot/mock"
	"shardbft/state"
	"shardbft/store"
	"shardbft/types"
)

const testShardID = "shard-0"

// consensusLogger 按validator给日志上色，多个节点的日志交织时容易区分
func consensusLogger() log.Logger {
	return log.TestingLoggerWithColorFn(func(keyvals ...interface{}) term.FgBgColor {
		for i := 0; i < len(keyvals)-1; i += 2 {
			if v, ok := keyvals[i+1].(int); ok && keyvals[i] == "validator" {
				return term.FgBgColor{Fg: term.Color(uint8(v%7 + 1))}
			}
		}
		return term.FgBgColor{}
	}).With("module", "consensus")
}

// 所有节点共享同一个时钟，proposer轮换才是确定的
var testGenesisTime = time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)

// ----- utility func -----

// 生成指定数量的validator，返回私钥和验证者集合
func newTestValidators(n int) ([]*privval.FilePV, *types.ValidatorSet) {
	pvs := make([]*privval.FilePV, n)
	keys := make([]types.PubKey, n)
	for i := 0; i < n; i++ {
		pvs[i] = privval.GenFilePVWithSeed("", []byte(fmt.Sprintf("consensus-test-%d", i)))
		keys[i] = pvs[i].PubKey()
	}
	return pvs, types.NewValidatorSetFromKeys(keys)
}

func newConsensusState(
	pv types.Signer,
	vals *types.ValidatorSet,
	clock *mock.Clock,
	cfg *config.ConsensusConfig,
	transport Transport,
	logger log.Logger,
) (*ConsensusState, *mempool.TransactionPool) {
	verifier := privval.Ed25519Verifier{}

	chain := state.NewBlockchain(testShardID, vals, verifier, state.SetBlockchainClock(clock))
	chain.SetLogger(logger.With("module", "state"))

	mem := mempool.NewTransactionPool(config.TestMempoolConfig(), cfg.TransactionThreshold, verifier,
		mempool.SetClock(clock), mempool.SetPreCheck(chain.CheckTx))
	mem.SetLogger(logger.With("module", "mempool"))

	blockStore := store.NewKVStoreWithDB(tmdb.NewMemDB(), logger.With("module", "store"))
	blockExec := state.NewBlockExecutor(chain, mem, blockStore)
	blockExec.SetLogger(logger.With("module", "executor"))

	cs := NewConsensusState(cfg, pv, verifier, chain, blockExec, mem, SetClock(clock), SetTransport(transport))
	cs.SetLogger(logger.With("module", "consensus"))
	return cs, mem
}

var testClient = privval.GenFilePVWithSeed("", []byte("consensus-test-client"))

func newTestTx(t *testing.T, data string) types.Transaction {
	tx, err := types.NewTransaction([]byte(data), testClient)
	require.NoError(t, err)
	return tx
}

// copyEnvelope 走一遍编解码，模拟网络传输
func copyEnvelope(env *types.Envelope) *types.Envelope {
	bz, err := tmjson.Marshal(env)
	if err != nil {
		panic(err)
	}
	out, err := decodeMsg(bz)
	if err != nil {
		panic(err)
	}
	return out
}

func isCoreBound(env *types.Envelope) bool {
	return env.Type == types.MsgBlockToCore || env.Type == types.MsgRateToCore
}

// ----- localNetwork -----
// 进程内的分片网络，消息异步投递，顺序不保证

type localNetwork struct {
	mtx sync.Mutex

	clock *mock.Clock
	pvs   []*privval.FilePV
	nodes []*ConsensusState
	mems  []*mempool.TransactionPool

	sent map[int][]*types.Envelope
	core []*types.Envelope
}

type localTransport struct {
	net  *localNetwork
	from int
}

func newLocalNetwork(t *testing.T, n int, configure func(cfg *config.ConsensusConfig)) *localNetwork {
	pvs, vals := newTestValidators(n)
	ln := &localNetwork{
		clock: mock.NewClock(testGenesisTime),
		pvs:   pvs,
		sent:  make(map[int][]*types.Envelope),
	}
	for i := 0; i < n; i++ {
		cfg := config.TestConsensusConfig()
		if configure != nil {
			configure(cfg)
		}
		logger := consensusLogger().With("validator", i)
		cs, mem := newConsensusState(pvs[i], vals, ln.clock, cfg, &localTransport{net: ln, from: i}, logger)
		ln.nodes = append(ln.nodes, cs)
		ln.mems = append(ln.mems, mem)
	}
	return ln
}

func (ln *localNetwork) start(t *testing.T) {
	for _, cs := range ln.nodes {
		require.NoError(t, cs.Start())
	}
}

func (ln *localNetwork) stop() {
	for _, cs := range ln.nodes {
		_ = cs.Stop()
	}
}

// proposerIndex 所有节点的链相同时，序号为hint的区块的proposer
func (ln *localNetwork) proposerIndex(hint int64) int {
	pub, _ := ln.nodes[0].Chain().GetProposer(hint)
	for i, pv := range ln.pvs {
		if types.PubKeyEqual(pv.PubKey(), pub) {
			return i
		}
	}
	return -1
}

func (ln *localNetwork) count(from int, msgType types.MsgType) int {
	ln.mtx.Lock()
	defer ln.mtx.Unlock()
	n := 0
	for _, env := range ln.sent[from] {
		if env.Type == msgType {
			n++
		}
	}
	return n
}

// ownVotes 节点from发出的、由它自己签名的投票数量，不含转发的
func (ln *localNetwork) ownVotes(from int, msgType types.MsgType) int {
	ln.mtx.Lock()
	defer ln.mtx.Unlock()
	n := 0
	for _, env := range ln.sent[from] {
		if env.Type == msgType && types.PubKeyEqual(env.Vote.PublicKey, ln.pvs[from].PubKey()) {
			n++
		}
	}
	return n
}

func (ln *localNetwork) coreMessages(msgType types.MsgType) []*types.Envelope {
	ln.mtx.Lock()
	defer ln.mtx.Unlock()
	var envs []*types.Envelope
	for _, env := range ln.core {
		if env.Type == msgType {
			envs = append(envs, env)
		}
	}
	return envs
}

func (lt *localTransport) Broadcast(env *types.Envelope) {
	ln := lt.net
	ln.mtx.Lock()
	ln.sent[lt.from] = append(ln.sent[lt.from], env)
	if isCoreBound(env) {
		ln.core = append(ln.core, copyEnvelope(env))
		ln.mtx.Unlock()
		return
	}
	nodes := ln.nodes
	ln.mtx.Unlock()

	peerID := p2p.ID(fmt.Sprintf("node-%d", lt.from))
	for i, cs := range nodes {
		if i == lt.from {
			continue
		}
		go cs.Deliver(copyEnvelope(env), peerID)
	}
}

// ----- testNode -----
// 只运行一个节点，其他验证者的消息由测试直接构造

type recordTransport struct {
	mtx  sync.Mutex
	envs []*types.Envelope
}

func (rt *recordTransport) Broadcast(env *types.Envelope) {
	rt.mtx.Lock()
	rt.envs = append(rt.envs, env)
	rt.mtx.Unlock()
}

func (rt *recordTransport) count(msgType types.MsgType) int {
	return len(rt.filter(msgType))
}

func (rt *recordTransport) filter(msgType types.MsgType) []*types.Envelope {
	rt.mtx.Lock()
	defer rt.mtx.Unlock()
	var envs []*types.Envelope
	for _, env := range rt.envs {
		if env.Type == msgType {
			envs = append(envs, env)
		}
	}
	return envs
}

type testNode struct {
	cs    *ConsensusState
	mem   *mempool.TransactionPool
	clock *mock.Clock
	pvs   []*privval.FilePV
	self  int
	out   *recordTransport
}

// newTestNode asProposer决定本节点是不是第一个区块的proposer
func newTestNode(t *testing.T, asProposer bool, configure func(cfg *config.ConsensusConfig)) *testNode {
	pvs, vals := newTestValidators(4)
	clock := mock.NewClock(testGenesisTime)

	ref := state.NewBlockchain(testShardID, vals, privval.Ed25519Verifier{}, state.SetBlockchainClock(clock))
	pub, _ := ref.GetProposer(1)
	self := -1
	for i, pv := range pvs {
		if types.PubKeyEqual(pv.PubKey(), pub) == asProposer {
			self = i
			break
		}
	}
	require.NotEqual(t, -1, self)

	cfg := config.TestConsensusConfig()
	if configure != nil {
		configure(cfg)
	}
	out := &recordTransport{}
	cs, mem := newConsensusState(pvs[self], vals, clock, cfg, out, log.TestingLogger())
	return &testNode{cs: cs, mem: mem, clock: clock, pvs: pvs, self: self, out: out}
}

func (tn *testNode) start(t *testing.T) {
	require.NoError(t, tn.cs.Start())
}

func (tn *testNode) stop() {
	_ = tn.cs.Stop()
}

func (tn *testNode) deliver(env *types.Envelope) {
	tn.cs.Deliver(copyEnvelope(env), "peer")
}

// sync 等待receiveRoutine执行完之前投递到eventQueue的操作
func (tn *testNode) sync(t *testing.T) {
	done := make(chan struct{})
	require.True(t, tn.cs.runInLoop(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("receive routine did not catch up")
	}
}

// fireInactivity 等交易处理完之后让inactivity定时器到期
func (tn *testNode) fireInactivity(t *testing.T, received int) {
	require.Eventually(t, func() bool { return tn.out.count(types.MsgTransaction) == received }, waitFor, tick)
	tn.sync(t)
	tn.clock.Advance(tn.cs.config.InactivityTimeout)
	tn.sync(t)
}

// peers 除本节点之外的验证者下标
func (tn *testNode) peers() []int {
	var idx []int
	for i := range tn.pvs {
		if i != tn.self {
			idx = append(idx, i)
		}
	}
	return idx
}

func (tn *testNode) signerOf(pub types.PubKey) types.Signer {
	for _, pv := range tn.pvs {
		if types.PubKeyEqual(pv.PubKey(), pub) {
			return pv
		}
	}
	return nil
}

// propose 由合法的proposer在previous之后出块
func (tn *testNode) propose(t *testing.T, previous *types.Block, data ...string) *types.Block {
	pub, _ := tn.cs.Chain().GetProposer(previous.SequenceNo + 1)
	txs := make(types.Txs, 0, len(data))
	for _, d := range data {
		txs = append(txs, newTestTx(t, d))
	}
	block, err := tn.cs.Chain().CreateBlock(txs, tn.signerOf(pub), previous)
	require.NoError(t, err)
	return block
}

func (tn *testNode) vote(t *testing.T, i int, msgType types.MsgType, hash []byte) *types.Envelope {
	pool := tn.cs.prepares
	if msgType == types.MsgCommit {
		pool = tn.cs.commits
	}
	vote, err := pool.Create(hash, tn.pvs[i])
	require.NoError(t, err)
	return types.NewVoteEnvelope(msgType, vote)
}

func (tn *testNode) roundChange(t *testing.T, i int, block *types.Block) *types.Envelope {
	rc, err := tn.cs.roundChanges.Create(block, tn.pvs[i])
	require.NoError(t, err)
	return types.NewRoundChangeEnvelope(rc)
}

// commitBlock 模拟另外两个验证者完成prepare和commit，等待区块上链
func (tn *testNode) commitBlock(t *testing.T, block *types.Block) {
	tn.deliver(types.NewBlockEnvelope(types.MsgPrePrepare, block))
	peers := tn.peers()[:2]
	for _, i := range peers {
		tn.deliver(tn.vote(t, i, types.MsgPrepare, block.Hash))
	}
	for _, i := range peers {
		tn.deliver(tn.vote(t, i, types.MsgCommit, block.Hash))
	}
	require.Eventually(t, func() bool {
		return tn.cs.Chain().HasBlock(block.Hash)
	}, 5*time.Second, 10*time.Millisecond)
}
