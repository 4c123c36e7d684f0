package consensus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	"github.com/tendermint/tendermint/p2p"

	"shardbft/config"
	cstypes "shardbft/consensus/types"
	"shardbft/mempool"
	"shardbft/slot"
	"shardbft/state"
	"shardbft/types"
)

const msgQueueSize = 1000

var (
	ErrKnownBlock        = errors.New("block already known")
	ErrUnknownValidator  = errors.New("signer is not a validator of this shard")
	ErrUnexpectedMessage = errors.New("message type is not accepted by the coordinator")
)

// ------ Event ------
// 其他模块可以订阅的共识事件
const (
	EventNewProposal    = "NewProposal"
	EventCommittedBlock = "CommittedBlock"
	EventRoundChanged   = "RoundChanged"
)

// Transport 协调器把消息交给传输层广播
// 不保证顺序，可能重复，reactor和测试中的localNetwork都实现了它
type Transport interface {
	Broadcast(env *types.Envelope)
}

// 共识状态机实现
// 一个节点的所有pool都只在receiveRoutine中修改，
// 定时器和对账任务通过eventQueue把要做的事情投递回来
type ConsensusState struct {
	service.BaseService

	config *config.ConsensusConfig

	signer   types.Signer
	pubKey   types.PubKey
	verifier types.Verifier

	// 本分片的链，负责校验和proposer轮换
	chain *state.Blockchain
	// 区块执行器
	blockExec state.BlockExecutor
	mempool   mempool.Mempool

	blockPool    *state.BlockPool
	prepares     *cstypes.VotePool
	commits      *cstypes.VotePool
	roundChanges *cstypes.RoundChangePool
	phases       *cstypes.PhaseTracker

	minApprovals int

	mtx    sync.Mutex
	faulty bool

	transport Transport
	clock     slot.Clock

	// 最近一次出块，proposer可以接着它继续出块
	lastProposal *types.Block

	// 正在对账的区块
	reconciling map[string]struct{}

	// 最近提交的区块，淘汰时回收对应的投票，PoolRetention为0时为nil
	recent *lru.Cache

	inactivity *slot.DebounceTimer
	rateTimer  slot.Timer

	// 通信管道
	peerMsgQueue     chan msgInfo // 处理来自其他节点的消息
	internalMsgQueue chan msgInfo // 本节点产生的投票、round-change
	eventQueue       chan func()  // 定时器、对账任务投递回来的操作
	eventSwitch      events.EventSwitch

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	// 方便测试重写逻辑
	decideProposal func(previous *types.Block) (*types.Block, error)

	metric *consensusMetric
}

type ConsensusOption func(*ConsensusState)

// SetClock 替换墙上时钟，必须和mempool、blockchain使用同一个clock
func SetClock(clock slot.Clock) ConsensusOption {
	return func(cs *ConsensusState) {
		cs.clock = clock
	}
}

func SetTransport(transport Transport) ConsensusOption {
	return func(cs *ConsensusState) {
		cs.transport = transport
	}
}

func NewConsensusState(
	config *config.ConsensusConfig,
	signer types.Signer,
	verifier types.Verifier,
	chain *state.Blockchain,
	blockExec state.BlockExecutor,
	mempool mempool.Mempool,
	options ...ConsensusOption,
) *ConsensusState {
	ctx, cancel := context.WithCancel(context.Background())
	cs := &ConsensusState{
		config:           config,
		signer:           signer,
		pubKey:           signer.PubKey(),
		verifier:         verifier,
		chain:            chain,
		blockExec:        blockExec,
		mempool:          mempool,
		blockPool:        state.NewBlockPool(),
		prepares:         cstypes.NewPreparePool(verifier),
		commits:          cstypes.NewCommitPool(verifier),
		roundChanges:     cstypes.NewRoundChangePool(verifier),
		phases:           cstypes.NewPhaseTracker(),
		minApprovals:     config.Quorum(chain.Validators().Size()),
		faulty:           config.Faulty,
		transport:        nopTransport{},
		clock:            slot.SystemClock{},
		reconciling:      make(map[string]struct{}),
		peerMsgQueue:     make(chan msgInfo, msgQueueSize),
		internalMsgQueue: make(chan msgInfo, msgQueueSize),
		eventQueue:       make(chan func(), msgQueueSize),
		eventSwitch:      events.NewEventSwitch(),
		ctx:              ctx,
		cancel:           cancel,
		done:             make(chan struct{}),
		metric:           newConsensusMetric(),
	}
	cs.BaseService = *service.NewBaseService(nil, "CONSENSUS", cs)

	for _, opt := range options {
		opt(cs)
	}

	cs.decideProposal = cs.defaultDecideProposal
	cs.inactivity = slot.NewDebounceTimer(cs.clock, func() {
		cs.runInLoop(cs.handleInactivity)
	})
	cs.mempool.SetScheduler(cs.schedule)

	if config.PoolRetention > 0 {
		// size>0时不会返回error
		cs.recent, _ = lru.NewWithEvict(config.PoolRetention, func(_, value interface{}) {
			cs.prune(value.(tmbytes.HexBytes))
		})
	}

	return cs
}

func (cs *ConsensusState) SetLogger(logger log.Logger) {
	cs.Logger = logger
	cs.eventSwitch.SetLogger(logger.With("module", "events"))
}

func (cs *ConsensusState) SetTransport(transport Transport) {
	cs.transport = transport
}

func (cs *ConsensusState) Chain() *state.Blockchain {
	return cs.chain
}

func (cs *ConsensusState) BlockPool() *state.BlockPool {
	return cs.blockPool
}

func (cs *ConsensusState) PubKey() types.PubKey {
	return cs.pubKey
}

func (cs *ConsensusState) MinApprovals() int {
	return cs.minApprovals
}

func (cs *ConsensusState) Metric() *consensusMetric {
	return cs.metric
}

func (cs *ConsensusState) EventSwitch() events.EventSwitch {
	return cs.eventSwitch
}

func (cs *ConsensusState) IsFaulty() bool {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	return cs.faulty
}

func (cs *ConsensusState) setFaulty(v bool) {
	cs.mtx.Lock()
	cs.faulty = v
	cs.mtx.Unlock()
}

func (cs *ConsensusState) OnStart() error {
	if err := cs.eventSwitch.Start(); err != nil {
		return err
	}
	go cs.receiveRoutine()
	cs.scheduleRateReport()
	cs.Logger.Info("consensus receive routine started.",
		"validators", cs.chain.Validators().Size(), "quorum", cs.minApprovals, "faulty", cs.IsFaulty())
	return nil
}

func (cs *ConsensusState) OnStop() {
	// 先让接收协程和对账任务退出，之后没有人会再注册定时器
	cs.cancel()
	<-cs.done
	cs.wg.Wait()

	cs.inactivity.Stop()
	if cs.rateTimer != nil {
		cs.rateTimer.Stop()
	}
	if err := cs.eventSwitch.Stop(); err != nil {
		cs.Logger.Error("failed trying to stop eventSwitch", "error", err)
	}
	cs.Logger.Info("consensus server stopped.")
}

// Deliver 传输层收到消息后调用
func (cs *ConsensusState) Deliver(env *types.Envelope, peerID p2p.ID) {
	select {
	case cs.peerMsgQueue <- msgInfo{Env: env, PeerID: peerID}:
	case <-cs.ctx.Done():
	}
}

// receiveRoutine负责接收所有的消息，是唯一修改pool和链的协程
func (cs *ConsensusState) receiveRoutine() {
	defer close(cs.done)
	cs.Logger.Debug("consensus receive routine starts.")
	for {
		select {
		case <-cs.ctx.Done():
			cs.Logger.Info("receiveRoutine quit.")
			return

		case mi := <-cs.peerMsgQueue:
			// 接收到其他节点的消息
			cs.handleMsg(mi)

		case mi := <-cs.internalMsgQueue:
			// 本节点生成的投票
			cs.handleMsg(mi)

		case fn := <-cs.eventQueue:
			fn()
		}
	}
}

// handleMsg 校验消息格式，按类型分发到handler
// 被拒绝的消息只记录日志，不会重试
func (cs *ConsensusState) handleMsg(mi msgInfo) {
	env, peerID := mi.Env, mi.PeerID
	if err := env.ValidateBasic(); err != nil {
		cs.metric.MarkRejected()
		cs.Logger.Debug("malformed message", "peer", peerID, "err", err)
		return
	}

	// 故障节点只处理交易，core的配置消息保留，用来恢复
	if peerID != "" && cs.IsFaulty() && env.Type != types.MsgTransaction && env.Type != types.MsgConfigFromCore {
		cs.metric.MarkDropped()
		return
	}

	if err := msgHandlers[env.Type](cs, env, peerID); err != nil {
		cs.metric.MarkRejected()
		cs.Logger.Debug("rejected message", "msg", env, "peer", peerID, "reason", err)
	}
}

// ----- handlers -----

// handleTransaction 交易加入交易池并转发，然后判断是否需要出块
func (cs *ConsensusState) handleTransaction(env *types.Envelope, _ p2p.ID) error {
	if err := cs.mempool.Add(*env.Transaction); err != nil {
		if err == mempool.ErrTxInPool {
			// 重复转发的交易，正常现象
			return nil
		}
		return err
	}
	cs.broadcast(env)

	cs.inactivity.Reset(cs.config.InactivityTimeout)
	if cs.mempool.PoolFull() {
		cs.tryPropose()
	}
	return nil
}

// handlePrePrepare 校验收到的提案，放进BlockPool并投prepare票
func (cs *ConsensusState) handlePrePrepare(env *types.Envelope, _ p2p.ID) error {
	block := env.Block
	if cs.chain.HasBlock(block.Hash) || cs.blockPool.ExistsByHash(block.Hash, state.PrimaryBucket) {
		return ErrKnownBlock
	}

	previous := cs.chain.BlockByHash(block.LastHash)
	if previous == nil {
		previous = cs.blockPool.Get(block.LastHash, state.PrimaryBucket)
	}
	if err := cs.chain.ValidateBlock(block, block.SequenceNo, previous); err != nil {
		return err
	}

	cs.acceptBlock(block)
	return nil
}

// acceptBlock 区块进入BlockPool，交易分配给它，转发pre-prepare并投票
func (cs *ConsensusState) acceptBlock(block *types.Block) {
	key := block.Hash.String()
	cs.blockPool.Add(block, state.PrimaryBucket)
	cs.mempool.Assign(block)
	cs.phases.Advance(key, cstypes.PhaseProposed)

	cs.broadcast(types.NewBlockEnvelope(types.MsgPrePrepare, block))
	cs.eventSwitch.FireEvent(EventNewProposal, block)

	vote, err := cs.prepares.Create(block.Hash, cs.signer)
	if err != nil {
		cs.Logger.Error("sign prepare failed", "block", block.Hash, "err", err)
		return
	}
	cs.sendInternalMessage(msgInfo{Env: types.NewVoteEnvelope(types.MsgPrepare, vote)})

	// 投票可能比区块先到
	cs.tryCommitVote(block.Hash)
}

func (cs *ConsensusState) handlePrepare(env *types.Envelope, _ p2p.ID) error {
	vote := *env.Vote
	if err := cs.checkVote(cs.prepares, vote); err != nil {
		return err
	}
	if err := cs.prepares.Add(vote); err != nil {
		return err
	}
	cs.broadcast(env)

	cs.tryCommitVote(vote.BlockHash)
	return nil
}

// tryCommitVote 收到区块且prepare达到quorum时投commit票，每个区块只投一次
func (cs *ConsensusState) tryCommitVote(hash tmbytes.HexBytes) {
	key := hash.String()
	if cs.phases.Get(key) != cstypes.PhaseProposed || !cs.prepares.HasQuorum(hash, cs.minApprovals) {
		return
	}
	cs.phases.Advance(key, cstypes.PhasePrepared)

	vote, err := cs.commits.Create(hash, cs.signer)
	if err != nil {
		cs.Logger.Error("sign commit failed", "block", hash, "err", err)
		return
	}
	cs.Logger.Debug("prepared", "block", hash, "prepares", cs.prepares.Count(hash))
	cs.sendInternalMessage(msgInfo{Env: types.NewVoteEnvelope(types.MsgCommit, vote)})
}

func (cs *ConsensusState) handleCommit(env *types.Envelope, _ p2p.ID) error {
	vote := *env.Vote
	if err := cs.checkVote(cs.commits, vote); err != nil {
		return err
	}
	if err := cs.commits.Add(vote); err != nil {
		return err
	}
	cs.broadcast(env)

	if cs.commits.HasQuorum(vote.BlockHash, cs.minApprovals) && !cs.chain.HasBlock(vote.BlockHash) {
		cs.startReconcile(vote.BlockHash)
	}
	return nil
}

// handleRoundChange round-change达到quorum后清理区块的交易，区块的生命周期结束
func (cs *ConsensusState) handleRoundChange(env *types.Envelope, _ p2p.ID) error {
	rc := *env.RoundChange
	if !cs.chain.Validators().IsValidValidator(rc.PublicKey) {
		return ErrUnknownValidator
	}
	if cs.roundChanges.Exists(rc) {
		return cstypes.ErrDuplicateVote
	}
	if !cs.roundChanges.IsValid(rc) {
		return cstypes.ErrInvalidVote
	}
	if err := cs.roundChanges.Add(rc); err != nil {
		return err
	}
	cs.broadcast(env)

	key := rc.BlockHash.String()
	if !cs.roundChanges.HasQuorum(rc.BlockHash, cs.minApprovals) || !cs.phases.Advance(key, cstypes.PhaseRoundChanged) {
		return nil
	}

	txs := rc.Data
	if block := cs.chain.BlockByHash(rc.BlockHash); block != nil {
		txs = block.Data
	}
	cs.mempool.Clear(rc.BlockHash, txs)
	cs.metric.MarkRoundChange()
	cs.Logger.Info("round changed", "block", rc.BlockHash, "txs", len(txs))
	cs.eventSwitch.FireEvent(EventRoundChanged, rc)
	return nil
}

// handleBlockFromCore 其他分片的区块，只保存不校验
func (cs *ConsensusState) handleBlockFromCore(env *types.Envelope, _ p2p.ID) error {
	cs.blockPool.Add(env.Block, state.CommitteeBucket)
	cs.Logger.Debug("stored committee block", "from", env.ShardID, "block", env.Block)
	return nil
}

// handleConfigFromCore core在运行时修改threshold或者故障注入开关
func (cs *ConsensusState) handleConfigFromCore(env *types.Envelope, _ p2p.ID) error {
	cfg := env.Config
	if cfg.TransactionThreshold != nil {
		if *cfg.TransactionThreshold <= 0 {
			return fmt.Errorf("invalid transaction threshold %d", *cfg.TransactionThreshold)
		}
		cs.mempool.SetThreshold(*cfg.TransactionThreshold)
	}
	if cfg.Faulty != nil {
		cs.setFaulty(*cfg.Faulty)
	}
	cs.Logger.Info("applied config from core", "threshold", cs.mempool.Threshold(), "faulty", cs.IsFaulty())
	return nil
}

// handleOutbound 只会由本节点发往core的消息
func (cs *ConsensusState) handleOutbound(env *types.Envelope, _ p2p.ID) error {
	return ErrUnexpectedMessage
}

// checkVote 投票者必须是验证者，没有投过票，签名正确
func (cs *ConsensusState) checkVote(pool *cstypes.VotePool, vote types.Vote) error {
	if !cs.chain.Validators().IsValidValidator(vote.PublicKey) {
		return ErrUnknownValidator
	}
	if pool.Exists(vote) {
		return cstypes.ErrDuplicateVote
	}
	if !pool.IsValid(vote) {
		return cstypes.ErrInvalidVote
	}
	return nil
}

// ----- proposal -----

// tryPropose 本节点是proposer且在途的区块没有超过上限时出块
func (cs *ConsensusState) tryPropose() {
	if cs.mempool.Size() == 0 {
		return
	}
	previous := cs.proposalBase()
	if !cs.chain.IsProposer(cs.pubKey, previous.SequenceNo+1) {
		return
	}
	if inflight := len(cs.mempool.GetInflight(nil)); inflight >= cs.config.MaxInflightBlocks {
		cs.Logger.Debug("too many inflight blocks, wait for commit", "inflight", inflight)
		return
	}

	block, err := cs.decideProposal(previous)
	if err != nil {
		if err != state.ErrEmptyProposal {
			cs.Logger.Error("create proposal failed", "err", err)
		}
		return
	}
	cs.lastProposal = block
	cs.metric.MarkProposal()
	cs.Logger.Info("I'm proposer, propose block", "block", block)

	cs.acceptBlock(block)
}

func (cs *ConsensusState) defaultDecideProposal(previous *types.Block) (*types.Block, error) {
	return cs.blockExec.CreateProposal(cs.signer, previous)
}

// proposalBase 新区块的前驱：上一个自己提出、还在途并且能接到链尾的区块，否则是链尾
func (cs *ConsensusState) proposalBase() *types.Block {
	tip := cs.chain.Tip()
	last := cs.lastProposal
	if last == nil || last.SequenceNo <= tip.SequenceNo {
		return tip
	}

	inflight := false
	for _, hash := range cs.mempool.GetInflight(nil) {
		if bytes.Equal(hash, last.Hash) {
			inflight = true
			break
		}
	}
	if !inflight {
		return tip
	}

	for b := last; b != nil; b = cs.blockPool.Get(b.LastHash, state.PrimaryBucket) {
		if b.SequenceNo == tip.SequenceNo+1 {
			if bytes.Equal(b.LastHash, tip.Hash) {
				return last
			}
			return tip
		}
	}
	return tip
}

// ----- reconciliation -----

// startReconcile commit达到quorum后在后台把区块追加到链上
// 每次尝试都投递回receiveRoutine执行
func (cs *ConsensusState) startReconcile(hash tmbytes.HexBytes) {
	key := hash.String()
	if _, ok := cs.reconciling[key]; ok {
		return
	}
	cs.reconciling[key] = struct{}{}

	backoff := state.NewLinearBackoff(cs.config.ReconcileInterval, cs.config.ReconcileMaxAttempts)
	cs.wg.Add(1)
	go func() {
		defer cs.wg.Done()
		_, err := state.Reconcile(cs.ctx, backoff, func(ctx context.Context) (*types.Block, error) {
			return cs.attemptAppend(ctx, hash)
		})
		cs.runInLoop(func() { cs.finishReconcile(hash, err) })
	}()
}

type appendResult struct {
	block *types.Block
	err   error
}

func (cs *ConsensusState) attemptAppend(ctx context.Context, hash tmbytes.HexBytes) (*types.Block, error) {
	reply := make(chan appendResult, 1)
	ok := cs.runInLoop(func() {
		block, err := cs.chain.AddUpdatedBlock(hash, cs.blockPool, cs.prepares, cs.commits)
		if err == nil {
			cs.finalizeCommit(block)
		}
		reply <- appendResult{block, err}
	})
	if !ok {
		return nil, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.block, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (cs *ConsensusState) finishReconcile(hash tmbytes.HexBytes, err error) {
	delete(cs.reconciling, hash.String())
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
	case err == state.ErrAlreadyCommitted:
		cs.Logger.Debug("block committed by an earlier attempt", "block", hash)
	case err == state.ErrReconcileTimeout:
		cs.metric.MarkReconcileFailure()
		cs.Logger.Error("reconcile gave up, waiting for reassignment", "block", hash,
			"attempts", cs.config.ReconcileMaxAttempts)
	default:
		// 同一个位置已经提交了别的区块，交易由removeDuplicates找回
		cs.metric.MarkReconcileFailure()
		cs.Logger.Info("block lost to a conflicting block", "block", hash, "err", err)
		cs.remember(hash)
	}
}

// finalizeCommit 区块上链之后：清理交易池、归档、上报core、发出round-change
func (cs *ConsensusState) finalizeCommit(block *types.Block) {
	key := block.Hash.String()
	cs.phases.Advance(key, cstypes.PhaseCommitted)

	if err := cs.blockExec.ApplyBlock(block); err != nil {
		cs.Logger.Error("apply block failed", "block", block.Hash, "err", err)
	}
	cs.metric.MarkCommitted(block, cs.chain.Height())
	cs.Logger.Info("committed block", "seq", block.SequenceNo, "hash", block.Hash,
		"txs", len(block.Data), "prepares", len(block.PrepareMessages), "commits", len(block.CommitMessages))

	cs.broadcast(types.NewBlockEnvelope(types.MsgBlockToCore, block))

	rc, err := cs.roundChanges.Create(block, cs.signer)
	if err != nil {
		cs.Logger.Error("sign round change failed", "block", block.Hash, "err", err)
	} else {
		cs.sendInternalMessage(msgInfo{Env: types.NewRoundChangeEnvelope(rc)})
	}

	cs.eventSwitch.FireEvent(EventCommittedBlock, block)
	cs.remember(block.Hash)

	// 下一个proposer可能是自己
	if cs.mempool.PoolFull() {
		cs.tryPropose()
	}
}

// ----- timers -----

// handleInactivity 交易停止到达一段时间后强制出块，交易池不为空时继续计时
func (cs *ConsensusState) handleInactivity() {
	if cs.mempool.Size() == 0 {
		return
	}
	cs.tryPropose()
	cs.redistribute()
	cs.inactivity.Reset(cs.config.InactivityTimeout)
}

// redistribute 临时方案：不是proposer但积压了至少一半threshold的交易时，
// 把一批交易重新广播出去，接收方靠exists检查去重
func (cs *ConsensusState) redistribute() {
	if !cs.config.Redistribute {
		return
	}
	threshold := cs.mempool.Threshold()
	if cs.mempool.Size()*2 < threshold || cs.chain.IsProposer(cs.pubKey, cs.chain.Tip().SequenceNo+1) {
		return
	}
	txs := cs.mempool.ReapMaxTxs(threshold)
	for _, tx := range txs {
		cs.broadcast(types.NewTxEnvelope(tx))
	}
	cs.metric.MarkRedistributed(len(txs))
	cs.Logger.Info("redistributed txs", "txs", len(txs))
}

func (cs *ConsensusState) scheduleRateReport() {
	if cs.config.RateReportInterval <= 0 {
		return
	}
	cs.rateTimer = cs.clock.AfterFunc(cs.config.RateReportInterval, func() {
		cs.runInLoop(cs.reportRate)
	})
}

// reportRate 向core上报交易到达率和链的吞吐
func (cs *ConsensusState) reportRate() {
	arrivals := make(map[string]int)
	for minute, n := range cs.mempool.Arrivals() {
		arrivals[strconv.FormatInt(minute, 10)] = n
	}
	blocks, txs := cs.chain.GetTotal()
	report := &types.RateReport{
		ShardID:        cs.chain.ShardID(),
		Arrivals:       arrivals,
		Unassigned:     cs.mempool.Size(),
		TotalBlocks:    blocks,
		TotalTxs:       txs,
		TxsLastMinute:  cs.chain.GetRate(),
		InflightBlocks: len(cs.mempool.GetInflight(nil)),
	}
	cs.broadcast(&types.Envelope{Type: types.MsgRateToCore, Rate: report})
	cs.scheduleRateReport()
}

// schedule 交易池的重新分配定时器，到期后在receiveRoutine中执行
func (cs *ConsensusState) schedule(d time.Duration, fn func()) {
	cs.clock.AfterFunc(d, func() {
		cs.runInLoop(fn)
	})
}

// ----- pool gc -----

func (cs *ConsensusState) remember(hash tmbytes.HexBytes) {
	if cs.recent != nil {
		cs.recent.Add(hash.String(), hash)
	}
}

// prune 区块被挤出最近提交的缓存，回收它的投票和候选区块
func (cs *ConsensusState) prune(hash tmbytes.HexBytes) {
	cs.prepares.Prune(hash)
	cs.commits.Prune(hash)
	cs.roundChanges.Prune(hash)
	cs.blockPool.Remove(hash, state.PrimaryBucket)
	cs.phases.Delete(hash.String())
	cs.Logger.Debug("pruned pools", "block", hash)
}

// ----- messaging -----

func (cs *ConsensusState) broadcast(env *types.Envelope) {
	out := *env
	if out.ShardID == "" {
		out.ShardID = cs.chain.ShardID()
	}
	cs.transport.Broadcast(&out)
}

// runInLoop 把fn交给receiveRoutine执行，服务已经停止时返回false
func (cs *ConsensusState) runInLoop(fn func()) bool {
	select {
	case cs.eventQueue <- fn:
		return true
	case <-cs.ctx.Done():
		return false
	}
}

// send a msg into the receiveRoutine regarding our own vote
// 直接写可能会因为receiveRoutine blocked从而导致本协程block
func (cs *ConsensusState) sendInternalMessage(mi msgInfo) {
	select {
	case cs.internalMsgQueue <- mi:
	default:
		// NOTE: using the go-routine means our votes can
		// be processed out of order.
		cs.Logger.Debug("internal msg queue is full; using a go-routine")
		go func() {
			select {
			case cs.internalMsgQueue <- mi:
			case <-cs.ctx.Done():
			}
		}()
	}
}

// ----- MsgInfo -----
// 与reactor之间通信的消息格式，PeerID为空表示本节点产生的消息
type msgInfo struct {
	Env    *types.Envelope
	PeerID p2p.ID
}

type nopTransport struct{}

func (nopTransport) Broadcast(*types.Envelope) {}
