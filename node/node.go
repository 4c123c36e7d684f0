package node

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	"github.com/tendermint/tendermint/p2p"
	"github.com/tendermint/tendermint/p2p/conn"

	cfg "shardbft/config"
	"shardbft/consensus"
	"shardbft/libs/metric"
	"shardbft/mempool"
	"shardbft/privval"
	"shardbft/state"
	"shardbft/store"
	"shardbft/types"
)

// Provider takes a config and a logger and returns a ready to go Node.
type Provider func(*cfg.Config, log.Logger) (*Node, error)

const (
	metricConsensus = "consensus"
	metricMempool   = "mempool"
)

// Node 分片中的一个验证者：p2p switch + 共识reactor + 交易池 + 区块归档
type Node struct {
	service.BaseService

	// config
	config     *cfg.Config
	genesisDoc *types.GenesisDoc

	// network
	transport *p2p.MultiplexTransport
	sw        *p2p.Switch // p2p connections
	nodeInfo  p2p.NodeInfo
	nodeKey   *p2p.NodeKey // our node privkey

	// service
	blockStore       *store.KVStore
	chain            *state.Blockchain
	mempool          *mempool.TransactionPool
	consensusState   *consensus.ConsensusState
	consensusReactor *consensus.Reactor

	metricSet *metric.MetricSet
}

// DefaultNewNode 从config指定的文件中加载节点密钥、创世文件和签名私钥
func DefaultNewNode(config *cfg.Config, logger log.Logger) (*Node, error) {
	nodeKey, err := p2p.LoadOrGenNodeKey(config.NodeKeyFile())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load or gen node key %s", config.NodeKeyFile())
	}

	genDoc, err := types.GenesisDocFromFile(config.GenesisFile())
	if err != nil {
		return nil, err
	}

	signer, err := LoadSigner(config)
	if err != nil {
		return nil, err
	}

	return NewNode(config, signer, nodeKey, genDoc, logger)
}

// LoadSigner 按signer_scheme加载本节点的签名私钥
func LoadSigner(config *cfg.Config) (types.Signer, error) {
	switch config.Consensus.SignerScheme {
	case cfg.SignerSchemeBLS:
		return privval.NewBLSSigner(config.BLSSeed, config.BLSIndex)
	default:
		return privval.ReadFilePV(config.PrivValidatorKeyFile())
	}
}

func createTransport(
	nodeInfo p2p.NodeInfo,
	nodeKey *p2p.NodeKey,
) *p2p.MultiplexTransport {
	var (
		mConnConfig = conn.DefaultMConnConfig()
		transport   = p2p.NewMultiplexTransport(nodeInfo, *nodeKey, mConnConfig)
	)
	return transport
}

func createSwitch(config *cfg.Config,
	transport p2p.Transport,
	consensusReactor *consensus.Reactor,
	nodeInfo p2p.NodeInfo,
	nodeKey *p2p.NodeKey,
	p2pLogger log.Logger) *p2p.Switch {

	sw := p2p.NewSwitch(
		config.P2P,
		transport,
	)
	sw.SetLogger(p2pLogger)
	sw.AddReactor("CONSENSUS", consensusReactor)

	sw.SetNodeInfo(nodeInfo)
	sw.SetNodeKey(nodeKey)

	p2pLogger.Info("P2P Node ID", "ID", nodeKey.ID(), "file", config.NodeKeyFile())
	return sw
}

func NewNode(
	config *cfg.Config,
	signer types.Signer,
	nodeKey *p2p.NodeKey,
	genDoc *types.GenesisDoc,
	logger log.Logger,
) (*Node, error) {
	if genDoc.SignerScheme != "" && genDoc.SignerScheme != config.Consensus.SignerScheme {
		return nil, fmt.Errorf("genesis uses signer scheme %q, but node is configured with %q",
			genDoc.SignerScheme, config.Consensus.SignerScheme)
	}
	verifier, err := privval.NewVerifier(config.Consensus.SignerScheme)
	if err != nil {
		return nil, err
	}

	validators := genDoc.ValidatorSet()
	if !validators.IsValidValidator(signer.PubKey()) {
		return nil, fmt.Errorf("node key %v is not a validator of shard %s", signer.PubKey(), genDoc.ShardID)
	}
	logger.Info("loaded validator set", "shard", genDoc.ShardID, "validators", validators.List())

	blockStore, err := store.NewKVStore("blockstore", config.DBDir(), config.DBBackend, logger.With("module", "store"))
	if err != nil {
		return nil, err
	}
	if last, err := blockStore.LastSequence(genDoc.ShardID); err == nil && last >= 0 {
		// 链只保存在内存中，重启后从创世块重新开始
		logger.Info("block archive is not empty, chain restarts from genesis", "shard", genDoc.ShardID, "archived", last)
	}

	chain := state.NewBlockchain(genDoc.ShardID, validators, verifier)
	chain.SetLogger(logger.With("module", "state"))

	txPool := mempool.NewTransactionPool(config.Mempool, config.Consensus.TransactionThreshold, verifier,
		mempool.SetPreCheck(chain.CheckTx))
	txPool.SetLogger(logger.With("module", "mempool"))

	blockExec := state.NewBlockExecutor(chain, txPool, blockStore)
	blockExec.SetLogger(logger.With("module", "executor"))

	consensusState := consensus.NewConsensusState(config.Consensus, signer, verifier, chain, blockExec, txPool)
	consensusState.SetLogger(logger.With("module", "consensus"))

	consensusReactor := consensus.NewReactor(consensusState)
	consensusReactor.SetLogger(logger.With("module", "consensus"))

	metricSet := metric.NewMetricSet()
	if err := metricSet.SetMetrics(metricConsensus, consensusState.Metric()); err != nil {
		return nil, err
	}
	if err := metricSet.SetMetrics(metricMempool, txPool.Metric()); err != nil {
		return nil, err
	}

	p2pLogger := logger.With("module", "p2p")

	// setup node identity
	nodeInfo, err := makeNodeInfo(config, nodeKey, genDoc.ShardID)
	if err != nil {
		return nil, err
	}

	// Setup Transport.
	transport := createTransport(nodeInfo, nodeKey)

	// Setup Switch.
	sw := createSwitch(
		config, transport, consensusReactor, nodeInfo, nodeKey, p2pLogger,
	)

	node := &Node{
		config:           config,
		genesisDoc:       genDoc,
		transport:        transport,
		sw:               sw,
		nodeInfo:         nodeInfo,
		nodeKey:          nodeKey,
		blockStore:       blockStore,
		chain:            chain,
		mempool:          txPool,
		consensusState:   consensusState,
		consensusReactor: consensusReactor,
		metricSet:        metricSet,
	}
	node.BaseService = *service.NewBaseService(logger, "Node", node)

	return node, nil
}

func (n *Node) OnStart() error {
	// start the transport
	addr, err := p2p.NewNetAddressString(p2p.IDAddressString(n.nodeKey.ID(), n.config.P2P.ListenAddress))
	if err != nil {
		return err
	}
	if err := n.transport.Listen(*addr); err != nil {
		return err
	}

	// start the Switch，reactor会启动共识
	err = n.sw.Start()
	if err != nil {
		return err
	}

	n.Logger.Info("dial persistent peers", "peers", n.config.P2P.PersistentPeers)
	err = n.sw.DialPeersAsync(splitAndTrimEmpty(n.config.P2P.PersistentPeers, ",", " "))
	if err != nil {
		return fmt.Errorf("could not dial peers from persistent_peers field: %w", err)
	}

	return nil
}

func (n *Node) OnStop() {
	n.BaseService.OnStop()

	if err := n.sw.Stop(); err != nil {
		n.Logger.Error("Error closing switch", "err", err)
	}
	if err := n.transport.Close(); err != nil {
		n.Logger.Error("Error closing transport", "err", err)
	}
	if err := n.blockStore.Close(); err != nil {
		n.Logger.Error("Error closing block store", "err", err)
	}

	n.Logger.Info("node stopped", "metrics", n.metricSet.JSONString())
}

func (n *Node) Config() *cfg.Config {
	return n.config
}

func (n *Node) GenesisDoc() *types.GenesisDoc {
	return n.genesisDoc
}

func (n *Node) Switch() *p2p.Switch {
	return n.sw
}

func (n *Node) NodeInfo() p2p.NodeInfo {
	return n.nodeInfo
}

func (n *Node) BlockStore() *store.KVStore {
	return n.blockStore
}

func (n *Node) Chain() *state.Blockchain {
	return n.chain
}

func (n *Node) Mempool() *mempool.TransactionPool {
	return n.mempool
}

func (n *Node) ConsensusState() *consensus.ConsensusState {
	return n.consensusState
}

func (n *Node) ConsensusReactor() *consensus.Reactor {
	return n.consensusReactor
}

func (n *Node) MetricSet() *metric.MetricSet {
	return n.metricSet
}
