package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	tmcfg "github.com/tendermint/tendermint/config"

	"shardbft/types"
)

const (
	// DefaultDirPerm is the default permissions used when creating directories.
	DefaultDirPerm = 0700

	defaultConfigDir = "config"
	defaultDataDir   = "data"

	defaultConfigFileName  = "config.toml"
	defaultGenesisJSONName = "genesis.json"
	defaultPrivValKeyName  = "priv_validator_key.json"
	defaultNodeKeyName     = "node_key.json"

	SignerSchemeEd25519 = "ed25519"
	SignerSchemeBLS     = "bls"
)

var (
	DefaultHomeDir = ".shardbft"

	defaultConfigFilePath  = filepath.Join(defaultConfigDir, defaultConfigFileName)
	defaultGenesisJSONPath = filepath.Join(defaultConfigDir, defaultGenesisJSONName)
	defaultPrivValKeyPath  = filepath.Join(defaultConfigDir, defaultPrivValKeyName)
	defaultNodeKeyPath     = filepath.Join(defaultConfigDir, defaultNodeKeyName)
)

// Config 节点的全部配置
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	Consensus *ConsensusConfig `mapstructure:"consensus"`
	Mempool   *MempoolConfig   `mapstructure:"mempool"`
	P2P       *tmcfg.P2PConfig `mapstructure:"p2p"`
}

// DefaultConfig returns a default configuration for a node
func DefaultConfig() *Config {
	return &Config{
		BaseConfig: DefaultBaseConfig(),
		Consensus:  DefaultConsensusConfig(),
		Mempool:    DefaultMempoolConfig(),
		P2P:        tmcfg.DefaultP2PConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig: DefaultBaseConfig(),
		Consensus:  TestConsensusConfig(),
		Mempool:    TestMempoolConfig(),
		P2P:        tmcfg.TestP2PConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	cfg.P2P.RootDir = root
	return cfg
}

// ValidateBasic 检查所有配置项，一次性返回全部错误
func (cfg *Config) ValidateBasic() error {
	var result *multierror.Error
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := cfg.Consensus.ValidateBasic(); err != nil {
		result = multierror.Append(result, fmt.Errorf("error in [consensus] section: %w", err))
	}
	if err := cfg.Mempool.ValidateBasic(); err != nil {
		result = multierror.Append(result, fmt.Errorf("error in [mempool] section: %w", err))
	}
	if err := cfg.P2P.ValidateBasic(); err != nil {
		result = multierror.Append(result, fmt.Errorf("error in [p2p] section: %w", err))
	}
	return result.ErrorOrNil()
}

//-----------------------------------------------------------------------------
// BaseConfig

type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// A custom human readable name for this node
	Moniker string `mapstructure:"moniker"`

	// Output level for logging
	LogLevel string `mapstructure:"log_level"`

	// Path to the JSON file containing the initial validator set and shard id
	Genesis string `mapstructure:"genesis_file"`

	// Path to the JSON file containing the private key to use as a validator in the consensus protocol
	PrivValidatorKey string `mapstructure:"priv_validator_key_file"`

	// A JSON file containing the private key to use for p2p authenticated encryption
	NodeKey string `mapstructure:"node_key_file"`

	// Database backend: goleveldb | memdb
	DBBackend string `mapstructure:"db_backend"`

	// Database directory
	DBPath string `mapstructure:"db_dir"`

	// 使用bls签名时集群共享的种子和本节点的序号
	BLSSeed  int64 `mapstructure:"bls_seed"`
	BLSIndex int   `mapstructure:"bls_index"`
}

func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Genesis:          defaultGenesisJSONPath,
		PrivValidatorKey: defaultPrivValKeyPath,
		NodeKey:          defaultNodeKeyPath,
		Moniker:          "anonymous",
		LogLevel:         "info",
		DBBackend:        "goleveldb",
		DBPath:           defaultDataDir,
	}
}

func (cfg BaseConfig) GenesisFile() string {
	return rootify(cfg.Genesis, cfg.RootDir)
}

func (cfg BaseConfig) PrivValidatorKeyFile() string {
	return rootify(cfg.PrivValidatorKey, cfg.RootDir)
}

func (cfg BaseConfig) NodeKeyFile() string {
	return rootify(cfg.NodeKey, cfg.RootDir)
}

func (cfg BaseConfig) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

func (cfg BaseConfig) ConfigFile() string {
	return rootify(defaultConfigFilePath, cfg.RootDir)
}

func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.DBBackend {
	case "goleveldb", "memdb":
	default:
		return fmt.Errorf("unsupported db_backend %q", cfg.DBBackend)
	}
	if cfg.BLSIndex < 0 {
		return fmt.Errorf("bls_index can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// ConsensusConfig

// ConsensusConfig 共识协议的参数
type ConsensusConfig struct {
	// 未分配交易达到这个数量时提出区块，同时也是一个区块的最大交易数
	TransactionThreshold int `mapstructure:"transaction_threshold"`

	// quorum大小，0表示按验证者数量推导
	MinApprovals int `mapstructure:"min_approvals"`

	// 同时在途的提案上限
	MaxInflightBlocks int `mapstructure:"max_inflight_blocks"`

	// 最后一笔交易之后多久没有动静就强制提案
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`

	// 区块对账的重试间隔(线性增长)和最大次数
	ReconcileInterval    time.Duration `mapstructure:"reconcile_interval"`
	ReconcileMaxAttempts int           `mapstructure:"reconcile_max_attempts"`

	// 向core上报负载的周期，0表示不上报
	RateReportInterval time.Duration `mapstructure:"rate_report_interval"`

	// 保留多少个已提交区块的投票，0表示不回收
	PoolRetention int `mapstructure:"pool_retention"`

	// 故障注入：只处理交易，丢弃其他协议消息
	Faulty bool `mapstructure:"faulty"`

	// 非proposer积压交易时重新广播一批交易
	Redistribute bool `mapstructure:"redistribute"`

	// ed25519 | bls
	SignerScheme string `mapstructure:"signer_scheme"`
}

func DefaultConsensusConfig() *ConsensusConfig {
	return &ConsensusConfig{
		TransactionThreshold: 100,
		MinApprovals:         0,
		MaxInflightBlocks:    4,
		InactivityTimeout:    8 * time.Second,
		ReconcileInterval:    1 * time.Second,
		ReconcileMaxAttempts: 50,
		RateReportInterval:   10 * time.Second,
		PoolRetention:        0,
		Faulty:               false,
		Redistribute:         false,
		SignerScheme:         SignerSchemeEd25519,
	}
}

func TestConsensusConfig() *ConsensusConfig {
	cfg := DefaultConsensusConfig()
	cfg.TransactionThreshold = 1
	cfg.InactivityTimeout = 500 * time.Millisecond
	cfg.ReconcileInterval = 10 * time.Millisecond
	cfg.ReconcileMaxAttempts = 20
	cfg.RateReportInterval = 0
	return cfg
}

// Quorum 返回实际使用的quorum大小
func (cfg *ConsensusConfig) Quorum(validators int) int {
	if cfg.MinApprovals > 0 {
		return cfg.MinApprovals
	}
	return types.MinApprovals(validators)
}

func (cfg *ConsensusConfig) ValidateBasic() error {
	var result *multierror.Error
	if cfg.TransactionThreshold <= 0 {
		result = multierror.Append(result, fmt.Errorf("transaction_threshold must be positive"))
	}
	if cfg.MinApprovals < 0 {
		result = multierror.Append(result, fmt.Errorf("min_approvals can't be negative"))
	}
	if cfg.MaxInflightBlocks <= 0 {
		result = multierror.Append(result, fmt.Errorf("max_inflight_blocks must be positive"))
	}
	if cfg.InactivityTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("inactivity_timeout must be positive"))
	}
	if cfg.ReconcileInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("reconcile_interval must be positive"))
	}
	if cfg.ReconcileMaxAttempts <= 0 {
		result = multierror.Append(result, fmt.Errorf("reconcile_max_attempts must be positive"))
	}
	if cfg.RateReportInterval < 0 {
		result = multierror.Append(result, fmt.Errorf("rate_report_interval can't be negative"))
	}
	if cfg.PoolRetention < 0 {
		result = multierror.Append(result, fmt.Errorf("pool_retention can't be negative"))
	}
	switch cfg.SignerScheme {
	case SignerSchemeEd25519, SignerSchemeBLS:
	default:
		result = multierror.Append(result, fmt.Errorf("unknown signer_scheme %q", cfg.SignerScheme))
	}
	return result.ErrorOrNil()
}

//-----------------------------------------------------------------------------
// MempoolConfig

type MempoolConfig struct {
	// 分配给提案的交易超过这个时间没有提交就放回未分配队列
	ReassignTimeout time.Duration `mapstructure:"reassign_timeout"`

	// 交易到达率统计的窗口
	RateWindow time.Duration `mapstructure:"rate_window"`
}

func DefaultMempoolConfig() *MempoolConfig {
	return &MempoolConfig{
		ReassignTimeout: 2 * time.Minute,
		RateWindow:      10 * time.Minute,
	}
}

func TestMempoolConfig() *MempoolConfig {
	return DefaultMempoolConfig()
}

func (cfg *MempoolConfig) ValidateBasic() error {
	var result *multierror.Error
	if cfg.ReassignTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("reassign_timeout must be positive"))
	}
	if cfg.RateWindow < time.Minute {
		result = multierror.Append(result, fmt.Errorf("rate_window must be at least one minute"))
	}
	return result.ErrorOrNil()
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
