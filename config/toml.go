package config

import (
	"bytes"
	"path/filepath"
	"text/template"

	"github.com/pkg/errors"
	tmos "github.com/tendermint/tendermint/libs/os"
)

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate")
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

// EnsureRoot creates the root, config, and data directories if they don't exist,
// and writes the default config file if it's missing.
func EnsureRoot(rootDir string) error {
	if err := tmos.EnsureDir(rootDir, DefaultDirPerm); err != nil {
		return errors.Wrap(err, "failed to create root directory")
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), DefaultDirPerm); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), DefaultDirPerm); err != nil {
		return errors.Wrap(err, "failed to create data directory")
	}

	configFilePath := filepath.Join(rootDir, defaultConfigFilePath)
	if !tmos.FileExists(configFilePath) {
		return WriteConfigFile(configFilePath, DefaultConfig())
	}
	return nil
}

// WriteConfigFile renders config using the template and writes it to configFilePath.
func WriteConfigFile(configFilePath string, config *Config) error {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, config); err != nil {
		return errors.Wrap(err, "failed to render config template")
	}

	return errors.Wrap(tmos.WriteFile(configFilePath, buffer.Bytes(), 0644), "failed to write config file")
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# A custom human readable name for this node
moniker = "{{ .BaseConfig.Moniker }}"

# Output level for logging, including package level options
log_level = "{{ .BaseConfig.LogLevel }}"

# Database backend: goleveldb | memdb
db_backend = "{{ .BaseConfig.DBBackend }}"

# Database directory
db_dir = "{{ js .BaseConfig.DBPath }}"

# Path to the JSON file containing the initial validator set and shard id
genesis_file = "{{ js .BaseConfig.Genesis }}"

# Path to the JSON file containing the private key to use as a validator
priv_validator_key_file = "{{ js .BaseConfig.PrivValidatorKey }}"

# Path to the JSON file containing the private key to use for node authentication in the p2p protocol
node_key_file = "{{ js .BaseConfig.NodeKey }}"

# Cluster seed and index of this node, used when signer_scheme = "bls"
bls_seed = {{ .BaseConfig.BLSSeed }}
bls_index = {{ .BaseConfig.BLSIndex }}

#######################################################################
###                 Advanced Configuration Options                  ###
#######################################################################

#######################################################
###           P2P Configuration Options             ###
#######################################################
[p2p]

# Address to listen for incoming connections
laddr = "{{ .P2P.ListenAddress }}"

# Comma separated list of nodes to keep persistent connections to
persistent_peers = "{{ .P2P.PersistentPeers }}"

# Set true for strict address routability rules
addr_book_strict = {{ .P2P.AddrBookStrict }}

# Toggle to disable guard against peers connecting from the same ip.
allow_duplicate_ip = {{ .P2P.AllowDuplicateIP }}

#######################################################
###          Mempool Configuration Options          ###
#######################################################
[mempool]

# Transactions assigned to a proposal that has not committed after this long
# are moved back to the unassigned queue
reassign_timeout = "{{ .Mempool.ReassignTimeout }}"

# Window of the per-minute transaction arrival counters
rate_window = "{{ .Mempool.RateWindow }}"

#######################################################
###         Consensus Configuration Options         ###
#######################################################
[consensus]

# Number of unassigned transactions that triggers a proposal, also the block size limit
transaction_threshold = {{ .Consensus.TransactionThreshold }}

# Votes needed for a quorum; 0 derives ceil(2n/3) from the validator set size
min_approvals = {{ .Consensus.MinApprovals }}

# Proposals a proposer may have in flight before it waits for a commit
max_inflight_blocks = {{ .Consensus.MaxInflightBlocks }}

# Force a proposal when no transaction arrived for this long
inactivity_timeout = "{{ .Consensus.InactivityTimeout }}"

# Reconciliation waits reconcile_interval * attempt between attempts
reconcile_interval = "{{ .Consensus.ReconcileInterval }}"
reconcile_max_attempts = {{ .Consensus.ReconcileMaxAttempts }}

# How often to send RATE_TO_CORE; 0 disables it
rate_report_interval = "{{ .Consensus.RateReportInterval }}"

# Number of committed blocks whose votes are kept; 0 keeps everything
pool_retention = {{ .Consensus.PoolRetention }}

# Fault injection: drop every protocol message except transactions
faulty = {{ .Consensus.Faulty }}

# Rebroadcast a batch of pending transactions when this node is not the proposer
redistribute = {{ .Consensus.Redistribute }}

# ed25519 | bls
signer_scheme = "{{ .Consensus.SignerScheme }}"
`
