package commands

import (
	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/p2p"
	tmtime "github.com/tendermint/tendermint/types/time"

	cfg "shardbft/config"
	"shardbft/privval"
	"shardbft/types"
)

var shardID string

// InitFilesCmd 初始化一个只有本节点的分片
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a single validator shard",
	RunE:  initFiles,
}

func init() {
	InitFilesCmd.Flags().StringVar(&shardID, "shard", "shard-0", "分片id")
}

func initFiles(cmd *cobra.Command, args []string) error {
	return initFilesWithConfig(config)
}

func initFilesWithConfig(config *cfg.Config) error {
	// private validator
	var signer types.Signer
	if config.Consensus.SignerScheme == cfg.SignerSchemeBLS {
		bls, err := privval.NewBLSSigner(config.BLSSeed, config.BLSIndex)
		if err != nil {
			return err
		}
		signer = bls
		logger.Info("Derived bls validator key", "seed", config.BLSSeed, "index", config.BLSIndex)
	} else {
		privValKeyFile := config.PrivValidatorKeyFile()
		var pv *privval.FilePV
		if tmos.FileExists(privValKeyFile) {
			var err error
			if pv, err = privval.ReadFilePV(privValKeyFile); err != nil {
				return err
			}
			logger.Info("Found private validator", "keyFile", privValKeyFile)
		} else {
			pv = newFilePV(privValKeyFile)
			pv.Save()
			logger.Info("Generated private validator", "keyFile", privValKeyFile)
		}
		signer = pv
	}

	nodeKeyFile := config.NodeKeyFile()
	if tmos.FileExists(nodeKeyFile) {
		logger.Info("Found node key", "path", nodeKeyFile)
	} else {
		if _, err := p2p.LoadOrGenNodeKey(nodeKeyFile); err != nil {
			return err
		}
		logger.Info("Generated node key", "path", nodeKeyFile)
	}

	// genesis file
	genFile := config.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("Found genesis file", "path", genFile)
		return nil
	}

	genDoc := types.GenesisDoc{
		ShardID:      shardID,
		GenesisTime:  tmtime.Now(),
		SignerScheme: config.Consensus.SignerScheme,
		Validators: []types.GenesisValidator{{
			PubKey: signer.PubKey(),
			Name:   config.Moniker,
		}},
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return err
	}
	if err := genDoc.SaveAs(genFile); err != nil {
		return err
	}
	logger.Info("Generated genesis file", "path", genFile)

	return nil
}
