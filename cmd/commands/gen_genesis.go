package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	tmtime "github.com/tendermint/tendermint/types/time"

	cfg "shardbft/config"
	"shardbft/privval"
	"shardbft/types"
)

var (
	genesisShard   string
	genesisSeed    int64
	validatorCount int
)

// GenGenesisCmd 用集群种子生成整个分片的创世文件
// 每个节点再用同样的seed和自己的idx执行gen-validator（bls时配置bls_seed/bls_index）
var GenGenesisCmd = &cobra.Command{
	Use:     "gen-genesis",
	Aliases: []string{"gen_genesis"},
	Short:   "Generate a genesis file for a shard",
	PreRun:  deprecateSnakeCase,
	RunE:    genGenesisFile,
}

func init() {
	GenGenesisCmd.Flags().StringVar(&genesisShard, "shard", "shard-0", "分片id")
	GenGenesisCmd.Flags().Int64Var(&genesisSeed, "seed", 1, "用来生成集群密钥的种子")
	GenGenesisCmd.Flags().IntVar(&validatorCount, "validators", 4, "分片中验证者的数量")
}

func genGenesisFile(cmd *cobra.Command, args []string) error {
	// genesis file
	genFile := config.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("Found genesis file, exit.", "path", genFile)
		return nil
	}

	genDoc, err := makeGenesisDoc(genesisShard, config.Consensus.SignerScheme, genesisSeed, validatorCount)
	if err != nil {
		return err
	}
	if err := genDoc.SaveAs(genFile); err != nil {
		return err
	}
	logger.Info("Generated genesis file", "path", genFile, "shard", genDoc.ShardID,
		"validators", len(genDoc.Validators), "quorum", types.MinApprovals(len(genDoc.Validators)))

	return nil
}

func makeGenesisDoc(shardID, scheme string, seed int64, count int) (*types.GenesisDoc, error) {
	if count <= 0 {
		return nil, fmt.Errorf("validator count must be positive, got %d", count)
	}

	// 为每一个验证者生成公钥，编号从0开始
	vals := make([]types.GenesisValidator, count)
	for i := 0; i < count; i++ {
		var pubKey types.PubKey
		switch scheme {
		case cfg.SignerSchemeBLS:
			signer, err := privval.NewBLSSigner(seed, i)
			if err != nil {
				return nil, fmt.Errorf("生成第%v个验证者的公钥失败: %w", i, err)
			}
			pubKey = signer.PubKey()
		default:
			pubKey = privval.GenFilePVWithSeedAndIdx("", seed, i).PubKey()
		}
		vals[i] = types.GenesisValidator{
			PubKey: pubKey,
			Name:   fmt.Sprintf("validator-%v", i),
		}
	}

	genDoc := &types.GenesisDoc{
		ShardID:      shardID,
		GenesisTime:  tmtime.Now(),
		SignerScheme: scheme,
		Validators:   vals,
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return nil, err
	}
	return genDoc, nil
}
