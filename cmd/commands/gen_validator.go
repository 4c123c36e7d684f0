package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"

	cfg "shardbft/config"
	"shardbft/node"
	"shardbft/privval"
)

var (
	seed int64
	idx  int
)

// GenValidatorCmd生成共识验证者的公私钥对
var GenValidatorCmd = &cobra.Command{
	Use:     "gen-validator",
	Aliases: []string{"gen_validator"},
	Args:    cobra.ArbitraryArgs,
	Short:   "Generate new validator keypair",
	PreRun:  deprecateSnakeCase,
	RunE:    genValidator,
}

// ShowValidatorCmd 打印本节点的验证者公钥，用来拼装创世文件
var ShowValidatorCmd = &cobra.Command{
	Use:     "show-validator",
	Aliases: []string{"show_validator"},
	Short:   "Show this node's validator info",
	PreRun:  deprecateSnakeCase,
	RunE:    showValidator,
}

func init() {
	GenValidatorCmd.Flags().Int64Var(&seed, "seed", 0, "集群种子，和idx一起决定私钥，为0时随机生成")
	GenValidatorCmd.Flags().IntVar(&idx, "idx", 0, "共识节点的编号，影响节点private key的生成")
}

// newFilePV 指定了seed时和gen-genesis推导出同样的密钥
func newFilePV(keyFilePath string) *privval.FilePV {
	if seed != 0 {
		return privval.GenFilePVWithSeedAndIdx(keyFilePath, seed, idx)
	}
	return privval.GenFilePV(keyFilePath)
}

func genValidator(cmd *cobra.Command, args []string) error {
	if config.Consensus.SignerScheme == cfg.SignerSchemeBLS {
		return fmt.Errorf("bls keys are derived from bls_seed and bls_index, nothing to generate")
	}

	privValKeyFile := config.PrivValidatorKeyFile()
	if tmos.FileExists(privValKeyFile) {
		logger.Info("Found private validator", "keyFile", privValKeyFile)
		return nil
	}

	pv := newFilePV(privValKeyFile)
	pv.Save()

	jsbz, err := tmjson.Marshal(pv.PubKey())
	if err != nil {
		return err
	}
	fmt.Println(string(jsbz))
	return nil
}

func showValidator(cmd *cobra.Command, args []string) error {
	signer, err := node.LoadSigner(config)
	if err != nil {
		return err
	}

	bz, err := tmjson.Marshal(signer.PubKey())
	if err != nil {
		return fmt.Errorf("failed to marshal private validator pubkey: %w", err)
	}
	fmt.Println(string(bz))
	return nil
}
