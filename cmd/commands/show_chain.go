package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	tmjson "github.com/tendermint/tendermint/libs/json"
	tmos "github.com/tendermint/tendermint/libs/os"

	"shardbft/store"
	"shardbft/types"
)

var (
	chainShard string
	showJSON   bool
)

// ShowChainCmd 打印归档中已经提交的区块，节点运行时goleveldb会被锁住
var ShowChainCmd = &cobra.Command{
	Use:     "show-chain",
	Aliases: []string{"show_chain"},
	Short:   "Print the committed blocks archived by this node",
	PreRun:  deprecateSnakeCase,
	RunE:    showChain,
}

func init() {
	ShowChainCmd.Flags().StringVar(&chainShard, "shard", "", "分片id，不指定时读取创世文件")
	ShowChainCmd.Flags().BoolVar(&showJSON, "json", false, "以json格式输出完整的区块")
}

func showChain(cmd *cobra.Command, args []string) error {
	shard := chainShard
	if shard == "" {
		if !tmos.FileExists(config.GenesisFile()) {
			return fmt.Errorf("no --shard given and no genesis file at %s", config.GenesisFile())
		}
		genDoc, err := types.GenesisDocFromFile(config.GenesisFile())
		if err != nil {
			return err
		}
		shard = genDoc.ShardID
	}

	kv, err := store.NewKVStore("blockstore", config.DBDir(), config.DBBackend, logger)
	if err != nil {
		return err
	}
	defer kv.Close()

	return printChain(os.Stdout, kv, shard, showJSON)
}

func printChain(w io.Writer, kv *store.KVStore, shard string, asJSON bool) error {
	blocks, err := kv.Blocks(shard)
	if err != nil {
		return err
	}

	for _, block := range blocks {
		if asJSON {
			bz, err := tmjson.MarshalIndent(block, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(bz))
			continue
		}
		fmt.Fprintf(w, "#%d %v proposer=%v txs=%d prepares=%d commits=%d time=%s\n",
			block.SequenceNo, block.Hash, block.Proposer, len(block.Data),
			len(block.PrepareMessages), len(block.CommitMessages), block.Timestamp.UTC().Format("2006-01-02T15:04:05Z"))
	}
	if !asJSON {
		fmt.Fprintf(w, "shard %s: %d blocks\n", shard, len(blocks))
	}
	return nil
}
