package types

import (
	"fmt"

	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// RoundChangeTag round-change消息里固定的字面量
const RoundChangeTag = "INITIATE NEW ROUND"

// RoundChange 标志一个区块已经提交，收齐quorum后各节点清理该区块的交易
type RoundChange struct {
	PublicKey PubKey           `json:"public_key"`
	Message   string           `json:"message"`
	BlockHash tmbytes.HexBytes `json:"block_hash"`
	Data      Txs              `json:"data"`
	Signature tmbytes.HexBytes `json:"signature"`
}

// RoundChangeSignHash H(tag ++ blockHash)
func RoundChangeSignHash(message string, blockHash []byte) []byte {
	bz := make([]byte, 0, len(message)+len(blockHash))
	bz = append(bz, message...)
	bz = append(bz, blockHash...)
	return tmhash.Sum(bz)
}

func (rc *RoundChange) ValidateBasic() error {
	if rc.Message != RoundChangeTag {
		return fmt.Errorf("unexpected round change tag %q", rc.Message)
	}
	if len(rc.BlockHash) == 0 {
		return fmt.Errorf("round change had no block hash")
	}
	if len(rc.PublicKey) == 0 || len(rc.Signature) == 0 {
		return fmt.Errorf("round change is not signed")
	}
	return nil
}
