package types

import (
	"fmt"

	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

type VoteType uint8

const (
	PrepareVote = VoteType(1)
	CommitVote  = VoteType(2)
)

func (t VoteType) String() string {
	switch t {
	case PrepareVote:
		return "PrepareVote"
	case CommitVote:
		return "CommitVote"
	default:
		return "UnkownVote"
	}
}

// VoteSignHash 投票签名的对象: H(type ++ blockHash)
// prepare和commit带不同的前缀，prepare签名不能被当作commit重放
func VoteSignHash(t VoteType, blockHash []byte) []byte {
	tag := t.String()
	bz := make([]byte, 0, len(tag)+len(blockHash))
	bz = append(bz, tag...)
	bz = append(bz, blockHash...)
	return tmhash.Sum(bz)
}

// Vote - 针对某个区块的单个投票，一个验证者对一个blockHash只能有一张同类型的票
// 投票本身不带类型，类型由它所在的pool决定
type Vote struct {
	BlockHash tmbytes.HexBytes `json:"block_hash"`
	PublicKey PubKey           `json:"public_key"`
	Signature tmbytes.HexBytes `json:"signature"`
}

func (v *Vote) ValidateBasic() error {
	if len(v.BlockHash) == 0 {
		return fmt.Errorf("vote had no block hash")
	}
	if len(v.PublicKey) == 0 {
		return fmt.Errorf("vote had no public key")
	}
	if len(v.Signature) == 0 {
		return fmt.Errorf("vote had no signature")
	}
	return nil
}

func (v *Vote) String() string {
	return fmt.Sprintf("Vote{%v by %v}", v.BlockHash, v.PublicKey)
}
