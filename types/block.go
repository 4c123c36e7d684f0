package types

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/tendermint/tendermint/crypto/merkle"
	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

var (
	ErrBlockNoHash      = errors.New("block had no blockhash")
	ErrBlockNoSignature = errors.New("block had no signature")
	ErrBlockNoProposer  = errors.New("block had no proposer")
)

// 创世块的固定字段，所有节点一致，不参与签名校验
var (
	GenesisTime     = time.Unix(0, 0).UTC()
	GenesisLastHash = tmbytes.HexBytes("----")
	GenesisHash     = tmbytes.HexBytes(tmhash.Sum([]byte("genesis-hash")))
	GenesisProposer = PubKey("genesis")
)

// Block local blockchain维护的区块的基本单位
// 一旦签名就不可变，Prepares/Commits是提交时附带的投票证据，不参与hash计算
type Block struct {
	Timestamp  time.Time        `json:"timestamp"`
	LastHash   tmbytes.HexBytes `json:"last_hash"`
	Hash       tmbytes.HexBytes `json:"hash"`
	Data       Txs              `json:"data"`
	Proposer   PubKey           `json:"proposer"`
	Signature  tmbytes.HexBytes `json:"signature"`
	SequenceNo int64            `json:"sequence_no"`

	PrepareMessages []Vote `json:"prepare_messages,omitempty"`
	CommitMessages  []Vote `json:"commit_messages,omitempty"`
}

// MakeGenesisBlock 返回固定的创世块
func MakeGenesisBlock() *Block {
	return &Block{
		Timestamp:  GenesisTime,
		LastHash:   GenesisLastHash,
		Hash:       GenesisHash,
		Data:       Txs{},
		Proposer:   GenesisProposer,
		SequenceNo: 0,
	}
}

// ComputeBlockHash H(timestamp, lastHash, data)
func ComputeBlockHash(timestamp time.Time, lastHash []byte, data Txs) tmbytes.HexBytes {
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(timestamp.UnixNano()))
	return merkle.HashFromByteSlices([][]byte{
		ts[:],
		lastHash,
		data.Hash(),
	})
}

// ValidteBasic 检验一个block是否合法 - 这里的合法指的是没有明确的格式错误
func (b *Block) ValidateBasic() error {
	if len(b.Hash) == 0 {
		return ErrBlockNoHash
	}
	if len(b.Signature) == 0 {
		return ErrBlockNoSignature
	}
	if len(b.Proposer) == 0 {
		return ErrBlockNoProposer
	}
	return nil
}

func (b *Block) IsGenesis() bool {
	return b.SequenceNo == 0 && bytes.Equal(b.Hash, GenesisHash)
}

// Copy 浅拷贝区块，交易和投票列表单独拷贝
func (b *Block) Copy() *Block {
	if b == nil {
		return nil
	}
	cp := *b
	cp.Data = b.Data.Copy()
	if b.PrepareMessages != nil {
		cp.PrepareMessages = append([]Vote(nil), b.PrepareMessages...)
	}
	if b.CommitMessages != nil {
		cp.CommitMessages = append([]Vote(nil), b.CommitMessages...)
	}
	return &cp
}

func (b *Block) String() string {
	if b == nil {
		return "nil-Block"
	}
	return fmt.Sprintf("Block{#%d %v <- %v txs:%d proposer:%v}",
		b.SequenceNo, b.Hash, b.LastHash, len(b.Data), b.Proposer)
}
