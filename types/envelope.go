package types

import (
	"errors"
	"fmt"
)

// MsgType 协议消息的类型
type MsgType uint8

const (
	MsgTransaction MsgType = iota
	MsgPrePrepare
	MsgPrepare
	MsgCommit
	MsgRoundChange
	MsgBlockToCore
	MsgBlockFromCore
	MsgRateToCore
	MsgConfigFromCore

	// NumMsgTypes 必须保持在最后，consensus里的handler表按它定长
	NumMsgTypes
)

var msgTypeNames = [NumMsgTypes]string{
	MsgTransaction:    "TRANSACTION",
	MsgPrePrepare:     "PRE-PREPARE",
	MsgPrepare:        "PREPARE",
	MsgCommit:         "COMMIT",
	MsgRoundChange:    "ROUND_CHANGE",
	MsgBlockToCore:    "BLOCK_TO_CORE",
	MsgBlockFromCore:  "BLOCK_FROM_CORE",
	MsgRateToCore:     "RATE_TO_CORE",
	MsgConfigFromCore: "CONFIG_FROM_CORE",
}

func (t MsgType) String() string {
	if t >= NumMsgTypes {
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
	return msgTypeNames[t]
}

// RateReport 上报给core的分片负载
type RateReport struct {
	ShardID string `json:"shard_id"`
	// 以分钟对齐的unix时间戳(十进制字符串) -> 这一分钟到达的交易数
	Arrivals       map[string]int `json:"arrivals"`
	Unassigned     int            `json:"unassigned"`
	TotalBlocks    int            `json:"total_blocks"`
	TotalTxs       int            `json:"total_txs"`
	TxsLastMinute  int            `json:"txs_last_minute"`
	InflightBlocks int            `json:"inflight_blocks"`
}

// ShardConfig core下发的运行时配置，nil字段表示不修改
type ShardConfig struct {
	TransactionThreshold *int  `json:"transaction_threshold,omitempty"`
	Faulty               *bool `json:"faulty,omitempty"`
}

// Envelope 传输层和共识之间交换的消息
// 只有与Type对应的字段有值
type Envelope struct {
	Type MsgType `json:"type"`
	// 发送该消息的分片
	ShardID string `json:"shard_id,omitempty"`

	Transaction *Transaction `json:"transaction,omitempty"`
	Block       *Block       `json:"block,omitempty"`
	Vote        *Vote        `json:"vote,omitempty"`
	RoundChange *RoundChange `json:"round_change,omitempty"`
	Rate        *RateReport  `json:"rate,omitempty"`
	Config      *ShardConfig `json:"config,omitempty"`
}

func NewTxEnvelope(tx Transaction) *Envelope {
	return &Envelope{Type: MsgTransaction, Transaction: &tx}
}

func NewBlockEnvelope(t MsgType, block *Block) *Envelope {
	return &Envelope{Type: t, Block: block}
}

func NewVoteEnvelope(t MsgType, vote Vote) *Envelope {
	return &Envelope{Type: t, Vote: &vote}
}

func NewRoundChangeEnvelope(rc RoundChange) *Envelope {
	return &Envelope{Type: MsgRoundChange, RoundChange: &rc}
}

// ValidateBasic 检查Type和负载是否对得上
func (env *Envelope) ValidateBasic() error {
	if env == nil {
		return errors.New("nil envelope")
	}
	var missing bool
	switch env.Type {
	case MsgTransaction:
		missing = env.Transaction == nil
	case MsgPrePrepare, MsgBlockToCore, MsgBlockFromCore:
		missing = env.Block == nil
	case MsgPrepare, MsgCommit:
		missing = env.Vote == nil
	case MsgRoundChange:
		missing = env.RoundChange == nil
	case MsgRateToCore:
		missing = env.Rate == nil
	case MsgConfigFromCore:
		missing = env.Config == nil
	default:
		return fmt.Errorf("unknown message type %v", env.Type)
	}
	if missing {
		return fmt.Errorf("%v message without payload", env.Type)
	}
	return nil
}

func (env *Envelope) String() string {
	return fmt.Sprintf("[%v shard=%s]", env.Type, env.ShardID)
}
