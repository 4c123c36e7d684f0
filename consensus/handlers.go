package consensus

import (
	"fmt"

	"github.com/tendermint/tendermint/p2p"

	"shardbft/types"
)

type handlerFunc func(cs *ConsensusState, env *types.Envelope, peerID p2p.ID) error

// msgHandlers 按消息类型索引，新增类型时数组长度随之变化
var msgHandlers = [types.NumMsgTypes]handlerFunc{
	types.MsgTransaction:    (*ConsensusState).handleTransaction,
	types.MsgPrePrepare:     (*ConsensusState).handlePrePrepare,
	types.MsgPrepare:        (*ConsensusState).handlePrepare,
	types.MsgCommit:         (*ConsensusState).handleCommit,
	types.MsgRoundChange:    (*ConsensusState).handleRoundChange,
	types.MsgBlockToCore:    (*ConsensusState).handleOutbound,
	types.MsgBlockFromCore:  (*ConsensusState).handleBlockFromCore,
	types.MsgRateToCore:     (*ConsensusState).handleOutbound,
	types.MsgConfigFromCore: (*ConsensusState).handleConfigFromCore,
}

func init() {
	for t, h := range msgHandlers {
		if h == nil {
			panic(fmt.Sprintf("no handler for message type %v", types.MsgType(t)))
		}
	}
}
