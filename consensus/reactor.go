package consensus

import (
	"fmt"

	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/p2p"

	"shardbft/types"
)

const (
	ConsensusChannel = byte(0x20) // 分片内的共识消息
	CoreChannel      = byte(0x21) // 和core之间的消息

	maxMsgSize = 1048576 // 1MB
)

// ------- Reactor ------
// Reactor 把p2p switch适配成ConsensusState的Transport
type Reactor struct {
	p2p.BaseReactor

	consensus *ConsensusState
}

var _ Transport = (*Reactor)(nil)

func NewReactor(consensus *ConsensusState) *Reactor {
	conR := &Reactor{
		consensus: consensus,
	}
	conR.BaseReactor = *p2p.NewBaseReactor("Consensus", conR)
	consensus.SetTransport(conR)
	return conR
}

func (conR *Reactor) OnStart() error {
	conR.Logger.Info("Consensus Reactor started.")
	return conR.consensus.Start()
}

func (conR *Reactor) OnStop() {
	if err := conR.consensus.Stop(); err != nil {
		conR.Logger.Error("failed trying to stop consensus", "error", err)
	}
}

func (conR *Reactor) GetChannels() []*p2p.ChannelDescriptor {
	return []*p2p.ChannelDescriptor{
		{
			ID:                  ConsensusChannel,
			Priority:            10,
			SendQueueCapacity:   1000,
			RecvBufferCapacity:  50 * 4096,
			RecvMessageCapacity: maxMsgSize,
		},
		{
			ID:                  CoreChannel,
			Priority:            5,
			SendQueueCapacity:   100,
			RecvBufferCapacity:  50 * 4096,
			RecvMessageCapacity: maxMsgSize,
		},
	}
}

func (conR *Reactor) AddPeer(peer p2p.Peer) {
	conR.Logger.Debug("add peer", "peer", peer.ID())
}

func (conR *Reactor) RemovePeer(peer p2p.Peer, reason interface{}) {
	conR.Logger.Debug("remove peer", "peer", peer.ID(), "reason", reason)
}

func (conR *Reactor) Receive(chID byte, src p2p.Peer, msgBytes []byte) {
	if !conR.IsRunning() {
		conR.Logger.Debug("Receive", "src", src, "chID", chID, "bytes", msgBytes)
		return
	}

	env, err := decodeMsg(msgBytes)
	if err != nil {
		conR.Logger.Error("Error decoding message", "src", src, "chId", chID, "err", err)
		conR.Switch.StopPeerForError(src, err)
		return
	}

	switch chID {
	case ConsensusChannel:
		conR.consensus.Deliver(env, src.ID())

	case CoreChannel:
		// 分片内的节点之间也会收到发往core的消息，忽略
		if env.Type == types.MsgBlockFromCore || env.Type == types.MsgConfigFromCore {
			conR.consensus.Deliver(env, src.ID())
		}

	default:
		conR.Logger.Error(fmt.Sprintf("Unknown chID %X", chID))
	}
}

// Broadcast implements Transport
func (conR *Reactor) Broadcast(env *types.Envelope) {
	if conR.Switch == nil {
		return
	}
	bz, err := tmjson.Marshal(env)
	if err != nil {
		conR.Logger.Error("Marshal envelope failed.", "err", err, "msg", env)
		return
	}

	chID := ConsensusChannel
	if env.Type == types.MsgBlockToCore || env.Type == types.MsgRateToCore {
		chID = CoreChannel
	}
	conR.Switch.Broadcast(chID, bz)
}

// --------------------------

func decodeMsg(bz []byte) (*types.Envelope, error) {
	if len(bz) > maxMsgSize {
		return nil, fmt.Errorf("msg exceeds max size (%d > %d)", len(bz), maxMsgSize)
	}
	env := new(types.Envelope)
	if err := tmjson.Unmarshal(bz, env); err != nil {
		return nil, err
	}
	if err := env.ValidateBasic(); err != nil {
		return nil, err
	}
	return env, nil
}
