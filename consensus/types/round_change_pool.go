package types

import (
	"sync"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"

	"shardbft/types"
)

// RoundChangePool 收集区块提交之后的round-change消息
type RoundChangePool struct {
	mtx sync.RWMutex

	verifier types.Verifier

	messages map[string][]types.RoundChange
	voters   map[string]map[string]struct{}
}

func NewRoundChangePool(verifier types.Verifier) *RoundChangePool {
	return &RoundChangePool{
		verifier: verifier,
		messages: make(map[string][]types.RoundChange),
		voters:   make(map[string]map[string]struct{}),
	}
}

// Create 对已提交的block生成round-change消息
func (rp *RoundChangePool) Create(block *types.Block, signer types.Signer) (types.RoundChange, error) {
	sig, err := signer.Sign(types.RoundChangeSignHash(types.RoundChangeTag, block.Hash))
	if err != nil {
		return types.RoundChange{}, err
	}
	return types.RoundChange{
		PublicKey: signer.PubKey(),
		Message:   types.RoundChangeTag,
		BlockHash: block.Hash,
		Data:      block.Data.Copy(),
		Signature: sig,
	}, nil
}

func (rp *RoundChangePool) Add(rc types.RoundChange) error {
	rp.mtx.Lock()
	defer rp.mtx.Unlock()

	key := rc.BlockHash.String()
	voters, ok := rp.voters[key]
	if !ok {
		voters = make(map[string]struct{})
		rp.voters[key] = voters
	}
	voter := types.KeyString(rc.PublicKey)
	if _, dup := voters[voter]; dup {
		return ErrDuplicateVote
	}
	voters[voter] = struct{}{}
	rp.messages[key] = append(rp.messages[key], rc)
	return nil
}

func (rp *RoundChangePool) Exists(rc types.RoundChange) bool {
	rp.mtx.RLock()
	defer rp.mtx.RUnlock()
	_, ok := rp.voters[rc.BlockHash.String()][types.KeyString(rc.PublicKey)]
	return ok
}

func (rp *RoundChangePool) GetList(blockHash []byte) []types.RoundChange {
	rp.mtx.RLock()
	defer rp.mtx.RUnlock()
	msgs := rp.messages[tmbytes.HexBytes(blockHash).String()]
	if len(msgs) == 0 {
		return nil
	}
	return append([]types.RoundChange(nil), msgs...)
}

func (rp *RoundChangePool) HasQuorum(blockHash []byte, minApprovals int) bool {
	rp.mtx.RLock()
	defer rp.mtx.RUnlock()
	return minApprovals > 0 && len(rp.messages[tmbytes.HexBytes(blockHash).String()]) >= minApprovals
}

// IsValid 签名必须覆盖H(tag ++ blockHash)
func (rp *RoundChangePool) IsValid(rc types.RoundChange) bool {
	if err := rc.ValidateBasic(); err != nil {
		return false
	}
	return rp.verifier.Verify(rc.PublicKey, rc.Signature, types.RoundChangeSignHash(rc.Message, rc.BlockHash))
}

func (rp *RoundChangePool) Prune(blockHash []byte) {
	rp.mtx.Lock()
	defer rp.mtx.Unlock()
	key := tmbytes.HexBytes(blockHash).String()
	delete(rp.messages, key)
	delete(rp.voters, key)
}

func (rp *RoundChangePool) Size() int {
	rp.mtx.RLock()
	defer rp.mtx.RUnlock()
	return len(rp.messages)
}
