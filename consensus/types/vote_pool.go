package types

import (
	"errors"
	"sync"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"

	"shardbft/types"
)

var (
	ErrDuplicateVote = errors.New("duplicate vote")
	ErrInvalidVote   = errors.New("invalid vote signature")
)

// VotePool 按区块hash收集同一类投票
// 同一个公钥对同一个hash只记一票，签名内容不影响去重
type VotePool struct {
	mtx sync.RWMutex

	voteType types.VoteType
	verifier types.Verifier

	// subject key -> 按到达顺序的投票
	votes map[string][]types.Vote
	// subject key -> 已经投过票的公钥
	voters map[string]map[string]struct{}
}

func newVotePool(voteType types.VoteType, verifier types.Verifier) *VotePool {
	return &VotePool{
		voteType: voteType,
		verifier: verifier,
		votes:    make(map[string][]types.Vote),
		voters:   make(map[string]map[string]struct{}),
	}
}

// NewPreparePool prepare的subject是区块
func NewPreparePool(verifier types.Verifier) *VotePool {
	return newVotePool(types.PrepareVote, verifier)
}

// NewCommitPool commit的subject是prepare指向的区块
func NewCommitPool(verifier types.Verifier) *VotePool {
	return newVotePool(types.CommitVote, verifier)
}

func (vp *VotePool) Type() types.VoteType {
	return vp.voteType
}

// Create 生成本节点对blockHash的投票，不会加入pool
func (vp *VotePool) Create(blockHash []byte, signer types.Signer) (types.Vote, error) {
	sig, err := signer.Sign(types.VoteSignHash(vp.voteType, blockHash))
	if err != nil {
		return types.Vote{}, err
	}
	return types.Vote{
		BlockHash: tmbytes.HexBytes(blockHash),
		PublicKey: signer.PubKey(),
		Signature: sig,
	}, nil
}

// Add 加入一张投票，重复的投票返回ErrDuplicateVote
// 签名需要调用方先用IsValid检查
func (vp *VotePool) Add(vote types.Vote) error {
	vp.mtx.Lock()
	defer vp.mtx.Unlock()

	key := vote.BlockHash.String()
	voters, ok := vp.voters[key]
	if !ok {
		voters = make(map[string]struct{})
		vp.voters[key] = voters
	}
	voter := types.KeyString(vote.PublicKey)
	if _, dup := voters[voter]; dup {
		return ErrDuplicateVote
	}
	voters[voter] = struct{}{}
	vp.votes[key] = append(vp.votes[key], vote)
	return nil
}

// Exists 同一个公钥是否已经对同一个hash投过票
func (vp *VotePool) Exists(vote types.Vote) bool {
	vp.mtx.RLock()
	defer vp.mtx.RUnlock()
	_, ok := vp.voters[vote.BlockHash.String()][types.KeyString(vote.PublicKey)]
	return ok
}

// GetList 返回blockHash收到的投票的拷贝
func (vp *VotePool) GetList(blockHash []byte) []types.Vote {
	vp.mtx.RLock()
	defer vp.mtx.RUnlock()
	votes := vp.votes[tmbytes.HexBytes(blockHash).String()]
	if len(votes) == 0 {
		return nil
	}
	return append([]types.Vote(nil), votes...)
}

func (vp *VotePool) Count(blockHash []byte) int {
	vp.mtx.RLock()
	defer vp.mtx.RUnlock()
	return len(vp.votes[tmbytes.HexBytes(blockHash).String()])
}

// HasQuorum 投票数是否达到minApprovals
func (vp *VotePool) HasQuorum(blockHash []byte, minApprovals int) bool {
	return minApprovals > 0 && vp.Count(blockHash) >= minApprovals
}

// IsValid 签名能否用投票者的公钥在该类投票的hash上验证通过
func (vp *VotePool) IsValid(vote types.Vote) bool {
	if err := vote.ValidateBasic(); err != nil {
		return false
	}
	return vp.verifier.Verify(vote.PublicKey, vote.Signature, types.VoteSignHash(vp.voteType, vote.BlockHash))
}

// Prune 删除blockHash的全部投票
func (vp *VotePool) Prune(blockHash []byte) {
	vp.mtx.Lock()
	defer vp.mtx.Unlock()
	key := tmbytes.HexBytes(blockHash).String()
	delete(vp.votes, key)
	delete(vp.voters, key)
}

// Size 有投票的hash个数
func (vp *VotePool) Size() int {
	vp.mtx.RLock()
	defer vp.mtx.RUnlock()
	return len(vp.votes)
}
