package state

import (
	"sync"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"

	"shardbft/types"
)

// Bucket 选择BlockPool中的分组
type Bucket int

const (
	// PrimaryBucket 本分片提出、还没有提交的区块
	PrimaryBucket Bucket = iota
	// CommitteeBucket core转发过来的其他分片的区块
	CommitteeBucket

	numBuckets
)

// BlockPool 保存还没有提交的候选区块，不做任何校验
// 区块的合法性由Blockchain负责
type BlockPool struct {
	mtx     sync.RWMutex
	buckets [numBuckets]map[string]*types.Block
}

func NewBlockPool() *BlockPool {
	bp := &BlockPool{}
	for i := range bp.buckets {
		bp.buckets[i] = make(map[string]*types.Block)
	}
	return bp
}

func (bp *BlockPool) Add(block *types.Block, bucket Bucket) {
	bp.mtx.Lock()
	bp.buckets[bucket][block.Hash.String()] = block
	bp.mtx.Unlock()
}

func (bp *BlockPool) Exists(block *types.Block, bucket Bucket) bool {
	return bp.ExistsByHash(block.Hash, bucket)
}

func (bp *BlockPool) ExistsByHash(hash []byte, bucket Bucket) bool {
	bp.mtx.RLock()
	defer bp.mtx.RUnlock()
	_, ok := bp.buckets[bucket][tmbytes.HexBytes(hash).String()]
	return ok
}

// Get 返回区块，不存在时返回nil
func (bp *BlockPool) Get(hash []byte, bucket Bucket) *types.Block {
	bp.mtx.RLock()
	defer bp.mtx.RUnlock()
	return bp.buckets[bucket][tmbytes.HexBytes(hash).String()]
}

func (bp *BlockPool) Remove(hash []byte, bucket Bucket) {
	bp.mtx.Lock()
	delete(bp.buckets[bucket], tmbytes.HexBytes(hash).String())
	bp.mtx.Unlock()
}

func (bp *BlockPool) Size(bucket Bucket) int {
	bp.mtx.RLock()
	defer bp.mtx.RUnlock()
	return len(bp.buckets[bucket])
}

func (bp *BlockPool) Blocks(bucket Bucket) []*types.Block {
	bp.mtx.RLock()
	defer bp.mtx.RUnlock()
	blocks := make([]*types.Block, 0, len(bp.buckets[bucket]))
	for _, b := range bp.buckets[bucket] {
		blocks = append(blocks, b)
	}
	return blocks
}
