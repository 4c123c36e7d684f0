package state

import "shardbft/types"

// Store 已提交区块的归档
// 链本身只在内存中维护，Store只用于查询和展示
type Store interface {
	SaveBlock(shardID string, block *types.Block) error

	LoadBlock(shardID string, sequenceNo int64) (*types.Block, error)

	// LastSequence 返回已归档的最大序号，没有区块时返回-1
	LastSequence(shardID string) (int64, error)
}
