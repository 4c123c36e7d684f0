package mempool

import (
	"time"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"

	"shardbft/types"
)

// Mempool 交易池：未分配交易的FIFO队列加上按区块hash分组的已分配交易
// 同一个交易id任何时刻只会出现在其中一个位置
type Mempool interface {
	// Add 把交易放到未分配队列末尾，已经在池中的交易返回ErrTxInPool
	Add(tx types.Transaction) error

	// PoolFull 未分配交易是否达到了threshold
	PoolFull() bool

	// Assign 把区块里的交易移到该区块名下，并启动重新分配的定时器
	Assign(block *types.Block)

	// GetInflight 返回所有已分配交易的区块hash，exclude除外
	GetInflight(exclude []byte) []tmbytes.HexBytes

	// RemoveDuplicates 区块提交后调用：和txs有交集的其他区块全部放回未分配队列，
	// 再把txs从未分配队列中删掉
	RemoveDuplicates(blockHash []byte, txs types.Txs)

	// Clear round-change达成quorum后调用，结束区块的生命周期
	Clear(blockHash []byte, txs types.Txs)

	Exists(tx types.Transaction) bool
	Verify(tx types.Transaction) bool

	// ReapMaxTxs 按FIFO顺序返回最多max个未分配交易，不会从池中删除
	// max为负数时返回全部
	ReapMaxTxs(max int) types.Txs

	// Size 未分配交易数
	Size() int

	// Threshold 触发提案的未分配交易数，同时是一个区块的交易上限
	Threshold() int
	SetThreshold(threshold int)

	// Arrivals 窗口内每分钟的交易到达数，key是分钟开始的unix秒
	Arrivals() map[int64]int

	// SetScheduler 替换重新分配定时器的调度方式
	SetScheduler(schedule ScheduleFunc)
}

//--------------------------------------------------------------------------------

// PreCheckFunc 在交易加入池之前调用，返回error则拒绝交易
type PreCheckFunc func(types.Transaction) error

// ScheduleFunc 在d之后执行fn，用于重新分配的定时器
// 共识模块用它把定时任务投递到自己的事件循环里执行
type ScheduleFunc func(d time.Duration, fn func())
