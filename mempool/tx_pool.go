package mempool

import (
	"sort"
	"sync"
	"time"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	"github.com/tendermint/tendermint/libs/clist"
	"github.com/tendermint/tendermint/libs/log"

	"shardbft/config"
	"shardbft/slot"
	"shardbft/types"
)

// 交易在池中的位置：unassignedLoc或者区块hash
const unassignedLoc = ""

// assignedBlock 分配给同一个提案的交易
type assignedBlock struct {
	hash       tmbytes.HexBytes
	txs        map[string]types.Transaction
	order      []string
	assignedAt int64 // unix nano

	// 区块已经提交，定时器不再把交易放回未分配队列
	committed bool
}

func (ab *assignedBlock) remove(id string) {
	delete(ab.txs, id)
}

// list 按区块中的顺序返回还在该区块名下的交易
func (ab *assignedBlock) list() types.Txs {
	txs := make(types.Txs, 0, len(ab.txs))
	for _, id := range ab.order {
		if tx, ok := ab.txs[id]; ok {
			txs = append(txs, tx)
		}
	}
	return txs
}

type TransactionPool struct {
	mtx sync.RWMutex

	config    *config.MempoolConfig
	threshold int

	verifier types.Verifier
	clock    slot.Clock
	schedule ScheduleFunc
	preCheck PreCheckFunc

	// 未分配交易，FIFO
	unassigned    *clist.CList
	unassignedMap map[string]*clist.CElement

	// blockHash -> 分配给该区块的交易
	assigned map[string]*assignedBlock

	// txID -> unassignedLoc 或者 blockHash
	locations map[string]string

	// 以分钟对齐的unix时间 -> 这一分钟到达的交易数
	arrivals map[int64]int

	metric *memMetric
	logger log.Logger
}

var _ Mempool = (*TransactionPool)(nil)

type TxPoolOption func(*TransactionPool)

func SetPreCheck(precheck PreCheckFunc) TxPoolOption {
	return func(mem *TransactionPool) {
		mem.preCheck = precheck
	}
}

func SetClock(clock slot.Clock) TxPoolOption {
	return func(mem *TransactionPool) {
		mem.clock = clock
	}
}

func SetScheduler(schedule ScheduleFunc) TxPoolOption {
	return func(mem *TransactionPool) {
		mem.schedule = schedule
	}
}

func NewTransactionPool(
	config *config.MempoolConfig,
	threshold int,
	verifier types.Verifier,
	options ...TxPoolOption,
) *TransactionPool {
	mem := &TransactionPool{
		config:        config,
		threshold:     threshold,
		verifier:      verifier,
		clock:         slot.SystemClock{},
		unassigned:    clist.New(),
		unassignedMap: make(map[string]*clist.CElement),
		assigned:      make(map[string]*assignedBlock),
		locations:     make(map[string]string),
		arrivals:      make(map[int64]int),
		metric:        newMemMetric(),
		logger:        log.NewNopLogger(),
	}

	for _, option := range options {
		option(mem)
	}

	if mem.schedule == nil {
		clock := mem.clock
		mem.schedule = func(d time.Duration, fn func()) { clock.AfterFunc(d, fn) }
	}

	return mem
}

func (mem *TransactionPool) SetLogger(logger log.Logger) {
	mem.logger = logger
}

// SetScheduler 替换重新分配定时器的调度方式，必须在使用pool之前调用
func (mem *TransactionPool) SetScheduler(schedule ScheduleFunc) {
	mem.mtx.Lock()
	mem.schedule = schedule
	mem.mtx.Unlock()
}

// SetThreshold CONFIG_FROM_CORE可以在运行时修改threshold
func (mem *TransactionPool) SetThreshold(threshold int) {
	mem.mtx.Lock()
	mem.threshold = threshold
	mem.mtx.Unlock()
}

func (mem *TransactionPool) Threshold() int {
	mem.mtx.RLock()
	defer mem.mtx.RUnlock()
	return mem.threshold
}

func (mem *TransactionPool) Metric() *memMetric {
	return mem.metric
}

// Add implements Mempool
// 格式或签名不对的交易直接拒绝
func (mem *TransactionPool) Add(tx types.Transaction) error {
	if !types.VerifyTx(tx, mem.verifier) {
		mem.metric.MarkRejected()
		return ErrInvalidTx
	}
	if mem.preCheck != nil {
		if err := mem.preCheck(tx); err != nil {
			mem.metric.MarkRejected()
			return err
		}
	}

	mem.mtx.Lock()
	defer mem.mtx.Unlock()

	if _, ok := mem.locations[tx.ID]; ok {
		return ErrTxInPool
	}

	mem.pushUnassigned(tx)
	mem.recordArrival()
	mem.metric.MarkAdded()
	mem.updateGauges()

	return nil
}

// PoolFull implements Mempool
func (mem *TransactionPool) PoolFull() bool {
	mem.mtx.RLock()
	defer mem.mtx.RUnlock()
	return mem.unassigned.Len() >= mem.threshold
}

// Assign implements Mempool
// 区块中的交易不管原来在哪里都会被移到该区块名下
func (mem *TransactionPool) Assign(block *types.Block) {
	mem.mtx.Lock()
	defer mem.mtx.Unlock()

	key := block.Hash.String()
	if _, ok := mem.assigned[key]; ok {
		return
	}

	ab := &assignedBlock{
		hash:       block.Hash,
		txs:        make(map[string]types.Transaction, len(block.Data)),
		order:      make([]string, 0, len(block.Data)),
		assignedAt: mem.clock.Now().UnixNano(),
	}
	for _, tx := range block.Data {
		if _, ok := ab.txs[tx.ID]; ok {
			continue
		}
		mem.detach(tx.ID)
		ab.txs[tx.ID] = tx
		ab.order = append(ab.order, tx.ID)
		mem.locations[tx.ID] = key
	}
	mem.assigned[key] = ab
	mem.updateGauges()

	mem.schedule(mem.config.ReassignTimeout, func() {
		mem.reassign(ab)
	})
}

// reassign 提案超时没有提交，把还在该区块名下的交易放回未分配队列
func (mem *TransactionPool) reassign(ab *assignedBlock) {
	mem.mtx.Lock()
	defer mem.mtx.Unlock()

	key := ab.hash.String()
	if cur, ok := mem.assigned[key]; !ok || cur != ab || ab.committed {
		return
	}

	txs := ab.list()
	delete(mem.assigned, key)
	for _, tx := range txs {
		delete(mem.locations, tx.ID)
		mem.pushReturned(tx)
	}
	mem.updateGauges()

	if len(txs) > 0 {
		mem.metric.MarkReassigned(len(txs))
		mem.logger.Info("reassigned txs of uncommitted block", "block", ab.hash, "txs", len(txs))
	}
}

// GetInflight implements Mempool
// 按分配时间从早到晚排序
func (mem *TransactionPool) GetInflight(exclude []byte) []tmbytes.HexBytes {
	mem.mtx.RLock()
	defer mem.mtx.RUnlock()

	excludeKey := tmbytes.HexBytes(exclude).String()
	blocks := make([]*assignedBlock, 0, len(mem.assigned))
	for key, ab := range mem.assigned {
		if len(exclude) > 0 && key == excludeKey {
			continue
		}
		if ab.committed {
			continue
		}
		blocks = append(blocks, ab)
	}
	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].assignedAt < blocks[j].assignedAt
	})

	hashes := make([]tmbytes.HexBytes, len(blocks))
	for i, ab := range blocks {
		hashes[i] = ab.hash
	}
	return hashes
}

// RemoveDuplicates implements Mempool
func (mem *TransactionPool) RemoveDuplicates(blockHash []byte, txs types.Txs) {
	mem.mtx.Lock()
	defer mem.mtx.Unlock()

	key := tmbytes.HexBytes(blockHash).String()
	ids := txs.IDs()

	if ab, ok := mem.assigned[key]; ok {
		ab.committed = true
	}

	for otherKey, ab := range mem.assigned {
		if otherKey == key || !ab.sharesAny(ids) {
			continue
		}
		// 重复的提案，整个放回未分配队列
		returned := ab.list()
		delete(mem.assigned, otherKey)
		for _, tx := range returned {
			delete(mem.locations, tx.ID)
			mem.pushReturned(tx)
		}
		mem.logger.Debug("returned duplicate proposal", "block", ab.hash, "committed", tmbytes.HexBytes(blockHash), "txs", len(returned))
	}

	for id := range ids {
		if mem.locations[id] == unassignedLoc {
			mem.removeUnassigned(id)
		}
	}
	mem.updateGauges()
}

func (ab *assignedBlock) sharesAny(ids map[string]struct{}) bool {
	for id := range ab.txs {
		if _, ok := ids[id]; ok {
			return true
		}
	}
	return false
}

// Clear implements Mempool
func (mem *TransactionPool) Clear(blockHash []byte, txs types.Txs) {
	mem.mtx.Lock()
	defer mem.mtx.Unlock()

	key := tmbytes.HexBytes(blockHash).String()
	if ab, ok := mem.assigned[key]; ok {
		for id := range ab.txs {
			if mem.locations[id] == key {
				delete(mem.locations, id)
			}
		}
		delete(mem.assigned, key)
	}

	for _, tx := range txs {
		loc, ok := mem.locations[tx.ID]
		if !ok {
			continue
		}
		if loc == unassignedLoc {
			mem.removeUnassigned(tx.ID)
		}
	}
	mem.metric.MarkCleared(len(txs))
	mem.updateGauges()
}

// Exists implements Mempool
func (mem *TransactionPool) Exists(tx types.Transaction) bool {
	mem.mtx.RLock()
	defer mem.mtx.RUnlock()
	_, ok := mem.locations[tx.ID]
	return ok
}

// Verify implements Mempool
func (mem *TransactionPool) Verify(tx types.Transaction) bool {
	return types.VerifyTx(tx, mem.verifier)
}

// ReapMaxTxs implements Mempool
func (mem *TransactionPool) ReapMaxTxs(max int) types.Txs {
	mem.mtx.RLock()
	defer mem.mtx.RUnlock()

	size := mem.unassigned.Len()
	if max >= 0 && max < size {
		size = max
	}
	txs := make(types.Txs, 0, size)
	for e := mem.unassigned.Front(); e != nil && len(txs) < size; e = e.Next() {
		txs = append(txs, e.Value.(types.Transaction))
	}
	return txs
}

// Size implements Mempool
func (mem *TransactionPool) Size() int {
	return mem.unassigned.Len()
}

// AssignedSize 所有区块名下的交易总数
func (mem *TransactionPool) AssignedSize() int {
	mem.mtx.RLock()
	defer mem.mtx.RUnlock()
	n := 0
	for _, ab := range mem.assigned {
		n += len(ab.txs)
	}
	return n
}

// Assigned 返回区块名下还没有被移走的交易
func (mem *TransactionPool) Assigned(blockHash []byte) (types.Txs, bool) {
	mem.mtx.RLock()
	defer mem.mtx.RUnlock()
	ab, ok := mem.assigned[tmbytes.HexBytes(blockHash).String()]
	if !ok {
		return nil, false
	}
	return ab.list(), true
}

// Arrivals 返回窗口内每分钟的到达数
func (mem *TransactionPool) Arrivals() map[int64]int {
	mem.mtx.Lock()
	defer mem.mtx.Unlock()
	mem.pruneArrivals()
	cp := make(map[int64]int, len(mem.arrivals))
	for k, v := range mem.arrivals {
		cp[k] = v
	}
	return cp
}

// Flush 清空整个交易池
func (mem *TransactionPool) Flush() {
	mem.mtx.Lock()
	defer mem.mtx.Unlock()

	for e := mem.unassigned.Front(); e != nil; e = e.Next() {
		mem.unassigned.Remove(e)
		e.DetachPrev()
	}
	mem.unassignedMap = make(map[string]*clist.CElement)
	mem.assigned = make(map[string]*assignedBlock)
	mem.locations = make(map[string]string)
	mem.updateGauges()
}

//--------------------------------------------------------------------------------
// 以下函数由caller负责加锁

func (mem *TransactionPool) pushUnassigned(tx types.Transaction) {
	if _, ok := mem.unassignedMap[tx.ID]; ok {
		return
	}
	e := mem.unassigned.PushBack(tx)
	mem.unassignedMap[tx.ID] = e
	mem.locations[tx.ID] = unassignedLoc
}

// pushReturned 放回未分配队列前重新做precheck，已经上链的交易直接丢弃
func (mem *TransactionPool) pushReturned(tx types.Transaction) {
	if mem.preCheck != nil && mem.preCheck(tx) != nil {
		return
	}
	mem.pushUnassigned(tx)
}

func (mem *TransactionPool) removeUnassigned(id string) {
	e, ok := mem.unassignedMap[id]
	if !ok {
		return
	}
	mem.unassigned.Remove(e)
	e.DetachPrev()
	delete(mem.unassignedMap, id)
	delete(mem.locations, id)
}

// detach 把交易从当前位置移除，空的区块分组一并删除
func (mem *TransactionPool) detach(id string) {
	loc, ok := mem.locations[id]
	if !ok {
		return
	}
	if loc == unassignedLoc {
		mem.removeUnassigned(id)
		return
	}
	if ab, ok := mem.assigned[loc]; ok {
		ab.remove(id)
		if len(ab.txs) == 0 && !ab.committed {
			delete(mem.assigned, loc)
		}
	}
	delete(mem.locations, id)
}

func (mem *TransactionPool) recordArrival() {
	mem.arrivals[slot.MinuteStart(mem.clock.Now())]++
	mem.pruneArrivals()
}

func (mem *TransactionPool) pruneArrivals() {
	oldest := slot.MinuteStart(mem.clock.Now().Add(-mem.config.RateWindow))
	for minute := range mem.arrivals {
		if minute < oldest {
			delete(mem.arrivals, minute)
		}
	}
}

func (mem *TransactionPool) updateGauges() {
	mem.metric.MarkUnassigned(mem.unassigned.Len())
	mem.metric.MarkInflight(len(mem.assigned))
}
