package mempool

import (
	jsoniter "github.com/json-iterator/go"
	metrics "github.com/rcrowley/go-metrics"
)

func newMemMetric() *memMetric {
	return &memMetric{
		added:      metrics.NewCounter(),
		rejected:   metrics.NewCounter(),
		reassigned: metrics.NewCounter(),
		cleared:    metrics.NewCounter(),
		unassigned: metrics.NewGauge(),
		inflight:   metrics.NewGauge(),
	}
}

type memMetric struct {
	added      metrics.Counter // 进入交易池的交易总数
	rejected   metrics.Counter // 格式错误或者已经提交的交易
	reassigned metrics.Counter // 因为超时被放回未分配队列的交易
	cleared    metrics.Counter // round-change之后清理的交易
	unassigned metrics.Gauge   // 当前未分配交易数
	inflight   metrics.Gauge   // 当前在途的区块数
}

type memMetricSnapshot struct {
	AddedTxs      int64 `json:"added_txs"`
	RejectedTxs   int64 `json:"rejected_txs"`
	ReassignedTxs int64 `json:"reassigned_txs"`
	ClearedTxs    int64 `json:"cleared_txs"`
	Unassigned    int64 `json:"unassigned_txs"`
	Inflight      int64 `json:"inflight_blocks"`
}

func (mm *memMetric) JSONString() string {
	s, _ := jsoniter.MarshalToString(memMetricSnapshot{
		AddedTxs:      mm.added.Count(),
		RejectedTxs:   mm.rejected.Count(),
		ReassignedTxs: mm.reassigned.Count(),
		ClearedTxs:    mm.cleared.Count(),
		Unassigned:    mm.unassigned.Value(),
		Inflight:      mm.inflight.Value(),
	})
	return s
}

// Register 把指标注册到go-metrics的registry，方便统一导出
func (mm *memMetric) Register(r metrics.Registry) {
	_ = r.Register("mempool.added", mm.added)
	_ = r.Register("mempool.rejected", mm.rejected)
	_ = r.Register("mempool.reassigned", mm.reassigned)
	_ = r.Register("mempool.cleared", mm.cleared)
	_ = r.Register("mempool.unassigned", mm.unassigned)
	_ = r.Register("mempool.inflight", mm.inflight)
}

func (mm *memMetric) MarkAdded() {
	mm.added.Inc(1)
}

func (mm *memMetric) MarkRejected() {
	mm.rejected.Inc(1)
}

func (mm *memMetric) MarkReassigned(n int) {
	mm.reassigned.Inc(int64(n))
}

func (mm *memMetric) MarkCleared(n int) {
	mm.cleared.Inc(int64(n))
}

func (mm *memMetric) MarkUnassigned(n int) {
	mm.unassigned.Update(int64(n))
}

func (mm *memMetric) MarkInflight(n int) {
	mm.inflight.Update(int64(n))
}
