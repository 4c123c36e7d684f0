package consensus

import (
	jsoniter "github.com/json-iterator/go"
	metrics "github.com/rcrowley/go-metrics"

	"shardbft/types"
)

func newConsensusMetric() *consensusMetric {
	return &consensusMetric{
		proposals:         metrics.NewCounter(),
		committedBlocks:   metrics.NewCounter(),
		committedTxs:      metrics.NewCounter(),
		roundChanges:      metrics.NewCounter(),
		rejected:          metrics.NewCounter(),
		dropped:           metrics.NewCounter(),
		reconcileFailures: metrics.NewCounter(),
		redistributed:     metrics.NewCounter(),
		height:            metrics.NewGauge(),
		lastSequence:      metrics.NewGauge(),
	}
}

type consensusMetric struct {
	proposals         metrics.Counter // 本节点提出的区块
	committedBlocks   metrics.Counter
	committedTxs      metrics.Counter
	roundChanges      metrics.Counter // round-change达到quorum的区块
	rejected          metrics.Counter // 校验失败或者重复的消息
	dropped           metrics.Counter // 故障模式下丢弃的消息
	reconcileFailures metrics.Counter
	redistributed     metrics.Counter // 重新广播的交易
	height            metrics.Gauge
	lastSequence      metrics.Gauge
}

type consensusMetricSnapshot struct {
	Proposals         int64 `json:"proposals"`
	CommittedBlocks   int64 `json:"committed_blocks"`
	CommittedTxs      int64 `json:"committed_txs"`
	RoundChanges      int64 `json:"round_changes"`
	Rejected          int64 `json:"rejected_msgs"`
	Dropped           int64 `json:"dropped_msgs"`
	ReconcileFailures int64 `json:"reconcile_failures"`
	Redistributed     int64 `json:"redistributed_txs"`
	Height            int64 `json:"height"`
	LastSequence      int64 `json:"last_sequence"`
}

func (cm *consensusMetric) snapshot() consensusMetricSnapshot {
	return consensusMetricSnapshot{
		Proposals:         cm.proposals.Count(),
		CommittedBlocks:   cm.committedBlocks.Count(),
		CommittedTxs:      cm.committedTxs.Count(),
		RoundChanges:      cm.roundChanges.Count(),
		Rejected:          cm.rejected.Count(),
		Dropped:           cm.dropped.Count(),
		ReconcileFailures: cm.reconcileFailures.Count(),
		Redistributed:     cm.redistributed.Count(),
		Height:            cm.height.Value(),
		LastSequence:      cm.lastSequence.Value(),
	}
}

func (cm *consensusMetric) JSONString() string {
	s, _ := jsoniter.MarshalToString(cm.snapshot())
	return s
}

// Register 把指标注册到go-metrics的registry
func (cm *consensusMetric) Register(r metrics.Registry) {
	_ = r.Register("consensus.proposals", cm.proposals)
	_ = r.Register("consensus.committed_blocks", cm.committedBlocks)
	_ = r.Register("consensus.committed_txs", cm.committedTxs)
	_ = r.Register("consensus.round_changes", cm.roundChanges)
	_ = r.Register("consensus.rejected", cm.rejected)
	_ = r.Register("consensus.dropped", cm.dropped)
	_ = r.Register("consensus.reconcile_failures", cm.reconcileFailures)
	_ = r.Register("consensus.redistributed", cm.redistributed)
	_ = r.Register("consensus.height", cm.height)
	_ = r.Register("consensus.last_sequence", cm.lastSequence)
}

func (cm *consensusMetric) MarkProposal() {
	cm.proposals.Inc(1)
}

func (cm *consensusMetric) MarkCommitted(block *types.Block, height int) {
	cm.committedBlocks.Inc(1)
	cm.committedTxs.Inc(int64(len(block.Data)))
	cm.height.Update(int64(height))
	cm.lastSequence.Update(block.SequenceNo)
}

func (cm *consensusMetric) MarkRoundChange() {
	cm.roundChanges.Inc(1)
}

func (cm *consensusMetric) MarkRejected() {
	cm.rejected.Inc(1)
}

func (cm *consensusMetric) MarkDropped() {
	cm.dropped.Inc(1)
}

func (cm *consensusMetric) MarkReconcileFailure() {
	cm.reconcileFailures.Inc(1)
}

func (cm *consensusMetric) MarkRedistributed(n int) {
	cm.redistributed.Inc(int64(n))
}

func (cm *consensusMetric) Rejected() int64 {
	return cm.rejected.Count()
}

func (cm *consensusMetric) Dropped() int64 {
	return cm.dropped.Count()
}
