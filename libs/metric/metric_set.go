package metric

import (
	"errors"
	"io"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"
	metrics "github.com/rcrowley/go-metrics"
)

var (
	ErrMetricLabelExist = errors.New("metric label already exist")
)

func NewMetricSet() *MetricSet {
	return &MetricSet{
		metrics:  make(map[string]MetricItem),
		registry: metrics.NewRegistry(),
	}
}

// MetricSet 节点上所有模块的metric，按label索引
type MetricSet struct {
	mtx      sync.RWMutex
	metrics  map[string]MetricItem
	registry metrics.Registry
}

// SetMetrics - 根据label设置对应的Metrics，如果有存在的label，则返回error
func (ms *MetricSet) SetMetrics(label string, item MetricItem) error {
	ms.mtx.Lock()
	defer ms.mtx.Unlock()

	if _, existed := ms.metrics[label]; existed {
		return ErrMetricLabelExist
	}
	ms.metrics[label] = item
	item.Register(ms.registry)
	return nil
}

func (ms *MetricSet) HasMetrics(label string) bool {
	ms.mtx.RLock()
	_, existed := ms.metrics[label]
	ms.mtx.RUnlock()
	return existed
}

func (ms *MetricSet) GetMetrics(label string) MetricItem {
	ms.mtx.RLock()
	defer ms.mtx.RUnlock()
	return ms.metrics[label]
}

// GetAllLabels 按字典序返回
func (ms *MetricSet) GetAllLabels() []string {
	ms.mtx.RLock()
	keys := make([]string, 0, len(ms.metrics))
	for k := range ms.metrics {
		keys = append(keys, k)
	}
	ms.mtx.RUnlock()

	sort.Strings(keys)
	return keys
}

func (ms *MetricSet) Registry() metrics.Registry {
	return ms.registry
}

// JSONString label -> 模块的快照
func (ms *MetricSet) JSONString() string {
	ms.mtx.RLock()
	snapshot := make(map[string]jsoniter.RawMessage, len(ms.metrics))
	for label, item := range ms.metrics {
		snapshot[label] = jsoniter.RawMessage(item.JSONString())
	}
	ms.mtx.RUnlock()

	s, err := jsoniter.MarshalToString(snapshot)
	if err != nil {
		return "{}"
	}
	return s
}

// WriteJSON 以go-metrics的格式输出registry中的所有指标
func (ms *MetricSet) WriteJSON(w io.Writer) {
	metrics.WriteJSONOnce(ms.registry, w)
}
