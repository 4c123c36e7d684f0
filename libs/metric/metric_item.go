package metric

import metrics "github.com/rcrowley/go-metrics"

// MetricItem - 一个独立的metric模块对应一个MetricItem
// consensus和mempool各自实现
type MetricItem interface {
	JSONString() string
	// Register 把内部的计数器注册到registry
	Register(r metrics.Registry)
}
