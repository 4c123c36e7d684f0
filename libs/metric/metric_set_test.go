package metric

import (
	"bytes"
	"testing"

	jsoniter "github.com/json-iterator/go"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMetricItem struct {
	name    string
	counter metrics.Counter
}

func newMockItem(name string) *mockMetricItem {
	return &mockMetricItem{name: name, counter: metrics.NewCounter()}
}

func (mock *mockMetricItem) JSONString() string {
	s, _ := jsoniter.MarshalToString(map[string]int64{mock.name: mock.counter.Count()})
	return s
}

func (mock *mockMetricItem) Register(r metrics.Registry) {
	_ = r.Register(mock.name+".count", mock.counter)
}

func newTestMetric(t *testing.T) *MetricSet {
	m := NewMetricSet()
	require.NoError(t, m.SetMetrics("TEST", newMockItem("TEST")))
	return m
}

func TestMetricSet_HasMetrics(t *testing.T) {
	metric := newTestMetric(t)

	assert.True(t, metric.HasMetrics("TEST"), "should contain label(TEST)")
	assert.False(t, metric.HasMetrics("FTEST"), "shouldn't contain label(FTEST)")
	assert.Nil(t, metric.GetMetrics("FTEST"))
}

func TestMetricSet_SetMetrics(t *testing.T) {
	metric := newTestMetric(t)

	assert.Equal(t, ErrMetricLabelExist, metric.SetMetrics("TEST", newMockItem("TEST")), "label(TEST)不应该设置成功")
	assert.Nil(t, metric.SetMetrics("TEST1", newMockItem("TEST1")), "label(TEST1)应该设置成功")

	assert.True(t, metric.HasMetrics("TEST"), "should contain label(TEST)")
	assert.True(t, metric.HasMetrics("TEST1"), "should contain label(TEST1)")
	assert.NotNil(t, metric.Registry().Get("TEST1.count"))
}

func TestMetricSet_GetAllLabels(t *testing.T) {
	metric := newTestMetric(t)
	require.NoError(t, metric.SetMetrics("A", newMockItem("A")))

	assert.Equal(t, []string{"A", "TEST"}, metric.GetAllLabels())
}

func TestMetricSet_JSON(t *testing.T) {
	metric := newTestMetric(t)
	metric.GetMetrics("TEST").(*mockMetricItem).counter.Inc(3)

	assert.JSONEq(t, `{"TEST":{"TEST":3}}`, metric.JSONString())

	var buf bytes.Buffer
	metric.WriteJSON(&buf)
	assert.Contains(t, buf.String(), `"TEST.count"`)
}
