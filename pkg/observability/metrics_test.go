package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryMetricsCounter(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Counter("backend.requests", 1, T("call", "subscriber_info"))
	m.Counter("backend.requests", 2, T("call", "subscriber_info"))
	m.Counter("backend.requests", 1, T("call", "post_receipt"))

	require.Equal(t, int64(3), m.CounterValue("backend.requests", T("call", "subscriber_info")))
	require.Equal(t, int64(1), m.CounterValue("backend.requests", T("call", "post_receipt")))
	require.Equal(t, int64(0), m.CounterValue("backend.requests"))
}

func TestInMemoryMetricsGauge(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Gauge("queue.depth", 3)
	m.Gauge("queue.depth", 7)

	require.Equal(t, float64(7), m.GaugeValue("queue.depth"))
}

func TestInMemoryMetricsTiming(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Timing("request.duration", 10*time.Millisecond, T("call", "alias"))
	m.Timing("request.duration", 20*time.Millisecond, T("call", "alias"))

	timings := m.Timings("request.duration", T("call", "alias"))
	require.Len(t, timings, 2)
	require.Equal(t, 10*time.Millisecond, timings[0])
}

func TestNoopMetricsDiscards(t *testing.T) {
	var m Metrics = NoopMetrics{}
	m.Counter("x", 1)
	m.Gauge("x", 1)
	m.Timing("x", time.Second)
}
