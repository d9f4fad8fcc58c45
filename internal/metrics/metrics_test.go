package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New("node-a")

	m.ObserveEmitted("stories", "upsert")
	m.ObserveEmitted("stories", "upsert")
	m.ObserveEmitted("agents", "delete")
	m.ObserveOutcome("applied", 3)
	m.ObserveOutcome("stale", 0)
	m.ObserveMerged(2)
	m.SetVector(map[string]int64{"node-a": 4, "node-b": 7})
	m.ObserveMetalog(5, 12)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsEmitted.WithLabelValues("stories", "upsert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsEmitted.WithLabelValues("agents", "delete")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ApplyOutcomes.WithLabelValues("applied")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ApplyOutcomes.WithLabelValues("stale")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StoriesMerged))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.VectorCounter.WithLabelValues("node-b")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.MetalogAppended))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.MetalogIndex))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveEmitted("stories", "upsert")
		m.ObserveOutcome("applied", 1)
		m.ObserveScan(time.Second)
		m.ObserveApply(time.Second)
		m.ObserveMerged(1)
		m.SetVector(map[string]int64{"a": 1})
		m.ObserveMetalog(1, 1)
	})
	assert.NoError(t, m.Register(prometheus.NewRegistry()))
}

func TestRegister_TwiceIsNotAnError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("node-a")

	require.NoError(t, m.Register(reg))
	require.NoError(t, m.Register(reg))
}

func TestRegister_TwoNodesShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, New("node-a").Register(reg))
	require.NoError(t, New("node-b").Register(reg))
}

func TestHandler_ServesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("node-a")
	require.NoError(t, m.Register(reg))
	m.ObserveMerged(1)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `fleetsync_stories_merged_total{node="node-a"} 1`))
}
