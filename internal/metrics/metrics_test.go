package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.Nil(t, New(nil))
	assert.NotPanics(t, func() {
		m.ObserveVerdict("worker", "pass", time.Second)
		m.Respawned("worker")
		m.Initialized("frame", nil)
		m.SetLiveContexts(3)
		m.JobFinished("passed")
		m.RateLimited()
		m.WSConnected(1)
	})
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m)

	m.ObserveVerdict("worker", "pass", 10*time.Millisecond)
	m.ObserveVerdict("worker", "fail", 20*time.Millisecond)
	m.ObserveVerdict("worker", "pass", 30*time.Millisecond)
	m.Respawned("python")
	m.Initialized("frame", nil)
	m.Initialized("frame", errors.New("boom"))
	m.SetLiveContexts(2)
	m.JobFinished("passed")
	m.RateLimited()
	m.WSConnected(1)
	m.WSConnected(1)
	m.WSConnected(-1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.VerdictsTotal.WithLabelValues("worker", "pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.VerdictsTotal.WithLabelValues("worker", "fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RespawnsTotal.WithLabelValues("python")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InitsTotal.WithLabelValues("frame", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LiveContexts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("passed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WSConnections))
	assert.Equal(t, 1, testutil.CollectAndCount(m.TestDuration))
}
