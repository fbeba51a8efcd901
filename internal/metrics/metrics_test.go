package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.Attempt("succeeded")
	m.Attempt("context_overflow")
	m.Attempt("context_overflow")
	m.Recovery("compact")
	m.Compaction("succeeded")
	m.Ticket("trellm", "succeeded", 150)
	m.Ticket("trellm", "succeeded", 0)
	m.TaskStarted()
	m.TaskStarted()
	m.TaskFinished()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.attempts.WithLabelValues("context_overflow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recoveries.WithLabelValues("compact")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.compactions.WithLabelValues("succeeded")))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.ticketCost.WithLabelValues("trellm")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.tickets.WithLabelValues("trellm", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inflight))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Attempt("succeeded")
		m.Recovery("backoff")
		m.Compaction("failed")
		m.Ticket("p", "failed", 10)
		m.TaskStarted()
		m.TaskFinished()
	})
}
