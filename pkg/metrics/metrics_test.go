package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImplementsInterface(t *testing.T) {
	var _ ValidationMetrics = NoopMetrics{}
	var _ ValidationMetrics = &PrometheusMetrics{}
}

func TestOrNoop(t *testing.T) {
	assert.Equal(t, NoopMetrics{}, OrNoop(nil))
	m := NewPrometheusMetrics()
	assert.Same(t, m, OrNoop(m))
}

func TestPrometheusMetrics_Counters(t *testing.T) {
	m := NewPrometheusMetrics()

	m.RecordValidation("equals", true, time.Millisecond)
	m.RecordValidation("equals", true, time.Millisecond)
	m.RecordValidation("equals", false, time.Millisecond)
	m.RecordAIRequest("score", "ok", 300*time.Millisecond)
	m.RecordAIRequest("score", "rate_limited", 10*time.Millisecond)
	m.RecordSandboxRun("timeout", 500*time.Millisecond)
	m.RecordSandboxLeak()
	m.RecordSentenceBatch("fallback")
	m.SetActiveSessions(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.validations.WithLabelValues("equals", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validations.WithLabelValues("equals", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.aiRequests.WithLabelValues("score", "rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sandboxRuns.WithLabelValues("timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sandboxLeaks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sentenceBatches.WithLabelValues("fallback")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeSessions))
}

func TestPrometheusMetrics_Exposition(t *testing.T) {
	m := NewPrometheusMetrics()
	m.SetActiveSessions(2)

	expected := `
# HELP prompthunter_active_sessions Sessions currently held in memory.
# TYPE prompthunter_active_sessions gauge
prompthunter_active_sessions 2
`
	err := testutil.GatherAndCompare(
		m.Registry(), strings.NewReader(expected), "prompthunter_active_sessions",
	)
	require.NoError(t, err)
}
