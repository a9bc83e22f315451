package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveMessage("limit_order", "OK", time.Millisecond)
		m.AddTrades(2)
		m.PersistFailed()
		m.CascadeAborted()
		m.SetQueueSize(3)
		m.OutboxRecord("acked")
	})
}

func TestCollectors(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.ObserveMessage("limit_order", "OK", time.Millisecond)
	m.ObserveMessage("limit_order", "OK", time.Millisecond)
	m.AddTrades(3)
	m.SetQueueSize(7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `matchd_pipeline_messages_total{status="OK",type="limit_order"} 2`))
	assert.True(t, strings.Contains(body, "matchd_pipeline_trades_total 3"))
	assert.True(t, strings.Contains(body, "matchd_ingress_queue_size 7"))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewWith(reg)
	require.NoError(t, err)
	_, err = NewWith(reg)
	require.Error(t, err)
}
