package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsRecordsNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ProviderCall("stock_zh_a_spot", "ok", time.Second)
		m.SyncCycle("success")
		m.SyncRows("stock", "seed", 5)
		m.HistoryRequest("ok")
		m.ListReload()
	})
	assert.NotNil(t, m.Handler())
}

func TestCollectors(t *testing.T) {
	m := New()
	m.ProviderCall("stock_zh_a_spot", "ok", 200*time.Millisecond)
	m.ProviderCall("stock_zh_a_spot", "ok", 300*time.Millisecond)
	m.ProviderCall("stock_zh_a_spot_em", "error", time.Second)
	m.HistoryRequest("placeholder")
	m.ListReload()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.providerCalls.WithLabelValues("stock_zh_a_spot", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerCalls.WithLabelValues("stock_zh_a_spot_em", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.historyRequests.WithLabelValues("placeholder")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.listReloads))
}

func TestSyncRowsKeepsOneSourcePerKind(t *testing.T) {
	m := New()
	m.SyncRows("stock", "seed", 5)
	m.SyncRows("stock", "provider", 812)

	assert.Equal(t, 1, testutil.CollectAndCount(m.syncRows))
	assert.Equal(t, 812.0, testutil.ToFloat64(m.syncRows.WithLabelValues("stock", "provider")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.SyncCycle("success")

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `udf_symbol_sync_cycles_total{outcome="success"} 1`))
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
