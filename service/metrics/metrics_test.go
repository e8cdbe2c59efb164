package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordTronscanRequest_CountsRateLimits(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordTronscanRequest("transfer", 200, 0.1)
	m.RecordTronscanRequest("transfer", 429, 0.1)
	m.RecordTronscanRequest("transfer", 0, 0.1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.tronscanRequestsTotal.WithLabelValues("transfer", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tronscanRequestsTotal.WithLabelValues("transfer", "429")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tronscanRequestsTotal.WithLabelValues("transfer", "transport_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tronscanRateLimitHits.WithLabelValues("transfer")))
}

func TestRecordStoreOperation_Status(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordStoreOperation("file", "persist", 0.01, nil)
	m.RecordStoreOperation("file", "persist", 0.01, errors.New("disk full"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeOperationsTotal.WithLabelValues("file", "persist", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeOperationsTotal.WithLabelValues("file", "persist", "error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordVerdict("addr", "notify")
		m.RecordCycle("addr", "success", 1)
		m.RecordNotification("transfer", nil, 0.1)
	})
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	handler := HTTPMetricsMiddleware(m, "/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/health", "GET", "5xx")))
}
