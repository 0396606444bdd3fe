package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCheckoutCountsByResult(t *testing.T) {
	m := New()
	m.ObserveCheckout("ok", 10*time.Millisecond)
	m.ObserveCheckout("ok", 12*time.Millisecond)
	m.ObserveCheckout("insufficient_stock", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.checkoutTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkoutTotal.WithLabelValues("insufficient_stock")))
}

func TestHandlerExposesRequestCounters(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, "GET /api/v1/products", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pos_http_requests_total{method="GET",route="GET /api/v1/products",status="200"} 1`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveCheckout("ok", time.Millisecond)
	m.ObserveRequest(http.MethodGet, "", http.StatusOK, time.Millisecond)
}
