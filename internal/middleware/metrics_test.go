package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pricegrid/taskcore/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{
			name:     "task by id",
			path:     "/api/tasks/abc-123",
			expected: "/api/tasks/:id",
		},
		{
			name:     "task control action",
			path:     "/api/tasks/abc-123/pause",
			expected: "/api/tasks/:id/pause",
		},
		{
			name:     "task list untouched",
			path:     "/api/tasks",
			expected: "/api/tasks",
		},
		{
			name:     "dashboard untouched",
			path:     "/api/dashboard/stats",
			expected: "/api/dashboard/stats",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeEndpoint(tt.path))
		})
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics.HTTPRequestsTotal.Reset()

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/abc-123/stop", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, 1.0, counterValue(t, metrics.HTTPRequestsTotal, "GET", "/api/tasks/:id/stop", "418"))
}

func TestMetricsMiddlewareDefaultsToOK(t *testing.T) {
	metrics.HTTPRequestsTotal.Reset()

	handler := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("hello"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, 1.0, counterValue(t, metrics.HTTPRequestsTotal, "GET", "/api/tasks", "200"))
}

func counterValue(t *testing.T, counter *prometheus.CounterVec, labels ...string) float64 {
	metric := &dto.Metric{}
	observer, err := counter.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)

	require.NoError(t, observer.Write(metric))
	return metric.Counter.GetValue()
}
