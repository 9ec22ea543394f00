// Package middleware provides HTTP middleware for metrics collection.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pricegrid/taskcore/internal/metrics"
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		endpoint := normalizeEndpoint(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		metrics.RecordHTTPRequest(r.Method, endpoint, status, duration)
	})
}

// normalizeEndpoint collapses task ids so the endpoint label stays bounded.
func normalizeEndpoint(path string) string {
	if !strings.HasPrefix(path, "/api/tasks/") {
		return path
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/tasks/"), "/"), "/")
	switch len(parts) {
	case 1:
		return "/api/tasks/:id"
	case 2:
		return "/api/tasks/:id/" + parts[1]
	default:
		return path
	}
}
