package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/screentime-api/internal/service"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestMetricsHandlerEndpoints(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.ObserveHTTPRequest(http.MethodGet, "/students/:id/ledger", http.StatusOK, 5*time.Millisecond)

	h := NewMetricsHandler(metrics, pingerFunc(func(context.Context) error { return nil }))
	r := newRouter()
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", h.Prometheus)
	r.GET("/metrics/summary", h.Snapshot)

	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/ready", nil).Code)

	w := perform(r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")

	w = perform(r, http.MethodGet, "/metrics/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "requests_total")
}

func TestMetricsHandlerReadyFailsWithoutDatabase(t *testing.T) {
	h := NewMetricsHandler(nil, pingerFunc(func(context.Context) error { return errors.New("connection refused") }))
	r := newRouter()
	r.GET("/ready", h.Ready)
	r.GET("/metrics", h.Prometheus)

	assert.Equal(t, http.StatusServiceUnavailable, perform(r, http.MethodGet, "/ready", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, perform(r, http.MethodGet, "/metrics", nil).Code)
}

func TestMetricsHandlerReadyDegradedWithoutCache(t *testing.T) {
	ok := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("redis down") })
	h := NewMetricsHandler(nil, ok).WithCache(down)
	r := newRouter()
	r.GET("/ready", h.Ready)

	w := perform(r, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
}
