package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollectorUsesPrivateRegistry(t *testing.T) {
	// Two collectors must not clash on registration.
	a := NewCollector(nil)
	b := NewCollector(prometheus.NewRegistry())
	assert.NotNil(t, a.eventsPublished)
	assert.NotNil(t, b.allocations)
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.EventPublished("STOCK_UPDATE")
		c.EventPublishFailed()
		c.EventForwarded()
		c.EventMalformed()
		c.BroadcasterOpened()
		c.BroadcasterClosed()
		c.PrintJobsEnqueued(3)
		c.PrintJobClaimed()
		c.PrintClaimEmpty()
		c.Allocation("sku", "ok")
	})

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})
	assert.NotNil(t, c.Middleware(next))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCountersRecord(t *testing.T) {
	c := NewCollector(nil)

	c.EventPublished("STOCK_UPDATE")
	c.EventPublished("STOCK_UPDATE")
	c.PrintJobsEnqueued(3)
	c.PrintJobClaimed()
	c.BroadcasterOpened()
	c.BroadcasterOpened()
	c.BroadcasterClosed()
	c.Allocation("barcode", "seed")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.eventsPublished.WithLabelValues("STOCK_UPDATE")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.printJobsEnqueued))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.printJobsClaimed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.broadcastersActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.allocations.WithLabelValues("barcode", "seed")))
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	c := NewCollector(nil)
	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/products/{key}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Method(http.MethodGet, "/metrics", c.Handler())

	for _, key := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/products/"+key, nil))
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/products/{key}", "4xx")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "stockroom_http_request_duration_seconds")
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, "2xx", classifyStatus(0))
	assert.Equal(t, "2xx", classifyStatus(204))
	assert.Equal(t, "3xx", classifyStatus(304))
	assert.Equal(t, "4xx", classifyStatus(409))
	assert.Equal(t, "5xx", classifyStatus(503))
	assert.Equal(t, "unknown", classifyStatus(99))
}
