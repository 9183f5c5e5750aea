// Package metrics exposes Prometheus instruments for the event stream, the
// print queue and the sequential allocator.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector groups every instrument. A nil *Collector is valid and records
// nothing, so components can run without metrics wired in.
type Collector struct {
	eventsPublished     *prometheus.CounterVec
	eventPublishErrors  prometheus.Counter
	eventsForwarded     prometheus.Counter
	eventsMalformed     prometheus.Counter
	broadcastersActive  prometheus.Gauge
	printJobsEnqueued   prometheus.Counter
	printJobsClaimed    prometheus.Counter
	printClaimsEmpty    prometheus.Counter
	allocations         *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewCollector registers all instruments on reg. A nil reg uses a fresh
// private registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockroom_events_published_total",
			Help: "Events appended to the event channel, by type.",
		}, []string{"type"}),
		eventPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockroom_event_publish_errors_total",
			Help: "Publish attempts dropped because encoding or the channel failed.",
		}),
		eventsForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockroom_events_forwarded_total",
			Help: "Events written to subscriber streams.",
		}),
		eventsMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockroom_events_malformed_total",
			Help: "Channel entries skipped because they were not valid events.",
		}),
		broadcastersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stockroom_broadcasters_active",
			Help: "Open event stream connections.",
		}),
		printJobsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockroom_print_jobs_enqueued_total",
			Help: "Print jobs added to the queue.",
		}),
		printJobsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockroom_print_jobs_claimed_total",
			Help: "Print jobs claimed by printer agents.",
		}),
		printClaimsEmpty: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockroom_print_claims_empty_total",
			Help: "Claim requests that found the queue empty.",
		}),
		allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockroom_allocations_total",
			Help: "Sequential values allocated, by field and outcome.",
		}, []string{"field", "outcome"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockroom_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockroom_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"method", "route", "status"}),
		gatherer: reg,
	}
	reg.MustRegister(
		c.eventsPublished,
		c.eventPublishErrors,
		c.eventsForwarded,
		c.eventsMalformed,
		c.broadcastersActive,
		c.printJobsEnqueued,
		c.printJobsClaimed,
		c.printClaimsEmpty,
		c.allocations,
		c.httpRequestsTotal,
		c.httpRequestDuration,
	)
	return c
}

func (c *Collector) EventPublished(eventType string) {
	if c == nil {
		return
	}
	c.eventsPublished.WithLabelValues(eventType).Inc()
}

func (c *Collector) EventPublishFailed() {
	if c == nil {
		return
	}
	c.eventPublishErrors.Inc()
}

func (c *Collector) EventForwarded() {
	if c == nil {
		return
	}
	c.eventsForwarded.Inc()
}

func (c *Collector) EventMalformed() {
	if c == nil {
		return
	}
	c.eventsMalformed.Inc()
}

func (c *Collector) BroadcasterOpened() {
	if c == nil {
		return
	}
	c.broadcastersActive.Inc()
}

func (c *Collector) BroadcasterClosed() {
	if c == nil {
		return
	}
	c.broadcastersActive.Dec()
}

func (c *Collector) PrintJobsEnqueued(n int) {
	if c == nil {
		return
	}
	c.printJobsEnqueued.Add(float64(n))
}

func (c *Collector) PrintJobClaimed() {
	if c == nil {
		return
	}
	c.printJobsClaimed.Inc()
}

func (c *Collector) PrintClaimEmpty() {
	if c == nil {
		return
	}
	c.printClaimsEmpty.Inc()
}

// Allocation records one allocator call; outcome is "ok", "seed" or "error".
func (c *Collector) Allocation(field, outcome string) {
	if c == nil {
		return
	}
	c.allocations.WithLabelValues(field, outcome).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency by chi route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := classifyStatus(ww.Status())
		c.httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		c.httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func classifyStatus(code int) string {
	switch {
	case code == 0:
		return "2xx"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	}
	return "unknown"
}
