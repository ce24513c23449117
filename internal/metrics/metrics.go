// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a private registry so several instances can coexist in tests.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry           *prometheus.Registry
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	reportsCreated     prometheus.Counter
	reportsDeleted     prometheus.Counter
	transitions        *prometheus.CounterVec
	transitionFailures *prometheus.CounterVec
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		reportsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reports_created_total",
			Help: "Reports submitted.",
		}),
		reportsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reports_deleted_total",
			Help: "Reports deleted.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "report_transitions_total",
			Help: "Successful status transitions.",
		}, []string{"from", "to"}),
		transitionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "report_transition_failures_total",
			Help: "Rejected status transitions by error code.",
		}, []string{"code"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.httpRequests,
		r.httpDuration,
		r.reportsCreated,
		r.reportsDeleted,
		r.transitions,
		r.transitionFailures,
	)
	return r
}

func (r *Recorder) ReportCreated() {
	if r == nil {
		return
	}
	r.reportsCreated.Inc()
}

func (r *Recorder) ReportDeleted() {
	if r == nil {
		return
	}
	r.reportsDeleted.Inc()
}

func (r *Recorder) Transition(from, to string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(from, to).Inc()
}

func (r *Recorder) TransitionFailed(code string) {
	if r == nil {
		return
	}
	r.transitionFailures.WithLabelValues(code).Inc()
}

// Middleware records request counts and latency keyed by the matched route
// template, so ids in the path do not explode label cardinality.
func (r *Recorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		r.httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		r.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
