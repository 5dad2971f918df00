// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPublished counts integration events handed to the queue, by
	// event type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchlink",
		Name:      "events_published_total",
		Help:      "Integration events published, by event type.",
	}, []string{"type"})

	// ReconcileOps counts per-code reconcile outcomes.
	ReconcileOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "watchlink",
		Name:      "reconcile_codes_total",
		Help:      "Watch-list codes reconciled, by outcome.",
	}, []string{"op"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "watchlink",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency, by method and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "status"})
)

// Reconcile outcome labels.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpSkipped     = "skipped"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request latency and status for every handler behind it.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		httpDuration.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	})
}
