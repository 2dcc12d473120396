// Package metrics exposes Prometheus collectors for remote calls, sync runs
// and the callback server.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	remoteCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dingsync",
			Name:      "remote_calls_total",
			Help:      "Calls made to the directory service.",
		},
		[]string{"endpoint", "outcome"},
	)

	remoteCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dingsync",
			Name:      "remote_call_duration_seconds",
			Help:      "Directory service call latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	syncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dingsync",
			Name:      "sync_runs_total",
			Help:      "Completed organisation sync runs.",
		},
		[]string{"app", "outcome"},
	)

	syncRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dingsync",
			Name:      "sync_run_duration_seconds",
			Help:      "Organisation sync run durations in seconds.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"app"},
	)

	syncedEmployees = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dingsync",
			Name:      "synced_employees_total",
			Help:      "Employees created or updated by sync runs.",
		},
		[]string{"app", "action"},
	)

	callbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dingsync",
			Name:      "callbacks_total",
			Help:      "Inbound callbacks by event type and outcome.",
		},
		[]string{"event", "outcome"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dingsync",
			Name:      "http_request_duration_seconds",
			Help:      "Server request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

var registerOnce sync.Once

// Init registers the collectors with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			remoteCallsTotal, remoteCallDuration,
			syncRunsTotal, syncRunDuration, syncedEmployees,
			callbacksTotal, httpRequestDuration,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// ObserveRemoteCall records one directory service call.
func ObserveRemoteCall(endpoint string, started time.Time, err error) {
	remoteCallsTotal.WithLabelValues(endpoint, outcome(err)).Inc()
	remoteCallDuration.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
}

// ObserveSyncRun records a finished sync run.
func ObserveSyncRun(appID string, duration time.Duration, success bool) {
	o := OutcomeSuccess
	if !success {
		o = OutcomeFailure
	}
	syncRunsTotal.WithLabelValues(appID, o).Inc()
	syncRunDuration.WithLabelValues(appID).Observe(duration.Seconds())
}

// AddSyncedEmployees counts employees created or updated during a run.
func AddSyncedEmployees(appID string, created, updated int) {
	if created > 0 {
		syncedEmployees.WithLabelValues(appID, "created").Add(float64(created))
	}
	if updated > 0 {
		syncedEmployees.WithLabelValues(appID, "updated").Add(float64(updated))
	}
}

// ObserveCallback records one inbound callback.
func ObserveCallback(event string, err error) {
	if event == "" {
		event = "unknown"
	}
	callbacksTotal.WithLabelValues(event, outcome(err)).Inc()
}

// Instrument wraps a handler to record request latency under route.
func Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)
		httpRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(sw.code)).
			Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
