// Package metrics exposes Prometheus collectors for the platform services,
// the event bus and the background jobs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bengol30/bandgo/internal/events"
)

const namespace = "bandgo"

// Recorder owns a registry and the collectors registered on it.
type Recorder struct {
	registry *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	registrations     *prometheus.CounterVec
	busEvents         *prometheus.CounterVec
	busDeliveries     *prometheus.CounterVec
	busFailures       *prometheus.CounterVec
	jobRuns           *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	snapshotSaves     *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
}

// New builds a recorder with its own registry, including process and Go runtime collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "service",
				Name:      "operations_total",
				Help:      "Service operations by outcome.",
			},
			[]string{"service", "operation", "outcome"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "service",
				Name:      "operation_duration_seconds",
				Help:      "Duration of service operations.",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
			},
			[]string{"service", "operation"},
		),
		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "registrations_total",
				Help:      "Event registrations by resulting status.",
			},
			[]string{"status"},
		),
		busEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "published_total",
				Help:      "Events published on the bus by channel kind.",
			},
			[]string{"channel_kind"},
		),
		busDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "deliveries_total",
				Help:      "Listener invocations by channel kind.",
			},
			[]string{"channel_kind"},
		),
		busFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "listener_failures_total",
				Help:      "Listeners that panicked, by channel kind.",
			},
			[]string{"channel_kind"},
		),
		jobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "runs_total",
				Help:      "Background job runs by outcome.",
			},
			[]string{"job", "success"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "jobs",
				Name:      "run_duration_seconds",
				Help:      "Duration of background job runs.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"job"},
		),
		snapshotSaves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "snapshot",
				Name:      "saves_total",
				Help:      "Snapshot saves by backend and outcome.",
			},
			[]string{"backend", "success"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ops",
				Name:      "requests_total",
				Help:      "Requests served by the ops endpoint.",
			},
			[]string{"path", "status"},
		),
	}

	r.registry.MustRegister(
		r.operations,
		r.operationDuration,
		r.registrations,
		r.busEvents,
		r.busDeliveries,
		r.busFailures,
		r.jobRuns,
		r.jobDuration,
		r.snapshotSaves,
		r.httpRequests,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return r
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler returns an HTTP handler exposing the registered metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// OperationCompleted records one service call. An empty errorKind means success.
func (r *Recorder) OperationCompleted(service, operation, errorKind string, elapsed time.Duration) {
	outcome := errorKind
	if outcome == "" {
		outcome = "ok"
	}
	r.operations.WithLabelValues(service, operation, outcome).Inc()
	r.operationDuration.WithLabelValues(service, operation).Observe(elapsed.Seconds())
}

// RegistrationRecorded counts an event registration by the status it received.
func (r *Recorder) RegistrationRecorded(status string) {
	r.registrations.WithLabelValues(status).Inc()
}

// EventPublished implements events.Observer.
func (r *Recorder) EventPublished(channel string, delivered int) {
	kind := events.ChannelKind(channel)
	r.busEvents.WithLabelValues(kind).Inc()
	r.busDeliveries.WithLabelValues(kind).Add(float64(delivered))
}

// ListenerFailed implements events.Observer.
func (r *Recorder) ListenerFailed(channel string) {
	r.busFailures.WithLabelValues(events.ChannelKind(channel)).Inc()
}

// JobCompleted records a background job run.
func (r *Recorder) JobCompleted(job string, err error, elapsed time.Duration) {
	r.jobRuns.WithLabelValues(job, strconv.FormatBool(err == nil)).Inc()
	r.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

// SnapshotSaved records a snapshot write.
func (r *Recorder) SnapshotSaved(backend string, err error) {
	r.snapshotSaves.WithLabelValues(backend, strconv.FormatBool(err == nil)).Inc()
}

// InstrumentHandler wraps next with request counting. Requests for the
// metrics endpoint itself are not counted.
func (r *Recorder) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/metrics" {
			next.ServeHTTP(w, req)
			return
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		r.httpRequests.WithLabelValues(req.URL.Path, strconv.Itoa(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
