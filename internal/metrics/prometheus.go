package metrics

import (
	"sync"

	"github.com/arloliu/chorus/types"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements types.MetricsCollector backed by Prometheus.
//
// Collectors are created and registered lazily on first use so that a
// collector that is never exercised leaves the registry untouched.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	heartbeats         *prometheus.CounterVec
	liveWorkers        prometheus.Gauge
	primary            *prometheus.GaugeVec
	sessions           prometheus.Gauge
	assignments        *prometheus.CounterVec
	reassignments      *prometheus.CounterVec
	ownershipConflicts prometheus.Counter
	sweepDeactivated   prometheus.Counter
	snapshotWrites     *prometheus.CounterVec
	resumeOutcomes     *prometheus.CounterVec
	resumeDuration     prometheus.Histogram
	trackResolves      *prometheus.CounterVec
	storeLatency       *prometheus.HistogramVec
}

// Compile-time assertion that PrometheusCollector implements MetricsCollector.
var _ types.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed metrics collector.
//
// Parameters:
//   - reg: Prometheus registerer interface (uses prometheus.DefaultRegisterer if nil)
//   - namespace: Prometheus metrics namespace (defaults to "chorus" if empty)
//
// Returns:
//   - *PrometheusCollector: A MetricsCollector implementation using Prometheus
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "chorus"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.heartbeats = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "heartbeats_total",
			Help:      "Heartbeat publishes by result (success, failure).",
		}, []string{"worker_id", "result"})

		p.liveWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "live_workers",
			Help:      "Live workers observed by the last heartbeat listing.",
		})

		p.primary = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "primary",
			Help:      "Whether this worker holds the primary role (1=yes,0=no).",
		}, []string{"worker_id"})

		p.sessions = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "worker",
			Name:      "sessions_current",
			Help:      "Live voice sessions on this worker.",
		})

		p.assignments = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "directory",
			Name:      "assignments_created_total",
			Help:      "Guild assignments created by reason (auto, manual).",
		}, []string{"reason"})

		p.reassignments = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "directory",
			Name:      "reassignments_total",
			Help:      "Forced reassignments by result (success, warning, rejected).",
		}, []string{"result"})

		p.ownershipConflicts = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "directory",
			Name:      "ownership_conflicts_total",
			Help:      "Commands aborted because the guild moved to another worker.",
		})

		p.sweepDeactivated = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "directory",
			Name:      "sweep_deactivated_total",
			Help:      "Assignments deactivated by the primary's stale owner sweep.",
		})

		p.snapshotWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "snapshot",
			Name:      "writes_total",
			Help:      "Snapshot writes by operation (save, tombstone) and result.",
		}, []string{"op", "result"})

		p.resumeOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "resume",
			Name:      "guilds_total",
			Help:      "Resumed guilds by terminal outcome.",
		}, []string{"outcome"})

		p.resumeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "resume",
			Name:      "duration_seconds",
			Help:      "Duration of a full startup resumption run in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		})

		p.trackResolves = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "resume",
			Name:      "track_resolves_total",
			Help:      "Track re-resolution attempts by result.",
		}, []string{"result"})

		p.storeLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Latency of shared store operations in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms .. ~1s
		}, []string{"op"})

		p.reg.MustRegister(p.heartbeats)
		p.reg.MustRegister(p.liveWorkers)
		p.reg.MustRegister(p.primary)
		p.reg.MustRegister(p.sessions)
		p.reg.MustRegister(p.assignments)
		p.reg.MustRegister(p.reassignments)
		p.reg.MustRegister(p.ownershipConflicts)
		p.reg.MustRegister(p.sweepDeactivated)
		p.reg.MustRegister(p.snapshotWrites)
		p.reg.MustRegister(p.resumeOutcomes)
		p.reg.MustRegister(p.resumeDuration)
		p.reg.MustRegister(p.trackResolves)
		p.reg.MustRegister(p.storeLatency)
	})
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}

	return "failure"
}

// RecordHeartbeat counts a heartbeat publish.
func (p *PrometheusCollector) RecordHeartbeat(workerID string, success bool) {
	p.ensureRegistered()
	p.heartbeats.WithLabelValues(workerID, resultLabel(success)).Inc()
}

// RecordLiveWorkers sets the live worker gauge.
func (p *PrometheusCollector) RecordLiveWorkers(count int) {
	p.ensureRegistered()
	p.liveWorkers.Set(float64(count))
}

// RecordPrimaryChange sets the primary gauge for workerID.
func (p *PrometheusCollector) RecordPrimaryChange(workerID string, isPrimary bool) {
	p.ensureRegistered()
	if isPrimary {
		p.primary.WithLabelValues(workerID).Set(1)
	} else {
		p.primary.WithLabelValues(workerID).Set(0)
	}
}

// RecordSessions sets the session gauge.
func (p *PrometheusCollector) RecordSessions(count int) {
	p.ensureRegistered()
	p.sessions.Set(float64(count))
}

// RecordAssignment counts a created assignment.
func (p *PrometheusCollector) RecordAssignment(reason string) {
	p.ensureRegistered()
	p.assignments.WithLabelValues(reason).Inc()
}

// RecordReassignment counts a forced reassignment attempt.
func (p *PrometheusCollector) RecordReassignment(result string) {
	p.ensureRegistered()
	p.reassignments.WithLabelValues(result).Inc()
}

// RecordOwnershipConflict counts an aborted command.
func (p *PrometheusCollector) RecordOwnershipConflict() {
	p.ensureRegistered()
	p.ownershipConflicts.Inc()
}

// RecordStaleSweep adds the assignments deactivated by one sweep.
func (p *PrometheusCollector) RecordStaleSweep(deactivated int) {
	p.ensureRegistered()
	p.sweepDeactivated.Add(float64(deactivated))
}

// RecordSnapshotWrite counts a snapshot write.
func (p *PrometheusCollector) RecordSnapshotWrite(op string, success bool) {
	p.ensureRegistered()
	p.snapshotWrites.WithLabelValues(op, resultLabel(success)).Inc()
}

// RecordResumeOutcome counts a guild's resumption outcome.
func (p *PrometheusCollector) RecordResumeOutcome(outcome string) {
	p.ensureRegistered()
	p.resumeOutcomes.WithLabelValues(outcome).Inc()
}

// RecordResumeDuration observes a resumption run duration.
func (p *PrometheusCollector) RecordResumeDuration(duration float64) {
	p.ensureRegistered()
	p.resumeDuration.Observe(duration)
}

// RecordTrackResolve counts a track re-resolution attempt.
func (p *PrometheusCollector) RecordTrackResolve(success bool) {
	p.ensureRegistered()
	p.trackResolves.WithLabelValues(resultLabel(success)).Inc()
}

// RecordStoreOperationDuration observes store operation latency.
func (p *PrometheusCollector) RecordStoreOperationDuration(operation string, duration float64) {
	p.ensureRegistered()
	p.storeLatency.WithLabelValues(operation).Observe(duration)
}
