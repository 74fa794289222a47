// Package metrics provides MetricsCollector implementations.
package metrics

import "github.com/arloliu/chorus/types"

// NopMetrics implements a no-op metrics collector.
//
// All metrics are discarded. Useful for testing or when external
// metrics collection is used.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements MetricsCollector.
var _ types.MetricsCollector = (*NopMetrics)(nil)

// NewNop creates a new no-op metrics collector.
//
// Returns:
//   - *NopMetrics: A new no-op metrics collector instance
//
// Example:
//
//	w, _ := chorus.NewWorker(&cfg, conn, backend, gw, chorus.WithMetrics(metrics.NewNop()))
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// WorkerMetrics implementation

// RecordHeartbeat discards the heartbeat metric.
func (n *NopMetrics) RecordHeartbeat(_ /* workerID */ string, _ /* success */ bool) {
	// No-op
}

// RecordLiveWorkers discards the live worker gauge.
func (n *NopMetrics) RecordLiveWorkers(_ /* count */ int) {
	// No-op
}

// RecordPrimaryChange discards the primary change metric.
func (n *NopMetrics) RecordPrimaryChange(_ /* workerID */ string, _ /* isPrimary */ bool) {
	// No-op
}

// RecordSessions discards the session gauge.
func (n *NopMetrics) RecordSessions(_ /* count */ int) {
	// No-op
}

// DirectoryMetrics implementation

// RecordAssignment discards the assignment metric.
func (n *NopMetrics) RecordAssignment(_ /* reason */ string) {
	// No-op
}

// RecordReassignment discards the reassignment metric.
func (n *NopMetrics) RecordReassignment(_ /* result */ string) {
	// No-op
}

// RecordOwnershipConflict discards the ownership conflict metric.
func (n *NopMetrics) RecordOwnershipConflict() {
	// No-op
}

// RecordStaleSweep discards the sweep metric.
func (n *NopMetrics) RecordStaleSweep(_ /* deactivated */ int) {
	// No-op
}

// SnapshotMetrics implementation

// RecordSnapshotWrite discards the snapshot write metric.
func (n *NopMetrics) RecordSnapshotWrite(_ /* op */ string, _ /* success */ bool) {
	// No-op
}

// ResumeMetrics implementation

// RecordResumeOutcome discards the resume outcome metric.
func (n *NopMetrics) RecordResumeOutcome(_ /* outcome */ string) {
	// No-op
}

// RecordResumeDuration discards the resume duration metric.
func (n *NopMetrics) RecordResumeDuration(_ /* duration */ float64) {
	// No-op
}

// RecordTrackResolve discards the track resolve metric.
func (n *NopMetrics) RecordTrackResolve(_ /* success */ bool) {
	// No-op
}

// StoreMetrics implementation

// RecordStoreOperationDuration discards the store latency metric.
func (n *NopMetrics) RecordStoreOperationDuration(_ /* operation */ string, _ /* duration */ float64) {
	// No-op
}
