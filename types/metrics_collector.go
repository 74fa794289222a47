package types

// MetricsCollector defines methods for recording operational metrics.
//
// Implementations should be non-blocking and handle failures gracefully.
// All methods are called from internal goroutines and must be thread-safe.
//
// This interface composes smaller, domain-focused interfaces for better modularity.
type MetricsCollector interface {
	WorkerMetrics
	DirectoryMetrics
	SnapshotMetrics
	ResumeMetrics
	StoreMetrics
}

// WorkerMetrics defines metrics for worker-level operations.
type WorkerMetrics interface {
	// RecordHeartbeat records a heartbeat publish from this worker.
	//
	// Parameters:
	//   - workerID: The ID of the worker publishing the heartbeat
	//   - success: true if heartbeat was successfully published, false otherwise
	RecordHeartbeat(workerID string, success bool)

	// RecordLiveWorkers sets the number of live workers seen by the last listing (gauge metric).
	RecordLiveWorkers(count int)

	// RecordPrimaryChange records that this worker gained or lost the primary role.
	RecordPrimaryChange(workerID string, isPrimary bool)

	// RecordSessions sets the number of live sessions on this worker (gauge metric).
	RecordSessions(count int)
}

// DirectoryMetrics defines metrics for guild assignment operations.
type DirectoryMetrics interface {
	// RecordAssignment records a newly created assignment.
	//
	// Parameters:
	//   - reason: Assignment reason ("auto", "manual")
	RecordAssignment(reason string)

	// RecordReassignment records a forced reassignment attempt.
	//
	// Parameters:
	//   - result: "success", "warning" or "rejected"
	RecordReassignment(result string)

	// RecordOwnershipConflict records a command aborted because ownership moved.
	RecordOwnershipConflict()

	// RecordStaleSweep records how many assignments the primary deactivated in one sweep.
	RecordStaleSweep(deactivated int)
}

// SnapshotMetrics defines metrics for snapshot persistence.
type SnapshotMetrics interface {
	// RecordSnapshotWrite records a snapshot save or tombstone.
	//
	// Parameters:
	//   - op: "save" or "tombstone"
	//   - success: true if the write succeeded
	RecordSnapshotWrite(op string, success bool)
}

// ResumeMetrics defines metrics for startup resumption.
type ResumeMetrics interface {
	// RecordResumeOutcome records the terminal state of one guild's resumption.
	//
	// Parameters:
	//   - outcome: "resumed", "skipped", "abandoned", "kept_alive", "failed"
	RecordResumeOutcome(outcome string)

	// RecordResumeDuration records the duration of a whole resumption run.
	//
	// Parameters:
	//   - duration: Time taken in seconds
	RecordResumeDuration(duration float64)

	// RecordTrackResolve records one track re-resolution attempt.
	RecordTrackResolve(success bool)
}

// StoreMetrics defines metrics for the shared store.
type StoreMetrics interface {
	// RecordStoreOperationDuration records store operation latency.
	//
	// Parameters:
	//   - operation: Operation type ("get", "create", "update", "put", "delete", "keys")
	//   - duration: Time taken in seconds
	RecordStoreOperationDuration(operation string, duration float64)
}
