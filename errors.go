package chorus

import "github.com/arloliu/chorus/types"

// Sentinel errors returned by the Worker and its components.
//
// They are aliases of the types package errors so errors.Is works whichever
// package the caller imports.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = types.ErrInvalidConfig

	// ErrNATSConnectionRequired is returned when NATS connection is nil.
	ErrNATSConnectionRequired = types.ErrNATSConnectionRequired

	// ErrBackendRequired is returned when no audio backend is supplied.
	ErrBackendRequired = types.ErrBackendRequired

	// ErrGatewayRequired is returned when no chat gateway is supplied.
	ErrGatewayRequired = types.ErrGatewayRequired

	// ErrAlreadyStarted is returned when Start is called on an already running worker.
	ErrAlreadyStarted = types.ErrAlreadyStarted

	// ErrNotStarted is returned when Stop is called on a worker that hasn't been started.
	ErrNotStarted = types.ErrNotStarted

	// ErrWorkerIDInUse is returned when another process holds the configured worker ID.
	ErrWorkerIDInUse = types.ErrWorkerIDInUse

	// ErrConnectivity indicates a NATS/KV connectivity issue.
	ErrConnectivity = types.ErrConnectivity

	// ErrNotFound is returned for a missing heartbeat, assignment or snapshot.
	ErrNotFound = types.ErrNotFound

	// ErrTargetUnavailable is returned when a forced reassignment targets an unusable worker.
	ErrTargetUnavailable = types.ErrTargetUnavailable

	// ErrNoWorkersAvailable is returned when no live worker can take a guild.
	ErrNoWorkersAvailable = types.ErrNoWorkersAvailable

	// ErrOwnershipConflict is returned when a worker acts on a guild it no longer owns.
	ErrOwnershipConflict = types.ErrOwnershipConflict

	// ErrPartialResumeFailure indicates some tracks of a guild could not be re-resolved.
	ErrPartialResumeFailure = types.ErrPartialResumeFailure

	// ErrTotalResumeFailure indicates no track of a guild could be re-resolved.
	ErrTotalResumeFailure = types.ErrTotalResumeFailure

	// ErrRedisClientRequired is returned when the redis store is configured without WithRedis.
	ErrRedisClientRequired = types.ErrRedisClientRequired
)
