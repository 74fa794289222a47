package types

import (
	"errors"
	"strings"
)

// Sentinel errors for the chorus library.
//
// These errors provide type-safe error checking using errors.Is() and errors.As().
// All components should use these sentinel errors for known error conditions
// and wrap external errors with context using fmt.Errorf("%s: %w", msg, err).
//
// Error Naming Convention:
//   - Use descriptive names with Err prefix
//   - Group by component (Worker, Directory, Balancer, etc.)
//   - Use consistent messages across similar error types

// Worker errors - Public API errors returned by the Worker component.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNATSConnectionRequired is returned when NATS connection is nil.
	ErrNATSConnectionRequired = errors.New("NATS connection is required")

	// ErrBackendRequired is returned when no audio backend is supplied.
	ErrBackendRequired = errors.New("audio backend is required")

	// ErrGatewayRequired is returned when no chat gateway is supplied.
	ErrGatewayRequired = errors.New("chat gateway is required")

	// ErrAlreadyStarted is returned when Start is called on an already running worker.
	ErrAlreadyStarted = errors.New("worker already started")

	// ErrNotStarted is returned when operations require a started worker.
	ErrNotStarted = errors.New("worker not started")

	// ErrRedisClientRequired is returned when the redis store is selected without a client.
	ErrRedisClientRequired = errors.New("redis client is required for the redis store")

	// ErrWorkerIDInUse is returned when another process already holds the configured worker ID.
	ErrWorkerIDInUse = errors.New("worker ID already in use")

	// ErrConnectivity indicates a NATS/KV connectivity issue.
	// Used to distinguish network failures from application errors.
	ErrConnectivity = errors.New("connectivity issue")
)

// Coordination errors - returned by the directory, balancer and snapshot store.
var (
	// ErrNotFound is returned when a referenced heartbeat, assignment or snapshot does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned by DocumentStore.Create when the key already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrRevisionMismatch is returned by DocumentStore.Update when the stored revision moved on.
	ErrRevisionMismatch = errors.New("revision mismatch")

	// ErrTargetUnavailable is returned when a forced reassignment targets a worker
	// that is offline or whose heartbeat cannot be read.
	ErrTargetUnavailable = errors.New("target worker unavailable")

	// ErrNoWorkersAvailable is returned when no live worker qualifies for a guild.
	ErrNoWorkersAvailable = errors.New("no workers available")

	// ErrOwnershipConflict is returned when a worker acts on a guild it no longer owns.
	ErrOwnershipConflict = errors.New("guild is owned by another worker")

	// ErrUnknownStrategy is returned when the configured balancing strategy name is not recognized.
	ErrUnknownStrategy = errors.New("unknown balancing strategy")
)

// Resumption errors - recorded per guild by the resumption controller.
var (
	// ErrPartialResumeFailure indicates some, but not all, tracks of a guild could be re-resolved.
	ErrPartialResumeFailure = errors.New("partial resume failure")

	// ErrTotalResumeFailure indicates no track of a guild could be re-resolved.
	ErrTotalResumeFailure = errors.New("total resume failure")

	// ErrBackendNotConnected is returned when the audio backend has no connected node.
	ErrBackendNotConnected = errors.New("audio backend has no connected node")
)

// Session errors - returned by the session manager.
var (
	// ErrNoSession is returned when a command targets a guild without a live session.
	ErrNoSession = errors.New("no active session")

	// ErrNoResults is returned when a search yields no playable track.
	ErrNoResults = errors.New("no results")

	// ErrInvalidVolume is returned when a volume outside 0-150 is requested.
	ErrInvalidVolume = errors.New("volume must be between 0 and 150")

	// ErrInvalidLoopMode is returned for an unknown loop mode.
	ErrInvalidLoopMode = errors.New("invalid loop mode")
)

// Common errors - Shared errors used across multiple components.
var (
	// ErrNoKeysFound is returned when a store holds no keys (expected condition).
	ErrNoKeysFound = errors.New("no keys found")
)

// IsNoKeysFoundError checks if an error indicates that no keys were found in NATS KV.
//
// This function handles NATS-specific "no keys found" errors which may come as:
//   - Direct error: "nats: no keys found"
//   - Wrapped error: "failed to list KV keys: nats: no keys found"
//
// Parameters:
//   - err: The error to check
//
// Returns:
//   - bool: true if the error indicates no keys were found, false otherwise
func IsNoKeysFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoKeysFound) {
		return true
	}

	return strings.Contains(err.Error(), "no keys found")
}
