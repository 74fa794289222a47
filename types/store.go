package types

import "context"

// DocumentStore is a flat keyed store with optimistic concurrency.
//
// Each registry (heartbeats, assignments, snapshots) owns one DocumentStore
// namespace. Implementations exist for NATS JetStream KV and Redis.
//
// Revisions are opaque, strictly increasing per key, and never zero for an
// existing key.
type DocumentStore interface {
	// Get returns the value and revision stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, uint64, error)

	// Create stores value only if key does not exist; ErrAlreadyExists otherwise.
	Create(ctx context.Context, key string, value []byte) (uint64, error)

	// Update replaces the value only if the stored revision equals revision;
	// ErrRevisionMismatch otherwise.
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)

	// Put unconditionally stores value.
	Put(ctx context.Context, key string, value []byte) (uint64, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists every key in the namespace. An empty namespace yields an empty slice.
	Keys(ctx context.Context) ([]string, error)
}
