package heartbeat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/arloliu/chorus/internal/docstore"
	"github.com/arloliu/chorus/types"
)

// Registry stores and lists worker heartbeat records.
type Registry struct {
	store types.DocumentStore
	now   func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the clock used for timestamps and liveness checks.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry over store.
//
// Parameters:
//   - store: Document store holding one record per worker ID
//   - opts: Optional configuration
//
// Returns:
//   - *Registry: New registry instance
func NewRegistry(store types.DocumentStore, opts ...RegistryOption) *Registry {
	r := &Registry{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Upsert merges fields into the worker's record and stamps LastHeartbeat.
//
// The merge is a compare-and-swap on the whole record, so readers never see
// a partially applied update.
//
// Parameters:
//   - ctx: Context for cancellation
//   - workerID: Worker whose record is written
//   - fields: Fields to change; nil fields keep their stored value
//
// Returns:
//   - types.HeartbeatRecord: Record as stored
//   - error: Store error
func (r *Registry) Upsert(ctx context.Context, workerID string, fields types.HeartbeatFields) (types.HeartbeatRecord, error) {
	now := r.now()

	rec, err := docstore.Mutate(ctx, r.store, workerID, func(rec *types.HeartbeatRecord, _ bool) (bool, error) {
		rec.WorkerID = workerID
		fields.Apply(rec)
		if !rec.Status.Valid() {
			rec.Status = types.StatusStarting
		}
		rec.LastHeartbeat = now

		return true, nil
	})
	if err != nil {
		return types.HeartbeatRecord{}, fmt.Errorf("failed to upsert heartbeat for %s: %w", workerID, err)
	}

	return rec, nil
}

// Get returns one worker's record, or types.ErrNotFound.
func (r *Registry) Get(ctx context.Context, workerID string) (types.HeartbeatRecord, error) {
	rec, _, err := docstore.Load[types.HeartbeatRecord](ctx, r.store, workerID)
	if err != nil {
		return types.HeartbeatRecord{}, err
	}

	return rec, nil
}

// List returns every record, live or not, ordered by worker ID.
func (r *Registry) List(ctx context.Context) ([]types.HeartbeatRecord, error) {
	recs, err := docstore.List[types.HeartbeatRecord](ctx, r.store)
	if err != nil {
		return nil, fmt.Errorf("failed to list heartbeats: %w", err)
	}
	slices.SortFunc(recs, func(a, b types.HeartbeatRecord) int {
		return strings.Compare(a.WorkerID, b.WorkerID)
	})

	return recs, nil
}

// ListLive returns the live records, ordered by worker ID.
func (r *Registry) ListLive(ctx context.Context) ([]types.HeartbeatRecord, error) {
	recs, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now()
	live := recs[:0]
	for _, rec := range recs {
		if types.IsLive(rec, now) {
			live = append(live, rec)
		}
	}

	return live, nil
}

// IsLive reports whether workerID is live right now.
//
// A worker without a record is not live and is not an error.
func (r *Registry) IsLive(ctx context.Context, workerID string) (bool, error) {
	rec, err := r.Get(ctx, workerID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}

		return false, err
	}

	return types.IsLive(rec, r.now()), nil
}

// Now returns the registry's current time.
func (r *Registry) Now() time.Time {
	return r.now()
}
