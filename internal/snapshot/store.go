// Package snapshot persists per-guild playback snapshots for resumption.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/chorus/internal/docstore"
	"github.com/arloliu/chorus/internal/logging"
	"github.com/arloliu/chorus/internal/metrics"
	"github.com/arloliu/chorus/types"
)

// Metric operation labels.
const (
	opSave      = "save"
	opTombstone = "tombstone"
)

// Store reads and writes session snapshots.
//
// Writes for one guild are serialized; different guilds write in parallel.
type Store struct {
	docs    types.DocumentStore
	locks   *xsync.Map[string, *sync.Mutex]
	now     func() time.Time
	metrics types.MetricsCollector
	logger  types.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a snapshot store over docs.
func New(docs types.DocumentStore, opts ...Option) *Store {
	s := &Store{
		docs:    docs,
		locks:   xsync.NewMap[string, *sync.Mutex](),
		now:     time.Now,
		metrics: metrics.NewNop(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Store) lock(guildID string) func() {
	mu, _ := s.locks.LoadOrStore(guildID, &sync.Mutex{})
	mu.Lock()

	return mu.Unlock
}

// Save replaces the guild's snapshot.
//
// GuildID and UpdatedAt are stamped by the store. Failures are logged and
// returned; most callers only log them.
//
// Parameters:
//   - ctx: Context for cancellation
//   - guildID: Guild the snapshot belongs to
//   - snap: Full snapshot to store
//
// Returns:
//   - error: Store error
func (s *Store) Save(ctx context.Context, guildID string, snap types.SessionSnapshot) error {
	unlock := s.lock(guildID)
	defer unlock()

	snap.GuildID = guildID
	snap.UpdatedAt = s.now()
	if snap.Queue == nil {
		snap.Queue = []types.TrackInfo{}
	}

	if err := docstore.Put(ctx, s.docs, guildID, snap); err != nil {
		s.metrics.RecordSnapshotWrite(opSave, false)
		s.logger.Warn("failed to save snapshot", "guild_id", guildID, "error", err)

		return fmt.Errorf("failed to save snapshot for %s: %w", guildID, err)
	}
	s.metrics.RecordSnapshotWrite(opSave, true)

	return nil
}

// Get returns the guild's snapshot, or types.ErrNotFound.
func (s *Store) Get(ctx context.Context, guildID string) (types.SessionSnapshot, error) {
	snap, _, err := docstore.Load[types.SessionSnapshot](ctx, s.docs, guildID)
	if err != nil {
		return types.SessionSnapshot{}, err
	}

	return snap, nil
}

// List returns every snapshot, tombstones included, ordered by guild ID.
func (s *Store) List(ctx context.Context) ([]types.SessionSnapshot, error) {
	snaps, err := docstore.List[types.SessionSnapshot](ctx, s.docs)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	slices.SortFunc(snaps, func(a, b types.SessionSnapshot) int {
		return strings.Compare(a.GuildID, b.GuildID)
	})

	return snaps, nil
}

// FindActiveForWorker returns the non-destroyed snapshots owned by workerID.
func (s *Store) FindActiveForWorker(ctx context.Context, workerID string) ([]types.SessionSnapshot, error) {
	snaps, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	active := snaps[:0]
	for _, snap := range snaps {
		if !snap.Destroyed && snap.OwnerWorkerID == workerID {
			active = append(active, snap)
		}
	}

	return active, nil
}

// MarkDestroyed turns the guild's snapshot into a tombstone.
//
// Only a snapshot owned by ownerWorkerID is tombstoned. A missing, already
// destroyed or foreign-owned snapshot is a no-op.
func (s *Store) MarkDestroyed(ctx context.Context, guildID string, ownerWorkerID string) error {
	unlock := s.lock(guildID)
	defer unlock()

	now := s.now()
	_, err := docstore.Mutate(ctx, s.docs, guildID, func(snap *types.SessionSnapshot, exists bool) (bool, error) {
		if !exists || snap.Destroyed {
			return false, nil
		}
		if snap.OwnerWorkerID != ownerWorkerID {
			s.logger.Debug("snapshot owned by another worker, not tombstoning",
				"guild_id", guildID, "owner", snap.OwnerWorkerID, "worker_id", ownerWorkerID)

			return false, nil
		}
		snap.Destroyed = true
		snap.UpdatedAt = now

		return true, nil
	})
	if err != nil {
		s.metrics.RecordSnapshotWrite(opTombstone, false)
		s.logger.Warn("failed to tombstone snapshot", "guild_id", guildID, "error", err)

		return fmt.Errorf("failed to tombstone snapshot for %s: %w", guildID, err)
	}
	s.metrics.RecordSnapshotWrite(opTombstone, true)

	return nil
}

// CountActive returns the number of non-destroyed snapshots.
func (s *Store) CountActive(ctx context.Context) (int, error) {
	snaps, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, snap := range snaps {
		if !snap.Destroyed {
			n++
		}
	}

	return n, nil
}

// IsActive reports whether the guild has a non-destroyed snapshot.
func (s *Store) IsActive(ctx context.Context, guildID string) (bool, error) {
	snap, err := s.Get(ctx, guildID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return false, nil
		}

		return false, err
	}

	return !snap.Destroyed, nil
}
