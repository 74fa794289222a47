// Package directory maintains the guild assignment directory: one record per
// guild naming the single worker that owns it.
//
// Ownership only changes through Reassign. GetOrCreate never evicts an
// existing owner, so two workers racing for a fresh guild agree on whichever
// created the record first.
package directory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/arloliu/chorus/internal/docstore"
	"github.com/arloliu/chorus/internal/logging"
	"github.com/arloliu/chorus/internal/metrics"
	"github.com/arloliu/chorus/types"
)

// Directory reads and writes guild assignments.
type Directory struct {
	store   types.DocumentStore
	now     func() time.Time
	metrics types.MetricsCollector
	logger  types.Logger
}

// Option configures a Directory.
type Option func(*Directory)

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) { d.now = now }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(d *Directory) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(d *Directory) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a directory over store.
//
// Parameters:
//   - store: Document store holding one record per guild ID
//   - opts: Optional configuration
//
// Returns:
//   - *Directory: New directory instance
func New(store types.DocumentStore, opts ...Option) *Directory {
	d := &Directory{
		store:   store,
		now:     time.Now,
		metrics: metrics.NewNop(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// GetOrCreate returns the guild's assignment, creating an inactive one owned
// by workerID if none exists.
//
// An existing record is returned unchanged, whoever owns it.
//
// Parameters:
//   - ctx: Context for cancellation
//   - guildID: Guild to look up
//   - workerID: Owner for a newly created record
//   - clientID: Client ID of workerID
//   - reason: Assignment reason for a newly created record
//
// Returns:
//   - types.GuildAssignment: The stored assignment
//   - bool: true if this call created the record
//   - error: Store error
func (d *Directory) GetOrCreate(ctx context.Context, guildID, workerID, clientID string, reason types.AssignmentReason) (types.GuildAssignment, bool, error) {
	for range docstore.DefaultMaxAttempts {
		existing, err := d.Get(ctx, guildID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, types.ErrNotFound) {
			return types.GuildAssignment{}, false, err
		}

		now := d.now()
		rec := types.GuildAssignment{
			GuildID:          guildID,
			OwnerWorkerID:    workerID,
			ClientID:         clientID,
			AssignmentReason: reason,
			AssignedAt:       now,
			UpdatedAt:        now,
		}
		err = docstore.Create(ctx, d.store, guildID, rec)
		if err == nil {
			d.metrics.RecordAssignment(string(reason))
			d.logger.Info("guild assigned", "guild_id", guildID, "worker_id", workerID, "reason", reason)

			return rec, true, nil
		}
		if !errors.Is(err, types.ErrAlreadyExists) {
			return types.GuildAssignment{}, false, fmt.Errorf("failed to create assignment for %s: %w", guildID, err)
		}
		// Lost the create race; read the winner's record.
	}

	return types.GuildAssignment{}, false, fmt.Errorf("%s: %w", guildID, docstore.ErrTooManyConflicts)
}

// Activate records that the owner now holds a live session for the guild.
//
// Parameters:
//   - ctx: Context for cancellation
//   - guildID: Guild being activated
//   - voiceChannelID: Voice channel of the session
//   - textChannelID: Text channel of the session
//
// Returns:
//   - types.Result: Success, or failure wrapping types.ErrNotFound or a store error
func (d *Directory) Activate(ctx context.Context, guildID, voiceChannelID, textChannelID string) types.Result {
	now := d.now()

	_, err := docstore.Mutate(ctx, d.store, guildID, func(rec *types.GuildAssignment, exists bool) (bool, error) {
		if !exists {
			return false, types.ErrNotFound
		}
		rec.IsActive = true
		rec.VoiceChannelID = voiceChannelID
		rec.TextChannelID = textChannelID
		rec.ActivatedAt = &now
		rec.UpdatedAt = now

		return true, nil
	})
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return types.Fail("assignment not found", err)
		}

		return types.Fail("failed to activate assignment", err)
	}

	return types.OK("assignment activated")
}

// Deactivate clears the active session context and keeps the record.
//
// Returns types.ErrNotFound when the guild has no assignment.
func (d *Directory) Deactivate(ctx context.Context, guildID string) error {
	now := d.now()

	_, err := docstore.Mutate(ctx, d.store, guildID, func(rec *types.GuildAssignment, exists bool) (bool, error) {
		if !exists {
			return false, types.ErrNotFound
		}
		if !rec.IsActive && rec.VoiceChannelID == "" && rec.TextChannelID == "" {
			return false, nil
		}
		clearActivation(rec)
		rec.UpdatedAt = now

		return true, nil
	})
	if err != nil {
		return fmt.Errorf("failed to deactivate %s: %w", guildID, err)
	}

	return nil
}

// Reassign makes newWorkerID the guild's owner with reason manual.
//
// This is the only operation that overwrites an owner. Activation is reset so
// the new owner starts from an inactive record. A missing record is created.
// Reassigning to the current owner changes nothing beyond the client ID.
//
// Parameters:
//   - ctx: Context for cancellation
//   - guildID: Guild to reassign
//   - newWorkerID: New owner
//   - clientID: Client ID of the new owner
//
// Returns:
//   - types.GuildAssignment: The stored assignment
//   - error: Store error
func (d *Directory) Reassign(ctx context.Context, guildID, newWorkerID, clientID string) (types.GuildAssignment, error) {
	return d.reassign(ctx, guildID, newWorkerID, clientID, types.ReasonManual)
}

// Replace moves a stale assignment to newWorkerID with reason auto.
//
// Used by the balancer when a guild's owner is no longer live.
func (d *Directory) Replace(ctx context.Context, guildID, newWorkerID, clientID string) (types.GuildAssignment, error) {
	return d.reassign(ctx, guildID, newWorkerID, clientID, types.ReasonAuto)
}

func (d *Directory) reassign(ctx context.Context, guildID, newWorkerID, clientID string, reason types.AssignmentReason) (types.GuildAssignment, error) {
	now := d.now()
	var previous string
	moved := false

	rec, err := docstore.Mutate(ctx, d.store, guildID, func(rec *types.GuildAssignment, exists bool) (bool, error) {
		previous = rec.OwnerWorkerID
		moved = false
		if exists && rec.OwnerWorkerID == newWorkerID {
			// Already owned: keep the activation and the assignment time.
			if clientID == "" || rec.ClientID == clientID {
				return false, nil
			}
			rec.ClientID = clientID
			rec.UpdatedAt = now

			return true, nil
		}
		moved = true
		if !exists {
			rec.GuildID = guildID
		}
		rec.OwnerWorkerID = newWorkerID
		rec.ClientID = clientID
		rec.AssignmentReason = reason
		rec.AssignedAt = now
		rec.UpdatedAt = now
		clearActivation(rec)

		return true, nil
	})
	if err != nil {
		return types.GuildAssignment{}, fmt.Errorf("failed to reassign %s: %w", guildID, err)
	}
	if !moved {
		d.logger.Debug("guild already owned by target", "guild_id", guildID, "worker_id", newWorkerID)
		return rec, nil
	}

	d.metrics.RecordAssignment(string(reason))
	d.logger.Info("guild reassigned",
		"guild_id", guildID,
		"from", previous,
		"to", newWorkerID,
		"reason", reason,
	)

	return rec, nil
}

// Get returns the guild's assignment, or types.ErrNotFound.
func (d *Directory) Get(ctx context.Context, guildID string) (types.GuildAssignment, error) {
	rec, _, err := docstore.Load[types.GuildAssignment](ctx, d.store, guildID)
	if err != nil {
		return types.GuildAssignment{}, err
	}

	return rec, nil
}

// List returns every assignment ordered by guild ID.
func (d *Directory) List(ctx context.Context) ([]types.GuildAssignment, error) {
	recs, err := docstore.List[types.GuildAssignment](ctx, d.store)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	slices.SortFunc(recs, func(a, b types.GuildAssignment) int {
		return strings.Compare(a.GuildID, b.GuildID)
	})

	return recs, nil
}

// CountActive returns the number of active assignments.
func (d *Directory) CountActive(ctx context.Context) (int, error) {
	recs, err := d.List(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, rec := range recs {
		if rec.IsActive {
			n++
		}
	}

	return n, nil
}

// CheckOwner verifies that workerID still owns the guild.
//
// Returns:
//   - error: nil when workerID owns the guild or no record exists,
//     an error wrapping types.ErrOwnershipConflict naming the owner otherwise
func (d *Directory) CheckOwner(ctx context.Context, guildID, workerID string) error {
	rec, err := d.Get(ctx, guildID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil
		}

		return err
	}
	if rec.OwnerWorkerID != workerID {
		return &OwnershipError{GuildID: guildID, Owner: rec.OwnerWorkerID}
	}

	return nil
}

// DeactivateOrphans deactivates every active assignment whose owner isLive rejects.
//
// Per-guild failures are logged and skipped.
//
// Returns:
//   - int: Number of assignments deactivated
//   - error: Listing error only
func (d *Directory) DeactivateOrphans(ctx context.Context, isLive func(workerID string) bool) (int, error) {
	recs, err := d.List(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, rec := range recs {
		if !rec.IsActive || isLive(rec.OwnerWorkerID) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := d.Deactivate(ctx, rec.GuildID); err != nil {
			if !errors.Is(err, types.ErrNotFound) {
				d.logger.Warn("failed to deactivate orphaned assignment", "guild_id", rec.GuildID, "error", err)
			}

			continue
		}
		d.logger.Info("deactivated orphaned assignment", "guild_id", rec.GuildID, "owner", rec.OwnerWorkerID)
		n++
	}
	d.metrics.RecordStaleSweep(n)

	return n, nil
}

func clearActivation(rec *types.GuildAssignment) {
	rec.IsActive = false
	rec.VoiceChannelID = ""
	rec.TextChannelID = ""
	rec.ActivatedAt = nil
}
