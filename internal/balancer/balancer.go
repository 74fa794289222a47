// Package balancer decides which worker owns a guild.
//
// It reads heartbeats and assignments only; it never talks to the audio
// backend. Resolve corrects stale ownership lazily: a guild whose owner is no
// longer live is handed to a live worker the next time somebody asks for it.
package balancer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/arloliu/chorus/internal/directory"
	"github.com/arloliu/chorus/internal/heartbeat"
	"github.com/arloliu/chorus/internal/logging"
	"github.com/arloliu/chorus/internal/metrics"
	"github.com/arloliu/chorus/types"
)

// Reassignment result labels for metrics.
const (
	resultSuccess  = "success"
	resultWarning  = "warning"
	resultRejected = "rejected"
)

// Balancer selects owners for guilds and applies operator reassignments.
type Balancer struct {
	registry   *heartbeat.Registry
	directory  *directory.Directory
	strategy   types.BalancingStrategy
	preference []string
	metrics    types.MetricsCollector
	logger     types.Logger
}

// Option configures a Balancer.
type Option func(*Balancer)

// WithPreference sets the worker preference list. Workers not listed come
// after listed ones, sorted by ID.
func WithPreference(workerIDs []string) Option {
	return func(b *Balancer) {
		b.preference = slices.Clone(workerIDs)
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(b *Balancer) {
		if m != nil {
			b.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(b *Balancer) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a balancer.
//
// Parameters:
//   - registry: Heartbeat registry used for liveness
//   - dir: Guild assignment directory
//   - strategy: Strategy choosing among live candidates
//   - opts: Optional configuration
//
// Returns:
//   - *Balancer: New balancer instance
func New(registry *heartbeat.Registry, dir *directory.Directory, strategy types.BalancingStrategy, opts ...Option) *Balancer {
	b := &Balancer{
		registry:  registry,
		directory: dir,
		strategy:  strategy,
		metrics:   metrics.NewNop(),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// StrategyName returns the name of the configured strategy.
func (b *Balancer) StrategyName() string {
	return b.strategy.Name()
}

// SelectWorker chooses a live worker for guildID.
//
// Returns:
//   - string: Chosen worker ID
//   - error: types.ErrNoWorkersAvailable when no live worker qualifies, or a store error
func (b *Balancer) SelectWorker(ctx context.Context, guildID string) (string, error) {
	live, err := b.registry.ListLive(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list live workers: %w", err)
	}
	b.metrics.RecordLiveWorkers(len(live))

	if len(live) == 0 {
		return "", types.ErrNoWorkersAvailable
	}

	workerID, err := b.strategy.Select(b.order(live), guildID)
	if err != nil {
		return "", err
	}

	return workerID, nil
}

// order sorts candidates by the preference list; unknown workers follow, by ID.
func (b *Balancer) order(candidates []types.HeartbeatRecord) []types.HeartbeatRecord {
	rank := make(map[string]int, len(b.preference))
	for i, id := range b.preference {
		if _, ok := rank[id]; !ok {
			rank[id] = i
		}
	}

	out := slices.Clone(candidates)
	slices.SortStableFunc(out, func(a, c types.HeartbeatRecord) int {
		ra, aKnown := rank[a.WorkerID]
		rc, cKnown := rank[c.WorkerID]
		switch {
		case aKnown && cKnown:
			return ra - rc
		case aKnown:
			return -1
		case cKnown:
			return 1
		default:
			return strings.Compare(a.WorkerID, c.WorkerID)
		}
	})

	return out
}

// Resolve returns the guild's assignment, fixing it first if needed.
//
// A guild without an assignment gets one (reason auto). A guild whose owner
// is not live is moved to a freshly selected worker. A guild with a live
// owner is returned unchanged.
//
// Parameters:
//   - ctx: Context for cancellation
//   - guildID: Guild to resolve
//   - clientIDFor: Maps a worker ID to its client ID; may be nil
//
// Returns:
//   - types.GuildAssignment: The effective assignment
//   - error: types.ErrNoWorkersAvailable or a store error
func (b *Balancer) Resolve(ctx context.Context, guildID string, clientIDFor func(workerID string) string) (types.GuildAssignment, error) {
	if clientIDFor == nil {
		clientIDFor = b.heartbeatClientID(ctx)
	}

	missing := false
	current, err := b.directory.Get(ctx, guildID)
	switch {
	case err == nil:
		live, lerr := b.registry.IsLive(ctx, current.OwnerWorkerID)
		if lerr != nil {
			return types.GuildAssignment{}, fmt.Errorf("failed to check owner liveness: %w", lerr)
		}
		if live {
			return current, nil
		}
	case errors.Is(err, types.ErrNotFound):
		missing = true
	default:
		return types.GuildAssignment{}, err
	}

	workerID, err := b.SelectWorker(ctx, guildID)
	if err != nil {
		return types.GuildAssignment{}, err
	}

	if missing {
		rec, _, cerr := b.directory.GetOrCreate(ctx, guildID, workerID, clientIDFor(workerID), types.ReasonAuto)
		return rec, cerr
	}

	b.logger.Info("owner not live, moving guild",
		"guild_id", guildID,
		"stale_owner", current.OwnerWorkerID,
		"new_owner", workerID,
	)

	return b.directory.Replace(ctx, guildID, workerID, clientIDFor(workerID))
}

// heartbeatClientID looks client IDs up in the heartbeat registry.
func (b *Balancer) heartbeatClientID(ctx context.Context) func(string) string {
	return func(workerID string) string {
		rec, err := b.registry.Get(ctx, workerID)
		if err != nil {
			return ""
		}

		return rec.ClientID
	}
}

// ForceAssign moves guildID to targetWorkerID on an operator's request.
//
// The target must be live. A target that reports a disconnected audio
// backend is accepted with a warning. In-flight sessions are not migrated;
// the old owner notices on its next command. Calling twice with the same
// target yields the same state.
//
// Parameters:
//   - ctx: Context for cancellation
//   - guildID: Guild to move
//   - targetWorkerID: New owner
//
// Returns:
//   - types.Result: Outcome; Err wraps types.ErrTargetUnavailable on rejection
func (b *Balancer) ForceAssign(ctx context.Context, guildID, targetWorkerID string) types.Result {
	target, err := b.registry.Get(ctx, targetWorkerID)
	if err != nil {
		b.metrics.RecordReassignment(resultRejected)
		if errors.Is(err, types.ErrNotFound) {
			return types.Fail("target offline",
				fmt.Errorf("%w: %s has no heartbeat", types.ErrTargetUnavailable, targetWorkerID))
		}
		b.logger.Warn("target heartbeat unreadable", "worker_id", targetWorkerID, "error", err)

		return types.Fail("target connectivity check failed",
			fmt.Errorf("%w: %w", types.ErrTargetUnavailable, err))
	}

	if !types.IsLive(target, b.registry.Now()) {
		b.metrics.RecordReassignment(resultRejected)
		return types.Fail("target offline",
			fmt.Errorf("%w: %s is not live", types.ErrTargetUnavailable, targetWorkerID))
	}

	if _, err := b.directory.Reassign(ctx, guildID, targetWorkerID, target.ClientID); err != nil {
		b.metrics.RecordReassignment(resultRejected)
		return types.Fail("failed to reassign guild", err)
	}

	res := types.OK(fmt.Sprintf("guild %s reassigned to %s", guildID, targetWorkerID))
	if !target.BackendConnected {
		res.Warning = fmt.Sprintf("%s reports no connected audio node", targetWorkerID)
		b.metrics.RecordReassignment(resultWarning)
		b.logger.Warn("reassigned to worker without audio backend", "guild_id", guildID, "worker_id", targetWorkerID)

		return res
	}
	b.metrics.RecordReassignment(resultSuccess)

	return res
}
