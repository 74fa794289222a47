package resume

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arloliu/chorus/internal/hooks"
	"github.com/arloliu/chorus/internal/logging"
	"github.com/arloliu/chorus/internal/metrics"
	"github.com/arloliu/chorus/internal/snapshot"
	"github.com/arloliu/chorus/types"
)

// Defaults for Config fields left zero.
const (
	DefaultBatchSize      = 5
	DefaultSettleDelay    = 500 * time.Millisecond
	DefaultConnectTimeout = 2 * time.Minute
	cleanupTimeout        = 5 * time.Second
)

// Config controls a resumption run.
type Config struct {
	// WorkerID selects the snapshots to resume.
	WorkerID string

	// BatchSize is the number of concurrent searches per batch.
	BatchSize int

	// SettleDelay is how long to let playback start before seeking.
	SettleDelay time.Duration

	// ConnectTimeout bounds the wait for the first audio node.
	ConnectTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
}

// SessionRegistrar takes ownership of resumed sessions so they keep writing snapshots.
//
// Restore runs rebuild while holding the guild's command lock and adopts the
// non-nil session it returns. It returns false without calling rebuild when
// the guild already has a live session.
type SessionRegistrar interface {
	Restore(ctx context.Context, snap types.SessionSnapshot, rebuild func() types.Session) bool
}

// OwnershipChecker reports whether a worker still owns a guild.
type OwnershipChecker interface {
	CheckOwner(ctx context.Context, guildID, workerID string) error
}

// Controller runs resumption for one worker.
type Controller struct {
	cfg       Config
	snapshots *snapshot.Store
	backend   types.AudioBackend
	gateway   types.Gateway
	sessions  SessionRegistrar
	owners    OwnershipChecker
	hooks     *types.Hooks
	metrics   types.MetricsCollector
	logger    types.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option configures a Controller.
type Option func(*Controller)

// WithSessions registers resumed sessions with r.
func WithSessions(r SessionRegistrar) Option {
	return func(c *Controller) { c.sessions = r }
}

// WithOwnership skips guilds that the directory has moved to another worker.
func WithOwnership(o OwnershipChecker) Option {
	return func(c *Controller) { c.owners = o }
}

// WithHooks sets lifecycle hooks.
func WithHooks(h *types.Hooks) Option {
	return func(c *Controller) { c.hooks = hooks.Fill(h) }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a resumption controller.
//
// Parameters:
//   - snapshots: Snapshot store to read from and tombstone into
//   - backend: Audio backend sessions are recreated on
//   - gateway: Chat gateway used to check that guilds and channels still exist
//   - cfg: Run settings; zero fields take defaults
//   - opts: Optional configuration
//
// Returns:
//   - *Controller: New controller instance
func New(snapshots *snapshot.Store, backend types.AudioBackend, gateway types.Gateway, cfg Config, opts ...Option) *Controller {
	cfg.setDefaults()

	c := &Controller{
		cfg:       cfg,
		snapshots: snapshots,
		backend:   backend,
		gateway:   gateway,
		hooks:     hooks.Fill(nil),
		metrics:   metrics.NewNop(),
		logger:    logging.NewNop(),
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run resumes every active snapshot owned by the worker.
//
// Blocks until the backend has a connected node (bounded by ConnectTimeout),
// then processes snapshots one guild at a time. Per-guild failures are
// recorded in the report and never abort the run. On cancellation the guild
// in progress is torn down and the remaining snapshots are left untouched.
//
// Returns:
//   - Report: Per-guild outcomes
//   - error: types.ErrBackendNotConnected, a snapshot listing error, or ctx.Err()
func (c *Controller) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{}
	defer func() {
		report.Duration = time.Since(start)
		c.metrics.RecordResumeDuration(report.Duration.Seconds())
	}()

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	err := c.backend.WaitConnected(waitCtx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		return report, fmt.Errorf("%w: %w", types.ErrBackendNotConnected, err)
	}

	snaps, err := c.snapshots.FindActiveForWorker(ctx, c.cfg.WorkerID)
	if err != nil {
		return report, fmt.Errorf("failed to load snapshots: %w", err)
	}
	if len(snaps) == 0 {
		c.logger.Info("no sessions to resume", "worker_id", c.cfg.WorkerID)
		return report, nil
	}

	c.logger.Info("resuming sessions", "worker_id", c.cfg.WorkerID, "count", len(snaps))

	for _, snap := range snaps {
		if ctx.Err() != nil {
			break
		}

		gr := c.resumeGuild(ctx, snap)
		report.Guilds = append(report.Guilds, gr)
		c.metrics.RecordResumeOutcome(string(gr.Outcome))
		c.logOutcome(gr)
	}

	c.logger.Info("resumption finished",
		"resumed", report.Count(OutcomeResumed),
		"kept_alive", report.Count(OutcomeKeptAlive),
		"skipped", report.Count(OutcomeSkipped),
		"abandoned", report.Count(OutcomeAbandoned),
		"failed", report.Count(OutcomeFailed),
	)

	return report, ctx.Err()
}

// resumeGuild drives one snapshot to a terminal outcome.
//
// The rebuild runs under the registrar's guild lock, so a command that
// arrives mid-resume either waits for the resumed session or, if it got
// there first, keeps its own session and the snapshot is skipped.
func (c *Controller) resumeGuild(ctx context.Context, snap types.SessionSnapshot) GuildReport {
	var gr GuildReport
	if c.sessions == nil {
		gr, _ = c.rebuild(ctx, snap)
	} else {
		restored := c.sessions.Restore(ctx, snap, func() types.Session {
			var session types.Session
			gr, session = c.rebuild(ctx, snap)

			return session
		})
		if !restored {
			return GuildReport{
				GuildID:   snap.GuildID,
				Requested: snap.TrackCount(),
				Outcome:   OutcomeSkipped,
				Reason:    "session already live",
			}
		}
	}

	if gr.Outcome == OutcomeResumed {
		go func() {
			if err := c.hooks.OnGuildResumed(ctx, snap.GuildID, gr.Loaded); err != nil {
				c.logger.Error("guild resumed hook error", "guild_id", snap.GuildID, "error", err)
			}
		}()
	}

	return gr
}

// rebuild recreates one guild's session from its snapshot.
//
// Returns the report and, for the resumed and kept-alive outcomes, the
// session to adopt. Every other outcome has already been torn down.
func (c *Controller) rebuild(ctx context.Context, snap types.SessionSnapshot) (GuildReport, types.Session) {
	gr := GuildReport{GuildID: snap.GuildID, Requested: snap.TrackCount()}

	if reason, err := c.checkResumable(ctx, snap); err != nil {
		return c.fail(ctx, gr, nil, err), nil
	} else if reason != "" {
		gr.Outcome = OutcomeSkipped
		gr.Reason = reason
		c.tombstone(ctx, snap.GuildID)

		return gr, nil
	}

	session, err := c.backend.CreateSession(ctx, types.SessionOptions{
		GuildID:        snap.GuildID,
		VoiceChannelID: snap.VoiceChannelID,
		TextChannelID:  snap.TextChannelID,
		Volume:         snap.Volume,
		SelfDeaf:       true,
	})
	if err != nil {
		return c.fail(ctx, gr, nil, fmt.Errorf("failed to create session: %w", err)), nil
	}
	if err := c.restoreSettings(ctx, session, snap); err != nil {
		return c.fail(ctx, gr, session, err), nil
	}

	if gr.Requested == 0 {
		return c.finishEmpty(ctx, gr, session, snap)
	}

	loaded, currentLoaded, err := c.resolveTracks(ctx, snap)
	if err != nil {
		return c.fail(ctx, gr, session, err), nil
	}
	gr.Loaded = len(loaded)

	if gr.Loaded == 0 {
		gr.Err = fmt.Errorf("%s: %w", snap.GuildID, types.ErrTotalResumeFailure)

		return c.finishEmpty(ctx, gr, session, snap)
	}

	session.Enqueue(loaded...)
	if err := session.Play(ctx); err != nil {
		return c.fail(ctx, gr, session, fmt.Errorf("failed to start playback: %w", err)), nil
	}

	if currentLoaded && snap.PositionMs > 0 {
		if err := c.sleep(ctx, c.cfg.SettleDelay); err != nil {
			return c.fail(ctx, gr, session, err), nil
		}
		if err := session.Seek(ctx, snap.PositionMs); err != nil {
			return c.fail(ctx, gr, session, fmt.Errorf("failed to seek: %w", err)), nil
		}
	}
	if snap.Paused {
		if err := session.SetPaused(ctx, true); err != nil {
			return c.fail(ctx, gr, session, fmt.Errorf("failed to pause: %w", err)), nil
		}
	}

	if gr.Loaded < gr.Requested {
		gr.Err = fmt.Errorf("%s: %d of %d tracks: %w", snap.GuildID, gr.Loaded, gr.Requested, types.ErrPartialResumeFailure)
	}
	gr.Outcome = OutcomeResumed

	return gr, session
}

// checkResumable returns a non-empty reason when the guild cannot be resumed.
func (c *Controller) checkResumable(ctx context.Context, snap types.SessionSnapshot) (string, error) {
	if c.owners != nil {
		if err := c.owners.CheckOwner(ctx, snap.GuildID, c.cfg.WorkerID); err != nil {
			if errors.Is(err, types.ErrOwnershipConflict) {
				return "guild reassigned", nil
			}

			return "", fmt.Errorf("failed to check ownership: %w", err)
		}
	}

	ok, err := c.gateway.GuildExists(ctx, snap.GuildID)
	if err != nil {
		return "", fmt.Errorf("failed to look up guild: %w", err)
	}
	if !ok {
		return "guild not found", nil
	}

	for _, ch := range []string{snap.VoiceChannelID, snap.TextChannelID} {
		ok, err := c.gateway.ChannelExists(ctx, snap.GuildID, ch)
		if err != nil {
			return "", fmt.Errorf("failed to look up channel %s: %w", ch, err)
		}
		if !ok {
			return "channel not found", nil
		}
	}

	return "", nil
}

func (c *Controller) restoreSettings(ctx context.Context, session types.Session, snap types.SessionSnapshot) error {
	if err := session.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if err := session.SetVolume(ctx, snap.Volume); err != nil {
		return fmt.Errorf("failed to set volume: %w", err)
	}
	if snap.LoopMode.Valid() && snap.LoopMode != types.LoopOff {
		session.SetLoopMode(snap.LoopMode)
	}
	session.SetPersistent(snap.Persistent)
	session.SetAutoPlay(snap.AutoPlay)

	return nil
}

// finishEmpty ends a guild that has no playable tracks.
//
// A persistent guild keeps its session, which is returned for adoption.
func (c *Controller) finishEmpty(ctx context.Context, gr GuildReport, session types.Session, snap types.SessionSnapshot) (GuildReport, types.Session) {
	if snap.Persistent {
		gr.Outcome = OutcomeKeptAlive
		gr.Reason = "persistent session kept without tracks"

		return gr, session
	}

	gr.Outcome = OutcomeAbandoned
	gr.Reason = "no tracks could be loaded"
	if gr.Requested == 0 {
		gr.Reason = "snapshot has no tracks"
	}
	c.teardown(ctx, session, snap.GuildID)

	return gr, nil
}

type resolveJob struct {
	info      types.TrackInfo
	isCurrent bool
}

// resolveTracks re-resolves the snapshot's tracks, current first, preserving order.
//
// Returns the resolved tracks, whether the current track was among them, and
// ctx.Err() if the run was cancelled between batches.
func (c *Controller) resolveTracks(ctx context.Context, snap types.SessionSnapshot) ([]types.Track, bool, error) {
	jobs := make([]resolveJob, 0, snap.TrackCount())
	if snap.CurrentTrack != nil {
		jobs = append(jobs, resolveJob{info: *snap.CurrentTrack, isCurrent: true})
	}
	for _, t := range snap.Queue {
		jobs = append(jobs, resolveJob{info: t})
	}

	results := make([]*types.Track, len(jobs))
	for start := 0; start < len(jobs); start += c.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		end := min(start+c.cfg.BatchSize, len(jobs))
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = c.resolveOne(ctx, snap.GuildID, jobs[i].info)
				return nil
			})
		}
		_ = g.Wait()
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	loaded := make([]types.Track, 0, len(jobs))
	currentLoaded := false
	for i, r := range results {
		if r == nil {
			continue
		}
		if jobs[i].isCurrent {
			currentLoaded = true
		}
		loaded = append(loaded, *r)
	}

	return loaded, currentLoaded, nil
}

// resolveOne searches for a stored track and returns the first hit, or nil.
func (c *Controller) resolveOne(ctx context.Context, guildID string, info types.TrackInfo) *types.Track {
	query := info.SearchQuery()
	if query == "" {
		c.metrics.RecordTrackResolve(false)
		return nil
	}

	res, err := c.backend.Search(ctx, query, info.Requester)
	if err != nil || len(res.Tracks) == 0 {
		c.metrics.RecordTrackResolve(false)
		c.logger.Debug("track not resolved", "guild_id", guildID, "query", query, "error", err)

		return nil
	}
	c.metrics.RecordTrackResolve(true)

	track := res.Tracks[0]
	if track.Info.Requester == "" {
		track.Info.Requester = info.Requester
	}

	return &track
}

// fail tears down a partially recreated guild and reports the error.
func (c *Controller) fail(ctx context.Context, gr GuildReport, session types.Session, err error) GuildReport {
	gr.Err = err
	gr.Outcome = OutcomeFailed
	if ctx.Err() != nil {
		gr.Outcome = OutcomeCancelled
		if session == nil {
			// Not recreated yet: leave the snapshot for the next start.
			return gr
		}
	}
	c.teardown(ctx, session, gr.GuildID)

	return gr
}

// teardown destroys session (if any) and tombstones the snapshot, even after cancellation.
func (c *Controller) teardown(ctx context.Context, session types.Session, guildID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if session != nil {
		if err := session.Destroy(cctx); err != nil {
			c.logger.Warn("failed to destroy session", "guild_id", guildID, "error", err)
		}
	}
	c.tombstone(cctx, guildID)
}

func (c *Controller) tombstone(ctx context.Context, guildID string) {
	if err := c.snapshots.MarkDestroyed(ctx, guildID, c.cfg.WorkerID); err != nil {
		c.logger.Warn("failed to tombstone snapshot", "guild_id", guildID, "error", err)
	}
}

func (c *Controller) logOutcome(gr GuildReport) {
	kv := []any{
		"guild_id", gr.GuildID,
		"outcome", gr.Outcome,
		"loaded", gr.Loaded,
		"requested", gr.Requested,
	}
	if gr.Reason != "" {
		kv = append(kv, "reason", gr.Reason)
	}

	switch {
	case gr.Outcome == OutcomeFailed:
		c.logger.Error("failed to resume guild", append(kv, "error", gr.Err)...)
	case errors.Is(gr.Err, types.ErrTotalResumeFailure):
		c.logger.Warn("no tracks could be resumed", append(kv, "error", gr.Err)...)
	case errors.Is(gr.Err, types.ErrPartialResumeFailure):
		c.logger.Warn("guild resumed with missing tracks", append(kv, "error", gr.Err)...)
	case gr.Outcome == OutcomeResumed:
		c.logger.Info("guild resumed", kv...)
	default:
		c.logger.Info("guild not resumed", kv...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
