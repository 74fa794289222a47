package player

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/chorus/internal/directory"
	"github.com/arloliu/chorus/internal/hooks"
	"github.com/arloliu/chorus/internal/logging"
	"github.com/arloliu/chorus/internal/metrics"
	"github.com/arloliu/chorus/internal/snapshot"
	"github.com/arloliu/chorus/types"
)

// Common errors for manager lifecycle.
var (
	ErrNotStarted     = errors.New("session manager not started")
	ErrAlreadyStarted = errors.New("session manager already started")
)

const eventTimeout = 10 * time.Second

// Config holds the identity and defaults used for new sessions.
type Config struct {
	WorkerID      string
	ClientID      string
	DefaultVolume int
}

// PlayRequest asks for a query to be played in a guild.
type PlayRequest struct {
	GuildID        string `json:"guildId"`
	VoiceChannelID string `json:"voiceChannelId"`
	TextChannelID  string `json:"textChannelId"`
	Query          string `json:"query"`
	Requester      string `json:"requester"`
}

// Manager holds the live sessions of one worker.
type Manager struct {
	cfg       Config
	backend   types.AudioBackend
	directory *directory.Directory
	snapshots *snapshot.Store
	hooks     *types.Hooks
	metrics   types.MetricsCollector
	logger    types.Logger

	sessions *xsync.Map[string, types.Session]
	locks    *xsync.Map[string, *sync.Mutex]

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithHooks sets lifecycle hooks.
func WithHooks(h *types.Hooks) Option {
	return func(m *Manager) { m.hooks = hooks.Fill(h) }
}

// WithMetrics sets the metrics collector.
func WithMetrics(mc types.MetricsCollector) Option {
	return func(m *Manager) {
		if mc != nil {
			m.metrics = mc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a session manager.
//
// Parameters:
//   - cfg: Worker identity and session defaults
//   - backend: Audio backend sessions run on
//   - dir: Guild assignment directory used for ownership checks
//   - snapshots: Snapshot store written after every mutation
//   - opts: Optional configuration
//
// Returns:
//   - *Manager: New manager instance
func New(cfg Config, backend types.AudioBackend, dir *directory.Directory, snapshots *snapshot.Store, opts ...Option) *Manager {
	if cfg.DefaultVolume <= 0 {
		cfg.DefaultVolume = types.DefaultVolume
	}

	m := &Manager{
		cfg:       cfg,
		backend:   backend,
		directory: dir,
		snapshots: snapshots,
		hooks:     hooks.Fill(nil),
		metrics:   metrics.NewNop(),
		logger:    logging.NewNop(),
		sessions:  xsync.NewMap[string, types.Session](),
		locks:     xsync.NewMap[string, *sync.Mutex](),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start begins consuming backend events.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true

	go m.eventLoop(ctx)

	return nil
}

// Stop stops consuming backend events. Live sessions are left running so that
// the next start of this worker can resume them from their snapshots.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return ErrNotStarted
	}
	m.started = false
	close(m.stopCh)
	m.mu.Unlock()

	<-m.doneCh

	return nil
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int {
	return m.sessions.Size()
}

// Guilds returns the guild IDs with a live session, sorted.
func (m *Manager) Guilds() []string {
	guilds := make([]string, 0, m.sessions.Size())
	m.sessions.Range(func(guildID string, _ types.Session) bool {
		guilds = append(guilds, guildID)
		return true
	})
	slices.Sort(guilds)

	return guilds
}

// State returns the live state of a guild's session.
func (m *Manager) State(guildID string) (types.SessionState, bool) {
	s, ok := m.sessions.Load(guildID)
	if !ok {
		return types.SessionState{}, false
	}

	return s.State(), true
}

// Adopt registers a session rebuilt by resumption.
//
// The guild's assignment is re-activated with the snapshot's channels, since
// the primary's sweep may have deactivated it while this worker was down.
// Returns false, leaving session unregistered, when the guild already has a
// live session.
func (m *Manager) Adopt(ctx context.Context, guildID string, session types.Session, snap types.SessionSnapshot) bool {
	unlock := m.lock(guildID)
	defer unlock()

	if _, ok := m.sessions.Load(guildID); ok {
		return false
	}
	m.adoptLocked(ctx, guildID, session, snap)

	return true
}

// Restore rebuilds a guild's session under the guild's command lock and
// adopts the result.
//
// Commands for the guild wait until rebuild returns. When the guild already
// has a live session, rebuild is not called and Restore returns false. A nil
// session from rebuild is not adopted.
//
// Parameters:
//   - ctx: Context for the assignment update
//   - snap: Snapshot being resumed
//   - rebuild: Recreates the session; runs with the guild lock held
//
// Returns:
//   - bool: false if a live session pre-empted the rebuild
func (m *Manager) Restore(ctx context.Context, snap types.SessionSnapshot, rebuild func() types.Session) bool {
	unlock := m.lock(snap.GuildID)
	defer unlock()

	if _, ok := m.sessions.Load(snap.GuildID); ok {
		m.logger.Info("guild already has a live session, skipping resume", "guild_id", snap.GuildID)
		return false
	}
	if session := rebuild(); session != nil {
		m.adoptLocked(ctx, snap.GuildID, session, snap)
	}

	return true
}

func (m *Manager) adoptLocked(ctx context.Context, guildID string, session types.Session, snap types.SessionSnapshot) {
	m.sessions.Store(guildID, session)
	m.metrics.RecordSessions(m.sessions.Size())

	if _, _, err := m.directory.GetOrCreate(ctx, guildID, m.cfg.WorkerID, m.cfg.ClientID, types.ReasonAuto); err != nil {
		m.logger.Warn("failed to ensure assignment for resumed guild", "guild_id", guildID, "error", err)
		return
	}
	if res := m.directory.Activate(ctx, guildID, snap.VoiceChannelID, snap.TextChannelID); !res.Success {
		m.logger.Warn("failed to activate resumed guild", "guild_id", guildID, "error", res.Err)
	}
}

func (m *Manager) lock(guildID string) func() {
	mu, _ := m.locks.LoadOrStore(guildID, &sync.Mutex{})
	mu.Lock()

	return mu.Unlock
}

// checkOwner returns nil while this worker owns guildID.
func (m *Manager) checkOwner(ctx context.Context, guildID string) error {
	err := m.directory.CheckOwner(ctx, guildID, m.cfg.WorkerID)
	if err == nil {
		return nil
	}

	var ownErr *directory.OwnershipError
	if errors.As(err, &ownErr) {
		return m.conflict(ctx, guildID, ownErr.Owner)
	}

	return err
}

// conflict records that owner, not this worker, holds guildID.
func (m *Manager) conflict(ctx context.Context, guildID, owner string) error {
	m.metrics.RecordOwnershipConflict()
	m.logger.Warn("ownership lost", "guild_id", guildID, "owner", owner)
	go func() {
		if err := m.hooks.OnOwnershipLost(context.WithoutCancel(ctx), guildID, owner); err != nil {
			m.logger.Error("ownership lost hook error", "guild_id", guildID, "error", err)
		}
	}()

	return &directory.OwnershipError{GuildID: guildID, Owner: owner}
}

// ownershipResult maps a checkOwner error to a caller-facing result.
func ownershipResult(err error) types.Result {
	if errors.Is(err, types.ErrOwnershipConflict) {
		return types.Fail("this guild is now served by another worker", err)
	}

	return types.Fail("failed to verify guild ownership", err)
}

// save writes the session's snapshot. Caller holds the guild lock.
func (m *Manager) save(ctx context.Context, guildID string, session types.Session) {
	snap := session.State().Snapshot(m.cfg.WorkerID)
	// Failures are logged by the store; the session keeps running.
	_ = m.snapshots.Save(ctx, guildID, snap)
}

// mutate runs fn against the guild's session under the guild lock with the
// ownership guard, then saves the snapshot.
func (m *Manager) mutate(ctx context.Context, guildID string, fn func(types.Session) (string, error)) types.Result {
	unlock := m.lock(guildID)
	defer unlock()

	if err := m.checkOwner(ctx, guildID); err != nil {
		return ownershipResult(err)
	}

	session, ok := m.sessions.Load(guildID)
	if !ok {
		return types.Fail("nothing is playing in this guild", types.ErrNoSession)
	}

	msg, err := fn(session)
	if err != nil {
		var refusal *refusalError
		if errors.As(err, &refusal) {
			return types.Result{Success: false, Message: refusal.msg}
		}

		return types.Fail("audio backend rejected the command", err)
	}

	if err := m.checkOwner(ctx, guildID); err != nil {
		return ownershipResult(err)
	}
	m.save(ctx, guildID, session)

	return types.OK(msg)
}

// refusalError marks an expected no-op (e.g. pausing a paused session).
type refusalError struct{ msg string }

func (e *refusalError) Error() string { return e.msg }

func refuse(msg string) error { return &refusalError{msg: msg} }

// Play resolves req.Query and plays or queues the result.
//
// The first Play for a guild claims it for this worker (unless another
// worker already owns it), opens and connects a session, and activates
// the assignment.
//
// Returns:
//   - types.Result: Outcome; Err wraps types.ErrOwnershipConflict, types.ErrNoResults or a backend error
func (m *Manager) Play(ctx context.Context, req PlayRequest) types.Result {
	unlock := m.lock(req.GuildID)
	defer unlock()

	rec, _, err := m.directory.GetOrCreate(ctx, req.GuildID, m.cfg.WorkerID, m.cfg.ClientID, types.ReasonAuto)
	if err != nil {
		return types.Fail("failed to resolve guild assignment", err)
	}
	if rec.OwnerWorkerID != m.cfg.WorkerID {
		return ownershipResult(m.conflict(ctx, req.GuildID, rec.OwnerWorkerID))
	}

	res, err := m.backend.Search(ctx, req.Query, req.Requester)
	if err != nil {
		return types.Fail("search failed", err)
	}
	if len(res.Tracks) == 0 || res.LoadType == types.LoadEmpty || res.LoadType == types.LoadError {
		return types.Fail(fmt.Sprintf("no results for %q", req.Query), types.ErrNoResults)
	}

	session, created, err := m.ensureSession(ctx, req)
	if err != nil {
		return types.Fail("failed to join voice channel", err)
	}

	tracks := res.Tracks[:1]
	if res.LoadType == types.LoadPlaylist {
		tracks = res.Tracks
	}
	wasIdle := session.State().Current == nil
	session.Enqueue(tracks...)
	if wasIdle {
		if err := session.Play(ctx); err != nil {
			if created {
				m.dropSession(ctx, req.GuildID, session)
			}

			return types.Fail("failed to start playback", err)
		}
	}

	if err := m.checkOwner(ctx, req.GuildID); err != nil {
		return ownershipResult(err)
	}
	m.save(ctx, req.GuildID, session)

	return types.OK(playMessage(res, tracks, wasIdle))
}

func playMessage(res types.SearchResult, tracks []types.Track, started bool) string {
	switch {
	case res.LoadType == types.LoadPlaylist:
		return fmt.Sprintf("queued %d tracks from %s", len(tracks), res.PlaylistName)
	case started:
		return "now playing " + tracks[0].Info.Title
	default:
		return "queued " + tracks[0].Info.Title
	}
}

// ensureSession returns the guild's session, creating and connecting one if needed.
// Caller holds the guild lock.
func (m *Manager) ensureSession(ctx context.Context, req PlayRequest) (types.Session, bool, error) {
	if s, ok := m.sessions.Load(req.GuildID); ok {
		return s, false, nil
	}

	session, err := m.backend.CreateSession(ctx, types.SessionOptions{
		GuildID:        req.GuildID,
		VoiceChannelID: req.VoiceChannelID,
		TextChannelID:  req.TextChannelID,
		Volume:         m.cfg.DefaultVolume,
		SelfDeaf:       true,
	})
	if err != nil {
		return nil, false, err
	}
	if err := session.Connect(ctx); err != nil {
		_ = session.Destroy(context.WithoutCancel(ctx))
		return nil, false, err
	}

	m.sessions.Store(req.GuildID, session)
	m.metrics.RecordSessions(m.sessions.Size())

	if res := m.directory.Activate(ctx, req.GuildID, req.VoiceChannelID, req.TextChannelID); !res.Success {
		m.logger.Warn("failed to activate assignment", "guild_id", req.GuildID, "error", res.Err)
	}

	return session, true, nil
}

// dropSession destroys a session, tombstones its snapshot and deactivates the
// assignment. Caller holds the guild lock.
func (m *Manager) dropSession(ctx context.Context, guildID string, session types.Session) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()

	if err := session.Destroy(cctx); err != nil {
		m.logger.Warn("failed to destroy session", "guild_id", guildID, "error", err)
	}
	m.sessions.Delete(guildID)
	m.metrics.RecordSessions(m.sessions.Size())

	if err := m.checkOwner(cctx, guildID); err != nil {
		return
	}
	_ = m.snapshots.MarkDestroyed(cctx, guildID, m.cfg.WorkerID)
	if err := m.directory.Deactivate(cctx, guildID); err != nil && !errors.Is(err, types.ErrNotFound) {
		m.logger.Warn("failed to deactivate assignment", "guild_id", guildID, "error", err)
	}
}

// Pause pauses playback.
func (m *Manager) Pause(ctx context.Context, guildID string) types.Result {
	return m.mutate(ctx, guildID, func(s types.Session) (string, error) {
		if s.State().Paused {
			return "", refuse("already paused")
		}

		return "paused", s.SetPaused(ctx, true)
	})
}

// Resume resumes paused playback.
func (m *Manager) Resume(ctx context.Context, guildID string) types.Result {
	return m.mutate(ctx, guildID, func(s types.Session) (string, error) {
		if !s.State().Paused {
			return "", refuse("not paused")
		}

		return "resumed", s.SetPaused(ctx, false)
	})
}

// SetVolume sets the volume (0-150).
func (m *Manager) SetVolume(ctx context.Context, guildID string, volume int) types.Result {
	if volume < types.MinVolume || volume > types.MaxVolume {
		return types.Fail("invalid volume", types.ErrInvalidVolume)
	}

	return m.mutate(ctx, guildID, func(s types.Session) (string, error) {
		return fmt.Sprintf("volume set to %d", volume), s.SetVolume(ctx, volume)
	})
}

// SetLoop sets the loop mode.
func (m *Manager) SetLoop(ctx context.Context, guildID string, mode types.LoopMode) types.Result {
	if !mode.Valid() {
		return types.Fail("invalid loop mode", fmt.Errorf("%w: %q", types.ErrInvalidLoopMode, mode))
	}

	return m.mutate(ctx, guildID, func(s types.Session) (string, error) {
		s.SetLoopMode(mode)
		return "loop mode set to " + string(mode), nil
	})
}

// Skip skips the current track.
func (m *Manager) Skip(ctx context.Context, guildID string) types.Result {
	return m.mutate(ctx, guildID, func(s types.Session) (string, error) {
		if s.State().Current == nil {
			return "", refuse("nothing to skip")
		}

		return "skipped", s.Skip(ctx)
	})
}

// Seek moves the current track to positionMs.
func (m *Manager) Seek(ctx context.Context, guildID string, positionMs int64) types.Result {
	return m.mutate(ctx, guildID, func(s types.Session) (string, error) {
		cur := s.State().Current
		if cur == nil {
			return "", refuse("nothing is playing")
		}
		if positionMs < 0 || (cur.Info.DurationMs > 0 && positionMs > cur.Info.DurationMs) {
			return "", refuse("position is outside the track")
		}

		return fmt.Sprintf("seeked to %s", time.Duration(positionMs)*time.Millisecond), s.Seek(ctx, positionMs)
	})
}

// ClearQueue drops every queued track.
func (m *Manager) ClearQueue(ctx context.Context, guildID string) types.Result {
	return m.mutate(ctx, guildID, func(s types.Session) (string, error) {
		n := s.ClearQueue()
		if n == 0 {
			return "", refuse("queue is already empty")
		}

		return fmt.Sprintf("cleared %d tracks", n), nil
	})
}

// SetPersistent toggles 24/7 mode.
func (m *Manager) SetPersistent(ctx context.Context, guildID string, persistent bool) types.Result {
	return m.mutate(ctx, guildID, func(s types.Session) (string, error) {
		s.SetPersistent(persistent)
		if persistent {
			return "24/7 mode enabled", nil
		}

		return "24/7 mode disabled", nil
	})
}

// SetAutoPlay toggles autoplay.
func (m *Manager) SetAutoPlay(ctx context.Context, guildID string, autoPlay bool) types.Result {
	return m.mutate(ctx, guildID, func(s types.Session) (string, error) {
		s.SetAutoPlay(autoPlay)
		if autoPlay {
			return "autoplay enabled", nil
		}

		return "autoplay disabled", nil
	})
}

// StopPlayback destroys the guild's session, tombstones its snapshot and
// deactivates its assignment.
func (m *Manager) StopPlayback(ctx context.Context, guildID string) types.Result {
	unlock := m.lock(guildID)
	defer unlock()

	if err := m.checkOwner(ctx, guildID); err != nil {
		return ownershipResult(err)
	}

	session, ok := m.sessions.Load(guildID)
	if !ok {
		return types.Fail("nothing is playing in this guild", types.ErrNoSession)
	}
	m.dropSession(ctx, guildID, session)

	return types.OK("stopped and left the voice channel")
}
