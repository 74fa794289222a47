package player

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/chorus/internal/directory"
	"github.com/arloliu/chorus/internal/snapshot"
	chorustest "github.com/arloliu/chorus/testing"
	"github.com/arloliu/chorus/types"
)

type fixture struct {
	backend   *chorustest.FakeBackend
	dir       *directory.Directory
	snapshots *snapshot.Store
	mgr       *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		backend:   chorustest.NewFakeBackend(),
		dir:       directory.New(chorustest.NewMemoryStore()),
		snapshots: snapshot.New(chorustest.NewMemoryStore()),
	}
	f.mgr = New(Config{WorkerID: "bot-1", ClientID: "client-1"}, f.backend, f.dir, f.snapshots, opts...)

	return f
}

func (f *fixture) play(t *testing.T, guildID, query string) types.Result {
	t.Helper()

	return f.mgr.Play(t.Context(), PlayRequest{
		GuildID:        guildID,
		VoiceChannelID: "voice-1",
		TextChannelID:  "text-1",
		Query:          query,
		Requester:      "user-1",
	})
}

func (f *fixture) snapshot(t *testing.T, guildID string) types.SessionSnapshot {
	t.Helper()

	snap, err := f.snapshots.Get(t.Context(), guildID)
	require.NoError(t, err)

	return snap
}

func TestManager_Play(t *testing.T) {
	t.Run("first play claims the guild and starts playback", func(t *testing.T) {
		ctx := t.Context()
		f := newFixture(t)
		f.backend.AddTrackInfo(types.TrackInfo{Title: "Song A", URI: "song-a"})

		res := f.play(t, "guild-1", "song-a")
		require.True(t, res.Success, res.Message)
		require.Equal(t, "now playing Song A", res.Message)

		rec, err := f.dir.Get(ctx, "guild-1")
		require.NoError(t, err)
		require.Equal(t, "bot-1", rec.OwnerWorkerID)
		require.Equal(t, "client-1", rec.ClientID)
		require.True(t, rec.IsActive)
		require.Equal(t, "voice-1", rec.VoiceChannelID)

		snap := f.snapshot(t, "guild-1")
		require.Equal(t, "bot-1", snap.OwnerWorkerID)
		require.Equal(t, types.DefaultVolume, snap.Volume)
		require.NotNil(t, snap.CurrentTrack)
		require.Equal(t, "Song A", snap.CurrentTrack.Title)
		require.Equal(t, "user-1", snap.CurrentTrack.Requester)

		require.Equal(t, 1, f.mgr.SessionCount())
		require.Equal(t, []string{"guild-1"}, f.mgr.Guilds())
	})

	t.Run("second play queues", func(t *testing.T) {
		f := newFixture(t)
		f.backend.AddTrackInfo(types.TrackInfo{Title: "Song A", URI: "song-a"})
		f.backend.AddTrackInfo(types.TrackInfo{Title: "Song B", URI: "song-b"})

		require.True(t, f.play(t, "guild-1", "song-a").Success)
		res := f.play(t, "guild-1", "song-b")
		require.True(t, res.Success)
		require.Equal(t, "queued Song B", res.Message)

		snap := f.snapshot(t, "guild-1")
		require.Len(t, snap.Queue, 1)
		require.Equal(t, "Song B", snap.Queue[0].Title)
	})

	t.Run("search results queue only the first hit", func(t *testing.T) {
		f := newFixture(t)
		f.backend.AddTracks("mix",
			types.Track{Encoded: "1", Info: types.TrackInfo{Title: "One"}},
			types.Track{Encoded: "2", Info: types.TrackInfo{Title: "Two"}},
			types.Track{Encoded: "3", Info: types.TrackInfo{Title: "Three"}},
		)

		require.True(t, f.play(t, "guild-1", "mix").Success)
		require.Equal(t, 1, f.snapshot(t, "guild-1").TrackCount())
	})

	t.Run("no results", func(t *testing.T) {
		f := newFixture(t)

		res := f.play(t, "guild-1", "nothing")
		require.False(t, res.Success)
		require.ErrorIs(t, res.Err, types.ErrNoResults)
		require.Zero(t, f.mgr.SessionCount())
	})

	t.Run("guild owned by another worker", func(t *testing.T) {
		ctx := t.Context()
		f := newFixture(t)
		f.backend.AddTrackInfo(types.TrackInfo{Title: "Song A", URI: "song-a"})
		_, err := f.dir.Reassign(ctx, "guild-1", "bot-2", "client-2")
		require.NoError(t, err)

		res := f.play(t, "guild-1", "song-a")
		require.False(t, res.Success)
		require.ErrorIs(t, res.Err, types.ErrOwnershipConflict)
		require.Nil(t, f.backend.Session("guild-1"))

		_, err = f.snapshots.Get(ctx, "guild-1")
		require.ErrorIs(t, err, types.ErrNotFound)
	})
}

func TestManager_Commands(t *testing.T) {
	setup := func(t *testing.T) *fixture {
		f := newFixture(t)
		f.backend.AddTrackInfo(types.TrackInfo{Title: "Song A", URI: "song-a", DurationMs: 200_000})
		f.backend.AddTrackInfo(types.TrackInfo{Title: "Song B", URI: "song-b"})
		require.True(t, f.play(t, "guild-1", "song-a").Success)
		require.True(t, f.play(t, "guild-1", "song-b").Success)

		return f
	}

	t.Run("pause and resume", func(t *testing.T) {
		ctx := t.Context()
		f := setup(t)

		require.True(t, f.mgr.Pause(ctx, "guild-1").Success)
		require.True(t, f.snapshot(t, "guild-1").Paused)

		again := f.mgr.Pause(ctx, "guild-1")
		require.False(t, again.Success)
		require.NoError(t, again.Err)
		require.Equal(t, "already paused", again.Message)

		require.True(t, f.mgr.Resume(ctx, "guild-1").Success)
		require.False(t, f.snapshot(t, "guild-1").Paused)
	})

	t.Run("volume", func(t *testing.T) {
		ctx := t.Context()
		f := setup(t)

		require.True(t, f.mgr.SetVolume(ctx, "guild-1", 120).Success)
		require.Equal(t, 120, f.snapshot(t, "guild-1").Volume)

		res := f.mgr.SetVolume(ctx, "guild-1", 151)
		require.ErrorIs(t, res.Err, types.ErrInvalidVolume)
		require.Equal(t, 120, f.snapshot(t, "guild-1").Volume)
	})

	t.Run("loop", func(t *testing.T) {
		ctx := t.Context()
		f := setup(t)

		require.True(t, f.mgr.SetLoop(ctx, "guild-1", types.LoopTrack).Success)
		require.Equal(t, types.LoopTrack, f.snapshot(t, "guild-1").LoopMode)
		require.ErrorIs(t, f.mgr.SetLoop(ctx, "guild-1", "shuffle").Err, types.ErrInvalidLoopMode)
	})

	t.Run("skip and seek", func(t *testing.T) {
		ctx := t.Context()
		f := setup(t)

		require.True(t, f.mgr.Seek(ctx, "guild-1", 30_000).Success)
		require.Equal(t, int64(30_000), f.snapshot(t, "guild-1").PositionMs)
		require.False(t, f.mgr.Seek(ctx, "guild-1", 500_000).Success)

		require.True(t, f.mgr.Skip(ctx, "guild-1").Success)
		snap := f.snapshot(t, "guild-1")
		require.Equal(t, "Song B", snap.CurrentTrack.Title)
		require.Empty(t, snap.Queue)
	})

	t.Run("clear queue", func(t *testing.T) {
		ctx := t.Context()
		f := setup(t)

		res := f.mgr.ClearQueue(ctx, "guild-1")
		require.True(t, res.Success)
		require.Equal(t, "cleared 1 tracks", res.Message)
		require.Empty(t, f.snapshot(t, "guild-1").Queue)
		require.False(t, f.mgr.ClearQueue(ctx, "guild-1").Success)
	})

	t.Run("persistent and autoplay flags", func(t *testing.T) {
		ctx := t.Context()
		f := setup(t)

		require.True(t, f.mgr.SetPersistent(ctx, "guild-1", true).Success)
		require.True(t, f.mgr.SetAutoPlay(ctx, "guild-1", true).Success)

		snap := f.snapshot(t, "guild-1")
		require.True(t, snap.Persistent)
		require.True(t, snap.AutoPlay)
	})

	t.Run("stop", func(t *testing.T) {
		ctx := t.Context()
		f := setup(t)

		require.True(t, f.mgr.StopPlayback(ctx, "guild-1").Success)
		require.True(t, f.backend.Session("guild-1").Destroyed())
		require.True(t, f.snapshot(t, "guild-1").Destroyed)
		require.Zero(t, f.mgr.SessionCount())

		rec, err := f.dir.Get(ctx, "guild-1")
		require.NoError(t, err)
		require.False(t, rec.IsActive)
		require.Equal(t, "bot-1", rec.OwnerWorkerID)

		res := f.mgr.Pause(ctx, "guild-1")
		require.ErrorIs(t, res.Err, types.ErrNoSession)
	})
}

func TestManager_OwnershipLost(t *testing.T) {
	t.Run("before the command", func(t *testing.T) {
		ctx := t.Context()
		lost := make(chan string, 1)
		f := newFixture(t, WithHooks(&types.Hooks{
			OnOwnershipLost: func(_ context.Context, _ string, newOwner string) error {
				lost <- newOwner
				return nil
			},
		}))
		f.backend.AddTrackInfo(types.TrackInfo{Title: "Song A", URI: "song-a"})
		require.True(t, f.play(t, "guild-1", "song-a").Success)

		_, err := f.dir.Reassign(ctx, "guild-1", "bot-2", "client-2")
		require.NoError(t, err)

		res := f.mgr.SetVolume(ctx, "guild-1", 40)
		require.False(t, res.Success)
		require.ErrorIs(t, res.Err, types.ErrOwnershipConflict)
		require.Equal(t, types.DefaultVolume, f.backend.Session("guild-1").State().Volume, "command must not run")
		require.Equal(t, types.DefaultVolume, f.snapshot(t, "guild-1").Volume)

		select {
		case owner := <-lost:
			require.Equal(t, "bot-2", owner)
		case <-time.After(time.Second):
			t.Fatal("ownership lost hook not called")
		}
	})

	t.Run("during the command", func(t *testing.T) {
		ctx := t.Context()
		f := newFixture(t)

		inner, err := f.backend.CreateSession(ctx, types.SessionOptions{GuildID: "guild-1", Volume: 80})
		require.NoError(t, err)
		session := &stealingSession{Session: inner, steal: func() {
			_, rerr := f.dir.Reassign(context.Background(), "guild-1", "bot-2", "")
			require.NoError(t, rerr)
		}}
		require.True(t, f.mgr.Adopt(ctx, "guild-1", session, types.SessionSnapshot{VoiceChannelID: "v", TextChannelID: "t"}))
		require.NoError(t, f.snapshots.Save(ctx, "guild-1", inner.State().Snapshot("bot-1")))

		res := f.mgr.SetVolume(ctx, "guild-1", 40)
		require.ErrorIs(t, res.Err, types.ErrOwnershipConflict)
		require.Equal(t, 80, f.snapshot(t, "guild-1").Volume, "no snapshot after losing ownership")
	})
}

// stealingSession reassigns the guild while a volume change is in flight.
type stealingSession struct {
	types.Session
	steal func()
}

func (s *stealingSession) SetVolume(ctx context.Context, volume int) error {
	s.steal()
	return s.Session.SetVolume(ctx, volume)
}

func TestManager_Adopt(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)

	session, err := f.backend.CreateSession(ctx, types.SessionOptions{GuildID: "guild-1"})
	require.NoError(t, err)

	require.True(t, f.mgr.Adopt(ctx, "guild-1", session, types.SessionSnapshot{VoiceChannelID: "voice-9", TextChannelID: "text-9"}))

	rec, err := f.dir.Get(ctx, "guild-1")
	require.NoError(t, err)
	require.True(t, rec.IsActive)
	require.Equal(t, "voice-9", rec.VoiceChannelID)

	state, ok := f.mgr.State("guild-1")
	require.True(t, ok)
	require.Equal(t, "guild-1", state.GuildID)
}

func TestManager_Restore(t *testing.T) {
	snap := types.SessionSnapshot{GuildID: "guild-1", VoiceChannelID: "voice-9", TextChannelID: "text-9"}

	t.Run("rebuilt session is adopted", func(t *testing.T) {
		ctx := t.Context()
		f := newFixture(t)

		ok := f.mgr.Restore(ctx, snap, func() types.Session {
			session, err := f.backend.CreateSession(ctx, types.SessionOptions{GuildID: "guild-1"})
			require.NoError(t, err)

			return session
		})
		require.True(t, ok)
		require.Equal(t, 1, f.mgr.SessionCount())

		rec, err := f.dir.Get(ctx, "guild-1")
		require.NoError(t, err)
		require.True(t, rec.IsActive)
	})

	t.Run("nil session is not adopted", func(t *testing.T) {
		f := newFixture(t)

		require.True(t, f.mgr.Restore(t.Context(), snap, func() types.Session { return nil }))
		require.Equal(t, 0, f.mgr.SessionCount())
	})

	t.Run("live session wins over resume", func(t *testing.T) {
		f := newFixture(t)
		f.backend.AddTrackInfo(types.TrackInfo{Title: "Song A", URI: "song-a"})
		require.True(t, f.play(t, "guild-1", "song-a").Success)

		called := false
		ok := f.mgr.Restore(t.Context(), snap, func() types.Session {
			called = true
			return nil
		})
		require.False(t, ok)
		require.False(t, called)

		state, ok := f.mgr.State("guild-1")
		require.True(t, ok)
		require.Equal(t, "Song A", state.Current.Info.Title)
	})

	t.Run("play during resume lands on the resumed session", func(t *testing.T) {
		ctx := t.Context()
		f := newFixture(t)
		resumed := f.backend.AddTrackInfo(types.TrackInfo{Title: "Resumed", URI: "resumed"})
		f.backend.AddTrackInfo(types.TrackInfo{Title: "Song A", URI: "song-a"})

		entered := make(chan struct{})
		release := make(chan struct{})
		restored := make(chan bool, 1)
		go func() {
			restored <- f.mgr.Restore(ctx, snap, func() types.Session {
				close(entered)
				<-release
				session, err := f.backend.CreateSession(ctx, types.SessionOptions{GuildID: "guild-1"})
				if err != nil {
					return nil
				}
				session.Enqueue(resumed)
				_ = session.Play(ctx)

				return session
			})
		}()
		<-entered

		played := make(chan types.Result, 1)
		go func() { played <- f.play(t, "guild-1", "song-a") }()

		require.Never(t, func() bool { return len(played) > 0 }, 50*time.Millisecond, 5*time.Millisecond,
			"play must wait for the resume to finish")
		close(release)
		require.True(t, <-restored)

		res := <-played
		require.True(t, res.Success, res.Message)
		require.Equal(t, "queued Song A", res.Message)
		require.Equal(t, 1, f.mgr.SessionCount())

		session := f.backend.Session("guild-1")
		require.False(t, session.Destroyed())
		state := session.State()
		require.Equal(t, "Resumed", state.Current.Info.Title)
		require.Len(t, state.Queue, 1)
		require.Equal(t, "Song A", state.Queue[0].Info.Title)
	})
}

func TestManager_AdoptKeepsLiveSession(t *testing.T) {
	ctx := t.Context()
	f := newFixture(t)
	f.backend.AddTrackInfo(types.TrackInfo{Title: "Song A", URI: "song-a"})
	require.True(t, f.play(t, "guild-1", "song-a").Success)
	live := f.backend.Session("guild-1")

	other, err := chorustest.NewFakeBackend().CreateSession(ctx, types.SessionOptions{GuildID: "guild-1"})
	require.NoError(t, err)
	require.False(t, f.mgr.Adopt(ctx, "guild-1", other, types.SessionSnapshot{}))

	state, ok := f.mgr.State("guild-1")
	require.True(t, ok)
	require.Equal(t, live.State().Current.Info.Title, state.Current.Info.Title)
}

func TestManager_Events(t *testing.T) {
	start := func(t *testing.T, f *fixture) {
		require.NoError(t, f.mgr.Start(t.Context()))
		t.Cleanup(func() { _ = f.mgr.Stop() })
	}

	t.Run("track start saves snapshot", func(t *testing.T) {
		f := newFixture(t)
		f.backend.AddTrackInfo(types.TrackInfo{Title: "Song A", URI: "song-a"})
		f.backend.AddTrackInfo(types.TrackInfo{Title: "Song B", URI: "song-b"})
		require.True(t, f.play(t, "guild-1", "song-a").Success)
		require.True(t, f.play(t, "guild-1", "song-b").Success)
		start(t, f)

		session := f.backend.Session("guild-1")
		_, next := session.Advance()
		f.backend.Emit(types.BackendEvent{Type: types.EventTrackStart, GuildID: "guild-1", Track: next})

		require.Eventually(t, func() bool {
			snap, err := f.snapshots.Get(t.Context(), "guild-1")
			return err == nil && snap.CurrentTrack != nil && snap.CurrentTrack.Title == "Song B"
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("queue end drops non-persistent session", func(t *testing.T) {
		f := newFixture(t)
		f.backend.AddTrackInfo(types.TrackInfo{Title: "Song A", URI: "song-a"})
		require.True(t, f.play(t, "guild-1", "song-a").Success)
		start(t, f)

		ended, _ := f.backend.Session("guild-1").Advance()
		f.backend.Emit(types.BackendEvent{Type: types.EventQueueEnd, GuildID: "guild-1", Track: ended})

		require.Eventually(t, func() bool {
			return f.mgr.SessionCount() == 0
		}, time.Second, 10*time.Millisecond)
		require.True(t, f.backend.Session("guild-1").Destroyed())
		require.True(t, f.snapshot(t, "guild-1").Destroyed)
	})

	t.Run("queue end keeps persistent session", func(t *testing.T) {
		ctx := t.Context()
		f := newFixture(t)
		f.backend.AddTrackInfo(types.TrackInfo{Title: "Song A", URI: "song-a"})
		require.True(t, f.play(t, "guild-1", "song-a").Success)
		require.True(t, f.mgr.SetPersistent(ctx, "guild-1", true).Success)
		start(t, f)

		ended, _ := f.backend.Session("guild-1").Advance()
		f.backend.Emit(types.BackendEvent{Type: types.EventQueueEnd, GuildID: "guild-1", Track: ended})

		require.Eventually(t, func() bool {
			snap, err := f.snapshots.Get(ctx, "guild-1")
			return err == nil && snap.CurrentTrack == nil
		}, time.Second, 10*time.Millisecond)
		require.Equal(t, 1, f.mgr.SessionCount())
		require.False(t, f.snapshot(t, "guild-1").Destroyed)
	})

	t.Run("autoplay queues a related track", func(t *testing.T) {
		ctx := t.Context()
		f := newFixture(t)
		last := f.backend.AddTrackInfo(types.TrackInfo{Title: "Song A", Author: "Band", URI: "song-a"})
		f.backend.AddTracks("Band - Song A",
			last,
			types.Track{Encoded: "rel", Info: types.TrackInfo{Title: "Related", URI: "related"}},
		)
		require.True(t, f.play(t, "guild-1", "song-a").Success)
		require.True(t, f.mgr.SetAutoPlay(ctx, "guild-1", true).Success)
		start(t, f)

		ended, _ := f.backend.Session("guild-1").Advance()
		f.backend.Emit(types.BackendEvent{Type: types.EventQueueEnd, GuildID: "guild-1", Track: ended})

		require.Eventually(t, func() bool {
			snap, err := f.snapshots.Get(ctx, "guild-1")
			return err == nil && snap.CurrentTrack != nil && snap.CurrentTrack.Title == "Related"
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("no snapshot writes after ownership moved", func(t *testing.T) {
		ctx := t.Context()
		f := newFixture(t)
		f.backend.AddTrackInfo(types.TrackInfo{Title: "Song A", URI: "song-a"})
		f.backend.AddTrackInfo(types.TrackInfo{Title: "Song B", URI: "song-b"})
		require.True(t, f.play(t, "guild-1", "song-a").Success)
		require.True(t, f.play(t, "guild-1", "song-b").Success)
		_, err := f.dir.Reassign(ctx, "guild-1", "bot-2", "")
		require.NoError(t, err)
		start(t, f)

		_, next := f.backend.Session("guild-1").Advance()
		f.backend.Emit(types.BackendEvent{Type: types.EventTrackStart, GuildID: "guild-1", Track: next})

		require.Never(t, func() bool {
			snap, err := f.snapshots.Get(ctx, "guild-1")
			return err == nil && snap.CurrentTrack != nil && snap.CurrentTrack.Title == "Song B"
		}, 100*time.Millisecond, 10*time.Millisecond)
	})

	t.Run("queue end after reassignment drops the session locally", func(t *testing.T) {
		ctx := t.Context()
		f := newFixture(t)
		f.backend.AddTrackInfo(types.TrackInfo{Title: "Song A", URI: "song-a"})
		require.True(t, f.play(t, "guild-1", "song-a").Success)
		_, err := f.dir.Reassign(ctx, "guild-1", "bot-2", "client-2")
		require.NoError(t, err)
		start(t, f)

		ended, _ := f.backend.Session("guild-1").Advance()
		f.backend.Emit(types.BackendEvent{Type: types.EventQueueEnd, GuildID: "guild-1", Track: ended})

		require.Eventually(t, func() bool {
			return f.mgr.SessionCount() == 0
		}, time.Second, 10*time.Millisecond)
		require.True(t, f.backend.Session("guild-1").Destroyed())

		// The new owner's records are untouched.
		require.False(t, f.snapshot(t, "guild-1").Destroyed)
		rec, err := f.dir.Get(ctx, "guild-1")
		require.NoError(t, err)
		require.Equal(t, "bot-2", rec.OwnerWorkerID)
	})
}

func TestManager_Lifecycle(t *testing.T) {
	f := newFixture(t)

	require.ErrorIs(t, f.mgr.Stop(), ErrNotStarted)
	require.NoError(t, f.mgr.Start(t.Context()))
	require.ErrorIs(t, f.mgr.Start(t.Context()), ErrAlreadyStarted)
	require.NoError(t, f.mgr.Stop())
}
