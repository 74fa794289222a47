package command

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/chorus/internal/directory"
	"github.com/arloliu/chorus/internal/player"
	"github.com/arloliu/chorus/internal/snapshot"
	chorustest "github.com/arloliu/chorus/testing"
	"github.com/arloliu/chorus/types"
)

func TestListener(t *testing.T) {
	_, nc := chorustest.StartEmbeddedNATS(t)

	backend := chorustest.NewFakeBackend()
	backend.AddTrackInfo(types.TrackInfo{Title: "Song A", URI: "song-a", DurationMs: 120_000})
	dir := directory.New(chorustest.NewMemoryStore())
	mgr := player.New(player.Config{WorkerID: "bot-1", ClientID: "client-1"}, backend, dir, snapshot.New(chorustest.NewMemoryStore()))

	l, err := New(nc, "bot-1", mgr, WithTimeout(5*time.Second), WithLogger(chorustest.NewTestLogger(t)))
	require.NoError(t, err)
	require.NoError(t, l.Start(t.Context()))
	require.ErrorIs(t, l.Start(t.Context()), ErrAlreadyStarted)
	t.Cleanup(func() { _ = l.Stop() })

	send := func(t *testing.T, req Request) Response {
		t.Helper()
		resp, err := Send(t.Context(), nc, "bot-1", req)
		require.NoError(t, err)
		require.Equal(t, "bot-1", resp.WorkerID)

		return resp
	}

	t.Run("play", func(t *testing.T) {
		resp := send(t, Request{Command: Play, GuildID: "42", VoiceChannelID: "v", TextChannelID: "t", Query: "song-a", Requester: "u"})
		require.True(t, resp.Success, resp.Message)
		require.Equal(t, "now playing Song A", resp.Message)
		_, err := uuid.Parse(resp.ID)
		require.NoError(t, err, "missing ids are generated")
	})

	t.Run("request id is echoed", func(t *testing.T) {
		resp := send(t, Request{ID: "req-1", Command: Pause, GuildID: "42"})
		require.Equal(t, "req-1", resp.ID)
		require.True(t, resp.Success)
	})

	t.Run("now playing", func(t *testing.T) {
		resp := send(t, Request{Command: NowPlaying, GuildID: "42"})
		require.True(t, resp.Success)
		require.NotNil(t, resp.State)
		require.Equal(t, "Song A", resp.State.CurrentTrack.Title)
		require.True(t, resp.State.Paused)
	})

	t.Run("invalid argument", func(t *testing.T) {
		resp := send(t, Request{Command: Volume, GuildID: "42", Volume: 200})
		require.False(t, resp.Success)
		require.Equal(t, CodeInvalidArgument, resp.Code)

		resp = send(t, Request{Command: Loop, GuildID: "42", LoopMode: "sometimes"})
		require.Equal(t, CodeInvalidArgument, resp.Code)
	})

	t.Run("no session", func(t *testing.T) {
		resp := send(t, Request{Command: Skip, GuildID: "7"})
		require.Equal(t, CodeNoSession, resp.Code)
	})

	t.Run("unknown command", func(t *testing.T) {
		resp := send(t, Request{Command: "dance", GuildID: "42"})
		require.Equal(t, CodeUnknownCommand, resp.Code)
	})

	t.Run("missing guild", func(t *testing.T) {
		resp := send(t, Request{Command: Pause})
		require.Equal(t, CodeBadRequest, resp.Code)
	})

	t.Run("ownership conflict", func(t *testing.T) {
		_, err := dir.Reassign(t.Context(), "42", "bot-2", "client-2")
		require.NoError(t, err)

		resp := send(t, Request{Command: Resume, GuildID: "42"})
		require.False(t, resp.Success)
		require.Equal(t, CodeOwnershipConflict, resp.Code)
	})
}

func TestListener_MalformedRequest(t *testing.T) {
	_, nc := chorustest.StartEmbeddedNATS(t)

	l, err := New(nc, "bot-1", nil)
	require.NoError(t, err)
	require.NoError(t, l.Start(t.Context()))
	t.Cleanup(func() { _ = l.Stop() })

	msg, err := nc.Request(Subject("bot-1"), []byte("{not json"), 2*time.Second)
	require.NoError(t, err)
	require.Contains(t, string(msg.Data), CodeBadRequest)
}

func TestSend_NoListener(t *testing.T) {
	_, nc := chorustest.StartEmbeddedNATS(t)

	_, err := Send(t.Context(), nc, "ghost", Request{Command: Pause, GuildID: "1"})
	require.ErrorIs(t, err, types.ErrConnectivity)
}

func TestListener_Lifecycle(t *testing.T) {
	_, err := New(nil, "bot-1", nil)
	require.ErrorIs(t, err, types.ErrNATSConnectionRequired)

	_, nc := chorustest.StartEmbeddedNATS(t)
	l, err := New(nc, "bot-1", nil)
	require.NoError(t, err)
	require.ErrorIs(t, l.Stop(), ErrNotStarted)
}
