package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/chorus/internal/natsutil"
	chorustest "github.com/arloliu/chorus/testing"
	"github.com/arloliu/chorus/types"
)

func TestBridge_RoundTrip(t *testing.T) {
	_, nc := chorustest.StartEmbeddedNATS(t)

	gw := chorustest.NewFakeGateway()
	gw.AddGuild("42", "voice-1", "text-1")
	gw.AddGuild("43")

	srv, err := Serve(nc, "client-1", gw)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	b, err := New(nc, "bot-1", "client-1", WithTimeout(time.Second))
	require.NoError(t, err)
	ctx := t.Context()

	t.Run("lookups", func(t *testing.T) {
		ok, err := b.GuildExists(ctx, "42")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = b.GuildExists(ctx, "99")
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = b.ChannelExists(ctx, "42", "voice-1")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = b.ChannelExists(ctx, "42", "gone")
		require.NoError(t, err)
		require.False(t, ok)

		require.Positive(t, b.Latency())
	})

	t.Run("voice", func(t *testing.T) {
		vs, err := b.JoinVoice(ctx, "42", "voice-1", true)
		require.NoError(t, err)
		require.Equal(t, "voice-42", vs.SessionID)
		require.Equal(t, "voice-1", gw.VoiceChannel("42"))

		require.NoError(t, b.LeaveVoice(ctx, "42"))
		require.Empty(t, gw.VoiceChannel("42"))
	})

	t.Run("remote error", func(t *testing.T) {
		gw.Fail(errors.New("shard down"))
		t.Cleanup(func() { gw.Fail(nil) })

		_, err := b.GuildExists(ctx, "42")
		require.ErrorIs(t, err, ErrRemote)
		require.ErrorContains(t, err, "shard down")
	})

	t.Run("stats and voice updates", func(t *testing.T) {
		b, err := New(nc, "bot-1", "client-1", WithStatsInterval(20*time.Millisecond))
		require.NoError(t, err)

		updates := make(chan VoiceUpdate, 1)
		require.NoError(t, b.Start(ctx, func(_ context.Context, u VoiceUpdate) { updates <- u }))
		require.ErrorIs(t, b.Start(ctx, nil), ErrAlreadyStarted)

		require.Eventually(t, func() bool { return b.GuildCount() == 2 }, 2*time.Second, 10*time.Millisecond)

		require.NoError(t, PublishVoiceUpdate(nc, "bot-1", VoiceUpdate{GuildID: "42", Server: types.VoiceServer{Endpoint: "moved"}}))
		select {
		case u := <-updates:
			require.Equal(t, "42", u.GuildID)
			require.Equal(t, "moved", u.Server.Endpoint)
		case <-time.After(2 * time.Second):
			t.Fatal("voice update not delivered")
		}

		require.NoError(t, b.Stop())
		require.ErrorIs(t, b.Stop(), ErrNotStarted)
	})
}

func TestBridge_NoGateway(t *testing.T) {
	_, nc := chorustest.StartEmbeddedNATS(t)

	b, err := New(nc, "bot-1", "nobody", WithTimeout(time.Second))
	require.NoError(t, err)

	_, err = b.GuildExists(t.Context(), "42")
	require.ErrorIs(t, err, types.ErrConnectivity)
	require.True(t, natsutil.IsConnectivityError(err))
}

func TestNew_RequiresConnection(t *testing.T) {
	_, err := New(nil, "bot-1", "client-1")
	require.ErrorIs(t, err, types.ErrNATSConnectionRequired)

	_, err = Serve(nil, "client-1", chorustest.NewFakeGateway())
	require.ErrorIs(t, err, types.ErrNATSConnectionRequired)
}
