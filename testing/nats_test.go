package testing

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
)

func TestStartEmbeddedNATS(t *testing.T) {
	ns, nc := StartEmbeddedNATS(t)
	require.True(t, nc.IsConnected())
	require.True(t, ns.JetStreamEnabled())

	t.Run("independent servers", func(t *testing.T) {
		_, other := StartEmbeddedNATS(t)
		require.NotEqual(t, nc.ConnectedUrl(), other.ConnectedUrl())
	})
}

func TestCreateJetStreamKV(t *testing.T) {
	ctx := t.Context()
	_, nc := StartEmbeddedNATS(t)

	heartbeats := CreateJetStreamKV(t, nc, "hb")
	assignments := CreateJetStreamKV(t, nc, "as")

	_, err := heartbeats.Put(ctx, "bot-1", []byte(`{"status":"Available"}`))
	require.NoError(t, err)

	_, err = assignments.Get(ctx, "bot-1")
	require.ErrorIs(t, err, jetstream.ErrKeyNotFound)

	entry, err := heartbeats.Get(ctx, "bot-1")
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"Available"}`, string(entry.Value()))
}

func TestCreateLeaseKV(t *testing.T) {
	ctx := t.Context()
	_, nc := StartEmbeddedNATS(t)

	kv := CreateLeaseKV(t, nc, "leases", time.Second)
	status, err := kv.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, time.Second, status.TTL())

	_, err = kv.Create(ctx, "bot-1", []byte("held"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := kv.Get(ctx, "bot-1")
		return err != nil
	}, 5*time.Second, 100*time.Millisecond)
}
