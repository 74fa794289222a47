package balancer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/chorus/internal/directory"
	"github.com/arloliu/chorus/internal/heartbeat"
	"github.com/arloliu/chorus/strategy"
	chorustest "github.com/arloliu/chorus/testing"
	"github.com/arloliu/chorus/types"
)

type fixture struct {
	now      time.Time
	hbStore  *chorustest.MemoryStore
	registry *heartbeat.Registry
	dir      *directory.Directory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		now:     time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		hbStore: chorustest.NewMemoryStore(),
	}
	clock := func() time.Time { return f.now }
	f.registry = heartbeat.NewRegistry(f.hbStore, heartbeat.WithClock(clock))
	f.dir = directory.New(chorustest.NewMemoryStore(), directory.WithClock(clock))

	return f
}

func (f *fixture) beat(t *testing.T, workerID string, sessions int, backend bool) {
	t.Helper()

	status := types.StatusAvailable
	clientID := "client-" + workerID
	_, err := f.registry.Upsert(t.Context(), workerID, types.HeartbeatFields{
		ClientID:         &clientID,
		Status:           &status,
		SessionCount:     &sessions,
		BackendConnected: &backend,
	})
	require.NoError(t, err)
}

func (f *fixture) balancer(opts ...Option) *Balancer {
	return New(f.registry, f.dir, strategy.NewPriority(0), opts...)
}

func TestBalancer_SelectWorker(t *testing.T) {
	t.Run("follows preference order", func(t *testing.T) {
		f := newFixture(t)
		f.beat(t, "worker-a", 0, true)
		f.beat(t, "worker-b", 0, true)

		got, err := f.balancer(WithPreference([]string{"worker-b", "worker-a"})).SelectWorker(t.Context(), "guild-1")
		require.NoError(t, err)
		require.Equal(t, "worker-b", got)
	})

	t.Run("unknown workers follow known ones sorted by id", func(t *testing.T) {
		f := newFixture(t)
		f.beat(t, "worker-z", 0, true)
		f.beat(t, "worker-c", 0, true)
		f.beat(t, "worker-a", 0, true)

		b := f.balancer(WithPreference([]string{"worker-z"}))
		ordered := b.order([]types.HeartbeatRecord{{WorkerID: "worker-c"}, {WorkerID: "worker-a"}, {WorkerID: "worker-z"}})
		require.Equal(t, "worker-z", ordered[0].WorkerID)
		require.Equal(t, "worker-a", ordered[1].WorkerID)
		require.Equal(t, "worker-c", ordered[2].WorkerID)
	})

	t.Run("skips stale workers", func(t *testing.T) {
		f := newFixture(t)
		f.beat(t, "worker-a", 0, true)
		f.now = f.now.Add(types.LivenessWindow)
		f.beat(t, "worker-b", 0, true)

		got, err := f.balancer(WithPreference([]string{"worker-a", "worker-b"})).SelectWorker(t.Context(), "guild-1")
		require.NoError(t, err)
		require.Equal(t, "worker-b", got)
	})

	t.Run("no live workers", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.balancer().SelectWorker(t.Context(), "guild-1")
		require.ErrorIs(t, err, types.ErrNoWorkersAvailable)
	})
}

func TestBalancer_Resolve(t *testing.T) {
	t.Run("creates an auto assignment", func(t *testing.T) {
		f := newFixture(t)
		f.beat(t, "worker-a", 0, true)

		rec, err := f.balancer().Resolve(t.Context(), "guild-1", nil)
		require.NoError(t, err)
		require.Equal(t, "worker-a", rec.OwnerWorkerID)
		require.Equal(t, "client-worker-a", rec.ClientID)
		require.Equal(t, types.ReasonAuto, rec.AssignmentReason)
	})

	t.Run("keeps a live owner", func(t *testing.T) {
		ctx := t.Context()
		f := newFixture(t)
		f.beat(t, "worker-a", 0, true)
		f.beat(t, "worker-b", 0, true)
		_, err := f.dir.Reassign(ctx, "guild-1", "worker-b", "")
		require.NoError(t, err)

		rec, err := f.balancer(WithPreference([]string{"worker-a"})).Resolve(ctx, "guild-1", nil)
		require.NoError(t, err)
		require.Equal(t, "worker-b", rec.OwnerWorkerID)
		require.Equal(t, types.ReasonManual, rec.AssignmentReason)
	})

	t.Run("moves a guild away from a dead owner", func(t *testing.T) {
		ctx := t.Context()
		f := newFixture(t)
		f.beat(t, "worker-dead", 0, true)
		_, _, err := f.dir.GetOrCreate(ctx, "guild-1", "worker-dead", "", types.ReasonAuto)
		require.NoError(t, err)

		f.now = f.now.Add(2 * types.LivenessWindow)
		f.beat(t, "worker-b", 0, true)

		rec, err := f.balancer().Resolve(ctx, "guild-1", func(id string) string { return "cid-" + id })
		require.NoError(t, err)
		require.Equal(t, "worker-b", rec.OwnerWorkerID)
		require.Equal(t, "cid-worker-b", rec.ClientID)
		require.Equal(t, types.ReasonAuto, rec.AssignmentReason)
	})

	t.Run("no live workers", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.balancer().Resolve(t.Context(), "guild-1", nil)
		require.ErrorIs(t, err, types.ErrNoWorkersAvailable)
	})
}

func TestBalancer_ForceAssign(t *testing.T) {
	t.Run("reassigns to a live target", func(t *testing.T) {
		ctx := t.Context()
		f := newFixture(t)
		f.beat(t, "worker-a", 0, true)
		f.beat(t, "worker-b", 0, true)
		_, _, err := f.dir.GetOrCreate(ctx, "guild-1", "worker-a", "", types.ReasonAuto)
		require.NoError(t, err)

		res := f.balancer().ForceAssign(ctx, "guild-1", "worker-b")
		require.True(t, res.Success, res.Message)
		require.Empty(t, res.Warning)

		rec, err := f.dir.Get(ctx, "guild-1")
		require.NoError(t, err)
		require.Equal(t, "worker-b", rec.OwnerWorkerID)
		require.Equal(t, "client-worker-b", rec.ClientID)
		require.Equal(t, types.ReasonManual, rec.AssignmentReason)

		again := f.balancer().ForceAssign(ctx, "guild-1", "worker-b")
		require.True(t, again.Success)
		rec2, err := f.dir.Get(ctx, "guild-1")
		require.NoError(t, err)
		require.Equal(t, rec, rec2)
	})

	t.Run("current owner keeps its live session active", func(t *testing.T) {
		ctx := t.Context()
		f := newFixture(t)
		f.beat(t, "worker-a", 1, true)
		_, _, err := f.dir.GetOrCreate(ctx, "guild-1", "worker-a", "client-worker-a", types.ReasonAuto)
		require.NoError(t, err)
		require.True(t, f.dir.Activate(ctx, "guild-1", "voice-1", "text-1").Success)
		before, err := f.dir.Get(ctx, "guild-1")
		require.NoError(t, err)

		f.now = f.now.Add(time.Second)
		f.beat(t, "worker-a", 1, true)

		res := f.balancer().ForceAssign(ctx, "guild-1", "worker-a")
		require.True(t, res.Success, res.Message)

		after, err := f.dir.Get(ctx, "guild-1")
		require.NoError(t, err)
		require.Equal(t, before, after)
		require.True(t, after.IsActive)
	})

	t.Run("rejects an offline target without changing state", func(t *testing.T) {
		ctx := t.Context()
		f := newFixture(t)
		f.beat(t, "worker-a", 0, true)
		_, _, err := f.dir.GetOrCreate(ctx, "guild-1", "worker-a", "", types.ReasonAuto)
		require.NoError(t, err)

		offline := types.StatusOffline
		_, err = f.registry.Upsert(ctx, "worker-b", types.HeartbeatFields{Status: &offline})
		require.NoError(t, err)

		res := f.balancer().ForceAssign(ctx, "guild-1", "worker-b")
		require.False(t, res.Success)
		require.Equal(t, "target offline", res.Message)
		require.ErrorIs(t, res.Err, types.ErrTargetUnavailable)

		rec, err := f.dir.Get(ctx, "guild-1")
		require.NoError(t, err)
		require.Equal(t, "worker-a", rec.OwnerWorkerID)
	})

	t.Run("rejects a target without heartbeat", func(t *testing.T) {
		f := newFixture(t)

		res := f.balancer().ForceAssign(t.Context(), "guild-1", "worker-ghost")
		require.False(t, res.Success)
		require.ErrorIs(t, res.Err, types.ErrTargetUnavailable)
	})

	t.Run("rejects when the heartbeat cannot be read", func(t *testing.T) {
		f := newFixture(t)
		f.beat(t, "worker-b", 0, true)
		f.hbStore.FailNext(1, errors.New("connection refused"))

		res := f.balancer().ForceAssign(t.Context(), "guild-1", "worker-b")
		require.False(t, res.Success)
		require.ErrorIs(t, res.Err, types.ErrTargetUnavailable)

		_, err := f.dir.Get(t.Context(), "guild-1")
		require.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("warns when the target backend is down", func(t *testing.T) {
		f := newFixture(t)
		f.beat(t, "worker-b", 0, false)

		res := f.balancer().ForceAssign(t.Context(), "guild-1", "worker-b")
		require.True(t, res.Success)
		require.NotEmpty(t, res.Warning)

		rec, err := f.dir.Get(t.Context(), "guild-1")
		require.NoError(t, err)
		require.Equal(t, "worker-b", rec.OwnerWorkerID)
	})
}
