package election

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	chorustest "github.com/arloliu/chorus/testing"
)

// fakeAgent is an in-memory ElectionAgent shared by several workers.
type fakeAgent struct {
	holder *string
	self   string
}

func newAgents(ids ...string) []*fakeAgent {
	var holder string
	agents := make([]*fakeAgent, 0, len(ids))
	for _, id := range ids {
		agents = append(agents, &fakeAgent{holder: &holder, self: id})
	}

	return agents
}

var sharedMu sync.Mutex

func (a *fakeAgent) RequestLeadership(_ context.Context, workerID string, _ int64) (bool, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if *a.holder == "" || *a.holder == workerID {
		*a.holder = workerID
		return true, nil
	}

	return false, nil
}

func (a *fakeAgent) RenewLeadership(_ context.Context) error {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if *a.holder != a.self {
		return ErrLeadershipLost
	}

	return nil
}

func (a *fakeAgent) ReleaseLeadership(_ context.Context) error {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if *a.holder != a.self {
		return ErrNotLeader
	}
	*a.holder = ""

	return nil
}

func (a *fakeAgent) IsLeader(_ context.Context) (bool, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	return *a.holder == a.self, nil
}

func (a *fakeAgent) steal(workerID string) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	*a.holder = workerID
}

func TestDuty_Primary(t *testing.T) {
	ctx := t.Context()
	agents := newAgents("bot-1", "bot-2")

	var changes []bool
	var changeMu sync.Mutex
	var runs atomic.Int32

	d1 := NewDuty(agents[0], "bot-1", 3*time.Second,
		WithTask(20*time.Millisecond, func(context.Context) error {
			runs.Add(1)
			return nil
		}),
		WithOnChange(func(_ context.Context, isPrimary bool) {
			changeMu.Lock()
			changes = append(changes, isPrimary)
			changeMu.Unlock()
		}),
		WithLogger(chorustest.NewTestLogger(t)),
	)
	d2 := NewDuty(agents[1], "bot-2", 3*time.Second)

	require.NoError(t, d1.Start(ctx))
	require.NoError(t, d2.Start(ctx))

	require.True(t, d1.IsPrimary())
	require.False(t, d2.IsPrimary())
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	require.ErrorIs(t, d1.Start(ctx), ErrAlreadyStarted)

	require.NoError(t, d1.Stop(ctx))
	require.False(t, d1.IsPrimary())
	require.ErrorIs(t, d1.Stop(ctx), ErrNotStarted)

	changeMu.Lock()
	require.Equal(t, []bool{true, false}, changes)
	changeMu.Unlock()

	// bot-2 takes over on its next contention tick.
	require.Eventually(t, d2.IsPrimary, 3*time.Second, 20*time.Millisecond)
	require.NoError(t, d2.Stop(ctx))
}

func TestDuty_LosesRole(t *testing.T) {
	ctx := t.Context()
	agents := newAgents("bot-1")

	var runs atomic.Int32
	d := NewDuty(agents[0], "bot-1", 3*time.Second,
		WithTask(20*time.Millisecond, func(context.Context) error {
			runs.Add(1)
			return nil
		}),
	)
	require.NoError(t, d.Start(ctx))
	require.True(t, d.IsPrimary())

	agents[0].steal("bot-9")
	require.Eventually(t, func() bool { return !d.IsPrimary() }, 3*time.Second, 20*time.Millisecond)

	settled := runs.Load()
	time.Sleep(100 * time.Millisecond)
	require.LessOrEqual(t, runs.Load(), settled+1)

	require.NoError(t, d.Stop(ctx))
}

func TestDuty_InvalidTTL(t *testing.T) {
	d := NewDuty(newAgents("bot-1")[0], "bot-1", 0)
	require.ErrorIs(t, d.Start(t.Context()), ErrInvalidDuration)
}

func TestDuty_WithLease(t *testing.T) {
	_, nc := chorustest.StartEmbeddedNATS(t)
	kv := chorustest.CreateJetStreamKV(t, nc, "duty-lease")
	ctx := t.Context()

	lease := NewLease(kv, "primary")
	d := NewDuty(lease, "bot-1", 3*time.Second)
	require.NoError(t, d.Start(ctx))
	require.True(t, d.IsPrimary())

	holder, err := lease.Holder(ctx)
	require.NoError(t, err)
	require.Equal(t, "bot-1", holder)

	require.NoError(t, d.Stop(ctx))

	holder, err = lease.Holder(ctx)
	require.NoError(t, err)
	require.Empty(t, holder)
}
