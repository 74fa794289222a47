package hash

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRing(t *testing.T) {
	t.Run("places virtual nodes per unique worker", func(t *testing.T) {
		workers := []string{"worker-0", "worker-1", "worker-2", "worker-1"}
		ring := NewRing(workers, 100, 0)

		require.Equal(t, 300, ring.Size())
		require.Equal(t, []string{"worker-0", "worker-1", "worker-2"}, ring.Workers())
	})

	t.Run("empty ring maps nothing", func(t *testing.T) {
		ring := NewRing(nil, 100, 0)

		require.Empty(t, ring.GetNode("guild-1"))
		require.Empty(t, ring.Successors("guild-1"))
	})
}

func TestRing_GetNode(t *testing.T) {
	t.Run("maps guilds consistently", func(t *testing.T) {
		workers := []string{"worker-0", "worker-1"}
		ring := NewRing(workers, 150, 0)

		for _, guild := range []string{"123456789012345678", "guild-a", "xyz"} {
			first := ring.GetNode(guild)
			require.Equal(t, first, ring.GetNode(guild))
			require.Contains(t, workers, first)
		}
	})

	t.Run("spreads guilds across workers", func(t *testing.T) {
		workers := []string{"worker-0", "worker-1", "worker-2"}
		ring := NewRing(workers, 150, 0)

		counts := make(map[string]int)
		for i := range 1000 {
			counts[ring.GetNode(fmt.Sprintf("guild-%d", i))]++
		}

		expected := 1000 / len(workers)
		tolerance := expected * 20 / 100
		for _, w := range workers {
			require.InDelta(t, expected, counts[w], float64(tolerance), "worker %s", w)
		}
	})
}

func TestRing_Successors(t *testing.T) {
	workers := []string{"worker-0", "worker-1", "worker-2", "worker-3"}
	ring := NewRing(workers, 50, 42)

	for i := range 100 {
		guild := fmt.Sprintf("guild-%d", i)
		succ := ring.Successors(guild)

		require.Len(t, succ, len(workers))
		require.ElementsMatch(t, workers, succ)
		require.Equal(t, ring.GetNode(guild), succ[0])
	}
}

func TestRing_Affinity(t *testing.T) {
	t.Run("removing a worker only moves its guilds", func(t *testing.T) {
		before := NewRing([]string{"worker-0", "worker-1", "worker-2"}, 150, 12345)
		after := NewRing([]string{"worker-0", "worker-1"}, 150, 12345)

		for i := range 1000 {
			guild := fmt.Sprintf("guild-%d", i)
			old := before.GetNode(guild)
			if old == "worker-2" {
				continue
			}
			require.Equal(t, old, after.GetNode(guild), "guild %s moved", guild)
		}
	})

	t.Run("adding a worker keeps most guilds in place", func(t *testing.T) {
		before := NewRing([]string{"worker-0", "worker-1"}, 150, 12345)
		after := NewRing([]string{"worker-0", "worker-1", "worker-2"}, 150, 12345)

		same := 0
		for i := range 1000 {
			guild := fmt.Sprintf("guild-%d", i)
			if before.GetNode(guild) == after.GetNode(guild) {
				same++
			}
		}

		require.GreaterOrEqual(t, same*100/1000, 45)
		t.Logf("affinity when adding worker: %d/1000", same)
	})
}

func TestRing_Seeds(t *testing.T) {
	workers := []string{"worker-0", "worker-1", "worker-2"}
	unseeded := NewRing(workers, 150, 0)
	seeded := NewRing(workers, 150, 12345)
	again := NewRing(workers, 150, 12345)

	different := 0
	for i := range 100 {
		guild := fmt.Sprintf("guild-%d", i)
		require.Equal(t, seeded.GetNode(guild), again.GetNode(guild))
		if unseeded.GetNode(guild) != seeded.GetNode(guild) {
			different++
		}
	}

	require.GreaterOrEqual(t, different, 30)
}
