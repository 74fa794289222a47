package strategy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/chorus/types"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty defaults to priority", input: "", expected: NamePriority},
		{name: "priority", input: "priority", expected: NamePriority},
		{name: "least loaded", input: "least-loaded", expected: NameLeastLoaded},
		{name: "consistent hash", input: "consistent-hash", expected: NameConsistentHash},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.input, Options{MaxSessions: 5})
			require.NoError(t, err)
			require.Equal(t, tt.expected, s.Name())
		})
	}

	t.Run("unknown name", func(t *testing.T) {
		_, err := New("round-robin", Options{})
		require.ErrorIs(t, err, types.ErrUnknownStrategy)
	})
}

func TestPriority_Select(t *testing.T) {
	tests := []struct {
		name        string
		maxSessions int
		sessions    []int
		expected    string
		wantErr     bool
	}{
		{name: "first candidate wins", maxSessions: 10, sessions: []int{3, 0, 0}, expected: "worker-0"},
		{name: "skips full worker", maxSessions: 10, sessions: []int{10, 4, 0}, expected: "worker-1"},
		{name: "unlimited never skips", maxSessions: 0, sessions: []int{500, 0}, expected: "worker-0"},
		{name: "all full", maxSessions: 2, sessions: []int{2, 3}, wantErr: true},
		{name: "no candidates", maxSessions: 2, sessions: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidates := make([]types.HeartbeatRecord, 0, len(tt.sessions))
			for i, n := range tt.sessions {
				candidates = append(candidates, types.HeartbeatRecord{
					WorkerID:     "worker-" + string(rune('0'+i)),
					SessionCount: n,
				})
			}

			got, err := NewPriority(tt.maxSessions).Select(candidates, "guild-1")
			if tt.wantErr {
				require.ErrorIs(t, err, types.ErrNoWorkersAvailable)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, got)
		})
	}
}

func TestLeastLoaded_Select(t *testing.T) {
	tests := []struct {
		name       string
		candidates []types.HeartbeatRecord
		max        int
		expected   string
	}{
		{
			name: "fewest sessions",
			candidates: []types.HeartbeatRecord{
				{WorkerID: "a", SessionCount: 5},
				{WorkerID: "b", SessionCount: 2},
				{WorkerID: "c", SessionCount: 3},
			},
			expected: "b",
		},
		{
			name: "tie broken by tenant count",
			candidates: []types.HeartbeatRecord{
				{WorkerID: "a", SessionCount: 2, TenantCount: 40},
				{WorkerID: "b", SessionCount: 2, TenantCount: 10},
			},
			expected: "b",
		},
		{
			name: "full tie keeps preference order",
			candidates: []types.HeartbeatRecord{
				{WorkerID: "z", SessionCount: 1, TenantCount: 1},
				{WorkerID: "a", SessionCount: 1, TenantCount: 1},
			},
			expected: "z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewLeastLoaded(tt.max).Select(tt.candidates, "guild-1")
			require.NoError(t, err)
			require.Equal(t, tt.expected, got)
		})
	}

	t.Run("all full", func(t *testing.T) {
		_, err := NewLeastLoaded(1).Select([]types.HeartbeatRecord{{WorkerID: "a", SessionCount: 1}}, "g")
		require.ErrorIs(t, err, ErrNoWorkers)
	})
}
