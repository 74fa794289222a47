package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsLive(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status WorkerStatus
		age    time.Duration
		want   bool
	}{
		{"fresh available", StatusAvailable, 5 * time.Second, true},
		{"fresh in use", StatusInUse, 59 * time.Second, true},
		{"fresh starting", StatusStarting, time.Second, true},
		{"fresh error still live", StatusError, time.Second, true},
		{"offline is never live", StatusOffline, 0, false},
		{"exactly at window is stale", StatusAvailable, LivenessWindow, false},
		{"stale", StatusInUse, 2 * time.Minute, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := HeartbeatRecord{WorkerID: "bot-1", Status: tt.status, LastHeartbeat: now.Add(-tt.age)}
			require.Equal(t, tt.want, IsLive(rec, now))
		})
	}
}

func TestHeartbeatFields_Apply(t *testing.T) {
	rec := HeartbeatRecord{WorkerID: "bot-1", Status: StatusStarting, SessionCount: 3, TenantCount: 10}

	status := StatusInUse
	sessions := 4
	HeartbeatFields{Status: &status, SessionCount: &sessions}.Apply(&rec)

	require.Equal(t, StatusInUse, rec.Status)
	require.Equal(t, 4, rec.SessionCount)
	require.Equal(t, 10, rec.TenantCount, "unset fields keep their value")
}

func TestHeartbeatRecord_JSON(t *testing.T) {
	rec := HeartbeatRecord{WorkerID: "bot-1", Status: StatusAvailable, Uptime: Duration(90 * time.Second)}

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.Contains(t, string(data), `"uptime":"1m30s"`)

	var decoded HeartbeatRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, rec.Uptime, decoded.Uptime)
}
