package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewNop(t *testing.T) {
	metrics := NewNop()

	require.NotNil(t, metrics)
	require.IsType(t, &NopMetrics{}, metrics)
}

func TestNopMetrics_DoNotPanic(t *testing.T) {
	metrics := NewNop()

	require.NotPanics(t, func() {
		metrics.RecordHeartbeat("bot-1", true)
		metrics.RecordHeartbeat("", false)
		metrics.RecordLiveWorkers(-1)
		metrics.RecordPrimaryChange("bot-1", true)
		metrics.RecordSessions(3)
		metrics.RecordAssignment("auto")
		metrics.RecordReassignment("rejected")
		metrics.RecordOwnershipConflict()
		metrics.RecordStaleSweep(0)
		metrics.RecordSnapshotWrite("save", false)
		metrics.RecordResumeOutcome("resumed")
		metrics.RecordResumeDuration(1.5)
		metrics.RecordTrackResolve(true)
		metrics.RecordStoreOperationDuration("get", 0.001)
	})
}
