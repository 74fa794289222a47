package types

// State represents the worker lifecycle state.
//
// States follow a defined progression during normal operation:
//
//	StateInit → StateClaimingID → StateStarting → StateResuming → StateReady
//
// StateShutdown is terminal.
type State int

const (
	// StateInit is the initial state before any operations.
	StateInit State = iota

	// StateClaimingID indicates the worker is claiming its configured worker ID.
	StateClaimingID

	// StateStarting indicates heartbeats, election and the command listener are being started.
	StateStarting

	// StateResuming indicates commands are accepted while saved sessions are restored.
	StateResuming

	// StateReady indicates normal operation.
	StateReady

	// StateShutdown indicates graceful shutdown is in progress.
	StateShutdown
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateClaimingID:
		return "ClaimingID"
	case StateStarting:
		return "Starting"
	case StateResuming:
		return "Resuming"
	case StateReady:
		return "Ready"
	case StateShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}
