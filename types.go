package chorus

import "github.com/arloliu/chorus/types"

// Re-export types from the types package.
//
// Internal packages depend on types, never on the root package, so the
// aliases here give users chorus.Logger, chorus.SessionSnapshot and friends
// without an import cycle.
type (
	State            = types.State
	WorkerStatus     = types.WorkerStatus
	HeartbeatRecord  = types.HeartbeatRecord
	GuildAssignment  = types.GuildAssignment
	AssignmentReason = types.AssignmentReason
	SessionSnapshot  = types.SessionSnapshot
	TrackInfo        = types.TrackInfo
	LoopMode         = types.LoopMode
	Result           = types.Result
	ClusterStatus    = types.ClusterStatus
	GuildStatus      = types.GuildStatus
	WorkerView       = types.WorkerView
)

// Re-export interfaces from the types package for convenience.
type (
	AudioBackend      = types.AudioBackend
	Session           = types.Session
	Gateway           = types.Gateway
	VoiceConnector    = types.VoiceConnector
	BalancingStrategy = types.BalancingStrategy
	DocumentStore     = types.DocumentStore
	ElectionAgent     = types.ElectionAgent
	MetricsCollector  = types.MetricsCollector
	Logger            = types.Logger
	Hooks             = types.Hooks
)

// Re-export State constants from the types package.
const (
	StateInit       = types.StateInit
	StateClaimingID = types.StateClaimingID
	StateStarting   = types.StateStarting
	StateResuming   = types.StateResuming
	StateReady      = types.StateReady
	StateShutdown   = types.StateShutdown
)

// LivenessWindow is how recent a heartbeat must be for its worker to count as live.
const LivenessWindow = types.LivenessWindow
