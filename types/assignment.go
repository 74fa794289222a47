package types

import "time"

// AssignmentReason records how a guild came to be owned by its worker.
type AssignmentReason string

const (
	// ReasonAuto marks an assignment created by the load balancer.
	ReasonAuto AssignmentReason = "auto"

	// ReasonManual marks an assignment set by an operator reassignment.
	ReasonManual AssignmentReason = "manual"
)

// GuildAssignment is the directory record naming the single worker that owns a guild.
//
// isActive is true only while the owner holds a live voice session; the record
// itself outlives sessions so ownership is sticky across playback stops.
type GuildAssignment struct {
	GuildID          string           `json:"guildId"`
	OwnerWorkerID    string           `json:"ownerWorkerId"`
	ClientID         string           `json:"clientId,omitempty"`
	AssignmentReason AssignmentReason `json:"assignmentReason"`
	IsActive         bool             `json:"isActive"`
	VoiceChannelID   string           `json:"voiceChannelId,omitempty"`
	TextChannelID    string           `json:"textChannelId,omitempty"`
	ActivatedAt      *time.Time       `json:"activatedAt,omitempty"`
	AssignedAt       time.Time        `json:"assignedAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// Result is the structured outcome of a caller-facing operation.
//
// Success false with a nil Err describes an expected refusal (e.g. nothing to
// do); Warning is set when the operation succeeded but deserves attention.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Warning string `json:"warning,omitempty"`
	Err     error  `json:"-"`
}

// OK builds a successful result.
func OK(msg string) Result {
	return Result{Success: true, Message: msg}
}

// Fail builds a failed result wrapping err.
func Fail(msg string, err error) Result {
	return Result{Success: false, Message: msg, Err: err}
}
