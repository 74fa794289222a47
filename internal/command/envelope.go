package command

import (
	"errors"

	"github.com/arloliu/chorus/types"
)

// Command names accepted by the listener.
const (
	Play       = "play"
	Pause      = "pause"
	Resume     = "resume"
	Volume     = "volume"
	Loop       = "loop"
	Skip       = "skip"
	Seek       = "seek"
	Clear      = "clear"
	Persistent = "247"
	AutoPlay   = "autoplay"
	Stop       = "stop"
	NowPlaying = "nowplaying"
)

// Error codes carried in Response.Code so callers can react without parsing messages.
const (
	CodeOwnershipConflict = "ownership_conflict"
	CodeNoSession         = "no_session"
	CodeNoResults         = "no_results"
	CodeInvalidArgument   = "invalid_argument"
	CodeUnknownCommand    = "unknown_command"
	CodeBadRequest        = "bad_request"
	CodeInternal          = "internal"
)

// ErrUnknownCommand is returned for a command name the listener does not know.
var ErrUnknownCommand = errors.New("unknown command")

// Subject returns the command subject of a worker.
func Subject(workerID string) string {
	return "chorus.cmd." + workerID
}

// Request is the JSON command envelope.
type Request struct {
	ID      string `json:"id"`
	Command string `json:"command"`
	GuildID string `json:"guildId"`

	// play
	VoiceChannelID string `json:"voiceChannelId,omitempty"`
	TextChannelID  string `json:"textChannelId,omitempty"`
	Query          string `json:"query,omitempty"`
	Requester      string `json:"requester,omitempty"`

	Volume     int    `json:"volume,omitempty"`
	LoopMode   string `json:"loopMode,omitempty"`
	PositionMs int64  `json:"positionMs,omitempty"`
	Enabled    bool   `json:"enabled,omitempty"`
}

// Response is the JSON reply to a Request.
type Response struct {
	ID       string                 `json:"id"`
	WorkerID string                 `json:"workerId"`
	Success  bool                   `json:"success"`
	Message  string                 `json:"message"`
	Warning  string                 `json:"warning,omitempty"`
	Code     string                 `json:"code,omitempty"`
	Error    string                 `json:"error,omitempty"`
	State    *types.SessionSnapshot `json:"state,omitempty"`
}

// errorCode classifies a command error.
func errorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, types.ErrOwnershipConflict):
		return CodeOwnershipConflict
	case errors.Is(err, types.ErrNoSession):
		return CodeNoSession
	case errors.Is(err, types.ErrNoResults):
		return CodeNoResults
	case errors.Is(err, types.ErrInvalidVolume), errors.Is(err, types.ErrInvalidLoopMode):
		return CodeInvalidArgument
	case errors.Is(err, ErrUnknownCommand):
		return CodeUnknownCommand
	default:
		return CodeInternal
	}
}

func fromResult(id, workerID string, res types.Result) Response {
	resp := Response{
		ID:       id,
		WorkerID: workerID,
		Success:  res.Success,
		Message:  res.Message,
		Warning:  res.Warning,
		Code:     errorCode(res.Err),
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}

	return resp
}
