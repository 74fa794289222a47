package gateway

import (
	"errors"

	"github.com/arloliu/chorus/types"
)

// ErrRemote wraps an error reported by the gateway process.
var ErrRemote = errors.New("gateway error")

// LookupSubject returns the lookup subject for a bot client.
func LookupSubject(clientID string) string { return "chorus.gateway." + clientID + ".lookup" }

// VoiceJoinSubject returns the voice join subject for a bot client.
func VoiceJoinSubject(clientID string) string { return "chorus.gateway." + clientID + ".voice.join" }

// VoiceLeaveSubject returns the voice leave subject for a bot client.
func VoiceLeaveSubject(clientID string) string { return "chorus.gateway." + clientID + ".voice.leave" }

// StatsSubject returns the stats subject for a bot client.
func StatsSubject(clientID string) string { return "chorus.gateway." + clientID + ".stats" }

// VoiceUpdateSubject returns the subject voice server updates for a worker are published on.
func VoiceUpdateSubject(workerID string) string { return "chorus.gateway.voice." + workerID }

// LookupRequest asks whether a guild (and optionally a channel in it) exists.
type LookupRequest struct {
	GuildID   string `json:"guildId"`
	ChannelID string `json:"channelId,omitempty"`
}

// LookupReply answers a LookupRequest.
type LookupReply struct {
	Exists bool   `json:"exists"`
	Error  string `json:"error,omitempty"`
}

// VoiceRequest asks the gateway to join or leave a voice channel.
type VoiceRequest struct {
	GuildID   string `json:"guildId"`
	ChannelID string `json:"channelId,omitempty"`
	SelfDeaf  bool   `json:"selfDeaf,omitempty"`
}

// VoiceReply answers a VoiceRequest. Server is empty for leave requests.
type VoiceReply struct {
	Server types.VoiceServer `json:"server"`
	Error  string            `json:"error,omitempty"`
}

// StatsReply carries gateway-side counters.
type StatsReply struct {
	GuildCount int    `json:"guildCount"`
	Error      string `json:"error,omitempty"`
}

// VoiceUpdate is a voice server change for one guild.
type VoiceUpdate struct {
	GuildID string            `json:"guildId"`
	Server  types.VoiceServer `json:"server"`
}
