package types

import (
	"context"
	"time"
)

// LoadType classifies a backend search result.
type LoadType string

const (
	LoadTrack    LoadType = "track"
	LoadPlaylist LoadType = "playlist"
	LoadSearch   LoadType = "search"
	LoadEmpty    LoadType = "empty"
	LoadError    LoadType = "error"
)

// Track is a playable item returned by the audio backend.
//
// Encoded is the backend's opaque handle and is only valid for the backend
// that produced it.
type Track struct {
	Encoded string    `json:"encoded"`
	Info    TrackInfo `json:"info"`
}

// SearchResult is the outcome of AudioBackend.Search.
type SearchResult struct {
	LoadType     LoadType
	Tracks       []Track
	PlaylistName string
}

// SessionOptions describes a new voice session.
type SessionOptions struct {
	GuildID        string
	VoiceChannelID string
	TextChannelID  string
	Volume         int
	SelfDeaf       bool
}

// SessionState is a point-in-time copy of a session's playback state.
type SessionState struct {
	GuildID        string
	VoiceChannelID string
	TextChannelID  string
	NodeID         string
	Volume         int
	LoopMode       LoopMode
	Paused         bool
	Playing        bool
	PositionMs     int64
	Current        *Track
	Queue          []Track
	Persistent     bool
	AutoPlay       bool
}

// Snapshot converts the state into a persistable snapshot owned by workerID.
func (s SessionState) Snapshot(workerID string) SessionSnapshot {
	snap := SessionSnapshot{
		GuildID:        s.GuildID,
		OwnerWorkerID:  workerID,
		VoiceChannelID: s.VoiceChannelID,
		TextChannelID:  s.TextChannelID,
		Volume:         s.Volume,
		LoopMode:       s.LoopMode,
		Paused:         s.Paused,
		PositionMs:     s.PositionMs,
		Queue:          make([]TrackInfo, 0, len(s.Queue)),
		Persistent:     s.Persistent,
		AutoPlay:       s.AutoPlay,
		NodeID:         s.NodeID,
	}
	if snap.LoopMode == "" {
		snap.LoopMode = LoopOff
	}
	if s.Current != nil {
		info := s.Current.Info
		snap.CurrentTrack = &info
	}
	for _, t := range s.Queue {
		snap.Queue = append(snap.Queue, t.Info)
	}

	return snap
}

// Session is one guild's live voice session on the audio backend.
//
// The queue is held by the session. Play starts the head of the queue when
// nothing is playing.
type Session interface {
	GuildID() string
	Connect(ctx context.Context) error
	Enqueue(tracks ...Track)
	Play(ctx context.Context) error
	SetPaused(ctx context.Context, paused bool) error
	Seek(ctx context.Context, positionMs int64) error
	SetVolume(ctx context.Context, volume int) error
	SetLoopMode(mode LoopMode)
	// Skip stops the current track and plays the next one, if any.
	Skip(ctx context.Context) error
	// ClearQueue drops every queued (not current) track and returns how many were dropped.
	ClearQueue() int
	SetPersistent(persistent bool)
	SetAutoPlay(autoPlay bool)
	Destroy(ctx context.Context) error
	State() SessionState
}

// EventType enumerates backend playback events.
type EventType string

const (
	EventTrackStart EventType = "TrackStart"
	EventTrackEnd   EventType = "TrackEnd"
	EventQueueEnd   EventType = "QueueEnd"
	EventNodeReady  EventType = "NodeReady"
	EventNodeClosed EventType = "NodeClosed"
)

// BackendEvent is a playback or node event emitted by the audio backend.
type BackendEvent struct {
	Type    EventType
	GuildID string
	NodeID  string
	Track   *Track
	Reason  string
}

// AudioBackend is the audio node pool sessions run on.
type AudioBackend interface {
	// Search resolves a query (URL or free text) to tracks.
	Search(ctx context.Context, query, requester string) (SearchResult, error)

	// CreateSession allocates a session for a guild. The session is not yet connected.
	CreateSession(ctx context.Context, opts SessionOptions) (Session, error)

	// Connected reports whether at least one node is connected.
	Connected() bool

	// WaitConnected blocks until at least one node is connected or ctx ends.
	WaitConnected(ctx context.Context) error

	// Events delivers playback and node events. The channel is closed when the backend closes.
	Events() <-chan BackendEvent
}

// Gateway answers existence questions about the chat platform.
type Gateway interface {
	GuildExists(ctx context.Context, guildID string) (bool, error)
	ChannelExists(ctx context.Context, guildID, channelID string) (bool, error)
	// Latency returns the most recent round-trip time to the gateway.
	Latency() time.Duration
}

// VoiceServer is the voice connection info handed to the audio backend.
type VoiceServer struct {
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
}

// VoiceConnector joins and leaves voice channels through the chat gateway.
type VoiceConnector interface {
	JoinVoice(ctx context.Context, guildID, channelID string, selfDeaf bool) (VoiceServer, error)
	LeaveVoice(ctx context.Context, guildID string) error
}
