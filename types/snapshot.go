package types

import "time"

// LoopMode controls what happens when the current track ends.
type LoopMode string

const (
	// LoopOff plays the queue once.
	LoopOff LoopMode = "off"

	// LoopTrack repeats the current track.
	LoopTrack LoopMode = "track"

	// LoopQueue re-appends finished tracks to the end of the queue.
	LoopQueue LoopMode = "queue"
)

// Valid reports whether m is a known loop mode.
func (m LoopMode) Valid() bool {
	switch m {
	case LoopOff, LoopTrack, LoopQueue:
		return true
	default:
		return false
	}
}

// Volume bounds accepted by sessions and snapshots.
const (
	MinVolume     = 0
	MaxVolume     = 150
	DefaultVolume = 80
)

// TrackInfo is the persisted description of a track.
//
// It carries enough to find the track again through a backend search; the
// backend's opaque encoded form is not stored because it may not survive
// a backend restart.
type TrackInfo struct {
	Title      string `json:"title"`
	Author     string `json:"author,omitempty"`
	URI        string `json:"uri,omitempty"`
	DurationMs int64  `json:"durationMs"`
	Requester  string `json:"requester,omitempty"`
}

// SearchQuery returns the query used to re-resolve the track: the URI when
// known, the title otherwise.
func (t TrackInfo) SearchQuery() string {
	if t.URI != "" {
		return t.URI
	}

	return t.Title
}

// SessionSnapshot is the persisted playback state of one guild.
//
// Destroyed snapshots are tombstones: they are kept but never resumed.
type SessionSnapshot struct {
	GuildID        string      `json:"guildId"`
	OwnerWorkerID  string      `json:"ownerWorkerId"`
	VoiceChannelID string      `json:"voiceChannelId"`
	TextChannelID  string      `json:"textChannelId"`
	Volume         int         `json:"volume"`
	LoopMode       LoopMode    `json:"loopMode"`
	Paused         bool        `json:"paused"`
	PositionMs     int64       `json:"positionMs"`
	CurrentTrack   *TrackInfo  `json:"currentTrack,omitempty"`
	Queue          []TrackInfo `json:"queue"`
	Persistent     bool        `json:"persistent"`
	AutoPlay       bool        `json:"autoPlay"`
	NodeID         string      `json:"nodeId,omitempty"`
	Destroyed      bool        `json:"destroyed"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// TrackCount returns the number of tracks (current plus queued) in the snapshot.
func (s SessionSnapshot) TrackCount() int {
	n := len(s.Queue)
	if s.CurrentTrack != nil {
		n++
	}

	return n
}
