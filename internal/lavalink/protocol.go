package lavalink

import (
	"encoding/json"

	"github.com/arloliu/chorus/types"
)

// Websocket op codes.
const (
	opReady        = "ready"
	opPlayerUpdate = "playerUpdate"
	opStats        = "stats"
	opEvent        = "event"
)

// Websocket event types.
const (
	eventTrackStart     = "TrackStartEvent"
	eventTrackEnd       = "TrackEndEvent"
	eventTrackException = "TrackExceptionEvent"
	eventTrackStuck     = "TrackStuckEvent"
	eventSocketClosed   = "WebSocketClosedEvent"
)

// Track end reasons. Only finished and loadFailed may start the next track.
const (
	endFinished   = "finished"
	endLoadFailed = "loadFailed"
	endStopped    = "stopped"
	endReplaced   = "replaced"
	endCleanup    = "cleanup"
)

type message struct {
	Op string `json:"op"`

	// ready
	Resumed   bool   `json:"resumed,omitempty"`
	SessionID string `json:"sessionId,omitempty"`

	// playerUpdate, event
	GuildID string `json:"guildId,omitempty"`

	// playerUpdate
	State *playerState `json:"state,omitempty"`

	// event
	Type   string     `json:"type,omitempty"`
	Track  *wireTrack `json:"track,omitempty"`
	Reason string     `json:"reason,omitempty"`
	Code   int        `json:"code,omitempty"`

	// stats
	Players        int `json:"players,omitempty"`
	PlayingPlayers int `json:"playingPlayers,omitempty"`
}

type playerState struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
	Ping      int64 `json:"ping"`
}

type wireTrack struct {
	Encoded string        `json:"encoded"`
	Info    wireTrackInfo `json:"info"`
}

type wireTrackInfo struct {
	Identifier string `json:"identifier"`
	IsSeekable bool   `json:"isSeekable"`
	Author     string `json:"author"`
	Length     int64  `json:"length"`
	IsStream   bool   `json:"isStream"`
	Position   int64  `json:"position"`
	Title      string `json:"title"`
	URI        string `json:"uri,omitempty"`
	SourceName string `json:"sourceName"`
}

func (t wireTrack) toTrack(requester string) types.Track {
	return types.Track{
		Encoded: t.Encoded,
		Info: types.TrackInfo{
			Title:      t.Info.Title,
			Author:     t.Info.Author,
			URI:        t.Info.URI,
			DurationMs: t.Info.Length,
			Requester:  requester,
		},
	}
}

type loadResult struct {
	LoadType string          `json:"loadType"`
	Data     json.RawMessage `json:"data"`
}

type playlistData struct {
	Info struct {
		Name          string `json:"name"`
		SelectedTrack int    `json:"selectedTrack"`
	} `json:"info"`
	Tracks []wireTrack `json:"tracks"`
}

type loadError struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

type restError struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// updatePlayer is the PATCH body for a player. Nil fields are left unchanged.
type updatePlayer struct {
	Track    *updateTrack `json:"track,omitempty"`
	Position *int64       `json:"position,omitempty"`
	Volume   *int         `json:"volume,omitempty"`
	Paused   *bool        `json:"paused,omitempty"`
	Voice    *voiceState  `json:"voice,omitempty"`
}

// updateTrack with a nil Encoded stops the current track.
type updateTrack struct {
	Encoded *string `json:"encoded"`
}

type voiceState struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

func ptr[T any](v T) *T { return &v }
