package testing

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/arloliu/chorus/types"
)

// FakeBackend is a scriptable types.AudioBackend for unit tests.
//
// Searches are answered from a catalog keyed by exact query string. Sessions
// record every call so tests can assert on what a component did.
type FakeBackend struct {
	mu        sync.Mutex
	catalog   map[string][]types.Track
	searchErr map[string]error
	createErr map[string]error
	searches  []string
	sessions  map[string]*FakeSession
	ready     chan struct{}
	connected bool
	events    chan types.BackendEvent
}

var _ types.AudioBackend = (*FakeBackend)(nil)

// NewFakeBackend creates a connected backend with an empty catalog.
func NewFakeBackend() *FakeBackend {
	b := &FakeBackend{
		catalog:   make(map[string][]types.Track),
		searchErr: make(map[string]error),
		createErr: make(map[string]error),
		sessions:  make(map[string]*FakeSession),
		ready:     make(chan struct{}),
		events:    make(chan types.BackendEvent, 64),
	}
	b.SetConnected(true)

	return b
}

// AddTracks registers the tracks returned for query.
func (b *FakeBackend) AddTracks(query string, tracks ...types.Track) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.catalog[query] = append(b.catalog[query], tracks...)
}

// AddTrackInfo registers a single track found by its SearchQuery.
func (b *FakeBackend) AddTrackInfo(info types.TrackInfo) types.Track {
	track := types.Track{Encoded: "enc:" + info.SearchQuery(), Info: info}
	b.AddTracks(info.SearchQuery(), track)

	return track
}

// FailSearch makes searches for query return err.
func (b *FakeBackend) FailSearch(query string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.searchErr[query] = err
}

// FailCreate makes CreateSession for guildID return err.
func (b *FakeBackend) FailCreate(guildID string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.createErr[guildID] = err
}

// SetConnected flips the node connection state.
func (b *FakeBackend) SetConnected(connected bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if connected == b.connected {
		return
	}
	b.connected = connected
	if connected {
		close(b.ready)
	} else {
		b.ready = make(chan struct{})
	}
}

// Emit delivers ev on the Events channel.
func (b *FakeBackend) Emit(ev types.BackendEvent) {
	b.events <- ev
}

// Close closes the Events channel.
func (b *FakeBackend) Close() {
	close(b.events)
}

// Searches returns every query searched so far, in order.
func (b *FakeBackend) Searches() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.Clone(b.searches)
}

// Session returns the last session created for guildID, or nil.
func (b *FakeBackend) Session(guildID string) *FakeSession {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.sessions[guildID]
}

// Search implements types.AudioBackend.
func (b *FakeBackend) Search(ctx context.Context, query, requester string) (types.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return types.SearchResult{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.searches = append(b.searches, query)
	if err, ok := b.searchErr[query]; ok {
		return types.SearchResult{LoadType: types.LoadError}, err
	}

	tracks := b.catalog[query]
	if len(tracks) == 0 {
		return types.SearchResult{LoadType: types.LoadEmpty}, nil
	}

	out := make([]types.Track, len(tracks))
	for i, t := range tracks {
		t.Info.Requester = requester
		out[i] = t
	}
	loadType := types.LoadSearch
	if len(out) == 1 {
		loadType = types.LoadTrack
	}

	return types.SearchResult{LoadType: loadType, Tracks: out}, nil
}

// CreateSession implements types.AudioBackend.
func (b *FakeBackend) CreateSession(_ context.Context, opts types.SessionOptions) (types.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err, ok := b.createErr[opts.GuildID]; ok {
		return nil, err
	}

	volume := opts.Volume
	if volume == 0 {
		volume = types.DefaultVolume
	}
	s := &FakeSession{
		state: types.SessionState{
			GuildID:        opts.GuildID,
			VoiceChannelID: opts.VoiceChannelID,
			TextChannelID:  opts.TextChannelID,
			NodeID:         "fake-node",
			Volume:         volume,
			LoopMode:       types.LoopOff,
		},
	}
	b.sessions[opts.GuildID] = s

	return s, nil
}

// Connected implements types.AudioBackend.
func (b *FakeBackend) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.connected
}

// WaitConnected implements types.AudioBackend.
func (b *FakeBackend) WaitConnected(ctx context.Context) error {
	b.mu.Lock()
	ready := b.ready
	b.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events implements types.AudioBackend.
func (b *FakeBackend) Events() <-chan types.BackendEvent {
	return b.events
}

// FakeSession is the types.Session created by FakeBackend.
type FakeSession struct {
	mu         sync.Mutex
	state      types.SessionState
	calls      []string
	connectErr error
	connected  bool
	destroyed  bool
}

var _ types.Session = (*FakeSession)(nil)

// FailConnect makes Connect return err.
func (s *FakeSession) FailConnect(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connectErr = err
}

// Calls returns the recorded calls, e.g. "connect", "play", "seek:42000".
func (s *FakeSession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.calls)
}

// Destroyed reports whether Destroy was called.
func (s *FakeSession) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.destroyed
}

// SetPosition moves the playback position, as a running track would.
func (s *FakeSession) SetPosition(ms int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.PositionMs = ms
}

// Advance finishes the current track the way the backend would.
//
// Returns the track that ended and the one now playing (nil when the queue ran dry).
func (s *FakeSession) Advance() (ended, next *types.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ended = s.state.Current
	s.nextLocked(false)

	return ended, s.state.Current
}

func (s *FakeSession) record(format string, args ...any) {
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

// nextLocked moves to the next track honouring the loop mode. skip ignores LoopTrack.
func (s *FakeSession) nextLocked(skip bool) {
	cur := s.state.Current
	if cur != nil && !skip && s.state.LoopMode == types.LoopTrack {
		s.state.PositionMs = 0
		return
	}
	if cur != nil && s.state.LoopMode == types.LoopQueue {
		s.state.Queue = append(s.state.Queue, *cur)
	}

	s.state.PositionMs = 0
	if len(s.state.Queue) == 0 {
		s.state.Current = nil
		s.state.Playing = false

		return
	}
	head := s.state.Queue[0]
	s.state.Queue = s.state.Queue[1:]
	s.state.Current = &head
	s.state.Playing = true
}

// GuildID implements types.Session.
func (s *FakeSession) GuildID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.GuildID
}

// Connect implements types.Session.
func (s *FakeSession) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record("connect")
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true

	return nil
}

// Enqueue implements types.Session.
func (s *FakeSession) Enqueue(tracks ...types.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record("enqueue:%d", len(tracks))
	s.state.Queue = append(s.state.Queue, tracks...)
}

// Play implements types.Session.
func (s *FakeSession) Play(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record("play")
	if s.state.Current == nil {
		s.nextLocked(true)
	}
	s.state.Playing = s.state.Current != nil

	return nil
}

// SetPaused implements types.Session.
func (s *FakeSession) SetPaused(_ context.Context, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record("pause:%t", paused)
	s.state.Paused = paused

	return nil
}

// Seek implements types.Session.
func (s *FakeSession) Seek(_ context.Context, positionMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record("seek:%d", positionMs)
	s.state.PositionMs = positionMs

	return nil
}

// SetVolume implements types.Session.
func (s *FakeSession) SetVolume(_ context.Context, volume int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record("volume:%d", volume)
	s.state.Volume = volume

	return nil
}

// SetLoopMode implements types.Session.
func (s *FakeSession) SetLoopMode(mode types.LoopMode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record("loop:%s", mode)
	s.state.LoopMode = mode
}

// Skip implements types.Session.
func (s *FakeSession) Skip(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record("skip")
	s.nextLocked(true)

	return nil
}

// ClearQueue implements types.Session.
func (s *FakeSession) ClearQueue() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record("clear")
	n := len(s.state.Queue)
	s.state.Queue = nil

	return n
}

// SetPersistent implements types.Session.
func (s *FakeSession) SetPersistent(persistent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record("persistent:%t", persistent)
	s.state.Persistent = persistent
}

// SetAutoPlay implements types.Session.
func (s *FakeSession) SetAutoPlay(autoPlay bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record("autoplay:%t", autoPlay)
	s.state.AutoPlay = autoPlay
}

// Destroy implements types.Session.
func (s *FakeSession) Destroy(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record("destroy")
	s.destroyed = true
	s.connected = false
	s.state.Playing = false

	return nil
}

// State implements types.Session.
func (s *FakeSession) State() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state
	st.Queue = slices.Clone(s.state.Queue)
	if s.state.Current != nil {
		cur := *s.state.Current
		st.Current = &cur
	}

	return st
}
