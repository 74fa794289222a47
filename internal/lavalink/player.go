package lavalink

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/arloliu/chorus/types"
)

// ErrSessionDestroyed is returned by calls on a destroyed session.
var ErrSessionDestroyed = errors.New("lavalink session destroyed")

// player is one guild's types.Session on a node.
type player struct {
	client   *Client
	node     *node
	selfDeaf bool

	mu        sync.Mutex
	state     types.SessionState
	destroyed bool
}

var _ types.Session = (*player)(nil)

// GuildID implements types.Session.
func (p *player) GuildID() string {
	return p.state.GuildID
}

// Connect joins the voice channel and hands the voice server to the node.
func (p *player) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return ErrSessionDestroyed
	}

	vs, err := p.client.voice.JoinVoice(ctx, p.state.GuildID, p.state.VoiceChannelID, p.selfDeaf)
	if err != nil {
		return err
	}

	return p.patch(ctx, updatePlayer{
		Voice:  &voiceState{Token: vs.Token, Endpoint: vs.Endpoint, SessionID: vs.SessionID},
		Volume: ptr(p.state.Volume),
	})
}

func (p *player) updateVoice(ctx context.Context, vs types.VoiceServer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return nil
	}

	return p.patch(ctx, updatePlayer{Voice: &voiceState{Token: vs.Token, Endpoint: vs.Endpoint, SessionID: vs.SessionID}})
}

// Enqueue implements types.Session.
func (p *player) Enqueue(tracks ...types.Track) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.Queue = append(p.state.Queue, tracks...)
}

// Play starts the head of the queue when nothing is playing.
func (p *player) Play(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return ErrSessionDestroyed
	}
	if p.state.Current == nil {
		p.advance(true)
	}
	if p.state.Current == nil {
		return nil
	}

	return p.startCurrent(ctx)
}

// SetPaused implements types.Session.
func (p *player) SetPaused(ctx context.Context, paused bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.patch(ctx, updatePlayer{Paused: ptr(paused)}); err != nil {
		return err
	}
	p.state.Paused = paused

	return nil
}

// Seek implements types.Session.
func (p *player) Seek(ctx context.Context, positionMs int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.patch(ctx, updatePlayer{Position: ptr(positionMs)}); err != nil {
		return err
	}
	p.state.PositionMs = positionMs

	return nil
}

// SetVolume implements types.Session.
func (p *player) SetVolume(ctx context.Context, volume int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.patch(ctx, updatePlayer{Volume: ptr(volume)}); err != nil {
		return err
	}
	p.state.Volume = volume

	return nil
}

// SetLoopMode implements types.Session.
func (p *player) SetLoopMode(mode types.LoopMode) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.LoopMode = mode
}

// Skip plays the next queued track, or stops playback and reports the end
// of the queue when there is none.
func (p *player) Skip(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	skipped := p.state.Current
	p.advance(true)
	if p.state.Current != nil {
		return p.startCurrent(ctx)
	}

	if err := p.patch(ctx, updatePlayer{Track: &updateTrack{}}); err != nil {
		return err
	}
	p.client.emit(types.BackendEvent{Type: types.EventQueueEnd, GuildID: p.state.GuildID, NodeID: p.node.cfg.ID, Track: skipped})

	return nil
}

// ClearQueue implements types.Session.
func (p *player) ClearQueue() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.state.Queue)
	p.state.Queue = nil

	return n
}

// SetPersistent implements types.Session.
func (p *player) SetPersistent(persistent bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.Persistent = persistent
}

// SetAutoPlay implements types.Session.
func (p *player) SetAutoPlay(autoPlay bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.AutoPlay = autoPlay
}

// Destroy removes the player from its node and leaves the voice channel.
// Destroying twice is a no-op.
func (p *player) Destroy(ctx context.Context) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil
	}
	p.destroyed = true
	p.state.Playing = false
	p.mu.Unlock()

	p.client.removePlayer(p.state.GuildID, p)

	var errs []error
	if sid, err := p.node.session(); err == nil {
		if err := p.node.rest.destroyPlayer(ctx, sid, p.state.GuildID); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.client.voice.LeaveVoice(ctx, p.state.GuildID); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// State implements types.Session.
func (p *player) State() types.SessionState {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.state
	st.Queue = slices.Clone(p.state.Queue)
	if p.state.Current != nil {
		cur := *p.state.Current
		st.Current = &cur
	}

	return st
}

func (p *player) updatePosition(positionMs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.PositionMs = positionMs
}

func (p *player) onTrackStart() {
	p.mu.Lock()
	cur := p.state.Current
	p.mu.Unlock()

	p.client.emit(types.BackendEvent{Type: types.EventTrackStart, GuildID: p.state.GuildID, NodeID: p.node.cfg.ID, Track: cur})
}

// onTrackEnd advances the queue when the node finished (or failed to load)
// the current track. Stops and replacements were initiated here and already
// advanced.
func (p *player) onTrackEnd(ctx context.Context, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ended := p.state.Current
	p.client.emit(types.BackendEvent{Type: types.EventTrackEnd, GuildID: p.state.GuildID, NodeID: p.node.cfg.ID, Track: ended, Reason: reason})
	if p.destroyed || (reason != endFinished && reason != endLoadFailed) {
		return
	}

	p.advance(reason == endLoadFailed)
	if p.state.Current != nil {
		if err := p.startCurrent(ctx); err != nil {
			p.client.logger.Warn("failed to start next track", "guild_id", p.state.GuildID, "error", err)
		}

		return
	}

	p.client.emit(types.BackendEvent{Type: types.EventQueueEnd, GuildID: p.state.GuildID, NodeID: p.node.cfg.ID, Track: ended})
}

// advance moves to the next track honouring the loop mode. skip ignores
// LoopTrack. Caller holds p.mu.
func (p *player) advance(skip bool) {
	cur := p.state.Current
	p.state.PositionMs = 0
	if cur != nil && !skip && p.state.LoopMode == types.LoopTrack {
		return
	}
	if cur != nil && p.state.LoopMode == types.LoopQueue {
		p.state.Queue = append(p.state.Queue, *cur)
	}

	if len(p.state.Queue) == 0 {
		p.state.Current = nil
		p.state.Playing = false

		return
	}
	head := p.state.Queue[0]
	p.state.Queue = p.state.Queue[1:]
	p.state.Current = &head
}

// startCurrent sends the current track to the node. Caller holds p.mu.
func (p *player) startCurrent(ctx context.Context) error {
	encoded := p.state.Current.Encoded
	if err := p.patch(ctx, updatePlayer{Track: &updateTrack{Encoded: &encoded}, Paused: ptr(p.state.Paused)}); err != nil {
		return err
	}
	p.state.Playing = true
	p.state.PositionMs = 0

	return nil
}

func (p *player) patch(ctx context.Context, body updatePlayer) error {
	sid, err := p.node.session()
	if err != nil {
		return err
	}

	return p.node.rest.updatePlayer(ctx, sid, p.state.GuildID, body)
}
