package testing

import (
	"context"
	"sync"
	"time"

	"github.com/arloliu/chorus/types"
)

// FakeGateway is a scriptable types.Gateway and types.VoiceConnector for unit tests.
type FakeGateway struct {
	mu      sync.Mutex
	guilds  map[string]map[string]struct{}
	voice   map[string]string
	err     error
	latency time.Duration
}

var (
	_ types.Gateway        = (*FakeGateway)(nil)
	_ types.VoiceConnector = (*FakeGateway)(nil)
)

// NewFakeGateway creates a gateway that knows no guilds.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		guilds:  make(map[string]map[string]struct{}),
		voice:   make(map[string]string),
		latency: 25 * time.Millisecond,
	}
}

// AddGuild registers a guild and its channels.
func (g *FakeGateway) AddGuild(guildID string, channelIDs ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch, ok := g.guilds[guildID]
	if !ok {
		ch = make(map[string]struct{})
		g.guilds[guildID] = ch
	}
	for _, id := range channelIDs {
		ch[id] = struct{}{}
	}
}

// RemoveChannel deletes one channel of a guild.
func (g *FakeGateway) RemoveChannel(guildID, channelID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.guilds[guildID], channelID)
}

// Fail makes every lookup return err (nil restores normal behaviour).
func (g *FakeGateway) Fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.err = err
}

// GuildExists implements types.Gateway.
func (g *FakeGateway) GuildExists(_ context.Context, guildID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return false, g.err
	}
	_, ok := g.guilds[guildID]

	return ok, nil
}

// ChannelExists implements types.Gateway.
func (g *FakeGateway) ChannelExists(_ context.Context, guildID, channelID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return false, g.err
	}
	_, ok := g.guilds[guildID][channelID]

	return ok, nil
}

// Latency implements types.Gateway.
func (g *FakeGateway) Latency() time.Duration {
	return g.latency
}

// GuildCount returns the number of known guilds.
func (g *FakeGateway) GuildCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.guilds)
}

// VoiceChannel returns the channel the bot joined in guildID, or "".
func (g *FakeGateway) VoiceChannel(guildID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.voice[guildID]
}

// JoinVoice implements types.VoiceConnector.
func (g *FakeGateway) JoinVoice(_ context.Context, guildID, channelID string, _ bool) (types.VoiceServer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return types.VoiceServer{}, g.err
	}
	g.voice[guildID] = channelID

	return types.VoiceServer{SessionID: "voice-" + guildID, Token: "token-" + guildID, Endpoint: "voice.example.test"}, nil
}

// LeaveVoice implements types.VoiceConnector.
func (g *FakeGateway) LeaveVoice(_ context.Context, guildID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.voice, guildID)

	return nil
}
