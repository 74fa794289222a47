package lavalink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/time/rate"

	"github.com/arloliu/chorus/internal/logging"
	"github.com/arloliu/chorus/types"
)

// Client errors.
var (
	ErrNoNodes        = errors.New("lavalink: no nodes configured")
	ErrNoUserID       = errors.New("lavalink: user id is required")
	ErrNoVoice        = errors.New("lavalink: voice connector is required")
	ErrAlreadyStarted = errors.New("lavalink client already started")
)

const (
	eventBuffer    = 256
	handlerTimeout = 10 * time.Second
)

// Config configures a Client.
type Config struct {
	Nodes []NodeConfig

	// UserID is the bot's client (application) id sent as the User-Id header.
	UserID     string
	ClientName string

	// SearchPrefix is prepended to free-text queries, e.g. "ytsearch".
	SearchPrefix string

	// RequestsPerSecond and Burst bound REST calls per node.
	RequestsPerSecond float64
	Burst             int

	// RetryAmount is the number of reconnect attempts before giving up on a node (0 retries forever).
	RetryAmount   int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.ClientName == "" {
		c.ClientName = "chorus"
	}
	if c.SearchPrefix == "" {
		c.SearchPrefix = "ytsearch"
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 20
	}
	if c.Burst <= 0 {
		c.Burst = 5
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 3 * time.Second
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = 30 * time.Second
	}
}

// Client is a types.AudioBackend backed by one or more Lavalink nodes.
type Client struct {
	cfg        Config
	voice      types.VoiceConnector
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     types.Logger

	nodes   []*node
	players *xsync.Map[string, *player]
	events  chan types.BackendEvent

	readyMu   sync.Mutex
	readyCh   chan struct{}
	readyNode int

	mu      sync.Mutex
	started bool
	closed  atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ types.AudioBackend = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for REST calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithDialer sets the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Lavalink client. Nodes are not contacted until Start.
//
// Parameters:
//   - cfg: Node list and client settings
//   - voice: Voice connector used to join channels
//   - opts: Optional configuration
//
// Returns:
//   - *Client: New client
//   - error: ErrNoNodes, ErrNoUserID or ErrNoVoice
func New(cfg Config, voice types.VoiceConnector, opts ...Option) (*Client, error) {
	if len(cfg.Nodes) == 0 {
		return nil, ErrNoNodes
	}
	if cfg.UserID == "" {
		return nil, ErrNoUserID
	}
	if voice == nil {
		return nil, ErrNoVoice
	}
	cfg.SetDefaults()

	c := &Client{
		cfg:        cfg,
		voice:      voice,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		dialer:     websocket.DefaultDialer,
		logger:     logging.NewNop(),
		players:    xsync.NewMap[string, *player](),
		events:     make(chan types.BackendEvent, eventBuffer),
		readyCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	for i, nc := range cfg.Nodes {
		if nc.ID == "" {
			nc.ID = fmt.Sprintf("node-%d", i+1)
		}
		limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
		c.nodes = append(c.nodes, &node{
			cfg:    nc,
			rest:   newRESTClient(nc.restURL(), nc.Password, c.httpClient, limiter),
			client: c,
		})
	}

	return c, nil
}

// Start connects to every node in the background.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	for _, n := range c.nodes {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			n.run(runCtx)
		}()
	}

	return nil
}

// Close disconnects from every node and closes the event channel.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
	c.closed.Store(true)
	close(c.events)

	return nil
}

// Connected implements types.AudioBackend.
func (c *Client) Connected() bool {
	c.readyMu.Lock()
	defer c.readyMu.Unlock()

	return c.readyNode > 0
}

// WaitConnected implements types.AudioBackend.
func (c *Client) WaitConnected(ctx context.Context) error {
	c.readyMu.Lock()
	ch := c.readyCh
	c.readyMu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events implements types.AudioBackend.
func (c *Client) Events() <-chan types.BackendEvent {
	return c.events
}

// Search implements types.AudioBackend.
//
// URLs are loaded as-is; anything else is searched with the configured prefix.
func (c *Client) Search(ctx context.Context, query, requester string) (types.SearchResult, error) {
	n := c.pickNode()
	if n == nil {
		return types.SearchResult{}, types.ErrBackendNotConnected
	}

	identifier := query
	if !strings.Contains(query, "://") {
		identifier = c.cfg.SearchPrefix + ":" + query
	}

	res, err := n.rest.loadTracks(ctx, identifier)
	if err != nil {
		return types.SearchResult{}, err
	}

	return decodeLoadResult(res, requester)
}

func decodeLoadResult(res loadResult, requester string) (types.SearchResult, error) {
	out := types.SearchResult{LoadType: types.LoadType(res.LoadType)}

	switch out.LoadType {
	case types.LoadTrack:
		var t wireTrack
		if err := json.Unmarshal(res.Data, &t); err != nil {
			return out, fmt.Errorf("failed to decode track: %w", err)
		}
		out.Tracks = []types.Track{t.toTrack(requester)}
	case types.LoadSearch:
		var ts []wireTrack
		if err := json.Unmarshal(res.Data, &ts); err != nil {
			return out, fmt.Errorf("failed to decode search result: %w", err)
		}
		for _, t := range ts {
			out.Tracks = append(out.Tracks, t.toTrack(requester))
		}
	case types.LoadPlaylist:
		var pl playlistData
		if err := json.Unmarshal(res.Data, &pl); err != nil {
			return out, fmt.Errorf("failed to decode playlist: %w", err)
		}
		out.PlaylistName = pl.Info.Name
		for _, t := range pl.Tracks {
			out.Tracks = append(out.Tracks, t.toTrack(requester))
		}
	case types.LoadEmpty:
	case types.LoadError:
		var le loadError
		_ = json.Unmarshal(res.Data, &le)
		return out, fmt.Errorf("load failed (%s): %s", le.Severity, le.Message)
	default:
		return out, fmt.Errorf("unknown load type %q", res.LoadType)
	}

	return out, nil
}

// CreateSession implements types.AudioBackend. The session is placed on the
// connected node with the fewest players.
func (c *Client) CreateSession(_ context.Context, opts types.SessionOptions) (types.Session, error) {
	n := c.pickNode()
	if n == nil {
		return nil, types.ErrBackendNotConnected
	}

	volume := opts.Volume
	if volume <= 0 {
		volume = types.DefaultVolume
	}
	p := &player{
		client:   c,
		node:     n,
		selfDeaf: opts.SelfDeaf,
		state: types.SessionState{
			GuildID:        opts.GuildID,
			VoiceChannelID: opts.VoiceChannelID,
			TextChannelID:  opts.TextChannelID,
			NodeID:         n.cfg.ID,
			Volume:         volume,
			LoopMode:       types.LoopOff,
		},
	}
	if old, loaded := c.players.LoadAndStore(opts.GuildID, p); loaded {
		c.logger.Warn("replacing existing player", "guild_id", opts.GuildID, "node_id", old.node.cfg.ID)
	}

	return p, nil
}

// UpdateVoice forwards a voice server change (e.g. a region move) to the
// guild's player.
func (c *Client) UpdateVoice(ctx context.Context, guildID string, vs types.VoiceServer) error {
	p, ok := c.players.Load(guildID)
	if !ok {
		return nil
	}

	return p.updateVoice(ctx, vs)
}

// pickNode returns the ready node with the fewest players, or nil.
func (c *Client) pickNode() *node {
	counts := make(map[*node]int, len(c.nodes))
	c.players.Range(func(_ string, p *player) bool {
		counts[p.node]++
		return true
	})

	var best *node
	for _, n := range c.nodes {
		if !n.ready() {
			continue
		}
		if best == nil || counts[n] < counts[best] {
			best = n
		}
	}

	return best
}

func (c *Client) removePlayer(guildID string, p *player) {
	if cur, ok := c.players.Load(guildID); ok && cur == p {
		c.players.Delete(guildID)
	}
}

func (c *Client) emit(ev types.BackendEvent) {
	if c.closed.Load() {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("dropping backend event, consumer is behind", "type", ev.Type, "guild_id", ev.GuildID)
	}
}

func (c *Client) nodeReady(n *node, resumed bool) {
	c.readyMu.Lock()
	c.readyNode++
	if c.readyNode == 1 {
		close(c.readyCh)
	}
	c.readyMu.Unlock()

	c.logger.Info("lavalink node connected", "node_id", n.cfg.ID, "resumed", resumed)
	c.emit(nodeEvent(types.EventNodeReady, n, ""))
}

func (c *Client) nodeClosed(n *node, err error) {
	c.readyMu.Lock()
	c.readyNode--
	if c.readyNode == 0 {
		c.readyCh = make(chan struct{})
	}
	c.readyMu.Unlock()

	c.logger.Warn("lavalink node disconnected", "node_id", n.cfg.ID, "error", err)
	c.emit(nodeEvent(types.EventNodeClosed, n, err.Error()))
}

// handleMessage dispatches a non-ready websocket message from n.
func (c *Client) handleMessage(ctx context.Context, n *node, msg message) {
	switch msg.Op {
	case opStats:
		c.logger.Debug("lavalink node stats", "node_id", n.cfg.ID, "players", msg.Players, "playing", msg.PlayingPlayers)
		return
	case opPlayerUpdate, opEvent:
	default:
		c.logger.Debug("ignoring lavalink op", "node_id", n.cfg.ID, "op", msg.Op)
		return
	}

	p, ok := c.players.Load(msg.GuildID)
	if !ok || p.node != n {
		return
	}

	if msg.Op == opPlayerUpdate {
		if msg.State != nil {
			p.updatePosition(msg.State.Position)
		}

		return
	}

	hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	switch msg.Type {
	case eventTrackStart:
		p.onTrackStart()
	case eventTrackEnd:
		p.onTrackEnd(hctx, msg.Reason)
	case eventTrackException:
		c.logger.Warn("track exception", "guild_id", msg.GuildID, "node_id", n.cfg.ID)
	case eventTrackStuck:
		c.logger.Warn("track stuck, skipping", "guild_id", msg.GuildID, "node_id", n.cfg.ID)
		if err := p.Skip(hctx); err != nil {
			c.logger.Warn("failed to skip stuck track", "guild_id", msg.GuildID, "error", err)
		}
	case eventSocketClosed:
		c.logger.Warn("voice websocket closed", "guild_id", msg.GuildID, "code", msg.Code, "reason", msg.Reason)
	default:
		c.logger.Debug("ignoring lavalink event", "type", msg.Type, "guild_id", msg.GuildID)
	}
}
