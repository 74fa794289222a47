package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/arloliu/chorus/internal/logging"
	"github.com/arloliu/chorus/internal/natsutil"
	"github.com/arloliu/chorus/types"
)

// Lifecycle errors.
var (
	ErrNotStarted     = errors.New("gateway bridge not started")
	ErrAlreadyStarted = errors.New("gateway bridge already started")
)

const (
	defaultTimeout       = 5 * time.Second
	defaultStatsInterval = 30 * time.Second
)

// VoiceUpdateFunc receives voice server updates for this worker.
type VoiceUpdateFunc func(ctx context.Context, update VoiceUpdate)

// Bridge is the worker side of the gateway protocol.
//
// It implements types.Gateway and types.VoiceConnector. Latency is the
// round-trip time of the most recent successful request.
type Bridge struct {
	conn          *nats.Conn
	workerID      string
	clientID      string
	timeout       time.Duration
	statsInterval time.Duration
	logger        types.Logger

	latency    atomic.Int64
	guildCount atomic.Int64

	mu      sync.Mutex
	started bool
	sub     *nats.Subscription
	stopCh  chan struct{}
	doneCh  chan struct{}
}

var (
	_ types.Gateway        = (*Bridge)(nil)
	_ types.VoiceConnector = (*Bridge)(nil)
)

// Option configures a Bridge.
type Option func(*Bridge)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithStatsInterval sets how often gateway stats are polled.
func WithStatsInterval(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.statsInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l types.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a gateway bridge.
//
// Parameters:
//   - conn: NATS connection shared with the rest of the worker
//   - workerID: This worker's ID, used for the voice update subject
//   - clientID: Bot client ID the gateway process serves
//   - opts: Optional configuration
//
// Returns:
//   - *Bridge: New bridge, not yet subscribed
//   - error: types.ErrNATSConnectionRequired when conn is nil
func New(conn *nats.Conn, workerID, clientID string, opts ...Option) (*Bridge, error) {
	if conn == nil {
		return nil, types.ErrNATSConnectionRequired
	}

	b := &Bridge{
		conn:          conn,
		workerID:      workerID,
		clientID:      clientID,
		timeout:       defaultTimeout,
		statsInterval: defaultStatsInterval,
		logger:        logging.NewNop(),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Start subscribes to voice updates and begins polling gateway stats.
//
// onVoice may be nil when the caller does not care about voice moves.
func (b *Bridge) Start(ctx context.Context, onVoice VoiceUpdateFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.started {
		return ErrAlreadyStarted
	}

	sub, err := b.conn.Subscribe(VoiceUpdateSubject(b.workerID), func(msg *nats.Msg) {
		var update VoiceUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			b.logger.Warn("malformed voice update", "error", err)
			return
		}
		if onVoice != nil {
			onVoice(ctx, update)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to voice updates: %w", err)
	}

	b.sub = sub
	b.started = true
	go b.statsLoop(ctx)

	return nil
}

// Stop unsubscribes and stops polling.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return ErrNotStarted
	}
	b.started = false
	close(b.stopCh)
	sub := b.sub
	b.mu.Unlock()

	<-b.doneCh

	return sub.Unsubscribe()
}

func (b *Bridge) statsLoop(ctx context.Context) {
	defer close(b.doneCh)

	b.refreshStats(ctx)

	ticker := time.NewTicker(b.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.refreshStats(ctx)
		}
	}
}

func (b *Bridge) refreshStats(ctx context.Context) {
	var reply StatsReply
	if err := b.request(ctx, StatsSubject(b.clientID), struct{}{}, &reply); err != nil {
		b.logger.Debug("gateway stats unavailable", "error", err, "connectivity", natsutil.IsConnectivityError(err))
		return
	}
	if reply.Error != "" {
		b.logger.Warn("gateway stats failed", "error", reply.Error)
		return
	}
	b.guildCount.Store(int64(reply.GuildCount))
}

// GuildCount returns the guild count from the last stats poll.
func (b *Bridge) GuildCount() int {
	return int(b.guildCount.Load())
}

// Latency implements types.Gateway.
func (b *Bridge) Latency() time.Duration {
	return time.Duration(b.latency.Load())
}

// GuildExists implements types.Gateway.
func (b *Bridge) GuildExists(ctx context.Context, guildID string) (bool, error) {
	return b.lookup(ctx, LookupRequest{GuildID: guildID})
}

// ChannelExists implements types.Gateway.
func (b *Bridge) ChannelExists(ctx context.Context, guildID, channelID string) (bool, error) {
	return b.lookup(ctx, LookupRequest{GuildID: guildID, ChannelID: channelID})
}

func (b *Bridge) lookup(ctx context.Context, req LookupRequest) (bool, error) {
	var reply LookupReply
	if err := b.request(ctx, LookupSubject(b.clientID), req, &reply); err != nil {
		return false, err
	}
	if reply.Error != "" {
		return false, fmt.Errorf("%w: %s", ErrRemote, reply.Error)
	}

	return reply.Exists, nil
}

// JoinVoice implements types.VoiceConnector.
func (b *Bridge) JoinVoice(ctx context.Context, guildID, channelID string, selfDeaf bool) (types.VoiceServer, error) {
	var reply VoiceReply
	req := VoiceRequest{GuildID: guildID, ChannelID: channelID, SelfDeaf: selfDeaf}
	if err := b.request(ctx, VoiceJoinSubject(b.clientID), req, &reply); err != nil {
		return types.VoiceServer{}, err
	}
	if reply.Error != "" {
		return types.VoiceServer{}, fmt.Errorf("%w: %s", ErrRemote, reply.Error)
	}

	return reply.Server, nil
}

// LeaveVoice implements types.VoiceConnector.
func (b *Bridge) LeaveVoice(ctx context.Context, guildID string) error {
	var reply VoiceReply
	if err := b.request(ctx, VoiceLeaveSubject(b.clientID), VoiceRequest{GuildID: guildID}, &reply); err != nil {
		return err
	}
	if reply.Error != "" {
		return fmt.Errorf("%w: %s", ErrRemote, reply.Error)
	}

	return nil
}

func (b *Bridge) request(ctx context.Context, subject string, req, reply any) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", subject, err)
	}

	rctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	msg, err := b.conn.RequestWithContext(rctx, subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return fmt.Errorf("%w: no gateway listening on %s", types.ErrConnectivity, subject)
		}

		return fmt.Errorf("gateway request %s: %w", subject, err)
	}
	b.latency.Store(int64(time.Since(start)))

	if err := json.Unmarshal(msg.Data, reply); err != nil {
		return fmt.Errorf("failed to decode %s reply: %w", subject, err)
	}

	return nil
}
