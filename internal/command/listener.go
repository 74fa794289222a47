package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/arloliu/chorus/internal/logging"
	"github.com/arloliu/chorus/internal/player"
	"github.com/arloliu/chorus/types"
)

// Lifecycle errors.
var (
	ErrNotStarted     = errors.New("command listener not started")
	ErrAlreadyStarted = errors.New("command listener already started")
)

const defaultCommandTimeout = 30 * time.Second

// Sessions is the session manager surface the listener drives.
type Sessions interface {
	Play(ctx context.Context, req player.PlayRequest) types.Result
	Pause(ctx context.Context, guildID string) types.Result
	Resume(ctx context.Context, guildID string) types.Result
	SetVolume(ctx context.Context, guildID string, volume int) types.Result
	SetLoop(ctx context.Context, guildID string, mode types.LoopMode) types.Result
	Skip(ctx context.Context, guildID string) types.Result
	Seek(ctx context.Context, guildID string, positionMs int64) types.Result
	ClearQueue(ctx context.Context, guildID string) types.Result
	SetPersistent(ctx context.Context, guildID string, persistent bool) types.Result
	SetAutoPlay(ctx context.Context, guildID string, autoPlay bool) types.Result
	StopPlayback(ctx context.Context, guildID string) types.Result
	State(guildID string) (types.SessionState, bool)
}

// Listener answers command requests for one worker.
type Listener struct {
	conn     *nats.Conn
	workerID string
	sessions Sessions
	timeout  time.Duration
	logger   types.Logger

	mu      sync.Mutex
	started bool
	sub     *nats.Subscription
	ctx     context.Context
	wg      sync.WaitGroup
}

// Option configures a Listener.
type Option func(*Listener)

// WithTimeout bounds how long one command may run.
func WithTimeout(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg types.Logger) Option {
	return func(l *Listener) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// New creates a command listener.
//
// Parameters:
//   - conn: NATS connection
//   - workerID: Worker whose subject is served
//   - sessions: Session manager commands are forwarded to
//   - opts: Optional configuration
//
// Returns:
//   - *Listener: New listener, not yet subscribed
//   - error: types.ErrNATSConnectionRequired when conn is nil
func New(conn *nats.Conn, workerID string, sessions Sessions, opts ...Option) (*Listener, error) {
	if conn == nil {
		return nil, types.ErrNATSConnectionRequired
	}

	l := &Listener{
		conn:     conn,
		workerID: workerID,
		sessions: sessions,
		timeout:  defaultCommandTimeout,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Start subscribes to the worker's command subject.
//
// Commands run on their own goroutines; commands for one guild are
// serialized by the session manager.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return ErrAlreadyStarted
	}

	l.ctx = ctx
	sub, err := l.conn.Subscribe(Subject(l.workerID), func(msg *nats.Msg) {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handle(msg)
		}()
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", Subject(l.workerID), err)
	}

	l.sub = sub
	l.started = true
	l.logger.Info("command listener started", "subject", Subject(l.workerID))

	return nil
}

// Stop unsubscribes and waits for in-flight commands.
func (l *Listener) Stop() error {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return ErrNotStarted
	}
	l.started = false
	sub := l.sub
	l.mu.Unlock()

	err := sub.Unsubscribe()
	l.wg.Wait()

	return err
}

func (l *Listener) handle(msg *nats.Msg) {
	var req Request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		l.respond(msg, Response{WorkerID: l.workerID, Message: "malformed command", Code: CodeBadRequest, Error: err.Error()})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.GuildID == "" {
		l.respond(msg, Response{ID: req.ID, WorkerID: l.workerID, Message: "guildId is required", Code: CodeBadRequest})
		return
	}

	ctx, cancel := context.WithTimeout(l.ctx, l.timeout)
	defer cancel()

	start := time.Now()
	resp := l.dispatch(ctx, req)
	l.logger.Debug("command handled",
		"id", req.ID, "command", req.Command, "guild_id", req.GuildID,
		"success", resp.Success, "code", resp.Code, "duration", time.Since(start))

	l.respond(msg, resp)
}

func (l *Listener) dispatch(ctx context.Context, req Request) Response {
	var res types.Result

	switch req.Command {
	case Play:
		res = l.sessions.Play(ctx, player.PlayRequest{
			GuildID:        req.GuildID,
			VoiceChannelID: req.VoiceChannelID,
			TextChannelID:  req.TextChannelID,
			Query:          req.Query,
			Requester:      req.Requester,
		})
	case Pause:
		res = l.sessions.Pause(ctx, req.GuildID)
	case Resume:
		res = l.sessions.Resume(ctx, req.GuildID)
	case Volume:
		res = l.sessions.SetVolume(ctx, req.GuildID, req.Volume)
	case Loop:
		res = l.sessions.SetLoop(ctx, req.GuildID, types.LoopMode(req.LoopMode))
	case Skip:
		res = l.sessions.Skip(ctx, req.GuildID)
	case Seek:
		res = l.sessions.Seek(ctx, req.GuildID, req.PositionMs)
	case Clear:
		res = l.sessions.ClearQueue(ctx, req.GuildID)
	case Persistent:
		res = l.sessions.SetPersistent(ctx, req.GuildID, req.Enabled)
	case AutoPlay:
		res = l.sessions.SetAutoPlay(ctx, req.GuildID, req.Enabled)
	case Stop:
		res = l.sessions.StopPlayback(ctx, req.GuildID)
	case NowPlaying:
		return l.nowPlaying(req)
	default:
		res = types.Fail(fmt.Sprintf("unknown command %q", req.Command), ErrUnknownCommand)
	}

	return fromResult(req.ID, l.workerID, res)
}

func (l *Listener) nowPlaying(req Request) Response {
	state, ok := l.sessions.State(req.GuildID)
	if !ok {
		return fromResult(req.ID, l.workerID, types.Fail("nothing is playing in this guild", types.ErrNoSession))
	}

	snap := state.Snapshot(l.workerID)
	resp := fromResult(req.ID, l.workerID, types.OK("now playing"))
	resp.State = &snap

	return resp
}

func (l *Listener) respond(msg *nats.Msg, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		l.logger.Error("failed to encode command response", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil && !errors.Is(err, nats.ErrMsgNoReply) {
		l.logger.Warn("failed to respond to command", "id", resp.ID, "error", err)
	}
}

// Send issues a command to workerID and waits for its response.
//
// An empty req.ID is replaced by a new UUID.
func Send(ctx context.Context, conn *nats.Conn, workerID string, req Request) (Response, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	data, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}

	msg, err := conn.RequestWithContext(ctx, Subject(workerID), data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return Response{}, fmt.Errorf("%w: worker %s is not listening", types.ErrConnectivity, workerID)
		}

		return Response{}, fmt.Errorf("command %s to %s: %w", req.Command, workerID, err)
	}

	var resp Response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return Response{}, fmt.Errorf("failed to decode command response: %w", err)
	}

	return resp, nil
}
