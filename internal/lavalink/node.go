package lavalink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arloliu/chorus/internal/backoff"
	"github.com/arloliu/chorus/types"
)

// ErrNodeUnavailable is returned when a node has no websocket session.
var ErrNodeUnavailable = errors.New("lavalink node unavailable")

// NodeConfig describes one Lavalink node.
type NodeConfig struct {
	ID       string
	Host     string
	Port     int
	Password string
	Secure   bool
}

func (c NodeConfig) address() string {
	if c.Port == 0 {
		return c.Host
	}

	return c.Host + ":" + strconv.Itoa(c.Port)
}

func (c NodeConfig) restURL() string {
	if c.Secure {
		return "https://" + c.address()
	}

	return "http://" + c.address()
}

func (c NodeConfig) wsURL() string {
	if c.Secure {
		return "wss://" + c.address() + "/v4/websocket"
	}

	return "ws://" + c.address() + "/v4/websocket"
}

// node owns the websocket connection to one Lavalink server.
type node struct {
	cfg    NodeConfig
	rest   *restClient
	client *Client

	mu        sync.RWMutex
	sessionID string
}

// session returns the node's websocket session id.
func (n *node) session() (string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.sessionID == "" {
		return "", fmt.Errorf("%w: %s", ErrNodeUnavailable, n.cfg.ID)
	}

	return n.sessionID, nil
}

func (n *node) ready() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.sessionID != ""
}

// run keeps the node connected until ctx is cancelled or the retry budget
// is spent. A connection that reached "ready" resets the budget.
func (n *node) run(ctx context.Context) {
	cfg := n.client.cfg
	b := backoff.New(cfg.RetryDelay, 1.6, cfg.MaxRetryDelay, 0)
	attempts := 0

	for {
		wasReady, err := n.connect(ctx)
		if ctx.Err() != nil {
			return
		}
		if wasReady {
			attempts = 0
			b.Reset()
		}

		attempts++
		if cfg.RetryAmount > 0 && attempts > cfg.RetryAmount {
			n.client.logger.Error("giving up on lavalink node", "node_id", n.cfg.ID, "attempts", attempts-1, "error", err)
			return
		}

		delay := b.Next()
		n.client.logger.Info("reconnecting to lavalink node", "node_id", n.cfg.ID, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// connect dials the node and reads messages until the connection drops.
func (n *node) connect(ctx context.Context) (bool, error) {
	header := http.Header{}
	header.Set("Authorization", n.cfg.Password)
	header.Set("User-Id", n.client.cfg.UserID)
	header.Set("Client-Name", n.client.cfg.ClientName)

	conn, resp, err := n.client.dialer.DialContext(ctx, n.cfg.wsURL(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", n.cfg.ID, err)
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	wasReady := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if wasReady {
				n.setSession("")
				n.client.nodeClosed(n, err)
			}

			return wasReady, err
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			n.client.logger.Warn("malformed lavalink message", "node_id", n.cfg.ID, "error", err)
			continue
		}

		if msg.Op == opReady {
			wasReady = true
			n.setSession(msg.SessionID)
			n.client.nodeReady(n, msg.Resumed)

			continue
		}
		n.client.handleMessage(ctx, n, msg)
	}
}

func (n *node) setSession(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sessionID = id
}

// nodeEvent builds a node lifecycle event.
func nodeEvent(typ types.EventType, n *node, reason string) types.BackendEvent {
	return types.BackendEvent{Type: typ, NodeID: n.cfg.ID, Reason: reason}
}
