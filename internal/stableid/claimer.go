// Package stableid guards a worker ID with a lease in a JetStream KV bucket.
//
// Worker IDs are configured, not allocated: the claimer makes sure no two
// processes run under the same ID at the same time. The lease key expires
// with the bucket TTL, so an ID held by a crashed process frees itself.
package stableid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/chorus/internal/logging"
	"github.com/arloliu/chorus/types"
)

// Common errors returned by the claimer.
var (
	ErrNotClaimed    = errors.New("worker ID not claimed")
	ErrAlreadyClosed = errors.New("claimer already closed")
	ErrInvalidTTL    = errors.New("claim TTL must be at least one second")
)

// claim is the stored lease document.
type claim struct {
	WorkerID  string    `json:"workerId"`
	Instance  string    `json:"instance"`
	Host      string    `json:"host,omitempty"`
	PID       int       `json:"pid"`
	ClaimedAt time.Time `json:"claimedAt"`
	RenewedAt time.Time `json:"renewedAt"`
}

// Claimer holds the lease on one worker ID and keeps it renewed.
type Claimer struct {
	kv       jetstream.KeyValue
	workerID string
	ttl      time.Duration
	instance string
	logger   types.Logger

	mu        sync.Mutex
	claimed   bool
	closed    bool
	revision  uint64
	claimedAt time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
	lostCh    chan struct{}
}

// NewClaimer creates a claimer for workerID.
//
// Parameters:
//   - kv: NATS KV bucket for worker ID leases (its TTL should equal ttl)
//   - workerID: The configured worker ID
//   - ttl: Lease duration; renewal runs at a third of it
//   - logger: Logger for debug output (nil for none)
//
// Returns:
//   - *Claimer: New claimer instance
//
// Example:
//
//	claimer := stableid.NewClaimer(kv, "bot-1", 30*time.Second, logger)
//	if err := claimer.Claim(ctx); err != nil {
//	    return err // types.ErrWorkerIDInUse when another process runs bot-1
//	}
//	claimer.StartRenewal()
//	defer claimer.Release(ctx)
func NewClaimer(kv jetstream.KeyValue, workerID string, ttl time.Duration, logger types.Logger) *Claimer {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Claimer{
		kv:       kv,
		workerID: workerID,
		ttl:      ttl,
		instance: uuid.NewString(),
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		lostCh:   make(chan struct{}),
	}
}

// Claim takes the lease on the worker ID.
//
// Returns:
//   - error: types.ErrWorkerIDInUse if another live process holds the ID,
//     ErrAlreadyClosed after Release, or a store error
func (c *Claimer) Claim(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrAlreadyClosed
	}
	if c.claimed {
		return nil
	}
	if c.ttl < time.Second {
		return ErrInvalidTTL
	}

	now := time.Now()
	value, err := c.encode(now, now)
	if err != nil {
		return err
	}

	rev, err := c.kv.Create(ctx, c.workerID, value)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			holder := c.describeHolder(ctx)
			c.logger.Error("worker ID already held", "worker_id", c.workerID, "holder", holder)

			return fmt.Errorf("%w: %s held by %s", types.ErrWorkerIDInUse, c.workerID, holder)
		}

		return fmt.Errorf("failed to claim worker ID %s: %w", c.workerID, err)
	}

	c.claimed = true
	c.revision = rev
	c.claimedAt = now
	c.logger.Info("worker ID claimed", "worker_id", c.workerID, "instance", c.instance, "revision", rev)

	return nil
}

// StartRenewal starts renewing the lease at a third of the TTL.
//
// If a renewal finds the lease was taken or expired, the claimer stops
// renewing and Lost is closed.
//
// Returns:
//   - error: ErrNotClaimed before Claim, ErrAlreadyClosed after Release
func (c *Claimer) StartRenewal() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrAlreadyClosed
	}
	if !c.claimed {
		return ErrNotClaimed
	}

	go c.renewalLoop()

	return nil
}

// Lost is closed when the lease was lost while renewing.
func (c *Claimer) Lost() <-chan struct{} {
	return c.lostCh
}

func (c *Claimer) renewalLoop() {
	defer close(c.doneCh)

	ticker := time.NewTicker(c.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.ttl/3)
			err := c.renew(ctx)
			cancel()

			if err == nil {
				continue
			}
			if c.taken() {
				c.logger.Error("worker ID lease lost", "worker_id", c.workerID, "error", err)
				close(c.lostCh)

				return
			}
			c.logger.Warn("worker ID lease renewal failed", "worker_id", c.workerID, "error", err)
		}
	}
}

// renew updates the lease at the held revision.
func (c *Claimer) renew(ctx context.Context) error {
	c.mu.Lock()
	rev, claimedAt := c.revision, c.claimedAt
	c.mu.Unlock()

	value, err := c.encode(claimedAt, time.Now())
	if err != nil {
		return err
	}

	newRev, err := c.kv.Update(ctx, c.workerID, value, rev)
	if err != nil {
		return fmt.Errorf("failed to renew worker ID %s: %w", c.workerID, err)
	}

	c.mu.Lock()
	c.revision = newRev
	c.mu.Unlock()

	return nil
}

// Release stops renewal and deletes the lease so the ID is free at once.
//
// Returns:
//   - error: ErrNotClaimed if nothing is held, or the delete error
func (c *Claimer) Release(ctx context.Context) error {
	c.mu.Lock()
	if !c.claimed || c.closed {
		c.mu.Unlock()
		return ErrNotClaimed
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stopCh)
	select {
	case <-c.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
	}

	c.mu.Lock()
	rev := c.revision
	c.claimed = false
	c.mu.Unlock()

	err := c.kv.Delete(ctx, c.workerID, jetstream.LastRevision(rev))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to release worker ID %s: %w", c.workerID, err)
	}
	c.logger.Info("worker ID released", "worker_id", c.workerID)

	return nil
}

// WorkerID returns the worker ID this claimer guards.
func (c *Claimer) WorkerID() string {
	return c.workerID
}

// Claimed reports whether the lease is currently held.
func (c *Claimer) Claimed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.claimed
}

func (c *Claimer) encode(claimedAt, renewedAt time.Time) ([]byte, error) {
	host, _ := os.Hostname()

	return json.Marshal(claim{
		WorkerID:  c.workerID,
		Instance:  c.instance,
		Host:      host,
		PID:       os.Getpid(),
		ClaimedAt: claimedAt,
		RenewedAt: renewedAt,
	})
}

// taken reports whether the key is gone or holds another instance's lease.
func (c *Claimer) taken() bool {
	ctx, cancel := context.WithTimeout(context.Background(), c.ttl/3)
	defer cancel()

	entry, err := c.kv.Get(ctx, c.workerID)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return true
	}
	if err != nil {
		return false
	}

	var cur claim
	if err := json.Unmarshal(entry.Value(), &cur); err != nil {
		return true
	}

	return cur.Instance != c.instance
}

// describeHolder names the current holder for error messages.
func (c *Claimer) describeHolder(ctx context.Context) string {
	entry, err := c.kv.Get(ctx, c.workerID)
	if err != nil {
		return "unknown"
	}

	var cur claim
	if err := json.Unmarshal(entry.Value(), &cur); err != nil {
		return "unknown"
	}

	return fmt.Sprintf("%s/%d (instance %s)", cur.Host, cur.PID, cur.Instance)
}
