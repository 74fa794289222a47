package election

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/chorus/types"
)

// Common errors for election operations.
var (
	ErrNotLeader       = errors.New("not the primary")
	ErrLeadershipLost  = errors.New("primary lease was lost")
	ErrInvalidDuration = errors.New("invalid lease duration")
)

// leaseValue is the stored lease document.
type leaseValue struct {
	WorkerID   string    `json:"workerId"`
	AcquiredAt time.Time `json:"acquiredAt"`
	RenewedAt  time.Time `json:"renewedAt"`
}

// Lease is a primary lease held in a JetStream KV key.
//
// All fields are protected by mu.
type Lease struct {
	kv  jetstream.KeyValue
	key string
	now func() time.Time

	mu         sync.RWMutex
	workerID   string
	revision   uint64
	acquiredAt time.Time
	held       bool
}

// Compile-time assertion that Lease implements ElectionAgent.
var _ types.ElectionAgent = (*Lease)(nil)

// NewLease creates a lease on key in kv.
//
// The bucket's TTL is the lease duration: a primary that stops renewing
// loses the role when its key expires.
//
// Parameters:
//   - kv: JetStream KV bucket for the election
//   - key: Key holding the lease (e.g. "primary")
//
// Returns:
//   - *Lease: Lease not yet held
func NewLease(kv jetstream.KeyValue, key string) *Lease {
	return &Lease{kv: kv, key: key, now: time.Now}
}

// RequestLeadership acquires the lease, or renews it when already held.
//
// leaseDuration must be positive; the effective duration is the bucket TTL.
//
// Returns:
//   - bool: true if this worker holds the lease
//   - error: Store error (a lease held by someone else is not an error)
func (l *Lease) RequestLeadership(ctx context.Context, workerID string, leaseDuration int64) (bool, error) {
	if leaseDuration <= 0 {
		return false, ErrInvalidDuration
	}

	held, holder, _ := l.state()
	if held && holder == workerID {
		if err := l.RenewLeadership(ctx); err == nil {
			return true, nil
		}
	}

	now := l.now()
	value, err := json.Marshal(leaseValue{WorkerID: workerID, AcquiredAt: now, RenewedAt: now})
	if err != nil {
		return false, err
	}

	rev, err := l.kv.Create(ctx, l.key, value)
	if err == nil {
		l.set(true, workerID, rev, now)
		return true, nil
	}
	if !errors.Is(err, jetstream.ErrKeyExists) {
		return false, fmt.Errorf("failed to create lease key: %w", err)
	}

	// Occupied. Reclaim it only if it is our own lease from a previous run.
	entry, err := l.kv.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read lease key: %w", err)
	}

	var cur leaseValue
	if err := json.Unmarshal(entry.Value(), &cur); err != nil || cur.WorkerID != workerID {
		return false, nil
	}

	rev, err = l.kv.Update(ctx, l.key, value, entry.Revision())
	if err != nil {
		return false, nil
	}
	l.set(true, workerID, rev, now)

	return true, nil
}

// RenewLeadership extends the held lease.
//
// Returns:
//   - error: ErrNotLeader if not held, ErrLeadershipLost if the key moved on
func (l *Lease) RenewLeadership(ctx context.Context) error {
	held, workerID, rev := l.state()
	if !held {
		return ErrNotLeader
	}

	l.mu.RLock()
	acquiredAt := l.acquiredAt
	l.mu.RUnlock()

	value, err := json.Marshal(leaseValue{WorkerID: workerID, AcquiredAt: acquiredAt, RenewedAt: l.now()})
	if err != nil {
		return err
	}

	newRev, err := l.kv.Update(ctx, l.key, value, rev)
	if err != nil {
		l.clear()
		return fmt.Errorf("%w: %w", ErrLeadershipLost, err)
	}

	l.mu.Lock()
	l.revision = newRev
	l.mu.Unlock()

	return nil
}

// ReleaseLeadership deletes the lease so another worker can take over at once.
func (l *Lease) ReleaseLeadership(ctx context.Context) error {
	held, _, rev := l.state()
	if !held {
		return ErrNotLeader
	}

	err := l.kv.Delete(ctx, l.key, jetstream.LastRevision(rev))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		l.clear()
		return fmt.Errorf("failed to delete lease key: %w", err)
	}
	l.set(false, "", 0, time.Time{})

	return nil
}

// IsLeader verifies against the store that the lease is still held.
func (l *Lease) IsLeader(ctx context.Context) (bool, error) {
	held, _, rev := l.state()
	if !held {
		return false, nil
	}

	entry, err := l.kv.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			l.clear()
			return false, nil
		}

		return false, fmt.Errorf("failed to get lease key: %w", err)
	}
	if entry.Revision() != rev {
		l.clear()
		return false, nil
	}

	return true, nil
}

// Holder returns the worker currently holding the lease, or "" when vacant.
func (l *Lease) Holder(ctx context.Context) (string, error) {
	entry, err := l.kv.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", nil
		}

		return "", fmt.Errorf("failed to get lease key: %w", err)
	}

	var cur leaseValue
	if err := json.Unmarshal(entry.Value(), &cur); err != nil {
		return "", fmt.Errorf("malformed lease value: %w", err)
	}

	return cur.WorkerID, nil
}

func (l *Lease) state() (held bool, workerID string, revision uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.held, l.workerID, l.revision
}

func (l *Lease) set(held bool, workerID string, revision uint64, acquiredAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.held = held
	l.workerID = workerID
	l.revision = revision
	l.acquiredAt = acquiredAt
}

func (l *Lease) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.held = false
}
