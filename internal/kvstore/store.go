// Package kvstore implements types.DocumentStore on a NATS JetStream KV bucket.
//
// Every registry gets its own bucket; keys are the bare guild or worker IDs.
// Compare-and-swap maps directly onto the bucket's per-key revisions.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/chorus/internal/metrics"
	"github.com/arloliu/chorus/types"
)

// Store is a DocumentStore backed by one JetStream KV bucket.
type Store struct {
	kv      jetstream.KeyValue
	metrics types.StoreMetrics
}

// Compile-time assertion that Store implements DocumentStore.
var _ types.DocumentStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithMetrics records operation latency to m.
func WithMetrics(m types.StoreMetrics) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New wraps a KV bucket.
//
// Parameters:
//   - kv: Bucket holding one document per key
//   - opts: Optional configuration
//
// Returns:
//   - *Store: DocumentStore over the bucket
func New(kv jetstream.KeyValue, opts ...Option) *Store {
	s := &Store{kv: kv, metrics: metrics.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Get returns the value and revision at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	defer s.observe("get", time.Now())

	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, types.ErrNotFound
		}

		return nil, 0, fmt.Errorf("failed to get %s: %w", key, err)
	}

	return entry.Value(), entry.Revision(), nil
}

// Create stores value only if key is absent.
func (s *Store) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	defer s.observe("create", time.Now())

	rev, err := s.kv.Create(ctx, key, value)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return 0, types.ErrAlreadyExists
		}

		return 0, fmt.Errorf("failed to create %s: %w", key, err)
	}

	return rev, nil
}

// Update replaces the value if the stored revision still equals revision.
func (s *Store) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	defer s.observe("update", time.Now())

	rev, err := s.kv.Update(ctx, key, value, revision)
	if err != nil {
		if isWrongRevision(err) {
			return 0, types.ErrRevisionMismatch
		}

		return 0, fmt.Errorf("failed to update %s: %w", key, err)
	}

	return rev, nil
}

// Put unconditionally stores value.
func (s *Store) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	defer s.observe("put", time.Now())

	rev, err := s.kv.Put(ctx, key, value)
	if err != nil {
		return 0, fmt.Errorf("failed to put %s: %w", key, err)
	}

	return rev, nil
}

// Delete removes key; a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	defer s.observe("delete", time.Now())

	if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	return nil
}

// Keys lists every live key in the bucket.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	defer s.observe("keys", time.Now())

	keys, err := s.kv.Keys(ctx) //nolint:staticcheck // bucket sizes are bounded by guild count
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) || types.IsNoKeysFoundError(err) {
			return []string{}, nil
		}

		return nil, fmt.Errorf("failed to list keys: %w", err)
	}

	return keys, nil
}

func (s *Store) observe(op string, start time.Time) {
	s.metrics.RecordStoreOperationDuration(op, time.Since(start).Seconds())
}

// isWrongRevision reports whether err is JetStream's optimistic concurrency failure.
func isWrongRevision(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}

	var apiErr *jetstream.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
	}

	return false
}
