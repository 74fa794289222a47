// Package redisstore implements types.DocumentStore on Redis.
//
// Each document is a Redis hash holding the encoded value ("v") and its
// revision ("r"). A per-namespace set indexes the keys for enumeration and a
// per-namespace counter hands out revisions. Conditional writes run inside
// WATCH/MULTI transactions.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	heartbeats := redisstore.New(client, "heartbeats")
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arloliu/chorus/internal/metrics"
	"github.com/arloliu/chorus/types"
)

// Compile-time interface check.
var _ types.DocumentStore = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithMetrics records operation latency to m.
func WithMetrics(m types.StoreMetrics) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithKeyPrefix overrides the global key prefix (default "chorus:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// Store is a DocumentStore namespace in Redis.
type Store struct {
	client    redis.UniversalClient
	namespace string
	prefix    string
	metrics   types.StoreMetrics
}

// New creates a Redis-backed document store. The caller owns the client lifecycle.
func New(client redis.UniversalClient, namespace string, opts ...Option) *Store {
	s := &Store{
		client:    client,
		namespace: namespace,
		prefix:    defaultPrefix,
		metrics:   metrics.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}

	return s
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get returns the value and revision at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	defer s.observe("get", time.Now())

	return s.read(ctx, s.client, key)
}

// Create stores value only if key is absent.
func (s *Store) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	defer s.observe("create", time.Now())

	rev, err := s.nextRevision(ctx)
	if err != nil {
		return 0, err
	}

	dk := s.docKey(key)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, dk).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return types.ErrAlreadyExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.write(ctx, pipe, key, value, rev)
			return nil
		})

		return err
	}, dk)

	switch {
	case err == nil:
		return rev, nil
	case errors.Is(err, types.ErrAlreadyExists), errors.Is(err, redis.TxFailedErr):
		return 0, types.ErrAlreadyExists
	default:
		return 0, fmt.Errorf("chorus/redis: create %s: %w", key, err)
	}
}

// Update replaces the value if the stored revision still equals revision.
func (s *Store) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	defer s.observe("update", time.Now())

	rev, err := s.nextRevision(ctx)
	if err != nil {
		return 0, err
	}

	dk := s.docKey(key)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		_, current, err := s.read(ctx, tx, key)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return types.ErrRevisionMismatch
			}

			return err
		}
		if current != revision {
			return types.ErrRevisionMismatch
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.write(ctx, pipe, key, value, rev)
			return nil
		})

		return err
	}, dk)

	switch {
	case err == nil:
		return rev, nil
	case errors.Is(err, types.ErrRevisionMismatch), errors.Is(err, redis.TxFailedErr):
		return 0, types.ErrRevisionMismatch
	default:
		return 0, fmt.Errorf("chorus/redis: update %s: %w", key, err)
	}
}

// Put unconditionally stores value.
func (s *Store) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	defer s.observe("put", time.Now())

	rev, err := s.nextRevision(ctx)
	if err != nil {
		return 0, err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.write(ctx, pipe, key, value, rev)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("chorus/redis: put %s: %w", key, err)
	}

	return rev, nil
}

// Delete removes key; a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	defer s.observe("delete", time.Now())

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.docKey(key))
		pipe.SRem(ctx, s.indexKey(), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("chorus/redis: delete %s: %w", key, err)
	}

	return nil
}

// Keys lists every key in the namespace, sorted.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	defer s.observe("keys", time.Now())

	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("chorus/redis: list keys: %w", err)
	}
	slices.Sort(keys)

	return keys, nil
}

func (s *Store) read(ctx context.Context, c redis.Cmdable, key string) ([]byte, uint64, error) {
	vals, err := c.HMGet(ctx, s.docKey(key), fieldValue, fieldRevision).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("chorus/redis: get %s: %w", key, err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, 0, types.ErrNotFound
	}

	value, _ := vals[0].(string)
	revStr, _ := vals[1].(string)
	rev, err := strconv.ParseUint(revStr, 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("chorus/redis: corrupt revision for %s: %w", key, err)
	}

	return []byte(value), rev, nil
}

func (s *Store) write(ctx context.Context, pipe redis.Pipeliner, key string, value []byte, rev uint64) {
	pipe.HSet(ctx, s.docKey(key), fieldValue, value, fieldRevision, strconv.FormatUint(rev, 10))
	pipe.SAdd(ctx, s.indexKey(), key)
}

func (s *Store) nextRevision(ctx context.Context) (uint64, error) {
	n, err := s.client.Incr(ctx, s.revisionKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("chorus/redis: next revision: %w", err)
	}

	return uint64(n), nil //nolint:gosec // INCR starts at 1 and never goes negative
}

func (s *Store) observe(op string, start time.Time) {
	s.metrics.RecordStoreOperationDuration(op, time.Since(start).Seconds())
}
