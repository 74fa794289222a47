// Package kvutil provides utilities for working with NATS JetStream KeyValue stores.
package kvutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// BucketSpec names a bucket and its entry TTL (0 = entries never expire).
type BucketSpec struct {
	Name string
	TTL  time.Duration
}

// EnsureKVBucketWithRetry creates or opens a KV bucket with retry logic.
//
// This function handles race conditions when several workers start at once
// and try to create the same bucket concurrently. It will retry with
// exponential backoff if the creation fails due to transient errors.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - config: KV bucket configuration
//   - maxRetries: Maximum number of retry attempts (default: 3)
//
// Returns:
//   - jetstream.KeyValue: The KV bucket instance
//   - error: Any error that occurred after all retries
//
// Example:
//
//	kv, err := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
//	    Bucket: "chorus-heartbeats",
//	}, 3)
func EnsureKVBucketWithRetry(
	ctx context.Context,
	js jetstream.JetStream,
	config jetstream.KeyValueConfig,
	maxRetries int,
) (jetstream.KeyValue, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		kv, err := js.CreateKeyValue(ctx, config)
		if err == nil {
			return kv, nil
		}

		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, err := js.KeyValue(ctx, config.Bucket)
			if err == nil {
				return kv, nil
			}
			lastErr = fmt.Errorf("bucket exists but failed to open: %w", err)
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("context cancelled during KV bucket creation: %w", ctx.Err())
		}

		// 10ms, 20ms, 40ms...
		if attempt < maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * 10 * time.Millisecond //nolint:gosec // attempt is bounded by maxRetries
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return nil, fmt.Errorf("failed to create/open KV bucket %s after %d attempts: %w",
		config.Bucket, maxRetries, lastErr)
}

// EnsureBuckets creates or opens every bucket in specs.
//
// Buckets keep a single revision per key, which is all compare-and-swap needs.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - js: JetStream context
//   - storage: File or memory storage for all buckets
//   - specs: Buckets to ensure
//
// Returns:
//   - map[string]jetstream.KeyValue: Buckets keyed by name
//   - error: First bucket failure
func EnsureBuckets(
	ctx context.Context,
	js jetstream.JetStream,
	storage jetstream.StorageType,
	specs ...BucketSpec,
) (map[string]jetstream.KeyValue, error) {
	const maxRetries = 5

	out := make(map[string]jetstream.KeyValue, len(specs))
	for _, spec := range specs {
		cfg := jetstream.KeyValueConfig{
			Bucket:  spec.Name,
			History: 1,
			Storage: storage,
		}
		if spec.TTL > 0 {
			cfg.TTL = spec.TTL
		}

		kv, err := EnsureKVBucketWithRetry(ctx, js, cfg, maxRetries)
		if err != nil {
			return nil, err
		}
		out[spec.Name] = kv
	}

	return out, nil
}
