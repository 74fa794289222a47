// Package docstore layers JSON documents and read-modify-write retries on top
// of types.DocumentStore.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/arloliu/chorus/types"
)

// DefaultMaxAttempts bounds compare-and-swap retries in Mutate.
const DefaultMaxAttempts = 10

// ErrTooManyConflicts is returned when Mutate keeps losing compare-and-swap races.
var ErrTooManyConflicts = errors.New("too many concurrent modifications")

// Load decodes the document at key.
//
// Returns:
//   - T: Decoded document
//   - uint64: Revision of the document
//   - error: types.ErrNotFound if absent, decode or store error otherwise
func Load[T any](ctx context.Context, s types.DocumentStore, key string) (T, uint64, error) {
	var doc T

	raw, rev, err := s.Get(ctx, key)
	if err != nil {
		return doc, 0, err
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return doc, 0, fmt.Errorf("failed to decode %s: %w", key, err)
	}

	return doc, rev, nil
}

// Put encodes doc and stores it unconditionally.
func Put[T any](ctx context.Context, s types.DocumentStore, key string, doc T) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	_, err = s.Put(ctx, key, raw)

	return err
}

// Create encodes doc and stores it only if key is absent.
//
// Returns types.ErrAlreadyExists when another writer got there first.
func Create[T any](ctx context.Context, s types.DocumentStore, key string, doc T) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	_, err = s.Create(ctx, key, raw)

	return err
}

// MutateFunc edits doc in place. exists is false when the key is absent and
// doc is the zero value. Returning write=false leaves the store untouched.
type MutateFunc[T any] func(doc *T, exists bool) (write bool, err error)

// Mutate performs an atomic read-modify-write of the document at key.
//
// The function may run several times when concurrent writers race; it must
// not have side effects beyond editing doc.
//
// Returns:
//   - T: The document as stored after the call (or as read, when nothing was written)
//   - error: fn's error, ErrTooManyConflicts, or a store error
func Mutate[T any](ctx context.Context, s types.DocumentStore, key string, fn MutateFunc[T]) (T, error) {
	var zero T

	for range DefaultMaxAttempts {
		doc, rev, err := Load[T](ctx, s, key)
		exists := true
		if err != nil {
			if !errors.Is(err, types.ErrNotFound) {
				return zero, err
			}
			exists = false
			doc = zero
		}

		write, err := fn(&doc, exists)
		if err != nil {
			return zero, err
		}
		if !write {
			return doc, nil
		}

		raw, err := json.Marshal(doc)
		if err != nil {
			return zero, fmt.Errorf("failed to encode %s: %w", key, err)
		}

		if exists {
			_, err = s.Update(ctx, key, raw, rev)
		} else {
			_, err = s.Create(ctx, key, raw)
		}
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, types.ErrRevisionMismatch) && !errors.Is(err, types.ErrAlreadyExists) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("%s: %w", key, ErrTooManyConflicts)
}

// List decodes every document in the store. Keys that vanish between listing
// and reading are skipped.
func List[T any](ctx context.Context, s types.DocumentStore) ([]T, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}

	docs := make([]T, 0, len(keys))
	for _, key := range keys {
		doc, _, err := Load[T](ctx, s, key)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				continue
			}

			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, nil
}
