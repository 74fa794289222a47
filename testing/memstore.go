package testing

import (
	"context"
	"slices"
	"sync"

	"github.com/arloliu/chorus/types"
)

// MemoryStore is an in-process types.DocumentStore for unit tests.
//
// It honours the full compare-and-swap contract. FailNext makes the next
// operations fail, which lets tests exercise store outages.
type MemoryStore struct {
	mu       sync.Mutex
	docs     map[string]memDoc
	revision uint64
	failErr  error
	failOps  int
}

type memDoc struct {
	value    []byte
	revision uint64
}

// Compile-time assertion that MemoryStore implements DocumentStore.
var _ types.DocumentStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]memDoc)}
}

// FailNext makes the next n operations return err.
func (m *MemoryStore) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failOps = n
	m.failErr = err
}

func (m *MemoryStore) injected() error {
	if m.failOps > 0 {
		m.failOps--
		return m.failErr
	}

	return nil
}

// Get returns the value and revision at key.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected(); err != nil {
		return nil, 0, err
	}
	doc, ok := m.docs[key]
	if !ok {
		return nil, 0, types.ErrNotFound
	}

	return slices.Clone(doc.value), doc.revision, nil
}

// Create stores value only if key is absent.
func (m *MemoryStore) Create(_ context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected(); err != nil {
		return 0, err
	}
	if _, ok := m.docs[key]; ok {
		return 0, types.ErrAlreadyExists
	}

	return m.store(key, value), nil
}

// Update replaces the value if the stored revision equals revision.
func (m *MemoryStore) Update(_ context.Context, key string, value []byte, revision uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected(); err != nil {
		return 0, err
	}
	doc, ok := m.docs[key]
	if !ok || doc.revision != revision {
		return 0, types.ErrRevisionMismatch
	}

	return m.store(key, value), nil
}

// Put unconditionally stores value.
func (m *MemoryStore) Put(_ context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected(); err != nil {
		return 0, err
	}

	return m.store(key, value), nil
}

// Delete removes key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected(); err != nil {
		return err
	}
	delete(m.docs, key)

	return nil
}

// Keys lists all keys, sorted.
func (m *MemoryStore) Keys(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(m.docs))
	for k := range m.docs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return keys, nil
}

// Len returns the number of stored documents.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.docs)
}

func (m *MemoryStore) store(key string, value []byte) uint64 {
	m.revision++
	m.docs[key] = memDoc{value: slices.Clone(value), revision: m.revision}

	return m.revision
}
