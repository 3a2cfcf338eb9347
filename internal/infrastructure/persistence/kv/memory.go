package kv

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store used by tests and as a stand-in when no
// durable backend is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	// FailAll makes every operation return an error, simulating a durable
	// tier outage.
	FailAll bool
	failErr error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// SetFailure toggles simulated outage mode.
func (m *MemoryStore) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailAll = err != nil
	m.failErr = err
}

func (m *MemoryStore) failing() error {
	if m.FailAll {
		return m.failErr
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failing(); err != nil {
		return nil, err
	}
	entry, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing(); err != nil {
		return err
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.entries[key] = memoryEntry{value: stored, expiresAt: expiresAt}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing(); err != nil {
		return err
	}
	delete(m.entries, key)
	return nil
}

func (m *MemoryStore) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	m.mu.RLock()
	if err := m.failing(); err != nil {
		m.mu.RUnlock()
		return err
	}
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	snapshot := make(map[string][]byte, len(keys))
	for _, k := range keys {
		snapshot[k] = m.entries[k].value
	}
	m.mu.RUnlock()

	for _, k := range keys {
		if err := fn(k, snapshot[k]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failing(); err != nil {
		return 0, err
	}
	removed := 0
	for k, entry := range m.entries {
		if !entry.expiresAt.IsZero() && entry.expiresAt.Before(now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Close() error { return nil }

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
