package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory keeps entries in process memory. Expired entries are pruned lazily.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: slices.Clone(value), expiresAt: expiry(m.now(), ttl)}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if expired(e.expiresAt, m.now()) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && expired(cur.expiresAt, m.now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	return slices.Clone(e.value), nil
}

func (m *Memory) Has(ctx context.Context, key string) (bool, error) {
	_, err := m.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Keys returns the live keys in lexical order.
func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	keys := make([]string, 0, len(m.entries))
	for k, e := range m.entries {
		if expired(e.expiresAt, now) {
			delete(m.entries, k)
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.entries)
	return nil
}

func (m *Memory) Close() error { return nil }
