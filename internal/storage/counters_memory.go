package storage

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryCounterStore implements core.CounterStore in process memory with
// lazy expiry. It is safe for concurrent use.
type MemoryCounterStore struct {
	mu      sync.Mutex
	entries map[string]*counterEntry
	now     func() time.Time
}

type counterEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// NewMemoryCounterStore creates a counter store. A nil clock uses time.Now.
func NewMemoryCounterStore(now func() time.Time) *MemoryCounterStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryCounterStore{
		entries: make(map[string]*counterEntry),
		now:     now,
	}
}

func (m *MemoryCounterStore) IncrWithExpiry(_ context.Context, key string, ttl time.Duration) (int64, error) {
	return m.incr(key, ttl, false)
}

func (m *MemoryCounterStore) IncrAndExpire(_ context.Context, key string, ttl time.Duration) (int64, error) {
	return m.incr(key, ttl, true)
}

func (m *MemoryCounterStore) GetInt(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil {
		return 0, nil
	}
	return strconv.ParseInt(e.value, 10, 64)
}

func (m *MemoryCounterStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryCounterStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := &counterEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

// TTL returns the remaining lifetime of key, or zero when it has none.
func (m *MemoryCounterStore) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil || e.expiresAt.IsZero() {
		return 0
	}
	return e.expiresAt.Sub(m.now())
}

func (m *MemoryCounterStore) incr(key string, ttl time.Duration, refresh bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil {
		e = &counterEntry{value: "0"}
		m.entries[key] = e
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	if n == 1 || refresh {
		e.expiresAt = m.now().Add(ttl)
	}
	return n, nil
}

// live must be called with mu held.
func (m *MemoryCounterStore) live(key string) *counterEntry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil
	}
	return e
}
