package idempotency

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	token   string
	expires time.Time
}

// MemoryLocker keeps locks in process. It serves single-instance deployments
// and tests.
type MemoryLocker struct {
	mu   sync.Mutex
	keys map[string]memEntry
	now  func() time.Time
}

// NewMemoryLocker returns an empty in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{keys: make(map[string]memEntry), now: time.Now}
}

// Acquire implements Locker.
func (m *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (*Lease, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.keys[key]; ok && now.Before(e.expires) {
		return nil, ErrLocked
	}
	token := newToken()
	m.keys[key] = memEntry{token: token, expires: now.Add(ttl)}
	return &Lease{Key: key, token: token, release: m.release}, nil
}

func (m *MemoryLocker) release(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.keys[key]; ok && e.token == token {
		delete(m.keys, key)
	}
	return nil
}
