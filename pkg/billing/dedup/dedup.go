// Package dedup provides an idempotency guard for webhook events. The event
// reconciler is idempotent on its own (full-document merge-overwrites), so the
// guard only short-circuits straight replays of the same provider event ID.
// Guard failures fail open: an unavailable guard must never drop an event.
package dedup

import (
	"context"
	"sync"
	"time"
)

// Guard tracks processed webhook event identifiers.
type Guard interface {
	// CheckAndMark atomically records the event ID and reports whether it
	// had been seen before.
	CheckAndMark(ctx context.Context, eventID string) (seen bool, err error)

	// Forget removes the mark so a failed event can be redelivered.
	Forget(ctx context.Context, eventID string) error
}

// Memory is an in-memory Guard for tests and single-instance deployments.
type Memory struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

// NewMemory creates an in-memory guard. Entries expire after ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// CheckAndMark implements Guard.
func (m *Memory) CheckAndMark(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, at := range m.seen {
		if now.Sub(at) > m.ttl {
			delete(m.seen, id)
		}
	}

	if at, ok := m.seen[eventID]; ok && now.Sub(at) <= m.ttl {
		return true, nil
	}
	m.seen[eventID] = now
	return false, nil
}

// Forget implements Guard.
func (m *Memory) Forget(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, eventID)
	return nil
}
