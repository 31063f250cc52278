package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/huddlechat/gatekit/internal/domain"
)

type pairKey struct {
	userID  uuid.UUID
	feature domain.FeatureKey
}

// Memory is an in-process QuotaStore for tests and development. It applies
// the same lazy-create and idempotent-reset rules as the durable backends
// but loses state on restart.
type Memory struct {
	mu      sync.Mutex
	windows map[pairKey]domain.UsageWindow
}

// NewMemory creates an empty in-memory quota store.
func NewMemory() *Memory {
	return &Memory{
		windows: make(map[pairKey]domain.UsageWindow),
	}
}

// Window returns the pair's window, creating {0, now} if absent.
func (m *Memory) Window(_ context.Context, userID uuid.UUID, feature domain.FeatureKey, now time.Time) (domain.UsageWindow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{userID, feature}
	w, ok := m.windows[key]
	if !ok {
		w = domain.UsageWindow{Count: 0, WindowStart: now}
		m.windows[key] = w
	}
	return w, nil
}

// TryAdvanceWindow resets an expired window to {0, now}. No-op otherwise.
func (m *Memory) TryAdvanceWindow(_ context.Context, userID uuid.UUID, feature domain.FeatureKey, window time.Duration, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{userID, feature}
	w, ok := m.windows[key]
	if !ok {
		m.windows[key] = domain.UsageWindow{Count: 0, WindowStart: now}
		return nil
	}
	if w.Expired(now, window) {
		m.windows[key] = domain.UsageWindow{Count: 0, WindowStart: now}
	}
	return nil
}

// Increment advances the pair's count by one.
func (m *Memory) Increment(_ context.Context, userID uuid.UUID, feature domain.FeatureKey, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey{userID, feature}
	w, ok := m.windows[key]
	if !ok {
		w = domain.UsageWindow{Count: 0, WindowStart: now}
	}
	w.Count++
	m.windows[key] = w
	return nil
}

// Reset drops every window held for the user.
func (m *Memory) Reset(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key := range m.windows {
		if key.userID == userID {
			delete(m.windows, key)
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }
