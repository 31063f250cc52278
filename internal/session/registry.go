// Package session holds the read-only subscription and account snapshots
// the tier resolver consumes. The external subscription manager and session
// layer push updates here; the gating core only ever reads.
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/huddlechat/gatekit/internal/domain"
)

// Snapshot bundles what the gate needs to know about one user.
type Snapshot struct {
	Subscription domain.SubscriptionState
	Account      domain.AccountMeta
}

// Registry is a concurrency-safe snapshot store implementing the gate's
// SnapshotSource. Unknown users read as free tier with no grace.
type Registry struct {
	mu        sync.RWMutex
	snapshots map[uuid.UUID]Snapshot
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		snapshots: make(map[uuid.UUID]Snapshot),
	}
}

// Put replaces the user's snapshot.
func (r *Registry) Put(userID uuid.UUID, s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[userID] = s
}

// Remove drops the user's snapshot, e.g. on logout or account removal.
func (r *Registry) Remove(userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.snapshots, userID)
}

// Subscription returns the user's subscription flags.
func (r *Registry) Subscription(userID uuid.UUID) domain.SubscriptionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshots[userID].Subscription
}

// Account returns the user's account age metadata.
func (r *Registry) Account(userID uuid.UUID) domain.AccountMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshots[userID].Account
}
