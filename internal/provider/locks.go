package provider

import (
	"sync"

	"github.com/google/uuid"
)

// LockArena serializes mutations per provider without any cross-provider
// contention. The registry mutex only guards map access; the per-provider
// mutex is held for the duration of a mutation.
type LockArena struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewLockArena creates an empty arena.
func NewLockArena() *LockArena {
	return &LockArena{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// Lock acquires the provider's mutex and returns its unlock func.
func (a *LockArena) Lock(providerID uuid.UUID) func() {
	a.mu.Lock()
	l, ok := a.locks[providerID]
	if !ok {
		l = &sync.Mutex{}
		a.locks[providerID] = l
	}
	a.mu.Unlock()

	l.Lock()
	return l.Unlock
}
