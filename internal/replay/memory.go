package replay

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	committed bool
	expiresAt time.Time
}

// MemoryGuard is an in-process Guard. It is safe for concurrent use but its
// consumed set does not survive a restart; deployments that need replay
// protection across crashes should use the Postgres guard.
type MemoryGuard struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

var _ Guard = (*MemoryGuard)(nil)

// NewMemoryGuard creates an empty in-memory guard.
func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{entries: make(map[string]memoryEntry)}
}

func (g *MemoryGuard) Used(_ context.Context, proofID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.entries[proofID]
	return ok, nil
}

func (g *MemoryGuard) Reserve(_ context.Context, proofID string, expiresAt time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.entries[proofID]; ok {
		return ErrProofUsed
	}
	g.entries[proofID] = memoryEntry{expiresAt: expiresAt}
	return nil
}

func (g *MemoryGuard) Release(_ context.Context, proofID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entries[proofID]; ok && !e.committed {
		delete(g.entries, proofID)
	}
	return nil
}

func (g *MemoryGuard) Commit(_ context.Context, proofID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entries[proofID]; ok {
		e.committed = true
		g.entries[proofID] = e
	}
	return nil
}

func (g *MemoryGuard) Sweep(_ context.Context, now time.Time) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var removed int64
	for id, e := range g.entries {
		if e.expiresAt.Before(now) {
			delete(g.entries, id)
			removed++
		}
	}
	return removed, nil
}
