package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	hash      string
	expiresAt time.Time
}

// MemoryGuard is for single-process dev servers and tests.
type MemoryGuard struct {
	Window time.Duration

	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

var _ Guard = &MemoryGuard{}

func NewMemoryGuard(window time.Duration) *MemoryGuard {
	return &MemoryGuard{
		Window:  window,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (g *MemoryGuard) CheckAndRecord(ctx context.Context, userID int, ns Namespace, hash string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	k := key(userID, ns)
	prev, ok := g.entries[k]
	duplicate := ok && now.Before(prev.expiresAt) && prev.hash == hash
	g.entries[k] = memoryEntry{hash: hash, expiresAt: now.Add(g.Window)}
	return duplicate, nil
}

func (g *MemoryGuard) Forget(ctx context.Context, userID int, ns Namespace, hash string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	k := key(userID, ns)
	if g.entries[k].hash == hash {
		delete(g.entries, k)
	}
	return nil
}
