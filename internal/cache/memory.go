package cache

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/puzzlepool/types"
)

// MemoryCache is a process-local ActiveBlockCache.
type MemoryCache struct {
	entries *xsync.Map[string, entry]
	clock   clockwork.Clock
}

// Compile-time assertion that MemoryCache implements ActiveBlockCache.
var _ types.ActiveBlockCache = (*MemoryCache)(nil)

// NewMemory creates an empty cache. A nil clock uses the real clock.
func NewMemory(clock clockwork.Clock) *MemoryCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &MemoryCache{entries: xsync.NewMap[string, entry](), clock: clock}
}

// Get returns the cached assignment ID for the owner.
func (c *MemoryCache) Get(_ context.Context, owner, workerID string) (string, bool, error) {
	key := ownerKey(owner, workerID)

	e, ok := c.entries.Load(key)
	if !ok || !e.matches(owner, workerID) {
		return "", false, nil
	}
	if !e.live(c.clock.Now()) {
		c.entries.Delete(key)
		return "", false, nil
	}

	return e.AssignmentID, true, nil
}

// Set records assignmentID for the owner.
func (c *MemoryCache) Set(_ context.Context, owner, workerID, assignmentID string, ttl time.Duration) error {
	e := entry{AssignmentID: assignmentID, Owner: owner, WorkerID: workerID}
	if ttl > 0 {
		e.ExpiresAt = c.clock.Now().Add(ttl)
	}
	c.entries.Store(ownerKey(owner, workerID), e)

	return nil
}

// Clear removes the owner's entry.
func (c *MemoryCache) Clear(_ context.Context, owner, workerID string) error {
	c.entries.Delete(ownerKey(owner, workerID))
	return nil
}
