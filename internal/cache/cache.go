// Package cache implements types.ActiveBlockCache.
//
// The cache only short-cuts "which block is this owner working on" lookups.
// Every hit is verified against the store by the pool, so a stale or missing
// entry costs one store query and nothing else.
package cache

import (
	"fmt"
	"time"

	"github.com/zeebo/xxh3"
)

// entry is the cached value. Owner and worker are kept so a hash collision
// on the key reads as a miss instead of another owner's block.
type entry struct {
	AssignmentID string    `json:"assignmentId"`
	Owner        string    `json:"owner"`
	WorkerID     string    `json:"workerId,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt,omitzero"`
}

func (e entry) matches(owner, workerID string) bool {
	return e.Owner == owner && e.WorkerID == workerID
}

func (e entry) live(now time.Time) bool {
	return e.ExpiresAt.IsZero() || now.Before(e.ExpiresAt)
}

// ownerKey maps arbitrary owner tokens onto a fixed-width, KV-safe key.
func ownerKey(owner, workerID string) string {
	return fmt.Sprintf("active.%016x", xxh3.HashString(owner+"\x00"+workerID))
}
