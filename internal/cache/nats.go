package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/puzzlepool/internal/natsutil"
	"github.com/arloliu/puzzlepool/types"
)

// NATSCache is an ActiveBlockCache on a JetStream KV bucket shared by every
// pool process.
//
// Per-entry TTLs are enforced on read; the bucket TTL (if any) bounds how
// long abandoned entries occupy storage.
type NATSCache struct {
	kv    jetstream.KeyValue
	clock clockwork.Clock
}

// Compile-time assertion that NATSCache implements ActiveBlockCache.
var _ types.ActiveBlockCache = (*NATSCache)(nil)

// NewNATS creates a KV-backed cache. A nil clock uses the real clock.
func NewNATS(kv jetstream.KeyValue, clock clockwork.Clock) *NATSCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &NATSCache{kv: kv, clock: clock}
}

// Get returns the cached assignment ID for the owner.
func (c *NATSCache) Get(ctx context.Context, owner, workerID string) (string, bool, error) {
	kvEntry, err := c.kv.Get(ctx, ownerKey(owner, workerID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", false, nil
		}

		return "", false, natsutil.Wrap("get active block", err)
	}

	var e entry
	if err := json.Unmarshal(kvEntry.Value(), &e); err != nil {
		// unreadable entries are treated as misses and overwritten on next Set
		return "", false, nil //nolint:nilerr
	}
	if !e.matches(owner, workerID) || !e.live(c.clock.Now()) {
		return "", false, nil
	}

	return e.AssignmentID, true, nil
}

// Set records assignmentID for the owner.
func (c *NATSCache) Set(ctx context.Context, owner, workerID, assignmentID string, ttl time.Duration) error {
	e := entry{AssignmentID: assignmentID, Owner: owner, WorkerID: workerID}
	if ttl > 0 {
		e.ExpiresAt = c.clock.Now().Add(ttl)
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode active block: %w", err)
	}

	if _, err := c.kv.Put(ctx, ownerKey(owner, workerID), data); err != nil {
		return natsutil.Wrap("put active block", err)
	}

	return nil
}

// Clear removes the owner's entry.
func (c *NATSCache) Clear(ctx context.Context, owner, workerID string) error {
	err := c.kv.Delete(ctx, ownerKey(owner, workerID))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return natsutil.Wrap("delete active block", err)
	}

	return nil
}
