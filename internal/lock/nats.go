package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/puzzlepool/internal/natsutil"
	"github.com/arloliu/puzzlepool/types"
)

// DefaultKey is the KV key holding the assignment lease.
const DefaultKey = "assignment"

// NATSLock implements AssignmentLock on a NATS JetStream KV bucket.
//
// Uses atomic KV operations:
//   - Create (atomic): take the lease if the key doesn't exist
//   - Get + Delete (with revision): release only the lease we still own
//
// The lease key holds a random token and is removed by the bucket TTL when
// the holder crashes, so the bucket's TTL is the lease duration.
type NATSLock struct {
	kv    jetstream.KeyValue
	key   string
	ttl   time.Duration
	clock clockwork.Clock
}

// Compile-time assertion that NATSLock implements AssignmentLock.
var _ types.AssignmentLock = (*NATSLock)(nil)

// NewNATS creates a KV-backed assignment lock.
//
// Parameters:
//   - kv: JetStream KV bucket configured with TTL equal to the lease duration
//   - key: Lease key (DefaultKey if empty)
//   - ttl: Lease duration reported in Lease.ExpiresAt; should match the bucket TTL
//   - clock: Clock for ExpiresAt (real clock if nil)
//
// Example:
//
//	kv, _ := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
//	    Bucket:  "puzzlepool-lock",
//	    TTL:     5 * time.Second,
//	    Storage: jetstream.MemoryStorage,
//	}, 3)
//	l := lock.NewNATS(kv, "", 5*time.Second, nil)
func NewNATS(kv jetstream.KeyValue, key string, ttl time.Duration, clock clockwork.Clock) *NATSLock {
	if key == "" {
		key = DefaultKey
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &NATSLock{kv: kv, key: key, ttl: ttl, clock: clock}
}

// TryAcquire attempts one atomic Create of the lease key.
func (n *NATSLock) TryAcquire(ctx context.Context) (types.Lease, bool, error) {
	token, err := uuid.NewV4()
	if err != nil {
		return types.Lease{}, false, err
	}

	now := n.clock.Now()
	if _, err := n.kv.Create(ctx, n.key, []byte(token.String())); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return types.Lease{}, false, nil
		}

		return types.Lease{}, false, natsutil.Wrap("create lease key", err)
	}

	return types.Lease{Token: token.String(), ExpiresAt: now.Add(n.ttl)}, true, nil
}

// Release deletes the lease key if it still carries lease's token.
//
// The delete is conditioned on the revision that was read, so a lease taken
// over between the read and the delete is left untouched.
func (n *NATSLock) Release(ctx context.Context, lease types.Lease) error {
	if lease.Token == "" {
		return nil
	}

	entry, err := n.kv.Get(ctx, n.key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil
		}

		return natsutil.Wrap("get lease key", err)
	}

	if string(entry.Value()) != lease.Token {
		return nil
	}

	err = n.kv.Delete(ctx, n.key, jetstream.LastRevision(entry.Revision()))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) || errors.Is(err, jetstream.ErrKeyNotFound) ||
			strings.Contains(err.Error(), "wrong last sequence") {
			return nil
		}

		return fmt.Errorf("failed to delete lease key: %w", natsutil.Wrap("delete", err))
	}

	return nil
}
