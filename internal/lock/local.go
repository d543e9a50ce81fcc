package lock

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jonboulle/clockwork"

	"github.com/arloliu/puzzlepool/types"
)

// LocalLock is an in-process AssignmentLock.
//
// It serializes allocators sharing one process and honors the same lease TTL
// semantics as NATSLock, which makes it the natural lock for the SQLite and
// memory stores.
type LocalLock struct {
	mu        sync.Mutex
	ttl       time.Duration
	clock     clockwork.Clock
	token     string
	expiresAt time.Time
}

// Compile-time assertion that LocalLock implements AssignmentLock.
var _ types.AssignmentLock = (*LocalLock)(nil)

// NewLocal creates an in-process lock whose leases expire after ttl.
// A nil clock uses the real clock.
func NewLocal(ttl time.Duration, clock clockwork.Clock) *LocalLock {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return &LocalLock{ttl: ttl, clock: clock}
}

// TryAcquire takes the lease when it is free or the previous one expired.
func (l *LocalLock) TryAcquire(ctx context.Context) (types.Lease, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.Lease{}, false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if l.token != "" && now.Before(l.expiresAt) {
		return types.Lease{}, false, nil
	}

	token, err := uuid.NewV4()
	if err != nil {
		return types.Lease{}, false, err
	}

	l.token = token.String()
	l.expiresAt = now.Add(l.ttl)

	return types.Lease{Token: l.token, ExpiresAt: l.expiresAt}, true, nil
}

// Release frees the lease if lease still owns it.
func (l *LocalLock) Release(_ context.Context, lease types.Lease) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lease.Token == "" || lease.Token != l.token {
		return nil
	}
	l.token = ""
	l.expiresAt = time.Time{}

	return nil
}
