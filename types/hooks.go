package types

import "context"

// Hooks defines callbacks for block lifecycle events.
//
// All hooks are optional and called asynchronously in background goroutines
// so they never extend the lock-held critical section or a request's latency.
//
// IMPORTANT: Hook execution behavior:
//   - Hooks run concurrently and may not complete before Close() returns
//   - The context passed to hooks is cancelled when the pool closes
//   - Hook errors are logged but don't fail pool operations
//
// Example:
//
//	hooks := &puzzlepool.Hooks{
//	    OnBlockCompleted: func(ctx context.Context, a *puzzlepool.Assignment) error {
//	        return ledger.Credit(ctx, a.Owner, a.Interval.Len())
//	    },
//	}
type Hooks struct {
	// OnBlockAssigned is called after a new block was persisted and sampled.
	OnBlockAssigned func(ctx context.Context, a *Assignment) error

	// OnBlockCompleted is called after a block's checkwork was verified.
	OnBlockCompleted func(ctx context.Context, a *Assignment) error

	// OnBlockExpired is called for each block released or swept to EXPIRED.
	OnBlockExpired func(ctx context.Context, a *Assignment) error

	// OnError is called when a recoverable background error occurs.
	OnError func(ctx context.Context, err error) error
}
