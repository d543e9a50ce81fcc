package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/arloliu/puzzlepool/internal/logging"
	"github.com/arloliu/puzzlepool/internal/metrics"
	"github.com/arloliu/puzzlepool/types"
)

// Options controls how long and how often Acquire polls.
type Options struct {
	// MaxWait is the total wall-clock budget for obtaining the lease.
	MaxWait time.Duration

	// PollInterval is the base delay between attempts.
	PollInterval time.Duration

	// PollJitter is the maximum random deviation added to or removed from PollInterval.
	PollJitter time.Duration

	// Clock drives the wait budget and poll timers. Defaults to the real clock.
	Clock clockwork.Clock

	// Metrics receives the wait duration of every Acquire call.
	Metrics types.LockMetrics

	// Logger receives timeout warnings.
	Logger types.Logger
}

// DefaultOptions returns a 2s budget polled every 150ms ± 50ms.
func DefaultOptions() Options {
	return Options{
		MaxWait:      2 * time.Second,
		PollInterval: 150 * time.Millisecond,
		PollJitter:   50 * time.Millisecond,
	}
}

func (o *Options) setDefaults() {
	def := DefaultOptions()
	if o.MaxWait <= 0 {
		o.MaxWait = def.MaxWait
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.PollJitter < 0 || o.PollJitter >= o.PollInterval {
		o.PollJitter = o.PollInterval / 3
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewNop()
	}
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
}

// newPollBackOff builds a constant-interval backoff with symmetric jitter that
// stops once MaxWait has elapsed.
func newPollBackOff(o Options) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.PollInterval
	bo.MaxInterval = o.PollInterval + o.PollJitter
	bo.Multiplier = 1
	bo.RandomizationFactor = float64(o.PollJitter) / float64(o.PollInterval)
	bo.MaxElapsedTime = o.MaxWait
	bo.Clock = o.Clock
	bo.Reset()

	return bo
}

// Acquire polls l until a lease is obtained or the wait budget runs out.
//
// Parameters:
//   - ctx: Context for cancellation; cancelling aborts the wait with ctx.Err()
//   - l: Lock to poll
//   - opts: Wait budget and poll cadence
//
// Returns:
//   - types.Lease: The obtained lease
//   - error: types.ErrLockTimeout when the budget ran out, or a transport error
func Acquire(ctx context.Context, l types.AssignmentLock, opts Options) (types.Lease, error) {
	opts.setDefaults()

	start := opts.Clock.Now()
	bo := newPollBackOff(opts)

	for attempt := 1; ; attempt++ {
		lease, ok, err := l.TryAcquire(ctx)
		if err != nil {
			opts.Metrics.RecordLockWait(opts.Clock.Since(start).Seconds(), false)
			return types.Lease{}, fmt.Errorf("acquire assignment lock: %w", err)
		}
		if ok {
			opts.Metrics.RecordLockWait(opts.Clock.Since(start).Seconds(), true)
			return lease, nil
		}

		next := bo.NextBackOff()
		if next == backoff.Stop {
			waited := opts.Clock.Since(start)
			opts.Metrics.RecordLockWait(waited.Seconds(), false)
			opts.Logger.Warn("assignment lock busy", "attempts", attempt, "waited", waited)

			return types.Lease{}, types.ErrLockTimeout
		}

		timer := opts.Clock.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			opts.Metrics.RecordLockWait(opts.Clock.Since(start).Seconds(), false)

			return types.Lease{}, ctx.Err()
		case <-timer.Chan():
		}
	}
}

// Do runs fn while holding the lock and releases the lease on every exit path,
// including panics.
//
// Release errors are logged and never override fn's result: a lease that
// could not be deleted expires on its own.
func Do(ctx context.Context, l types.AssignmentLock, opts Options, fn func(ctx context.Context) error) error {
	opts.setDefaults()

	lease, err := Acquire(ctx, l, opts)
	if err != nil {
		return err
	}

	defer func() {
		// Release with a fresh context so a cancelled request still frees the lease.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.MaxWait)
		defer cancel()
		if rerr := l.Release(releaseCtx, lease); rerr != nil {
			opts.Logger.Warn("failed to release assignment lock", "error", rerr)
		}
	}()

	return fn(ctx)
}
