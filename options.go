package puzzlepool

import (
	"io"

	"github.com/jonboulle/clockwork"
)

// Option configures a Pool with optional dependencies.
type Option func(*poolOptions)

// poolOptions holds optional Pool configuration.
type poolOptions struct {
	cache   ActiveBlockCache
	hooks   *Hooks
	metrics MetricsCollector
	logger  Logger
	clock   clockwork.Clock
	entropy io.Reader
}

// WithCache sets the active-block cache.
//
// The cache is advisory: lookups fall back to the store on a miss or error.
// Without one, every lookup goes to the store.
//
// Parameters:
//   - cache: ActiveBlockCache implementation
//
// Returns:
//   - Option: Functional option for New
//
// Example:
//
//	kv, _ := kvutil.EnsureKVBucketWithRetry(ctx, js, cfg, 3)
//	pool, _ := puzzlepool.New(&cfg, store, lock, src, deriver,
//	    puzzlepool.WithCache(cache.NewNATS(kv, nil)))
func WithCache(cache ActiveBlockCache) Option {
	return func(o *poolOptions) {
		o.cache = cache
	}
}

// WithHooks sets block lifecycle hooks.
//
// Hooks run on their own goroutine and never block the request that fired them.
//
// Parameters:
//   - hooks: Hooks structure with callback functions
//
// Returns:
//   - Option: Functional option for New
//
// Example:
//
//	hooks := &puzzlepool.Hooks{
//	    OnBlockCompleted: func(ctx context.Context, a *puzzlepool.Assignment) error {
//	        return credit(a.Owner, a.Interval.Len())
//	    },
//	}
//	pool, _ := puzzlepool.New(&cfg, store, lock, src, deriver, puzzlepool.WithHooks(hooks))
func WithHooks(hooks *Hooks) Option {
	return func(o *poolOptions) {
		o.hooks = hooks
	}
}

// WithMetrics sets a metrics collector.
//
// Parameters:
//   - metrics: MetricsCollector implementation
//
// Returns:
//   - Option: Functional option for New
func WithMetrics(metrics MetricsCollector) Option {
	return func(o *poolOptions) {
		o.metrics = metrics
	}
}

// WithLogger sets a logger.
//
// Parameters:
//   - logger: Logger implementation
//
// Returns:
//   - Option: Functional option for New
func WithLogger(logger Logger) Option {
	return func(o *poolOptions) {
		o.logger = logger
	}
}

// WithClock sets the clock used for deadlines and sweeping.
func WithClock(clock clockwork.Clock) Option {
	return func(o *poolOptions) {
		o.clock = clock
	}
}

// WithEntropy replaces the crypto/rand source used for block placement,
// size selection and checkwork sampling. Only tests should use it: a
// predictable source lets workers guess their verification points.
//
// r must never fail or run dry. New reads one byte from it up front, but a
// read error during an allocation panics.
func WithEntropy(r io.Reader) Option {
	return func(o *poolOptions) {
		o.entropy = r
	}
}
