package allocator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/arloliu/puzzlepool/internal/bigrand"
	"github.com/arloliu/puzzlepool/internal/interval"
	"github.com/arloliu/puzzlepool/internal/lock"
	"github.com/arloliu/puzzlepool/internal/logging"
	"github.com/arloliu/puzzlepool/internal/metrics"
	"github.com/arloliu/puzzlepool/types"
)

// Allocation outcomes reported to metrics.
const (
	OutcomeSuccess   = "success"
	OutcomeBusy      = "busy"
	OutcomeExhausted = "exhausted"
	OutcomeFailed    = "failed"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

// Config bounds the allocator's retry loops.
type Config struct {
	// UniquenessAttempts bounds exact-duplicate perturbations (default 50).
	UniquenessAttempts int

	// PersistAttempts bounds Create attempts (default 5).
	PersistAttempts int

	// ExpiredScanLimit caps how many expired intervals the reuse phase considers (default 200).
	ExpiredScanLimit int

	// AssignmentTTL is how long a new block stays ACTIVE (default 12h).
	AssignmentTTL time.Duration

	// Lock controls the wait for the global assignment lock.
	Lock lock.Options
}

// DefaultConfig returns the production bounds.
func DefaultConfig() Config {
	return Config{
		UniquenessAttempts: 50,
		PersistAttempts:    5,
		ExpiredScanLimit:   200,
		AssignmentTTL:      12 * time.Hour,
		Lock:               lock.DefaultOptions(),
	}
}

func (c *Config) setDefaults() {
	def := DefaultConfig()
	if c.UniquenessAttempts <= 0 {
		c.UniquenessAttempts = def.UniquenessAttempts
	}
	if c.PersistAttempts <= 0 {
		c.PersistAttempts = def.PersistAttempts
	}
	if c.ExpiredScanLimit <= 0 {
		c.ExpiredScanLimit = def.ExpiredScanLimit
	}
	if c.AssignmentTTL <= 0 {
		c.AssignmentTTL = def.AssignmentTTL
	}
}

// Request describes one allocation.
type Request struct {
	// Owner is the token of the requesting client. Required.
	Owner string

	// WorkerID optionally distinguishes workers of one owner.
	WorkerID string

	// Size is the requested block length. Clamped to [1, maxRange].
	Size *big.Int

	// Custom, when set, is assigned as-is (after clamping to the keyspace).
	Custom *types.Interval

	// ForceRandom skips the expired-interval reuse phase.
	ForceRandom bool
}

// Result is a persisted allocation.
type Result struct {
	Assignment *types.Assignment
	Provenance types.Provenance

	// AssignedSize is the final block length, which differs from the request
	// for reused and shrunk-to-fit blocks.
	AssignedSize *big.Int

	UniquenessRetries int
	PersistRetries    int
}

// Allocator selects and persists blocks.
type Allocator struct {
	store   types.AssignmentStore
	lock    types.AssignmentLock
	cfg     Config
	rng     *bigrand.Source
	clock   clockwork.Clock
	logger  types.Logger
	metrics types.MetricsCollector
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(a *Allocator) { a.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(a *Allocator) { a.metrics = m }
}

// WithClock sets the clock for assignment timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(a *Allocator) { a.clock = clock }
}

// WithRandom sets the random source. Tests use a seeded reader; production
// must keep the default crypto/rand source. Allocate panics if the source's
// reader fails.
func WithRandom(rng *bigrand.Source) Option {
	return func(a *Allocator) { a.rng = rng }
}

// New creates an allocator.
//
// Parameters:
//   - store: Assignment store (source of truth)
//   - l: Global assignment lock
//   - cfg: Retry bounds and lock wait; zero fields take defaults
//   - opts: Optional logger, metrics, clock, random source
//
// Returns:
//   - *Allocator: Ready allocator
//   - error: ErrStoreRequired or ErrLockRequired
func New(store types.AssignmentStore, l types.AssignmentLock, cfg Config, opts ...Option) (*Allocator, error) {
	if store == nil {
		return nil, types.ErrStoreRequired
	}
	if l == nil {
		return nil, types.ErrLockRequired
	}

	cfg.setDefaults()
	a := &Allocator{
		store:   store,
		lock:    l,
		cfg:     cfg,
		rng:     bigrand.Default,
		clock:   clockwork.NewRealClock(),
		logger:  logging.NewNop(),
		metrics: metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}

	// Lock waits keep their own clock; a.clock only stamps assignments.
	if a.cfg.Lock.Metrics == nil {
		a.cfg.Lock.Metrics = a.metrics
	}
	if a.cfg.Lock.Logger == nil {
		a.cfg.Lock.Logger = a.logger
	}

	return a, nil
}

// Allocate selects, persists and returns a new block of keyspace.
//
// Parameters:
//   - ctx: Context for cancellation
//   - keyspace: The keyspace being partitioned
//   - req: Owner, size and optional custom interval
//
// Returns:
//   - *Result: The persisted assignment and how it was chosen
//   - error: ErrInvalidRange, ErrOwnerRequired, ErrLockTimeout,
//     ErrKeyspaceExhausted, ErrAllocationFailed or a store error
func (a *Allocator) Allocate(ctx context.Context, keyspace types.Keyspace, req Request) (*Result, error) {
	start := a.clock.Now()

	res, err := a.allocate(ctx, keyspace, req)

	var provenance types.Provenance
	if res != nil {
		provenance = res.Provenance
		a.metrics.RecordUniquenessRetries(res.UniquenessRetries)
		a.metrics.RecordPersistRetries(res.PersistRetries)
	}
	a.metrics.RecordAllocation(provenance, outcomeOf(err), a.clock.Since(start).Seconds())

	return res, err
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, types.ErrLockTimeout):
		return OutcomeBusy
	case errors.Is(err, types.ErrKeyspaceExhausted):
		return OutcomeExhausted
	case errors.Is(err, types.ErrAllocationFailed):
		return OutcomeFailed
	case errors.Is(err, types.ErrInvalidRange), errors.Is(err, types.ErrOwnerRequired):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}

func (a *Allocator) allocate(ctx context.Context, keyspace types.Keyspace, req Request) (*Result, error) {
	if !keyspace.Valid() {
		return nil, fmt.Errorf("%w: empty keyspace %s", types.ErrInvalidConfig, keyspace.Interval())
	}
	if req.Owner == "" {
		return nil, types.ErrOwnerRequired
	}

	var custom *types.Interval
	if req.Custom != nil {
		c, err := clampCustom(keyspace, *req.Custom)
		if err != nil {
			return nil, err
		}
		custom = &c
	}

	var res *Result
	err := lock.Do(ctx, a.lock, a.cfg.Lock, func(ctx context.Context) error {
		var err error
		res, err = a.allocateLocked(ctx, keyspace, req, custom)

		return err
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("block allocated",
		"id", res.Assignment.ID,
		"owner", req.Owner,
		"interval", res.Assignment.Interval.String(),
		"size", res.AssignedSize.String(),
		"provenance", res.Provenance,
		"uniqueness_retries", res.UniquenessRetries,
		"persist_retries", res.PersistRetries,
	)

	return res, nil
}

// clampCustom validates a caller-supplied interval and truncates it to the keyspace.
func clampCustom(keyspace types.Keyspace, iv types.Interval) (types.Interval, error) {
	if !iv.Valid() {
		return types.Interval{}, fmt.Errorf("%w: %s (end must be greater than start)", types.ErrInvalidRange, iv)
	}

	clamped, ok := interval.Intersect(keyspace.Interval(), iv)
	if !ok {
		return types.Interval{}, fmt.Errorf("%w: %s lies outside keyspace %s", types.ErrInvalidRange, iv, keyspace.Interval())
	}

	return clamped, nil
}

// allocateLocked is the critical section. It must only run while the lock is held.
func (a *Allocator) allocateLocked(ctx context.Context, keyspace types.Keyspace, req Request, custom *types.Interval) (*Result, error) {
	var reserved []types.Interval
	err := a.timed("reserved", func() error {
		var err error
		reserved, err = a.store.FindReservedIntervals(ctx, keyspace)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load reserved intervals: %w", err)
	}

	free := interval.FreeSegments(keyspace, reserved)
	a.metrics.RecordFreeSpace(len(free))

	if custom != nil {
		return a.placeCustom(ctx, keyspace, reserved, *custom, req)
	}

	if interval.TotalLength(free).Sign() <= 0 {
		return nil, types.ErrKeyspaceExhausted
	}

	size := ClampSize(req.Size, keyspace.MaxRange())

	var (
		candidate  types.Interval
		provenance types.Provenance
		found      bool
	)
	if !req.ForceRandom {
		var expired []types.Interval
		err := a.timed("expired", func() error {
			var err error
			expired, err = a.store.FindExpiredIntervals(ctx, keyspace, a.cfg.ExpiredScanLimit)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("load expired intervals: %w", err)
		}

		candidate, found = selectReuse(expired, free, size)
		provenance = types.ProvenanceReused
	}
	if !found {
		candidate, provenance = a.selectFresh(free, size)
	}
	candidate = clampBounds(keyspace, candidate)

	a.logger.Debug("allocation candidate",
		"interval", candidate.String(),
		"provenance", provenance,
		"free_segments", len(free),
		"requested", size.String(),
	)

	candidate, uniquenessRetries, err := a.ensureUnique(ctx, keyspace, free, candidate)
	if err != nil {
		return nil, err
	}

	assignment, persistRetries, provenance, err := a.persist(ctx, keyspace, reserved, candidate, provenance, req)
	if err != nil {
		return nil, err
	}

	return &Result{
		Assignment:        assignment,
		Provenance:        provenance,
		AssignedSize:      assignment.Interval.Len(),
		UniquenessRetries: uniquenessRetries,
		PersistRetries:    persistRetries,
	}, nil
}

// placeCustom persists a caller-chosen interval. It is never moved: an overlap
// with a reserved interval or a uniqueness conflict rejects the request.
func (a *Allocator) placeCustom(ctx context.Context, keyspace types.Keyspace, reserved []types.Interval, custom types.Interval, req Request) (*Result, error) {
	if interval.OverlapsAny(custom, interval.Merge(interval.Clamp(keyspace, reserved))) {
		return nil, fmt.Errorf("%w: %s overlaps a reserved block", types.ErrInvalidRange, custom)
	}

	created, err := a.create(ctx, custom, types.ProvenanceCustom, req)
	if err != nil {
		if errors.Is(err, types.ErrUniqueViolation) {
			return nil, fmt.Errorf("%w: %s is already assigned", types.ErrInvalidRange, custom)
		}

		return nil, err
	}

	return &Result{
		Assignment:   created,
		Provenance:   types.ProvenanceCustom,
		AssignedSize: created.Interval.Len(),
	}, nil
}

// ensureUnique perturbs candidate while the store holds an exact duplicate.
//
// After the last attempt the final candidate is returned unchecked; persist's
// uniqueness handling is the backstop.
func (a *Allocator) ensureUnique(ctx context.Context, keyspace types.Keyspace, free []types.Interval, candidate types.Interval) (types.Interval, int, error) {
	segIdx := interval.Containing(free, candidate)

	retries := 0
	for attempt := 0; attempt < a.cfg.UniquenessAttempts; attempt++ {
		var exists bool
		err := a.timed("exists", func() error {
			var err error
			exists, err = a.store.ExistsExact(ctx, candidate)
			return err
		})
		if err != nil {
			return types.Interval{}, retries, fmt.Errorf("check interval uniqueness: %w", err)
		}
		if !exists {
			return candidate, retries, nil
		}

		retries++
		candidate = clampBounds(keyspace, a.perturb(free, segIdx, candidate, attempt))
		a.logger.Debug("candidate collided, perturbed", "attempt", attempt+1, "interval", candidate.String())
	}

	a.logger.Warn("uniqueness attempts exhausted, persisting last candidate",
		"attempts", a.cfg.UniquenessAttempts, "interval", candidate.String())

	return candidate, retries, nil
}

// persist creates the assignment, re-running fresh selection on the same
// snapshot after every uniqueness conflict.
func (a *Allocator) persist(
	ctx context.Context,
	keyspace types.Keyspace,
	reserved []types.Interval,
	candidate types.Interval,
	provenance types.Provenance,
	req Request,
) (*types.Assignment, int, types.Provenance, error) {
	size := candidate.Len()
	var collided []types.Interval

	for attempt := 1; attempt <= a.cfg.PersistAttempts; attempt++ {
		created, err := a.create(ctx, candidate, provenance, req)
		if err == nil {
			return created, len(collided), provenance, nil
		}
		if !errors.Is(err, types.ErrUniqueViolation) {
			return nil, len(collided), "", fmt.Errorf("persist assignment: %w", err)
		}

		collided = append(collided, candidate)
		a.logger.Debug("persist collided", "attempt", attempt, "interval", candidate.String())

		// Collided intervals are held by someone the snapshot did not see.
		free := interval.FreeSegments(keyspace, slices.Concat(reserved, collided))
		if len(free) == 0 {
			break
		}
		candidate, provenance = a.selectFresh(free, size)
		candidate = clampBounds(keyspace, candidate)
	}

	a.logger.Error("allocation failed after persist retries",
		"attempts", a.cfg.PersistAttempts, "owner", req.Owner)

	return nil, len(collided), "", fmt.Errorf("%w: %d persist attempts collided", types.ErrAllocationFailed, len(collided))
}

func (a *Allocator) create(ctx context.Context, iv types.Interval, provenance types.Provenance, req Request) (*types.Assignment, error) {
	now := a.clock.Now()

	var created *types.Assignment
	err := a.timed("create", func() error {
		var err error
		created, err = a.store.Create(ctx, types.NewAssignment{
			Owner:      req.Owner,
			WorkerID:   req.WorkerID,
			Interval:   iv,
			Provenance: provenance,
			CreatedAt:  now,
			ExpiresAt:  now.Add(a.cfg.AssignmentTTL),
		})
		return err
	})

	return created, err
}

func (a *Allocator) timed(op string, fn func() error) error {
	start := a.clock.Now()
	err := fn()
	a.metrics.RecordStoreOperationDuration(op, a.clock.Since(start).Seconds())

	return err
}
