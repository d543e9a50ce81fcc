package puzzlepool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/arloliu/puzzlepool/checkwork"
	"github.com/arloliu/puzzlepool/internal/allocator"
	"github.com/arloliu/puzzlepool/internal/bigrand"
	"github.com/arloliu/puzzlepool/internal/hooks"
	"github.com/arloliu/puzzlepool/internal/lock"
	"github.com/arloliu/puzzlepool/internal/logging"
	"github.com/arloliu/puzzlepool/internal/metrics"
	"github.com/arloliu/puzzlepool/internal/store"
	"github.com/arloliu/puzzlepool/internal/sweeper"
	"github.com/arloliu/puzzlepool/types"
)

// Verification outcomes reported to metrics.
const (
	verifyAccepted = "accepted"
	verifyMismatch = "mismatch"
	verifyRejected = "rejected"
)

// scalarHexDigits is the exact width of a submitted scalar.
const scalarHexDigits = 64

// keysPerCredit is the number of keys worth one credit.
var keysPerCredit = big.NewInt(1_000_000_000_000)

// AllocateRequest describes a block request.
type AllocateRequest struct {
	// Owner is the client token. Required.
	Owner string

	// WorkerID optionally distinguishes several workers of one owner.
	WorkerID string

	// Size is the requested key count with an optional K/M/B/T suffix.
	// Empty picks a random size between the configured bounds.
	Size string

	// Custom assigns this exact interval (clamped to the keyspace) instead of
	// choosing one. It must not overlap a reserved block.
	Custom *Interval

	// ForceRandom skips reuse of expired intervals.
	ForceRandom bool
}

// Block is an assignment as handed to a worker.
type Block struct {
	*Assignment

	// AssignedSize is the block length. It can differ from the request for
	// reused and shrunk-to-fit blocks.
	AssignedSize *big.Int

	// Existing is true when the owner already held this block and no
	// allocation took place.
	Existing bool
}

// SubmitRequest carries a worker's proof of work.
type SubmitRequest struct {
	Owner    string
	WorkerID string

	// BlockID selects the block. Empty means the owner's active block.
	BlockID string

	// Scalars are 64-digit hex values, with or without 0x prefix.
	Scalars []string
}

// SubmitResult reports the outcome of a submission.
type SubmitResult struct {
	// Assignment is the block after the submission.
	Assignment *Assignment

	// Derived holds the identifier of each considered scalar.
	Derived []string

	// Missing lists checkwork identifiers the submission did not reproduce.
	Missing []string

	// Credits is the reward for a completed block: one per 10^12 keys, in
	// steps of 0.001. Zero unless the block completed.
	Credits float64

	// KeyspaceHit is true when a submitted scalar derives to the puzzle address.
	KeyspaceHit bool

	// HitScalar is the 64-digit hex scalar that produced the hit.
	HitScalar string
}

// Pool hands out keyspace blocks and verifies the work done on them.
//
// A Pool is safe for concurrent use. Several Pool instances (in one process or
// many) may share a store and lock; the lock serializes interval selection
// across all of them.
type Pool struct {
	cfg     Config
	store   AssignmentStore
	lock    AssignmentLock
	cache   ActiveBlockCache
	source  KeyspaceSource
	deriver IdentifierDeriver

	alloc   *allocator.Allocator
	sampler *checkwork.Sampler
	sweeper *sweeper.Sweeper
	rng     *bigrand.Source

	hooks   Hooks
	metrics MetricsCollector
	logger  Logger
	clock   clockwork.Clock

	minSize *big.Int
	maxSize *big.Int
	hardCap *big.Int

	hookWG sync.WaitGroup
}

// New creates a Pool.
//
// Parameters:
//   - cfg: Configuration; missing values are filled with defaults
//   - st: Assignment store (source of truth)
//   - l: Global assignment lock shared by every pool instance on st
//   - src: Keyspace source naming the active puzzle
//   - deriver: One-way function mapping scalars to identifiers
//   - opts: Optional cache, hooks, metrics, logger, clock, entropy
//
// Returns:
//   - *Pool: Initialized pool; call Start to run the background sweep
//   - error: ErrInvalidConfig or a missing-dependency error
//
// Example:
//
//	cfg := puzzlepool.DefaultConfig()
//	cfg.Puzzle = puzzlepool.PuzzleSettings{Name: "71", Address: addr, StartHex: "400000000000000000", EndHex: "800000000000000000"}
//	backend, err := puzzlepool.NATSBackend(ctx, js, &cfg, logger)
//	if err != nil { /* handle */ }
//	src, _ := puzzlepool.StaticSource(&cfg)
//	pool, err := puzzlepool.New(&cfg, backend.Store, backend.Lock, src, puzzlepool.BitcoinDeriver(nil),
//	    puzzlepool.WithCache(backend.Cache))
func New(cfg *Config, st AssignmentStore, l AssignmentLock, src KeyspaceSource, deriver IdentifierDeriver, opts ...Option) (*Pool, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}
	if st == nil {
		return nil, ErrStoreRequired
	}
	if l == nil {
		return nil, ErrLockRequired
	}
	if src == nil {
		return nil, ErrKeyspaceSourceRequired
	}
	if deriver == nil {
		return nil, ErrDeriverRequired
	}

	SetDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	options := &poolOptions{}
	for _, opt := range opts {
		opt(options)
	}

	metricsCollector := options.metrics
	if metricsCollector == nil {
		metricsCollector = metrics.NewNop()
	}
	loggerInstance := options.logger
	if loggerInstance == nil {
		loggerInstance = logging.NewNop()
	}
	clock := options.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	rng := bigrand.Default
	samplerOpts := []checkwork.SamplerOption{checkwork.WithMetrics(metricsCollector)}
	if options.entropy != nil {
		if _, err := io.ReadFull(options.entropy, make([]byte, 1)); err != nil {
			return nil, fmt.Errorf("%w: entropy source: %w", ErrInvalidConfig, err)
		}
		rng = bigrand.New(options.entropy)
		samplerOpts = append(samplerOpts, checkwork.WithEntropy(options.entropy))
	}

	cfg.ValidateWithWarnings(loggerInstance)

	p := &Pool{
		cfg:     *cfg,
		store:   st,
		lock:    l,
		cache:   options.cache,
		source:  src,
		deriver: deriver,
		sampler: checkwork.NewSampler(samplerOpts...),
		rng:     rng,
		hooks:   hooks.Merge(options.hooks),
		metrics: metricsCollector,
		logger:  loggerInstance,
		clock:   clock,
	}

	// Validate already proved these parse.
	p.minSize, _ = ParseSize(cfg.BlockSize.Min)
	p.maxSize, _ = ParseSize(cfg.BlockSize.Max)
	if cfg.BlockSize.HardCap != "" {
		p.hardCap, _ = ParseSize(cfg.BlockSize.HardCap)
	}

	alloc, err := allocator.New(st, l, allocator.Config{
		UniquenessAttempts: cfg.Allocation.UniquenessAttempts,
		PersistAttempts:    cfg.Allocation.PersistAttempts,
		ExpiredScanLimit:   cfg.Allocation.ExpiredScanLimit,
		AssignmentTTL:      cfg.AssignmentTTL,
		Lock: lock.Options{
			MaxWait:      cfg.Lock.MaxWait,
			PollInterval: cfg.Lock.PollInterval,
			PollJitter:   cfg.Lock.PollJitter,
		},
	},
		allocator.WithLogger(loggerInstance),
		allocator.WithMetrics(metricsCollector),
		allocator.WithClock(clock),
		allocator.WithRandom(rng),
	)
	if err != nil {
		return nil, err
	}
	p.alloc = alloc

	p.sweeper = sweeper.New(st, cfg.SweepInterval,
		sweeper.WithClock(clock),
		sweeper.WithLogger(loggerInstance),
		sweeper.WithMetrics(metricsCollector),
		sweeper.WithTimeout(cfg.OperationTimeout),
		sweeper.WithOnSwept(p.onSwept),
	)

	return p, nil
}

// Start runs an initial expiry sweep and starts the periodic one.
//
// Returns:
//   - error: ErrAlreadyStarted, or the error of the initial sweep
func (p *Pool) Start(ctx context.Context) error {
	if err := p.sweeper.Start(ctx); err != nil {
		if errors.Is(err, sweeper.ErrAlreadyStarted) {
			return ErrAlreadyStarted
		}

		return err
	}

	p.logger.Info("pool started", "sweep_interval", p.cfg.SweepInterval)

	return nil
}

// Stop halts the periodic sweep and waits for in-flight hooks.
//
// Hooks fired by a pool that was never started are awaited as well.
//
// Returns:
//   - error: ErrNotStarted if Start was never called
func (p *Pool) Stop() error {
	err := p.sweeper.Stop()
	p.hookWG.Wait()
	if err != nil {
		if errors.Is(err, sweeper.ErrNotStarted) {
			return ErrNotStarted
		}

		return err
	}

	p.logger.Info("pool stopped")

	return nil
}

// Allocate always assigns a new block, even if the owner already holds one.
//
// Parameters:
//   - ctx: Context for cancellation
//   - req: Owner, optional size, custom interval and reuse policy
//
// Returns:
//   - *Block: The new block with its checkwork identifiers
//   - error: ErrLockTimeout and ErrAllocationFailed are retryable;
//     ErrKeyspaceExhausted, ErrInvalidRange, ErrOwnerRequired are not
func (p *Pool) Allocate(ctx context.Context, req AllocateRequest) (*Block, error) {
	if req.Owner == "" {
		return nil, ErrOwnerRequired
	}

	puzzle, err := p.source.Puzzle(ctx)
	if err != nil {
		return nil, fmt.Errorf("load puzzle: %w", err)
	}

	size, err := p.ResolveSize(req.Size, puzzle.Keyspace)
	if err != nil {
		return nil, err
	}

	res, err := p.alloc.Allocate(ctx, puzzle.Keyspace, allocator.Request{
		Owner:       req.Owner,
		WorkerID:    req.WorkerID,
		Size:        size,
		Custom:      req.Custom,
		ForceRandom: req.ForceRandom,
	})
	if err != nil {
		return nil, err
	}
	a := res.Assignment

	points, err := p.sampler.Generate(a.Interval, p.cfg.CheckworkCount, p.deriver)
	if err == nil && len(points) == 0 {
		err = fmt.Errorf("%w: no derivable checkwork point in %s", ErrInvalidRange, a.Interval)
	}
	if err != nil {
		p.abandon(ctx, a)
		return nil, fmt.Errorf("generate checkwork: %w", err)
	}

	ids := checkwork.Identifiers(points)
	if err := p.store.SetSampleIdentifiers(ctx, a.ID, ids); err != nil {
		p.abandon(ctx, a)
		return nil, fmt.Errorf("store checkwork identifiers: %w", err)
	}
	a.SampleIdentifiers = ids

	p.remember(ctx, a)
	p.fireHook("block assigned", p.hooks.OnBlockAssigned, a)

	return &Block{Assignment: a, AssignedSize: res.AssignedSize}, nil
}

// Acquire returns the owner's active block, allocating one when there is none.
func (p *Pool) Acquire(ctx context.Context, req AllocateRequest) (*Block, error) {
	a, err := p.Current(ctx, req.Owner, req.WorkerID)
	if err == nil {
		return &Block{Assignment: a, AssignedSize: a.Interval.Len(), Existing: true}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	return p.Allocate(ctx, req)
}

// Current returns the owner's live ACTIVE block.
//
// The cache is consulted first and every hit is confirmed against the store.
// A block found past its deadline is expired on the spot.
//
// Returns:
//   - *Assignment: The active block
//   - error: ErrNotFound when the owner holds no live block
func (p *Pool) Current(ctx context.Context, owner, workerID string) (*Assignment, error) {
	if owner == "" {
		return nil, ErrOwnerRequired
	}

	a, err := p.findActive(ctx, owner, workerID)
	if err != nil {
		return nil, err
	}

	if a.Expired(p.clock.Now()) {
		p.expire(ctx, a)
		return nil, fmt.Errorf("%w: block %s of %s is past its deadline", ErrNotFound, a.ID, owner)
	}

	return a, nil
}

func (p *Pool) findActive(ctx context.Context, owner, workerID string) (*Assignment, error) {
	if p.cache != nil {
		id, ok, err := p.cache.Get(ctx, owner, workerID)
		switch {
		case err != nil:
			p.logger.Warn("active block cache lookup failed", "owner", owner, "error", err)
		case ok:
			a, err := p.store.Get(ctx, id)
			if err == nil && a.Status == StatusActive && store.MatchesOwner(a, owner, workerID) && checkworkIssued(a) {
				return a, nil
			}
			if err != nil && !errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("load cached block: %w", err)
			}
			p.forget(ctx, owner, workerID)
		}
	}

	a, err := p.store.FindActiveByOwner(ctx, owner, workerID)
	if err != nil {
		return nil, err
	}
	if !checkworkIssued(a) {
		return nil, fmt.Errorf("%w: block %s of %s has no checkwork yet", ErrNotFound, a.ID, owner)
	}
	p.remember(ctx, a)

	return a, nil
}

// checkworkIssued reports whether Allocate has stored the block's identifiers.
// Between Create and SetSampleIdentifiers a block is ACTIVE but not yet usable.
func checkworkIssued(a *Assignment) bool {
	return len(a.SampleIdentifiers) > 0
}

// Release gives up the owner's active block. Its interval becomes a reuse
// candidate immediately.
//
// Returns:
//   - *Assignment: The released block
//   - error: ErrNotFound when the owner holds no active block
func (p *Pool) Release(ctx context.Context, owner, workerID string) (*Assignment, error) {
	if owner == "" {
		return nil, ErrOwnerRequired
	}

	a, err := p.findActive(ctx, owner, workerID)
	if err != nil {
		return nil, err
	}

	now := p.clock.Now()
	if err := p.store.UpdateStatus(ctx, a.ID, StatusExpired, now); err != nil {
		return nil, fmt.Errorf("release block %s: %w", a.ID, err)
	}
	p.forget(ctx, owner, workerID)

	a.Status, a.UpdatedAt, a.ExpiresAt = StatusExpired, now, now
	p.metrics.RecordStatusChange(StatusExpired, 1)
	p.logger.Info("block released", "id", a.ID, "owner", owner, "interval", a.Interval.String())
	p.fireHook("block expired", p.hooks.OnBlockExpired, a)

	return a, nil
}

// Submit verifies a worker's scalars against the block's checkwork and
// completes the block when every identifier is covered.
//
// At most Submit.MaxScalars scalars are considered. A keyspace hit is reported
// in the result even when the checkwork does not match.
//
// Returns:
//   - *SubmitResult: Verification details; non-nil alongside ErrCheckworkMismatch
//   - error: ErrInvalidScalar, ErrNotFound, ErrNotOwner, ErrNotActive or ErrCheckworkMismatch
func (p *Pool) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.Owner == "" {
		return nil, ErrOwnerRequired
	}

	raw := req.Scalars
	if len(raw) > p.cfg.Submit.MaxScalars {
		raw = raw[:p.cfg.Submit.MaxScalars]
	}
	scalars, err := parseScalars(raw)
	if err != nil {
		p.metrics.RecordVerification(verifyRejected)
		return nil, err
	}

	a, err := p.submissionTarget(ctx, req)
	if err != nil {
		p.metrics.RecordVerification(verifyRejected)
		return nil, err
	}
	if !checkworkIssued(a) {
		p.metrics.RecordVerification(verifyRejected)
		return nil, fmt.Errorf("%w: block %s has no checkwork issued", ErrCheckworkMismatch, a.ID)
	}

	need := max(1, min(p.cfg.CheckworkCount, len(a.SampleIdentifiers)))
	if len(scalars) < need {
		p.metrics.RecordVerification(verifyRejected)
		return nil, fmt.Errorf("%w: at least %d scalars required, got %d", ErrInvalidScalar, need, len(scalars))
	}

	verdict := checkwork.Verify(p.deriver, a.SampleIdentifiers, scalars)
	res := &SubmitResult{
		Assignment: a,
		Derived:    verdict.Derived,
		Missing:    verdict.Missing,
	}
	p.detectHit(ctx, res, scalars, verdict)

	if !verdict.Accepted() {
		p.metrics.RecordVerification(verifyMismatch)
		p.logger.Warn("checkwork mismatch", "id", a.ID, "owner", req.Owner,
			"matched", verdict.Matched, "missing", len(verdict.Missing))

		if res.KeyspaceHit {
			sol := solutionOf(scalars, 0, res.HitScalar)
			if err := p.store.SetSolution(ctx, a.ID, sol); err != nil {
				p.logger.Error("failed to record keyspace hit", "id", a.ID, "hit", res.HitScalar, "error", err)
			} else {
				a.Solution = &sol
			}
		}

		return res, fmt.Errorf("%w: %d of %d identifiers missing", ErrCheckworkMismatch, len(verdict.Missing), len(a.SampleIdentifiers))
	}

	credits := Credits(a.Interval.Len())
	sol := solutionOf(scalars, credits, res.HitScalar)
	if err := p.store.SetSolution(ctx, a.ID, sol); err != nil {
		p.metrics.RecordVerification(verifyRejected)
		return res, fmt.Errorf("record solution of block %s: %w", a.ID, err)
	}
	a.Solution = &sol

	now := p.clock.Now()
	if err := p.store.UpdateStatus(ctx, a.ID, StatusCompleted, now); err != nil {
		p.metrics.RecordVerification(verifyRejected)
		return res, fmt.Errorf("complete block %s: %w", a.ID, err)
	}
	p.forget(ctx, a.Owner, a.WorkerID)

	a.Status, a.UpdatedAt = StatusCompleted, now
	res.Credits = credits

	p.metrics.RecordVerification(verifyAccepted)
	p.metrics.RecordStatusChange(StatusCompleted, 1)
	p.logger.Info("block completed", "id", a.ID, "owner", a.Owner,
		"interval", a.Interval.String(), "credits", res.Credits)
	p.fireHook("block completed", p.hooks.OnBlockCompleted, a)

	return res, nil
}

func (p *Pool) submissionTarget(ctx context.Context, req SubmitRequest) (*Assignment, error) {
	if req.BlockID == "" {
		return p.findActive(ctx, req.Owner, req.WorkerID)
	}

	a, err := p.store.Get(ctx, req.BlockID)
	if err != nil {
		return nil, err
	}
	if a.Owner != req.Owner {
		return nil, fmt.Errorf("%w: block %s", ErrNotOwner, a.ID)
	}
	if a.Status != StatusActive {
		return nil, fmt.Errorf("%w: block %s is %s", ErrNotActive, a.ID, a.Status)
	}

	return a, nil
}

// detectHit flags the submission when a scalar derives to the puzzle address.
func (p *Pool) detectHit(ctx context.Context, res *SubmitResult, scalars []*big.Int, verdict checkwork.Result) {
	puzzle, err := p.source.Puzzle(ctx)
	if err != nil {
		p.logger.Error("cannot load puzzle for hit detection", "error", err)
		return
	}

	if i := verdict.IndexOf(puzzle.Address); i >= 0 {
		res.KeyspaceHit = true
		res.HitScalar = types.FormatHex64(scalars[i])
		p.logger.Warn("puzzle address found", "puzzle", puzzle.Name, "address", puzzle.Address,
			"owner", res.Assignment.Owner, "block", res.Assignment.ID)
	}
}

func solutionOf(scalars []*big.Int, credits float64, hit string) Solution {
	out := make([]string, len(scalars))
	for i, x := range scalars {
		out[i] = types.FormatHex64(x)
	}

	return Solution{Scalars: out, Credits: credits, HitScalar: hit}
}

func parseScalars(raw []string) ([]*big.Int, error) {
	out := make([]*big.Int, 0, len(raw))
	for i, s := range raw {
		clean := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
		if len(clean) != scalarHexDigits {
			return nil, fmt.Errorf("%w: scalar %d must be %d hex digits", ErrInvalidScalar, i, scalarHexDigits)
		}
		x, err := types.ParseHex(clean)
		if err != nil {
			return nil, fmt.Errorf("scalar %d: %w", i, err)
		}
		out = append(out, x)
	}

	return out, nil
}

// Credits converts a key count to credits: one per 10^12 keys, truncated to
// three decimals.
func Credits(keys *big.Int) float64 {
	milli := new(big.Int).Mul(keys, big.NewInt(1000))
	milli.Quo(milli, keysPerCredit)

	f, _ := new(big.Float).Quo(new(big.Float).SetInt(milli), big.NewFloat(1000)).Float64()

	return f
}

// SweepExpired expires every ACTIVE block past its deadline now, without
// waiting for the periodic sweep.
func (p *Pool) SweepExpired(ctx context.Context) ([]*Assignment, error) {
	return p.sweeper.SweepOnce(ctx)
}

// Sample draws count checkwork points inside iv, for re-verification of a
// block or ad-hoc audits. count <= 0 uses the configured checkwork count.
func (p *Pool) Sample(iv Interval, count int) ([]checkwork.Point, error) {
	if !iv.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRange, iv)
	}
	if count <= 0 {
		count = p.cfg.CheckworkCount
	}

	return p.sampler.Generate(iv, count, p.deriver)
}

// ResolveSize turns a requested size into a block length.
//
// An explicit size is parsed with ParseSize; an empty one is drawn uniformly
// from [BlockSize.Min, BlockSize.Max]. The result is clamped to the hard cap,
// to the keyspace length and to at least 1.
func (p *Pool) ResolveSize(requested string, keyspace Keyspace) (*big.Int, error) {
	var size *big.Int
	if strings.TrimSpace(requested) != "" {
		parsed, err := ParseSize(requested)
		if err != nil {
			return nil, err
		}
		size = parsed
	} else {
		size = p.rng.UniformIn(p.minSize, new(big.Int).Add(p.maxSize, big.NewInt(1)))
	}

	if p.hardCap != nil && size.Cmp(p.hardCap) > 0 {
		size = new(big.Int).Set(p.hardCap)
	}

	return allocator.ClampSize(size, keyspace.MaxRange()), nil
}

// onSwept runs on the sweeper goroutine for every non-empty sweep.
func (p *Pool) onSwept(ctx context.Context, swept []*types.Assignment) {
	for _, a := range swept {
		p.forget(ctx, a.Owner, a.WorkerID)
		p.fireHook("block expired", p.hooks.OnBlockExpired, a)
	}
}

// expire marks a single overdue block EXPIRED.
func (p *Pool) expire(ctx context.Context, a *Assignment) {
	now := p.clock.Now()
	err := p.store.UpdateStatus(ctx, a.ID, StatusExpired, now)
	p.forget(ctx, a.Owner, a.WorkerID)
	if err != nil {
		if !errors.Is(err, ErrNotActive) {
			p.logger.Warn("failed to expire overdue block", "id", a.ID, "error", err)
		}

		return
	}

	a.Status, a.UpdatedAt, a.ExpiresAt = StatusExpired, now, now
	p.metrics.RecordStatusChange(StatusExpired, 1)
	p.fireHook("block expired", p.hooks.OnBlockExpired, a)
}

// abandon expires a block whose setup failed after it was persisted, so its
// interval does not stay reserved until the TTL runs out.
func (p *Pool) abandon(ctx context.Context, a *Assignment) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.OperationTimeout)
	defer cancel()

	if err := p.store.UpdateStatus(cleanupCtx, a.ID, StatusExpired, p.clock.Now()); err != nil {
		p.logger.Error("failed to abandon block", "id", a.ID, "error", err)
	}
}

func (p *Pool) remember(ctx context.Context, a *Assignment) {
	if p.cache == nil {
		return
	}

	ttl := a.ExpiresAt.Sub(p.clock.Now())
	if ttl <= 0 {
		return
	}
	if err := p.cache.Set(ctx, a.Owner, a.WorkerID, a.ID, ttl); err != nil {
		p.logger.Warn("failed to cache active block", "id", a.ID, "error", err)
	}
}

func (p *Pool) forget(ctx context.Context, owner, workerID string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Clear(ctx, owner, workerID); err != nil {
		p.logger.Warn("failed to clear active block cache", "owner", owner, "error", err)
	}
}

// fireHook runs hook on its own goroutine so a slow hook never delays a request.
func (p *Pool) fireHook(name string, hook func(context.Context, *Assignment) error, a *Assignment) {
	snapshot := store.Clone(a)

	p.hookWG.Add(1)
	go func() {
		defer p.hookWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.OperationTimeout)
		defer cancel()

		if err := hook(ctx, snapshot); err != nil {
			p.logger.Error(name+" hook error", "id", snapshot.ID, "error", err)
			_ = p.hooks.OnError(ctx, fmt.Errorf("%s hook: %w", name, err))
		}
	}()
}

// Config returns a copy of the effective configuration.
func (p *Pool) Config() Config {
	return p.cfg
}

// WaitHooks blocks until every hook fired so far has returned.
func (p *Pool) WaitHooks(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.hookWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
