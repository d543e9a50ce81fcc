// Package natskv implements types.AssignmentStore on a NATS JetStream KV bucket.
//
// Layout (one bucket, no TTL):
//
//	asgn.<id>                 JSON-encoded types.Assignment
//	range.<start64>-<end64>   id of the ACTIVE or COMPLETED holder of that exact interval
//
// The range key is written with an atomic Create before the record, which is
// what enforces uniqueness across processes. Expiring an assignment deletes
// its range key so the interval can be handed out again. Record updates use
// revision-checked Update, retried on conflict.
package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/puzzlepool/internal/logging"
	"github.com/arloliu/puzzlepool/internal/natsutil"
	"github.com/arloliu/puzzlepool/internal/store"
	"github.com/arloliu/puzzlepool/types"
)

const (
	recordPrefix = "asgn."
	rangePrefix  = "range."

	// maxCASAttempts bounds revision-conflict retries of a single record update.
	maxCASAttempts = 8

	// DefaultClaimGrace is how old a range key without a record must be before
	// another Create may take it over.
	DefaultClaimGrace = 30 * time.Second
)

// Store is an AssignmentStore on a JetStream KV bucket.
type Store struct {
	kv         jetstream.KeyValue
	clock      clockwork.Clock
	logger     types.Logger
	claimGrace time.Duration
}

// Compile-time assertion that Store implements AssignmentStore.
var _ types.AssignmentStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger types.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithClock sets the clock used to age orphaned range keys.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) { s.clock = clock }
}

// WithClaimGrace sets how long an orphaned range key (one whose record was
// never written) blocks its interval. Defaults to DefaultClaimGrace.
func WithClaimGrace(d time.Duration) Option {
	return func(s *Store) { s.claimGrace = d }
}

// New creates a store on kv. The bucket must not have a TTL.
//
// Example:
//
//	kv, _ := kvutil.EnsureKVBucketWithRetry(ctx, js, jetstream.KeyValueConfig{
//	    Bucket:  "puzzlepool-assignments",
//	    Storage: jetstream.FileStorage,
//	}, 3)
//	st := natskv.New(kv, natskv.WithLogger(logger))
func New(kv jetstream.KeyValue, opts ...Option) *Store {
	s := &Store{
		kv:         kv,
		clock:      clockwork.NewRealClock(),
		logger:     logging.NewNop(),
		claimGrace: DefaultClaimGrace,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func recordKey(id string) string { return recordPrefix + id }

func rangeKey(iv types.Interval) string { return rangePrefix + iv.Key() }

// scan loads every assignment record and passes it to fn.
//
// Records are read through a watcher on the record prefix, which delivers the
// latest value of every key followed by a nil marker.
func (s *Store) scan(ctx context.Context, fn func(a *types.Assignment)) error {
	w, err := s.kv.Watch(ctx, recordPrefix+"*", jetstream.IgnoreDeletes())
	if err != nil {
		if types.IsNoKeysFoundError(err) {
			return nil
		}

		return natsutil.Wrap("watch assignment records", err)
	}
	defer func() { _ = w.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-w.Updates():
			if !ok || entry == nil {
				return nil
			}

			var a types.Assignment
			if err := json.Unmarshal(entry.Value(), &a); err != nil {
				s.logger.Warn("skipping malformed assignment record", "key", entry.Key(), "error", err)
				continue
			}
			fn(&a)
		}
	}
}

// FindReservedIntervals returns ACTIVE and COMPLETED intervals intersecting the keyspace.
func (s *Store) FindReservedIntervals(ctx context.Context, keyspace types.Keyspace) ([]types.Interval, error) {
	ks := keyspace.Interval()

	var out []types.Interval
	err := s.scan(ctx, func(a *types.Assignment) {
		if a.Status.Reserved() && a.Interval.Overlaps(ks) {
			out = append(out, a.Interval)
		}
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// FindExpiredIntervals returns EXPIRED intervals stalest first.
func (s *Store) FindExpiredIntervals(ctx context.Context, keyspace types.Keyspace, limit int) ([]types.Interval, error) {
	var expired []*types.Assignment
	err := s.scan(ctx, func(a *types.Assignment) {
		if a.Status == types.StatusExpired {
			expired = append(expired, a)
		}
	})
	if err != nil {
		return nil, err
	}

	return store.StalestIntervals(expired, keyspace, limit), nil
}

// ExistsExact reports whether a reserved assignment holds exactly iv.
//
// A range key whose holder is gone or no longer reserved is ignored.
func (s *Store) ExistsExact(ctx context.Context, iv types.Interval) (bool, error) {
	_, holder, err := s.rangeHolder(ctx, iv)
	if err != nil {
		return false, err
	}

	return holder != nil && holder.Status.Reserved(), nil
}

// rangeHolder returns the range key entry for iv and the assignment it
// references. A missing key yields (nil, nil, nil); an orphaned key yields
// (entry, nil, nil).
func (s *Store) rangeHolder(ctx context.Context, iv types.Interval) (jetstream.KeyValueEntry, *types.Assignment, error) {
	entry, err := s.kv.Get(ctx, rangeKey(iv))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil, nil
		}

		return nil, nil, natsutil.Wrap("get range key", err)
	}

	a, _, err := s.load(ctx, string(entry.Value()))
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return entry, nil, nil
		}

		return nil, nil, err
	}

	return entry, a, nil
}

// claimRange takes iv's range key for id.
//
// A key pointing at an EXPIRED holder, or an orphan older than the claim
// grace left by a crashed Create, is taken over with a revision-checked
// Update. Younger orphans belong to a Create still in flight.
func (s *Store) claimRange(ctx context.Context, iv types.Interval, id string) error {
	key := rangeKey(iv)

	_, err := s.kv.Create(ctx, key, []byte(id))
	if err == nil {
		return nil
	}
	if !errors.Is(err, jetstream.ErrKeyExists) {
		return natsutil.Wrap("create range key", err)
	}

	entry, holder, err := s.rangeHolder(ctx, iv)
	if err != nil {
		return err
	}
	if entry == nil {
		// deleted between Create and Get; let the caller's retry pick it up
		return fmt.Errorf("%w: %s", types.ErrUniqueViolation, iv)
	}

	switch {
	case holder != nil && holder.Status.Reserved():
		return fmt.Errorf("%w: %s", types.ErrUniqueViolation, iv)
	case holder == nil && s.clock.Since(entry.Created()) < s.claimGrace:
		return fmt.Errorf("%w: %s (claim in flight)", types.ErrUniqueViolation, iv)
	}

	if _, err := s.kv.Update(ctx, key, []byte(id), entry.Revision()); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("%w: %s", types.ErrUniqueViolation, iv)
		}

		return natsutil.Wrap("repair range key", err)
	}
	s.logger.Debug("took over stale range key", "interval", iv.String(), "id", id)

	return nil
}

// releaseRange deletes iv's range key if it still points at id.
func (s *Store) releaseRange(ctx context.Context, iv types.Interval, id string) error {
	entry, err := s.kv.Get(ctx, rangeKey(iv))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil
		}

		return natsutil.Wrap("get range key", err)
	}
	if string(entry.Value()) != id {
		return nil
	}

	err = s.kv.Delete(ctx, rangeKey(iv), jetstream.LastRevision(entry.Revision()))
	if err != nil && !errors.Is(err, jetstream.ErrKeyExists) && !strings.Contains(err.Error(), "wrong last sequence") {
		return natsutil.Wrap("delete range key", err)
	}

	return nil
}

// Create persists a new ACTIVE assignment.
func (s *Store) Create(ctx context.Context, na types.NewAssignment) (*types.Assignment, error) {
	if err := store.ValidateNew(na); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate assignment id: %w", err)
	}
	a := store.Build(id.String(), na)

	if err := s.claimRange(ctx, a.Interval, a.ID); err != nil {
		return nil, err
	}

	data, err := json.Marshal(a)
	if err != nil {
		_ = s.releaseRange(ctx, a.Interval, a.ID)
		return nil, fmt.Errorf("encode assignment: %w", err)
	}

	if _, err := s.kv.Create(ctx, recordKey(a.ID), data); err != nil {
		if rerr := s.releaseRange(ctx, a.Interval, a.ID); rerr != nil {
			s.logger.Warn("failed to roll back range key", "id", a.ID, "error", rerr)
		}

		return nil, natsutil.Wrap("create assignment record", err)
	}

	return a, nil
}

// load returns the decoded record and its revision.
func (s *Store) load(ctx context.Context, id string) (*types.Assignment, uint64, error) {
	entry, err := s.kv.Get(ctx, recordKey(id))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, 0, fmt.Errorf("%w: %s", types.ErrNotFound, id)
		}

		return nil, 0, natsutil.Wrap("get assignment record", err)
	}

	var a types.Assignment
	if err := json.Unmarshal(entry.Value(), &a); err != nil {
		return nil, 0, fmt.Errorf("decode assignment %s: %w", id, err)
	}

	return &a, entry.Revision(), nil
}

// Get returns the assignment.
func (s *Store) Get(ctx context.Context, id string) (*types.Assignment, error) {
	a, _, err := s.load(ctx, id)
	return a, err
}

// FindActiveByOwner returns the owner's newest ACTIVE assignment.
func (s *Store) FindActiveByOwner(ctx context.Context, owner, workerID string) (*types.Assignment, error) {
	var mine []*types.Assignment
	err := s.scan(ctx, func(a *types.Assignment) {
		if a.Status == types.StatusActive && store.MatchesOwner(a, owner, workerID) {
			mine = append(mine, a)
		}
	})
	if err != nil {
		return nil, err
	}

	if best := store.Newest(mine); best != nil {
		return best, nil
	}

	return nil, fmt.Errorf("%w: no active block for %s", types.ErrNotFound, owner)
}

// mutate applies fn to the current record with optimistic concurrency.
//
// fn returns the new record, or nil to leave the record untouched.
func (s *Store) mutate(ctx context.Context, id string, fn func(cur *types.Assignment) (*types.Assignment, error)) (*types.Assignment, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		cur, rev, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}

		next, err := fn(cur)
		if err != nil || next == nil {
			return nil, err
		}

		data, err := json.Marshal(next)
		if err != nil {
			return nil, fmt.Errorf("encode assignment: %w", err)
		}

		if _, err := s.kv.Update(ctx, recordKey(id), data, rev); err != nil {
			if errors.Is(err, jetstream.ErrKeyExists) {
				s.logger.Debug("assignment revision conflict, retrying", "id", id, "attempt", attempt+1)
				continue
			}

			return nil, natsutil.Wrap("update assignment record", err)
		}

		return next, nil
	}

	return nil, fmt.Errorf("update assignment %s: too many concurrent modifications", id)
}

// UpdateStatus transitions an ACTIVE assignment.
func (s *Store) UpdateStatus(ctx context.Context, id string, status types.Status, now time.Time) error {
	_, err := s.transition(ctx, id, status, now, nil)
	return err
}

func (s *Store) transition(ctx context.Context, id string, status types.Status, now time.Time, guard func(*types.Assignment) bool) (*types.Assignment, error) {
	updated, err := s.mutate(ctx, id, func(cur *types.Assignment) (*types.Assignment, error) {
		if guard != nil && !guard(cur) {
			return nil, nil
		}
		if err := store.CheckTransition(id, cur.Status, status); err != nil {
			return nil, err
		}

		return store.ApplyStatus(cur, status, now), nil
	})
	if err != nil || updated == nil {
		return nil, err
	}

	if status == types.StatusExpired {
		if err := s.releaseRange(ctx, updated.Interval, updated.ID); err != nil {
			// The dangling key is repaired by the next claimRange on this interval.
			s.logger.Warn("failed to release range key", "id", id, "error", err)
		}
	}

	return updated, nil
}

// SetSampleIdentifiers replaces the checkwork identifiers of an assignment.
func (s *Store) SetSampleIdentifiers(ctx context.Context, id string, identifiers []string) error {
	_, err := s.mutate(ctx, id, func(cur *types.Assignment) (*types.Assignment, error) {
		next := store.Clone(cur)
		next.SampleIdentifiers = append([]string(nil), identifiers...)

		return next, nil
	})

	return err
}

// SetSolution records the submission of an assignment.
func (s *Store) SetSolution(ctx context.Context, id string, solution types.Solution) error {
	_, err := s.mutate(ctx, id, func(cur *types.Assignment) (*types.Assignment, error) {
		next := store.Clone(cur)
		next.Solution = solution.Clone()

		return next, nil
	})

	return err
}

// SweepExpired expires every ACTIVE assignment past its deadline.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) ([]*types.Assignment, error) {
	var due []string
	err := s.scan(ctx, func(a *types.Assignment) {
		if a.Expired(now) {
			due = append(due, a.ID)
		}
	})
	if err != nil {
		return nil, err
	}

	swept := make([]*types.Assignment, 0, len(due))
	for _, id := range due {
		a, err := s.transition(ctx, id, types.StatusExpired, now, func(cur *types.Assignment) bool {
			return cur.Expired(now)
		})
		if err != nil {
			if errors.Is(err, types.ErrNotActive) || errors.Is(err, types.ErrNotFound) {
				continue
			}

			return swept, err
		}
		if a != nil {
			swept = append(swept, a)
		}
	}

	return swept, nil
}
