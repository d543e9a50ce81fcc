// Package sweeper expires overdue assignments on a fixed interval.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/arloliu/puzzlepool/internal/logging"
	"github.com/arloliu/puzzlepool/internal/metrics"
	"github.com/arloliu/puzzlepool/types"
)

// Common errors for sweeper operations.
var (
	ErrNotStarted     = errors.New("sweeper not started")
	ErrAlreadyStarted = errors.New("sweeper already started")
)

// DefaultInterval is the sweep period used when none is configured.
const DefaultInterval = time.Minute

// SweptFunc receives the assignments expired by one sweep. It runs on the
// sweeper goroutine.
type SweptFunc func(ctx context.Context, swept []*types.Assignment)

// Sweeper periodically transitions ACTIVE assignments past their deadline to EXPIRED.
//
// Expired intervals become reuse candidates for the allocator. Sweeping is
// idempotent, so several processes may run a sweeper against the same store.
type Sweeper struct {
	store    types.AssignmentStore
	interval time.Duration
	timeout  time.Duration
	clock    clockwork.Clock
	logger   types.Logger
	metrics  types.MetricsCollector
	onSwept  SweptFunc

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	ticker  clockwork.Ticker
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithClock sets the clock driving the ticker and the expiry deadline.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Sweeper) { s.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger types.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(s *Sweeper) { s.metrics = m }
}

// WithTimeout bounds each background sweep (default 10s).
func WithTimeout(d time.Duration) Option {
	return func(s *Sweeper) { s.timeout = d }
}

// WithOnSwept registers a callback for every non-empty sweep.
func WithOnSwept(fn SweptFunc) Option {
	return func(s *Sweeper) { s.onSwept = fn }
}

// New creates a sweeper.
//
// Parameters:
//   - store: Assignment store to sweep
//   - interval: Sweep period; <= 0 uses DefaultInterval
//   - opts: Optional clock, logger, metrics, timeout and callback
//
// Returns:
//   - *Sweeper: New sweeper, not yet started
//
// Example:
//
//	sw := sweeper.New(store, time.Minute, sweeper.WithLogger(logger))
//	if err := sw.Start(ctx); err != nil {
//	    return err
//	}
//	defer sw.Stop()
func New(store types.AssignmentStore, interval time.Duration, opts ...Option) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}

	s := &Sweeper{
		store:    store,
		interval: interval,
		timeout:  10 * time.Second,
		clock:    clockwork.NewRealClock(),
		logger:   logging.NewNop(),
		metrics:  metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SweepOnce expires every overdue ACTIVE assignment and returns them.
func (s *Sweeper) SweepOnce(ctx context.Context) ([]*types.Assignment, error) {
	start := s.clock.Now()
	swept, err := s.store.SweepExpired(ctx, start)
	s.metrics.RecordStoreOperationDuration("sweep", s.clock.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("sweep expired assignments: %w", err)
	}

	if len(swept) > 0 {
		s.metrics.RecordStatusChange(types.StatusExpired, len(swept))
		s.logger.Info("expired overdue blocks", "count", len(swept))
		if s.onSwept != nil {
			s.onSwept(ctx, swept)
		}
	}

	return swept, nil
}

// Start sweeps once immediately, then on every tick until Stop is called.
//
// Returns:
//   - error: ErrAlreadyStarted if running, or the error of the initial sweep
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	if _, err := s.SweepOnce(ctx); err != nil {
		return fmt.Errorf("initial sweep: %w", err)
	}

	s.started = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.ticker = s.clock.NewTicker(s.interval)

	go s.loop(s.ticker, s.stopCh, s.doneCh)

	return nil
}

// Stop halts the background loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrNotStarted
	}

	s.ticker.Stop()
	close(s.stopCh)
	s.started = false
	done := s.doneCh
	s.mu.Unlock()

	<-done

	return nil
}

// IsStarted reports whether the background loop is running.
func (s *Sweeper) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.started
}

func (s *Sweeper) loop(ticker clockwork.Ticker, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.Chan():
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Warn("sweep failed", "error", err)
			}
			cancel()
		}
	}
}
