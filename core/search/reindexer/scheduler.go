// Package reindexer keeps the index in step with the wiki by running
// revision-gated reindex cycles on a timer and on demand.
package reindexer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adalundhe/wikisearch/core/search/engine"
)

// DefaultInterval is the time between scheduled cycles.
const DefaultInterval = time.Hour

var (
	// ErrInvalidInterval indicates the interval is not positive.
	ErrInvalidInterval = errors.New("interval must be positive")

	// ErrAlreadyRunning indicates Run was called on a running scheduler.
	ErrAlreadyRunning = errors.New("scheduler is already running")
)

// =============================================================================
// Clock
// =============================================================================

// Ticker delivers ticks on C until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

type realClock struct{}

func (realClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// =============================================================================
// State
// =============================================================================

// State is the scheduler's current activity.
type State int32

const (
	StateIdle State = iota
	StateReindexing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReindexing:
		return "reindexing"
	default:
		return "unknown"
	}
}

// Reindexer runs one revision-gated reindex.
type Reindexer interface {
	Reindex(ctx context.Context, force bool) (engine.ReindexResult, error)
}

// Config configures the scheduler.
type Config struct {
	Interval time.Duration // Default: 1h
	Clock    Clock         // Default: wall clock
}

// Cycle records the outcome of the most recent cycle.
type Cycle struct {
	Result engine.ReindexResult
	Err    error
	At     time.Time
}

// =============================================================================
// Scheduler
// =============================================================================

// Scheduler runs a cycle at start, then on every tick and on Trigger.
// Cycles never overlap. Errors are logged and the scheduler waits for the
// next tick.
type Scheduler struct {
	runner   Reindexer
	interval time.Duration
	clock    Clock
	logger   *slog.Logger

	state   atomic.Int32
	running atomic.Bool
	cycles  atomic.Uint64
	trigger chan struct{}

	mu       sync.Mutex
	last     Cycle
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler for runner.
func NewScheduler(runner Reindexer, config Config, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Interval == 0 {
		config.Interval = DefaultInterval
	}
	if config.Interval < 0 {
		return nil, ErrInvalidInterval
	}
	if config.Clock == nil {
		config.Clock = realClock{}
	}
	return &Scheduler{
		runner:   runner,
		interval: config.Interval,
		clock:    config.Clock,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}, nil
}

// Run performs cycles until ctx is cancelled or Stop is called. It
// returns nil on a clean shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	s.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			return nil
		case <-ticker.C():
			s.cycle(ctx)
		case <-s.trigger:
			s.cycle(ctx)
		}
	}
}

// Trigger requests a cycle as soon as the current one finishes. Requests
// made while one is already pending are merged.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Stop ends Run. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// State returns the current state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Cycles returns the number of completed cycles.
func (s *Scheduler) Cycles() uint64 {
	return s.cycles.Load()
}

// Last returns the most recent cycle.
func (s *Scheduler) Last() Cycle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// cycle runs one reindex and returns to idle.
func (s *Scheduler) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.state.Store(int32(StateReindexing))
	defer s.state.Store(int32(StateIdle))

	result, err := s.runner.Reindex(ctx, false)

	s.mu.Lock()
	s.last = Cycle{Result: result, Err: err, At: time.Now()}
	s.mu.Unlock()
	s.cycles.Add(1)

	switch {
	case err != nil && ctx.Err() != nil:
		s.logger.Debug("reindex cycle interrupted", "run_id", result.RunID, "error", err)
	case err != nil:
		s.logger.Warn("reindex cycle failed", "run_id", result.RunID, "error", err)
	case result.Skipped:
		s.logger.Debug("index is current", "run_id", result.RunID, "revision", result.Revision)
	default:
		s.logger.Info("reindexed wiki",
			"run_id", result.RunID,
			"pages", result.PageCount,
			"revision", result.Revision,
			"elapsed", result.Elapsed,
		)
	}
}
