package reindexer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/wikisearch/core/search/engine"
)

// =============================================================================
// Test Helpers
// =============================================================================

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

type fakeClock struct {
	ticker   *fakeTicker
	interval time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{ticker: &fakeTicker{ch: make(chan time.Time)}}
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.interval = d
	return c.ticker
}

func (c *fakeClock) tick() {
	c.ticker.ch <- time.Now()
}

// fakeRunner records calls and fails when err is set. When gate is set
// each call blocks until it receives.
type fakeRunner struct {
	calls    atomic.Int32
	inFlight atomic.Int32
	overlap  atomic.Bool
	skipped  atomic.Bool
	gate     chan struct{}

	mu  sync.Mutex
	err error
}

func (r *fakeRunner) Reindex(ctx context.Context, force bool) (engine.ReindexResult, error) {
	if r.inFlight.Add(1) > 1 {
		r.overlap.Store(true)
	}
	defer r.inFlight.Add(-1)
	r.calls.Add(1)

	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return engine.ReindexResult{}, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return engine.ReindexResult{RunID: "run", Skipped: r.skipped.Load(), PageCount: 2, Revision: 3}, r.err
}

func (r *fakeRunner) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// startScheduler runs s in the background and stops it at cleanup.
func startScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	t.Cleanup(func() {
		s.Stop()
		require.NoError(t, <-done)
	})
}

func waitCycles(t *testing.T, s *Scheduler, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Cycles() >= n }, 2*time.Second, time.Millisecond)
}

// =============================================================================
// Scheduler Tests
// =============================================================================

func TestNewScheduler_Defaults(t *testing.T) {
	t.Parallel()

	s, err := NewScheduler(&fakeRunner{}, Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, s.interval)
	assert.Equal(t, StateIdle, s.State())

	_, err = NewScheduler(&fakeRunner{}, Config{Interval: -time.Second}, nil)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestScheduler_RunsAtStartAndOnTick(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	runner := &fakeRunner{}
	s, err := NewScheduler(runner, Config{Interval: time.Minute, Clock: clock}, nil)
	require.NoError(t, err)
	startScheduler(t, s)

	waitCycles(t, s, 1)
	assert.Equal(t, time.Minute, clock.interval)

	clock.tick()
	waitCycles(t, s, 2)
	clock.tick()
	waitCycles(t, s, 3)
	assert.Equal(t, int32(3), runner.calls.Load())
}

func TestScheduler_Trigger(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	s, err := NewScheduler(runner, Config{Clock: newFakeClock()}, nil)
	require.NoError(t, err)
	startScheduler(t, s)
	waitCycles(t, s, 1)

	s.Trigger()
	waitCycles(t, s, 2)
}

func TestScheduler_CyclesNeverOverlap(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	runner := &fakeRunner{gate: make(chan struct{})}
	s, err := NewScheduler(runner, Config{Clock: clock}, nil)
	require.NoError(t, err)
	startScheduler(t, s)

	require.Eventually(t, func() bool { return s.State() == StateReindexing }, time.Second, time.Millisecond)

	s.Trigger()
	s.Trigger()
	s.Trigger()
	runner.gate <- struct{}{}
	runner.gate <- struct{}{}
	waitCycles(t, s, 2)

	require.Eventually(t, func() bool { return s.State() == StateIdle }, time.Second, time.Millisecond)
	assert.Equal(t, int32(2), runner.calls.Load(), "pending triggers are merged")
	assert.False(t, runner.overlap.Load())
}

func TestScheduler_ErrorIsLoggedAndLoopContinues(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	var bufMu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &buf, mu: &bufMu}, &slog.HandlerOptions{Level: slog.LevelDebug}))

	clock := newFakeClock()
	runner := &fakeRunner{}
	runner.setErr(errors.New("wiki unavailable"))
	s, err := NewScheduler(runner, Config{Clock: clock}, logger)
	require.NoError(t, err)
	startScheduler(t, s)

	waitCycles(t, s, 1)
	assert.Error(t, s.Last().Err)

	runner.setErr(nil)
	clock.tick()
	waitCycles(t, s, 2)
	assert.NoError(t, s.Last().Err)

	bufMu.Lock()
	defer bufMu.Unlock()
	assert.Contains(t, buf.String(), "level=WARN msg=\"reindex cycle failed\"")
	assert.Contains(t, buf.String(), "msg=\"reindexed wiki\"")
}

func TestScheduler_SkippedLoggedAtDebug(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	var bufMu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &buf, mu: &bufMu}, &slog.HandlerOptions{Level: slog.LevelDebug}))

	runner := &fakeRunner{}
	runner.skipped.Store(true)
	s, err := NewScheduler(runner, Config{Clock: newFakeClock()}, logger)
	require.NoError(t, err)
	startScheduler(t, s)
	waitCycles(t, s, 1)

	bufMu.Lock()
	defer bufMu.Unlock()
	assert.Contains(t, buf.String(), "level=DEBUG msg=\"index is current\"")
}

func TestScheduler_ContextCancelStopsRun(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s, err := NewScheduler(&fakeRunner{}, Config{Clock: clock}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	waitCycles(t, s, 1)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, clock.ticker.stopped.Load())
}

func TestScheduler_RunTwice(t *testing.T) {
	t.Parallel()

	s, err := NewScheduler(&fakeRunner{}, Config{Clock: newFakeClock()}, nil)
	require.NoError(t, err)
	startScheduler(t, s)
	waitCycles(t, s, 1)

	assert.ErrorIs(t, s.Run(context.Background()), ErrAlreadyRunning)
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "reindexing", StateReindexing.String())
	assert.Equal(t, "unknown", State(9).String())
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
