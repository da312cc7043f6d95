package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingban00/mining-pipeline/internal/model"
	"github.com/kingban00/mining-pipeline/internal/pipeline"
	"github.com/kingban00/mining-pipeline/internal/resilience"
)

type stubRunner struct {
	mu       sync.Mutex
	calls    map[string]int
	failFor  map[string]int // fail the first N calls for a name
	failWith error
	done     chan string
}

func newStubRunner() *stubRunner {
	return &stubRunner{
		calls:   make(map[string]int),
		failFor: make(map[string]int),
		done:    make(chan string, 100),
	}
}

func (s *stubRunner) Run(_ context.Context, task model.Task) (pipeline.Outcome, error) {
	s.mu.Lock()
	s.calls[task.RawName]++
	n := s.calls[task.RawName]
	remaining := s.failFor[task.RawName]
	err := s.failWith
	s.mu.Unlock()

	if n <= remaining {
		return 0, err
	}
	s.done <- task.RawName
	return pipeline.Completed, nil
}

func (s *stubRunner) callCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func testPool(runner Runner) *WorkerPool {
	return NewWorkerPool(runner, Config{
		Workers:        2,
		Buffer:         10,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		AttemptTimeout: time.Second,
	})
}

func TestWorkerPool_ProcessesTasks(t *testing.T) {
	runner := newStubRunner()
	pool := testPool(runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	for _, name := range []string{"Vale", "Rio Tinto", "BHP"} {
		require.NoError(t, pool.Enqueue(model.Task{RawName: name}))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	require.NoError(t, pool.Shutdown(shutdownCtx))

	assert.Equal(t, 1, runner.callCount("Vale"))
	assert.Equal(t, 1, runner.callCount("Rio Tinto"))
	assert.Equal(t, 1, runner.callCount("BHP"))
	assert.Zero(t, pool.Pending())
}

func TestWorkerPool_RetriesTransientFailures(t *testing.T) {
	runner := newStubRunner()
	runner.failFor["Vale"] = 2
	runner.failWith = resilience.NewTransientError(assert.AnError, 503)
	pool := testPool(runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	require.NoError(t, pool.Enqueue(model.Task{RawName: "Vale"}))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	require.NoError(t, pool.Shutdown(shutdownCtx))

	assert.Equal(t, 3, runner.callCount("Vale"), "two transient failures then success")
}

func TestWorkerPool_GivesUpAfterMaxAttempts(t *testing.T) {
	runner := newStubRunner()
	runner.failFor["Vale"] = 10
	runner.failWith = resilience.NewTransientError(assert.AnError, 503)
	pool := testPool(runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	require.NoError(t, pool.Enqueue(model.Task{RawName: "Vale"}))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	require.NoError(t, pool.Shutdown(shutdownCtx))

	assert.Equal(t, 3, runner.callCount("Vale"))
	assert.Zero(t, pool.Pending(), "failed tasks still clear the backlog")
}

func TestWorkerPool_NoRetryOnPermanentFailure(t *testing.T) {
	runner := newStubRunner()
	runner.failFor["Vale"] = 10
	runner.failWith = assert.AnError
	pool := testPool(runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	require.NoError(t, pool.Enqueue(model.Task{RawName: "Vale"}))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	require.NoError(t, pool.Shutdown(shutdownCtx))

	assert.Equal(t, 1, runner.callCount("Vale"))
}

func TestWorkerPool_EnqueueFullBuffer(t *testing.T) {
	runner := newStubRunner()
	pool := NewWorkerPool(runner, Config{Workers: 1, Buffer: 1, MaxAttempts: 1})

	// Not started: the single buffer slot fills and the next enqueue fails.
	require.NoError(t, pool.Enqueue(model.Task{RawName: "A"}))
	err := pool.Enqueue(model.Task{RawName: "B"})
	require.Error(t, err)
	assert.Equal(t, int64(1), pool.Pending())
}

type blockingRunner struct {
	started atomic.Int64
	release chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context, _ model.Task) (pipeline.Outcome, error) {
	b.started.Add(1)
	select {
	case <-b.release:
		return pipeline.Completed, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func TestWorkerPool_PendingTracksBacklog(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	pool := NewWorkerPool(runner, Config{Workers: 1, Buffer: 10, MaxAttempts: 1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	require.NoError(t, pool.Enqueue(model.Task{RawName: "A"}))
	require.NoError(t, pool.Enqueue(model.Task{RawName: "B"}))

	require.Eventually(t, func() bool { return runner.started.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), pool.Pending())

	close(runner.release)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	require.NoError(t, pool.Shutdown(shutdownCtx))
	assert.Zero(t, pool.Pending())
}
