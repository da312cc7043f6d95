// Package queue runs pipeline tasks on a bounded worker pool with the retry
// contract applied per task.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kingban00/mining-pipeline/internal/model"
	"github.com/kingban00/mining-pipeline/internal/pipeline"
	"github.com/kingban00/mining-pipeline/internal/resilience"
)

// Queue accepts tasks and reports backlog size.
type Queue interface {
	Enqueue(task model.Task) error
	Pending() int64
}

// Runner processes one task. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, task model.Task) (pipeline.Outcome, error)
}

// Config sizes the pool and sets the per-task retry contract.
type Config struct {
	Workers        int
	Buffer         int
	MaxAttempts    int
	InitialBackoff time.Duration
	AttemptTimeout time.Duration
}

// WorkerPool is an in-process Queue backed by a buffered channel.
type WorkerPool struct {
	runner  Runner
	cfg     Config
	tasks   chan model.Task
	pending atomic.Int64
	wg      sync.WaitGroup
	once    sync.Once
}

// NewWorkerPool creates a pool; call Start before enqueueing.
func NewWorkerPool(runner Runner, cfg Config) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 100
	}
	return &WorkerPool{
		runner: runner,
		cfg:    cfg,
		tasks:  make(chan model.Task, cfg.Buffer),
	}
}

// Start launches the workers. They drain the channel until Shutdown closes it
// or ctx is cancelled.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func(worker int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task, ok := <-p.tasks:
					if !ok {
						return
					}
					p.process(ctx, worker, task)
					p.pending.Add(-1)
				}
			}
		}(i)
	}
	zap.L().Info("worker pool started", zap.Int("workers", p.cfg.Workers))
}

// Enqueue adds a task, failing when the buffer is full rather than blocking
// the submitter.
func (p *WorkerPool) Enqueue(task model.Task) error {
	select {
	case p.tasks <- task:
		p.pending.Add(1)
		return nil
	default:
		return eris.Errorf("queue: buffer full, dropping %q", task.RawName)
	}
}

// Pending returns the number of tasks accepted but not yet finished.
func (p *WorkerPool) Pending() int64 {
	return p.pending.Load()
}

// Shutdown stops intake and waits for in-flight tasks, up to ctx's deadline.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.once.Do(func() { close(p.tasks) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "queue: shutdown timed out")
	}
}

func (p *WorkerPool) process(ctx context.Context, worker int, task model.Task) {
	log := zap.L().With(zap.Int("worker", worker), zap.String("company", task.RawName))
	start := time.Now()

	var outcome pipeline.Outcome
	err := resilience.Do(ctx, resilience.RetryConfig{
		MaxAttempts:    p.cfg.MaxAttempts,
		InitialBackoff: p.cfg.InitialBackoff,
		OnRetry:        resilience.RetryLogger("queue", "process company"),
	}, func(ctx context.Context) error {
		attemptCtx := ctx
		if p.cfg.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.cfg.AttemptTimeout)
			defer cancel()
		}
		var runErr error
		outcome, runErr = p.runner.Run(attemptCtx, task)
		return runErr
	})
	if err != nil {
		log.Error("task failed permanently",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}

	log.Info("task finished",
		zap.String("outcome", outcome.String()),
		zap.Duration("elapsed", time.Since(start)))
}
