// Package tasks runs submitted functions on a fixed set of workers and hands
// back futures for their results.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrQueueFull is returned by Submit when no queue slot is free.
var ErrQueueFull = errors.New("task queue is full")

// ErrStopped is returned by Submit after Stop, and by Wait for tasks that never ran.
var ErrStopped = errors.New("task pool stopped")

// Func is the body of a task. It receives the arguments passed to Submit.
type Func func(ctx context.Context, args ...any) (any, error)

type task struct {
	description string
	fn          Func
	args        []any
	future      *Future
}

// Future is the handle of a submitted task.
type Future struct {
	id          string
	description string
	done        chan struct{}
	value       any
	err         error
}

// ID returns the task id.
func (f *Future) ID() string { return f.id }

// Description returns the description given to Submit.
func (f *Future) Description() string { return f.description }

// Done is closed once the task has finished.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the task finishes or ctx is done.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) resolve(value any, err error) {
	f.value, f.err = value, err
	close(f.done)
}

// Pool dispatches tasks across workers.
type Pool struct {
	log      *zap.Logger
	queue    chan task
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	mu       sync.RWMutex
	stopped  bool
	stopOnce sync.Once
}

// New starts a pool with the given number of workers. The queue holds twice
// as many pending tasks.
func New(ctx context.Context, workers int, log *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		log:    log,
		queue:  make(chan task, workers*2),
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	return p
}

// Submit queues fn(args...) and returns its future.
func (p *Pool) Submit(description string, fn Func, args ...any) (*Future, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return nil, ErrStopped
	}

	f := &Future{id: uuid.NewString(), description: description, done: make(chan struct{})}
	select {
	case p.queue <- task{description: description, fn: fn, args: args, future: f}:
		p.log.Debug("task queued", zap.String("task", f.id), zap.String("description", description))
		return f, nil
	default:
		return nil, ErrQueueFull
	}
}

// Stop cancels running tasks, fails queued ones with ErrStopped and waits for
// the workers to exit.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()

		p.cancel()
		close(p.queue)
		p.wg.Wait()
		for t := range p.queue {
			t.future.resolve(nil, ErrStopped)
		}
	})
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-p.queue:
			if !ok {
				return
			}
			p.run(ctx, id, t)
		}
	}
}

func (p *Pool) run(ctx context.Context, worker int, t task) {
	log := p.log.With(zap.String("task", t.future.id), zap.String("description", t.description), zap.Int("worker", worker))
	if err := ctx.Err(); err != nil {
		t.future.resolve(nil, ErrStopped)
		return
	}
	log.Debug("task started")
	start := time.Now()

	value, err := call(ctx, t)
	if err != nil {
		log.Error("task failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
	} else {
		log.Debug("task completed", zap.Duration("elapsed", time.Since(start)))
	}
	t.future.resolve(value, err)
}

func call(ctx context.Context, t task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.description, r)
		}
	}()
	return t.fn(ctx, t.args...)
}
