// Package worker runs units of work on a fixed set of goroutines fed by a
// bounded queue. Failed units are retried until they succeed, return a
// permanent error, or run out of attempts.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrStopped is returned by Submit once the pool has shut down.
	ErrStopped = errors.New("worker pool stopped")
	// ErrQueueFull is returned by TrySubmit when no queue slot is free.
	ErrQueueFull = errors.New("worker queue full")
)

// Func is a unit of work.
type Func func(ctx context.Context) error

// Observer receives task outcomes. It is optional.
type Observer interface {
	TaskFinished(name string, attempts int, err error)
	QueueDepth(n int)
}

// Options configures a Pool.
type Options struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	RetryDelay  time.Duration
	Observer    Observer
}

type task struct {
	id     string
	name   string
	fn     Func
	future *Future
}

// Pool executes submitted tasks asynchronously.
type Pool struct {
	opts  Options
	queue chan task
	log   *slog.Logger

	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates a Pool. Call Run to start processing.
func New(opts Options, log *slog.Logger) *Pool {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	return &Pool{
		opts:    opts,
		queue:   make(chan task, opts.QueueSize),
		log:     log,
		stopped: make(chan struct{}),
	}
}

// Run starts the workers and blocks until ctx is cancelled. Tasks still in
// the queue at that point are failed with ErrStopped.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.opts.Workers; i++ {
		g.Go(func() error {
			p.work(gctx)
			return nil
		})
	}
	err := g.Wait()

	p.stopOnce.Do(func() { close(p.stopped) })
	p.drain()
	return err
}

// Submit enqueues fn, blocking while the queue is full. The returned Future
// resolves when the task finishes; callers that do not care may drop it.
func (p *Pool) Submit(ctx context.Context, name string, fn Func) (*Future, error) {
	t := p.newTask(name, fn)
	select {
	case <-p.stopped:
		return nil, ErrStopped
	default:
	}
	select {
	case p.queue <- t:
		p.enqueued()
		return t.future, nil
	case <-p.stopped:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TrySubmit enqueues fn without blocking.
func (p *Pool) TrySubmit(name string, fn Func) (*Future, error) {
	t := p.newTask(name, fn)
	select {
	case <-p.stopped:
		return nil, ErrStopped
	default:
	}
	select {
	case p.queue <- t:
		p.enqueued()
		return t.future, nil
	default:
		return nil, ErrQueueFull
	}
}

// enqueued runs after a successful send. A task that lands in the queue after
// Run has drained it is failed here instead of being left unresolved.
func (p *Pool) enqueued() {
	select {
	case <-p.stopped:
		p.drain()
	default:
		p.reportDepth()
	}
}

func (p *Pool) newTask(name string, fn Func) task {
	return task{id: uuid.NewString(), name: name, fn: fn, future: newFuture()}
}

func (p *Pool) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.queue:
			p.reportDepth()
			p.execute(ctx, t)
		}
	}
}

func (p *Pool) execute(ctx context.Context, t task) {
	var err error
	attempt := 0
	for attempt < p.opts.MaxAttempts {
		attempt++
		err = p.runOnce(ctx, t)
		if err == nil || IsPermanent(err) || ctx.Err() != nil {
			break
		}
		if attempt < p.opts.MaxAttempts {
			p.log.Warn("task failed, retrying",
				"task", t.name, "task_id", t.id, "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(p.opts.RetryDelay * time.Duration(attempt)):
			}
		}
	}

	if err != nil {
		p.log.Error("task failed", "task", t.name, "task_id", t.id, "attempts", attempt, "error", err)
	} else {
		p.log.Debug("task done", "task", t.name, "task_id", t.id, "attempts", attempt)
	}
	if p.opts.Observer != nil {
		p.opts.Observer.TaskFinished(t.name, attempt, err)
	}
	t.future.resolve(err)
}

func (p *Pool) runOnce(ctx context.Context, t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("panic: %v\n%s", r, debug.Stack()))
		}
	}()
	return t.fn(ctx)
}

func (p *Pool) drain() {
	for {
		select {
		case t := <-p.queue:
			t.future.resolve(ErrStopped)
		default:
			return
		}
	}
}

func (p *Pool) reportDepth() {
	if p.opts.Observer != nil {
		p.opts.Observer.QueueDepth(len(p.queue))
	}
}
