// Package workpool provides the bounded task queue route tasks run on.
//
// At most Limit tasks are in flight at once. Submit blocks while the pool is
// full and returns as soon as a slot frees; Drain waits until the queue is
// empty and nothing is running. A failing or panicking task never cancels its
// siblings.
package workpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/vk/ucdpipe/internal/ctxlog"
	"golang.org/x/sync/errgroup"
)

// Task is one unit of work.
type Task func(ctx context.Context) error

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}

// Pool is a bounded worker pool.
type Pool struct {
	ctx     context.Context
	group   errgroup.Group
	limit   int
	onError func(name string, err error)

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	completed   atomic.Int64
}

// New creates a pool running at most limit tasks at once. onError, if not
// nil, is called with every task error, including recovered panics.
func New(ctx context.Context, limit int, onError func(name string, err error)) *Pool {
	if limit < 1 {
		limit = 1
	}
	p := &Pool{ctx: ctx, limit: limit, onError: onError}
	p.group.SetLimit(limit)
	return p
}

// Context returns the context tasks run with.
func (p *Pool) Context() context.Context { return p.ctx }

// Limit returns the maximum number of tasks in flight.
func (p *Pool) Limit() int { return p.limit }

// Submit queues task, blocking until a slot is available.
func (p *Pool) Submit(name string, task Task) {
	p.group.Go(func() error {
		n := p.inFlight.Add(1)
		for {
			m := p.maxInFlight.Load()
			if n <= m || p.maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		defer func() {
			p.inFlight.Add(-1)
			p.completed.Add(1)
		}()

		if err := p.run(name, task); err != nil && p.onError != nil {
			p.onError(name, err)
		}
		// Errors are reported through onError; returning nil keeps the
		// group from recording a first error nobody reads.
		return nil
	})
}

func (p *Pool) run(name string, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(p.ctx).Error("Task panicked.", "task", name, "panic", r)
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return task(p.ctx)
}

// Drain blocks until every submitted task has finished. The pool may be
// reused afterwards.
func (p *Pool) Drain() {
	_ = p.group.Wait()
}

// Stats reports the peak number of concurrent tasks and how many completed.
func (p *Pool) Stats() (maxInFlight, completed int) {
	return int(p.maxInFlight.Load()), int(p.completed.Load())
}
