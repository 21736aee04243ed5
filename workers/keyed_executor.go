// Package workers provides the keyed task executor behind the submission
// pipeline. Tasks for the same key run strictly in order; tasks for
// different keys run in parallel up to a global bound.
package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/veritasvote/veritas-node/log"
)

const (
	// DefaultParallelism bounds how many tasks run at once across all keys.
	DefaultParallelism = 8
	// defaultQueueSize is the per-key task queue capacity. Submit blocks
	// when a key's queue is full, which backpressures rather than grows
	// without bound.
	defaultQueueSize = 64
)

// ErrExecutorClosed is returned by Submit after Stop.
var ErrExecutorClosed = errors.New("executor closed")

// task is one queued unit of work with its completion channel.
type task struct {
	run  func() error
	done chan error
}

// keyQueue serializes the tasks of one key. A single goroutine drains the
// queue, so two tasks with the same key never overlap.
type keyQueue struct {
	tasks chan *task
}

// KeyedExecutor runs tasks grouped by key. Per-key ordering is the
// correctness property the submission pipeline leans on: all appends to one
// question ledger route through the same key, so the ledger's position
// counter and Merkle tree see one writer. The global semaphore only bounds
// resource usage; it never reorders within a key.
type KeyedExecutor struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	queues map[string]*keyQueue
	closed bool

	semaphore chan struct{}
	wg        sync.WaitGroup
}

// NewKeyedExecutor creates an executor with the given global parallelism
// bound. A bound below 1 falls back to DefaultParallelism.
func NewKeyedExecutor(parallelism int) *KeyedExecutor {
	if parallelism < 1 {
		parallelism = DefaultParallelism
	}
	return &KeyedExecutor{
		queues:    make(map[string]*keyQueue),
		semaphore: make(chan struct{}, parallelism),
	}
}

// Start initializes the executor lifecycle.
func (e *KeyedExecutor) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	log.Infow("keyed executor started", "parallelism", cap(e.semaphore))
}

// Stop rejects new submissions and waits for queued tasks to drain.
func (e *KeyedExecutor) Stop() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	for _, q := range e.queues {
		close(q.tasks)
	}
	e.mu.Unlock()

	e.wg.Wait()
	if e.cancel != nil {
		e.cancel()
	}
	log.Infow("keyed executor stopped")
}

// Submit schedules fn under the given key and blocks until it has run,
// returning fn's error. Calls with the same key execute in submission
// order.
func (e *KeyedExecutor) Submit(ctx context.Context, key string, fn func() error) error {
	t := &task{run: fn, done: make(chan error, 1)}
	if err := e.enqueue(ctx, key, t); err != nil {
		return err
	}
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		// the task still runs in order; the caller just stopped waiting
		return ctx.Err()
	}
}

// enqueue places a task on its key's queue. The read lock spans the send so
// Stop cannot close the queue channel between the closed check and the send.
func (e *KeyedExecutor) enqueue(ctx context.Context, key string, t *task) error {
	e.mu.RLock()
	q, ok := e.queues[key]
	if e.closed {
		e.mu.RUnlock()
		return ErrExecutorClosed
	}
	if !ok {
		// upgrade to a write lock to create the queue
		e.mu.RUnlock()
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return ErrExecutorClosed
		}
		q, ok = e.queues[key]
		if !ok {
			q = &keyQueue{tasks: make(chan *task, defaultQueueSize)}
			e.queues[key] = q
			e.wg.Add(1)
			go e.drain(q)
		}
		e.mu.Unlock()
		e.mu.RLock()
		if e.closed {
			e.mu.RUnlock()
			return ErrExecutorClosed
		}
	}
	defer e.mu.RUnlock()
	select {
	case q.tasks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain runs one key's tasks in order, holding a semaphore slot only while
// a task executes.
func (e *KeyedExecutor) drain(q *keyQueue) {
	defer e.wg.Done()
	for t := range q.tasks {
		e.semaphore <- struct{}{}
		start := time.Now()
		err := t.run()
		<-e.semaphore
		if elapsed := time.Since(start); elapsed > time.Second {
			log.Warnw("slow task", "elapsed", elapsed.String())
		}
		t.done <- err
	}
}
