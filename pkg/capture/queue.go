package capture

import (
	"fmt"
	"log/slog"
	"sync"
)

// Dispatcher runs callbacks on the caller's callback context.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(fn func())

func (f DispatcherFunc) Dispatch(fn func()) { f(fn) }

// Queue is a serial FIFO executor backed by one goroutine. Submissions never
// block; tasks run one at a time in submission order.
type Queue struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	done   chan struct{}
}

// NewQueue starts a queue. Close it to release the goroutine.
func NewQueue(name string, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		name:   name,
		logger: logger.With("queue", name),
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.loop()
	return q
}

// Submit appends fn to the queue.
func (q *Queue) Submit(fn func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("queue %s: %w", q.name, ErrClosed)
	}
	q.tasks = append(q.tasks, fn)
	q.cond.Signal()
	return nil
}

// Dispatch submits fn, running it on a fresh goroutine if the queue is
// already closed so the callback is never lost.
func (q *Queue) Dispatch(fn func()) {
	if err := q.Submit(fn); err != nil {
		go fn()
	}
}

// Sync submits fn and waits for it to finish.
func (q *Queue) Sync(fn func()) error {
	done := make(chan struct{})
	if err := q.Submit(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	<-done
	return nil
}

// Close stops accepting work, lets queued tasks finish and waits for the
// goroutine to exit. Calling Close from a task deadlocks.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		fn := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.run(fn)
	}
}

func (q *Queue) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Task panicked", "panic", r)
		}
	}()
	fn()
}
