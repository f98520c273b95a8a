// Package writequeue serializes mutating operations per entity id.
//
// Operations enqueued for the same key run strictly in submission order and
// never overlap; operations for different keys interleave freely. A failed
// operation does not prevent its successors from running; the failure is
// returned only to its own caller.
package writequeue

import (
	"context"
	"sync"
)

// Queue maintains one tail continuation per key. Each new operation chains
// after the current tail regardless of the tail's outcome; the map entry is
// dropped as soon as it no longer points at the most recently submitted
// operation, so memory stays bounded by the number of keys with in-flight
// work. There is no queue-depth limit: a pathological write burst for one
// key grows the chain of waiting goroutines.
type Queue struct {
	mu    sync.Mutex
	tails map[string]*op
}

type op struct {
	done chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{tails: make(map[string]*op)}
}

// Enqueue submits fn for key and blocks until it has run, returning fn's own
// error. The wait for predecessors is unconditional: once submitted, an
// operation always executes, preserving the ordering guarantee even when the
// caller's ctx is cancelled (fn itself should honor ctx).
func (q *Queue) Enqueue(ctx context.Context, key string, fn func(context.Context) error) error {
	return <-q.submit(ctx, key, fn)
}

// submit registers fn behind the current tail for key and returns a channel
// that receives fn's result. Registration happens before submit returns, so
// successive calls from one goroutine define the execution order.
func (q *Queue) submit(ctx context.Context, key string, fn func(context.Context) error) <-chan error {
	cur := &op{done: make(chan struct{})}

	q.mu.Lock()
	prev := q.tails[key]
	q.tails[key] = cur
	q.mu.Unlock()

	res := make(chan error, 1)
	go func() {
		if prev != nil {
			<-prev.done
		}

		err := fn(ctx)
		close(cur.done)

		q.mu.Lock()
		if q.tails[key] == cur {
			delete(q.tails, key)
		}
		q.mu.Unlock()

		res <- err
	}()
	return res
}

// PendingKeys returns the number of keys with an in-flight or queued
// operation. Used by tests and diagnostics.
func (q *Queue) PendingKeys() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tails)
}
