// ABOUTME: Blocking FIFO rendezvous queue guarded by a mutex and condition variable
// ABOUTME: Push never blocks beyond the mutex; Take blocks until an item or shutdown
package exchange

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	// ErrClosed is returned by Push after shutdown
	ErrClosed = errors.New("exchange: queue closed")
	// ErrDuplicate is returned by Push when the item's key is already queued
	ErrDuplicate = errors.New("exchange: key already queued")
)

// Queue is a FIFO of T. With a key function it refuses to hold two items
// with the same key at once.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	keyOf  func(T) int
	queued map[int]struct{}
	closed bool
}

// NewQueue creates an unkeyed queue
func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// NewKeyedQueue creates a queue that rejects duplicate keys
func NewKeyedQueue[T any](keyOf func(T) int) *Queue[T] {
	q := NewQueue[T]()
	q.keyOf = keyOf
	q.queued = make(map[int]struct{})
	return q
}

// Push appends v and wakes one waiter
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if q.keyOf != nil {
		k := q.keyOf(v)
		if _, dup := q.queued[k]; dup {
			return errors.Wrapf(ErrDuplicate, "key %d", k)
		}
		q.queued[k] = struct{}{}
	}
	q.items = append(q.items, v)
	q.cond.Signal()
	return nil
}

// Take blocks until an item is available or the queue is closed.
// It returns false only on shutdown.
func (q *Queue[T]) Take() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// TryTake pops the front item without blocking
func (q *Queue[T]) TryTake() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 || q.closed {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

func (q *Queue[T]) popLocked() T {
	v := q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	if q.keyOf != nil {
		delete(q.queued, q.keyOf(v))
	}
	return v
}

// Clear discards every queued item and returns how many were dropped
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.clearLocked()
}

func (q *Queue[T]) clearLocked() int {
	n := len(q.items)
	q.items = nil
	if q.keyOf != nil {
		q.queued = make(map[int]struct{})
	}
	return n
}

// Close marks the queue shut down, drops its contents and wakes every waiter
func (q *Queue[T]) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	n := q.clearLocked()
	q.cond.Broadcast()
	return n
}

// Reopen clears the shutdown flag so the queue can be used again
func (q *Queue[T]) Reopen() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = false
}

// Closed reports whether the queue is shut down
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued items
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
