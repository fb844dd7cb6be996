// Package buffer provides a bounded ring buffer used for per-session
// conversation history.
package buffer

import (
	"sync"
)

// RingBuffer is a thread-safe circular buffer that keeps the most recent
// items up to a fixed capacity. When the buffer is full, the oldest item is
// discarded to make room for the new one.
type RingBuffer[T any] struct {
	items    []T
	head     int // index of the oldest item
	count    int
	capacity int
	total    int64 // items ever pushed
	mu       sync.RWMutex
}

// NewRingBuffer creates a new RingBuffer with the specified capacity.
// The capacity must be greater than 0; if not, it defaults to 1.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &RingBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends items in order, discarding the oldest ones once the buffer
// is full.
func (rb *RingBuffer[T]) Push(items ...T) {
	if len(items) == 0 {
		return
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	for _, item := range items {
		tail := (rb.head + rb.count) % rb.capacity
		rb.items[tail] = item
		if rb.count < rb.capacity {
			rb.count++
		} else {
			rb.head = (rb.head + 1) % rb.capacity
		}
		rb.total++
	}
}

// Items returns a copy of all retained items, oldest first.
// The returned slice is safe to use without holding the lock.
func (rb *RingBuffer[T]) Items() []T {
	return rb.Last(rb.capacity)
}

// Last returns a copy of the n most recent items, oldest first.
func (rb *RingBuffer[T]) Last(n int) []T {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n > rb.count {
		n = rb.count
	}
	if n <= 0 {
		return nil
	}

	result := make([]T, n)
	start := rb.head + rb.count - n
	for i := 0; i < n; i++ {
		result[i] = rb.items[(start+i)%rb.capacity]
	}
	return result
}

// Clear removes all items from the buffer. Total is not reset.
func (rb *RingBuffer[T]) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	var zero T
	for i := range rb.items {
		rb.items[i] = zero
	}
	rb.head = 0
	rb.count = 0
}

// Len returns the current number of retained items.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	return rb.count
}

// Total returns the number of items ever pushed.
func (rb *RingBuffer[T]) Total() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	return rb.total
}

// Cap returns the capacity of the buffer.
func (rb *RingBuffer[T]) Cap() int {
	return rb.capacity
}
