// Package ring implements a fixed-capacity FIFO that overwrites its oldest
// element when full.
//
// It backs every bounded buffer in esplink: the receive queue shared with the
// serial reader, the classifier's sliding window and the per-client message
// queues. A Ring is not safe for concurrent use; callers that share one across
// goroutines guard it themselves (see transport.RxQueue).
package ring

// Ring is a bounded FIFO with overwrite-oldest semantics.
type Ring[T any] struct {
	items []T
	head  int // next read position
	size  int
}

// New returns a Ring holding at most capacity elements. A capacity below one
// is raised to one.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}

	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v. When the ring is full the oldest element is evicted first
// and Push returns false.
func (r *Ring[T]) Push(v T) bool {
	full := r.size == len(r.items)
	if full {
		r.Pop()
	}

	r.items[(r.head+r.size)%len(r.items)] = v
	r.size++

	return !full
}

// Pop removes and returns the oldest element.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T

	if r.size == 0 {
		return zero, false
	}

	v := r.items[r.head]
	r.items[r.head] = zero
	r.head = (r.head + 1) % len(r.items)
	r.size--

	return v, true
}

// Peek returns the oldest element without removing it.
func (r *Ring[T]) Peek() (T, bool) {
	if r.size == 0 {
		var zero T
		return zero, false
	}

	return r.items[r.head], true
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int {
	return r.size
}

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Full reports whether the next Push evicts.
func (r *Ring[T]) Full() bool {
	return r.size == len(r.items)
}

// Clear drops every element.
func (r *Ring[T]) Clear() {
	var zero T

	for i := range r.items {
		r.items[i] = zero
	}

	r.head = 0
	r.size = 0
}

// AppendTo appends the stored elements, oldest first, to dst and returns the
// extended slice. Passing a reused dst[:0] avoids allocating on hot paths.
func (r *Ring[T]) AppendTo(dst []T) []T {
	for i := 0; i < r.size; i++ {
		dst = append(dst, r.items[(r.head+i)%len(r.items)])
	}

	return dst
}
