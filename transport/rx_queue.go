package transport

import (
	"sync"

	"github.com/luma/esplink/internal/ring"
)

// RxQueue is the receive buffer shared between the goroutine reading the
// device and the session's poll loop. When it is full the oldest bytes are
// overwritten.
type RxQueue struct {
	mu      sync.Mutex
	buf     *ring.Ring[byte]
	dropped uint64
}

func NewRxQueue(capacity int) *RxQueue {
	return &RxQueue{buf: ring.New[byte](capacity)}
}

// Push appends data and returns the number of older bytes it overwrote.
func (q *RxQueue) Push(data []byte) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	overwritten := 0
	for _, b := range data {
		if !q.buf.Push(b) {
			overwritten++
		}
	}

	q.dropped += uint64(overwritten)

	return overwritten
}

// TryReadByte takes the oldest buffered byte without blocking.
func (q *RxQueue) TryReadByte() (byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.buf.Pop()
}

func (q *RxQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.buf.Len()
}

// Dropped returns the total number of bytes overwritten before being read.
func (q *RxQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.dropped
}

// Write pushes p and never fails, so an RxQueue can stand in for the far end
// of a device.
func (q *RxQueue) Write(p []byte) (int, error) {
	q.Push(p)
	return len(p), nil
}
