// Package clock provides the monotonic microsecond time source the protocol
// engine measures its timeouts against.
package clock

import (
	"sync"
	"time"
)

// Clock reports microseconds since an arbitrary epoch. The value may wrap;
// compare readings with Since, never with < or >.
type Clock interface {
	NowMicros() uint64
}

// Since returns the microseconds elapsed from then to now using wrapping
// subtraction, so a rollover between the two readings still yields the
// correct small difference.
func Since(now, then uint64) uint64 {
	return now - then
}

// Expired reports whether more than timeout microseconds separate then and now.
func Expired(now, then uint64, timeout time.Duration) bool {
	return Since(now, then) > uint64(timeout.Microseconds())
}

// Monotonic reads the host's monotonic clock.
type Monotonic struct {
	start time.Time
}

// NewMonotonic returns a clock whose epoch is the moment of the call.
func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

func (m *Monotonic) NowMicros() uint64 {
	return uint64(time.Since(m.start).Microseconds())
}

// Ticks is a counter advanced by a single producer (a timer interrupt on the
// target, a ticker goroutine on a host) and read by the control loop. All
// access goes through the mutex.
type Ticks struct {
	mu sync.Mutex
	us uint64
}

// NewTicks returns a counter starting at start microseconds.
func NewTicks(start uint64) *Ticks {
	return &Ticks{us: start}
}

// Advance adds d to the counter, wrapping on overflow.
func (t *Ticks) Advance(d time.Duration) {
	t.mu.Lock()
	t.us += uint64(d.Microseconds())
	t.mu.Unlock()
}

// Reset sets the counter back to zero.
func (t *Ticks) Reset() {
	t.mu.Lock()
	t.us = 0
	t.mu.Unlock()
}

func (t *Ticks) NowMicros() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.us
}

// Drive advances t by period on every tick of a time.Ticker until stop is
// closed. It stands in for the hardware overflow interrupt.
func (t *Ticks) Drive(period time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.Advance(period)
		}
	}
}

var _ Clock = (*Monotonic)(nil)
var _ Clock = (*Ticks)(nil)
