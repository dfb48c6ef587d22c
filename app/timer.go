package app

import (
	"time"

	"github.com/luma/esplink/clock"
)

// timer is a one-shot deadline measured on a clock.Clock reading.
type timer struct {
	period  time.Duration
	started bool
	at      uint64
}

func (t *timer) start(now uint64) {
	t.started = true
	t.at = now
}

func (t *timer) stop() {
	t.started = false
}

// expired reports whether a started timer has run for longer than its period.
func (t *timer) expired(now uint64) bool {
	return t.started && clock.Expired(now, t.at, t.period)
}
