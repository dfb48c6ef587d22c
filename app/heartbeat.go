package app

import "time"

const (
	HeartbeatToggle = 100 * time.Millisecond
	HeartbeatPause  = 800 * time.Millisecond

	heartbeatToggles = 4
)

// Heartbeat blinks an LED: four toggles 100ms apart, then an 800ms pause.
// Reset restarts the pattern with the LED lit; until then the LED stays off.
type Heartbeat struct {
	led Switch
	on  bool

	toggle  timer
	pause   timer
	toggles int
}

func NewHeartbeat(led Switch) *Heartbeat {
	led.Set(false)

	return &Heartbeat{
		led:    led,
		toggle: timer{period: HeartbeatToggle},
		pause:  timer{period: HeartbeatPause},
	}
}

func (h *Heartbeat) Reset(now uint64) {
	h.set(true)
	h.toggles = 0
	h.toggle.stop()
	h.pause.start(now)
}

func (h *Heartbeat) Update(now uint64) {
	if h.toggles == heartbeatToggles {
		h.toggles = 0
		h.toggle.stop()
		h.pause.start(now)
	}

	if h.pause.expired(now) {
		h.pause.stop()
		h.toggle.start(now)
	}

	if h.toggle.expired(now) {
		h.set(!h.on)
		h.toggles++
		h.toggle.start(now)
	}
}

func (h *Heartbeat) On() bool {
	return h.on
}

func (h *Heartbeat) set(on bool) {
	h.on = on
	h.led.Set(on)
}
