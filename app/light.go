package app

import "time"

const DefaultLightOn = 7 * time.Hour

// Light switches on at the start of each day and off once its period ends.
type Light struct {
	sw    Switch
	on    bool
	timer timer
}

func NewLight(sw Switch, period time.Duration) *Light {
	if period <= 0 {
		period = DefaultLightOn
	}

	sw.Set(false)

	return &Light{sw: sw, timer: timer{period: period}}
}

func (l *Light) Start(now uint64) {
	l.set(true)
	l.timer.start(now)
}

func (l *Light) Update(now uint64) {
	if l.timer.expired(now) {
		l.set(false)
		l.timer.stop()
	}
}

func (l *Light) On() bool {
	return l.on
}

func (l *Light) set(on bool) {
	l.on = on
	l.sw.Set(on)
}
