package app

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Switch is an on/off output such as an LED or a relay.
type Switch interface {
	Set(on bool)
}

// Feeder delivers one portion of food. It may take seconds; the controller
// calls it from its own goroutine.
type Feeder interface {
	Feed() error
}

// LogSwitch only records and logs its state. It stands in for GPIO.
type LogSwitch struct {
	name string
	on   int32
	log  *zap.Logger
}

func NewLogSwitch(name string, log *zap.Logger) *LogSwitch {
	if log == nil {
		log = zap.NewNop()
	}

	return &LogSwitch{name: name, log: log}
}

func (s *LogSwitch) Set(on bool) {
	var v int32
	if on {
		v = 1
	}

	if atomic.SwapInt32(&s.on, v) != v {
		s.log.Debug("Switched", zap.String("switch", s.name), zap.Bool("on", on))
	}
}

func (s *LogSwitch) On() bool {
	return atomic.LoadInt32(&s.on) == 1
}

// LogFeeder logs each delivery.
type LogFeeder struct {
	log *zap.Logger
}

func NewLogFeeder(log *zap.Logger) *LogFeeder {
	if log == nil {
		log = zap.NewNop()
	}

	return &LogFeeder{log: log}
}

func (f *LogFeeder) Feed() error {
	f.log.Info("Delivering food")
	return nil
}
