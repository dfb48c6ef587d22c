package transport

import (
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultRxCapacity matches the co-processor UART buffer of the device.
	DefaultRxCapacity = 256

	DefaultBaudRate = 115200

	// readChunk is the largest read the receive loop issues at once.
	readChunk = 64
)

type Options struct {
	// RxCapacity is the number of received bytes buffered before the oldest
	// are overwritten.
	RxCapacity int

	// BaudRate only applies to serial ports.
	BaudRate int

	// DialTimeout only applies to TCP bridges.
	DialTimeout time.Duration

	// Trace will log every byte written and read. This is only useful in
	// local debugging.
	Trace bool

	Log *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.RxCapacity < 1 {
		o.RxCapacity = DefaultRxCapacity
	}

	if o.BaudRate < 1 {
		o.BaudRate = DefaultBaudRate
	}

	if o.DialTimeout <= 0 {
		o.DialTimeout = 5 * time.Second
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	return o
}
