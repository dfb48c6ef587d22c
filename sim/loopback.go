package sim

import (
	"github.com/luma/esplink/transport"
)

// Loopback wires a Modem to a session in memory. It satisfies the session's
// transport: writes go straight to the modem and its output is buffered in an
// RxQueue, as the serial reader would.
type Loopback struct {
	modem *Modem
	rx    *transport.RxQueue
}

func NewLoopback(modem *Modem, rxCapacity int) *Loopback {
	if rxCapacity < 1 {
		rxCapacity = transport.DefaultRxCapacity
	}

	l := &Loopback{
		modem: modem,
		rx:    transport.NewRxQueue(rxCapacity),
	}

	modem.Attach(l.rx)

	return l
}

func (l *Loopback) Write(p []byte) (int, error) {
	return l.modem.Write(p)
}

func (l *Loopback) TryReadByte() (byte, bool) {
	return l.rx.TryReadByte()
}

func (l *Loopback) Modem() *Modem {
	return l.modem
}

func (l *Loopback) Close() error {
	l.modem.Attach(nil)
	return nil
}

var _ transport.Transport = (*Loopback)(nil)
