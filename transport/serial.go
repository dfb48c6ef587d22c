package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// serialReadTimeout bounds each blocking read so Close is observed promptly.
const serialReadTimeout = 100 * time.Millisecond

// OpenSerial opens the UART the co-processor is attached to, 8N1.
func OpenSerial(device string, options Options) (*Stream, error) {
	options = options.withDefaults()

	mode := &serial.Mode{
		BaudRate: options.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", device, err)
	}

	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", device, err)
	}

	options.Log.Info("Opened serial port",
		zap.String("device", device),
		zap.Int("baud", options.BaudRate))

	return NewStream(port, device, options), nil
}

// SerialPorts lists the serial devices present on this host.
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
