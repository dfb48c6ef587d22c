package transport

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
)

// DialTCP connects to a serial-over-TCP bridge, or to the simulator.
func DialTCP(ctx context.Context, addr string, options Options) (*Stream, error) {
	options = options.withDefaults()

	dialer := net.Dialer{Timeout: options.DialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	options.Log.Info("Connected to serial bridge", zap.String("addr", addr))

	return NewStream(conn, addr, options), nil
}
