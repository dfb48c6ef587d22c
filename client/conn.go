// Package client talks to the TCP listener esplink opens on the
// co-processor, the way a phone app or another controller would.
package client

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
)

var ErrNotConnected = errors.New("Not connected")

// Conn is a connection to the device listener. Payloads from the device
// arrive on Messages until the connection closes.
type Conn struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	conn net.Conn

	messageChan chan []byte
	loopWaiter  sync.WaitGroup

	log *zap.Logger
}

func New(log *zap.Logger) *Conn {
	if log == nil {
		log = zap.NewNop()
	}

	return &Conn{
		log:         log,
		messageChan: make(chan []byte, 255),
	}
}

func (c *Conn) Connect(ctx context.Context, addr string) error {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.loopWaiter.Add(1)
	go func() {
		defer c.loopWaiter.Done()
		c.readLoop(conn)
	}()

	return nil
}

func (c *Conn) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.cancel()
	err := conn.Close()
	c.loopWaiter.Wait()

	return err
}

// Messages yields payloads in the chunks they arrived in. It is closed when
// the connection ends.
func (c *Conn) Messages() <-chan []byte {
	return c.messageChan
}

// Send writes payload to the device. Messages larger than the device's
// message capacity are truncated on the other side.
func (c *Conn) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
	}

	_, err := conn.Write(payload)
	return err
}

func (c *Conn) readLoop(conn net.Conn) {
	log := c.log.Named("readLoop")

	defer close(c.messageChan)

	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			msg := append([]byte(nil), buf[:n]...)

			select {
			case c.messageChan <- msg:
			case <-c.ctx.Done():
				return
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Warn("Failed to read from device", zap.Error(err))
			}

			log.Info("Connection closed, exiting...")
			return
		}
	}
}
