package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/esplink/internal/metrics"
)

var (
	ErrClosed     = errors.New("transport closed")
	ErrShortWrite = errors.New("short write")
)

// Transport is the byte sink and source the session drives. Writes succeed
// or fail as a whole; reads never block.
type Transport interface {
	io.Writer
	TryReadByte() (byte, bool)
	Close() error
}

// Stream adapts a blocking io.ReadWriteCloser into a Transport. A receive
// goroutine copies everything read into an RxQueue.
type Stream struct {
	rwc  io.ReadWriteCloser
	name string

	rx *RxQueue

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
	err    error

	readWaiter sync.WaitGroup
	closeOnce  sync.Once

	trace bool
	log   *zap.Logger
}

// NewStream starts the receive loop for rwc. name identifies the device in
// logs.
func NewStream(rwc io.ReadWriteCloser, name string, options Options) *Stream {
	options = options.withDefaults()

	s := &Stream{
		rwc:   rwc,
		name:  name,
		rx:    NewRxQueue(options.RxCapacity),
		trace: options.Trace,
		log:   options.Log.With(zap.String("device", name)),
	}

	s.readWaiter.Add(1)
	go func() {
		defer s.readWaiter.Done()
		s.readLoop()
	}()

	return s
}

func (s *Stream) Name() string {
	return s.name
}

// Write writes all of data or returns an error.
func (s *Stream) Write(data []byte) (int, error) {
	if !s.isRunning() {
		return 0, ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.trace {
		s.log.Debug("TX", zap.ByteString("data", data))
	}

	written := 0
	for written < len(data) {
		n, err := s.rwc.Write(data[written:])
		written += n

		if err != nil {
			return written, fmt.Errorf("write to %s: %w", s.name, err)
		}

		if n == 0 {
			return written, fmt.Errorf("write to %s: %w", s.name, ErrShortWrite)
		}
	}

	return written, nil
}

func (s *Stream) TryReadByte() (byte, bool) {
	return s.rx.TryReadByte()
}

// RxQueue exposes the receive buffer.
func (s *Stream) RxQueue() *RxQueue {
	return s.rx
}

// Err returns the error that stopped the receive loop, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}

// Close stops the receive loop and closes the underlying device.
func (s *Stream) Close() (err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.log.Info("Closing transport")

		err = multierr.Append(err, s.rwc.Close())
		s.readWaiter.Wait()
	})

	return err
}

func (s *Stream) readLoop() {
	log := s.log.Named("readLoop")
	buf := make([]byte, readChunk)

	defer log.Debug("Transport read loop exited")

	for {
		n, err := s.rwc.Read(buf)
		if n > 0 {
			if s.trace {
				log.Debug("RX", zap.ByteString("data", buf[:n]))
			}

			if overwritten := s.rx.Push(buf[:n]); overwritten > 0 {
				metrics.InboundDropped.WithLabelValues("rx overflow").Add(float64(overwritten))
				log.Warn("Receive queue overflowed", zap.Int("overwritten", overwritten))
			}
		}

		if err != nil {
			if !s.isRunning() {
				return
			}

			if errors.Is(err, io.EOF) {
				log.Warn("Device closed the connection")
			} else {
				log.Error("Failed to read from device", zap.Error(err))
			}

			s.mu.Lock()
			s.err = err
			s.closed = true
			s.mu.Unlock()

			return
		}

		// Serial ports report a read timeout as (0, nil).
		if n == 0 && !s.isRunning() {
			return
		}
	}
}

func (s *Stream) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return !s.closed
}

var _ Transport = (*Stream)(nil)
