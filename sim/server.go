package sim

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"

	reuseport "github.com/kavu/go_reuseport"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Options struct {
	// Host to listen on
	Host string

	// SerialPort accepts the host side, standing in for a serial bridge.
	SerialPort int

	// ClientPort is the emulated module's TCP listener.
	ClientPort int

	Networks map[string]string

	Log *zap.Logger
}

// Server exposes a Modem over TCP: one port carries the AT command stream,
// the other accepts the clients the module would accept over WiFi.
type Server struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	modem *Modem

	serialAddr string
	clientAddr string

	mu        sync.Mutex
	listeners []net.Listener
	host      net.Conn
	links     map[uint8]net.Conn

	log *zap.Logger
}

func NewServer(options Options) *Server {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		serialAddr: net.JoinHostPort(options.Host, strconv.Itoa(options.SerialPort)),
		clientAddr: net.JoinHostPort(options.Host, strconv.Itoa(options.ClientPort)),
		links:      make(map[uint8]net.Conn),
		log:        log,
	}

	s.modem = NewModem(ModemOptions{
		Networks: options.Networks,
		Deliver:  s.deliver,
		Hangup:   s.hangup,
		Log:      log.Named("modem"),
	})

	return s
}

func (s *Server) Modem() *Modem {
	return s.modem
}

// Start listens on both ports. Addresses with port 0 are resolved and
// available from SerialAddr and ClientAddr once Start returns.
func (s *Server) Start(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	s.cancel = cancel

	serial, err := reuseport.Listen("tcp", s.serialAddr)
	if err != nil {
		cancel()
		return err
	}

	clients, err := reuseport.Listen("tcp", s.clientAddr)
	if err != nil {
		cancel()
		return multierr.Append(err, serial.Close())
	}

	s.mu.Lock()
	s.listeners = append(s.listeners, serial, clients)
	s.serialAddr = serial.Addr().String()
	s.clientAddr = clients.Addr().String()
	s.mu.Unlock()

	s.log.Info("Simulator listening",
		zap.String("serialAddr", s.serialAddr),
		zap.String("clientAddr", s.clientAddr))

	s.accept(ctx, serial, s.serveHost)
	s.accept(ctx, clients, s.serveClient)

	return nil
}

func (s *Server) SerialAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.serialAddr
}

func (s *Server) ClientAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.clientAddr
}

// Close immediately closes the listeners and every connection.
func (s *Server) Close() (err error) {
	s.log.Info("Stopping simulator")

	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	for _, listener := range s.listeners {
		err = multierr.Append(err, ignoreClosed(listener.Close()))
	}
	s.listeners = nil

	if s.host != nil {
		err = multierr.Append(err, ignoreClosed(s.host.Close()))
	}

	for id, conn := range s.links {
		err = multierr.Append(err, ignoreClosed(conn.Close()))
		delete(s.links, id)
	}
	s.mu.Unlock()

	s.stopWaiter.Wait()

	return err
}

func (s *Server) accept(ctx context.Context, listener net.Listener, serve func(context.Context, net.Conn)) {
	s.stopWaiter.Add(1)

	go func() {
		defer s.stopWaiter.Done()

		for {
			conn, err := listener.Accept()
			if err != nil {
				if !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
					s.log.Error("Failed to accept", zap.Error(err))
				}

				return
			}

			s.stopWaiter.Add(1)
			go func() {
				defer s.stopWaiter.Done()
				serve(ctx, conn)
			}()
		}
	}()
}

// serveHost pipes the AT stream. A new host connection replaces the old one.
func (s *Server) serveHost(ctx context.Context, conn net.Conn) {
	log := s.log.With(zap.String("host", conn.RemoteAddr().String()))

	s.mu.Lock()
	if s.host != nil {
		log.Info("Replacing host connection")
		s.host.Close()
	}
	s.host = conn
	s.mu.Unlock()

	s.modem.Attach(conn)
	log.Info("Host attached")

	defer func() {
		s.mu.Lock()
		if s.host == conn {
			s.host = nil
		}
		s.mu.Unlock()

		s.modem.Detach(conn)

		conn.Close()
		log.Info("Host detached")
	}()

	if _, err := io.Copy(s.modem, conn); err != nil && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
		log.Warn("Host read failed", zap.Error(err))
	}
}

// serveClient bridges one client connection to a modem link.
func (s *Server) serveClient(ctx context.Context, conn net.Conn) {
	log := s.log.With(zap.String("client", conn.RemoteAddr().String()))

	id, err := s.modem.Connect()
	if err != nil {
		log.Warn("Refusing client", zap.Error(err))
		conn.Close()
		return
	}

	log = log.With(zap.Uint8("link", id))

	s.mu.Lock()
	s.links[id] = conn
	s.mu.Unlock()

	log.Info("Client connected")

	buf := make([]byte, maxChunk)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if rerr := s.modem.Receive(id, buf[:n]); rerr != nil {
				log.Debug("Link gone", zap.Error(rerr))
				break
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				log.Warn("Client read failed", zap.Error(err))
			}
			break
		}
	}

	s.mu.Lock()
	if s.links[id] == conn {
		delete(s.links, id)
	}
	s.mu.Unlock()

	s.modem.Disconnect(id)
	conn.Close()

	log.Info("Client disconnected")
}

func (s *Server) deliver(id uint8, payload []byte) {
	s.mu.Lock()
	conn, ok := s.links[id]
	s.mu.Unlock()

	if !ok {
		return
	}

	if _, err := conn.Write(payload); err != nil {
		s.log.Warn("Failed to deliver to client", zap.Uint8("link", id), zap.Error(err))
	}
}

func (s *Server) hangup(id uint8) {
	s.mu.Lock()
	conn, ok := s.links[id]
	delete(s.links, id)
	s.mu.Unlock()

	if ok {
		conn.Close()
	}
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}

	return err
}
