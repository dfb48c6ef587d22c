package session

import (
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/luma/esplink/clock"
	"github.com/luma/esplink/internal/metrics"
	"github.com/luma/esplink/protocol"
	"github.com/luma/esplink/storage"
)

const (
	// DefaultCommandTimeout is how long a command or wait phase lasts
	// before it is retried.
	DefaultCommandTimeout = 10 * time.Second

	DefaultMaxClients = storage.DefaultMaxClients

	// maxPayload is the largest length AT+CIPSEND can announce.
	maxPayload = 255
)

var (
	ErrNoConfig        = errors.New("Session needs a configuration")
	ErrNoTransport     = errors.New("Session needs a transport")
	ErrNotReady        = errors.New("Session is not ready")
	ErrBusy            = errors.New("Session is already sending a message")
	ErrUnknownClient   = errors.New("Client is not connected")
	ErrEmptyPayload    = errors.New("Payload is empty")
	ErrPayloadTooLarge = errors.New("Payload exceeds the message capacity")
)

// Transport is what the session writes commands to and reads responses
// from. Writes must succeed or fail as a whole and reads must not block.
type Transport interface {
	io.Writer
	protocol.ByteSource
}

type Options struct {
	Config    protocol.Config
	Transport Transport

	// Clock defaults to the host's monotonic clock.
	Clock clock.Clock

	// Store defaults to an InmemoryStore sized by MaxClients, MaxMessages
	// and MessageCapacity.
	Store storage.Store

	MaxClients      int
	MaxMessages     int
	MessageCapacity int

	// WindowSize is the classifier's sliding window.
	WindowSize int

	CommandTimeout time.Duration

	Handler EventHandler

	Log *zap.Logger
}

// Session drives the co-processor from power-on to a listening TCP server and
// then tracks clients and their messages. It is polled: call Update from a
// single loop, as often as possible. A Session is not safe for concurrent use.
type Session struct {
	cfg        protocol.Config
	w          io.Writer
	clock      clock.Clock
	classifier *protocol.Classifier
	store      storage.Store

	phase phase

	// Learned from asynchronous events; they outlive the phase that
	// observed them.
	stationAssociated bool
	stationHasIP      bool

	clients    []uint8
	maxClients int

	outbound []byte
	msgCap   int

	timeout time.Duration

	// halted is set once Shutdown has completed; Start clears it.
	halted bool

	handler EventHandler
	log     *zap.Logger
}

func New(options Options) (*Session, error) {
	cfg, ok := protocol.Resolve(options.Config)
	if !ok {
		return nil, ErrNoConfig
	}
	options.Config = cfg

	if err := options.Config.Validate(); err != nil {
		return nil, err
	}

	if options.Transport == nil {
		return nil, ErrNoTransport
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	if options.Clock == nil {
		options.Clock = clock.NewMonotonic()
	}

	if options.MaxClients < 1 {
		options.MaxClients = DefaultMaxClients
	}

	if options.MessageCapacity < 1 {
		options.MessageCapacity = storage.DefaultMessageCapacity
	}

	if options.MessageCapacity > maxPayload {
		options.MessageCapacity = maxPayload
	}

	if options.CommandTimeout <= 0 {
		options.CommandTimeout = DefaultCommandTimeout
	}

	if options.Store == nil {
		options.Store = storage.NewInmemoryStore(storage.Options{
			MaxClients:      options.MaxClients,
			MaxMessages:     options.MaxMessages,
			MessageCapacity: options.MessageCapacity,
		})
	}

	s := &Session{
		cfg:        options.Config,
		w:          options.Transport,
		clock:      options.Clock,
		store:      options.Store,
		phase:      phase{state: StateIdle},
		clients:    make([]uint8, 0, options.MaxClients),
		maxClients: options.MaxClients,
		outbound:   make([]byte, 0, options.MessageCapacity),
		msgCap:     options.MessageCapacity,
		timeout:    options.CommandTimeout,
		handler:    options.Handler,
		log:        log,
	}

	s.classifier = protocol.NewClassifier(options.Transport, options.Store, protocol.ClassifierOptions{
		WindowSize:      options.WindowSize,
		MessageCapacity: options.MessageCapacity,
		Log:             log.Named("classifier"),
	})

	return s, nil
}

// Update advances the session by at most one transition. It never blocks and
// reports whether progress was made: a command written, a response or
// event consumed, or a state entered.
func (s *Session) Update() bool {
	switch s.phase.state {
	case StateIdle:
		if s.halted {
			return false
		}

		s.enter(StateReset)
		return true

	case StateReady:
		return s.updateReady()

	case StateSendingMessage:
		return s.updateSending()

	case StateWaitReady, StateWaitStationAssociated, StateWaitStationGotIP:
		return s.updateWait()

	default:
		return s.updateCommand()
	}
}

func (s *Session) State() State {
	return s.phase.state
}

func (s *Session) Config() protocol.Config {
	return s.cfg
}

func (s *Session) StationAssociated() bool {
	return s.stationAssociated
}

func (s *Session) StationHasIP() bool {
	return s.stationHasIP
}

// Clients returns the connected client ids in no particular order.
func (s *Session) Clients() []uint8 {
	ids := make([]uint8, len(s.clients))
	copy(ids, s.clients)

	return ids
}

func (s *Session) HasClient(id uint8) bool {
	return s.clientIndex(id) >= 0
}

// NextMessage removes and returns the oldest queued message from id.
func (s *Session) NextMessage(id uint8) ([]byte, bool) {
	return s.store.Next(id)
}

// PendingMessages returns how many messages are queued for id.
func (s *Session) PendingMessages(id uint8) int {
	return s.store.Len(id)
}

// Start resumes a session halted by Shutdown. The next Update resets the
// co-processor.
func (s *Session) Start() {
	s.halted = false
}

// Shutdown stops the listener and disables multiplexing, then leaves the
// session Idle until Start is called. It only queues the work; keep calling
// Update until State returns StateIdle.
func (s *Session) Shutdown() error {
	switch s.phase.state {
	case StateSendingMessage:
		return ErrBusy

	case StateIdle, StateStopListener, StateDisableMultiplex:
		s.halted = true
		return nil

	case StateReady:
		s.halted = true
		s.dropClients()
		metrics.SessionReady.Set(0)
		s.enter(StateStopListener)
		return nil

	default:
		// Nothing is listening yet.
		s.halted = true
		s.enter(StateIdle)
		return nil
	}
}

// updateCommand runs a phase that sends a command and awaits OK.
func (s *Session) updateCommand() bool {
	p := &s.phase

	if !p.sent {
		return s.writeCommand()
	}

	resp := s.classifier.Poll()
	if resp.IsNone() {
		return s.checkTimeout()
	}

	switch resp.Type {
	case protocol.RespOk:
		s.acknowledged()

	case protocol.RespError, protocol.RespFail:
		s.retry(resp.Type.String())

	case protocol.RespReady:
		if p.state == StateReset {
			// The banner beat the acknowledgement.
			s.enter(StateConfigureMode)
		}

	default:
		s.observe(resp)
	}

	return true
}

// updateWait runs a phase that awaits an asynchronous event. Failure or
// expiry falls back to the command phase the wait belongs to.
func (s *Session) updateWait() bool {
	p := &s.phase
	state := p.state

	resp := s.classifier.Poll()
	if resp.IsNone() {
		if !clock.Expired(s.clock.NowMicros(), p.sentAt, s.timeout) {
			return false
		}

		s.log.Warn("Timed out waiting", zap.Stringer("state", state))
		metrics.CommandRetries.WithLabelValues(state.String(), "timeout").Inc()

		if state == StateWaitReady {
			s.enter(StateReset)
		} else {
			s.enter(StateConfigureStation)
		}

		return true
	}

	switch state {
	case StateWaitReady:
		switch resp.Type {
		case protocol.RespReady:
			s.enter(StateConfigureMode)

		case protocol.RespError, protocol.RespFail:
			s.enter(StateReset)

		default:
			s.observe(resp)
		}

	default:
		s.observe(resp)

		switch resp.Type {
		case protocol.RespStationConnected, protocol.RespStationGotIP:
			if state == StateWaitStationAssociated || s.stationHasIP {
				s.afterAssociation()
			}

		case protocol.RespStationDisconnected, protocol.RespError, protocol.RespFail:
			s.log.Warn("Station failed to join", zap.Stringer("response", resp.Type))
			s.enter(StateConfigureStation)
		}
	}

	return true
}

func (s *Session) updateReady() bool {
	resp := s.classifier.Poll()

	switch resp.Type {
	case protocol.RespNone:
		return false

	case protocol.RespStationDisconnected, protocol.RespError, protocol.RespFail, protocol.RespReady:
		s.lose(resp.Type.String())

	default:
		s.observe(resp)
	}

	return true
}

// observe applies an event that does not depend on the current phase.
func (s *Session) observe(resp protocol.Response) {
	switch resp.Type {
	case protocol.RespStationConnected:
		s.stationAssociated = true

	case protocol.RespStationGotIP:
		s.stationAssociated = true
		s.stationHasIP = true

	case protocol.RespStationDisconnected:
		s.stationAssociated = false
		s.stationHasIP = false

	case protocol.RespClientConnected:
		if s.listening() {
			s.addClient(resp.ClientID)
		}

	case protocol.RespClientClosed:
		if s.listening() {
			s.removeClient(resp.ClientID)
		}

	case protocol.RespClientMessage:
		if s.listening() {
			s.emit(Event{Type: EventClientMessage, ClientID: resp.ClientID})
		}

	default:
		s.log.Debug("Ignored response",
			zap.Stringer("state", s.phase.state),
			zap.Stringer("response", resp.Type))
	}
}

// acknowledged moves past a command phase whose command returned OK.
func (s *Session) acknowledged() {
	switch state := s.phase.state; state {
	case StateReset:
		s.enter(StateWaitReady)

	case StateConfigureStation:
		if s.stationAssociated {
			s.afterAssociation()
		} else {
			s.enter(StateWaitStationAssociated)
		}

	case StateStartListener:
		s.enter(StateReady)
		metrics.SessionReady.Set(1)
		s.log.Info("Session ready", zap.Uint16("port", s.cfg.Port()))
		s.emit(Event{Type: EventSessionReady})

	case StateStopListener:
		s.enter(StateDisableMultiplex)

	case StateDisableMultiplex:
		s.log.Info("Session shut down")
		s.enter(StateIdle)

	default:
		s.enter(s.nextRequired(state))
	}
}

// afterAssociation takes the IP branch once the station has joined.
func (s *Session) afterAssociation() {
	_, ip, _ := protocol.Station(s.cfg)

	if !ip.IsStatic() && !s.stationHasIP {
		s.enter(StateWaitStationGotIP)
		return
	}

	s.enter(s.nextRequired(StateConfigureStation))
}

// bringUp is the order of every phase after ConfigureMode.
var bringUp = []State{
	StateConfigureStation,
	StateConfigureAccessPoint,
	StateAssignStationIP,
	StateAssignAccessPointIP,
	StateEnableMultiplex,
	StateStartListener,
}

// nextRequired returns the first bring-up phase after from that the
// configuration needs.
func (s *Session) nextRequired(from State) State {
	_, staIP, station := protocol.Station(s.cfg)
	_, apIP, hosted := protocol.HostedNetwork(s.cfg)

	past := from == StateConfigureMode
	for _, state := range bringUp {
		if !past {
			past = state == from
			continue
		}

		switch state {
		case StateConfigureStation:
			if !station {
				continue
			}

		case StateConfigureAccessPoint:
			if !hosted {
				continue
			}

		case StateAssignStationIP:
			if !station || !staIP.IsStatic() {
				continue
			}

		case StateAssignAccessPointIP:
			if !hosted || !apIP.IsStatic() {
				continue
			}
		}

		return state
	}

	return StateReady
}

func (s *Session) writeCommand() bool {
	p := &s.phase

	if !protocol.WriteCommand(s.w, p.cmd, s.cfg) {
		s.log.Warn("Failed to write command", zap.Stringer("command", p.cmd))
		metrics.CommandRetries.WithLabelValues(p.cmd.String(), "write").Inc()
		return false
	}

	p.sent = true
	p.sentAt = s.clock.NowMicros()
	metrics.CommandsSent.WithLabelValues(p.cmd.String()).Inc()

	return true
}

// checkTimeout forgets an unanswered command so it is resent verbatim.
func (s *Session) checkTimeout() bool {
	p := &s.phase

	if clock.Expired(s.clock.NowMicros(), p.sentAt, s.timeout) {
		s.log.Warn("Command timed out, resending",
			zap.Stringer("state", p.state),
			zap.Stringer("command", p.cmd))
		metrics.CommandRetries.WithLabelValues(p.cmd.String(), "timeout").Inc()
		p.forget()
	}

	return false
}

func (s *Session) retry(reason string) {
	p := &s.phase

	s.log.Warn("Command rejected, resending",
		zap.Stringer("state", p.state),
		zap.Stringer("command", p.cmd),
		zap.String("reason", reason))
	metrics.CommandRetries.WithLabelValues(p.cmd.String(), reason).Inc()
	p.forget()
}

func (s *Session) enter(state State) {
	from := s.phase.state

	s.phase = phase{state: state}
	if kind, ok := commands[state]; ok {
		s.phase.cmd = protocol.NewCommand(kind)
	}

	if state.IsWait() {
		s.phase.sentAt = s.clock.NowMicros()
	}

	if state == StateConfigureStation && from == StateConfigureMode {
		s.stationAssociated = false
		s.stationHasIP = false
	}

	s.log.Debug("Transition", zap.Stringer("from", from), zap.Stringer("to", state))
}

// lose abandons a ready session and starts over with a reset.
func (s *Session) lose(reason string) {
	s.log.Warn("Session lost, resetting", zap.String("reason", reason))
	metrics.SessionResets.Inc()
	metrics.SessionReady.Set(0)

	sending := s.phase.state == StateSendingMessage
	target := s.phase.cmd.ClientID

	s.dropClients()
	s.enter(StateReset)

	if sending {
		s.emit(Event{Type: EventMessageSendFailed, ClientID: target, Reason: reason})
	}

	s.emit(Event{Type: EventSessionLost, Reason: reason})
}

func (s *Session) listening() bool {
	return s.phase.state == StateReady || s.phase.state == StateSendingMessage
}

func (s *Session) addClient(id uint8) {
	if s.clientIndex(id) >= 0 {
		s.log.Debug("Client already connected", zap.Uint8("clientID", id))
		return
	}

	if len(s.clients) == s.maxClients || !s.store.AddClient(id) {
		s.log.Warn("Too many clients, ignoring connection",
			zap.Uint8("clientID", id),
			zap.Int("maxClients", s.maxClients))
		return
	}

	s.clients = append(s.clients, id)
	metrics.ConnectedClients.Set(float64(len(s.clients)))

	s.log.Info("Client connected", zap.Uint8("clientID", id))
	s.emit(Event{Type: EventClientConnected, ClientID: id})
}

func (s *Session) removeClient(id uint8) {
	idx := s.clientIndex(id)
	if idx < 0 {
		s.log.Debug("Closed unknown client", zap.Uint8("clientID", id))
		return
	}

	last := len(s.clients) - 1
	s.clients[idx] = s.clients[last]
	s.clients = s.clients[:last]
	s.store.RemoveClient(id)
	metrics.ConnectedClients.Set(float64(len(s.clients)))

	s.log.Info("Client disconnected", zap.Uint8("clientID", id))

	if s.phase.state == StateSendingMessage && s.phase.cmd.ClientID == id {
		s.finishSend(EventMessageSendFailed, "client closed")
	}

	s.emit(Event{Type: EventClientDisconnected, ClientID: id})
}

func (s *Session) dropClients() {
	s.clients = s.clients[:0]
	s.store.Clear()
	metrics.ConnectedClients.Set(0)
}

func (s *Session) clientIndex(id uint8) int {
	for i, c := range s.clients {
		if c == id {
			return i
		}
	}

	return -1
}

func (s *Session) emit(e Event) {
	if s.handler != nil {
		s.handler(e)
	}
}
