package protocol

import (
	"bytes"
	"strconv"

	"go.uber.org/zap"

	"github.com/luma/esplink/internal/metrics"
	"github.com/luma/esplink/internal/ring"
)

const (
	// DefaultWindowSize comfortably holds the longest marker plus a client id.
	DefaultWindowSize = 32

	// DefaultMessageCapacity is the number of payload bytes kept per message.
	DefaultMessageCapacity = 64

	// headerLimit bounds "<id>,<len>" between "+IPD," and ':'.
	headerLimit = len("255,255")
)

var (
	MarkerReady           = []byte("ready\r\n")
	MarkerSendOk          = []byte("SEND OK\r\n")
	MarkerOk              = []byte("OK\r\n")
	MarkerError           = []byte("ERROR\r\n")
	MarkerFail            = []byte("FAIL\r\n")
	MarkerStaConnected    = []byte("WIFI CONNECTED\r\n")
	MarkerStaDisconnected = []byte("WIFI DISCONNECT\r\n")
	MarkerStaGotIP        = []byte("WIFI GOT IP\r\n")
	MarkerClientConnect   = []byte(",CONNECT\r\n")
	MarkerClientClosed    = []byte(",CLOSED\r\n")
	PrefixClientMessage   = []byte("+IPD,")
)

// Marker checks in evaluation order. SEND OK must precede OK.
var markers = []struct {
	suffix []byte
	typ    ResponseType
}{
	{MarkerSendOk, RespSendOk},
	{MarkerOk, RespOk},
	{MarkerError, RespError},
	{MarkerFail, RespFail},
	{MarkerReady, RespReady},
	{MarkerStaConnected, RespStationConnected},
	{MarkerStaDisconnected, RespStationDisconnected},
	{MarkerStaGotIP, RespStationGotIP},
	{MarkerClientConnect, RespClientConnected},
	{MarkerClientClosed, RespClientClosed},
}

// ByteSource yields already received bytes without blocking.
type ByteSource interface {
	TryReadByte() (byte, bool)
}

// MessageSink receives accepted client payloads. It returns false when the
// client is not tracked.
type MessageSink interface {
	Push(clientID uint8, payload []byte) bool
}

type ClassifierOptions struct {
	// WindowSize is the number of most recent bytes markers are matched in.
	WindowSize int

	// MessageCapacity is the number of payload bytes kept per client message.
	// Longer payloads are truncated.
	MessageCapacity int

	Log *zap.Logger
}

type framePhase uint8

const (
	frameNone framePhase = iota
	frameHeader
	framePayload
)

// clientFrame tracks a "+IPD" frame across polls.
type clientFrame struct {
	phase    framePhase
	header   []byte
	clientID uint8
	declared int
	received int
	payload  []byte
}

// Classifier turns the co-processor's byte stream into Responses. It is
// owned by a single poll loop and is not safe for concurrent use.
type Classifier struct {
	src  ByteSource
	sink MessageSink

	window  *ring.Ring[byte]
	scratch []byte
	frame   clientFrame

	// lookahead holds a byte read past the end of a client frame.
	lookahead    byte
	hasLookahead bool

	msgCap int
	log    *zap.Logger
}

func NewClassifier(src ByteSource, sink MessageSink, options ClassifierOptions) *Classifier {
	windowSize := options.WindowSize
	if windowSize < len(MarkerStaDisconnected)+3 {
		windowSize = DefaultWindowSize
	}

	msgCap := options.MessageCapacity
	if msgCap < 1 {
		msgCap = DefaultMessageCapacity
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Classifier{
		src:     src,
		sink:    sink,
		window:  ring.New[byte](windowSize),
		scratch: make([]byte, 0, windowSize),
		frame: clientFrame{
			header:  make([]byte, 0, headerLimit),
			payload: make([]byte, 0, msgCap),
		},
		msgCap: msgCap,
		log:    log,
	}
}

// Poll drains the bytes that are currently available and returns the first
// Response recognised. It returns a RespNone Response when the source runs
// dry first; partial input is kept for the next call.
func (c *Classifier) Poll() Response {
	for {
		b, ok := c.next()
		if !ok {
			if c.frame.phase == framePayload && c.frame.received == c.frame.declared {
				if resp := c.acceptFrame(); !resp.IsNone() {
					metrics.Responses.WithLabelValues(resp.Type.String()).Inc()
					return resp
				}
			}

			return Response{}
		}

		if resp := c.feed(b); !resp.IsNone() {
			metrics.Responses.WithLabelValues(resp.Type.String()).Inc()
			return resp
		}
	}
}

// Clear forgets all partial input.
func (c *Classifier) Clear() {
	c.window.Clear()
	c.resetFrame()
	c.hasLookahead = false
}

// Pending returns the bytes currently held in the sliding window.
func (c *Classifier) Pending() []byte {
	return c.window.AppendTo(nil)
}

func (c *Classifier) next() (byte, bool) {
	if c.hasLookahead {
		c.hasLookahead = false
		return c.lookahead, true
	}

	return c.src.TryReadByte()
}

func (c *Classifier) feed(b byte) Response {
	switch c.frame.phase {
	case frameHeader:
		c.feedHeader(b)
		return Response{}

	case framePayload:
		return c.feedPayload(b)
	}

	c.window.Push(b)
	c.scratch = c.window.AppendTo(c.scratch[:0])
	buf := c.scratch

	for _, m := range markers {
		if !bytes.HasSuffix(buf, m.suffix) {
			continue
		}

		resp := Response{Type: m.typ}

		if m.typ == RespClientConnected || m.typ == RespClientClosed {
			id, ok := parseClientID(buf[:len(buf)-len(m.suffix)])
			if !ok {
				c.drop("client id", buf)
				c.window.Clear()
				return Response{}
			}

			resp.ClientID = id
		}

		c.window.Clear()
		return resp
	}

	if bytes.HasSuffix(buf, PrefixClientMessage) {
		c.window.Clear()
		c.frame.phase = frameHeader
	}

	return Response{}
}

func (c *Classifier) feedHeader(b byte) {
	if b != ':' {
		if len(c.frame.header) == headerLimit {
			c.drop("header", c.frame.header)
			c.resetFrame()
			return
		}

		c.frame.header = append(c.frame.header, b)
		return
	}

	parts := bytes.Split(c.frame.header, []byte{','})
	if len(parts) != 2 {
		c.drop("header", c.frame.header)
		c.resetFrame()
		return
	}

	id, idErr := strconv.ParseUint(string(parts[0]), 10, 8)
	n, lenErr := strconv.ParseUint(string(parts[1]), 10, 8)
	if idErr != nil || lenErr != nil {
		c.drop("header", c.frame.header)
		c.resetFrame()
		return
	}

	c.frame.phase = framePayload
	c.frame.clientID = uint8(id)
	c.frame.declared = int(n)
	c.frame.received = 0
	c.frame.payload = c.frame.payload[:0]
}

func (c *Classifier) feedPayload(b byte) Response {
	if c.frame.received < c.frame.declared {
		if len(c.frame.payload) < c.msgCap {
			c.frame.payload = append(c.frame.payload, b)
		}

		c.frame.received++
		return Response{}
	}

	// The declared length has been consumed; b belongs to whatever follows
	// and is classified on the next read either way.
	c.lookahead = b
	c.hasLookahead = true

	if startsLine(b) {
		return c.acceptFrame()
	}

	c.drop("length mismatch", c.frame.payload)
	c.resetFrame()
	return Response{}
}

// startsLine reports whether b can begin what the co-processor sends right
// after a payload: a line break, "<id>,CLOSED" or another "+IPD".
func startsLine(b byte) bool {
	return b == '\r' || b == '\n' || b == '+' || (b >= '0' && b <= '9')
}

func (c *Classifier) acceptFrame() Response {
	id := c.frame.clientID

	if c.frame.declared > c.msgCap {
		c.log.Warn("Truncated client message",
			zap.Uint8("clientID", id),
			zap.Int("declared", c.frame.declared),
			zap.Int("kept", c.msgCap))
		metrics.InboundTruncated.Inc()
	}

	accepted := true
	if c.sink != nil {
		accepted = c.sink.Push(id, c.frame.payload)
	}

	c.resetFrame()

	if !accepted {
		c.log.Debug("Dropped message for untracked client", zap.Uint8("clientID", id))
		metrics.InboundDropped.WithLabelValues("untracked client").Inc()
		return Response{}
	}

	return Response{Type: RespClientMessage, ClientID: id}
}

func (c *Classifier) resetFrame() {
	c.frame.phase = frameNone
	c.frame.header = c.frame.header[:0]
	c.frame.payload = c.frame.payload[:0]
	c.frame.declared = 0
	c.frame.received = 0
}

func (c *Classifier) drop(reason string, data []byte) {
	c.log.Warn("Discarded malformed inbound frame",
		zap.String("reason", reason),
		zap.ByteString("data", data))
	metrics.InboundDropped.WithLabelValues(reason).Inc()
}

// parseClientID reads the decimal id immediately preceding a client marker,
// skipping anything up to the last line break.
func parseClientID(prefix []byte) (uint8, bool) {
	if i := bytes.LastIndexAny(prefix, "\r\n"); i >= 0 {
		prefix = prefix[i+1:]
	}

	id, err := strconv.ParseUint(string(prefix), 10, 8)
	if err != nil {
		return 0, false
	}

	return uint8(id), true
}
