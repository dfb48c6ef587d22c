// Package app is the controller's main loop: it polls the WiFi session and
// runs the daily light and feeding schedule next to it.
package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/luma/esplink/clock"
	"github.com/luma/esplink/internal/ring"
	"github.com/luma/esplink/session"
)

const (
	DefaultDay          = 24 * time.Hour
	DefaultPollInterval = time.Millisecond
	DefaultOutboxSize   = 16
	DefaultInboxSize    = 64

	statusInterval  = 250 * time.Millisecond
	shutdownTimeout = 3 * time.Second
)

var (
	ErrOutboxFull      = errors.New("Outbox is full")
	ErrShutdownTimeout = errors.New("Timed out shutting the session down")
)

// Message is a payload from or to a client.
type Message struct {
	ClientID uint8
	Payload  []byte
}

type Options struct {
	// Session configures the WiFi session. Its Handler is replaced by the
	// controller's; its Clock and Log default to the controller's.
	Session session.Options

	Clock clock.Clock

	// LED shows the heartbeat, Activity lights up whenever the session made
	// progress on the last tick, Light is the lamp.
	LED      Switch
	Activity Switch
	Light    Switch

	Feeder Feeder

	LightOn time.Duration
	Day     time.Duration

	// Echo sends every client message back to its sender instead of
	// publishing it on Messages.
	Echo bool

	PollInterval time.Duration
	OutboxSize   int
	InboxSize    int

	Log *zap.Logger
}

// Controller owns the session. Tick and Run must be called from one
// goroutine; Send, Messages and Status are safe from any.
type Controller struct {
	session *session.Session
	clock   clock.Clock

	heartbeat *Heartbeat
	light     *Light
	activity  Switch
	day       timer

	feeder     Feeder
	feeding    int32
	feeds      uint64
	feedWaiter sync.WaitGroup

	echo    bool
	replies *ring.Ring[Message]
	outbox  chan Message
	inbox   chan Message

	pollInterval time.Duration

	statusMu sync.RWMutex
	status   []byte
	statusAt uint64

	log *zap.Logger
}

func New(options Options) (*Controller, error) {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	if options.Clock == nil {
		options.Clock = clock.NewMonotonic()
	}

	if options.Day <= 0 {
		options.Day = DefaultDay
	}

	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}

	if options.OutboxSize < 1 {
		options.OutboxSize = DefaultOutboxSize
	}

	if options.InboxSize < 1 {
		options.InboxSize = DefaultInboxSize
	}

	if options.LED == nil {
		options.LED = NewLogSwitch("led", log)
	}

	if options.Activity == nil {
		options.Activity = NewLogSwitch("activity", log)
	}

	if options.Light == nil {
		options.Light = NewLogSwitch("light", log)
	}

	if options.Feeder == nil {
		options.Feeder = NewLogFeeder(log.Named("feeder"))
	}

	c := &Controller{
		clock:        options.Clock,
		heartbeat:    NewHeartbeat(options.LED),
		light:        NewLight(options.Light, options.LightOn),
		activity:     options.Activity,
		day:          timer{period: options.Day},
		feeder:       options.Feeder,
		echo:         options.Echo,
		replies:      ring.New[Message](options.OutboxSize),
		outbox:       make(chan Message, options.OutboxSize),
		inbox:        make(chan Message, options.InboxSize),
		pollInterval: options.PollInterval,
		log:          log,
	}

	sessionOptions := options.Session
	sessionOptions.Handler = c.handle

	if sessionOptions.Clock == nil {
		sessionOptions.Clock = options.Clock
	}

	if sessionOptions.Log == nil {
		sessionOptions.Log = log.Named("session")
	}

	sess, err := session.New(sessionOptions)
	if err != nil {
		return nil, err
	}

	c.session = sess
	c.refreshStatus(c.clock.NowMicros())

	return c, nil
}

// Session exposes the session for inspection. Only touch it from the
// goroutine calling Tick.
func (c *Controller) Session() *session.Session {
	return c.session
}

// Run ticks until ctx is cancelled, then shuts the session down.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Info("Starting control loop", zap.Duration("pollInterval", c.pollInterval))

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return c.stop()
		default:
		}

		if c.Tick() {
			continue
		}

		select {
		case <-ctx.Done():
			return c.stop()
		case <-ticker.C:
		}
	}
}

// Tick runs one iteration of the loop and reports whether the session made
// progress.
func (c *Controller) Tick() bool {
	now := c.clock.NowMicros()

	if !c.day.started || c.day.expired(now) {
		c.startDay(now)
	} else {
		c.heartbeat.Update(now)
		c.light.Update(now)
	}

	progress := c.session.Update()
	c.activity.Set(progress)

	if c.session.State() == session.StateReady && c.flush() {
		progress = true
	}

	if progress || clock.Expired(now, c.statusAt, statusInterval) {
		c.refreshStatus(now)
	}

	return progress
}

// Send queues payload for a client. It is sent once the session is ready.
func (c *Controller) Send(clientID uint8, payload []byte) error {
	msg := Message{ClientID: clientID, Payload: append([]byte(nil), payload...)}

	select {
	case c.outbox <- msg:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Messages yields client messages when echo is off. Messages that arrive
// while it is full are dropped.
func (c *Controller) Messages() <-chan Message {
	return c.inbox
}

// Status returns the latest JSON snapshot of the session and schedule.
func (c *Controller) Status() []byte {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()

	return append([]byte(nil), c.status...)
}

// Feeds returns the number of completed deliveries.
func (c *Controller) Feeds() uint64 {
	return atomic.LoadUint64(&c.feeds)
}

func (c *Controller) startDay(now uint64) {
	c.log.Info("Starting day")

	c.day.start(now)
	c.light.Start(now)
	c.heartbeat.Reset(now)
	c.feed()
}

func (c *Controller) feed() {
	if !atomic.CompareAndSwapInt32(&c.feeding, 0, 1) {
		c.log.Warn("Previous delivery still running, skipping")
		return
	}

	c.feedWaiter.Add(1)
	go func() {
		defer c.feedWaiter.Done()

		err := c.feeder.Feed()
		atomic.StoreInt32(&c.feeding, 0)

		if err != nil {
			c.log.Error("Failed to deliver food", zap.Error(err))
			return
		}

		atomic.AddUint64(&c.feeds, 1)
	}()
}

// flush starts sending the next reply or queued message.
func (c *Controller) flush() bool {
	msg, ok := c.replies.Pop()
	if !ok {
		select {
		case msg = <-c.outbox:
		default:
			return false
		}
	}

	if err := c.session.Send(msg.ClientID, msg.Payload); err != nil {
		c.log.Warn("Dropped outgoing message",
			zap.Uint8("clientID", msg.ClientID),
			zap.Error(err))
		return false
	}

	return true
}

func (c *Controller) handle(e session.Event) {
	switch e.Type {
	case session.EventClientMessage:
		payload, ok := c.session.NextMessage(e.ClientID)
		if !ok {
			return
		}

		msg := Message{ClientID: e.ClientID, Payload: payload}

		if c.echo {
			if !c.replies.Push(msg) {
				c.log.Warn("Reply queue full, dropped oldest reply")
			}
			return
		}

		select {
		case c.inbox <- msg:
		default:
			c.log.Warn("Inbox full, dropped message", zap.Uint8("clientID", e.ClientID))
		}

	case session.EventSessionReady:
		c.heartbeat.Reset(c.clock.NowMicros())
		c.log.Info("WiFi up")

	case session.EventSessionLost, session.EventMessageSendFailed:
		c.log.Warn("Session event", zap.Stringer("event", e))

	default:
		c.log.Debug("Session event", zap.Stringer("event", e))
	}
}

func (c *Controller) refreshStatus(now uint64) {
	doc, err := c.session.Snapshot()
	if err != nil {
		c.log.Warn("Failed to snapshot session", zap.Error(err))
		return
	}

	fields := []snapshotField{
		{"app.light", c.light.On()},
		{"app.heartbeat", c.heartbeat.On()},
		{"app.feeds", c.Feeds()},
		{"app.echo", c.echo},
		{"app.outbox", len(c.outbox)},
	}

	for _, f := range fields {
		if doc, err = sjson.SetBytes(doc, f.path, f.value); err != nil {
			c.log.Warn("Failed to render status", zap.Error(err))
			return
		}
	}

	c.statusMu.Lock()
	c.status = doc
	c.statusAt = now
	c.statusMu.Unlock()
}

type snapshotField struct {
	path  string
	value interface{}
}

func (c *Controller) stop() error {
	c.log.Info("Stopping control loop")

	deadline := time.NewTimer(shutdownTimeout)
	defer deadline.Stop()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	defer c.feedWaiter.Wait()

	for c.session.State() != session.StateIdle {
		// A send in flight has to finish first.
		if err := c.session.Shutdown(); err != nil && !errors.Is(err, session.ErrBusy) {
			return err
		}

		if c.session.Update() {
			continue
		}

		select {
		case <-deadline.C:
			c.log.Warn("Session did not shut down in time")
			return ErrShutdownTimeout
		case <-ticker.C:
		}
	}

	c.refreshStatus(c.clock.NowMicros())
	c.log.Info("Control loop stopped")

	return nil
}
