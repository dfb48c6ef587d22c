// Package sim emulates an ESP-01 running the AT firmware, closely enough to
// bring a session up, accept TCP clients and exchange messages with them.
package sim

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"sync"

	"go.uber.org/zap"
)

const (
	// MaxLinks is the number of simultaneous connections the firmware
	// multiplexes.
	MaxLinks = 5

	// maxChunk is the largest payload a single +IPD frame announces.
	maxChunk = 255

	bootBanner = "\r\n ets Jan  8 2013,rst cause:2, boot mode:(3,7)\r\n\r\nready\r\n"
)

var (
	ErrNotListening = errors.New("Modem is not listening")
	ErrNoFreeLink   = errors.New("All links are in use")
	ErrUnknownLink  = errors.New("Link is not connected")
)

var (
	reMode     = regexp.MustCompile(`^AT\+CWMODE=([1-3])$`)
	reJoin     = regexp.MustCompile(`^AT\+CWJAP="([^"]*)","([^"]*)"$`)
	reHost     = regexp.MustCompile(`^AT\+CWSAP="([^"]*)","([^"]*)",(\d+),(\d),(\d),([01])$`)
	reStaticIP = regexp.MustCompile(`^AT\+CIP(STA|AP)="([\d.]+)","([\d.]+)","([\d.]+)"$`)
	reMux      = regexp.MustCompile(`^AT\+CIPMUX=([01])$`)
	reServer   = regexp.MustCompile(`^AT\+CIPSERVER=([01]),(\d+)$`)
	reSend     = regexp.MustCompile(`^AT\+CIPSEND=(\d),(\d+)$`)
)

type ModemOptions struct {
	// Networks the station can join, by SSID. When nil any network is
	// joined with any password.
	Networks map[string]string

	// Deliver receives payloads the host sends to a link.
	Deliver func(link uint8, payload []byte)

	// Hangup is called when the host side closes a link, by stopping the
	// listener or resetting.
	Hangup func(link uint8)

	// Deliver and Hangup run with the modem locked and must not call back
	// into it.

	Log *zap.Logger
}

// Modem is the AT command interpreter. Bytes written to it are host input;
// replies and unsolicited events go to the attached output.
type Modem struct {
	mu  sync.Mutex
	out io.Writer

	line []byte

	// Set while a payload announced by AT+CIPSEND is being received.
	sendLink    uint8
	sendPending int
	sendBuf     []byte

	mode      int
	joined    string
	hosted    string
	mux       bool
	listening bool
	port      int
	links     [MaxLinks]bool

	networks map[string]string
	deliver  func(uint8, []byte)
	hangup   func(uint8)

	log *zap.Logger
}

func NewModem(options ModemOptions) *Modem {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Modem{
		out:      io.Discard,
		networks: options.Networks,
		deliver:  options.Deliver,
		hangup:   options.Hangup,
		log:      log,
	}
}

// Attach directs the modem's output to w. A nil w discards it.
func (m *Modem) Attach(w io.Writer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w == nil {
		w = io.Discard
	}

	m.out = w
}

// Detach discards the output if it still goes to w.
func (m *Modem) Detach(w io.Writer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.out == w {
		m.out = io.Discard
	}
}

// Write feeds host bytes to the interpreter.
func (m *Modem) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range p {
		if m.sendPending > 0 {
			m.sendBuf = append(m.sendBuf, b)
			m.sendPending--

			if m.sendPending == 0 {
				m.finishSend()
			}
			continue
		}

		m.line = append(m.line, b)
		if bytes.HasSuffix(m.line, []byte("\r\n")) {
			line := string(bytes.TrimRight(m.line, "\r\n"))
			m.line = m.line[:0]
			m.exec(line)
		}
	}

	return len(p), nil
}

// Listening reports whether AT+CIPSERVER=1 is in effect.
func (m *Modem) Listening() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.listening
}

// Joined returns the SSID the station joined, if any.
func (m *Modem) Joined() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.joined
}

// Connect opens a link as if a TCP client connected to the listener.
func (m *Modem) Connect() (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.listening {
		return 0, ErrNotListening
	}

	for id, used := range m.links {
		if !used {
			m.links[id] = true
			m.emit(fmt.Sprintf("%d,CONNECT\r\n", id))
			return uint8(id), nil
		}
	}

	return 0, ErrNoFreeLink
}

// Receive reports data from a client as +IPD frames.
func (m *Modem) Receive(link uint8, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(link) >= MaxLinks || !m.links[link] {
		return ErrUnknownLink
	}

	for len(data) > 0 {
		n := len(data)
		if n > maxChunk {
			n = maxChunk
		}

		m.emit(fmt.Sprintf("\r\n+IPD,%d,%d:%s", link, n, data[:n]))
		data = data[n:]
	}

	return nil
}

// Disconnect closes a link from the client side.
func (m *Modem) Disconnect(link uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(link) >= MaxLinks || !m.links[link] {
		return
	}

	m.links[link] = false
	m.emit(fmt.Sprintf("%d,CLOSED\r\n", link))
}

// DropStation simulates losing the WiFi network.
func (m *Modem) DropStation() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.joined = ""
	m.emit("WIFI DISCONNECT\r\n")
}

func (m *Modem) exec(line string) {
	m.log.Debug("AT", zap.String("line", line))

	switch {
	case line == "AT":
		m.ok()

	case line == "AT+RST":
		m.ok()
		m.reset()
		m.emit(bootBanner)

	case reMode.MatchString(line):
		m.mode, _ = strconv.Atoi(reMode.FindStringSubmatch(line)[1])
		m.ok()

	case reJoin.MatchString(line):
		m.join(reJoin.FindStringSubmatch(line))

	case reHost.MatchString(line):
		if m.mode&2 == 0 {
			m.reject()
			return
		}

		m.hosted = reHost.FindStringSubmatch(line)[1]
		m.ok()

	case reStaticIP.MatchString(line):
		m.ok()

	case reMux.MatchString(line):
		on := reMux.FindStringSubmatch(line)[1] == "1"
		if !on && m.listening {
			m.emit("CIPSERVER must be 0\r\n\r\nERROR\r\n")
			return
		}

		m.mux = on
		m.ok()

	case reServer.MatchString(line):
		match := reServer.FindStringSubmatch(line)
		if !m.mux {
			m.reject()
			return
		}

		m.port, _ = strconv.Atoi(match[2])
		m.listening = match[1] == "1"
		if !m.listening {
			m.closeLinks()
		}
		m.ok()

	case reSend.MatchString(line):
		match := reSend.FindStringSubmatch(line)
		link, _ := strconv.Atoi(match[1])
		n, _ := strconv.Atoi(match[2])

		if link >= MaxLinks || !m.links[link] {
			m.emit("link is not valid\r\n\r\nERROR\r\n")
			return
		}

		if n < 1 || n > 2048 {
			m.reject()
			return
		}

		m.sendLink = uint8(link)
		m.sendPending = n
		m.sendBuf = m.sendBuf[:0]
		m.emit("\r\nOK\r\n> ")

	default:
		m.reject()
	}
}

func (m *Modem) join(match []string) {
	if m.mode&1 == 0 {
		m.reject()
		return
	}

	ssid, password := match[1], match[2]
	if m.networks != nil {
		if want, ok := m.networks[ssid]; !ok || want != password {
			m.emit("+CWJAP:1\r\n\r\nFAIL\r\n")
			return
		}
	}

	if m.joined != "" {
		m.emit("WIFI DISCONNECT\r\n")
	}

	m.joined = ssid
	m.emit("WIFI CONNECTED\r\nWIFI GOT IP\r\n\r\nOK\r\n")
}

func (m *Modem) finishSend() {
	payload := append([]byte(nil), m.sendBuf...)
	m.emit(fmt.Sprintf("\r\nRecv %d bytes\r\n\r\nSEND OK\r\n", len(payload)))

	if m.deliver != nil {
		m.deliver(m.sendLink, payload)
	}
}

func (m *Modem) reset() {
	m.closeLinks()

	m.mode = 0
	m.joined = ""
	m.hosted = ""
	m.mux = false
	m.listening = false
	m.sendPending = 0
}

func (m *Modem) closeLinks() {
	for id, used := range m.links {
		if !used {
			continue
		}

		m.links[id] = false
		if m.hangup != nil {
			m.hangup(uint8(id))
		}
	}
}

func (m *Modem) ok() {
	m.emit("\r\nOK\r\n")
}

func (m *Modem) reject() {
	m.emit("\r\nERROR\r\n")
}

func (m *Modem) emit(s string) {
	if _, err := io.WriteString(m.out, s); err != nil {
		m.log.Warn("Failed to write modem output", zap.Error(err))
	}
}
