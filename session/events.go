package session

import "fmt"

type EventType uint8

const (
	EventClientConnected EventType = iota + 1
	EventClientDisconnected
	EventClientMessage
	EventMessageSent
	EventMessageSendFailed
	EventSessionReady
	EventSessionLost
)

var eventNames = [...]string{
	EventClientConnected:    "ClientConnected",
	EventClientDisconnected: "ClientDisconnected",
	EventClientMessage:      "ClientMessage",
	EventMessageSent:        "MessageSent",
	EventMessageSendFailed:  "MessageSendFailed",
	EventSessionReady:       "SessionReady",
	EventSessionLost:        "SessionLost",
}

func (t EventType) String() string {
	if int(t) < len(eventNames) && eventNames[t] != "" {
		return eventNames[t]
	}

	return "Unknown"
}

// Event is reported to the EventHandler from inside Update. ClientID is only
// meaningful for client and message events; Reason explains failures and
// session loss.
type Event struct {
	Type     EventType
	ClientID uint8
	Reason   string
}

func (e Event) String() string {
	switch e.Type {
	case EventSessionReady:
		return e.Type.String()

	case EventSessionLost:
		return fmt.Sprintf("%s (%s)", e.Type, e.Reason)

	case EventMessageSendFailed:
		return fmt.Sprintf("%s client=%d (%s)", e.Type, e.ClientID, e.Reason)

	default:
		return fmt.Sprintf("%s client=%d", e.Type, e.ClientID)
	}
}

// EventHandler is called synchronously from the poll loop. It may call back
// into the session, e.g. NextMessage or Send.
type EventHandler func(Event)
