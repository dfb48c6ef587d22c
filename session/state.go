package session

import (
	"github.com/luma/esplink/protocol"
)

// State is a bring-up, steady or tear-down phase of the session.
type State uint8

const (
	StateIdle State = iota
	StateReset
	StateWaitReady
	StateConfigureMode
	StateConfigureStation
	StateWaitStationAssociated
	StateWaitStationGotIP
	StateConfigureAccessPoint
	StateAssignStationIP
	StateAssignAccessPointIP
	StateEnableMultiplex
	StateStartListener
	StateReady
	StateSendingMessage
	StateStopListener
	StateDisableMultiplex
)

var stateNames = [...]string{
	StateIdle:                  "Idle",
	StateReset:                 "Reset",
	StateWaitReady:             "WaitReady",
	StateConfigureMode:         "ConfigureMode",
	StateConfigureStation:      "ConfigureStation",
	StateWaitStationAssociated: "WaitStationAssociated",
	StateWaitStationGotIP:      "WaitStationGotIp",
	StateConfigureAccessPoint:  "ConfigureAccessPoint",
	StateAssignStationIP:       "AssignStationIp",
	StateAssignAccessPointIP:   "AssignAccessPointIp",
	StateEnableMultiplex:       "EnableMultiplex",
	StateStartListener:         "StartListener",
	StateReady:                 "Ready",
	StateSendingMessage:        "SendingMessage",
	StateStopListener:          "StopListener",
	StateDisableMultiplex:      "DisableMultiplex",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}

	return "Unknown"
}

// IsWait reports whether s awaits an asynchronous event instead of a
// command acknowledgement.
func (s State) IsWait() bool {
	return s == StateWaitReady || s == StateWaitStationAssociated || s == StateWaitStationGotIP
}

// commands maps every command phase to the command it sends.
var commands = map[State]protocol.CommandKind{
	StateReset:                protocol.CmdReset,
	StateConfigureMode:        protocol.CmdSetMode,
	StateConfigureStation:     protocol.CmdJoinNetwork,
	StateConfigureAccessPoint: protocol.CmdHostNetwork,
	StateAssignStationIP:      protocol.CmdStationIP,
	StateAssignAccessPointIP:  protocol.CmdAccessPointIP,
	StateEnableMultiplex:      protocol.CmdEnableMultiplex,
	StateStartListener:        protocol.CmdStartListener,
	StateStopListener:         protocol.CmdStopListener,
	StateDisableMultiplex:     protocol.CmdDisableMultiplex,
}

type sendStage uint8

const (
	// sendBegin awaits the acknowledgement of AT+CIPSEND.
	sendBegin sendStage = iota

	// sendPayload awaits SEND OK for the raw payload.
	sendPayload
)

// phase is the active state together with the fields only that state uses.
// Command phases carry the command and when it was written; wait phases
// carry when the wait began.
type phase struct {
	state State

	cmd    protocol.Command
	sent   bool
	sentAt uint64

	// SendingMessage only.
	stage sendStage
}

// forget drops the send timestamp so the command goes out again on the
// next update.
func (p *phase) forget() {
	p.sent = false
	p.sentAt = 0
}
