package protocol

// CommandKind identifies an AT command.
type CommandKind uint8

const (
	CmdReset CommandKind = iota
	CmdSetMode
	CmdJoinNetwork
	CmdHostNetwork
	CmdStationIP
	CmdAccessPointIP
	CmdEnableMultiplex
	CmdDisableMultiplex
	CmdStartListener
	CmdStopListener
	CmdBeginSend
)

var commandNames = [...]string{
	CmdReset:            "RST",
	CmdSetMode:          "CWMODE",
	CmdJoinNetwork:      "CWJAP",
	CmdHostNetwork:      "CWSAP",
	CmdStationIP:        "CIPSTA",
	CmdAccessPointIP:    "CIPAP",
	CmdEnableMultiplex:  "CIPMUX=1",
	CmdDisableMultiplex: "CIPMUX=0",
	CmdStartListener:    "CIPSERVER=1",
	CmdStopListener:     "CIPSERVER=0",
	CmdBeginSend:        "CIPSEND",
}

func (k CommandKind) String() string {
	if int(k) < len(commandNames) {
		return commandNames[k]
	}

	return "UNKNOWN"
}

// Command is a command descriptor. Everything except the begin-send
// arguments is rendered from the session's Config, so a Command can be kept
// and resent verbatim.
type Command struct {
	Kind CommandKind

	// ClientID and Length are only used by CmdBeginSend.
	ClientID uint8
	Length   uint8
}

// NewCommand returns a descriptor without arguments.
func NewCommand(kind CommandKind) Command {
	return Command{Kind: kind}
}

// BeginSend announces a payload of length bytes for clientID.
func BeginSend(clientID, length uint8) Command {
	return Command{Kind: CmdBeginSend, ClientID: clientID, Length: length}
}

func (c Command) String() string {
	return c.Kind.String()
}
