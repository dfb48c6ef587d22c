package protocol

// ResponseType is the kind of a classified co-processor line or event.
type ResponseType uint8

const (
	RespNone ResponseType = iota
	RespOk
	RespError
	RespFail
	RespReady
	RespStationConnected
	RespStationDisconnected
	RespStationGotIP
	RespSendOk
	RespClientConnected
	RespClientClosed
	RespClientMessage
)

var responseNames = [...]string{
	RespNone:                "NONE",
	RespOk:                  "OK",
	RespError:               "ERROR",
	RespFail:                "FAIL",
	RespReady:               "READY",
	RespStationConnected:    "WIFI_CONNECTED",
	RespStationDisconnected: "WIFI_DISCONNECT",
	RespStationGotIP:        "WIFI_GOT_IP",
	RespSendOk:              "SEND_OK",
	RespClientConnected:     "CONNECT",
	RespClientClosed:        "CLOSED",
	RespClientMessage:       "IPD",
}

func (t ResponseType) String() string {
	if int(t) < len(responseNames) {
		return responseNames[t]
	}

	return "UNKNOWN"
}

// Response is one classified line or event. ClientID is set for
// RespClientConnected, RespClientClosed and RespClientMessage.
type Response struct {
	Type     ResponseType
	ClientID uint8
}

// IsNone reports whether nothing was classified.
func (r Response) IsNone() bool {
	return r.Type == RespNone
}

// IsFailure reports whether the co-processor rejected the last command.
func (r Response) IsFailure() bool {
	return r.Type == RespError || r.Type == RespFail
}
