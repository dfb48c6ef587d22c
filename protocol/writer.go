package protocol

import (
	"errors"
	"fmt"
	"io"
)

var (
	ErrNoStationConfig     = errors.New("Command needs a station configuration")
	ErrNoAccessPointConfig = errors.New("Command needs an access point configuration")
	ErrNotStatic           = errors.New("Command needs a static IP configuration")
	ErrUnknownCommandKind  = errors.New("Unknown command kind")

	Terminal = []byte("\r\n")
)

// EncodeCommand renders cmd as the exact line the co-processor expects,
// including the trailing CR LF.
func EncodeCommand(cmd Command, cfg Config) ([]byte, error) {
	switch cmd.Kind {
	case CmdReset:
		return []byte("AT+RST\r\n"), nil

	case CmdSetMode:
		return []byte(fmt.Sprintf("AT+CWMODE=%d\r\n", cfg.Mode())), nil

	case CmdJoinNetwork:
		network, _, ok := Station(cfg)
		if !ok {
			return nil, ErrNoStationConfig
		}

		return []byte(fmt.Sprintf("AT+CWJAP=\"%s\",\"%s\"\r\n",
			network.SSID, network.Password)), nil

	case CmdHostNetwork:
		ap, _, ok := HostedNetwork(cfg)
		if !ok {
			return nil, ErrNoAccessPointConfig
		}

		hide := 0
		if ap.HideSSID {
			hide = 1
		}

		return []byte(fmt.Sprintf("AT+CWSAP=\"%s\",\"%s\",%d,%d,%d,%d\r\n",
			ap.Network.SSID, ap.Network.Password,
			ap.Channel, ap.Encryption, ap.MaxStations, hide)), nil

	case CmdStationIP:
		_, ip, ok := Station(cfg)
		if !ok {
			return nil, ErrNoStationConfig
		}

		return encodeStaticIP("AT+CIPSTA", ip)

	case CmdAccessPointIP:
		_, ip, ok := HostedNetwork(cfg)
		if !ok {
			return nil, ErrNoAccessPointConfig
		}

		return encodeStaticIP("AT+CIPAP", ip)

	case CmdEnableMultiplex:
		return []byte("AT+CIPMUX=1\r\n"), nil

	case CmdDisableMultiplex:
		return []byte("AT+CIPMUX=0\r\n"), nil

	case CmdStartListener:
		return []byte(fmt.Sprintf("AT+CIPSERVER=1,%d\r\n", cfg.Port())), nil

	case CmdStopListener:
		return []byte(fmt.Sprintf("AT+CIPSERVER=0,%d\r\n", cfg.Port())), nil

	case CmdBeginSend:
		return []byte(fmt.Sprintf("AT+CIPSEND=%d,%d\r\n", cmd.ClientID, cmd.Length)), nil

	default:
		return nil, fmt.Errorf("Failed to encode kind %d: %w", cmd.Kind, ErrUnknownCommandKind)
	}
}

func encodeStaticIP(prefix string, ip IPConfig) ([]byte, error) {
	if !ip.IsStatic() {
		return nil, ErrNotStatic
	}

	return []byte(fmt.Sprintf("%s=\"%s\",\"%s\",\"%s\"\r\n",
		prefix, ip.IP, ip.Gateway, ip.Mask)), nil
}

// WriteCommand encodes cmd and hands the line to w in a single Write call.
// It returns true only if w accepted every byte; the caller resends the same
// descriptor otherwise.
func WriteCommand(w io.Writer, cmd Command, cfg Config) bool {
	line, err := EncodeCommand(cmd, cfg)
	if err != nil {
		return false
	}

	return WriteRaw(w, line)
}

// WriteRaw writes data in a single Write call and reports whether all of it
// was accepted.
func WriteRaw(w io.Writer, data []byte) bool {
	n, err := w.Write(data)
	return err == nil && n == len(data)
}
