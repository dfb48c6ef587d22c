package session

import (
	"github.com/tidwall/sjson"
)

type snapshotField struct {
	path  string
	value interface{}
}

// Snapshot renders the session as a JSON document for status endpoints.
func (s *Session) Snapshot() (doc []byte, err error) {
	// []uint8 would marshal as base64.
	clients := make([]int, 0, len(s.clients))
	for _, id := range s.clients {
		clients = append(clients, int(id))
	}

	fields := []snapshotField{
		{"state", s.phase.state.String()},
		{"mode", s.cfg.Mode().String()},
		{"port", s.cfg.Port()},
		{"halted", s.halted},
		{"station.associated", s.stationAssociated},
		{"station.hasIP", s.stationHasIP},
		{"clients", clients},
	}

	if s.phase.state == StateSendingMessage {
		fields = append(fields,
			snapshotField{"sending.clientID", s.phase.cmd.ClientID},
			snapshotField{"sending.length", s.phase.cmd.Length},
		)
	}

	doc = []byte(`{}`)
	for _, f := range fields {
		if doc, err = sjson.SetBytes(doc, f.path, f.value); err != nil {
			return nil, err
		}
	}

	registry, err := s.store.Snapshot()
	if err != nil {
		return nil, err
	}

	return sjson.SetRawBytes(doc, "registry", registry)
}
