package session

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/luma/esplink/clock"
	"github.com/luma/esplink/internal/metrics"
	"github.com/luma/esplink/protocol"
)

// Send starts transmitting payload to a connected client. The payload is
// copied; Update performs the handshake and reports the outcome with a
// MessageSent or MessageSendFailed event.
func (s *Session) Send(clientID uint8, payload []byte) error {
	switch s.phase.state {
	case StateReady:

	case StateSendingMessage:
		return ErrBusy

	default:
		return ErrNotReady
	}

	if !s.HasClient(clientID) {
		return fmt.Errorf("send to %d: %w", clientID, ErrUnknownClient)
	}

	if len(payload) == 0 {
		return ErrEmptyPayload
	}

	if len(payload) > s.msgCap {
		return fmt.Errorf("%d bytes, capacity %d: %w", len(payload), s.msgCap, ErrPayloadTooLarge)
	}

	s.outbound = append(s.outbound[:0], payload...)

	s.enter(StateSendingMessage)
	s.phase.cmd = protocol.BeginSend(clientID, uint8(len(payload)))
	s.phase.stage = sendBegin

	return nil
}

func (s *Session) updateSending() bool {
	p := &s.phase

	if !p.sent {
		if p.stage == sendBegin {
			return s.writeCommand()
		}

		return s.writePayload()
	}

	resp := s.classifier.Poll()
	if resp.IsNone() {
		if p.stage == sendBegin {
			return s.checkTimeout()
		}

		if clock.Expired(s.clock.NowMicros(), p.sentAt, s.timeout) {
			s.finishSend(EventMessageSendFailed, "timeout")
			return true
		}

		return false
	}

	switch resp.Type {
	case protocol.RespStationDisconnected, protocol.RespReady:
		s.lose(resp.Type.String())

	case protocol.RespOk:
		if p.stage == sendBegin {
			p.stage = sendPayload
			p.forget()
			s.log.Debug("Send acknowledged", zap.Uint8("clientID", p.cmd.ClientID))
		}

	case protocol.RespSendOk:
		if p.stage == sendPayload {
			s.finishSend(EventMessageSent, "")
		}

	case protocol.RespError, protocol.RespFail:
		if p.stage == sendBegin {
			s.retry(resp.Type.String())
		} else {
			s.finishSend(EventMessageSendFailed, resp.Type.String())
		}

	default:
		s.observe(resp)
	}

	return true
}

// writePayload writes the raw bytes announced by AT+CIPSEND.
func (s *Session) writePayload() bool {
	p := &s.phase

	if !protocol.WriteRaw(s.w, s.outbound) {
		s.log.Warn("Failed to write payload", zap.Uint8("clientID", p.cmd.ClientID))
		metrics.CommandRetries.WithLabelValues("payload", "write").Inc()
		return false
	}

	p.sent = true
	p.sentAt = s.clock.NowMicros()

	return true
}

// finishSend returns to Ready and reports the outcome of the send.
func (s *Session) finishSend(outcome EventType, reason string) {
	id := s.phase.cmd.ClientID

	if outcome == EventMessageSendFailed {
		s.log.Warn("Message not delivered", zap.Uint8("clientID", id), zap.String("reason", reason))
	}

	s.outbound = s.outbound[:0]
	s.enter(StateReady)
	s.emit(Event{Type: outcome, ClientID: id, Reason: reason})
}
