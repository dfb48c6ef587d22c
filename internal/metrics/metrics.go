// Package metrics holds the prometheus collectors of the WiFi protocol engine.
// They are registered with the default registry on import and exposed by the
// start command under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CommandsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esplink_commands_sent_total",
			Help: "AT command lines accepted by the transport.",
		},
		[]string{"command"},
	)
	CommandRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esplink_command_retries_total",
			Help: "Command resends, by command and cause (timeout, error, write).",
		},
		[]string{"command", "reason"},
	)
	Responses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esplink_responses_total",
			Help: "Classified co-processor responses and events.",
		},
		[]string{"type"},
	)
	InboundDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "esplink_inbound_dropped_total",
			Help: "Inbound frames discarded by the classifier.",
		},
		[]string{"reason"},
	)
	InboundTruncated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "esplink_inbound_truncated_total",
			Help: "Client messages truncated to the per-message capacity.",
		},
	)
	SessionResets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "esplink_session_resets_total",
			Help: "Times the session fell back to a full co-processor reset.",
		},
	)
	ConnectedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "esplink_connected_clients",
			Help: "Clients currently connected to the listener.",
		},
	)
	SessionReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "esplink_session_ready",
			Help: "1 while the session is Ready or sending, 0 during bring-up.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CommandsSent,
		CommandRetries,
		Responses,
		InboundDropped,
		InboundTruncated,
		SessionResets,
		ConnectedClients,
		SessionReady,
	)
}
