package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	connectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockyspot_connections_active",
			Help: "Number of open client connections",
		},
	)

	connectionsRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blockyspot_connections_rejected_total",
			Help: "Connections refused because the transport was full",
		},
	)

	// Device metrics
	devicesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockyspot_devices_active",
			Help: "Number of registered playback devices",
		},
	)

	deviceCreateFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blockyspot_device_create_failures_total",
			Help: "CreateDevice requests rejected by the engine",
		},
	)

	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockyspot_commands_total",
			Help: "Commands dispatched, by command type and outcome",
		},
		[]string{"command", "result"},
	)

	protocolErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blockyspot_protocol_errors_total",
			Help: "Inbound frames rejected before dispatch",
		},
	)

	// Audio metrics
	audioChunksSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockyspot_audio_chunks_sent_total",
			Help: "audio_data messages queued, by packet type",
		},
		[]string{"packet_type"},
	)

	audioBytesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blockyspot_audio_bytes_sent_total",
			Help: "PCM bytes queued before base64 encoding",
		},
	)

	audioSamplesDiscardedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blockyspot_audio_samples_discarded_total",
			Help: "Buffered samples dropped when a stream stopped below the chunk threshold",
		},
	)

	eventsForwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockyspot_events_forwarded_total",
			Help: "Engine events relayed to clients, by message type",
		},
		[]string{"type"},
	)
)
