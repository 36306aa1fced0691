package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "slpdexd"

// Metrics holds the Prometheus collectors of the peer protocol engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	framesReceived    *prometheus.CounterVec
	framesDropped     *prometheus.CounterVec
	frameErrors       *prometheus.CounterVec
	messagesSent      *prometheus.CounterVec
	handlerErrors     *prometheus.CounterVec
	connectionsTotal  *prometheus.CounterVec
	connectionsActive prometheus.Gauge
	handshakes        *prometheus.CounterVec
	eventsPublished   *prometheus.CounterVec
}

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      "frames_received_total",
			Help:      "Total number of frames decoded, by command",
		}, []string{"command"}),

		framesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      "frames_dropped_total",
			Help:      "Total number of frames nobody subscribed to, by command",
		}, []string{"command"}),

		frameErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      "frame_errors_total",
			Help:      "Total number of frames that failed validation, by kind",
		}, []string{"kind"}),

		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      "messages_sent_total",
			Help:      "Total number of messages queued for sending, by command",
		}, []string{"command"}),

		handlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      "handler_errors_total",
			Help:      "Total number of errors returned by subscribers, by subscriber",
		}, []string{"subscriber"}),

		connectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      "connections_total",
			Help:      "Total number of connections, by direction",
		}, []string{"direction"}),

		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      "connections_active",
			Help:      "Number of connections currently open",
		}),

		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "p2p",
			Name:      "handshakes_total",
			Help:      "Total number of finished handshakes, by result",
		}, []string{"result"}),

		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of domain events published, by kind",
		}, []string{"kind"}),
	}
}

// FrameReceived counts a decoded frame.
func (m *Metrics) FrameReceived(command string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(command).Inc()
}

// FrameDropped counts a frame nobody was subscribed to.
func (m *Metrics) FrameDropped(command string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(command).Inc()
}

// FrameError counts a frame that failed validation.
func (m *Metrics) FrameError(kind string) {
	if m == nil {
		return
	}
	m.frameErrors.WithLabelValues(kind).Inc()
}

// MessageSent counts a message handed to the outgoing route.
func (m *Metrics) MessageSent(command string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(command).Inc()
}

// HandlerError counts an error returned by a subscriber.
func (m *Metrics) HandlerError(subscriber string) {
	if m == nil {
		return
	}
	m.handlerErrors.WithLabelValues(subscriber).Inc()
}

// ConnectionOpened counts a new connection.
func (m *Metrics) ConnectionOpened(isOutbound bool) {
	if m == nil {
		return
	}
	direction := "inbound"
	if isOutbound {
		direction = "outbound"
	}
	m.connectionsTotal.WithLabelValues(direction).Inc()
	m.connectionsActive.Inc()
}

// ConnectionClosed marks a connection as gone.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

// HandshakeFinished counts a handshake that either reached Ready or
// failed.
func (m *Metrics) HandshakeFinished(succeeded bool) {
	if m == nil {
		return
	}
	result := "failed"
	if succeeded {
		result = "ready"
	}
	m.handshakes.WithLabelValues(result).Inc()
}

// EventPublished counts a domain event handed to a sink.
func (m *Metrics) EventPublished(kind string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(kind).Inc()
}
