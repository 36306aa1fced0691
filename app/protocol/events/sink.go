package events

import (
	"sync"

	"github.com/slpdexdb/slpdexd/infrastructure/metrics"
)

// Sink receives published events. Publish is called from connection
// dispatch goroutines, possibly concurrently, and must not block for
// long.
type Sink interface {
	Publish(event Event)
}

// ChannelSink delivers events on a buffered channel. When the buffer is
// full the event is dropped rather than stalling the connection that
// published it.
type ChannelSink struct {
	events chan Event

	closeOnce sync.Once
	lock      sync.RWMutex
	closed    bool
}

// NewChannelSink returns a ChannelSink buffering up to capacity events.
func NewChannelSink(capacity int) *ChannelSink {
	return &ChannelSink{events: make(chan Event, capacity)}
}

// Publish implements Sink.
func (s *ChannelSink) Publish(event Event) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.closed {
		return
	}
	select {
	case s.events <- event:
	default:
		log.Warnf("Dropping %s event: the channel sink is full", event.Kind())
	}
}

// Events returns the channel events are delivered on. It's closed by
// Close.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// Close stops delivery and closes the events channel.
func (s *ChannelSink) Close() {
	s.closeOnce.Do(func() {
		s.lock.Lock()
		defer s.lock.Unlock()

		s.closed = true
		close(s.events)
	})
}

// LogSink logs every event it receives.
type LogSink struct{}

// Publish implements Sink.
func (LogSink) Publish(event Event) {
	switch event := event.(type) {
	case *PeerReady:
		log.Infof("Peer %s is ready (user agent %s, protocol version %d, last block %d)",
			event.Peer, event.Info.UserAgent, event.Info.ProtocolVersion, event.Info.LastBlock)
	case *MessageObserved:
		log.Debugf("Observed %s from %s (%d bytes)", event.Command, event.Peer, len(event.Payload))
	default:
		log.Debugf("Event %s", event.Kind())
	}
}

// MultiSink publishes every event to each of its sinks, in order.
type MultiSink []Sink

// Publish implements Sink.
func (sinks MultiSink) Publish(event Event) {
	for _, sink := range sinks {
		sink.Publish(event)
	}
}

type meteredSink struct {
	Sink
	metrics *metrics.Metrics
}

// WithMetrics returns a Sink that counts events by kind before handing them
// to sink.
func WithMetrics(sink Sink, metrics *metrics.Metrics) Sink {
	return &meteredSink{Sink: sink, metrics: metrics}
}

func (s *meteredSink) Publish(event Event) {
	s.metrics.EventPublished(string(event.Kind()))
	s.Sink.Publish(event)
}
