package router

import (
	"time"

	"github.com/pkg/errors"
	"github.com/slpdexdb/slpdexd/app/appmessage"
	"github.com/slpdexdb/slpdexd/app/protocol/protocolerrors"
)

var (
	// ErrTimeout signifies that one of the router functions had a timeout.
	ErrTimeout = protocolerrors.New(false, "timeout expired")

	// ErrRouteClosed indicates that a route was closed while reading/writing.
	ErrRouteClosed = errors.New("route is closed")
)

// Route is the unbounded FIFO of encoded envelopes waiting for the
// connection's writer.
type Route struct {
	name  string
	queue *queue
}

// NewRoute create a new Route
func NewRoute(name string) *Route {
	return &Route{
		name:  name,
		queue: newQueue(),
	}
}

// Enqueue enqueues an envelope to the Route
func (r *Route) Enqueue(envelope *appmessage.MessageEnvelope) error {
	err := r.queue.enqueue(envelope)
	if err != nil {
		return errors.Wrapf(err, "route '%s' is closed", r.name)
	}
	return nil
}

// Dequeue dequeues an envelope from the Route, blocking until one is
// available or the route is closed.
func (r *Route) Dequeue() (*appmessage.MessageEnvelope, error) {
	return r.DequeueWithTimeout(0)
}

// DequeueWithTimeout attempts to dequeue an envelope from the Route
// and returns an error if the given timeout expires first.
func (r *Route) DequeueWithTimeout(timeout time.Duration) (*appmessage.MessageEnvelope, error) {
	item, err := r.queue.dequeue(timeout)
	if err != nil {
		return nil, errors.Wrapf(err, "route '%s'", r.name)
	}
	return item.(*appmessage.MessageEnvelope), nil
}

// Len returns the number of envelopes waiting in the route.
func (r *Route) Len() int {
	return r.queue.len()
}

// Close closes this route. Envelopes still waiting are discarded.
func (r *Route) Close() {
	r.queue.close()
}
