// Package feature lets independent handlers attach to a connection. A
// handler sees the messages of the commands it declares, and may answer
// with a message and report an event. Handlers know nothing of each other
// or of the transport.
package feature

import (
	"github.com/pkg/errors"
	"github.com/slpdexdb/slpdexd/app/appmessage"
	"github.com/slpdexdb/slpdexd/app/protocol/events"
	routerpkg "github.com/slpdexdb/slpdexd/infrastructure/network/netadapter/router"
)

// Handler is a feature attached to a connection.
type Handler interface {
	Name() string
	Commands() []appmessage.MessageCommand

	// OnMessage handles a message of one of the declared commands. A
	// non-nil outgoing is sent to the peer and a non-nil event is
	// published. A returned error is isolated to this handler.
	OnMessage(message appmessage.Message) (outgoing appmessage.Message, event events.Event, err error)
}

// Router is the part of a connection's router a handler is attached to.
type Router interface {
	routerpkg.SendHandle
	Subscribe(command appmessage.MessageCommand, subscriber routerpkg.Subscriber) error
}

type adapter struct {
	handler Handler
	send    routerpkg.SendHandle
	sink    events.Sink
}

func (a *adapter) Name() string {
	return a.handler.Name()
}

func (a *adapter) HandleMessage(message appmessage.Message) error {
	outgoing, event, err := a.handler.OnMessage(message)
	if err != nil {
		return err
	}
	if event != nil && a.sink != nil {
		a.sink.Publish(event)
	}
	if outgoing != nil {
		err := a.send.Send(outgoing)
		if err != nil {
			return errors.Wrapf(err, "%s couldn't send %s", a.handler.Name(), outgoing.Command())
		}
	}
	return nil
}

// Attach subscribes handler to every command it declares on router.
// Events go to sink, which may be nil.
func Attach(router Router, handler Handler, sink events.Sink) error {
	subscriber := &adapter{
		handler: handler,
		send:    router,
		sink:    sink,
	}
	for _, command := range handler.Commands() {
		err := router.Subscribe(command, subscriber)
		if err != nil {
			return errors.Wrapf(err, "couldn't attach %s to %s", handler.Name(), command)
		}
	}
	log.Tracef("Attached %s to %v", handler.Name(), handler.Commands())
	return nil
}
