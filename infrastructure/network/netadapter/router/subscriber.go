package router

import (
	"fmt"

	"github.com/slpdexdb/slpdexd/app/appmessage"
)

// Subscriber receives the messages of the commands it is subscribed to.
// Subscribers are compared by identity, so implementations should be
// pointer types.
type Subscriber interface {
	Name() string
	HandleMessage(message appmessage.Message) error
}

// Gatekeeper is the one subscriber that decides what a connection may
// exchange before it is Ready. It is dispatched to ahead of every other
// subscriber and in every state, and any error it returns fails the
// connection.
type Gatekeeper interface {
	Subscriber

	// Commands returns the commands the gatekeeper handles itself.
	Commands() []appmessage.MessageCommand

	// Start is called on the dispatch goroutine before any incoming
	// message is processed.
	Start() error

	// Admit is called for every incoming frame before it is decoded.
	Admit(command appmessage.MessageCommand, state ConnectionState) error
}

// SendHandle is what subscribers get to talk back to the peer.
type SendHandle interface {
	Send(message appmessage.Message) error
}

type funcSubscriber struct {
	name   string
	handle func(message appmessage.Message) error
}

func (s *funcSubscriber) Name() string {
	return s.name
}

func (s *funcSubscriber) HandleMessage(message appmessage.Message) error {
	return s.handle(message)
}

// NewSubscriber returns a Subscriber that calls handle for every message.
func NewSubscriber(name string, handle func(message appmessage.Message) error) Subscriber {
	return &funcSubscriber{name: name, handle: handle}
}

// HandlerError is an error a subscriber returned while handling a message.
// It never affects the other subscribers of the same message.
type HandlerError struct {
	Subscriber string
	Command    appmessage.MessageCommand
	Cause      error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("subscriber %s failed handling %s: %s", e.Subscriber, e.Command, e.Cause)
}

func (e *HandlerError) Unwrap() error {
	return e.Cause
}
