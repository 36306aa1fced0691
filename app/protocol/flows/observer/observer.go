package observer

import (
	"bytes"
	"time"

	"github.com/slpdexdb/slpdexd/app/appmessage"
	"github.com/slpdexdb/slpdexd/app/protocol/events"
	peerpkg "github.com/slpdexdb/slpdexd/app/protocol/peer"
)

// Observer publishes every message of its commands as a MessageObserved
// event, leaving the payload for the indexer to interpret.
type Observer struct {
	peer     *peerpkg.Peer
	commands []appmessage.MessageCommand
}

// New returns an Observer of commands received from peer.
func New(peer *peerpkg.Peer, commands []appmessage.MessageCommand) *Observer {
	return &Observer{
		peer:     peer,
		commands: commands,
	}
}

// Name implements feature.Handler.
func (o *Observer) Name() string {
	return "observer"
}

// Commands implements feature.Handler.
func (o *Observer) Commands() []appmessage.MessageCommand {
	return o.commands
}

// OnMessage implements feature.Handler.
func (o *Observer) OnMessage(message appmessage.Message) (appmessage.Message, events.Event, error) {
	payload, err := rawPayload(message)
	if err != nil {
		return nil, nil, err
	}
	return nil, &events.MessageObserved{
		Peer:       o.peer.Address().String(),
		Command:    message.Command(),
		Payload:    payload,
		ReceivedAt: time.Now(),
	}, nil
}

// rawPayload returns the payload message arrived with. Messages the codec
// decoded into a type of their own are encoded back.
func rawPayload(message appmessage.Message) ([]byte, error) {
	if raw, ok := message.(*appmessage.MsgRaw); ok {
		return raw.Payload, nil
	}
	var buf bytes.Buffer
	err := message.Encode(&buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
