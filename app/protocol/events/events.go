// Package events defines what the protocol engine reports to the rest of
// the node, and the sinks that carry it there.
package events

import (
	"time"

	"github.com/slpdexdb/slpdexd/app/appmessage"
)

// Kind names a type of event.
type Kind string

// The kinds of events the protocol engine publishes.
const (
	KindPeerReady       Kind = "peer_ready"
	KindMessageObserved Kind = "message_observed"
)

// Event is something that happened on a connection and that collaborators
// outside the protocol engine care about.
type Event interface {
	Kind() Kind
}

// PeerReady is published once per connection, when its handshake
// completes.
type PeerReady struct {
	Peer     string                 `json:"peer"`
	Address  *appmessage.NetAddress `json:"address"`
	Info     *appmessage.MsgVersion `json:"info"`
	Outbound bool                   `json:"outbound"`
	ReadyAt  time.Time              `json:"readyAt"`
}

// Kind implements Event.
func (*PeerReady) Kind() Kind {
	return KindPeerReady
}

// MessageObserved carries a message received from a ready peer, with its
// payload left raw.
type MessageObserved struct {
	Peer       string                    `json:"peer"`
	Command    appmessage.MessageCommand `json:"command"`
	Payload    []byte                    `json:"payload"`
	ReceivedAt time.Time                 `json:"receivedAt"`
}

// Kind implements Event.
func (*MessageObserved) Kind() Kind {
	return KindMessageObserved
}
