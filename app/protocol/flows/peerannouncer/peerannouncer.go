package peerannouncer

import (
	"time"

	"github.com/slpdexdb/slpdexd/app/appmessage"
	"github.com/slpdexdb/slpdexd/app/protocol/events"
	peerpkg "github.com/slpdexdb/slpdexd/app/protocol/peer"
)

// PeerAnnouncer publishes a PeerReady event when the verack completing the
// handshake of its peer arrives.
type PeerAnnouncer struct {
	peer      *peerpkg.Peer
	announced bool
}

// New returns the PeerAnnouncer of peer.
func New(peer *peerpkg.Peer) *PeerAnnouncer {
	return &PeerAnnouncer{peer: peer}
}

// Name implements feature.Handler.
func (a *PeerAnnouncer) Name() string {
	return "peerannouncer"
}

// Commands implements feature.Handler.
func (a *PeerAnnouncer) Commands() []appmessage.MessageCommand {
	return []appmessage.MessageCommand{appmessage.CmdVerAck}
}

// OnMessage implements feature.Handler.
func (a *PeerAnnouncer) OnMessage(_ appmessage.Message) (appmessage.Message, events.Event, error) {
	if a.announced || !a.peer.IsHandshakeComplete() {
		return nil, nil, nil
	}
	a.announced = true

	return nil, &events.PeerReady{
		Peer:     a.peer.Address().String(),
		Address:  a.peer.NetAddress(),
		Info:     a.peer.HandshakeInfo(),
		Outbound: a.peer.IsOutbound(),
		ReadyAt:  time.Now(),
	}, nil
}
