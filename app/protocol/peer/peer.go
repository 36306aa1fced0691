package peer

import (
	"net"
	"sync"
	"time"

	"github.com/slpdexdb/slpdexd/app/appmessage"
	"github.com/slpdexdb/slpdexd/infrastructure/network/netadapter"
	"github.com/slpdexdb/slpdexd/infrastructure/network/netadapter/id"
)

// Peer holds data about a peer.
type Peer struct {
	connection *netadapter.NetConnection

	infoLock sync.RWMutex

	version                  *appmessage.MsgVersion
	advertisedProtocolVerion uint32 // protocol version advertised by remote
	protocolVersion          uint32 // negotiated protocol version
	timeOffset               time.Duration
	connectionStarted        time.Time
	handshakeCompletedAt     time.Time
	isHandshakeComplete      bool
}

// New returns a new Peer
func New(connection *netadapter.NetConnection) *Peer {
	return &Peer{
		connection:        connection,
		connectionStarted: time.Now(),
	}
}

// Connection returns the NetConnection associated with this peer
func (p *Peer) Connection() *netadapter.NetConnection {
	return p.connection
}

// ID returns the peer connection ID
func (p *Peer) ID() *id.ID {
	return p.connection.ID()
}

// IsOutbound returns whether the peer is an outbound connection.
func (p *Peer) IsOutbound() bool {
	return p.connection.IsOutbound()
}

// Address returns the address associated with this connection
func (p *Peer) Address() net.Addr {
	return p.connection.Address()
}

// NetAddress returns the address of the peer as it's carried in version
// messages, with the services the peer advertised if it already did.
func (p *Peer) NetAddress() *appmessage.NetAddress {
	return appmessage.NewNetAddress(p.Address(), p.Services())
}

func (p *Peer) String() string {
	return p.connection.String()
}

// UpdateFieldsFromMsgVersion updates the Peer with the data from the version message.
func (p *Peer) UpdateFieldsFromMsgVersion(msg *appmessage.MsgVersion) {
	p.infoLock.Lock()
	defer p.infoLock.Unlock()

	p.version = msg

	// Negotiate the protocol version.
	p.advertisedProtocolVerion = uint32(msg.ProtocolVersion)
	p.protocolVersion = appmessage.ProtocolVersion
	if p.advertisedProtocolVerion < p.protocolVersion {
		p.protocolVersion = p.advertisedProtocolVerion
	}
	log.Debugf("Negotiated protocol version %d for peer %s",
		p.protocolVersion, p)

	p.timeOffset = time.Until(msg.Timestamp)
}

// MarkHandshakeComplete records that the handshake with the peer is over.
func (p *Peer) MarkHandshakeComplete() {
	p.infoLock.Lock()
	defer p.infoLock.Unlock()

	p.isHandshakeComplete = true
	p.handshakeCompletedAt = time.Now()
}

// IsHandshakeComplete returns whether MarkHandshakeComplete was called.
func (p *Peer) IsHandshakeComplete() bool {
	p.infoLock.RLock()
	defer p.infoLock.RUnlock()

	return p.isHandshakeComplete
}

// HandshakeInfo returns the version message the peer sent, or nil if it
// hasn't sent one yet.
func (p *Peer) HandshakeInfo() *appmessage.MsgVersion {
	p.infoLock.RLock()
	defer p.infoLock.RUnlock()

	return p.version
}

// UserAgent returns the user agent of the peer.
func (p *Peer) UserAgent() string {
	p.infoLock.RLock()
	defer p.infoLock.RUnlock()

	if p.version == nil {
		return ""
	}
	return p.version.UserAgent
}

// Services returns the services the peer advertised.
func (p *Peer) Services() appmessage.ServiceFlag {
	p.infoLock.RLock()
	defer p.infoLock.RUnlock()

	if p.version == nil {
		return 0
	}
	return p.version.Services
}

// AdvertisedProtocolVersion returns the protocol version the peer
// advertised.
func (p *Peer) AdvertisedProtocolVersion() uint32 {
	p.infoLock.RLock()
	defer p.infoLock.RUnlock()

	return p.advertisedProtocolVerion
}

// ProtocolVersion returns the negotiated protocol version
func (p *Peer) ProtocolVersion() uint32 {
	p.infoLock.RLock()
	defer p.infoLock.RUnlock()

	return p.protocolVersion
}

// LastBlock returns the best block height the peer announced.
func (p *Peer) LastBlock() int32 {
	p.infoLock.RLock()
	defer p.infoLock.RUnlock()

	if p.version == nil {
		return 0
	}
	return p.version.LastBlock
}

// TimeOffset returns the difference between the local time and the time
// the peer announced.
func (p *Peer) TimeOffset() time.Duration {
	p.infoLock.RLock()
	defer p.infoLock.RUnlock()

	return p.timeOffset
}

// TimeConnected returns the time since the connection to this peer was
// established.
func (p *Peer) TimeConnected() time.Duration {
	return time.Since(p.connectionStarted)
}

// HandshakeDuration returns how long the handshake took, or 0 if it's not
// over.
func (p *Peer) HandshakeDuration() time.Duration {
	p.infoLock.RLock()
	defer p.infoLock.RUnlock()

	if !p.isHandshakeComplete {
		return 0
	}
	return p.handshakeCompletedAt.Sub(p.connectionStarted)
}
