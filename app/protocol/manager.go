package protocol

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/slpdexdb/slpdexd/app/appmessage"
	"github.com/slpdexdb/slpdexd/app/protocol/events"
	"github.com/slpdexdb/slpdexd/app/protocol/flowcontext"
	"github.com/slpdexdb/slpdexd/app/protocol/flows/feature"
	"github.com/slpdexdb/slpdexd/app/protocol/flows/handshake"
	"github.com/slpdexdb/slpdexd/app/protocol/flows/observer"
	"github.com/slpdexdb/slpdexd/app/protocol/flows/peerannouncer"
	peerpkg "github.com/slpdexdb/slpdexd/app/protocol/peer"
	"github.com/slpdexdb/slpdexd/app/protocol/protocolerrors"
	"github.com/slpdexdb/slpdexd/infrastructure/config"
	"github.com/slpdexdb/slpdexd/infrastructure/network/addressmanager"
	"github.com/slpdexdb/slpdexd/infrastructure/network/netadapter"
	routerpkg "github.com/slpdexdb/slpdexd/infrastructure/network/netadapter/router"
)

// FeatureFactory builds the handler a feature attaches to a new peer.
type FeatureFactory func(peer *peerpkg.Peer) feature.Handler

// Manager manages the p2p protocol
type Manager struct {
	context *flowcontext.FlowContext

	features     []FeatureFactory
	featuresLock sync.RWMutex

	connectionPeers     map[*netadapter.NetConnection]*peerpkg.Peer
	connectionPeersLock sync.Mutex

	isClosed uint32
}

// NewManager creates a new instance of the p2p protocol manager.
// addressManager and sink may be nil.
func NewManager(cfg *config.Config, netAdapter *netadapter.NetAdapter,
	addressManager *addressmanager.AddressManager, sink events.Sink) (*Manager, error) {

	context, err := flowcontext.New(cfg, addressManager, netAdapter, sink)
	if err != nil {
		return nil, err
	}
	manager := Manager{
		context:         context,
		connectionPeers: make(map[*netadapter.NetConnection]*peerpkg.Peer),
	}

	netAdapter.SetRouterInitializer(manager.routerInitializer)
	netAdapter.SetLifecycleHandler(manager.handleLifecycle)
	return &manager, nil
}

// RegisterFeature adds a feature that is attached to every connection
// made from now on, after the built-in ones and in registration order.
func (m *Manager) RegisterFeature(factory FeatureFactory) {
	m.featuresLock.Lock()
	defer m.featuresLock.Unlock()

	m.features = append(m.features, factory)
}

// Close makes the protocol manager refuse new connections.
func (m *Manager) Close() {
	if !atomic.CompareAndSwapUint32(&m.isClosed, 0, 1) {
		panic(errors.New("The protocol manager was already closed"))
	}
	if m.context.HasPeers() {
		log.Infof("Refusing new connections, %d ready peers stay connected until the net adapter stops",
			len(m.context.Peers()))
	}
}

// Peers returns the peers that completed a handshake and are still
// connected.
func (m *Manager) Peers() []*peerpkg.Peer {
	return m.context.Peers()
}

// Context returns the manager's flow context
func (m *Manager) Context() *flowcontext.FlowContext {
	return m.context
}

func (m *Manager) routerInitializer(router *routerpkg.Router, netConnection *netadapter.NetConnection) error {
	if atomic.LoadUint32(&m.isClosed) != 0 {
		return errors.Errorf("protocol manager is closed, refusing %s", netConnection)
	}

	peer := peerpkg.New(netConnection)

	addressManager := m.context.AddressManager()
	if addressManager != nil && !netConnection.IsOutbound() {
		isBanned, err := addressManager.IsBanned(peer.NetAddress())
		if err != nil {
			return err
		}
		if isBanned {
			return errors.Errorf("peer %s is banned", netConnection)
		}
	}

	err := router.SetGatekeeper(handshake.New(m.context, router, peer))
	if err != nil {
		return err
	}

	for _, handler := range m.handlers(peer) {
		err := feature.Attach(router, handler, m.context.Sink())
		if err != nil {
			return err
		}
	}

	router.SetOnHandlerErrorHandler(func(err *routerpkg.HandlerError) {
		log.Warnf("Error from %s: %s", peer, err)
	})

	m.connectionPeersLock.Lock()
	defer m.connectionPeersLock.Unlock()
	m.connectionPeers[netConnection] = peer
	return nil
}

func (m *Manager) handlers(peer *peerpkg.Peer) []feature.Handler {
	handlers := []feature.Handler{peerannouncer.New(peer)}

	observeCommands := m.context.Config().ObserveCommands
	if len(observeCommands) > 0 {
		commands := make([]appmessage.MessageCommand, len(observeCommands))
		for i, command := range observeCommands {
			commands[i] = appmessage.MessageCommand(command)
		}
		handlers = append(handlers, observer.New(peer, commands))
	}

	m.featuresLock.RLock()
	defer m.featuresLock.RUnlock()
	for _, factory := range m.features {
		handlers = append(handlers, factory(peer))
	}
	return handlers
}

func (m *Manager) peerOf(netConnection *netadapter.NetConnection, remove bool) (*peerpkg.Peer, bool) {
	m.connectionPeersLock.Lock()
	defer m.connectionPeersLock.Unlock()

	peer, ok := m.connectionPeers[netConnection]
	if remove {
		delete(m.connectionPeers, netConnection)
	}
	return peer, ok
}

func (m *Manager) handleLifecycle(netConnection *netadapter.NetConnection, state routerpkg.ConnectionState, err error) {
	peer, ok := m.peerOf(netConnection, state.IsTerminal())
	if !ok {
		// The router initializer refused this connection.
		log.Debugf("Connection %s went %s before having a peer: %v", netConnection, state, err)
		return
	}

	switch state {
	case routerpkg.Ready:
		m.onPeerReady(peer)
	case routerpkg.Failed:
		m.onPeerFailed(peer, err)
		m.context.RemoveFromPeers(peer)
	case routerpkg.Closed:
		if err != nil {
			log.Infof("Disconnected from %s: %s", peer, err)
		} else {
			log.Infof("Disconnected from %s", peer)
		}
		m.context.RemoveFromPeers(peer)
	}
}

func (m *Manager) onPeerReady(peer *peerpkg.Peer) {
	log.Infof("Handshake with %s (%s, protocol version %d) is complete",
		peer, peer.UserAgent(), peer.ProtocolVersion())

	err := m.context.AddToPeers(peer)
	if err != nil {
		log.Errorf("Couldn't add %s to the ready peers: %s", peer, err)
		return
	}

	addressManager := m.context.AddressManager()
	if addressManager == nil {
		return
	}
	address, ok := bookAddress(peer)
	if !ok {
		return
	}
	err = addressManager.MarkConnectionSuccess(address)
	if err != nil {
		log.Errorf("Couldn't record %s in the address book: %s", address, err)
	}
}

func (m *Manager) onPeerFailed(peer *peerpkg.Peer, err error) {
	log.Warnf("Connection to %s failed: %s", peer, err)

	addressManager := m.context.AddressManager()
	if addressManager == nil {
		return
	}

	if protocolerrors.ShouldBan(err) {
		log.Warnf("Banning %s", peer)
		banErr := addressManager.Ban(peer.NetAddress())
		if banErr != nil {
			log.Errorf("Couldn't ban %s: %s", peer, banErr)
		}
		return
	}

	if !peer.IsOutbound() {
		return
	}
	failureErr := addressManager.MarkConnectionFailure(peer.NetAddress())
	if failureErr != nil && !errors.Is(failureErr, addressmanager.ErrAddressNotFound) {
		log.Errorf("Couldn't record the failure of %s: %s", peer, failureErr)
	}
}

// bookAddress returns the address peer is reachable at. An inbound peer
// connects from an ephemeral port, so the address it advertised is used
// instead, if it advertised one.
func bookAddress(peer *peerpkg.Peer) (*appmessage.NetAddress, bool) {
	if peer.IsOutbound() {
		return peer.NetAddress(), true
	}
	info := peer.HandshakeInfo()
	if info == nil || info.AddrMe.Port == 0 || info.AddrMe.IP == nil || info.AddrMe.IP.IsUnspecified() {
		return nil, false
	}
	address := info.AddrMe
	address.Services = info.Services
	return &address, true
}
