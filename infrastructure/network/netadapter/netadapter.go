package netadapter

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/slpdexdb/slpdexd/app/appmessage"
	"github.com/slpdexdb/slpdexd/infrastructure/config"
	"github.com/slpdexdb/slpdexd/infrastructure/metrics"
	"github.com/slpdexdb/slpdexd/infrastructure/network/netadapter/id"
	routerpkg "github.com/slpdexdb/slpdexd/infrastructure/network/netadapter/router"
)

// RouterInitializer is a function that initializes a new
// router to be used with a new connection. It runs before the router
// starts, so it may install a gatekeeper and subscribe freely.
// Returning an error drops the connection.
type RouterInitializer func(*routerpkg.Router, *NetConnection) error

// LifecycleHandler is called when a connection becomes Ready and when it
// terminates.
type LifecycleHandler func(netConnection *NetConnection, state routerpkg.ConnectionState, err error)

// NetAdapter is an abstraction layer over networking.
// This type expects a RouterInitializer function. This
// function weaves together the various "routes" (messages
// and message handlers) without exposing anything related
// to networking internals.
type NetAdapter struct {
	cfg               *config.Config
	id                *id.ID
	codec             *appmessage.Codec
	metrics           *metrics.Metrics
	routerInitializer RouterInitializer
	lifecycleHandler  LifecycleHandler

	listeners     []net.Listener
	listenersLock sync.Mutex
	stop          uint32

	connections     map[*NetConnection]struct{}
	connectionsLock sync.RWMutex
}

// NewNetAdapter creates a new NetAdapter. metrics may be nil.
func NewNetAdapter(cfg *config.Config, metrics *metrics.Metrics) (*NetAdapter, error) {
	netAdapterID, err := id.GenerateID()
	if err != nil {
		return nil, err
	}
	adapter := NetAdapter{
		cfg:     cfg,
		id:      netAdapterID,
		codec:   appmessage.NewCodec(cfg.NetParams().Net, cfg.MaxMessageSize),
		metrics: metrics,

		connections: make(map[*NetConnection]struct{}),
	}
	return &adapter, nil
}

// SetRouterInitializer sets the routerInitializer function
// for the net adapter
func (na *NetAdapter) SetRouterInitializer(routerInitializer RouterInitializer) {
	na.routerInitializer = routerInitializer
}

// SetLifecycleHandler sets the function notified of connection state
// changes.
func (na *NetAdapter) SetLifecycleHandler(lifecycleHandler LifecycleHandler) {
	na.lifecycleHandler = lifecycleHandler
}

// Codec returns the frame codec shared by all connections.
func (na *NetAdapter) Codec() *appmessage.Codec {
	return na.codec
}

// Start begins the operation of the NetAdapter
func (na *NetAdapter) Start() error {
	if na.routerInitializer == nil {
		return errors.New("routerInitializer was not set")
	}
	if na.cfg.DisableListen {
		log.Infof("Not listening for incoming connections")
		return nil
	}
	for _, listenAddress := range na.cfg.Listeners {
		err := na.listenOn(listenAddress)
		if err != nil {
			return err
		}
	}
	return nil
}

func (na *NetAdapter) listenOn(listenAddress string) error {
	listener, err := net.Listen("tcp", listenAddress)
	if err != nil {
		return errors.Wrapf(err, "error listening on %s", listenAddress)
	}

	na.listenersLock.Lock()
	na.listeners = append(na.listeners, listener)
	na.listenersLock.Unlock()

	spawn(fmt.Sprintf("NetAdapter.acceptLoop-%s", listenAddress), func() {
		na.acceptLoop(listener)
	})
	log.Infof("P2P server listening on %s", listener.Addr())
	return nil
}

func (na *NetAdapter) acceptLoop(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if atomic.LoadUint32(&na.stop) != 0 {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Temporary() {
				log.Warnf("Temporary error accepting on %s: %s", listener.Addr(), err)
				continue
			}
			log.Errorf("Stopped accepting on %s: %s", listener.Addr(), err)
			return
		}
		_, err = na.AddConnection(conn, false)
		if err != nil {
			log.Warnf("Error setting up inbound connection from %s: %s", conn.RemoteAddr(), err)
		}
	}
}

// ListenAddresses returns the addresses actually being listened on.
func (na *NetAdapter) ListenAddresses() []net.Addr {
	na.listenersLock.Lock()
	defer na.listenersLock.Unlock()

	addresses := make([]net.Addr, 0, len(na.listeners))
	for _, listener := range na.listeners {
		addresses = append(addresses, listener.Addr())
	}
	return addresses
}

// Stop safely closes the NetAdapter: it stops listening and closes every
// connection.
func (na *NetAdapter) Stop() error {
	if atomic.AddUint32(&na.stop, 1) != 1 {
		return errors.New("net adapter stopped more than once")
	}

	na.listenersLock.Lock()
	for _, listener := range na.listeners {
		err := listener.Close()
		if err != nil {
			log.Warnf("Error closing listener %s: %s", listener.Addr(), err)
		}
	}
	na.listenersLock.Unlock()

	for _, netConnection := range na.Connections() {
		netConnection.router.Close()
	}
	return nil
}

// Connect dials address and sets up an outbound connection to it.
func (na *NetAdapter) Connect(address string) (*NetConnection, error) {
	if atomic.LoadUint32(&na.stop) != 0 {
		return nil, errors.New("net adapter is stopped")
	}
	log.Debugf("Dialing %s", address)
	conn, err := na.cfg.Dial("tcp", address, config.DefaultConnectTimeout)
	if err != nil {
		return nil, errors.Wrapf(err, "error connecting to %s", address)
	}
	return na.AddConnection(conn, true)
}

// AddConnection takes ownership of an established conn: it wraps it in a
// NetConnection, runs the router initializer and starts the router. The
// connection is closed if setting it up fails.
func (na *NetAdapter) AddConnection(conn net.Conn, isOutbound bool) (*NetConnection, error) {
	if na.routerInitializer == nil {
		conn.Close()
		return nil, errors.New("routerInitializer was not set")
	}
	netConnection, err := NewNetConnection(conn, na.codec, isOutbound)
	if err != nil {
		conn.Close()
		return nil, err
	}
	netConnection.metrics = na.metrics

	router := routerpkg.NewRouter(netConnection.String(), na.codec)
	router.SetMetrics(na.metrics)
	router.SetOnStateChangedHandler(func(state routerpkg.ConnectionState, err error) {
		if state.IsTerminal() {
			na.removeConnection(netConnection)
			na.metrics.ConnectionClosed()
		}
		if na.lifecycleHandler != nil {
			na.lifecycleHandler(netConnection, state, err)
		}
	})
	netConnection.bind(router)

	na.connectionsLock.Lock()
	na.connections[netConnection] = struct{}{}
	na.connectionsLock.Unlock()
	na.metrics.ConnectionOpened(isOutbound)

	err = na.routerInitializer(router, netConnection)
	if err != nil {
		router.Close()
		return nil, errors.Wrapf(err, "error initializing router for %s", netConnection)
	}

	err = router.Start()
	if err != nil {
		router.Close()
		return nil, err
	}
	netConnection.start()
	log.Debugf("Added connection %s (outbound: %t)", netConnection, isOutbound)
	return netConnection, nil
}

func (na *NetAdapter) removeConnection(netConnection *NetConnection) {
	na.connectionsLock.Lock()
	defer na.connectionsLock.Unlock()

	delete(na.connections, netConnection)
}

// Connections returns a list of connections currently connected and active
func (na *NetAdapter) Connections() []*NetConnection {
	na.connectionsLock.RLock()
	defer na.connectionsLock.RUnlock()

	netConnections := make([]*NetConnection, 0, len(na.connections))
	for netConnection := range na.connections {
		netConnections = append(netConnections, netConnection)
	}
	return netConnections
}

// ConnectionCount returns the count of the connected connections
func (na *NetAdapter) ConnectionCount() int {
	na.connectionsLock.RLock()
	defer na.connectionsLock.RUnlock()

	return len(na.connections)
}

// ID returns this netAdapter's ID in the network
func (na *NetAdapter) ID() *id.ID {
	return na.id
}
