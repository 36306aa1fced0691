package flowcontext

import (
	"sync"

	"github.com/slpdexdb/slpdexd/app/protocol/events"
	peerpkg "github.com/slpdexdb/slpdexd/app/protocol/peer"
	"github.com/slpdexdb/slpdexd/infrastructure/config"
	"github.com/slpdexdb/slpdexd/infrastructure/network/addressmanager"
	"github.com/slpdexdb/slpdexd/infrastructure/network/netadapter"
	"github.com/slpdexdb/slpdexd/infrastructure/network/netadapter/id"
	"github.com/slpdexdb/slpdexd/util/random"
)

// FlowContext holds state that is relevant to more than one flow or one peer, and allows communication between
// different flows that can be associated to different peers.
type FlowContext struct {
	cfg            *config.Config
	netAdapter     *netadapter.NetAdapter
	addressManager *addressmanager.AddressManager
	sink           events.Sink
	nonce          uint64

	peers      map[id.ID]*peerpkg.Peer
	peersMutex sync.RWMutex
}

// New returns a new instance of FlowContext. addressManager and sink
// may be nil.
func New(cfg *config.Config, addressManager *addressmanager.AddressManager,
	netAdapter *netadapter.NetAdapter, sink events.Sink) (*FlowContext, error) {

	nonce, err := random.Uint64()
	if err != nil {
		return nil, err
	}
	return &FlowContext{
		cfg:            cfg,
		netAdapter:     netAdapter,
		addressManager: addressManager,
		sink:           sink,
		nonce:          nonce,
		peers:          make(map[id.ID]*peerpkg.Peer),
	}, nil
}

// Config returns an instance of *config.Config associated to the flow context.
func (f *FlowContext) Config() *config.Config {
	return f.cfg
}

// Nonce returns the nonce this node sends in its version messages.
func (f *FlowContext) Nonce() uint64 {
	return f.nonce
}

// AddressManager returns the address manager associated to the flow
// context, or nil if there is none.
func (f *FlowContext) AddressManager() *addressmanager.AddressManager {
	return f.addressManager
}

// Sink returns the sink events are published to.
func (f *FlowContext) Sink() events.Sink {
	return f.sink
}
