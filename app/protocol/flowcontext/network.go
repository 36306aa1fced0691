package flowcontext

import (
	"github.com/pkg/errors"
	peerpkg "github.com/slpdexdb/slpdexd/app/protocol/peer"
	"github.com/slpdexdb/slpdexd/infrastructure/network/netadapter"
)

// ErrPeerWithSameIDExists signifies that a peer with the same ID already exist.
var ErrPeerWithSameIDExists = errors.New("ready peer with the same ID already exists")

// NetAdapter returns the net adapter that is associated to the flow context.
func (f *FlowContext) NetAdapter() *netadapter.NetAdapter {
	return f.netAdapter
}

// AddToPeers marks this peer as ready and adds it to the ready peers list.
func (f *FlowContext) AddToPeers(peer *peerpkg.Peer) error {
	f.peersMutex.Lock()
	defer f.peersMutex.Unlock()

	if _, ok := f.peers[*peer.ID()]; ok {
		return errors.Wrapf(ErrPeerWithSameIDExists, "peer with ID %s already exists", peer.ID())
	}

	f.peers[*peer.ID()] = peer

	return nil
}

// RemoveFromPeers remove this peer from the peers list.
func (f *FlowContext) RemoveFromPeers(peer *peerpkg.Peer) {
	f.peersMutex.Lock()
	defer f.peersMutex.Unlock()

	delete(f.peers, *peer.ID())
}

// Peers returns the currently active peers
func (f *FlowContext) Peers() []*peerpkg.Peer {
	f.peersMutex.RLock()
	defer f.peersMutex.RUnlock()

	peers := make([]*peerpkg.Peer, 0, len(f.peers))
	for _, peer := range f.peers {
		peers = append(peers, peer)
	}
	return peers
}

// HasPeers returns whether there are currently active peers
func (f *FlowContext) HasPeers() bool {
	f.peersMutex.RLock()
	defer f.peersMutex.RUnlock()
	return len(f.peers) > 0
}
