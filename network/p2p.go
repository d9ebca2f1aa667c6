// Package network bundles the transport/gossip manager and LAN discovery
// behind one facade consumed by the node.
package network

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/Laegel/votingdapp/config"
	"github.com/Laegel/votingdapp/identity"
	"github.com/Laegel/votingdapp/network/discovery"
	"github.com/Laegel/votingdapp/network/p2p"
)

// VoteNetwork wires the libp2p manager and mDNS discovery together and
// exposes their event streams to the node's control loop.
type VoteNetwork struct {
	manager   *p2p.Manager
	discovery *discovery.Service
}

// New builds the host and discovery service for the given identity.
func New(id *identity.Identity, cfg *config.Config) (*VoteNetwork, error) {
	manager, err := p2p.NewManager(id, p2p.ManagerConfigFrom(cfg.Network))
	if err != nil {
		return nil, fmt.Errorf("failed to create p2p manager: %w", err)
	}

	disco := discovery.NewService(manager.Host, discovery.Config{
		Rendezvous:    cfg.Network.Rendezvous,
		RecordTTL:     cfg.Discovery.RecordTTL,
		SweepInterval: cfg.Discovery.SweepInterval,
	})

	return &VoteNetwork{manager: manager, discovery: disco}, nil
}

// Start subscribes to the vote topic and begins announcing on the LAN.
func (n *VoteNetwork) Start() error {
	if err := n.manager.Start(); err != nil {
		return err
	}
	if err := n.discovery.Start(); err != nil {
		n.manager.Close()
		return fmt.Errorf("failed to start discovery: %w", err)
	}
	return nil
}

// Close stops discovery first so no events arrive for a closed host.
func (n *VoteNetwork) Close() error {
	if err := n.discovery.Close(); err != nil {
		n.manager.Close()
		return fmt.Errorf("failed to close discovery: %w", err)
	}
	return n.manager.Close()
}

// Messages returns the inbound vote-topic payload stream.
func (n *VoteNetwork) Messages() <-chan p2p.InboundMessage {
	return n.manager.Messages()
}

// DiscoveryEvents returns the Discovered/Expired stream.
func (n *VoteNetwork) DiscoveryEvents() <-chan discovery.Event {
	return n.discovery.Events()
}

// Publish floods a payload on the vote topic.
func (n *VoteNetwork) Publish(data []byte) error {
	return n.manager.Publish(data)
}

// AddToView adds a discovered peer to the gossip partial view.
func (n *VoteNetwork) AddToView(p peer.ID, addrs []multiaddr.Multiaddr) {
	n.manager.AddToView(peer.AddrInfo{ID: p, Addrs: addrs})
}

// RemoveFromView evicts a peer from the gossip partial view.
func (n *VoteNetwork) RemoveFromView(p peer.ID) {
	n.manager.RemoveFromView(p)
}

// Live reports whether discovery still holds a current record for a peer.
func (n *VoteNetwork) Live(p peer.ID) bool {
	return n.discovery.Live(p)
}

// Peers returns the current partial view.
func (n *VoteNetwork) Peers() []peer.ID {
	return n.manager.ViewPeers()
}
