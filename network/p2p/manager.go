// Package p2p owns the libp2p host, the flood pub/sub router and the vote
// topic's partial view. Connections are mutually authenticated against
// each peer's identity key and multiplexed over one physical stream by the
// host's defaults (noise + yamux).
package p2p

import (
	"context"
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/routing"
	"github.com/multiformats/go-multiaddr"
	"golang.org/x/time/rate"

	"github.com/Laegel/votingdapp/config"
	"github.com/Laegel/votingdapp/identity"
)

var log = logging.Logger("votingdapp:p2p")

const connectTimeout = 10 * time.Second

// InboundMessage is one payload received on the vote topic, after
// self-published messages have been filtered out.
type InboundMessage struct {
	// From is the peer that published the message, not the last hop it
	// arrived through.
	From peer.ID
	Data []byte
}

// Config holds the manager's network settings.
type Config struct {
	ListenAddr     string
	Topic          string
	Rendezvous     string
	BootstrapPeers []string
	MaxPeers       int
	EnableDHT      bool
}

// Manager runs the libp2p host and the vote topic.
type Manager struct {
	Host host.Host

	ctx    context.Context
	cancel context.CancelFunc

	pubsub *pubsub.PubSub
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	dht    *dht.IpfsDHT

	view *View

	cfg            Config
	bootstrapPeers []multiaddr.Multiaddr

	limiter *rate.Limiter

	messages chan InboundMessage

	closeOnce sync.Once
}

// NewManager creates the libp2p host with the process identity and wires a
// floodsub router over it. The host listens on an ephemeral OS-chosen port
// unless the config pins one.
func NewManager(id *identity.Identity, cfg Config) (*Manager, error) {
	ctx, cancel := context.WithCancel(context.Background())

	var bootstrapPeers []multiaddr.Multiaddr
	for _, addr := range cfg.BootstrapPeers {
		maddr, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			log.Warnw("skipping invalid bootstrap peer address", "addr", addr, "err", err)
			continue
		}
		bootstrapPeers = append(bootstrapPeers, maddr)
	}

	h, err := libp2p.New(
		libp2p.Identity(id.PrivKey()),
		libp2p.ListenAddrStrings(cfg.ListenAddr),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	log.Infow("host created", "peer", h.ID(), "addrs", h.Addrs())

	// Floodsub rather than gossipsub: the vote mesh floods every publish
	// to the whole partial view.
	ps, err := pubsub.NewFloodSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("failed to create pubsub: %w", err)
	}

	m := &Manager{
		Host:           h,
		ctx:            ctx,
		cancel:         cancel,
		pubsub:         ps,
		view:           NewView(),
		cfg:            cfg,
		bootstrapPeers: bootstrapPeers,
		limiter:        rate.NewLimiter(rate.Limit(100), 200), // 100 msgs/sec with burst of 200
		messages:       make(chan InboundMessage, 256),
	}

	if cfg.EnableDHT {
		kademliaDHT, err := dht.New(ctx, h, dht.Mode(dht.ModeServer))
		if err != nil {
			h.Close()
			cancel()
			return nil, fmt.Errorf("failed to create DHT: %w", err)
		}
		if err := kademliaDHT.Bootstrap(ctx); err != nil {
			h.Close()
			cancel()
			return nil, fmt.Errorf("failed to bootstrap DHT: %w", err)
		}
		m.dht = kademliaDHT
	}

	return m, nil
}

// Start joins and subscribes to the vote topic, connects to any bootstrap
// peers and begins routing discovery when the DHT is enabled.
func (m *Manager) Start() error {
	topic, err := m.pubsub.Join(m.cfg.Topic)
	if err != nil {
		return fmt.Errorf("failed to join topic %s: %w", m.cfg.Topic, err)
	}
	m.topic = topic

	sub, err := topic.Subscribe()
	if err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", m.cfg.Topic, err)
	}
	m.sub = sub

	go m.readTopicMessages()

	m.connectToBootstrapPeers()

	if m.dht != nil {
		m.startDHTDiscovery()
	}

	log.Infow("joined vote topic", "topic", m.cfg.Topic)
	return nil
}

// Close shuts the subscription, topic, DHT and host down.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.cancel()
		if m.sub != nil {
			m.sub.Cancel()
		}
		if m.topic != nil {
			if cerr := m.topic.Close(); cerr != nil {
				log.Warnw("error closing topic", "err", cerr)
			}
		}
		if m.dht != nil {
			if cerr := m.dht.Close(); cerr != nil {
				log.Warnw("error closing DHT", "err", cerr)
			}
		}
		err = m.Host.Close()
	})
	return err
}

// Messages returns the inbound message stream for the vote topic.
func (m *Manager) Messages() <-chan InboundMessage {
	return m.messages
}

// Publish floods the payload to every peer in the topic's partial view.
// Delivery is at-least-once and unordered; there is no acknowledgment.
func (m *Manager) Publish(data []byte) error {
	if !m.limiter.Allow() {
		return fmt.Errorf("rate limit exceeded for topic %s", m.cfg.Topic)
	}
	if err := m.topic.Publish(m.ctx, data); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", m.cfg.Topic, err)
	}
	return nil
}

// AddToView inserts a discovered peer into the partial view and dials it.
// Re-adding a known peer only refreshes the dial. Once the view holds
// MaxPeers members, new peers are ignored until discovery expires one.
func (m *Manager) AddToView(pi peer.AddrInfo) {
	if pi.ID == m.Host.ID() {
		return
	}
	if !m.view.AddCapped(pi.ID, m.cfg.MaxPeers) {
		log.Debugw("partial view full, ignoring discovered peer",
			"peer", pi.ID, "max", m.cfg.MaxPeers)
		return
	}

	go func() {
		connectCtx, connectCancel := context.WithTimeout(m.ctx, connectTimeout)
		defer connectCancel()
		if err := m.Host.Connect(connectCtx, pi); err != nil {
			// Scoped to this peer; the view entry stays until discovery
			// expires it.
			log.Debugw("failed to connect to discovered peer", "peer", pi.ID, "err", err)
		}
	}()
}

// RemoveFromView evicts a peer from the partial view and drops its
// connection.
func (m *Manager) RemoveFromView(p peer.ID) {
	m.view.Remove(p)
	if err := m.Host.Network().ClosePeer(p); err != nil {
		log.Debugw("error closing connection to expired peer", "peer", p, "err", err)
	}
}

// ViewPeers returns the current partial view.
func (m *Manager) ViewPeers() []peer.ID {
	return m.view.Peers()
}

// readTopicMessages pumps subscription messages into the inbound channel,
// skipping our own publishes.
func (m *Manager) readTopicMessages() {
	for {
		msg, err := m.sub.Next(m.ctx)
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			log.Warnw("error reading from subscription", "topic", m.cfg.Topic, "err", err)
			return
		}

		// ReceivedFrom is only the last hop; GetFrom is the signed origin
		// and survives flooding through intermediate peers.
		if msg.ReceivedFrom == m.Host.ID() || msg.GetFrom() == m.Host.ID() {
			continue
		}

		select {
		case m.messages <- InboundMessage{From: msg.GetFrom(), Data: msg.Data}:
		case <-m.ctx.Done():
			return
		}
	}
}

// connectToBootstrapPeers dials the configured bootstrap peers with retry.
func (m *Manager) connectToBootstrapPeers() {
	for _, addr := range m.bootstrapPeers {
		pi, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			log.Warnw("invalid bootstrap peer address", "addr", addr, "err", err)
			continue
		}
		if pi.ID == m.Host.ID() {
			continue
		}
		go m.connectWithRetry(*pi, 3)
	}
}

// connectWithRetry attempts to connect to a peer with exponential backoff.
func (m *Manager) connectWithRetry(pi peer.AddrInfo, maxRetries int) {
	for attempt := 1; attempt <= maxRetries; attempt++ {
		connectCtx, connectCancel := context.WithTimeout(m.ctx, connectTimeout)
		err := m.Host.Connect(connectCtx, pi)
		connectCancel()

		if err == nil {
			log.Infow("connected to bootstrap peer", "peer", pi.ID, "attempt", attempt)
			m.view.Add(pi.ID)
			return
		}

		log.Debugw("failed to connect to bootstrap peer",
			"peer", pi.ID, "attempt", attempt, "max", maxRetries, "err", err)

		if attempt < maxRetries {
			backoff := time.Duration(attempt*attempt) * time.Second
			select {
			case <-time.After(backoff):
			case <-m.ctx.Done():
				return
			}
		}
	}
	log.Warnw("giving up on bootstrap peer", "peer", pi.ID, "attempts", maxRetries)
}

// startDHTDiscovery advertises the rendezvous string and periodically
// searches the DHT for peers advertising it.
func (m *Manager) startDHTDiscovery() {
	routingDiscovery := routing.NewRoutingDiscovery(m.dht)
	routingDiscovery.Advertise(m.ctx, m.cfg.Rendezvous)

	go func() {
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-time.After(30 * time.Second):
				peerChan, err := routingDiscovery.FindPeers(m.ctx, m.cfg.Rendezvous)
				if err != nil {
					log.Warnw("DHT peer discovery failed", "err", err)
					continue
				}
				for pi := range peerChan {
					if pi.ID == m.Host.ID() || len(pi.Addrs) == 0 {
						continue
					}
					log.Debugw("discovered peer via DHT", "peer", pi.ID)
					m.AddToView(pi)
				}
			}
		}
	}()
	log.Info("DHT discovery started")
}

// ManagerConfigFrom maps the application network section onto the manager
// config.
func ManagerConfigFrom(cfg config.NetworkConfig) Config {
	return Config{
		ListenAddr:     cfg.ListenAddr,
		Topic:          cfg.Topic,
		Rendezvous:     cfg.Rendezvous,
		BootstrapPeers: cfg.BootstrapPeers,
		MaxPeers:       cfg.MaxPeers,
		EnableDHT:      cfg.EnableDHT,
	}
}
