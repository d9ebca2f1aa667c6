// Package discovery detects peers on the local network segment via mDNS
// and reports membership as Discovered/Expired events. The library only
// surfaces found peers, so expiry is synthesized from a record table:
// every observation is a (peer, address) record with a deadline, and a
// peer stays live while any of its records does.
package discovery

import (
	"context"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"
)

var log = logging.Logger("votingdapp:discovery")

// EventKind distinguishes membership events.
type EventKind int

const (
	// Discovered reports at least one fresh broadcast from a peer. It may
	// fire repeatedly for the same peer.
	Discovered EventKind = iota
	// Expired reports that one discovery record for a peer timed out.
	// Check Live before treating the peer itself as gone.
	Expired
)

// Event is one membership observation.
type Event struct {
	Kind  EventKind
	Peer  peer.ID
	Addrs []multiaddr.Multiaddr
}

// Config controls record expiry.
type Config struct {
	Rendezvous    string
	RecordTTL     time.Duration
	SweepInterval time.Duration
}

type recordKey struct {
	peer peer.ID
	addr string
}

type record struct {
	addrs    []multiaddr.Multiaddr
	deadline time.Time
}

// Service wraps the mDNS responder and the record table.
type Service struct {
	cfg  Config
	self peer.ID

	ctx    context.Context
	cancel context.CancelFunc

	mdns mdns.Service

	mu      sync.Mutex
	records map[recordKey]record
	// Evictions the consumer missed. A record is deleted the moment it
	// expires, so an Expired event cannot be resynthesized; it waits here
	// for the next sweep tick instead.
	pendingExpired []Event

	events chan Event

	wg sync.WaitGroup
}

// NewService builds a discovery service for the given host.
func NewService(h host.Host, cfg Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:     cfg,
		self:    h.ID(),
		ctx:     ctx,
		cancel:  cancel,
		records: make(map[recordKey]record),
		events:  make(chan Event, 64),
	}
	s.mdns = mdns.NewMdnsService(h, cfg.Rendezvous, s)
	return s
}

// Start begins announcing and listening on the LAN and starts the expiry
// sweeper.
func (s *Service) Start() error {
	if err := s.mdns.Start(); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.sweep()

	log.Infow("mDNS discovery started", "rendezvous", s.cfg.Rendezvous)
	return nil
}

// Close stops the responder and the sweeper.
func (s *Service) Close() error {
	s.cancel()
	err := s.mdns.Close()
	s.wg.Wait()
	return err
}

// Events returns the membership event stream.
func (s *Service) Events() <-chan Event {
	return s.events
}

// HandlePeerFound implements mdns.Notifee. Each observation refreshes one
// record per advertised address and emits a Discovered event.
func (s *Service) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == s.self {
		return
	}

	deadline := time.Now().Add(s.cfg.RecordTTL)

	s.mu.Lock()
	if len(pi.Addrs) == 0 {
		s.records[recordKey{peer: pi.ID}] = record{deadline: deadline}
	}
	for _, addr := range pi.Addrs {
		s.records[recordKey{peer: pi.ID, addr: addr.String()}] = record{
			addrs:    pi.Addrs,
			deadline: deadline,
		}
	}
	s.mu.Unlock()

	log.Debugw("peer discovered", "peer", pi.ID, "addrs", pi.Addrs)
	s.emit(Event{Kind: Discovered, Peer: pi.ID, Addrs: pi.Addrs})
}

// Live reports whether any discovery record for the peer is still current.
// Expired events must only evict a peer when this returns false.
func (s *Service) Live(p peer.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.records {
		if key.peer == p {
			return true
		}
	}
	return false
}

// Peers returns every peer with at least one live record.
func (s *Service) Peers() []peer.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[peer.ID]struct{})
	var peers []peer.ID
	for key := range s.records {
		if _, ok := seen[key.peer]; ok {
			continue
		}
		seen[key.peer] = struct{}{}
		peers = append(peers, key.peer)
	}
	return peers
}

// sweep drops records past their deadline and emits one Expired event per
// dropped record.
func (s *Service) sweep() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.sweepOnce(now)
		}
	}
}

// sweepOnce flushes evictions held over from earlier ticks, then expires
// stale records. Evictions that still cannot be delivered are carried to
// the next tick; a Discovered drop heals on the next mDNS announce, but a
// lost Expired would pin the peer in the partial view forever.
func (s *Service) sweepOnce(now time.Time) {
	for _, ev := range append(s.takePendingExpired(), s.expireRecords(now)...) {
		if s.tryEmit(ev) {
			log.Debugw("discovery record expired", "peer", ev.Peer)
			continue
		}
		log.Debugw("consumer slow, holding eviction for next sweep", "peer", ev.Peer)
		s.mu.Lock()
		s.pendingExpired = append(s.pendingExpired, ev)
		s.mu.Unlock()
	}
}

func (s *Service) takePendingExpired() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.pendingExpired
	s.pendingExpired = nil
	return pending
}

func (s *Service) expireRecords(now time.Time) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []Event
	for key, rec := range s.records {
		if now.After(rec.deadline) {
			delete(s.records, key)
			expired = append(expired, Event{Kind: Expired, Peer: key.peer, Addrs: rec.addrs})
		}
	}
	return expired
}

func (s *Service) emit(ev Event) {
	if !s.tryEmit(ev) {
		// A stalled consumer only costs us a membership hint; mDNS will
		// re-announce.
		log.Debugw("dropping discovery event, consumer is slow", "peer", ev.Peer)
	}
}

func (s *Service) tryEmit(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}
