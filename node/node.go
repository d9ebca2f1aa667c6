// Package node drives the vote protocol: it decodes inbound gossip
// payloads, answers list requests from the local store, applies discovery
// events to the gossip partial view and bridges results to the external UI
// collaborator.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/Laegel/votingdapp/identity"
	"github.com/Laegel/votingdapp/network/discovery"
	"github.com/Laegel/votingdapp/network/p2p"
	"github.com/Laegel/votingdapp/protocol"
	"github.com/Laegel/votingdapp/store"
)

var log = logging.Logger("votingdapp:node")

// UI event names understood by the external front end.
const (
	EventGetLanguages = "get_languages"
	EventGetVotes     = "get_votes"
	EventNew          = "new"
)

// Emitter is the external UI collaborator. Implementations must not block
// the caller for long; the bridge loop runs on the calling goroutine.
type Emitter interface {
	Emit(event string, payload any)
}

// Network is the subset of the vote network the node drives.
type Network interface {
	Messages() <-chan p2p.InboundMessage
	DiscoveryEvents() <-chan discovery.Event
	Publish(data []byte) error
	AddToView(p peer.ID, addrs []multiaddr.Multiaddr)
	RemoveFromView(p peer.ID)
	Live(p peer.ID) bool
	Peers() []peer.ID
}

// VotesPayload is the get_votes event body.
type VotesPayload struct {
	Votes []store.Vote `json:"votes"`
}

// LanguagesPayload is the get_languages event body.
type LanguagesPayload struct {
	Languages []Language `json:"languages"`
}

// Node is one running peer.
type Node struct {
	id    *identity.Identity
	net   Network
	store *store.Store
	ui    Emitter

	// responses carries locally built answers from fire-and-forget store
	// reads into the bridge loop. Bounded: a flood of inbound requests
	// drops answers instead of growing memory.
	responses chan protocol.ListResponse

	wg sync.WaitGroup
}

// New wires a node from its collaborators. responseBuffer bounds the
// internal response channel; zero or negative picks a small default.
func New(id *identity.Identity, net Network, st *store.Store, ui Emitter, responseBuffer int) *Node {
	if responseBuffer <= 0 {
		responseBuffer = 64
	}
	return &Node{
		id:        id,
		net:       net,
		store:     st,
		ui:        ui,
		responses: make(chan protocol.ListResponse, responseBuffer),
	}
}

// ID returns this peer's identifier.
func (n *Node) ID() string {
	return n.id.String()
}

// Run is the event bridge: one loop multiplexing discovery events, inbound
// topic messages and locally built responses until the context ends.
func (n *Node) Run(ctx context.Context) {
	log.Infow("node running", "peer", n.id.String(), "fingerprint", n.id.Fingerprint())

	for {
		select {
		case <-ctx.Done():
			n.wg.Wait()
			return
		case ev := <-n.net.DiscoveryEvents():
			n.applyDiscoveryEvent(ev)
		case msg := <-n.net.Messages():
			n.handleInbound(msg)
		case resp := <-n.responses:
			n.forwardResponse(resp)
		}
	}
}

// applyDiscoveryEvent mutates the gossip partial view. Expired only evicts
// a peer when no other discovery record still reports it live.
func (n *Node) applyDiscoveryEvent(ev discovery.Event) {
	switch ev.Kind {
	case discovery.Discovered:
		n.net.AddToView(ev.Peer, ev.Addrs)
	case discovery.Expired:
		if !n.net.Live(ev.Peer) {
			log.Debugw("peer expired", "peer", ev.Peer)
			n.net.RemoveFromView(ev.Peer)
		}
	}
}

// handleInbound decodes one topic payload and dispatches it. Payloads that
// decode as neither message kind are dropped silently.
func (n *Node) handleInbound(msg p2p.InboundMessage) {
	env, err := protocol.Decode(msg.Data)
	if err != nil {
		log.Debugw("dropping undecodable payload", "from", msg.From)
		return
	}

	switch env.Type {
	case protocol.MessageTypeResponse:
		n.handleResponse(msg.From, env.Response)
	case protocol.MessageTypeRequest:
		n.handleRequest(msg.From, env.Request)
	}
}

// handleResponse forwards a self-addressed answer to the UI; anything else
// was broadcast for some other subscriber and is ignored.
func (n *Node) handleResponse(from peer.ID, resp *protocol.ListResponse) {
	if !n.id.Matches(resp.Receiver) {
		return
	}
	log.Infow("received list response", "from", from, "votes", len(resp.Data))
	n.emitNew(*resp)
}

// handleRequest answers All requests unconditionally and One requests only
// when this peer is the target.
func (n *Node) handleRequest(from peer.ID, req *protocol.ListRequest) {
	switch req.Mode {
	case protocol.ModeAll:
		log.Debugw("received all request", "from", from)
		n.respondWithPublicVotes(from.String())
	case protocol.ModeOne:
		if n.id.Matches(req.Peer) {
			log.Debugw("received targeted request", "from", from)
			n.respondWithPublicVotes(from.String())
		}
	}
}

// respondWithPublicVotes reads the local store off the bridge loop and
// enqueues the public subset addressed to receiver. A failed read logs and
// sends nothing; the requester sees a non-answer, not an error. A full
// channel drops the response.
func (n *Node) respondWithPublicVotes(receiver string) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		votes, err := n.store.PublicVotes()
		if err != nil {
			log.Errorw("error fetching local votes to answer request", "err", err)
			return
		}

		resp := protocol.ListResponse{
			Mode:     protocol.ModeAll,
			Receiver: receiver,
			Data:     votes,
		}

		select {
		case n.responses <- resp:
		default:
			log.Warnw("response channel full, dropping response", "receiver", receiver)
		}
	}()
}

// forwardResponse delivers a locally built answer. Answers addressed to
// this peer or to everyone go straight to the UI and never hit the wire:
// no remote subscriber surfaces a response that names another receiver.
// Answers for a specific remote requester are published on the vote topic.
func (n *Node) forwardResponse(resp protocol.ListResponse) {
	if n.id.Matches(resp.Receiver) || resp.Receiver == protocol.BroadcastReceiver {
		n.emitNew(resp)
		return
	}

	env := protocol.NewResponse(resp.Receiver, resp.Data)
	data, err := env.Marshal()
	if err != nil {
		log.Errorw("cannot serialize response", "err", err)
		return
	}
	if err := n.net.Publish(data); err != nil {
		log.Warnw("error publishing response", "err", err)
	}
}

func (n *Node) emitNew(resp protocol.ListResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Errorw("cannot serialize response for UI", "err", err)
		return
	}
	n.ui.Emit(EventNew, string(data))
}

// AddVote stores a new private vote, announces it by asking every peer for
// its public set, enqueues our own public set for the local UI, and
// refreshes the vote list. A store failure aborts the whole action.
func (n *Node) AddVote(name string) (store.Vote, error) {
	vote, err := n.store.Add(name)
	if err != nil {
		return store.Vote{}, fmt.Errorf("failed to add vote: %w", err)
	}

	if err := n.publishEnvelope(protocol.NewAllRequest()); err != nil {
		log.Warnw("error broadcasting list request", "err", err)
	}
	n.respondWithPublicVotes(protocol.BroadcastReceiver)

	if err := n.EmitVotes(); err != nil {
		log.Warnw("error emitting votes after add", "err", err)
	}
	return vote, nil
}

// MarkPublic makes a stored vote visible to other peers (false -> true
// only) and refreshes the UI.
func (n *Node) MarkPublic(id uint64) error {
	if err := n.store.MarkPublic(id); err != nil {
		return fmt.Errorf("failed to publish vote %d: %w", id, err)
	}
	return n.EmitVotes()
}

// RequestAll asks every subscriber for its public votes.
func (n *Node) RequestAll() error {
	return n.publishEnvelope(protocol.NewAllRequest())
}

// RequestOne asks a single peer for its public votes.
func (n *Node) RequestOne(peerID string) error {
	return n.publishEnvelope(protocol.NewOneRequest(peerID))
}

// EmitVotes pushes the full local set to the UI.
func (n *Node) EmitVotes() error {
	votes, err := n.store.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read local votes: %w", err)
	}
	n.ui.Emit(EventGetVotes, VotesPayload{Votes: votes})
	return nil
}

// EmitLanguages pushes the static language list to the UI.
func (n *Node) EmitLanguages() {
	n.ui.Emit(EventGetLanguages, LanguagesPayload{Languages: Languages()})
}

// Peers returns the current gossip partial view.
func (n *Node) Peers() []peer.ID {
	return n.net.Peers()
}

func (n *Node) publishEnvelope(env *protocol.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	return n.net.Publish(data)
}
