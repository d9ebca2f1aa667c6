package p2p

import (
	"sort"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
)

// View is the partial view for the vote topic: the set of peers this node
// forwards published messages to and accepts messages from. Discovery
// events are its only writers.
type View struct {
	mu    sync.RWMutex
	peers map[peer.ID]struct{}
}

func NewView() *View {
	return &View{peers: make(map[peer.ID]struct{})}
}

// Add inserts a peer. Adding a peer already in the view is a no-op.
func (v *View) Add(p peer.ID) {
	v.mu.Lock()
	v.peers[p] = struct{}{}
	v.mu.Unlock()
}

// AddCapped inserts a peer unless the view already holds max members.
// It reports whether the peer is in the view afterwards; a known peer is
// always kept. max <= 0 means unbounded.
func (v *View) AddCapped(p peer.ID, max int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.peers[p]; ok {
		return true
	}
	if max > 0 && len(v.peers) >= max {
		return false
	}
	v.peers[p] = struct{}{}
	return true
}

// Remove drops a peer. Removing an absent peer is a no-op.
func (v *View) Remove(p peer.ID) {
	v.mu.Lock()
	delete(v.peers, p)
	v.mu.Unlock()
}

// Contains reports whether the peer is in the view.
func (v *View) Contains(p peer.ID) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.peers[p]
	return ok
}

// Len returns the view size.
func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.peers)
}

// Peers returns the view members in stable order.
func (v *View) Peers() []peer.ID {
	v.mu.RLock()
	defer v.mu.RUnlock()
	peers := make([]peer.ID, 0, len(v.peers))
	for p := range v.peers {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}
