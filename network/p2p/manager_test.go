package p2p

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/Laegel/votingdapp/identity"
)

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	id, err := identity.New()
	require.NoError(t, err)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "/ip4/127.0.0.1/tcp/0"
	}
	m, err := NewManager(id, cfg)
	require.NoError(t, err)
	require.NoError(t, m.Start())
	t.Cleanup(func() { m.Close() })
	return m
}

func connectManagers(t *testing.T, a, b *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.Host.Connect(ctx, peer.AddrInfo{ID: b.Host.ID(), Addrs: b.Host.Addrs()})
	require.NoError(t, err)
}

// A message flooded through an intermediate peer must still carry the
// publishing peer as From, not the last hop, or answers get addressed to
// the relay.
func TestInboundMessage_RelayKeepsOrigin(t *testing.T) {
	a := newTestManager(t, Config{Topic: "votes-relay-test"})
	b := newTestManager(t, Config{Topic: "votes-relay-test"})
	c := newTestManager(t, Config{Topic: "votes-relay-test"})

	// Line topology: a-b-c. a and c are never connected directly, so c
	// only sees a's publishes relayed by b.
	connectManagers(t, a, b)
	connectManagers(t, b, c)

	payload := []byte(`{"type":"list_request","request":{"mode":"all"}}`)
	deadline := time.After(10 * time.Second)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.Messages():
			require.Equal(t, a.Host.ID(), msg.From)
			require.JSONEq(t, string(payload), string(msg.Data))
			return
		case <-ticker.C:
			// Republish until the subscription has propagated both hops.
			require.NoError(t, a.Publish(payload))
		case <-deadline:
			t.Fatal("no message reached the far end of the line")
		}
	}
}

func TestAddToView_HonorsMaxPeers(t *testing.T) {
	m := newTestManager(t, Config{Topic: "votes-cap-test", MaxPeers: 2})

	var peers []peer.ID
	for i := 0; i < 3; i++ {
		id, err := identity.New()
		require.NoError(t, err)
		peers = append(peers, id.PeerID())
		m.AddToView(peer.AddrInfo{ID: id.PeerID()})
	}

	require.Len(t, m.ViewPeers(), 2)
	require.False(t, m.view.Contains(peers[2]))

	// Re-adding a view member never counts against the cap.
	m.AddToView(peer.AddrInfo{ID: peers[0]})
	require.Len(t, m.ViewPeers(), 2)

	// An eviction frees a slot.
	m.RemoveFromView(peers[0])
	m.AddToView(peer.AddrInfo{ID: peers[2]})
	require.True(t, m.view.Contains(peers[2]))
}
