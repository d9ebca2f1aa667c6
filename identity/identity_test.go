package identity

import (
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	id, err := New()
	require.NoError(t, err)
	require.NotNil(t, id)

	// The textual identifier must round-trip through the peer ID codec.
	decoded, err := peer.Decode(id.String())
	require.NoError(t, err)
	require.Equal(t, id.PeerID(), decoded)

	require.True(t, id.Matches(id.String()))
	require.False(t, id.Matches("some-other-peer"))

	require.Len(t, id.Fingerprint(), 16)
}

func TestNew_UniquePerProcessRun(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	b, err := New()
	require.NoError(t, err)

	require.NotEqual(t, a.String(), b.String(), "two generated identities must not collide")
}
