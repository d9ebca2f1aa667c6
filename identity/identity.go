// Package identity holds the process-lifetime keypair and the peer ID
// derived from it. Identities are never persisted: a restarted process is
// a brand new peer.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/crypto/blake2b"
)

// Identity binds a fresh Ed25519 keypair to the peer ID other nodes use to
// address this process.
type Identity struct {
	priv   crypto.PrivKey
	pub    crypto.PubKey
	peerID peer.ID
}

// New generates a fresh Ed25519 keypair and derives the peer ID from it.
// Called exactly once at process start.
func New() (*Identity, error) {
	priv, pub, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}

	pid, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to derive peer ID: %w", err)
	}

	return &Identity{priv: priv, pub: pub, peerID: pid}, nil
}

// PrivKey returns the private key for host construction.
func (id *Identity) PrivKey() crypto.PrivKey {
	return id.priv
}

// PeerID returns this process's peer ID.
func (id *Identity) PeerID() peer.ID {
	return id.peerID
}

// String returns the textual peer identifier used in wire messages.
func (id *Identity) String() string {
	return id.peerID.String()
}

// Matches reports whether the given textual identifier addresses this peer.
func (id *Identity) Matches(s string) bool {
	return s == id.peerID.String()
}

// Fingerprint returns a short blake2b digest of the public key, for logs
// and UI display only.
func (id *Identity) Fingerprint() string {
	raw, err := id.pub.Raw()
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:8])
}
