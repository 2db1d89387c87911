package p2p

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/stretchr/testify/require"
)

func TestIgnoredPeersIgnoreAndExpire(t *testing.T) {
	ig := NewIgnoredPeers()
	id := peer.ID("peer-a")
	now := time.Unix(1000, 0)

	require.False(t, ig.IsIgnored(id, now))

	ig.Ignore(id, 10*time.Second, now)
	require.True(t, ig.IsIgnored(id, now.Add(5*time.Second)))
	require.False(t, ig.IsIgnored(id, now.Add(11*time.Second)))
}

func TestIgnoredPeersExtendDoesNotShorten(t *testing.T) {
	ig := NewIgnoredPeers()
	id := peer.ID("peer-a")
	now := time.Unix(1000, 0)

	ig.Ignore(id, 30*time.Second, now)
	ig.Ignore(id, 5*time.Second, now)

	require.True(t, ig.IsIgnored(id, now.Add(20*time.Second)))
}

func TestIgnoredPeersPruneDropsExpiredOnly(t *testing.T) {
	ig := NewIgnoredPeers()
	now := time.Unix(1000, 0)

	ig.Ignore(peer.ID("expired"), time.Second, now)
	ig.Ignore(peer.ID("fresh"), time.Hour, now)
	require.Equal(t, 2, ig.Len())

	ig.Prune(now.Add(2 * time.Second))
	require.Equal(t, 1, ig.Len())
	require.True(t, ig.IsIgnored(peer.ID("fresh"), now.Add(2*time.Second)))
}
