package chainsync

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modality-network/modalnode/shared/params"
)

// TestSyncWithPeerNoSyncWhenLocalIsAhead covers scenario S1: a peer with a
// shorter, lighter chain never triggers a reorg.
func TestSyncWithPeerNoSyncWhenLocalIsAhead(t *testing.T) {
	cfg := params.TestConfig()

	localCS, localMgr := newTestChainService(t)
	buildChain(t, localCS, cfg, 5, "local")

	remoteCS, remoteMgr := newTestChainService(t)
	buildChain(t, remoteCS, cfg, 2, "remote")

	sc := NewSyncCoordinator(localMgr, localCS, cfg)
	result, err := sc.SyncWithPeer(context.Background(), "peer-1", &fakePeerClient{mgr: remoteMgr, cs: remoteCS})
	require.NoError(t, err)
	require.Equal(t, OutcomeNoSyncNeeded, result.Outcome)
	require.EqualValues(t, 5, localCS.Tip().Index)
}

// TestSyncWithPeerAdoptsLongerChain covers scenario S2: a peer chain with
// higher cumulative difficulty wins and the node reorgs onto it.
func TestSyncWithPeerAdoptsLongerChain(t *testing.T) {
	cfg := params.TestConfig()

	localCS, localMgr := newTestChainService(t)
	buildChain(t, localCS, cfg, 2, "local")

	remoteCS, remoteMgr := newTestChainService(t)
	buildChain(t, remoteCS, cfg, 2, "shared-prefix-but-different")
	buildChain(t, remoteCS, cfg, 4, "remote-longer")

	sc := NewSyncCoordinator(localMgr, localCS, cfg)
	result, err := sc.SyncWithPeer(context.Background(), "peer-1", &fakePeerClient{mgr: remoteMgr, cs: remoteCS})
	require.NoError(t, err)
	require.Equal(t, OutcomeSynced, result.Outcome)
	require.EqualValues(t, 6, result.NewChainTip)
	require.EqualValues(t, 6, localCS.Tip().Index)
	require.Equal(t, remoteCS.Tip().Hash, localCS.Tip().Hash)
}

// TestSyncWithPeerRespectsCooldown covers spec.md §5: a second call for the
// same peer before the cooldown elapses is refused rather than run twice.
func TestSyncWithPeerRespectsCooldown(t *testing.T) {
	cfg := params.TestConfig()

	localCS, localMgr := newTestChainService(t)
	buildChain(t, localCS, cfg, 1, "local")

	remoteCS, remoteMgr := newTestChainService(t)
	buildChain(t, remoteCS, cfg, 1, "remote")

	sc := NewSyncCoordinator(localMgr, localCS, cfg)
	peer := &fakePeerClient{mgr: remoteMgr, cs: remoteCS}

	first, err := sc.SyncWithPeer(context.Background(), "peer-1", peer)
	require.NoError(t, err)
	require.Equal(t, OutcomeNoSyncNeeded, first.Outcome)

	second, err := sc.SyncWithPeer(context.Background(), "peer-1", peer)
	require.NoError(t, err)
	require.Equal(t, OutcomeNoSyncNeeded, second.Outcome)
	require.Contains(t, second.Reason, "cooldown")
}

func TestSyncWithPeerDifferentPeersDoNotShareCooldown(t *testing.T) {
	cfg := params.TestConfig()

	localCS, localMgr := newTestChainService(t)
	buildChain(t, localCS, cfg, 1, "local")

	remoteCS, remoteMgr := newTestChainService(t)
	buildChain(t, remoteCS, cfg, 1, "remote")

	sc := NewSyncCoordinator(localMgr, localCS, cfg)
	peer := &fakePeerClient{mgr: remoteMgr, cs: remoteCS}

	_, err := sc.SyncWithPeer(context.Background(), "peer-1", peer)
	require.NoError(t, err)

	result, err := sc.SyncWithPeer(context.Background(), "peer-2", peer)
	require.NoError(t, err)
	require.NotContains(t, result.Reason, "cooldown")
}

func TestPeerWinsPrefersCumulativeDifficultyThenLength(t *testing.T) {
	ten := big.NewInt(10)
	twenty := big.NewInt(20)

	require.True(t, peerWins(ten, 3, twenty, 1))
	require.False(t, peerWins(twenty, 3, ten, 10))
	require.True(t, peerWins(ten, 3, ten, 5))
	require.False(t, peerWins(ten, 5, ten, 3))
}
