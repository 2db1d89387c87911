package chainsync

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modality-network/modalnode/minerchain"
	"github.com/modality-network/modalnode/shared/hashutil"
	"github.com/modality-network/modalnode/shared/params"
	"github.com/modality-network/modalnode/store"
)

func newTestChainService(t *testing.T) (*minerchain.ChainService, *store.Manager) {
	t.Helper()
	mgr, err := store.OpenManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	cs, err := minerchain.NewChainService(mgr, params.TestConfig(), "genesis-data")
	require.NoError(t, err)
	return cs, mgr
}

// preimage reproduces the block's canonical hash-input serialization
// (spec.md §6: index, previous_hash, data_hash, timestamp, difficulty,
// nonce, nominated_peer_id, miner_number) for mining in tests, since the
// field order is part of the public wire format even though minerchain
// keeps the builder itself unexported.
func preimage(b *minerchain.Block, nonce *big.Int) string {
	diff := "0"
	if b.Difficulty != nil {
		diff = b.Difficulty.String()
	}
	return fmt.Sprintf("%d|%s|%s|%d|%s|%s|%s|%d",
		b.Index, b.PreviousHash, b.DataHash, b.Timestamp, diff, nonce.String(), b.NominatedPeerID, b.MinerNumber)
}

func mineOnto(t *testing.T, cfg *params.NetworkConfig, tip *minerchain.Block, difficulty uint64, salt string) *minerchain.Block {
	t.Helper()
	b := &minerchain.Block{
		Index:        tip.Index + 1,
		PreviousHash: tip.Hash,
		Timestamp:    tip.Timestamp + 1,
		DataHash:     "payload-" + salt,
		Difficulty:   new(big.Int).SetUint64(difficulty),
		HashFunc:     hashutil.FuncSHA256,
	}
	result, err := hashutil.MineWithStats(func(nonce *big.Int) string { return preimage(b, nonce) },
		difficulty, params.DifficultyCoefficient, params.DifficultyExponent, params.DifficultyBase, cfg.MiningMaxTries, b.HashFunc, 0)
	require.NoError(t, err)
	b.Nonce = result.Nonce
	hash, err := hashutil.HashString(preimage(b, b.Nonce), b.HashFunc)
	require.NoError(t, err)
	b.Hash = hash
	return b
}

// buildChain ingests count new blocks onto cs's current tip, salted so
// distinct chains (e.g. a "remote" reorg past some index) produce distinct
// hashes even over the same indices.
func buildChain(t *testing.T, cs *minerchain.ChainService, cfg *params.NetworkConfig, count int, salt string) {
	t.Helper()
	for i := 0; i < count; i++ {
		next := mineOnto(t, cfg, cs.Tip(), 1, salt)
		_, err := cs.IngestBlock(next)
		require.NoError(t, err)
	}
}

func TestExponentialCheckpointIndicesMatchesScenarioS5(t *testing.T) {
	// Scenario S5: requester tip=5 probes [5,4,3,1,0].
	require.Equal(t, []uint64{5, 4, 3, 1, 0}, ExponentialCheckpointIndices(5))
}

func TestExponentialCheckpointIndicesZeroTip(t *testing.T) {
	require.Equal(t, []uint64{0}, ExponentialCheckpointIndices(0))
}

func TestExponentialCheckpointIndicesAlwaysDescendingAndUnique(t *testing.T) {
	indices := ExponentialCheckpointIndices(17)
	require.Equal(t, uint64(17), indices[0])
	require.Equal(t, uint64(0), indices[len(indices)-1])
	seen := make(map[uint64]bool)
	for i, idx := range indices {
		require.False(t, seen[idx], "duplicate index %d", idx)
		seen[idx] = true
		if i > 0 {
			require.Less(t, idx, indices[i-1])
		}
	}
}

// fakePeerClient answers FindAncestor purely from a peer chain service, for
// exercising the requester side without any transport.
type fakePeerClient struct {
	mgr *store.Manager
	cs  *minerchain.ChainService
}

func (f *fakePeerClient) ChainInfo(ctx context.Context) (*ChainInfo, error) {
	return LocalChainInfo(f.mgr)
}

func (f *fakePeerClient) FindAncestor(ctx context.Context, checkpoints []Checkpoint) (*FindAncestorResponse, error) {
	return AnswerFindAncestor(f.mgr, checkpoints)
}

func (f *fakePeerClient) RangeFetch(ctx context.Context, fromIndex, toIndex uint64) ([]*minerchain.Block, error) {
	chain, err := minerchain.CollectCanonicalChain(f.mgr)
	if err != nil {
		return nil, err
	}
	var out []*minerchain.Block
	for _, b := range chain {
		if b.Index >= fromIndex && b.Index < toIndex {
			out = append(out, b)
		}
	}
	return out, nil
}

// TestFindAncestorScenarioS5 reproduces S5: local and remote share blocks
// [0..3], then diverge at 4 and 5. find-ancestor must land on index 3.
func TestFindAncestorScenarioS5(t *testing.T) {
	cfg := params.TestConfig()

	localCS, localMgr := newTestChainService(t)
	buildChain(t, localCS, cfg, 3, "shared") // indices 1..3

	remoteCS, remoteMgr := newTestChainService(t)
	buildChain(t, remoteCS, cfg, 3, "shared")
	buildChain(t, remoteCS, cfg, 2, "remote-fork") // remote now has 4,5 diverging

	buildChain(t, localCS, cfg, 2, "local-fork") // local has 4,5 diverging differently

	require.EqualValues(t, 5, localCS.Tip().Index)
	require.EqualValues(t, 5, remoteCS.Tip().Index)

	peer := &fakePeerClient{mgr: remoteMgr, cs: remoteCS}
	ancestor, err := FindAncestor(context.Background(), localMgr, localCS.Tip().Index, peer)
	require.NoError(t, err)
	require.NotNil(t, ancestor)
	require.EqualValues(t, 3, *ancestor)
}

func TestFindAncestorIdenticalChainsMatchAtTip(t *testing.T) {
	cfg := params.TestConfig()

	localCS, localMgr := newTestChainService(t)
	buildChain(t, localCS, cfg, 6, "same")

	remoteMgr, err := store.OpenManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = remoteMgr.Close() })
	remoteCS, err := minerchain.NewChainService(remoteMgr, cfg, "genesis-data")
	require.NoError(t, err)
	buildChain(t, remoteCS, cfg, 6, "same")

	require.Equal(t, localCS.Tip().Hash, remoteCS.Tip().Hash)

	peer := &fakePeerClient{mgr: remoteMgr, cs: remoteCS}
	ancestor, err := FindAncestor(context.Background(), localMgr, localCS.Tip().Index, peer)
	require.NoError(t, err)
	require.NotNil(t, ancestor)
	require.EqualValues(t, 6, *ancestor)
}

func TestFindAncestorNoSharedHistory(t *testing.T) {
	cfg := params.TestConfig()

	localCS, localMgr := newTestChainService(t)
	buildChain(t, localCS, cfg, 4, "local-only")

	remoteMgr, err := store.OpenManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = remoteMgr.Close() })
	remoteCS, err := minerchain.NewChainService(remoteMgr, cfg, "different-genesis")
	require.NoError(t, err)
	buildChain(t, remoteCS, cfg, 4, "remote-only")

	peer := &fakePeerClient{mgr: remoteMgr, cs: remoteCS}
	ancestor, err := FindAncestor(context.Background(), localMgr, localCS.Tip().Index, peer)
	require.NoError(t, err)
	require.Nil(t, ancestor)
}
