package minerchain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modality-network/modalnode/shared/hashutil"
	"github.com/modality-network/modalnode/shared/params"
	"github.com/modality-network/modalnode/store"
)

func newTestChain(t *testing.T) (*ChainService, *store.Manager) {
	t.Helper()
	mgr, err := store.OpenManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	cs, err := NewChainService(mgr, params.TestConfig(), "genesis-data")
	require.NoError(t, err)
	return cs, mgr
}

func mineNext(t *testing.T, cfg *params.NetworkConfig, tip *Block, difficulty uint64) *Block {
	t.Helper()
	b := &Block{
		Index:        tip.Index + 1,
		PreviousHash: tip.Hash,
		Timestamp:    tip.Timestamp + 1,
		DataHash:     "payload",
		Difficulty:   new(big.Int).SetUint64(difficulty),
		HashFunc:     hashutil.FuncSHA256,
	}
	result, err := hashutil.MineWithStats(b.hashInputWithNonce, difficulty, params.DifficultyCoefficient, params.DifficultyExponent, params.DifficultyBase, cfg.MiningMaxTries, b.HashFunc, 0)
	require.NoError(t, err)
	b.Nonce = result.Nonce
	hash, err := hashutil.HashString(b.hashInputWithNonce(b.Nonce), b.HashFunc)
	require.NoError(t, err)
	b.Hash = hash
	return b
}

func TestIngestBlockExtendsCanonicalChain(t *testing.T) {
	cs, _ := newTestChain(t)
	cfg := params.TestConfig()

	tip := cs.Tip()
	require.EqualValues(t, 0, tip.Index)

	next := mineNext(t, cfg, tip, 1)
	outcome, err := cs.IngestBlock(next)
	require.NoError(t, err)
	require.Equal(t, OutcomeCanonical, outcome)
	require.Equal(t, next.Hash, cs.Tip().Hash)
}

func TestIngestBlockRejectsTamperedHash(t *testing.T) {
	cs, _ := newTestChain(t)
	cfg := params.TestConfig()

	next := mineNext(t, cfg, cs.Tip(), 1)
	next.Hash = "deadbeef"
	_, err := cs.IngestBlock(next)
	require.Error(t, err)
}

func TestIngestBlockDuplicateRejected(t *testing.T) {
	cs, _ := newTestChain(t)
	cfg := params.TestConfig()

	next := mineNext(t, cfg, cs.Tip(), 1)
	_, err := cs.IngestBlock(next)
	require.NoError(t, err)

	_, err = cs.IngestBlock(next)
	require.Error(t, err)
}

func TestIngestBlockGapDetected(t *testing.T) {
	cs, _ := newTestChain(t)
	cfg := params.TestConfig()

	tip := cs.Tip()
	b1 := mineNext(t, cfg, tip, 1)
	b2 := mineNext(t, cfg, b1, 1)

	outcome, err := cs.IngestBlock(b2)
	require.NoError(t, err)
	require.Equal(t, OutcomeOrphanGap, outcome)
	require.Equal(t, tip.Hash, cs.Tip().Hash)
}

func TestForkChoicePrefersHigherDifficulty(t *testing.T) {
	cs, _ := newTestChain(t)
	cfg := params.TestConfig()

	tip := cs.Tip()
	weak := mineNext(t, cfg, tip, 1)
	outcome, err := cs.IngestBlock(weak)
	require.NoError(t, err)
	require.Equal(t, OutcomeCanonical, outcome)

	strong := mineNext(t, cfg, tip, 1000)

	outcome, err = cs.IngestBlock(strong)
	require.NoError(t, err)
	require.Equal(t, OutcomeCanonical, outcome)
	require.Equal(t, strong.Hash, cs.Tip().Hash)
}
