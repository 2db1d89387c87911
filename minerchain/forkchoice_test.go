package minerchain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modality-network/modalnode/shared/params"
)

// Two orphans mined concurrently on top of the same still-missing parent
// must not both become canonical once the parent arrives: only the winner
// of shouldReplaceBlock may be promoted, and cumulativeDifficulty must
// reflect exactly one of them.
func TestTryResolveOrphansPicksSingleWinnerAmongSiblings(t *testing.T) {
	cs, _ := newTestChain(t)
	cfg := params.TestConfig()

	tip := cs.Tip()
	parent := mineNext(t, cfg, tip, 1)

	weakChild := mineNext(t, cfg, parent, 1)
	strongChild := mineNext(t, cfg, parent, 50)

	outcome, err := cs.IngestBlock(weakChild)
	require.NoError(t, err)
	require.Equal(t, OutcomeOrphanGap, outcome)

	outcome, err = cs.IngestBlock(strongChild)
	require.NoError(t, err)
	require.Equal(t, OutcomeOrphanGap, outcome)

	beforeParent := cs.CumulativeDifficulty()

	outcome, err = cs.IngestBlock(parent)
	require.NoError(t, err)
	require.Equal(t, OutcomeCanonical, outcome)

	require.Equal(t, strongChild.Hash, cs.Tip().Hash)
	require.EqualValues(t, strongChild.Index, cs.Tip().Index)

	expected := new(big.Int).Set(beforeParent)
	expected.Add(expected, parent.ActualizedDifficulty())
	expected.Add(expected, strongChild.ActualizedDifficulty())
	require.Equal(t, 0, expected.Cmp(cs.CumulativeDifficulty()))

	loser, found, err := getForkByHash(cs.mgr, weakChild.Hash)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, loser.IsOrphaned)
	require.Equal(t, "Lost fork choice to sibling", loser.OrphanReason)
}
