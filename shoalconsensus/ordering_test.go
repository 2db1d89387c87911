package shoalconsensus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modality-network/modalnode/dag"
	"github.com/modality-network/modalnode/store"
)

func newTestDAG(t *testing.T) *dag.DAG {
	t.Helper()
	mgr, err := store.OpenManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return dag.New(mgr)
}

func insertCert(t *testing.T, d *dag.DAG, author string, round uint64, parents ...string) *dag.Certificate {
	t.Helper()
	c := certAt(author, round, []bool{true, true, true, false}, parents...)
	require.NoError(t, d.Insert(c))
	return c
}

// Property 8: topological linearization — every parent precedes its child
// in the emitted order, ties break by (round, author).
func TestLinearizeCommittedLinearChain(t *testing.T) {
	d := newTestDAG(t)
	c0 := insertCert(t, d, "v1", 0)
	c1 := insertCert(t, d, "v2", 1, c0.Digest)
	c2 := insertCert(t, d, "v3", 2, c1.Digest)

	committed := map[string]bool{c0.Digest: true, c1.Digest: true, c2.Digest: true}
	ordered, err := LinearizeCommitted(d, committed)
	require.NoError(t, err)
	require.Equal(t, []string{c0.Digest, c1.Digest, c2.Digest}, ordered)
}

func TestLinearizeCommittedDiamond(t *testing.T) {
	d := newTestDAG(t)
	c0 := insertCert(t, d, "v1", 0)
	c1 := insertCert(t, d, "v2", 1, c0.Digest)
	c2 := insertCert(t, d, "v3", 1, c0.Digest)
	c3 := insertCert(t, d, "v4", 2, c1.Digest, c2.Digest)

	committed := map[string]bool{c0.Digest: true, c1.Digest: true, c2.Digest: true, c3.Digest: true}
	ordered, err := LinearizeCommitted(d, committed)
	require.NoError(t, err)
	require.Len(t, ordered, 4)
	require.Equal(t, c0.Digest, ordered[0])
	require.Equal(t, c3.Digest, ordered[3])

	// round-1 ties broken by author: v2 < v3 lexicographically.
	require.Equal(t, c1.Digest, ordered[1])
	require.Equal(t, c2.Digest, ordered[2])
}

func TestLinearizeCommittedDeterministicAcrossCalls(t *testing.T) {
	d := newTestDAG(t)
	c1 := insertCert(t, d, "v1", 0)
	c2 := insertCert(t, d, "v2", 0)
	c3 := insertCert(t, d, "v3", 0)

	committed := map[string]bool{c1.Digest: true, c2.Digest: true, c3.Digest: true}
	first, err := LinearizeCommitted(d, committed)
	require.NoError(t, err)
	second, err := LinearizeCommitted(d, committed)
	require.NoError(t, err)
	require.Equal(t, first, second)
	// no causal relation among the three: tie-break is purely by author.
	require.Equal(t, []string{"v1", "v2", "v3"}, []string{authorOf(d, first[0]), authorOf(d, first[1]), authorOf(d, first[2])})
}

func authorOf(d *dag.DAG, digest string) string {
	c, _ := d.Get(digest)
	return c.Header.Author
}

func TestLinearizeCommittedSingle(t *testing.T) {
	d := newTestDAG(t)
	c0 := insertCert(t, d, "v1", 0)
	ordered, err := LinearizeCommitted(d, map[string]bool{c0.Digest: true})
	require.NoError(t, err)
	require.Equal(t, []string{c0.Digest}, ordered)
}
