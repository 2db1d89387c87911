package dagviz

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modality-network/modalnode/dag"
	"github.com/modality-network/modalnode/store"
)

func TestRenderStringContainsEveryDigest(t *testing.T) {
	mgr, err := store.OpenManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	d := dag.New(mgr)

	root := &dag.Certificate{Header: dag.Header{Author: "v1", Round: 0, BatchDigest: "b1", Parents: map[string]bool{}}}
	root.Digest = root.ComputeDigest()
	require.NoError(t, d.Insert(root))

	out := RenderString(d)
	require.Contains(t, out, shortDigest(root.Digest))
}

func TestRenderEmptyDAG(t *testing.T) {
	mgr, err := store.OpenManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	d := dag.New(mgr)

	out := RenderString(d)
	require.NotEmpty(t, out)
}
