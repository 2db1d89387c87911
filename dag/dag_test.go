package dag

import (
	"testing"

	bitfield "github.com/prysmaticlabs/go-bitfield"
	"github.com/stretchr/testify/require"

	"github.com/modality-network/modalnode/store"
)

func newTestDAG(t *testing.T) *DAG {
	t.Helper()
	mgr, err := store.OpenManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return New(mgr)
}

func rootCert(author string) *Certificate {
	c := &Certificate{Header: Header{Author: author, Round: 0, BatchDigest: "batch-" + author, Parents: map[string]bool{}}}
	c.Digest = c.ComputeDigest()
	return c
}

func childCert(author string, round uint64, parents ...string) *Certificate {
	parentSet := make(map[string]bool, len(parents))
	for _, p := range parents {
		parentSet[p] = true
	}
	c := &Certificate{Header: Header{Author: author, Round: round, BatchDigest: "batch-" + author, Parents: parentSet}}
	c.Digest = c.ComputeDigest()
	return c
}

// Property 5: DAG no-equivocation.
func TestInsertRejectsEquivocation(t *testing.T) {
	d := newTestDAG(t)

	first := rootCert("v1")
	require.NoError(t, d.Insert(first))

	second := &Certificate{Header: Header{Author: "v1", Round: 0, BatchDigest: "different-batch", Parents: map[string]bool{}}}
	second.Digest = second.ComputeDigest()
	require.NotEqual(t, first.Digest, second.Digest)

	err := d.Insert(second)
	require.Error(t, err)
	var dagErr *Error
	require.ErrorAs(t, err, &dagErr)
	require.Equal(t, KindEquivocation, dagErr.Kind)

	// the original remains the sole entry for (v1, 0).
	got, ok := d.GetAuthorCert("v1", 0)
	require.True(t, ok)
	require.Equal(t, first.Digest, got.Digest)

	require.True(t, d.IsEquivocating("v1"))
	require.False(t, d.IsEquivocating("v2"))
	require.Equal(t, []string{"v1"}, d.EquivocatingAuthors())
}

func TestInsertIdenticalResubmissionIsNoop(t *testing.T) {
	d := newTestDAG(t)
	c := rootCert("v1")
	require.NoError(t, d.Insert(c))
	require.NoError(t, d.Insert(c))
	require.Equal(t, 1, d.RoundSize(0))
}

// Property 6: parent completeness.
func TestInsertRejectsMissingParent(t *testing.T) {
	d := newTestDAG(t)
	child := childCert("v1", 1, "nonexistent-digest")

	err := d.Insert(child)
	require.Error(t, err)
	var dagErr *Error
	require.ErrorAs(t, err, &dagErr)
	require.Equal(t, KindParentMissing, dagErr.Kind)
}

func TestInsertRound0RequiresNoParents(t *testing.T) {
	d := newTestDAG(t)
	require.NoError(t, d.Insert(rootCert("v1")))
	require.Equal(t, 1, d.RoundSize(0))
}

func TestHasPathFollowsParents(t *testing.T) {
	d := newTestDAG(t)
	r1 := rootCert("v1")
	require.NoError(t, d.Insert(r1))

	c1 := childCert("v2", 1, r1.Digest)
	require.NoError(t, d.Insert(c1))

	c2 := childCert("v3", 2, c1.Digest)
	require.NoError(t, d.Insert(c2))

	require.True(t, d.HasPath(c2.Digest, r1.Digest))
	require.True(t, d.HasPath(c2.Digest, c1.Digest))
	require.False(t, d.HasPath(r1.Digest, c2.Digest))
}

func TestGetMissingParentsAndHasAllParents(t *testing.T) {
	d := newTestDAG(t)
	r1 := rootCert("v1")
	require.NoError(t, d.Insert(r1))

	complete := childCert("v2", 1, r1.Digest)
	require.True(t, d.HasAllParents(complete))
	require.Empty(t, d.GetMissingParents(complete))

	incomplete := childCert("v2", 1, r1.Digest, "missing-digest")
	require.False(t, d.HasAllParents(incomplete))
	require.Equal(t, []string{"missing-digest"}, d.GetMissingParents(incomplete))
}

// S6: 4-validator committee stake=[1,1,1,1] (quorum=3); round-0 certs from
// v1, v2, v3 each carry 3 signers; the round-1 cert from v1 references all
// three round-0 certs with 3 signers.
func TestScenarioS6DAGCommitSetup(t *testing.T) {
	d := newTestDAG(t)
	committee := NewCommittee(1, 1, []string{"v1", "v2", "v3", "v4"}, nil, nil)
	require.EqualValues(t, 3, committee.QuorumThreshold())

	signers3of4 := func() bitfield.Bitlist {
		b := NewSignersBitlist(committee)
		b.SetBitAt(0, true)
		b.SetBitAt(1, true)
		b.SetBitAt(2, true)
		return b
	}

	var roundZero []*Certificate
	for _, author := range []string{"v1", "v2", "v3"} {
		c := rootCert(author)
		c.Signers = signers3of4()
		require.NoError(t, d.Insert(c))
		require.True(t, HasQuorum(c, committee))
		roundZero = append(roundZero, c)
	}
	require.Equal(t, 3, d.RoundSize(0))

	anchor := childCert("v1", 1, roundZero[0].Digest, roundZero[1].Digest, roundZero[2].Digest)
	anchor.Signers = signers3of4()
	require.NoError(t, d.Insert(anchor))
	require.True(t, HasQuorum(anchor, committee))

	for _, r0 := range roundZero {
		require.True(t, d.HasPath(anchor.Digest, r0.Digest))
	}
}

func TestGetMissingCertificatesUpToRound(t *testing.T) {
	d := newTestDAG(t)
	committee := NewCommittee(1, 1, []string{"v1", "v2", "v3", "v4"}, nil, nil)

	require.NoError(t, d.Insert(rootCert("v1")))
	require.NoError(t, d.Insert(rootCert("v2")))

	gaps := d.GetMissingCertificatesUpToRound(0, committee)
	require.Contains(t, gaps[0], "v3")
	require.Contains(t, gaps[0], "v4")
	require.NotContains(t, gaps[0], "v1")
}

func TestHighestRoundOnEmptyDAG(t *testing.T) {
	d := newTestDAG(t)
	_, ok := d.HighestRound()
	require.False(t, ok)
}
