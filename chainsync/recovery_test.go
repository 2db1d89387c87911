package chainsync

import (
	"testing"
	"time"

	bitfield "github.com/prysmaticlabs/go-bitfield"
	"github.com/stretchr/testify/require"

	"github.com/modality-network/modalnode/dag"
	"github.com/modality-network/modalnode/shoalconsensus"
	"github.com/modality-network/modalnode/store"
)

func allSignersOf4() bitfield.Bitlist {
	b := bitfield.NewBitlist(4)
	for i := uint64(0); i < 4; i++ {
		b.SetBitAt(i, true)
	}
	return b
}

func newTestDAGStore(t *testing.T) *store.Manager {
	t.Helper()
	mgr, err := store.OpenManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func rootCert(author string) *dag.Certificate {
	c := &dag.Certificate{
		Header: dag.Header{Author: author, Round: 0, BatchDigest: "batch-" + author, Timestamp: 1000},
		Signers: allSignersOf4(),
	}
	c.Digest = c.ComputeDigest()
	return c
}

func childCert(author string, round uint64, parents ...*dag.Certificate) *dag.Certificate {
	parentSet := make(map[string]bool, len(parents))
	for _, p := range parents {
		parentSet[p.Digest] = true
	}
	c := &dag.Certificate{
		Header: dag.Header{Author: author, Round: round, BatchDigest: "batch-" + author, Parents: parentSet, Timestamp: int64(1000 + round)},
		Signers: allSignersOf4(),
	}
	c.Digest = c.ComputeDigest()
	return c
}

// TestRecoverFromScratchEmpty covers spec.md property 9: an empty store
// recovers to an empty, valid DAG.
func TestRecoverFromScratchEmpty(t *testing.T) {
	mgr := newTestDAGStore(t)

	result, err := RecoverDAG(mgr, FromScratch)
	require.NoError(t, err)
	require.Equal(t, 0, result.CertificatesLoaded)
	require.EqualValues(t, 0, result.HighestRound)
	require.False(t, result.UsedCheckpoint)
	require.NoError(t, VerifyDAGConsistency(result.DAG))
}

// TestRecoverFromScratchRebuildsDAG covers property 9: recovering from a
// full certificate scan reproduces the same DAG shape regardless of the
// order certificates were originally persisted in.
func TestRecoverFromScratchRebuildsDAG(t *testing.T) {
	mgr := newTestDAGStore(t)

	d := dag.New(mgr)
	r0 := rootCert("validator-a")
	require.NoError(t, d.Insert(r0))
	r1 := childCert("validator-b", 1, r0)
	require.NoError(t, d.Insert(r1))
	r2 := childCert("validator-c", 2, r1)
	require.NoError(t, d.Insert(r2))

	result, err := RecoverDAG(mgr, FromScratch)
	require.NoError(t, err)
	require.Equal(t, 3, result.CertificatesLoaded)
	require.EqualValues(t, 2, result.HighestRound)
	require.NoError(t, VerifyDAGConsistency(result.DAG))

	_, ok := result.DAG.Get(r2.Digest)
	require.True(t, ok)
}

// TestRecoverFromScratchIsIdempotent runs recovery twice against the same
// store and expects the same resulting shape both times (property 9).
func TestRecoverFromScratchIsIdempotent(t *testing.T) {
	mgr := newTestDAGStore(t)

	d := dag.New(mgr)
	r0 := rootCert("validator-a")
	require.NoError(t, d.Insert(r0))
	r1 := childCert("validator-b", 1, r0)
	require.NoError(t, d.Insert(r1))

	first, err := RecoverDAG(mgr, FromScratch)
	require.NoError(t, err)
	second, err := RecoverDAG(mgr, FromScratch)
	require.NoError(t, err)

	require.Equal(t, first.CertificatesLoaded, second.CertificatesLoaded)
	require.Equal(t, first.HighestRound, second.HighestRound)
}

func TestRecoverFromCheckpointNoCheckpointFails(t *testing.T) {
	mgr := newTestDAGStore(t)
	_, err := RecoverDAG(mgr, FromCheckpoint)
	require.Error(t, err)
}

func TestRecoverFromCheckpointReplaysNewerCertificates(t *testing.T) {
	mgr := newTestDAGStore(t)

	d := dag.New(mgr)
	r0 := rootCert("validator-a")
	require.NoError(t, d.Insert(r0))
	r1 := childCert("validator-b", 1, r0)
	require.NoError(t, d.Insert(r1))

	consensus := shoalconsensus.NewConsensusState()
	consensus.Commit(r0.Digest)
	reputation := shoalconsensus.NewReputationState([]string{"validator-a", "validator-b"}, shoalconsensus.DefaultReputationConfig())

	_, err := CreateCheckpoint(mgr, d, 0, consensus, reputation, time.Unix(1700000000, 0))
	require.NoError(t, err)

	r2 := childCert("validator-c", 2, r1)
	require.NoError(t, d.Insert(r2))

	result, err := RecoverDAG(mgr, FromCheckpoint)
	require.NoError(t, err)
	require.True(t, result.UsedCheckpoint)
	require.Equal(t, 3, result.CertificatesLoaded)
	require.EqualValues(t, 2, result.HighestRound)
	require.NotNil(t, result.ConsensusState)
	require.True(t, result.ConsensusState.IsCommitted(r0.Digest))

	_, ok := result.DAG.Get(r2.Digest)
	require.True(t, ok)
}

func TestRecoverHybridFallsBackToScratch(t *testing.T) {
	mgr := newTestDAGStore(t)

	d := dag.New(mgr)
	r0 := rootCert("validator-a")
	require.NoError(t, d.Insert(r0))

	result, err := RecoverDAG(mgr, Hybrid)
	require.NoError(t, err)
	require.False(t, result.UsedCheckpoint)
	require.Equal(t, 1, result.CertificatesLoaded)
}

func TestRecoverHybridPrefersCheckpoint(t *testing.T) {
	mgr := newTestDAGStore(t)

	d := dag.New(mgr)
	r0 := rootCert("validator-a")
	require.NoError(t, d.Insert(r0))

	_, err := CreateCheckpoint(mgr, d, 0, shoalconsensus.NewConsensusState(), shoalconsensus.NewReputationState(nil, shoalconsensus.DefaultReputationConfig()), time.Unix(1700000000, 0))
	require.NoError(t, err)

	result, err := RecoverDAG(mgr, Hybrid)
	require.NoError(t, err)
	require.True(t, result.UsedCheckpoint)
}

// TestVerifyDAGConsistencyPassesAfterNormalInserts checks the common case:
// a DAG built entirely through Insert (which already enforces parent
// presence) always passes the post-recovery consistency check too.
func TestVerifyDAGConsistencyPassesAfterNormalInserts(t *testing.T) {
	mgr := newTestDAGStore(t)
	d := dag.New(mgr)

	r0 := rootCert("validator-a")
	require.NoError(t, d.Insert(r0))
	r1 := childCert("validator-b", 1, r0)
	require.NoError(t, d.Insert(r1))

	require.NoError(t, VerifyDAGConsistency(d))
}

func TestVerifyDAGConsistencyEmptyDAG(t *testing.T) {
	mgr := newTestDAGStore(t)
	require.NoError(t, VerifyDAGConsistency(dag.New(mgr)))
}
