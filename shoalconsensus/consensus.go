package shoalconsensus

import (
	"sort"
	"sync"

	"github.com/modality-network/modalnode/dag"
)

// ShoalConsensus drives anchor selection, the commit rule, and causal
// closure over one node's DAG (spec.md §4.3, C3). It is the single-writer
// boundary for consensus-state mutation, the same pattern minerchain's
// ChainService and dag.DAG each use for their own state.
type ShoalConsensus struct {
	mu sync.Mutex

	d          *dag.DAG
	reputation *ReputationManager
	state      *ConsensusState
	committee  *dag.Committee
}

// New builds a Shoal consensus engine over an existing DAG and committee.
func New(d *dag.DAG, committee *dag.Committee, cfg ReputationConfig) *ShoalConsensus {
	return &ShoalConsensus{
		d:          d,
		reputation: NewReputationManager(committee, cfg),
		state:      NewConsensusState(),
		committee:  committee,
	}
}

// NewWithState resumes a Shoal consensus engine from a recovered
// ConsensusState and ReputationState (chainsync.RecoverDAG), rather than
// starting commit/anchor/reputation bookkeeping over from round zero.
func NewWithState(d *dag.DAG, committee *dag.Committee, state *ConsensusState, reputation *ReputationState) *ShoalConsensus {
	return &ShoalConsensus{
		d:          d,
		reputation: NewReputationManagerWithState(committee, reputation),
		state:      state,
		committee:  committee,
	}
}

// ProcessCertificate ingests cert into the DAG (if new), records its
// arrival for reputation, attempts to select this round's anchor, and
// commits it if the commit rule is satisfied. Returns the digests newly
// committed, in no particular order (ordering.go imposes the canonical
// sequence).
func (sc *ShoalConsensus) ProcessCertificate(cert *dag.Certificate) ([]string, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if _, ok := sc.d.Get(cert.Digest); !ok {
		if err := sc.d.Insert(cert); err != nil {
			return nil, err
		}
	}

	sc.recordCertificatePerformance(cert)

	anchor, err := sc.trySelectAnchorLocked(cert.Header.Round)
	if err != nil {
		return nil, err
	}
	if anchor == "" {
		return nil, nil
	}

	sc.state.SetAnchor(cert.Header.Round, anchor)
	anchorsSelected.Inc()

	commits, err := sc.checkCommitRuleLocked(anchor)
	if err != nil {
		return nil, err
	}
	if !commits {
		return nil, nil
	}

	return sc.commitCertificateLocked(anchor)
}

// trySelectAnchorLocked picks round's anchor: the reputation leader's own
// certificate if present, else the highest-reputation certificate actually
// in the DAG at that round (prevalent responsiveness fallback, spec.md
// §4.3).
func (sc *ShoalConsensus) trySelectAnchorLocked(round uint64) (string, error) {
	if _, ok := sc.state.GetAnchor(round); ok {
		return "", nil
	}

	leader := sc.reputation.SelectLeader(round)
	if leaderCert, ok := sc.d.GetAuthorCert(leader, round); ok {
		return leaderCert.Digest, nil
	}

	certs := sc.d.RoundCerts(round)
	if len(certs) == 0 {
		return "", nil
	}

	sort.Slice(certs, func(i, j int) bool {
		return sc.reputation.GetScore(certs[i].Header.Author) > sc.reputation.GetScore(certs[j].Header.Author)
	})
	return certs[0].Digest, nil
}

// checkCommitRuleLocked implements spec.md §4.2's commit rule: round 0
// commits immediately; round>0 commits iff the anchor has a DAG path to at
// least quorum previously-selected anchors from earlier rounds.
func (sc *ShoalConsensus) checkCommitRuleLocked(anchor string) (bool, error) {
	cert, ok := sc.d.Get(anchor)
	if !ok {
		return false, newError("anchor certificate %s not found in DAG", anchor)
	}

	round := cert.Header.Round
	if round == 0 {
		return true, nil
	}

	var prevAnchors []string
	for r := uint64(0); r < round; r++ {
		if a, ok := sc.state.GetAnchor(r); ok {
			prevAnchors = append(prevAnchors, a)
		}
	}
	if len(prevAnchors) == 0 {
		return false, nil
	}

	var reachable int
	for _, prev := range prevAnchors {
		if sc.d.HasPath(anchor, prev) {
			reachable++
		}
	}

	return uint64(reachable) >= sc.committee.QuorumThreshold(), nil
}

// commitCertificateLocked marks anchor and every not-yet-committed ancestor
// reachable from it as committed (spec.md property 7: commit
// causal-closedness), via an explicit-stack walk over parent edges.
func (sc *ShoalConsensus) commitCertificateLocked(anchor string) ([]string, error) {
	cert, ok := sc.d.Get(anchor)
	if !ok {
		return nil, newError("anchor certificate %s not found in DAG", anchor)
	}

	sc.state.Commit(anchor)
	sc.state.LastCommittedRound = cert.Header.Round
	certificatesCommitted.Inc()
	lastCommittedRoundGauge.Set(float64(cert.Header.Round))

	newlyCommitted := []string{anchor}
	toProcess := []string{anchor}
	visited := map[string]bool{}

	for len(toProcess) > 0 {
		current := toProcess[len(toProcess)-1]
		toProcess = toProcess[:len(toProcess)-1]
		if visited[current] {
			continue
		}
		visited[current] = true

		curCert, ok := sc.d.Get(current)
		if !ok {
			continue
		}
		for _, parent := range curCert.Header.ParentList() {
			if sc.state.IsCommitted(parent) || visited[parent] {
				continue
			}
			sc.state.Commit(parent)
			certificatesCommitted.Inc()
			newlyCommitted = append(newlyCommitted, parent)
			toProcess = append(toProcess, parent)
		}
	}

	return newlyCommitted, nil
}

func (sc *ShoalConsensus) recordCertificatePerformance(cert *dag.Certificate) {
	sc.reputation.RecordPerformance(PerformanceRecord{
		Validator: cert.Header.Author,
		Round:     cert.Header.Round,
		LatencyMs: sc.reputation.state.Config.TargetLatencyMs,
		Success:   true,
		Timestamp: cert.Header.Timestamp,
	})
}

// AdvanceRound is called externally, tied to certificate production: it
// increments the current round and periodically refreshes reputation
// scores (spec.md §4.2 "Suspension & advancement").
func (sc *ShoalConsensus) AdvanceRound() {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.state.AdvanceRound()
	currentRoundGauge.Set(float64(sc.state.CurrentRound))
	if sc.state.CurrentRound%10 == 0 {
		sc.reputation.UpdateScores()
	}
}

// CurrentRound returns the engine's current round.
func (sc *ShoalConsensus) CurrentRound() uint64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.state.CurrentRound
}

// LastCommittedRound returns the round of the most recently committed anchor.
func (sc *ShoalConsensus) LastCommittedRound() uint64 {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.state.LastCommittedRound
}

// Committed reports whether digest has been committed.
func (sc *ShoalConsensus) Committed(digest string) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.state.IsCommitted(digest)
}

// CommittedSet returns a snapshot of every committed digest.
func (sc *ShoalConsensus) CommittedSet() map[string]bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	out := make(map[string]bool, len(sc.state.Committed))
	for k := range sc.state.Committed {
		out[k] = true
	}
	return out
}

// DAG exposes the underlying DAG for ordering and sync callers.
func (sc *ShoalConsensus) DAG() *dag.DAG { return sc.d }
