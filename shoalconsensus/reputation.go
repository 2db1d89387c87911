package shoalconsensus

import "github.com/modality-network/modalnode/dag"

// ReputationManager ties a ReputationState to a fixed committee order and
// derives the per-round leader from it (spec.md §4.3).
type ReputationManager struct {
	committee *dag.Committee
	state     *ReputationState
}

// NewReputationManager starts every committee member at perfect reputation.
func NewReputationManager(committee *dag.Committee, cfg ReputationConfig) *ReputationManager {
	peerIDs := make([]string, len(committee.Validators))
	for i, v := range committee.Validators {
		peerIDs[i] = v.PeerID
	}
	return &ReputationManager{
		committee: committee,
		state:     NewReputationState(peerIDs, cfg),
	}
}

// NewReputationManagerWithState resumes a manager from a previously
// persisted ReputationState (recovery.rs's checkpoint replay), rather than
// starting every validator back at perfect reputation.
func NewReputationManagerWithState(committee *dag.Committee, state *ReputationState) *ReputationManager {
	return &ReputationManager{committee: committee, state: state}
}

// GetScore returns validator's current reputation score.
func (rm *ReputationManager) GetScore(validator string) float64 {
	return rm.state.GetScore(validator)
}

// RecordPerformance feeds one observation into the reputation window.
func (rm *ReputationManager) RecordPerformance(rec PerformanceRecord) {
	rm.state.RecordPerformance(rec)
}

// UpdateScores recomputes every committee member's score from its window.
func (rm *ReputationManager) UpdateScores() {
	rm.state.UpdateScores()
}

// SelectLeader deterministically picks the round's preferred leader: the
// highest-reputation committee member, ties broken by rotating through the
// tied set with `round` so equally-reputable validators alternate across
// rounds instead of one perpetually winning (spec.md §4.3
// "reputation-weighted leader selection").
func (rm *ReputationManager) SelectLeader(round uint64) string {
	if len(rm.committee.Validators) == 0 {
		return ""
	}

	best := rm.GetScore(rm.committee.Validators[0].PeerID)
	for _, v := range rm.committee.Validators[1:] {
		if s := rm.GetScore(v.PeerID); s > best {
			best = s
		}
	}

	var tied []string
	for _, v := range rm.committee.Validators {
		if rm.GetScore(v.PeerID) == best {
			tied = append(tied, v.PeerID)
		}
	}

	return tied[round%uint64(len(tied))]
}
