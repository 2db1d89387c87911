package dag

// HasQuorum reports whether cert's signers meet the committee's stake
// quorum. The committee's QuorumThreshold is the canonical check (spec.md
// §9 open questions): floor(2*total_stake/3)+1. For the uniform-stake-1
// committee built by NewCommittee this equals the count-based 2f+1 bound
// only when n=3f+1 (n=4: both 3); for other sizes it is larger (n=3: 3 vs 1).
func HasQuorum(cert *Certificate, committee *Committee) bool {
	return cert.StakeSignedBy(committee) >= committee.QuorumThreshold()
}

// QuorumByCount is the count-based quorum bound 2f+1 with f=(n-1)/3,
// for callers that check raw validator counts without a Committee.
func QuorumByCount(totalValidators int) int {
	f := (totalValidators - 1) / 3
	return 2*f + 1
}
