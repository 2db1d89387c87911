package chainsync

import (
	"context"
	"sort"

	"github.com/modality-network/modalnode/minerchain"
	"github.com/modality-network/modalnode/store"
)

// Checkpoint is one (index, hash) pair offered by the requester for the
// responder to confirm or deny against its own canonical chain.
type Checkpoint struct {
	Index uint64 `json:"index"`
	Hash  string `json:"hash"`
}

// CheckpointMatch is the responder's verdict for one checkpoint.
type CheckpointMatch struct {
	Index   uint64 `json:"index"`
	Hash    string `json:"hash"`
	Matches bool   `json:"matches"`
}

// FindAncestorResponse is the responder's reply (spec.md §6).
type FindAncestorResponse struct {
	ChainLength          uint64            `json:"chain_length"`
	Matches              []CheckpointMatch `json:"matches"`
	HighestMatch         *uint64           `json:"highest_match"`
	CumulativeDifficulty string            `json:"cumulative_difficulty"`
}

// ExponentialCheckpointIndices returns the indices to probe from tip: tip,
// tip-1, tip-2, tip-4, tip-8, ..., always including 0 (spec.md §4.4,
// property 10). Descending, deduplicated.
func ExponentialCheckpointIndices(tip uint64) []uint64 {
	indices := []uint64{tip}
	for dist := uint64(1); dist <= tip; dist *= 2 {
		indices = append(indices, tip-dist)
	}
	if tip != 0 {
		indices = append(indices, 0)
	}

	seen := make(map[uint64]bool, len(indices))
	out := indices[:0]
	for _, idx := range indices {
		if seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}

// BuildCheckpoints resolves ExponentialCheckpointIndices against the local
// canonical chain, skipping indices the local chain doesn't have.
func BuildCheckpoints(mgr *store.Manager, tip uint64) ([]Checkpoint, error) {
	var out []Checkpoint
	for _, idx := range ExponentialCheckpointIndices(tip) {
		b, ok, err := minerchain.GetCanonicalByIndex(mgr, idx)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, Checkpoint{Index: idx, Hash: b.Hash})
		}
	}
	return out, nil
}

// AnswerFindAncestor is the responder side (spec.md §6 handler): for each
// checkpoint, report whether the local canonical chain has that hash at
// that index, and report the highest matching index, the chain length, and
// cumulative difficulty.
func AnswerFindAncestor(mgr *store.Manager, checkpoints []Checkpoint) (*FindAncestorResponse, error) {
	chain, err := minerchain.CollectCanonicalChain(mgr)
	if err != nil {
		return nil, err
	}

	byIndex := make(map[uint64]string, len(chain))
	for _, b := range chain {
		byIndex[b.Index] = b.Hash
	}

	resp := &FindAncestorResponse{
		ChainLength:          uint64(len(chain)),
		CumulativeDifficulty: minerchain.CumulativeDifficultyOf(chain).String(),
	}

	for _, cp := range checkpoints {
		localHash, ok := byIndex[cp.Index]
		isMatch := ok && localHash == cp.Hash
		resp.Matches = append(resp.Matches, CheckpointMatch{Index: cp.Index, Hash: cp.Hash, Matches: isMatch})
		if isMatch && (resp.HighestMatch == nil || *resp.HighestMatch < cp.Index) {
			idx := cp.Index
			resp.HighestMatch = &idx
		}
	}
	return resp, nil
}

// FindAncestor drives the requester side: build the exponential checkpoint
// set, ask the peer, then binary-search any gap between the highest match
// and the lowest checked non-match until they're adjacent (spec.md property
// 10: converges in O(log max_tip) requests). Returns the common-ancestor
// index, or nil if the chains share no common prefix.
func FindAncestor(ctx context.Context, mgr *store.Manager, localTip uint64, peer PeerClient) (*uint64, error) {
	checkpoints, err := BuildCheckpoints(mgr, localTip)
	if err != nil {
		return nil, err
	}
	resp, err := peer.FindAncestor(ctx, checkpoints)
	if err != nil {
		return nil, err
	}

	highest := resp.HighestMatch
	lowestNonMatch, hasNonMatch := lowestNonMatchAbove(resp.Matches, highest)
	if !hasNonMatch {
		return highest, nil
	}

	var lowBound uint64
	if highest != nil {
		lowBound = *highest + 1
	}

	for lowBound < lowestNonMatch {
		mid := lowBound + (lowestNonMatch-lowBound)/2

		b, ok, err := minerchain.GetCanonicalByIndex(mgr, mid)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		probe, err := peer.FindAncestor(ctx, []Checkpoint{{Index: mid, Hash: b.Hash}})
		if err != nil {
			return nil, err
		}
		if len(probe.Matches) == 0 {
			break
		}
		if probe.Matches[0].Matches {
			highest = &mid
			lowBound = mid + 1
		} else {
			lowestNonMatch = mid
		}
	}

	return highest, nil
}

func lowestNonMatchAbove(matches []CheckpointMatch, highest *uint64) (uint64, bool) {
	var lowest uint64
	found := false
	for _, m := range matches {
		if m.Matches {
			continue
		}
		if highest != nil && m.Index <= *highest {
			continue
		}
		if !found || m.Index < lowest {
			lowest = m.Index
			found = true
		}
	}
	return lowest, found
}
