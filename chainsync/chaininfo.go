package chainsync

import (
	"context"

	"github.com/modality-network/modalnode/minerchain"
	"github.com/modality-network/modalnode/store"
)

// ChainInfo is the summary a node exchanges with a peer before any block
// transfer: enough to run the fork-choice comparison (spec.md §4.4, wire
// schema spec.md §6 `/data/miner_block/chain_info`).
type ChainInfo struct {
	ChainLength          uint64 `json:"chain_height"`
	CumulativeDifficulty string `json:"cumulative_difficulty"`
	TipHash              string `json:"tip_hash"`
}

// LocalChainInfo computes this node's own ChainInfo from the canonical
// miner chain.
func LocalChainInfo(mgr *store.Manager) (*ChainInfo, error) {
	chain, err := minerchain.CollectCanonicalChain(mgr)
	if err != nil {
		return nil, err
	}
	info := &ChainInfo{
		ChainLength:          uint64(len(chain)),
		CumulativeDifficulty: minerchain.CumulativeDifficultyOf(chain).String(),
	}
	if len(chain) > 0 {
		info.TipHash = chain[len(chain)-1].Hash
	}
	return info, nil
}

// PeerClient is the sync-side view of a remote peer, implemented by the p2p
// package's request/response handlers (spec.md §6's five sync RPCs). Kept
// as an interface here so chainsync has no transport dependency of its own.
type PeerClient interface {
	ChainInfo(ctx context.Context) (*ChainInfo, error)
	FindAncestor(ctx context.Context, checkpoints []Checkpoint) (*FindAncestorResponse, error)
	RangeFetch(ctx context.Context, fromIndex, toIndex uint64) ([]*minerchain.Block, error)
}
