package node

import (
	"github.com/modality-network/modalnode/p2p"
	"github.com/modality-network/modalnode/shared/params"
)

// Config bundles everything Node.New needs to bring a modalnode process up:
// where its data lives, which network parameters govern it, its transport
// settings, and its optional mining identity.
type Config struct {
	DataDir string
	Network *params.NetworkConfig
	P2P     *p2p.Config

	// Mine enables the local PoW mining loop once the node starts.
	Mine bool
	// NominatedPeerID is the peer id this node mines blocks under. Required
	// when Mine is true.
	NominatedPeerID string
	// MinerNumber disambiguates multiple miners sharing one NominatedPeerID
	// (spec.md §3's per-miner nonce namespace).
	MinerNumber uint64

	// GenesisDataHash seeds the miner chain's genesis block when no chain
	// exists yet in DataDir.
	GenesisDataHash string
}
