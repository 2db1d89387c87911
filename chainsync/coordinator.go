package chainsync

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/modality-network/modalnode/minerchain"
	"github.com/modality-network/modalnode/shared/params"
	"github.com/modality-network/modalnode/store"
)

var log = logrus.WithField("prefix", "chainsync")

// SyncOutcome tags the result of one SyncWithPeer call (spec.md §4.4).
type SyncOutcome string

const (
	OutcomeNoSyncNeeded SyncOutcome = "no_sync_needed"
	OutcomeSynced       SyncOutcome = "synced"
	OutcomeFailed       SyncOutcome = "failed"
)

// SyncResult reports what SyncWithPeer did.
type SyncResult struct {
	Outcome        SyncOutcome
	Reason         string
	BlocksAdopted  int
	BlocksOrphaned int
	NewChainTip    uint64
}

// SyncCoordinator drives peer-sync operations: chain comparison, ancestor
// search, range fetch, and the orphan/adopt reorg. Grounded on
// `original_source/rust/modal-node/src/sync/peer_sync.rs`'s own
// `SyncCoordinator`, with its libp2p swarm/datastore handles replaced by a
// `minerchain.ChainService` + `PeerClient` interface pair.
type SyncCoordinator struct {
	mgr   *store.Manager
	chain *minerchain.ChainService

	mu          sync.Mutex
	inProgress  map[string]bool
	lastAttempt map[string]time.Time
	cooldown    time.Duration
}

// NewSyncCoordinator builds a coordinator using cfg's sync cooldown (spec.md
// §5 "sync cooldown prevents tight loops").
func NewSyncCoordinator(mgr *store.Manager, chain *minerchain.ChainService, cfg *params.NetworkConfig) *SyncCoordinator {
	return &SyncCoordinator{
		mgr:         mgr,
		chain:       chain,
		inProgress:  make(map[string]bool),
		lastAttempt: make(map[string]time.Time),
		cooldown:    cfg.SyncCooldown,
	}
}

// SyncWithPeer compares the local chain against peerID's via client, and if
// the peer's chain wins the fork-choice comparison, fetches and adopts the
// peer's blocks past the common ancestor. Single-flight per peer.
func (sc *SyncCoordinator) SyncWithPeer(ctx context.Context, peerID string, client PeerClient) (*SyncResult, error) {
	if !sc.beginAttempt(peerID) {
		return &SyncResult{Outcome: OutcomeNoSyncNeeded, Reason: "sync already in progress or in cooldown for this peer"}, nil
	}
	defer sc.endAttempt(peerID)

	log.Debugf("starting sync with peer %s", peerID)

	localTip := sc.chain.Tip()
	localDifficulty := sc.chain.CumulativeDifficulty()

	ancestorIndex, err := FindAncestor(ctx, sc.mgr, localTip.Index, client)
	if err != nil {
		return nil, newError(KindConnectionError, "find-ancestor with %s: %v", peerID, err)
	}

	peerInfo, err := client.ChainInfo(ctx)
	if err != nil {
		return nil, newError(KindConnectionError, "chain-info from %s: %v", peerID, err)
	}

	peerCumDiff, ok := new(big.Int).SetString(peerInfo.CumulativeDifficulty, 10)
	if !ok {
		return nil, newError(KindConnectionError, "malformed cumulative difficulty from %s: %q", peerID, peerInfo.CumulativeDifficulty)
	}

	if !peerWins(localDifficulty, localTip.Index+1, peerCumDiff, peerInfo.ChainLength) {
		return &SyncResult{Outcome: OutcomeNoSyncNeeded, Reason: "local chain is at least as good as peer"}, nil
	}

	var fromIndex uint64
	if ancestorIndex != nil {
		fromIndex = *ancestorIndex + 1
	}

	log.Infof("adopting peer %s chain from index %d (peer length %d, difficulty %s)", peerID, fromIndex, peerInfo.ChainLength, peerInfo.CumulativeDifficulty)

	peerBlocks, err := client.RangeFetch(ctx, fromIndex, peerInfo.ChainLength)
	if err != nil {
		return nil, newError(KindConnectionError, "range-fetch from %s: %v", peerID, err)
	}
	if len(peerBlocks) == 0 {
		return &SyncResult{Outcome: OutcomeFailed, Reason: "no blocks received from peer"}, nil
	}

	sort.Slice(peerBlocks, func(i, j int) bool { return peerBlocks[i].Index < peerBlocks[j].Index })

	if err := validateContiguousChain(peerBlocks); err != nil {
		return &SyncResult{Outcome: OutcomeFailed, Reason: fmt.Sprintf("invalid peer chain: %v", err)}, nil
	}

	if first := peerBlocks[0]; first.Index > 0 {
		ancestor, found, err := minerchain.GetCanonicalByIndex(sc.mgr, first.Index-1)
		if err != nil {
			return nil, err
		}
		if !found {
			return &SyncResult{Outcome: OutcomeFailed, Reason: fmt.Sprintf("missing local ancestor at index %d", first.Index-1)}, nil
		}
		if ancestor.Hash != first.PreviousHash {
			return &SyncResult{Outcome: OutcomeFailed, Reason: "first peer block does not connect to local chain"}, nil
		}
	}

	ancestor := uint64(0)
	if ancestorIndex != nil {
		ancestor = *ancestorIndex
	}
	orphanedCount, err := sc.chain.OrphanBlocksAfter(ancestor, fmt.Sprintf("replaced by peer %s chain with higher cumulative difficulty (%s vs %s)", peerID, peerInfo.CumulativeDifficulty, localDifficulty.String()))
	if err != nil {
		return nil, err
	}

	for _, b := range peerBlocks {
		if err := sc.chain.AdoptBlock(b); err != nil {
			return nil, err
		}
	}
	if err := sc.chain.RefreshTip(); err != nil {
		return nil, err
	}

	newTip := sc.chain.Tip()
	log.Infof("synced with %s: adopted %d blocks, orphaned %d, new tip %d", peerID, len(peerBlocks), orphanedCount, newTip.Index)

	return &SyncResult{
		Outcome:        OutcomeSynced,
		BlocksAdopted:  len(peerBlocks),
		BlocksOrphaned: orphanedCount,
		NewChainTip:    newTip.Index,
	}, nil
}

// peerWins applies the fork-choice comparison to remote chain-info: higher
// cumulative difficulty wins; on a tie, longer chain wins.
func peerWins(localDifficulty *big.Int, localLength uint64, peerDifficulty *big.Int, peerLength uint64) bool {
	switch peerDifficulty.Cmp(localDifficulty) {
	case 1:
		return true
	case -1:
		return false
	default:
		return peerLength > localLength
	}
}

func validateContiguousChain(blocks []*minerchain.Block) error {
	for i, cur := range blocks {
		if i > 0 {
			prev := blocks[i-1]
			if cur.Index != prev.Index+1 {
				return fmt.Errorf("gap between index %d and %d", prev.Index, cur.Index)
			}
			if cur.PreviousHash != prev.Hash {
				return fmt.Errorf("block %d does not chain to block %d's hash", cur.Index, prev.Index)
			}
		}
		if !cur.VerifyHash() {
			return fmt.Errorf("block %d has an invalid hash", cur.Index)
		}
		if ok, err := cur.VerifyProofOfWork(); err != nil || !ok {
			return fmt.Errorf("block %d fails proof of work", cur.Index)
		}
	}
	return nil
}

// beginAttempt enforces single-flight-per-peer and the sync cooldown.
func (sc *SyncCoordinator) beginAttempt(peerID string) bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.inProgress[peerID] {
		return false
	}
	if last, ok := sc.lastAttempt[peerID]; ok && time.Since(last) < sc.cooldown {
		return false
	}
	sc.inProgress[peerID] = true
	sc.lastAttempt[peerID] = time.Now()
	return true
}

func (sc *SyncCoordinator) endAttempt(peerID string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.inProgress, peerID)
}
