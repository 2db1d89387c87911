package minerchain

import (
	"encoding/json"
	"math/big"
	"sync"

	"github.com/pkg/errors"

	"github.com/modality-network/modalnode/shared/params"
	"github.com/modality-network/modalnode/store"
)

// ChainService owns the canonical tip, the cumulative-difficulty score of
// the canonical chain, and all persistence for the miner chain component
// (spec.md §4.1, C1). It is the single-writer boundary for block ingest;
// callers serialize through its RWMutex the way beacon-chain/blockchain
// serializes through its own chain-state lock.
type ChainService struct {
	mu sync.RWMutex

	mgr *store.Manager
	cfg *params.NetworkConfig

	tip                  *Block
	cumulativeDifficulty *big.Int
}

// NewChainService loads the canonical tip from storage, or mints and
// persists a genesis block if the store is empty.
func NewChainService(mgr *store.Manager, cfg *params.NetworkConfig, genesisDataHash string) (*ChainService, error) {
	cs := &ChainService{
		mgr:                  mgr,
		cfg:                  cfg,
		cumulativeDifficulty: big.NewInt(0),
	}

	tip, cum, err := loadCanonicalTip(mgr)
	if err != nil {
		return nil, errors.Wrap(err, "loading canonical tip")
	}
	if tip == nil {
		genesis := Genesis(genesisDataHash)
		if err := persistCanonical(mgr, genesis); err != nil {
			return nil, errors.Wrap(err, "persisting genesis block")
		}
		cs.tip = genesis
		cs.cumulativeDifficulty = new(big.Int).Set(genesis.ActualizedDifficulty())
		return cs, nil
	}
	cs.tip = tip
	cs.cumulativeDifficulty = cum
	return cs, nil
}

// Tip returns a copy of the current canonical tip.
func (cs *ChainService) Tip() *Block {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	b := *cs.tip
	return &b
}

// CumulativeDifficulty returns the total difficulty accumulated along the
// canonical chain up to and including the tip.
func (cs *ChainService) CumulativeDifficulty() *big.Int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return new(big.Int).Set(cs.cumulativeDifficulty)
}

// NextDifficulty returns the difficulty the next block should target. On
// every epoch boundary it retargets from the previous epoch's observed
// wall-clock span (spec.md §4.1); otherwise it holds the tip's difficulty
// steady for the remainder of the epoch.
func (cs *ChainService) NextDifficulty() (uint64, error) {
	cs.mu.RLock()
	tip := cs.tip
	cs.mu.RUnlock()

	current := tip.ActualizedDifficulty().Uint64()
	if current == 0 {
		current = cs.cfg.InitialDifficulty
	}

	nextIndex := tip.Index + 1
	if nextIndex == 0 || nextIndex%cs.cfg.BlocksPerEpoch != 0 {
		return current, nil
	}

	epochJustEnded := nextIndex/cs.cfg.BlocksPerEpoch - 1
	start := epochJustEnded * cs.cfg.BlocksPerEpoch
	end := start + cs.cfg.BlocksPerEpoch - 1

	firstTs, err := cs.blockTimestampAtIndex(start)
	if err != nil {
		return current, err
	}
	lastTs, err := cs.blockTimestampAtIndex(end)
	if err != nil {
		return current, err
	}
	actualSecs := lastTs - firstTs
	if actualSecs < 0 {
		actualSecs = 0
	}

	return RetargetDifficulty(current, actualSecs, cs.cfg.TargetBlockTimeSecs, cs.cfg.BlocksPerEpoch, cs.cfg.MinDifficulty, cs.cfg.MaxDifficulty), nil
}

func (cs *ChainService) blockTimestampAtIndex(index uint64) (int64, error) {
	blocks, err := getActiveByIndex(cs.mgr, index)
	if err != nil {
		return 0, err
	}
	for _, b := range blocks {
		if b.IsCanonical {
			return b.Timestamp, nil
		}
	}
	if len(blocks) > 0 {
		return blocks[0].Timestamp, nil
	}
	return 0, nil
}

// loadCanonicalTip scans miner_active for the highest-index canonical block.
// miner_canon is not consulted: with no miner_active entry it returns a nil
// tip.
func loadCanonicalTip(mgr *store.Manager) (*Block, *big.Int, error) {
	var best *Block
	cum := big.NewInt(0)

	// miner_active stores one key per (index) pointing at the current
	// canonical block for that index; walk it in full since indexes are
	// small relative to an epoch and this only runs once at startup.
	kvs, err := mgr.MinerActive().CollectPrefix("/consensus/miner_block/")
	if err != nil {
		return nil, nil, err
	}
	for _, kv := range kvs {
		var b Block
		if err := json.Unmarshal(kv.Value, &b); err != nil {
			return nil, nil, errors.Wrap(err, "decoding active block")
		}
		if err := b.PrepareAfterDecoding(); err != nil {
			return nil, nil, err
		}
		if best == nil || b.Index > best.Index {
			best = &b
		}
		cum.Add(cum, b.ActualizedDifficulty())
	}
	if best == nil {
		return nil, nil, nil
	}
	return best, cum, nil
}

// persistCanonical writes a block into both miner_canon (permanent index)
// and miner_active (fast tip lookups), matching spec.md §6's dual-store
// layout for the miner chain.
func persistCanonical(mgr *store.Manager, b *Block) error {
	b.IsCanonical = true
	b.PrepareForEncoding()
	raw, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "marshaling block")
	}
	if err := mgr.MinerCanon().Put([]byte(store.MinerBlockIndexKey(b.Index, b.Hash)), raw); err != nil {
		return errors.Wrap(err, "writing miner_canon")
	}
	if err := mgr.MinerActive().Put([]byte(store.MinerBlockActiveIndexKey(b.Index, b.Hash)), raw); err != nil {
		return errors.Wrap(err, "writing miner_active")
	}
	return nil
}

// persistFork writes a non-canonical block into miner_forks, keyed by hash
// only: forks are looked up by hash during re-evaluation, never by index.
func persistFork(mgr *store.Manager, b *Block) error {
	b.PrepareForEncoding()
	raw, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "marshaling fork block")
	}
	return mgr.MinerForks().Put([]byte(store.MinerBlockOrphanKey(b.Hash)), raw)
}

// getForkByHash looks up a previously-orphaned or losing-fork block.
func getForkByHash(mgr *store.Manager, hash string) (*Block, bool, error) {
	raw, found, err := mgr.MinerForks().Get([]byte(store.MinerBlockOrphanKey(hash)))
	if err != nil || !found {
		return nil, found, err
	}
	var b Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, false, err
	}
	if err := b.PrepareAfterDecoding(); err != nil {
		return nil, false, err
	}
	return &b, true, nil
}

// getActiveByIndex collects every block (canonical or not) seen at a given
// index, for fork-choice comparisons.
func getActiveByIndex(mgr *store.Manager, index uint64) ([]*Block, error) {
	kvs, err := mgr.MinerActive().CollectPrefix(store.MinerBlockActiveIndexPrefix(index))
	if err != nil {
		return nil, err
	}
	out := make([]*Block, 0, len(kvs))
	for _, kv := range kvs {
		var b Block
		if err := json.Unmarshal(kv.Value, &b); err != nil {
			return nil, err
		}
		if err := b.PrepareAfterDecoding(); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, nil
}

// getForksByIndex scans the full fork/orphan archive for entries at a given
// index. The archive is keyed by hash only, so this is a linear scan; the
// archive is small relative to an epoch's span so this is acceptable at
// ingest time.
func getForksByIndex(mgr *store.Manager, index uint64) ([]*Block, error) {
	kvs, err := mgr.MinerForks().CollectPrefix(store.MinerBlockOrphanPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]*Block, 0)
	for _, kv := range kvs {
		var b Block
		if err := json.Unmarshal(kv.Value, &b); err != nil {
			return nil, err
		}
		if err := b.PrepareAfterDecoding(); err != nil {
			return nil, err
		}
		if b.Index == index {
			out = append(out, &b)
		}
	}
	return out, nil
}
