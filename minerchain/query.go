package minerchain

import (
	"encoding/json"
	"math/big"
	"sort"

	"github.com/pkg/errors"

	"github.com/modality-network/modalnode/store"
)

// CollectCanonicalChain returns every canonical block across the full miner
// chain, ordered by index ascending. Used by sync (chain-info, find-ancestor,
// range/epoch queries) and by OrphanBlocksAfter; a full scan is acceptable
// here since it only runs at sync boundaries, not per-block ingest.
func CollectCanonicalChain(mgr *store.Manager) ([]*Block, error) {
	kvs, err := mgr.MinerCanon().CollectPrefix(store.MinerBlockIndexAllPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "scanning miner_canon")
	}
	out := make([]*Block, 0, len(kvs))
	for _, kv := range kvs {
		var b Block
		if err := json.Unmarshal(kv.Value, &b); err != nil {
			return nil, errors.Wrap(err, "decoding canonical block")
		}
		if err := b.PrepareAfterDecoding(); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// RangeOfCanonical returns canonical blocks with fromIndex <= index < toIndex,
// ordered ascending (spec.md §6 `/data/miner_block/range`).
func RangeOfCanonical(mgr *store.Manager, fromIndex, toIndex uint64) ([]*Block, error) {
	chain, err := CollectCanonicalChain(mgr)
	if err != nil {
		return nil, err
	}
	out := make([]*Block, 0)
	for _, b := range chain {
		if b.Index >= fromIndex && b.Index < toIndex {
			out = append(out, b)
		}
	}
	return out, nil
}

// EpochBlocks returns every canonical block belonging to epoch, ordered
// ascending (spec.md §6 `/data/miner_block/epoch`).
func EpochBlocks(mgr *store.Manager, epoch uint64) ([]*Block, error) {
	chain, err := CollectCanonicalChain(mgr)
	if err != nil {
		return nil, err
	}
	out := make([]*Block, 0)
	for _, b := range chain {
		if b.Epoch == epoch {
			out = append(out, b)
		}
	}
	return out, nil
}

// CumulativeDifficultyOf sums ActualizedDifficulty across blocks.
func CumulativeDifficultyOf(blocks []*Block) *big.Int {
	total := big.NewInt(0)
	for _, b := range blocks {
		total.Add(total, b.ActualizedDifficulty())
	}
	return total
}

// GetCanonicalByIndex returns the canonical block at index, if any is
// recorded in miner_canon.
func GetCanonicalByIndex(mgr *store.Manager, index uint64) (*Block, bool, error) {
	kvs, err := mgr.MinerCanon().CollectPrefix(store.MinerBlockIndexPrefix(index))
	if err != nil {
		return nil, false, err
	}
	if len(kvs) == 0 {
		return nil, false, nil
	}
	var b Block
	if err := json.Unmarshal(kvs[0].Value, &b); err != nil {
		return nil, false, err
	}
	if err := b.PrepareAfterDecoding(); err != nil {
		return nil, false, err
	}
	return &b, true, nil
}

// OrphanBlocksAfter reclassifies every canonical block at index > after as
// an orphan (spec.md §4.4's reorg step): moved into miner_forks with the
// given reason, removed from miner_canon and miner_active. Returns the
// number of blocks orphaned.
func (cs *ChainService) OrphanBlocksAfter(after uint64, reason string) (int, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	chain, err := CollectCanonicalChain(cs.mgr)
	if err != nil {
		return 0, err
	}

	var orphaned int
	for _, b := range chain {
		if b.Index <= after {
			continue
		}
		b.IsCanonical = false
		b.IsOrphaned = true
		b.OrphanReason = reason
		if err := persistFork(cs.mgr, b); err != nil {
			return orphaned, errors.Wrap(err, "archiving reorged block")
		}
		if err := cs.mgr.MinerCanon().Delete([]byte(store.MinerBlockIndexKey(b.Index, b.Hash))); err != nil {
			return orphaned, errors.Wrap(err, "removing reorged block from miner_canon")
		}
		if err := cs.mgr.MinerActive().Delete([]byte(store.MinerBlockActiveIndexKey(b.Index, b.Hash))); err != nil {
			return orphaned, errors.Wrap(err, "removing reorged block from miner_active")
		}
		orphaned++
	}

	tip, cum, err := loadCanonicalTip(cs.mgr)
	if err != nil {
		return orphaned, err
	}
	if tip != nil {
		cs.tip = tip
		cs.cumulativeDifficulty = cum
	}
	return orphaned, nil
}

// AdoptBlock saves an externally-sourced block (from a winning peer chain)
// as the new canonical entry at its index, without running fork-choice —
// the caller (sync) has already decided to adopt it. Tip and cumulative
// difficulty are recomputed from the store afterward so a batch of adopted
// blocks only needs one consistent recompute at the caller's discretion via
// RefreshTip.
func (cs *ChainService) AdoptBlock(b *Block) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return persistCanonical(cs.mgr, b)
}

// RefreshTip reloads the canonical tip and cumulative difficulty from the
// store. Called once after a batch of AdoptBlock/OrphanBlocksAfter calls
// during sync.
func (cs *ChainService) RefreshTip() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	tip, cum, err := loadCanonicalTip(cs.mgr)
	if err != nil {
		return err
	}
	if tip != nil {
		cs.tip = tip
		cs.cumulativeDifficulty = cum
	}
	return nil
}
