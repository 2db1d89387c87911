package minerchain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/modality-network/modalnode/store"
)

// CheckpointTrigger names how a miner-level checkpoint came to be written
// (spec.md §4.1).
type CheckpointTrigger string

const (
	TriggerManual    CheckpointTrigger = "manual"
	TriggerConsensus CheckpointTrigger = "consensus"
	TriggerNone      CheckpointTrigger = "none"
)

// Checkpoint records a merkle root over the ordered canonical block hashes
// of a validator-selection epoch, letting a syncing peer verify a range of
// history without replaying every block's hash chain. Distinct from C4's
// DAG-level checkpoint (chainsync.DAGCheckpoint).
type Checkpoint struct {
	Epoch             uint64            `json:"epoch"`
	ValidatorSetEpoch uint64            `json:"validator_set_epoch"`
	LastBlockIndex    uint64            `json:"last_block_index"`
	LastBlockHash     string            `json:"last_block_hash"`
	MerkleRoot        string            `json:"merkle_root"`
	BlockCount        int               `json:"block_count"`
	ValidatorRound    uint64            `json:"validator_round"`
	Trigger           CheckpointTrigger `json:"trigger"`
}

// BuildCheckpoint computes the merkle root over the canonical block hashes
// in index order for [epoch*blocksPerEpoch, (epoch+1)*blocksPerEpoch) and
// persists it.
func BuildCheckpoint(mgr *store.Manager, epoch, blocksPerEpoch, validatorSetEpoch, validatorRound uint64, trigger CheckpointTrigger) (*Checkpoint, error) {
	start := epoch * blocksPerEpoch
	end := start + blocksPerEpoch

	hashes := make([]string, 0, blocksPerEpoch)
	var lastIndex uint64
	var lastHash string
	for i := start; i < end; i++ {
		kvs, err := mgr.MinerCanon().CollectPrefix(store.MinerBlockIndexPrefix(i))
		if err != nil {
			return nil, errors.Wrap(err, "scanning canonical block for checkpoint")
		}
		for _, kv := range kvs {
			var b Block
			if err := json.Unmarshal(kv.Value, &b); err != nil {
				return nil, err
			}
			hashes = append(hashes, b.Hash)
			lastIndex = i
			lastHash = b.Hash
		}
	}

	cp := &Checkpoint{
		Epoch:             epoch,
		ValidatorSetEpoch: validatorSetEpoch,
		LastBlockIndex:    lastIndex,
		LastBlockHash:     lastHash,
		MerkleRoot:        merkleRoot(hashes),
		BlockCount:        len(hashes),
		ValidatorRound:    validatorRound,
		Trigger:           trigger,
	}

	raw, err := json.Marshal(cp)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling checkpoint")
	}
	if err := mgr.MinerCanon().Put([]byte(store.MinerCheckpointKey(epoch)), raw); err != nil {
		return nil, errors.Wrap(err, "persisting checkpoint")
	}
	return cp, nil
}

// LoadCheckpoint reads a previously-built checkpoint for epoch, if any.
func LoadCheckpoint(mgr *store.Manager, epoch uint64) (*Checkpoint, bool, error) {
	raw, found, err := mgr.MinerCanon().Get([]byte(store.MinerCheckpointKey(epoch)))
	if err != nil || !found {
		return nil, found, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, false, err
	}
	return &cp, true, nil
}

// merkleRoot folds a leaf list (in caller-supplied order) pairwise until a
// single digest remains. An odd leaf at any level carries forward unpaired
// rather than being duplicated.
func merkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		sum := sha256.Sum256(nil)
		return hex.EncodeToString(sum[:])
	}
	level := make([][]byte, len(leaves))
	for i, h := range leaves {
		sum := sha256.Sum256([]byte(h))
		level[i] = sum[:]
	}
	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				combined := append(append([]byte{}, level[i]...), level[i+1]...)
				sum := sha256.Sum256(combined)
				next = append(next, sum[:])
			} else {
				next = append(next, level[i])
			}
		}
		level = next
	}
	return hex.EncodeToString(level[0])
}
