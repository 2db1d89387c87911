package store

import "fmt"

// Key schema (spec.md §4.5): UTF-8, prefix-iterable paths. These builders are
// the single source of truth for key shape; all components go through them
// rather than formatting paths inline.

// MinerBlockIndexKey is the canonical-chain entry key for a block at index
// with the given hex hash.
func MinerBlockIndexKey(index uint64, hash string) string {
	return fmt.Sprintf("/consensus/miner_block/index/%d/hash/%s", index, hash)
}

// MinerBlockIndexPrefix matches every canonical entry at index.
func MinerBlockIndexPrefix(index uint64) string {
	return fmt.Sprintf("/consensus/miner_block/index/%d/hash/", index)
}

// MinerBlockIndexAllPrefix matches every canonical entry at any index, for
// full-chain scans (find-ancestor, sync range-fetch).
const MinerBlockIndexAllPrefix = "/consensus/miner_block/index/"

// MinerBlockOrphanKey is the orphan-archive entry key for a block hash.
func MinerBlockOrphanKey(hash string) string {
	return fmt.Sprintf("/consensus/miner_block/orphans/hash/%s", hash)
}

// MinerBlockOrphanPrefix matches every orphan/fork-archive entry.
const MinerBlockOrphanPrefix = "/consensus/miner_block/orphans/hash/"

// MinerBlockActiveKey is the pre-promotion entry key for a block hash.
func MinerBlockActiveKey(hash string) string {
	return fmt.Sprintf("/consensus/miner_block/active/hash/%s", hash)
}

// MinerBlockActiveIndexPrefix matches every active-store entry at index,
// used by fork-choice lookups of the blocks seen at an index.
func MinerBlockActiveIndexPrefix(index uint64) string {
	return fmt.Sprintf("/consensus/miner_block/active/index/%d/", index)
}

// MinerBlockActiveIndexKey is the index-scoped key under which canonical
// blocks are written to the active store. It is the only active-store key
// the miner chain writes; MinerBlockActiveKey entries are never written.
func MinerBlockActiveIndexKey(index uint64, hash string) string {
	return fmt.Sprintf("/consensus/miner_block/active/index/%d/hash/%s", index, hash)
}

// MinerCheckpointKey addresses a miner-level checkpoint (§4.1) by epoch.
func MinerCheckpointKey(epoch uint64) string {
	return fmt.Sprintf("/consensus/miner_checkpoint/epoch/%d", epoch)
}

// ValidatorSetKey addresses a derived validator set by its mining epoch.
func ValidatorSetKey(miningEpoch uint64) string {
	return fmt.Sprintf("/consensus/validator_set/mining_epoch/%d", miningEpoch)
}

// DAGCertificateKey is the persisted-certificate key by round and hex digest.
func DAGCertificateKey(round uint64, hexDigest string) string {
	return fmt.Sprintf("/dag/certificates/round/%d/digest/%s", round, hexDigest)
}

// DAGCertificateRoundPrefix matches every certificate at round.
func DAGCertificateRoundPrefix(round uint64) string {
	return fmt.Sprintf("/dag/certificates/round/%d/digest/", round)
}

// DAGCertificatesPrefix matches every persisted certificate.
const DAGCertificatesPrefix = "/dag/certificates/round/"

// DAGCheckpointKey is a DAG-level checkpoint (§4.4) by round and id.
func DAGCheckpointKey(round uint64, id string) string {
	return fmt.Sprintf("/dag/checkpoints/round/%d/id/%s", round, id)
}

// DAGCheckpointsPrefix matches every persisted DAG checkpoint.
const DAGCheckpointsPrefix = "/dag/checkpoints/round/"

// Node-state keys (peer identity, counters, static validators, ignored peers).
const (
	NodePeerIDKey          = "/node/peer_id"
	NodeStaticValidatorsKey = "/node/static_validators"
)
