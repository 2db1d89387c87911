package chainsync

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/modality-network/modalnode/dag"
	"github.com/modality-network/modalnode/shoalconsensus"
	"github.com/modality-network/modalnode/store"
)

// checkpointSchemaVersion lets future fields be added without breaking old
// checkpoints; a reader rejects anything newer than it understands.
const checkpointSchemaVersion = 1

// DAGCheckpoint is a point-in-time snapshot of DAG + consensus state, distinct
// from minerchain's merkle checkpoint (spec.md §4.4, §9 design notes). Unlike
// the original Rust source's base64-wrapped bincode blob embedded inside a
// JSON document (itself stored as a further base64 string in Postgres),
// bbolt's Store takes raw []byte values directly: nesting another base64
// layer here would only waste space, so the whole checkpoint is a single
// JSON document and Certificates/state are embedded as native JSON, not
// base64 text (Open Question, resolved and recorded in the design ledger).
type DAGCheckpoint struct {
	Version         int                              `json:"version"`
	CheckpointRound uint64                           `json:"checkpoint_round"`
	CreatedAt       int64                            `json:"created_at"`
	Certificates    []*dag.Certificate               `json:"certificates"`
	ConsensusState  *shoalconsensus.ConsensusState   `json:"consensus_state"`
	ReputationState *shoalconsensus.ReputationState `json:"reputation_state"`
}

// CreateCheckpoint snapshots every certificate in d at round or earlier,
// plus the given consensus/reputation state, and persists it keyed by round.
// Certificates beyond round are deliberately excluded: recovery treats them
// as "newer than the checkpoint" and replays them separately from the
// validator stores, so including them here would double-count them.
func CreateCheckpoint(mgr *store.Manager, d *dag.DAG, round uint64, consensus *shoalconsensus.ConsensusState, reputation *shoalconsensus.ReputationState, now time.Time) (*DAGCheckpoint, error) {
	var certs []*dag.Certificate
	for r := uint64(0); r <= round; r++ {
		certs = append(certs, d.RoundCerts(r)...)
	}

	cp := &DAGCheckpoint{
		Version:         checkpointSchemaVersion,
		CheckpointRound: round,
		CreatedAt:       now.Unix(),
		Certificates:    certs,
		ConsensusState:  consensus,
		ReputationState: reputation,
	}

	raw, err := json.Marshal(cp)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling DAG checkpoint")
	}
	key := store.DAGCheckpointKey(round, uuid.New().String())
	if err := mgr.ValidatorFinal().Put([]byte(key), raw); err != nil {
		return nil, errors.Wrap(err, "persisting DAG checkpoint")
	}
	return cp, nil
}

// LatestCheckpoint returns the checkpoint with the highest CheckpointRound,
// or nil if none exist.
func LatestCheckpoint(mgr *store.Manager) (*DAGCheckpoint, error) {
	kvs, err := mgr.ValidatorFinal().CollectPrefix(store.DAGCheckpointsPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "scanning DAG checkpoints")
	}
	if len(kvs) == 0 {
		return nil, nil
	}

	var latest *DAGCheckpoint
	for _, kv := range kvs {
		var cp DAGCheckpoint
		if err := json.Unmarshal(kv.Value, &cp); err != nil {
			return nil, errors.Wrap(err, "decoding DAG checkpoint")
		}
		if cp.Version > checkpointSchemaVersion {
			continue
		}
		if latest == nil || cp.CheckpointRound > latest.CheckpointRound {
			latest = &cp
		}
	}
	if latest == nil {
		return nil, errors.New("no DAG checkpoint at a supported schema version")
	}
	return latest, nil
}
