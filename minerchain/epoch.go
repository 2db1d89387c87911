package minerchain

import (
	"encoding/json"
	"math/big"

	"github.com/pkg/errors"

	"github.com/modality-network/modalnode/shared/params"
	"github.com/modality-network/modalnode/store"
)

// ValidatorSet is the derived committee for a mining epoch (spec.md §3, §4.1):
// the first NominatedPerEpoch candidates from the shuffled pool become
// leaders, the last AlternatesPerEpoch become alternates, and StakedPerEpoch
// slots are reserved for a future staking mechanism.
type ValidatorSet struct {
	MiningEpoch uint64   `json:"mining_epoch"`
	Nominated   []string `json:"nominated"`
	Alternates  []string `json:"alternates"`
	Staked      []string `json:"staked"`
}

// DeriveValidatorSet computes the validator set for miningEpoch. If
// cfg.StaticValidators is non-empty it is consulted first and returned
// verbatim as the nominated set (spec.md §1.3 supplemented static-validator
// override). Otherwise, for miningEpoch < cfg.ValidatorLookback there is no
// epoch history to draw from yet and DeriveValidatorSet returns (nil, nil),
// mirroring the spec's "returns None when current_mining_epoch < 2".
func DeriveValidatorSet(mgr *store.Manager, cfg *params.NetworkConfig, miningEpoch uint64, candidatePeers []string) (*ValidatorSet, error) {
	if len(cfg.StaticValidators) > 0 {
		vs := &ValidatorSet{
			MiningEpoch: miningEpoch,
			Nominated:   cfg.StaticValidators,
		}
		if err := persistValidatorSet(mgr, vs); err != nil {
			return nil, err
		}
		return vs, nil
	}

	if miningEpoch < cfg.ValidatorLookback {
		return nil, nil
	}

	sourceEpoch := miningEpoch - cfg.ValidatorLookback
	seed, err := epochSeed(mgr, sourceEpoch, cfg.BlocksPerEpoch)
	if err != nil {
		return nil, err
	}

	pool := make([]string, len(candidatePeers))
	copy(pool, candidatePeers)
	shuffleDeterministic(pool, seed)

	nominatedN := cfg.NominatedPerEpoch
	alternatesN := cfg.AlternatesPerEpoch
	stakedN := cfg.StakedPerEpoch

	vs := &ValidatorSet{MiningEpoch: miningEpoch}
	vs.Nominated = takeFront(pool, nominatedN)
	vs.Alternates = takeBack(pool, alternatesN)
	vs.Staked = make([]string, 0, stakedN) // reserved, unpopulated until staking lands

	if err := persistValidatorSet(mgr, vs); err != nil {
		return nil, err
	}
	return vs, nil
}

func takeFront(pool []string, n int) []string {
	if n > len(pool) {
		n = len(pool)
	}
	out := make([]string, n)
	copy(out, pool[:n])
	return out
}

func takeBack(pool []string, n int) []string {
	if n > len(pool) {
		n = len(pool)
	}
	out := make([]string, n)
	copy(out, pool[len(pool)-n:])
	return out
}

// epochSeed XORs the nonces of every canonical block mined during
// sourceEpoch into a single 64-bit seed, taken mod 2^64 as the low 64 bits
// of the running XOR (spec.md §4.1: "Seed = XOR of block nonces mod 2^64").
func epochSeed(mgr *store.Manager, sourceEpoch, blocksPerEpoch uint64) (uint64, error) {
	start := sourceEpoch * blocksPerEpoch
	end := start + blocksPerEpoch

	var seed uint64
	mod := new(big.Int).Lsh(big.NewInt(1), 64)
	for i := start; i < end; i++ {
		kvs, err := mgr.MinerCanon().CollectPrefix(store.MinerBlockIndexPrefix(i))
		if err != nil {
			return 0, errors.Wrap(err, "scanning canonical block for epoch seed")
		}
		for _, kv := range kvs {
			var b Block
			if err := json.Unmarshal(kv.Value, &b); err != nil {
				return 0, err
			}
			if err := b.PrepareAfterDecoding(); err != nil {
				return 0, err
			}
			reduced := new(big.Int).Mod(b.Nonce, mod)
			seed ^= reduced.Uint64()
		}
	}
	return seed, nil
}

// shuffleDeterministic applies Fisher-Yates over pool, drawing randomness
// from a splitmix64 stream seeded by seed. Deterministic across nodes given
// the same seed and pool ordering, which is required since every validator
// must derive the identical committee independently.
func shuffleDeterministic(pool []string, seed uint64) {
	state := seed
	next := func() uint64 {
		state += 0x9E3779B97F4A7C15
		z := state
		z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
		z = (z ^ (z >> 27)) * 0x94D049BB133111EB
		return z ^ (z >> 31)
	}
	for i := len(pool) - 1; i > 0; i-- {
		j := next() % uint64(i+1)
		pool[i], pool[j] = pool[j], pool[i]
	}
}

func persistValidatorSet(mgr *store.Manager, vs *ValidatorSet) error {
	raw, err := json.Marshal(vs)
	if err != nil {
		return errors.Wrap(err, "marshaling validator set")
	}
	return mgr.ValidatorActive().Put([]byte(store.ValidatorSetKey(vs.MiningEpoch)), raw)
}

// LoadValidatorSet reads a previously-derived validator set for miningEpoch,
// checking validator_final before validator_active (spec.md §4.5 promotion
// order: finalized data takes precedence once promoted).
func LoadValidatorSet(mgr *store.Manager, miningEpoch uint64) (*ValidatorSet, bool, error) {
	key := []byte(store.ValidatorSetKey(miningEpoch))
	if raw, found, err := mgr.ValidatorFinal().Get(key); err != nil {
		return nil, false, err
	} else if found {
		var vs ValidatorSet
		return &vs, true, json.Unmarshal(raw, &vs)
	}
	if raw, found, err := mgr.ValidatorActive().Get(key); err != nil {
		return nil, false, err
	} else if found {
		var vs ValidatorSet
		return &vs, true, json.Unmarshal(raw, &vs)
	}
	return nil, false, nil
}
