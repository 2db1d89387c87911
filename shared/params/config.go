// Package params defines the network parameters consumed by every consensus
// component: difficulty/epoch constants for the miner chain, quorum and
// reputation defaults for the DAG/Shoal consensus, and store promotion/purge
// windows.
package params

import (
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// NetworkConfig holds the tunable parameters of a modalnode deployment. A
// single instance is active at a time, set with UseNetworkConfig and read
// with ActiveConfig, mirroring the mutable-package-global pattern used
// throughout the teacher's params packages.
type NetworkConfig struct {
	NetworkName string `toml:"network_name"`

	// Miner chain (C1)
	BlocksPerEpoch      uint64        `toml:"blocks_per_epoch"`
	TargetBlockTimeSecs int64         `toml:"target_block_time_secs"`
	MinDifficulty       uint64        `toml:"min_difficulty"`
	MaxDifficulty       uint64        `toml:"max_difficulty"`
	InitialDifficulty   uint64        `toml:"initial_difficulty"`
	DefaultHashFunc     string        `toml:"default_hash_func"`
	RandomXSeed         string        `toml:"randomx_seed"`
	MiningMaxTries      uint64        `toml:"mining_max_tries"`
	MiningDelay         time.Duration `toml:"-"`

	// Validator selection
	StaticValidators   []string `toml:"static_validators"`
	NominatedPerEpoch  int      `toml:"nominated_per_epoch"`
	AlternatesPerEpoch int      `toml:"alternates_per_epoch"`
	StakedPerEpoch     int      `toml:"staked_per_epoch"`
	ValidatorLookback  uint64   `toml:"validator_lookback"`

	// Reputation / Shoal (C3)
	ReputationWindowSize    int     `toml:"reputation_window_size"`
	ReputationDecayFactor   float64 `toml:"reputation_decay_factor"`
	ReputationMinScore      float64 `toml:"reputation_min_score"`
	ReputationTargetLatency uint64  `toml:"reputation_target_latency_ms"`
	ScoreRefreshInterval    uint64  `toml:"score_refresh_interval_rounds"`

	// Persistence (C5)
	PromotionDelayEpochs uint64 `toml:"promotion_delay_epochs"`
	PurgeDelayEpochs     uint64 `toml:"purge_delay_epochs"`

	// Sync (C4)
	SyncCooldown    time.Duration `toml:"-"`
	PeerReqTimeout  time.Duration `toml:"-"`
	IgnorePeerFor   time.Duration `toml:"-"`
	FindAncestorMax int           `toml:"find_ancestor_max_rounds"`
}

// Difficulty retargeting formula constants (spec.md §4.1): target =
// (coefficient << (exponent * base)) / difficulty. Fixed across networks.
const (
	DifficultyCoefficient uint64 = 0xffff
	DifficultyExponent    uint64 = 0x1d
	DifficultyBase        uint64 = 8
)

// MainnetConfig returns the production default network configuration.
func MainnetConfig() *NetworkConfig {
	return &NetworkConfig{
		NetworkName:             "modal-mainnet",
		BlocksPerEpoch:          40,
		TargetBlockTimeSecs:     60,
		MinDifficulty:           1,
		MaxDifficulty:           1 << 40,
		InitialDifficulty:       1000,
		DefaultHashFunc:         "vm",
		RandomXSeed:             "modality-network-vm-key",
		MiningMaxTries:          100_000_000_000,
		NominatedPerEpoch:       27,
		AlternatesPerEpoch:      13,
		StakedPerEpoch:          13,
		ValidatorLookback:       2,
		ReputationWindowSize:    100,
		ReputationDecayFactor:   0.9,
		ReputationMinScore:      0.1,
		ReputationTargetLatency: 500,
		ScoreRefreshInterval:    10,
		PromotionDelayEpochs:    2,
		PurgeDelayEpochs:        12,
		SyncCooldown:            30 * time.Second,
		PeerReqTimeout:          10 * time.Second,
		IgnorePeerFor:           5 * time.Minute,
		FindAncestorMax:         32,
	}
}

// TestConfig returns a network configuration tuned for fast, deterministic
// tests: low difficulty, short cooldowns, a small epoch length.
func TestConfig() *NetworkConfig {
	cfg := MainnetConfig()
	cfg.NetworkName = "modal-test"
	cfg.BlocksPerEpoch = 4
	cfg.InitialDifficulty = 1
	cfg.MinDifficulty = 1
	cfg.DefaultHashFunc = "sha256"
	cfg.MiningMaxTries = 1_000_000
	cfg.SyncCooldown = 10 * time.Millisecond
	cfg.PeerReqTimeout = 200 * time.Millisecond
	cfg.IgnorePeerFor = time.Second
	return cfg
}

// LoadFromFile parses a TOML network config file into a new NetworkConfig,
// starting from MainnetConfig defaults for any field the file omits.
func LoadFromFile(path string) (*NetworkConfig, error) {
	cfg := MainnetConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var (
	activeConfigLock sync.RWMutex
	activeConfig     = MainnetConfig()
)

// ActiveConfig returns the currently active network configuration.
func ActiveConfig() *NetworkConfig {
	activeConfigLock.RLock()
	defer activeConfigLock.RUnlock()
	return activeConfig
}

// UseNetworkConfig replaces the active network configuration. Intended to be
// called once during node startup, before any component reads ActiveConfig.
func UseNetworkConfig(cfg *NetworkConfig) {
	activeConfigLock.Lock()
	defer activeConfigLock.Unlock()
	activeConfig = cfg
}
