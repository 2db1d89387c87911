package minerchain

import (
	"context"
	"math/big"
	"time"

	"github.com/modality-network/modalnode/shared/hashutil"
	"github.com/modality-network/modalnode/shared/params"
)

// Miner repeatedly attempts to extend the canonical chain with locally-mined
// blocks, the way beacon-chain's proposer loop repeatedly attempts to
// propose at each slot. Unlike a slot-based proposer, a PoW miner keeps
// trying the same block template until either it finds an acceptable nonce
// or a competing block from the network arrives first.
type Miner struct {
	chain           *ChainService
	cfg             *params.NetworkConfig
	nominatedPeerID string
	minerNumber     uint64
	dataHashFn      func() string
}

// NewMiner constructs a Miner bound to chain, using cfg's configured hash
// function and block time target. dataHashFn supplies the payload digest
// for the next block template (e.g. the DAG's pending-batch digest); it is
// re-invoked for every attempt so a freshly-arrived payload is picked up
// without restarting the miner.
func NewMiner(chain *ChainService, cfg *params.NetworkConfig, nominatedPeerID string, minerNumber uint64, dataHashFn func() string) *Miner {
	return &Miner{
		chain:           chain,
		cfg:             cfg,
		nominatedPeerID: nominatedPeerID,
		minerNumber:     minerNumber,
		dataHashFn:      dataHashFn,
	}
}

// Run mines blocks in a loop until ctx is canceled. Each iteration builds a
// block template against the current tip, mines it with MineWithStats, and
// ingests the result; a fork lost to a faster peer simply falls through to
// the next iteration against the new tip.
func (m *Miner) Run(ctx context.Context) error {
	hashutil.InstallStopSignalHandler()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		tip := m.chain.Tip()
		difficulty, err := m.chain.NextDifficulty()
		if err != nil {
			log.WithField("err", err).Error("failed to compute next difficulty")
			return err
		}
		currentDifficultyGauge.Set(float64(difficulty))

		candidate := &Block{
			Index:           tip.Index + 1,
			Epoch:           (tip.Index + 1) / m.cfg.BlocksPerEpoch,
			PreviousHash:    tip.Hash,
			Timestamp:       time.Now().Unix(),
			DataHash:        m.dataHashFn(),
			Difficulty:      new(big.Int).SetUint64(difficulty),
			HashFunc:        m.cfg.DefaultHashFunc,
			NominatedPeerID: m.nominatedPeerID,
			MinerNumber:     m.minerNumber,
		}

		result, err := hashutil.MineWithStats(
			candidate.hashInputWithNonce,
			difficulty,
			params.DifficultyCoefficient, params.DifficultyExponent, params.DifficultyBase,
			m.cfg.MiningMaxTries,
			m.cfg.DefaultHashFunc,
			m.cfg.MiningDelay,
		)
		miningAttempts.Add(float64(result.Attempts))

		if err != nil {
			if err == hashutil.ErrMiningInterrupted {
				return nil
			}
			log.WithField("err", err).Debug("mining attempt did not find a block this round")
			continue
		}

		candidate.Nonce = result.Nonce
		candidate.Hash, err = hashutil.HashString(candidate.hashInputWithNonce(candidate.Nonce), candidate.HashFunc)
		if err != nil {
			log.WithField("err", err).Error("failed to finalize mined block hash")
			continue
		}

		outcome, err := m.chain.IngestBlock(candidate)
		if err != nil {
			log.WithField("err", err).Warn("locally mined block rejected on ingest")
			continue
		}
		if outcome == OutcomeCanonical {
			miningBlocksFound.Inc()
			log.WithField("index", candidate.Index).WithField("hashrate", result.Hashrate()).Info("mined new canonical block")
		}
	}
}
