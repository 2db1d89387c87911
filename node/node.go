// Package node wires the consensus stack's individual services — the
// miner chain, the DAG, Shoal consensus, peer sync, and the libp2p
// transport — into one running process. Grounded on the teacher's own
// beacon-chain/node.BeaconNode: a single owning struct that opens storage,
// constructs each service in dependency order, and exposes a non-blocking
// Start plus a graceful Close, simplified from the teacher's generic
// ServiceRegistry (not present in this pack) to direct field wiring, since
// this stack's services don't share a uniform Start()/Stop() shape the way
// beacon-chain's do.
package node

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/libp2p/go-libp2p-core/peer"

	"github.com/modality-network/modalnode/chainsync"
	"github.com/modality-network/modalnode/dag"
	"github.com/modality-network/modalnode/minerchain"
	"github.com/modality-network/modalnode/p2p"
	"github.com/modality-network/modalnode/shared/params"
	"github.com/modality-network/modalnode/shoalconsensus"
	"github.com/modality-network/modalnode/store"
)

var log = logrus.WithField("prefix", "node")

// Node owns every long-lived service of one modalnode process.
type Node struct {
	cfg *Config
	mgr *store.Manager

	chain     *minerchain.ChainService
	dagStore  *dag.DAG
	consensus *shoalconsensus.ShoalConsensus
	sync      *chainsync.SyncCoordinator
	p2p       *p2p.Service
	gossip    *p2p.BlockGossip

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens storage, recovers the DAG, derives the active committee, and
// constructs every service, but starts nothing yet: call Start to bring the
// node's background loops up.
func New(cfg *Config) (*Node, error) {
	mgr, err := store.OpenManager(cfg.DataDir)
	if err != nil {
		return nil, errors.Wrap(err, "opening data directory")
	}

	chain, err := minerchain.NewChainService(mgr, cfg.Network, cfg.GenesisDataHash)
	if err != nil {
		return nil, errors.Wrap(err, "starting miner chain service")
	}

	recovery, err := chainsync.RecoverDAG(mgr, chainsync.Hybrid)
	if err != nil {
		return nil, errors.Wrap(err, "recovering DAG")
	}
	if err := chainsync.VerifyDAGConsistency(recovery.DAG); err != nil {
		return nil, errors.Wrap(err, "verifying recovered DAG")
	}

	committee, err := deriveActiveCommittee(mgr, cfg.Network, chain)
	if err != nil {
		return nil, errors.Wrap(err, "deriving active committee")
	}

	var consensus *shoalconsensus.ShoalConsensus
	repCfg := shoalconsensus.ReputationConfig{
		WindowSize:      cfg.Network.ReputationWindowSize,
		DecayFactor:     cfg.Network.ReputationDecayFactor,
		MinScore:        cfg.Network.ReputationMinScore,
		TargetLatencyMs: cfg.Network.ReputationTargetLatency,
	}
	if recovery.UsedCheckpoint {
		consensus = shoalconsensus.NewWithState(recovery.DAG, committee, recovery.ConsensusState, recovery.ReputationState)
	} else {
		consensus = shoalconsensus.New(recovery.DAG, committee, repCfg)
	}

	p2pSvc, err := p2p.NewService(cfg.P2P)
	if err != nil {
		return nil, errors.Wrap(err, "starting libp2p service")
	}
	p2pSvc.RegisterSyncHandlers(mgr)
	gossip, err := p2pSvc.JoinBlockGossip()
	if err != nil {
		return nil, errors.Wrap(err, "joining block gossip topic")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		cfg:       cfg,
		mgr:       mgr,
		chain:     chain,
		dagStore:  recovery.DAG,
		consensus: consensus,
		sync:      chainsync.NewSyncCoordinator(mgr, chain, cfg.Network),
		p2p:       p2pSvc,
		gossip:    gossip,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// deriveActiveCommittee computes the validator set for the chain's current
// mining epoch. The candidate pool is whoever nominated a block in the
// lookback epoch; a configured static validator list takes precedence over
// it (DeriveValidatorSet's override), whatever the chain's length.
func deriveActiveCommittee(mgr *store.Manager, netCfg *params.NetworkConfig, chain *minerchain.ChainService) (*dag.Committee, error) {
	miningEpoch := chain.Tip().Index / netCfg.BlocksPerEpoch

	var candidates []string
	if miningEpoch >= netCfg.ValidatorLookback {
		sourceEpoch := miningEpoch - netCfg.ValidatorLookback
		blocks, err := minerchain.EpochBlocks(mgr, sourceEpoch)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool)
		for _, b := range blocks {
			if !seen[b.NominatedPeerID] {
				seen[b.NominatedPeerID] = true
				candidates = append(candidates, b.NominatedPeerID)
			}
		}
	}

	vs, err := minerchain.DeriveValidatorSet(mgr, netCfg, miningEpoch, candidates)
	if err != nil {
		return nil, err
	}
	if vs == nil {
		// Not enough chain history yet and no static validator list
		// (DeriveValidatorSet returns a set whenever one is configured), so
		// this committee is empty.
		return dag.NewCommittee(miningEpoch, miningEpoch, netCfg.StaticValidators, nil, nil), nil
	}
	return dag.NewCommittee(vs.MiningEpoch, vs.MiningEpoch, vs.Nominated, vs.Alternates, vs.Staked), nil
}

// Start brings up the libp2p transport, the gossip receive loop, and (if
// configured) the mining loop. Returns immediately; background loops run
// until Close cancels them.
func (n *Node) Start() {
	n.p2p.Start()

	n.wg.Add(1)
	go n.runGossipLoop()

	if n.cfg.Mine {
		n.wg.Add(1)
		go n.runMiningLoop()
	}

	log.WithField("peer_id", n.p2p.PeerID().String()).Info("modalnode started")
}

// runMiningLoop drives minerchain.Miner.Run until the node is closed,
// anchoring each mined block to the DAG's current commit frontier.
func (n *Node) runMiningLoop() {
	defer n.wg.Done()

	miner := minerchain.NewMiner(n.chain, n.cfg.Network, n.cfg.NominatedPeerID, n.cfg.MinerNumber, n.commitFrontierDigest)
	if err := miner.Run(n.ctx); err != nil && n.ctx.Err() == nil {
		log.WithError(err).Error("mining loop exited unexpectedly")
	}
}

// commitFrontierDigest summarizes the DAG's current commit frontier as the
// next mined block's data hash, the way the miner chain anchors Shoal's
// committed state onto the PoW chain (spec.md §1's two-layer design).
func (n *Node) commitFrontierDigest() string {
	round := n.consensus.LastCommittedRound()
	h := sha256.Sum256([]byte(fmt.Sprintf("commit-frontier/%d", round)))
	return hex.EncodeToString(h[:])
}

// runGossipLoop ingests blocks broadcast by peers into the local chain.
func (n *Node) runGossipLoop() {
	defer n.wg.Done()

	selfID := n.p2p.PeerID().String()
	err := n.gossip.Blocks(n.ctx, selfID, func(b *minerchain.Block) {
		if _, err := n.chain.IngestBlock(b); err != nil {
			log.WithError(err).Debug("rejected gossiped block")
		}
	})
	if err != nil && n.ctx.Err() == nil {
		log.WithError(err).Warn("gossip receive loop exited")
	}
}

// SyncWithPeer runs one sync round against peerID over the live libp2p
// transport.
func (n *Node) SyncWithPeer(ctx context.Context, peerID string) (*chainsync.SyncResult, error) {
	pid, err := peer.Decode(peerID)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing peer id %s", peerID)
	}
	client := p2p.NewSyncClient(n.p2p, pid)
	return n.sync.SyncWithPeer(ctx, peerID, client)
}

// BroadcastBlock gossips a newly mined or adopted block to the network.
func (n *Node) BroadcastBlock(ctx context.Context, b *minerchain.Block) error {
	return n.gossip.PublishBlock(ctx, b)
}

// Close stops every background loop and releases storage, waiting up to 10
// seconds for in-flight work to wind down (same shutdown budget as the
// teacher's own BeaconNode.Close union of interrupt handling).
func (n *Node) Close() error {
	n.cancel()
	n.gossip.Cancel()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn("timed out waiting for background loops to exit")
	}

	if err := n.p2p.Stop(); err != nil {
		log.WithError(err).Warn("error stopping libp2p service")
	}
	return n.mgr.Close()
}
