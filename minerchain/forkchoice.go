package minerchain

import (
	"time"
)

// IngestOutcome classifies the result of IngestBlock for metrics and caller
// branching (spec.md §4.1, §8 properties 2-4).
type IngestOutcome string

const (
	OutcomeCanonical      IngestOutcome = "canonical"
	OutcomeFork           IngestOutcome = "fork"
	OutcomeOrphanGap      IngestOutcome = "orphan_gap"
	OutcomeOrphanNoParent IngestOutcome = "orphan_no_parent"
	OutcomeOrphanFork     IngestOutcome = "orphan_fork"
	OutcomeDuplicate      IngestOutcome = "duplicate"
)

// IngestBlock validates and applies an incoming block to the chain,
// following spec.md §4.1's ingest sequence:
//  1. recompute the hash; reject on mismatch
//  2. reject if already present (canonical, fork, or orphan store)
//  3. if its previous_hash matches the current tip, it extends the chain
//  4. a block past tip+1 is archived as a "Gap detected" orphan
//  5. otherwise it's a fork candidate: only a block at the tip's own index
//     is compared, against the tip, using shouldReplaceBlock; the winner
//     becomes canonical, the loser is archived as a fork. A block below the
//     tip's index is archived as a "Fork detected" orphan without comparing
//     it to the canonical block at its index.
func (cs *ChainService) IngestBlock(b *Block) (IngestOutcome, error) {
	if !b.VerifyHash() {
		blocksIngested.WithLabelValues(string(OutcomeOrphanGap)).Inc()
		return "", newError(KindInvalidHash, "block %s: hash does not match contents", b.Hash)
	}
	if ok, err := b.VerifyProofOfWork(); err != nil {
		return "", newError(KindInvalidHash, "block %s: %s", b.Hash, err)
	} else if !ok {
		blocksIngested.WithLabelValues(string(OutcomeOrphanGap)).Inc()
		return "", newError(KindInvalidHash, "block %s: hash does not satisfy claimed difficulty", b.Hash)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if dup, err := cs.isAlreadyPresentLocked(b); err != nil {
		return "", err
	} else if dup {
		blocksIngested.WithLabelValues(string(OutcomeDuplicate)).Inc()
		return OutcomeDuplicate, newError(KindAlreadyPresent, "block %s already known", b.Hash)
	}

	b.SeenAt = time.Now().Unix()

	switch {
	case b.Index == cs.tip.Index+1 && b.PreviousHash == cs.tip.Hash:
		return cs.extendCanonicalLocked(b)
	case b.Index > cs.tip.Index+1:
		b.IsOrphaned = true
		b.OrphanReason = "Gap detected"
		if err := persistFork(cs.mgr, b); err != nil {
			return "", err
		}
		blocksIngested.WithLabelValues(string(OutcomeOrphanGap)).Inc()
		return OutcomeOrphanGap, nil
	default:
		return cs.resolveForkLocked(b)
	}
}

func (cs *ChainService) isAlreadyPresentLocked(b *Block) (bool, error) {
	if b.Hash == cs.tip.Hash {
		return true, nil
	}
	if _, found, err := getForkByHash(cs.mgr, b.Hash); err != nil {
		return false, err
	} else if found {
		return true, nil
	}
	siblings, err := getActiveByIndex(cs.mgr, b.Index)
	if err != nil {
		return false, err
	}
	for _, s := range siblings {
		if s.Hash == b.Hash {
			return true, nil
		}
	}
	return false, nil
}

func (cs *ChainService) extendCanonicalLocked(b *Block) (IngestOutcome, error) {
	if err := persistCanonical(cs.mgr, b); err != nil {
		return "", err
	}
	cs.tip = b
	cs.cumulativeDifficulty.Add(cs.cumulativeDifficulty, b.ActualizedDifficulty())
	chainHeight.Set(float64(b.Index))
	blocksIngested.WithLabelValues(string(OutcomeCanonical)).Inc()
	log.WithField("index", b.Index).WithField("hash", b.Hash).Info("extended canonical chain")

	if resolved, err := cs.tryResolveOrphansLocked(b); err != nil {
		return "", err
	} else if resolved {
		log.WithField("index", b.Index+1).Debug("resolved pending orphan after parent arrived")
	}
	return OutcomeCanonical, nil
}

// resolveForkLocked handles a block that either contests the current tip's
// index/parent, or is behind the tip entirely. Only a block at the tip's
// index is compared (against the tip, via shouldReplaceBlock); a block
// behind the tip is archived as an orphan without any comparison.
func (cs *ChainService) resolveForkLocked(b *Block) (IngestOutcome, error) {
	if b.PreviousHash == "" && b.Index != 0 {
		b.IsOrphaned = true
		b.OrphanReason = "Parent not found"
		if err := persistFork(cs.mgr, b); err != nil {
			return "", err
		}
		blocksIngested.WithLabelValues(string(OutcomeOrphanNoParent)).Inc()
		return OutcomeOrphanNoParent, nil
	}

	if b.Index == cs.tip.Index && shouldReplaceBlock(b, cs.tip) {
		loser := cs.tip
		loser.IsCanonical = false
		if err := persistFork(cs.mgr, loser); err != nil {
			return "", err
		}
		if err := persistCanonical(cs.mgr, b); err != nil {
			return "", err
		}
		cs.cumulativeDifficulty.Sub(cs.cumulativeDifficulty, loser.ActualizedDifficulty())
		cs.cumulativeDifficulty.Add(cs.cumulativeDifficulty, b.ActualizedDifficulty())
		cs.tip = b
		chainHeight.Set(float64(b.Index))
		blocksIngested.WithLabelValues(string(OutcomeCanonical)).Inc()
		log.WithField("index", b.Index).WithField("hash", b.Hash).Warn("reorganized canonical tip via fork choice")
		return OutcomeCanonical, nil
	}

	b.IsOrphaned = true
	b.OrphanReason = "Fork detected"
	if err := persistFork(cs.mgr, b); err != nil {
		return "", err
	}
	blocksIngested.WithLabelValues(string(OutcomeOrphanFork)).Inc()
	return OutcomeOrphanFork, nil
}

// shouldReplaceBlock implements spec.md §4.1's fork-choice comparator:
// higher actualized difficulty wins; ties broken by earlier seen_at; further
// ties broken by lexicographically smaller hash.
func shouldReplaceBlock(candidate, incumbent *Block) bool {
	if cmp := candidate.ActualizedDifficulty().Cmp(incumbent.ActualizedDifficulty()); cmp != 0 {
		return cmp > 0
	}
	if candidate.SeenAt != incumbent.SeenAt {
		return candidate.SeenAt < incumbent.SeenAt
	}
	return candidate.Hash < incumbent.Hash
}

// tryResolveOrphansLocked re-evaluates any orphan recorded with "Gap
// detected" at newTip.Index+1, since the arrival of newTip may have closed
// the gap that orphaned it. Multiple such orphans can share newTip as their
// parent (siblings mined concurrently on top of the same gap); only one may
// become canonical, so every matching candidate is run through
// shouldReplaceBlock to pick a single winner before anything is promoted or
// added to cs.cumulativeDifficulty. The rest stay archived as forks.
func (cs *ChainService) tryResolveOrphansLocked(newTip *Block) (bool, error) {
	candidates, err := getForksByIndex(cs.mgr, newTip.Index+1)
	if err != nil {
		return false, err
	}

	var winner *Block
	for _, c := range candidates {
		if c.PreviousHash != newTip.Hash || !c.IsOrphaned {
			continue
		}
		if winner == nil || shouldReplaceBlock(c, winner) {
			winner = c
		}
	}
	if winner == nil {
		return false, nil
	}

	winner.IsOrphaned = false
	winner.OrphanReason = ""
	if err := persistCanonical(cs.mgr, winner); err != nil {
		return false, err
	}
	cs.tip = winner
	cs.cumulativeDifficulty.Add(cs.cumulativeDifficulty, winner.ActualizedDifficulty())
	chainHeight.Set(float64(winner.Index))

	for _, c := range candidates {
		if c.Hash == winner.Hash || c.PreviousHash != newTip.Hash || !c.IsOrphaned {
			continue
		}
		c.OrphanReason = "Lost fork choice to sibling"
		if err := persistFork(cs.mgr, c); err != nil {
			return true, err
		}
	}
	return true, nil
}
