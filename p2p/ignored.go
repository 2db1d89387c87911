package p2p

import (
	"sync"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
)

// IgnoredPeers is a list of peers ignored until an expiry (spec.md §5:
// "peer may be placed on an ignored list with an expiry"). Entries are
// added only by explicit Ignore calls: neither the sync client nor
// chainsync adds a peer after a failed request or checks the list before
// one. Distinct from PeerCache: that one bounds memory by
// size/LRU, this one bounds membership by time, since a peer should come
// back into rotation once its penalty expires regardless of how many other
// peers were ignored since.
type IgnoredPeers struct {
	mu      sync.RWMutex
	expires map[peer.ID]time.Time
}

// NewIgnoredPeers builds an empty ignore list.
func NewIgnoredPeers() *IgnoredPeers {
	return &IgnoredPeers{expires: make(map[peer.ID]time.Time)}
}

// Ignore places id on the ignore list for the given duration, extending an
// existing penalty rather than shortening it.
func (ig *IgnoredPeers) Ignore(id peer.ID, d time.Duration, now time.Time) {
	ig.mu.Lock()
	defer ig.mu.Unlock()

	until := now.Add(d)
	if existing, ok := ig.expires[id]; ok && existing.After(until) {
		return
	}
	ig.expires[id] = until
}

// IsIgnored reports whether id is still under penalty at now.
func (ig *IgnoredPeers) IsIgnored(id peer.ID, now time.Time) bool {
	ig.mu.RLock()
	defer ig.mu.RUnlock()

	until, ok := ig.expires[id]
	return ok && now.Before(until)
}

// Prune drops every expired entry, keeping the map from growing unbounded
// across a long-running node. Safe to call periodically from a background
// tick; cheap when nothing has expired.
func (ig *IgnoredPeers) Prune(now time.Time) {
	ig.mu.Lock()
	defer ig.mu.Unlock()

	for id, until := range ig.expires {
		if !now.After(until) {
			continue
		}
		delete(ig.expires, id)
	}
}

// Len returns the number of peers currently tracked, expired or not.
func (ig *IgnoredPeers) Len() int {
	ig.mu.RLock()
	defer ig.mu.RUnlock()
	return len(ig.expires)
}
