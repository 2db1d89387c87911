package p2p

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// PeerCache is a bounded cache of recently dialed peers and their last-known
// multiaddr, so reconnect attempts don't need a fresh address lookup. Sized
// by Config.MaxPeers, evicting least-recently-used entries once full —
// grounded on the teacher's own exclusionList use of a bounded cache
// (beacon-chain/p2p.Service.exclusionList), with hashicorp/golang-lru in
// place of ristretto since that's the LRU implementation this pack carries.
type PeerCache struct {
	cache *lru.Cache
}

// NewPeerCache builds a cache capped at size entries.
func NewPeerCache(size int) *PeerCache {
	if size <= 0 {
		size = 64
	}
	c, err := lru.New(size)
	if err != nil {
		// lru.New only errors on size <= 0, already guarded above.
		panic(err)
	}
	return &PeerCache{cache: c}
}

// Add records id's last-known address, evicting the least recently used
// entry if the cache is full.
func (pc *PeerCache) Add(id peer.ID, addr ma.Multiaddr) {
	pc.cache.Add(id, addr)
}

// Get returns id's last-known address, if cached.
func (pc *PeerCache) Get(id peer.ID) (ma.Multiaddr, bool) {
	v, ok := pc.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.(ma.Multiaddr), true
}

// Len returns the number of cached peers.
func (pc *PeerCache) Len() int {
	return pc.cache.Len()
}
