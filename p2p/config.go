package p2p

import "time"

// Config tunes the libp2p host (spec.md §6). Mirrors the teacher's own
// p2p.Config shape, trimmed to the fields this network actually needs:
// a single TCP listener and a static bootstrap list, no discv5/ENR/DHT
// discovery, since peer discovery beyond static bootstrapping is out of
// scope for this network.
type Config struct {
	// TCPPort is the local TCP port the host listens on.
	TCPPort uint

	// PrivateKeyPath names a libp2p identity key file. NewService does not
	// read it: every Service generates a fresh identity kept in memory.
	PrivateKeyPath string

	// BootstrapPeers are multiaddrs (including /p2p/<peer-id>) dialed once
	// at Start.
	BootstrapPeers []string

	// MaxPeers sizes the peer cache; it does not limit active connections.
	MaxPeers int

	// StreamTimeout bounds every sync request/response round trip.
	StreamTimeout time.Duration
}

// DefaultConfig returns reasonable defaults for a single-node deployment.
func DefaultConfig() *Config {
	return &Config{
		TCPPort:       4100,
		MaxPeers:      64,
		StreamTimeout: 10 * time.Second,
	}
}
