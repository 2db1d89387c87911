// Package p2p implements the libp2p transport: host setup, the block
// gossip topic, and the request/response handlers backing chainsync's five
// sync RPCs (spec.md §6).
package p2p

import (
	"context"
	"fmt"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p-core/crypto"
	"github.com/libp2p/go-libp2p-core/host"
	"github.com/libp2p/go-libp2p-core/network"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/libp2p/go-libp2p-core/protocol"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "p2p")

// Service owns the libp2p host, gossipsub router, and peer cache for one
// node. Grounded on the teacher's own beacon-chain/p2p.Service, reduced to
// what this network needs: no discv5, ENR, or Kademlia DHT, since peer
// discovery here is bootstrap-list only (spec.md §6 Non-goals).
type Service struct {
	cfg    *Config
	ctx    context.Context
	cancel context.CancelFunc

	host    host.Host
	pubsub  *pubsub.PubSub
	peers   *PeerCache
	ignored *IgnoredPeers

	started bool
}

// NewService creates the libp2p host and joins gossipsub, but dials no
// peers yet; call Start to begin connecting.
func NewService(cfg *Config) (*Service, error) {
	ctx, cancel := context.WithCancel(context.Background())

	priv, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "generating libp2p identity")
	}

	listenAddr, err := ma.NewMultiaddr(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.TCPPort))
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "building listen multiaddr")
	}

	h, err := libp2p.New(ctx, libp2p.Identity(priv), libp2p.ListenAddrs(listenAddr))
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "creating libp2p host")
	}

	gs, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "starting gossipsub")
	}

	return &Service{
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		host:    h,
		pubsub:  gs,
		peers:   NewPeerCache(cfg.MaxPeers),
		ignored: NewIgnoredPeers(),
	}, nil
}

// Start dials every configured bootstrap peer. Connection failures are
// logged, not fatal: spec.md §5 sync retries against other peers regardless.
func (s *Service) Start() {
	if s.started {
		log.Warn("p2p service already started")
		return
	}
	s.started = true

	for _, addr := range s.cfg.BootstrapPeers {
		if err := s.Connect(s.ctx, addr); err != nil {
			log.WithError(err).Warnf("could not dial bootstrap peer %s", addr)
		}
	}
}

// Stop tears down the libp2p host.
func (s *Service) Stop() error {
	s.cancel()
	s.started = false
	return s.host.Close()
}

// Connect dials a peer from its full multiaddr (including /p2p/<id>).
func (s *Service) Connect(ctx context.Context, addr string) error {
	maddr, err := ma.NewMultiaddr(addr)
	if err != nil {
		return errors.Wrapf(err, "parsing multiaddr %s", addr)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return errors.Wrapf(err, "resolving peer info from %s", addr)
	}
	if err := s.host.Connect(ctx, *info); err != nil {
		return errors.Wrapf(err, "connecting to %s", info.ID)
	}
	s.peers.Add(info.ID, maddr)
	return nil
}

// SetStreamHandler registers a protocol handler on the host, a pass-through
// to host.Host.SetStreamHandler (same idiom as the teacher's own
// Service.SetStreamHandler).
func (s *Service) SetStreamHandler(protoID protocol.ID, handler network.StreamHandler) {
	s.host.SetStreamHandler(protoID, handler)
}

// NewStream opens a stream to peerID speaking protoID.
func (s *Service) NewStream(ctx context.Context, peerID peer.ID, protoID protocol.ID) (network.Stream, error) {
	return s.host.NewStream(ctx, peerID, protoID)
}

// Host exposes the underlying libp2p host for components that need it
// directly (gossip publish/subscribe, connection status).
func (s *Service) Host() host.Host { return s.host }

// PubSub returns the gossipsub router.
func (s *Service) PubSub() *pubsub.PubSub { return s.pubsub }

// PeerID returns this node's own peer identity.
func (s *Service) PeerID() peer.ID { return s.host.ID() }

// Peers returns the bounded recently-seen-peer cache.
func (s *Service) Peers() *PeerCache { return s.peers }

// Ignored returns the time-bounded ignore list (spec.md §5).
func (s *Service) Ignored() *IgnoredPeers { return s.ignored }

// Connected reports every peer ID currently connected at the libp2p layer.
func (s *Service) Connected() []peer.ID {
	var ids []peer.ID
	for _, c := range s.host.Network().Conns() {
		ids = append(ids, c.RemotePeer())
	}
	return ids
}
