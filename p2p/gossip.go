package p2p

import (
	"context"
	"encoding/json"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/pkg/errors"

	"github.com/modality-network/modalnode/minerchain"
)

// BlockTopic is the gossipsub topic newly mined/adopted canonical blocks are
// broadcast on (spec.md §6).
const BlockTopic = "/modal/miner_block/1.0.0"

// BlockGossip wraps a joined gossipsub topic for publishing and subscribing
// to mined blocks.
type BlockGossip struct {
	topic *pubsub.Topic
	sub   *pubsub.Subscription
}

// JoinBlockGossip joins BlockTopic and subscribes, ready for PublishBlock and
// Blocks.
func (s *Service) JoinBlockGossip() (*BlockGossip, error) {
	topic, err := s.pubsub.Join(BlockTopic)
	if err != nil {
		return nil, errors.Wrap(err, "joining block gossip topic")
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return nil, errors.Wrap(err, "subscribing to block gossip topic")
	}
	return &BlockGossip{topic: topic, sub: sub}, nil
}

// PublishBlock broadcasts b to every subscriber of BlockTopic.
func (g *BlockGossip) PublishBlock(ctx context.Context, b *minerchain.Block) error {
	b.PrepareForEncoding()
	raw, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "marshaling gossiped block")
	}
	return g.topic.Publish(ctx, raw)
}

// Blocks runs handler for every block received over BlockTopic until ctx is
// canceled. selfID lets the caller skip its own re-published messages.
func (g *BlockGossip) Blocks(ctx context.Context, selfID string, handler func(*minerchain.Block)) error {
	for {
		msg, err := g.sub.Next(ctx)
		if err != nil {
			return err
		}
		if msg.ReceivedFrom.String() == selfID {
			continue
		}
		var b minerchain.Block
		if err := json.Unmarshal(msg.Data, &b); err != nil {
			log.WithError(err).Warn("dropping malformed gossiped block")
			continue
		}
		if err := b.PrepareAfterDecoding(); err != nil {
			log.WithError(err).Warn("dropping gossiped block with invalid numeric fields")
			continue
		}
		handler(&b)
	}
}

// Cancel unsubscribes and leaves the topic.
func (g *BlockGossip) Cancel() {
	g.sub.Cancel()
	_ = g.topic.Close()
}
