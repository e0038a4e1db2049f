package coordinator

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mqtt-cluster/internal/broker"
)

// fanOut forwards msg to every registered broker except originID. It
// returns immediately; deliveries run detached and their failures are
// only logged.
func (c *Coordinator) fanOut(msg broker.Message, originID uuid.UUID) {
	peers := c.brokers.Peers(originID)
	if len(peers) == 0 {
		return
	}

	go func() {
		// Not tied to the admission call
		ctx := context.Background()

		var g errgroup.Group
		for _, p := range peers {
			p := p
			g.Go(func() error {
				c.forward(ctx, p, msg)
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (c *Coordinator) forward(ctx context.Context, peer broker.Peer, msg broker.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.stats.IncForwardsFailed()
			c.logger.Error("forward panicked", "brokerId", peer.ID, "panic", r)
		}
	}()

	if err := c.publisher.Publish(ctx, peer.Settings, msg); err != nil {
		c.stats.IncForwardsFailed()
		c.logger.Error("failed to forward message to broker",
			"brokerId", peer.ID,
			"topic", msg.Topic,
			"error", err)
		return
	}

	c.stats.IncForwardsDelivered()
	c.logger.Debug("forwarded message to broker",
		"brokerId", peer.ID,
		"topic", msg.Topic)
}
