package chat

import (
	"context"

	"go.uber.org/zap"

	"github.com/relaynet/chatcore/internal/metrics"
	"github.com/relaynet/chatcore/internal/storage/models"
	"github.com/relaynet/chatcore/pkg/logger"
)

// Broadcaster delivers a message to every current member of its room.
// Delivery to a single member is best effort: a failed write drops that
// member only and never aborts delivery to the rest.
type Broadcaster interface {
	Publish(ctx context.Context, msg models.Message) error
	Close() error
}

// LocalBroadcaster fans out within one process. Member snapshots are taken
// under the room lock; writes happen after it is released.
type LocalBroadcaster struct {
	registry *Registry
}

func NewLocalBroadcaster(registry *Registry) *LocalBroadcaster {
	return &LocalBroadcaster{registry: registry}
}

func (b *LocalBroadcaster) Publish(ctx context.Context, msg models.Message) error {
	members := b.registry.MembersOf(msg.RoomID)

	for _, member := range members {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := member.transport.Send(msg); err != nil {
			metrics.BroadcastDeliveries.WithLabelValues("failed").Inc()
			logger.Warn("Broadcast delivery failed, dropping member",
				zap.String("connection_id", member.ID),
				zap.String("room_id", msg.RoomID),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			b.registry.Unregister(member)
			continue
		}
		metrics.BroadcastDeliveries.WithLabelValues("delivered").Inc()
	}

	return nil
}

func (b *LocalBroadcaster) Close() error {
	return nil
}
