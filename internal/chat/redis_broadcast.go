package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/relaynet/chatcore/internal/storage/models"
	"github.com/relaynet/chatcore/pkg/logger"
)

const (
	channelPrefix = "chatroom:"
	dedupeWindow  = 4096
)

// RedisBroadcaster relays messages between instances over Redis pub/sub.
// Local members get the message directly; every other instance hosting
// members of the room receives it through its subscription. Delivery is
// at-least-once, so received message ids are de-duplicated before fan-out.
type RedisBroadcaster struct {
	client *redis.Client
	local  *LocalBroadcaster

	mu      sync.Mutex
	seen    map[string]struct{}
	seenLog []string

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRedisBroadcaster(host string, port int, password string, db int, local *LocalBroadcaster) (*RedisBroadcaster, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)

	b := &RedisBroadcaster{
		client: client,
		local:  local,
		seen:   make(map[string]struct{}),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go b.subscribe(subCtx)

	logger.Info("Redis broadcaster initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return b, nil
}

func (b *RedisBroadcaster) Publish(ctx context.Context, msg models.Message) error {
	// Local members first: a relay outage must not silence the room the
	// sender is in.
	b.markSeen(msg.ID)
	if err := b.local.Publish(ctx, msg); err != nil {
		return err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := b.client.Publish(ctx, channelPrefix+msg.RoomID, payload).Err(); err != nil {
		logger.Warn("Redis publish failed, local delivery only",
			zap.String("message_id", msg.ID),
			zap.String("room_id", msg.RoomID),
			zap.Error(err),
		)
	}

	return nil
}

func (b *RedisBroadcaster) subscribe(ctx context.Context) {
	defer close(b.done)

	sub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-sub.Channel():
			if !ok {
				return
			}

			var msg models.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				logger.Warn("Dropping malformed relay payload", zap.Error(err))
				continue
			}

			if b.markSeen(msg.ID) {
				continue
			}

			if err := b.local.Publish(ctx, msg); err != nil {
				logger.Warn("Relay fan-out failed",
					zap.String("message_id", msg.ID),
					zap.Error(err),
				)
			}
		}
	}
}

// markSeen records a message id and reports whether it was already known.
// The window is bounded; oldest ids are evicted first.
func (b *RedisBroadcaster) markSeen(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, dup := b.seen[id]; dup {
		return true
	}

	b.seen[id] = struct{}{}
	b.seenLog = append(b.seenLog, id)
	if len(b.seenLog) > dedupeWindow {
		delete(b.seen, b.seenLog[0])
		b.seenLog = b.seenLog[1:]
	}
	return false
}

func (b *RedisBroadcaster) Close() error {
	b.cancel()
	<-b.done
	return b.client.Close()
}
