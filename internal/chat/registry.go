package chat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaynet/chatcore/internal/metrics"
	"github.com/relaynet/chatcore/internal/storage/models"
	"github.com/relaynet/chatcore/pkg/logger"
)

// Transport is the registry's view of a client connection. The core never
// sees sockets; the transport layer adapts whatever it speaks to this.
// Implementations must be pointer types so the registry can key on identity.
type Transport interface {
	Send(msg models.Message) error
	Close() error
}

// Handle identifies one registered connection. The transport is owned by
// the registry entry and is closed exactly once, on unregistration.
type Handle struct {
	ID        string
	UserID    string
	RoomID    string
	transport Transport
	lastSeen  int64
}

type room struct {
	mu      sync.Mutex
	members []*Handle
}

// Registry tracks live connections grouped by room. The top-level maps are
// guarded by one mutex held only for map lookups; membership mutation takes
// the per-room lock so rooms do not contend with each other.
type Registry struct {
	presenceTimeout time.Duration
	sweepInterval   time.Duration

	mu      sync.Mutex
	handles map[Transport]*Handle
	rooms   map[string]*room

	broadcaster Broadcaster
	done        chan struct{}
}

func NewRegistry(presenceTimeout, sweepInterval time.Duration) *Registry {
	if presenceTimeout == 0 {
		presenceTimeout = 90 * time.Second
	}
	if sweepInterval == 0 {
		sweepInterval = 30 * time.Second
	}

	return &Registry{
		presenceTimeout: presenceTimeout,
		sweepInterval:   sweepInterval,
		handles:         make(map[Transport]*Handle),
		rooms:           make(map[string]*room),
		done:            make(chan struct{}),
	}
}

// SetBroadcaster wires the fabric presence events are published to. Set
// once during startup, before any connection registers.
func (r *Registry) SetBroadcaster(b Broadcaster) {
	r.broadcaster = b
}

func (r *Registry) Register(userID, roomID string, t Transport) (*Handle, error) {
	h := &Handle{
		ID:        uuid.New().String(),
		UserID:    userID,
		RoomID:    roomID,
		transport: t,
	}
	atomic.StoreInt64(&h.lastSeen, time.Now().UnixNano())

	r.mu.Lock()
	if _, exists := r.handles[t]; exists {
		r.mu.Unlock()
		return nil, ErrDuplicateConnection
	}
	r.handles[t] = h

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{}
		r.rooms[roomID] = rm
	}
	r.mu.Unlock()

	rm.mu.Lock()
	rm.members = append(rm.members, h)
	rm.mu.Unlock()

	metrics.ActiveConnections.Inc()
	logger.Info("Connection registered",
		zap.String("connection_id", h.ID),
		zap.String("user_id", userID),
		zap.String("room_id", roomID),
	)

	r.emitPresence(roomID, userID, "presence-joined")

	return h, nil
}

// Unregister is idempotent. It removes the handle, closes the transport
// and emits a presence-left system message.
func (r *Registry) Unregister(h *Handle) {
	if h == nil {
		return
	}

	r.mu.Lock()
	current, ok := r.handles[h.transport]
	if !ok || current != h {
		r.mu.Unlock()
		return
	}
	delete(r.handles, h.transport)
	rm := r.rooms[h.RoomID]
	r.mu.Unlock()

	if rm != nil {
		rm.mu.Lock()
		for i, member := range rm.members {
			if member == h {
				rm.members = append(rm.members[:i], rm.members[i+1:]...)
				break
			}
		}
		rm.mu.Unlock()
	}

	if err := h.transport.Close(); err != nil {
		logger.Debug("Transport close failed", zap.String("connection_id", h.ID), zap.Error(err))
	}

	metrics.ActiveConnections.Dec()
	logger.Info("Connection unregistered",
		zap.String("connection_id", h.ID),
		zap.String("room_id", h.RoomID),
	)

	r.emitPresence(h.RoomID, h.UserID, "presence-left")
}

// MembersOf returns a join-ordered snapshot. Callers send to members after
// this returns; the room lock is never held across transport writes.
func (r *Registry) MembersOf(roomID string) []*Handle {
	r.mu.Lock()
	rm := r.rooms[roomID]
	r.mu.Unlock()

	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	snapshot := make([]*Handle, len(rm.members))
	copy(snapshot, rm.members)
	return snapshot
}

func (r *Registry) IsMember(roomID, userID string) bool {
	for _, h := range r.MembersOf(roomID) {
		if h.UserID == userID {
			return true
		}
	}
	return false
}

func (r *Registry) Touch(h *Handle) {
	atomic.StoreInt64(&h.lastSeen, time.Now().UnixNano())
}

// Start launches the liveness sweep. Connections idle past the presence
// timeout are unregistered as if they had disconnected.
func (r *Registry) Start() {
	go func() {
		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-r.done:
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

func (r *Registry) Stop() {
	close(r.done)
}

func (r *Registry) sweep() {
	cutoff := time.Now().Add(-r.presenceTimeout).UnixNano()

	r.mu.Lock()
	stale := make([]*Handle, 0)
	for _, h := range r.handles {
		if atomic.LoadInt64(&h.lastSeen) < cutoff {
			stale = append(stale, h)
		}
	}
	r.mu.Unlock()

	for _, h := range stale {
		logger.Info("Sweeping stale connection",
			zap.String("connection_id", h.ID),
			zap.String("room_id", h.RoomID),
		)
		r.Unregister(h)
	}
}

// Presence changes ride the fabric as transient system messages; they are
// never persisted.
func (r *Registry) emitPresence(roomID, userID, event string) {
	if r.broadcaster == nil {
		return
	}

	msg := models.Message{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		SenderID:  userID,
		Body:      event,
		Kind:      models.KindSystem,
		CreatedAt: time.Now(),
	}

	if err := r.broadcaster.Publish(context.Background(), msg); err != nil {
		logger.Warn("Failed to publish presence event",
			zap.String("event", event),
			zap.String("room_id", roomID),
			zap.Error(err),
		)
	}
}
