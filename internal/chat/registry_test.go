package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relaynet/chatcore/internal/storage/models"
)

type fakeTransport struct {
	mu       sync.Mutex
	received []models.Message
	closed   bool
	failSend bool
}

func (t *fakeTransport) Send(msg models.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failSend {
		return errors.New("write failed")
	}
	t.received = append(t.received, msg)
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) messages() []models.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.Message, len(t.received))
	copy(out, t.received)
	return out
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type recordingBroadcaster struct {
	mu        sync.Mutex
	published []models.Message
}

func (b *recordingBroadcaster) Publish(ctx context.Context, msg models.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, msg)
	return nil
}

func (b *recordingBroadcaster) Close() error { return nil }

func (b *recordingBroadcaster) all() []models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Message, len(b.published))
	copy(out, b.published)
	return out
}

func TestRegistryRegisterAndMembersOf(t *testing.T) {
	r := NewRegistry(time.Minute, time.Minute)

	ta := &fakeTransport{}
	tb := &fakeTransport{}

	ha, err := r.Register("alice", "general", ta)
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	hb, err := r.Register("bob", "general", tb)
	if err != nil {
		t.Fatalf("register bob: %v", err)
	}

	members := r.MembersOf("general")
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if members[0] != ha || members[1] != hb {
		t.Fatalf("expected join order to be preserved")
	}

	if !r.IsMember("general", "alice") {
		t.Fatalf("expected alice to be a member")
	}
	if r.IsMember("general", "carol") {
		t.Fatalf("carol should not be a member")
	}
}

func TestRegistryRejectsDuplicateTransport(t *testing.T) {
	r := NewRegistry(time.Minute, time.Minute)

	tr := &fakeTransport{}
	if _, err := r.Register("alice", "general", tr); err != nil {
		t.Fatalf("first register: %v", err)
	}

	_, err := r.Register("alice", "general", tr)
	if !errors.Is(err, ErrDuplicateConnection) {
		t.Fatalf("expected ErrDuplicateConnection, got %v", err)
	}
}

func TestRegistryUnregisterRemovesAndCloses(t *testing.T) {
	r := NewRegistry(time.Minute, time.Minute)

	tr := &fakeTransport{}
	h, err := r.Register("alice", "general", tr)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	r.Unregister(h)

	if len(r.MembersOf("general")) != 0 {
		t.Fatalf("expected room to be empty after unregister")
	}
	if !tr.isClosed() {
		t.Fatalf("expected transport to be closed")
	}

	// Idempotent.
	r.Unregister(h)
}

func TestRegistryEmitsPresenceEvents(t *testing.T) {
	r := NewRegistry(time.Minute, time.Minute)
	b := &recordingBroadcaster{}
	r.SetBroadcaster(b)

	tr := &fakeTransport{}
	h, err := r.Register("alice", "general", tr)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	r.Unregister(h)

	events := b.all()
	if len(events) != 2 {
		t.Fatalf("expected 2 presence events, got %d", len(events))
	}
	if events[0].Body != "presence-joined" || events[0].Kind != models.KindSystem {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Body != "presence-left" || events[1].SenderID != "alice" {
		t.Fatalf("unexpected second event: %+v", events[1])
	}
}

func TestRegistrySweepRemovesStaleConnections(t *testing.T) {
	r := NewRegistry(50*time.Millisecond, 10*time.Millisecond)
	r.Start()
	defer r.Stop()

	tr := &fakeTransport{}
	if _, err := r.Register("alice", "general", tr); err != nil {
		t.Fatalf("register: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(r.MembersOf("general")) == 0 {
			if !tr.isClosed() {
				t.Fatalf("swept transport should be closed")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("stale connection was never swept")
}

func TestRegistryTouchKeepsConnectionAlive(t *testing.T) {
	r := NewRegistry(80*time.Millisecond, 20*time.Millisecond)
	r.Start()
	defer r.Stop()

	tr := &fakeTransport{}
	h, err := r.Register("alice", "general", tr)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := 0; i < 10; i++ {
		time.Sleep(20 * time.Millisecond)
		r.Touch(h)
	}

	if len(r.MembersOf("general")) != 1 {
		t.Fatalf("touched connection should still be registered")
	}
}
