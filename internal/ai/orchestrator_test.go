package ai

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/relaynet/chatcore/internal/storage/models"
)

type stubProvider struct {
	reply string
	err   error
	block bool
}

func (p *stubProvider) Generate(ctx context.Context, prompt, ragContext string) (string, error) {
	if p.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return p.reply, p.err
}

type stubRecorder struct {
	mu       sync.Mutex
	attempts []models.AIResponseAttempt
	err      error
}

func (r *stubRecorder) InsertAttempt(attempt *models.AIResponseAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.attempts = append(r.attempts, *attempt)
	return nil
}

func (r *stubRecorder) all() []models.AIResponseAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AIResponseAttempt, len(r.attempts))
	copy(out, r.attempts)
	return out
}

func TestOrchestratorExternalSuccess(t *testing.T) {
	recorder := &stubRecorder{}
	o := NewOrchestrator(&stubProvider{reply: "generated answer"}, NewFallback(DefaultRules(), ""), recorder, time.Second)

	result, err := o.Respond(context.Background(), Request{MessageID: "m1", Body: "ping"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if result.Path != PathExternal {
		t.Fatalf("expected external path, got %q", result.Path)
	}
	if result.Reply != "generated answer" {
		t.Fatalf("unexpected reply %q", result.Reply)
	}

	attempts := recorder.all()
	if len(attempts) != 1 {
		t.Fatalf("expected one audit record, got %d", len(attempts))
	}
	if !attempts[0].Success || attempts[0].Path != string(PathExternal) || attempts[0].ErrorKind != "" {
		t.Fatalf("unexpected attempt: %+v", attempts[0])
	}
}

func TestOrchestratorFallsBackOnProviderError(t *testing.T) {
	recorder := &stubRecorder{}
	o := NewOrchestrator(&stubProvider{err: errors.New("connection refused")}, NewFallback(DefaultRules(), ""), recorder, time.Second)

	result, err := o.Respond(context.Background(), Request{MessageID: "m1", Body: "ping"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if result.Path != PathFallback || result.Reply != "pong" {
		t.Fatalf("expected fallback pong, got %+v", result)
	}

	attempts := recorder.all()
	if len(attempts) != 2 {
		t.Fatalf("expected two audit records, got %d", len(attempts))
	}
	if attempts[0].Success || attempts[0].ErrorKind != "unavailable" {
		t.Fatalf("first attempt should be a failed external call marked unavailable: %+v", attempts[0])
	}
	if !attempts[1].Success || attempts[1].Path != string(PathFallback) {
		t.Fatalf("second attempt should be a successful fallback: %+v", attempts[1])
	}
}

func TestOrchestratorTimeoutTreatedAsFailure(t *testing.T) {
	recorder := &stubRecorder{}
	o := NewOrchestrator(&stubProvider{block: true}, NewFallback(DefaultRules(), ""), recorder, 20*time.Millisecond)

	result, err := o.Respond(context.Background(), Request{MessageID: "m1", Body: "hello"})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if result.Path != PathFallback {
		t.Fatalf("expected fallback path after timeout, got %q", result.Path)
	}

	attempts := recorder.all()
	if len(attempts) != 2 || attempts[0].ErrorKind != "timeout" {
		t.Fatalf("expected external attempt marked timeout, got %+v", attempts)
	}
}

func TestOrchestratorFatalWhenFallbackPanics(t *testing.T) {
	broken := NewFallback([]Rule{
		{
			Name:     "boom",
			Priority: 100,
			Pattern:  regexp.MustCompile(`.`),
			Respond:  func(string) string { panic("rule exploded") },
		},
	}, "")

	recorder := &stubRecorder{}
	o := NewOrchestrator(&stubProvider{err: errors.New("down")}, broken, recorder, time.Second)

	_, err := o.Respond(context.Background(), Request{MessageID: "m1", Body: "anything"})
	if err == nil {
		t.Fatalf("expected a fatal error when the fallback itself fails")
	}

	attempts := recorder.all()
	if len(attempts) != 2 {
		t.Fatalf("expected two audit records, got %d", len(attempts))
	}
	if attempts[1].Success || attempts[1].ErrorKind != "internal" {
		t.Fatalf("fallback attempt should be recorded as an internal failure: %+v", attempts[1])
	}
}

func TestOrchestratorToleratesRecorderFailure(t *testing.T) {
	recorder := &stubRecorder{err: errors.New("disk full")}
	o := NewOrchestrator(&stubProvider{reply: "ok"}, NewFallback(DefaultRules(), ""), recorder, time.Second)

	result, err := o.Respond(context.Background(), Request{MessageID: "m1", Body: "hello"})
	if err != nil {
		t.Fatalf("audit failure must not affect the reply: %v", err)
	}
	if result.Reply != "ok" {
		t.Fatalf("unexpected reply %q", result.Reply)
	}
}

func TestOrchestratorNilRecorder(t *testing.T) {
	o := NewOrchestrator(&stubProvider{reply: "ok"}, NewFallback(DefaultRules(), ""), nil, time.Second)

	if _, err := o.Respond(context.Background(), Request{MessageID: "m1", Body: "hello"}); err != nil {
		t.Fatalf("respond with nil recorder: %v", err)
	}
}
