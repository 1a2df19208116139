package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/relaynet/chatcore/internal/metrics"
	"github.com/relaynet/chatcore/internal/storage/models"
	"github.com/relaynet/chatcore/pkg/logger"
)

type Path string

const (
	PathExternal Path = "external"
	PathFallback Path = "fallback"
)

// ModelProvider is the external model call: prompt plus retrieval context
// in, generated text out. Connectivity and timeout failures are expected.
type ModelProvider interface {
	Generate(ctx context.Context, prompt, ragContext string) (string, error)
}

type AttemptRecorder interface {
	InsertAttempt(attempt *models.AIResponseAttempt) error
}

type Request struct {
	MessageID string
	Body      string
	Context   string
}

type Result struct {
	Reply string
	Path  Path
}

type state int

const (
	stateIdle state = iota
	stateAttemptingExternal
	stateAttemptingFallback
	stateSucceeded
	stateFailed
)

// Orchestrator drives one reply through the external-then-fallback state
// machine. External failure is recoverable and never propagates; an error
// inside the fallback is the only fatal outcome. Every transition out of an
// attempting state appends one audit record.
type Orchestrator struct {
	provider ModelProvider
	fallback *Fallback
	recorder AttemptRecorder
	timeout  time.Duration
}

func NewOrchestrator(provider ModelProvider, fallback *Fallback, recorder AttemptRecorder, timeout time.Duration) *Orchestrator {
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	return &Orchestrator{
		provider: provider,
		fallback: fallback,
		recorder: recorder,
		timeout:  timeout,
	}
}

func (o *Orchestrator) Respond(ctx context.Context, req Request) (Result, error) {
	var result Result
	var fatal error

	st := stateAttemptingExternal
	for {
		switch st {
		case stateAttemptingExternal:
			start := time.Now()
			callCtx, cancel := context.WithTimeout(ctx, o.timeout)
			reply, err := o.provider.Generate(callCtx, req.Body, req.Context)
			cancel()
			latency := int(time.Since(start).Milliseconds())

			if err != nil {
				// Timeout and connection errors are one and the same
				// here: no partial output is accepted.
				o.record(req.MessageID, PathExternal, latency, false, externalErrorKind(err))
				metrics.AIAttempts.WithLabelValues(string(PathExternal), "failure").Inc()
				logger.Warn("External model unavailable, falling back",
					zap.String("message_id", req.MessageID),
					zap.Int("latency_ms", latency),
					zap.Error(err),
				)
				st = stateAttemptingFallback
				continue
			}

			o.record(req.MessageID, PathExternal, latency, true, "")
			metrics.AIAttempts.WithLabelValues(string(PathExternal), "success").Inc()
			metrics.AIResponseDuration.WithLabelValues(string(PathExternal)).Observe(time.Since(start).Seconds())
			result = Result{Reply: reply, Path: PathExternal}
			st = stateSucceeded

		case stateAttemptingFallback:
			start := time.Now()
			reply, err := o.replyWithFallback(req.Body)
			latency := int(time.Since(start).Milliseconds())

			if err != nil {
				o.record(req.MessageID, PathFallback, latency, false, "internal")
				metrics.AIAttempts.WithLabelValues(string(PathFallback), "failure").Inc()
				fatal = fmt.Errorf("fallback responder failed: %w", err)
				st = stateFailed
				continue
			}

			o.record(req.MessageID, PathFallback, latency, true, "")
			metrics.AIAttempts.WithLabelValues(string(PathFallback), "success").Inc()
			metrics.AIResponseDuration.WithLabelValues(string(PathFallback)).Observe(time.Since(start).Seconds())
			result = Result{Reply: reply, Path: PathFallback}
			st = stateSucceeded

		case stateSucceeded:
			return result, nil

		case stateFailed:
			return Result{}, fatal
		}
	}
}

// replyWithFallback converts a fallback panic into an error so the state
// machine can report it as the fatal path instead of crashing the caller.
func (o *Orchestrator) replyWithFallback(body string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in fallback responder: %v", r)
		}
	}()

	return o.fallback.Reply(body), nil
}

func (o *Orchestrator) record(messageID string, path Path, latencyMS int, success bool, errorKind string) {
	if o.recorder == nil {
		return
	}

	attempt := &models.AIResponseAttempt{
		MessageID: messageID,
		Path:      string(path),
		LatencyMS: latencyMS,
		Success:   success,
		ErrorKind: errorKind,
		CreatedAt: time.Now(),
	}

	if err := o.recorder.InsertAttempt(attempt); err != nil {
		logger.Warn("Failed to record response attempt",
			zap.String("message_id", messageID),
			zap.String("path", string(path)),
			zap.Error(err),
		)
	}
}

func externalErrorKind(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "unavailable"
}
