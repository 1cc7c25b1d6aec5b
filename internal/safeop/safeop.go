// Package safeop runs database mutations and notification sends under a
// bounded retry policy and reduces their faults to a closed taxonomy.
package safeop

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gradebook_service/pkg/logging"
	"gradebook_service/pkg/retry"
)

type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeDegraded Outcome = "degraded"
	OutcomeFailed   Outcome = "failed"
)

const maxSendAttempts = 3

type Policy struct {
	Name          string
	MaxAttempts   int
	Backoff       time.Duration
	AllowDegraded bool
	Idempotent    bool
	Target        Target
}

// attempts clamps non-idempotent policies to a single attempt.
func (p Policy) attempts() int {
	if !p.Idempotent || p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// MutationPolicy commits state exactly once and never degrades.
func MutationPolicy(name string) Policy {
	return Policy{Name: name, MaxAttempts: 1, Target: TargetStore}
}

func ReadPolicy(name string) Policy {
	return Policy{
		Name:        name,
		MaxAttempts: 3,
		Backoff:     50 * time.Millisecond,
		Idempotent:  true,
		Target:      TargetStore,
	}
}

// SendPolicy allows up to three delivery attempts; a send that still fails
// degrades instead of failing its caller.
func SendPolicy(name string, attempts int, backoff time.Duration) Policy {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > maxSendAttempts {
		attempts = maxSendAttempts
	}
	return Policy{
		Name:          name,
		MaxAttempts:   attempts,
		Backoff:       backoff,
		AllowDegraded: true,
		Idempotent:    true,
		Target:        TargetNetwork,
	}
}

type Result[T any] struct {
	Outcome  Outcome
	Value    T
	Kind     ErrorKind
	Err      error
	Attempts int
}

func (r Result[T]) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

type Executor struct {
	logger *logging.Logger
}

func NewExecutor(logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.New(zap.NewNop())
	}
	return &Executor{logger: logger}
}

// Execute runs op under policy. Only connection and network faults are
// retried, and only when the policy is idempotent. On a degraded outcome
// Value is fallback.
func Execute[T any](ctx context.Context, e *Executor, p Policy, op func(ctx context.Context) (T, error), fallback T) Result[T] {
	maxAttempts := p.attempts()
	attempts := 0

	value, err := retry.WithBackoff(ctx, maxAttempts, p.Backoff,
		func(err error) bool { return Classify(err, p.Target).Retriable() },
		func(attempt int) (T, error) {
			attempts = attempt
			v, err := op(ctx)
			e.logAttempt(ctx, p, attempt, maxAttempts, err)
			return v, err
		},
	)

	if err == nil {
		return Result[T]{Outcome: OutcomeSuccess, Value: value, Attempts: attempts}
	}

	kind := Classify(err, p.Target)
	failure := &Error{Kind: kind, Op: p.Name, Err: err}

	if p.AllowDegraded {
		return Result[T]{Outcome: OutcomeDegraded, Value: fallback, Kind: kind, Err: failure, Attempts: attempts}
	}

	var zero T
	return Result[T]{Outcome: OutcomeFailed, Value: zero, Kind: kind, Err: failure, Attempts: attempts}
}

func (e *Executor) logAttempt(ctx context.Context, p Policy, attempt, maxAttempts int, err error) {
	fields := []zap.Field{
		zap.String("operation", p.Name),
		zap.Int("attempt", attempt),
		zap.Int("max_attempts", maxAttempts),
	}
	if err == nil {
		e.logger.Debug(ctx, "operation succeeded", fields...)
		return
	}

	kind := Classify(err, p.Target)
	fields = append(fields, zap.String("fault", string(kind)), zap.Error(err))

	switch kind {
	case KindUnexpectedFault:
		e.logger.Error(ctx, "operation failed with unexpected fault", fields...)
	case KindInvalidTransition, KindRejected, KindRateLimited:
		e.logger.Info(ctx, "operation rejected", fields...)
	default:
		e.logger.Warn(ctx, "operation attempt failed", fields...)
	}
}
