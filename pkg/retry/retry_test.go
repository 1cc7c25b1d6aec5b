package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errTransient = errors.New("transient")
	errPermanent = errors.New("permanent")
)

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func TestWithBackoff_Success(t *testing.T) {
	result, err := WithBackoff(context.Background(), 3, time.Millisecond, isTransient, func(int) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected 'ok', got %q", result)
	}
}

func TestWithBackoff_NonRetriableError(t *testing.T) {
	calls := 0
	_, err := WithBackoff(context.Background(), 3, time.Millisecond, isTransient, func(int) (string, error) {
		calls++
		return "", errPermanent
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call for non-retriable error, got %d", calls)
	}
}

func TestWithBackoff_RetriableEventualSuccess(t *testing.T) {
	var attempts []int
	result, err := WithBackoff(context.Background(), 5, time.Millisecond, isTransient, func(attempt int) (string, error) {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return "", errTransient
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result != "recovered" {
		t.Fatalf("expected 'recovered', got %q", result)
	}
	if len(attempts) != 3 || attempts[0] != 1 || attempts[2] != 3 {
		t.Fatalf("unexpected attempt numbers %v", attempts)
	}
}

func TestWithBackoff_AllRetriesFail(t *testing.T) {
	calls := 0
	_, err := WithBackoff(context.Background(), 3, time.Millisecond, isTransient, func(int) (string, error) {
		calls++
		return "", errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected wrapped transient error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestWithBackoff_NilPredicateNeverRetries(t *testing.T) {
	calls := 0
	_, _ = WithBackoff(context.Background(), 3, time.Millisecond, nil, func(int) (int, error) {
		calls++
		return 0, errTransient
	})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestWithBackoff_InvalidAttempts(t *testing.T) {
	_, err := WithBackoff(context.Background(), 0, time.Millisecond, isTransient, func(int) (int, error) {
		return 1, nil
	})
	if err == nil {
		t.Fatal("expected error for zero attempts")
	}
}

func TestWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := WithBackoff(ctx, 5, time.Millisecond, isTransient, func(int) (string, error) {
		calls++
		return "", errTransient
	})
	if err == nil {
		t.Fatal("expected context cancelled error")
	}
	if calls != 0 {
		t.Fatalf("expected no calls, got %d", calls)
	}
}

func TestCircuitBreaker_ClosedState(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Second, isTransient)

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected StateClosed, got %v", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Second, isTransient)

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errTransient })
	}

	if cb.State() != StateOpen {
		t.Fatalf("expected StateOpen after %d failures, got %v", 3, cb.State())
	}

	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_ResetsAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(2, 50*time.Millisecond, isTransient)

	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errTransient })
	}
	if cb.State() != StateOpen {
		t.Fatal("expected StateOpen")
	}

	time.Sleep(60 * time.Millisecond)

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("expected no error after timeout, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected StateClosed after successful call, got %v", cb.State())
	}
}

func TestCircuitBreaker_NonCountedErrorDoesNotOpen(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Second, isTransient)

	for i := 0; i < 5; i++ {
		_ = cb.Execute(func() error { return errPermanent })
	}

	if cb.State() != StateClosed {
		t.Fatalf("expected StateClosed for non-counted errors, got %v", cb.State())
	}
}
