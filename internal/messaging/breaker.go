package messaging

import (
	"context"

	"gradebook_service/pkg/retry"
)

// BreakerMessenger stops calling a transport that keeps failing. Rejections
// concern a single recipient and do not trip the breaker.
type BreakerMessenger struct {
	next    Messenger
	breaker *retry.CircuitBreaker
}

func NewBreakerMessenger(next Messenger, breaker *retry.CircuitBreaker) *BreakerMessenger {
	return &BreakerMessenger{next: next, breaker: breaker}
}

// TransportFailure reports whether err says the transport itself is failing.
func TransportFailure(err error) bool {
	return err != nil && !IsRejected(err)
}

func (b *BreakerMessenger) Send(ctx context.Context, address, templateID string, data map[string]any) error {
	return b.breaker.Execute(func() error {
		return b.next.Send(ctx, address, templateID, data)
	})
}
