// Package messaging delivers rendered notifications to recipients. The
// dispatcher decides what to send and to whom; transports here only deliver.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Messenger interface {
	// Send returns nil when the transport accepted the message and a
	// *RejectedError when it refused it.
	Send(ctx context.Context, address, templateID string, data map[string]any) error
}

type RejectedError struct {
	Reason string
	Err    error
}

func (e *RejectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("message rejected: %s: %v", e.Reason, e.Err)
	}
	return "message rejected: " + e.Reason
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

func Reject(reason string, err error) error {
	return &RejectedError{Reason: reason, Err: err}
}

func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}

// NotificationRequest is the queued form of a send, consumed by the notifier.
type NotificationRequest struct {
	ID          string         `json:"id"`
	Address     string         `json:"address"`
	TemplateID  string         `json:"template_id"`
	Data        map[string]any `json:"data"`
	RequestedAt time.Time      `json:"requested_at"`
}
