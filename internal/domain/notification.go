package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationStatus string

const (
	NotificationStatusPending    NotificationStatus = "PENDING"
	NotificationStatusSent       NotificationStatus = "SENT"
	NotificationStatusFailed     NotificationStatus = "FAILED"
	NotificationStatusSuppressed NotificationStatus = "SUPPRESSED"
)

// InBacklog reports whether the notification still awaits delivery.
func (s NotificationStatus) InBacklog() bool {
	return s == NotificationStatusPending || s == NotificationStatusFailed
}

const (
	TemplateAssignmentSubmission = "assignment_submission"
	TemplateGradeNotification    = "grade_notification"
)

type NotificationEvent struct {
	ID               uuid.UUID          `json:"id"`
	Kind             TransitionKind     `json:"kind"`
	AssignmentID     uuid.UUID          `json:"assignment_id"`
	RecordID         *uuid.UUID         `json:"record_id,omitempty"`
	RecipientRole    UserRole           `json:"recipient_role"`
	RecipientID      uuid.UUID          `json:"recipient_id"`
	RecipientAddress string             `json:"recipient_address"`
	TemplateID       string             `json:"template_id"`
	TemplateData     map[string]any     `json:"template_data,omitempty"`
	Status           NotificationStatus `json:"status"`
	Attempts         int                `json:"attempts"`
	LastAttemptAt    *time.Time         `json:"last_attempt_at,omitempty"`
	LastError        *string            `json:"last_error,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
}

func (n *NotificationEvent) MarkSent(attempts int, at time.Time) {
	n.Status = NotificationStatusSent
	n.Attempts += attempts
	n.LastAttemptAt = &at
	n.LastError = nil
}

func (n *NotificationEvent) MarkFailed(attempts int, at time.Time, reason string) {
	n.Status = NotificationStatusFailed
	n.Attempts += attempts
	if attempts > 0 {
		n.LastAttemptAt = &at
	}
	n.LastError = &reason
}

func (n *NotificationEvent) MarkSuppressed(reason string) {
	n.Status = NotificationStatusSuppressed
	n.LastError = &reason
}
