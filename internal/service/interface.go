package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gradebook_service/internal/domain"
)

type AssignmentStore interface {
	// CreateWithRecords inserts the assignment and its records in one transaction.
	CreateWithRecords(ctx context.Context, a *domain.Assignment, records []domain.CompletionRecord) error
	GetAssignment(ctx context.Context, id uuid.UUID) (*domain.Assignment, error)
	// UpdateAssignment locks the assignment, hands it and its records to fn,
	// and persists the assignment if fn returns nil.
	UpdateAssignment(ctx context.Context, id uuid.UUID, fn func(a *domain.Assignment, records []domain.CompletionRecord) error) (*domain.Assignment, error)
}

type CompletionStore interface {
	ListRecords(ctx context.Context, assignmentID uuid.UUID) ([]domain.CompletionRecord, error)
	GetRecord(ctx context.Context, assignmentID, studentID uuid.UUID) (*domain.CompletionRecord, error)
	// UpdateRecord locks the record, applies fn and persists the result in one
	// transaction. Nothing is written when fn fails.
	UpdateRecord(ctx context.Context, assignmentID, studentID uuid.UUID, fn func(r *domain.CompletionRecord) error) (*domain.CompletionRecord, error)
}

type Directory interface {
	ListStudentsByClass(ctx context.Context, classID uuid.UUID) ([]domain.Student, error)
	GetStudent(ctx context.Context, id uuid.UUID) (*domain.Student, error)
	GetContact(ctx context.Context, userID uuid.UUID) (*domain.Contact, error)
	ListParents(ctx context.Context, studentID uuid.UUID) ([]domain.Contact, error)
	ListAdmins(ctx context.Context) ([]domain.Contact, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *domain.NotificationEvent) error
	UpdateNotification(ctx context.Context, n *domain.NotificationEvent) error
	ListNotifications(ctx context.Context, assignmentID uuid.UUID) ([]domain.NotificationEvent, error)
	// ClaimRetryable moves up to limit retryable events back to PENDING and
	// returns them oldest first. Retryable means FAILED, or PENDING with no
	// activity since staleBefore, with an address and fewer than maxAttempts
	// attempts. A claimed event is not returned to another caller until it
	// settles or goes stale. limit <= 0 means no limit.
	ClaimRetryable(ctx context.Context, maxAttempts, limit int, staleBefore, now time.Time) ([]domain.NotificationEvent, error)
	CountBacklog(ctx context.Context) (int, error)
}

type InboxStore interface {
	CreateInboxItem(ctx context.Context, item *domain.InboxItem) error
	ListInbox(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]domain.InboxItem, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	// MarkInboxRead fails with ErrNotFound when the item does not belong to userID.
	MarkInboxRead(ctx context.Context, userID, id uuid.UUID, at time.Time) (*domain.InboxItem, error)
	MarkAllInboxRead(ctx context.Context, userID uuid.UUID, at time.Time) (int, error)
}

// EventSink receives transition events after they are committed.
type EventSink interface {
	OnTransition(ctx context.Context, ev domain.TransitionEvent) DispatchResult
}

type DatabaseProbe interface {
	CheckDatabase(ctx context.Context) domain.Reachability
}

type NetworkProbe interface {
	CheckNetwork(ctx context.Context, host string, timeout time.Duration) domain.Reachability
}

type GlobalLimiter interface {
	Allow() bool
}
