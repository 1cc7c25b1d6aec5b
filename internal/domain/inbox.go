package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	InboxAssignmentCreated = "assignment_created"
	InboxAssignmentMarked  = "assignment_marked"
)

// InboxItem is an informational in-app notice for an administrator. It is
// recorded, never sent, and takes no part in the delivery backlog.
type InboxItem struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Type         string     `json:"type"`
	AssignmentID uuid.UUID  `json:"assignment_id"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Read         bool       `json:"read"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (i *InboxItem) MarkRead(at time.Time) {
	if i.Read {
		return
	}
	i.Read = true
	i.ReadAt = &at
}
