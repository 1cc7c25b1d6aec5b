package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Assignment struct {
	ID          uuid.UUID `json:"id"`
	SchoolID    uuid.UUID `json:"school_id"`
	ClassID     uuid.UUID `json:"class_id"`
	SubjectID   uuid.UUID `json:"subject_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description,omitempty"`
	DueDate     time.Time `json:"due_date"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	EditedAt    time.Time `json:"edited_at"`
}

type NewAssignment struct {
	SchoolID    uuid.UUID
	ClassID     uuid.UUID
	SubjectID   uuid.UUID
	Title       string
	Description *string
	DueDate     time.Time
	CreatedBy   uuid.UUID
}

func (n NewAssignment) Validate() error {
	if n.ClassID == uuid.Nil || n.CreatedBy == uuid.Nil {
		return fmt.Errorf("%w: class and teacher are required", ErrInvalidArgument)
	}
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidArgument)
	}
	if n.DueDate.IsZero() {
		return fmt.Errorf("%w: due date is required", ErrInvalidArgument)
	}
	return nil
}

// EditDetails changes title and description. Assignments with completion
// records are frozen apart from their due date.
func (a *Assignment) EditDetails(title string, description *string, records int, now time.Time) error {
	if records > 0 {
		return ErrAssignmentLocked
	}
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidArgument)
	}
	a.Title = title
	a.Description = description
	a.EditedAt = now
	return nil
}

// ExtendDueDate moves the due date forward. It is refused once every record
// has been graded.
func (a *Assignment) ExtendDueDate(newDue time.Time, records []CompletionRecord, now time.Time) error {
	if !newDue.After(a.DueDate) {
		return fmt.Errorf("%w: new due date must be after %s", ErrInvalidArgument, a.DueDate.Format(time.DateOnly))
	}
	if len(records) > 0 && allGraded(records) {
		return ErrAssignmentLocked
	}
	a.DueDate = newDue
	a.EditedAt = now
	return nil
}

func allGraded(records []CompletionRecord) bool {
	for _, r := range records {
		if r.State != CompletionStateGraded {
			return false
		}
	}
	return true
}
