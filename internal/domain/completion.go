package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type CompletionState string

const (
	CompletionStatePending   CompletionState = "PENDING"
	CompletionStateSubmitted CompletionState = "SUBMITTED"
	CompletionStateGraded    CompletionState = "GRADED"
)

func (s CompletionState) IsValid() bool {
	switch s {
	case CompletionStatePending, CompletionStateSubmitted, CompletionStateGraded:
		return true
	default:
		return false
	}
}

// rank orders states along the lifecycle.
func (s CompletionState) rank() int {
	switch s {
	case CompletionStatePending:
		return 0
	case CompletionStateSubmitted:
		return 1
	case CompletionStateGraded:
		return 2
	default:
		return -1
	}
}

// CanFollow reports whether next is a legal successor of s. Graded may
// follow Graded (re-grading).
func (s CompletionState) CanFollow(next CompletionState) bool {
	switch {
	case s == CompletionStateGraded && next == CompletionStateGraded:
		return true
	default:
		return next.rank() == s.rank()+1
	}
}

type CompletionRecord struct {
	ID           uuid.UUID       `json:"id"`
	AssignmentID uuid.UUID       `json:"assignment_id"`
	StudentID    uuid.UUID       `json:"student_id"`
	State        CompletionState `json:"state"`
	SubmittedAt  *time.Time      `json:"submitted_at,omitempty"`
	GradedAt     *time.Time      `json:"graded_at,omitempty"`
	Grade        *string         `json:"grade,omitempty"`
	Comment      *string         `json:"comment,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	EditedAt     time.Time       `json:"edited_at"`
}

func NewCompletionRecord(assignmentID, studentID uuid.UUID, now time.Time) CompletionRecord {
	return CompletionRecord{
		AssignmentID: assignmentID,
		StudentID:    studentID,
		State:        CompletionStatePending,
		CreatedAt:    now,
		EditedAt:     now,
	}
}

func (r *CompletionRecord) Submit(now time.Time) error {
	if !r.State.CanFollow(CompletionStateSubmitted) {
		return fmt.Errorf("%w: cannot submit a %s record", ErrInvalidTransition, strings.ToLower(string(r.State)))
	}
	r.State = CompletionStateSubmitted
	r.SubmittedAt = &now
	r.EditedAt = now
	return nil
}

// ApplyGrade grades a submitted record or overwrites the grade of a graded one.
func (r *CompletionRecord) ApplyGrade(value string, comment *string, now time.Time) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%w: grade is required", ErrInvalidArgument)
	}
	if !r.State.CanFollow(CompletionStateGraded) {
		return fmt.Errorf("%w: record must be submitted before grading", ErrInvalidTransition)
	}
	r.State = CompletionStateGraded
	r.Grade = &value
	r.Comment = comment
	r.GradedAt = &now
	r.EditedAt = now
	return nil
}
