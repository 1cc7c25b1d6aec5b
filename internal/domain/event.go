package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransitionKind string

const (
	TransitionAssignmentCreated TransitionKind = "ASSIGNMENT_CREATED"
	TransitionSubmitted         TransitionKind = "SUBMITTED"
	TransitionGraded            TransitionKind = "GRADED"
)

// TransitionEvent is emitted once per durable state change.
type TransitionEvent struct {
	Kind         TransitionKind `json:"kind"`
	AssignmentID uuid.UUID      `json:"assignment_id"`
	StudentID    *uuid.UUID     `json:"student_id,omitempty"`
	RecordID     *uuid.UUID     `json:"record_id,omitempty"`
	TeacherID    uuid.UUID      `json:"teacher_id"`
	Title        string         `json:"title"`
	Grade        *string        `json:"grade,omitempty"`
	Comment      *string        `json:"comment,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

func RecordEvent(kind TransitionKind, a *Assignment, r *CompletionRecord, at time.Time) TransitionEvent {
	studentID := r.StudentID
	recordID := r.ID
	return TransitionEvent{
		Kind:         kind,
		AssignmentID: a.ID,
		StudentID:    &studentID,
		RecordID:     &recordID,
		TeacherID:    a.CreatedBy,
		Title:        a.Title,
		Grade:        r.Grade,
		Comment:      r.Comment,
		OccurredAt:   at,
	}
}
