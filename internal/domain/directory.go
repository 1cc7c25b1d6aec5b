package domain

import "github.com/google/uuid"

type Student struct {
	ID        uuid.UUID `json:"id"`
	SchoolID  uuid.UUID `json:"school_id"`
	ClassID   uuid.UUID `json:"class_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
}

func (s Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// Contact is a user that can receive notifications.
type Contact struct {
	UserID uuid.UUID `json:"user_id"`
	Role   UserRole  `json:"role"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
}
