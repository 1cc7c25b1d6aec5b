package handler

import (
	"fmt"

	"gradebook_service/internal/domain"
)

type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionExtend Action = "extend"
	ActionSubmit Action = "submit"
	ActionGrade  Action = "grade"
	// ActionAudit covers the notification history, which carries contact
	// addresses.
	ActionAudit Action = "audit"
	ActionInbox Action = "inbox"
)

// Authorizer decides whether an identity may perform an action on an
// assignment. The service layer below it does no role checks.
type Authorizer struct{}

func (Authorizer) Authorize(id Identity, action Action, a *domain.Assignment) error {
	owner := id.Role == domain.UserRoleTeacher && a != nil && a.CreatedBy == id.UserID

	var allowed bool
	switch action {
	case ActionRead:
		allowed = id.Role.IsValid()
	case ActionCreate:
		allowed = id.Role == domain.UserRoleTeacher
	case ActionUpdate, ActionGrade:
		allowed = owner
	case ActionExtend, ActionSubmit, ActionAudit:
		allowed = owner || id.Role == domain.UserRoleAdmin
	case ActionInbox:
		allowed = id.Role == domain.UserRoleAdmin
	}

	if !allowed {
		if a == nil {
			return fmt.Errorf("%w: %s may not %s", domain.ErrPermissionDenied, id.Role, action)
		}
		return fmt.Errorf("%w: %s may not %s this assignment", domain.ErrPermissionDenied, id.Role, action)
	}
	return nil
}
