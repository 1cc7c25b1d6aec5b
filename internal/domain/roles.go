package domain

type UserRole string

const (
	UserRoleAdmin   UserRole = "admin"
	UserRoleTeacher UserRole = "teacher"
	UserRoleParent  UserRole = "parent"
)

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleAdmin, UserRoleTeacher, UserRoleParent:
		return true
	default:
		return false
	}
}
