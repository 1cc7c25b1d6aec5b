package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"gradebook_service/internal/domain"
)

// DirectoryRepository reads students, contacts and parent links. The
// directory is maintained by other services; this side never writes it.
type DirectoryRepository struct {
	db *sql.DB
}

func NewDirectoryRepository(db *sql.DB) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

func (r *DirectoryRepository) ListStudentsByClass(ctx context.Context, classID uuid.UUID) ([]domain.Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, school_id, class_id, first_name, last_name
		FROM students
		WHERE class_id = $1
		ORDER BY last_name, first_name
	`, classID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var students []domain.Student
	for rows.Next() {
		var st domain.Student
		if err := rows.Scan(&st.ID, &st.SchoolID, &st.ClassID, &st.FirstName, &st.LastName); err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

func (r *DirectoryRepository) GetStudent(ctx context.Context, id uuid.UUID) (*domain.Student, error) {
	var st domain.Student
	err := r.db.QueryRowContext(ctx, `
		SELECT id, school_id, class_id, first_name, last_name
		FROM students
		WHERE id = $1
	`, id).Scan(&st.ID, &st.SchoolID, &st.ClassID, &st.FirstName, &st.LastName)
	if err != nil {
		return nil, mapError(err, "get student")
	}
	return &st, nil
}

func (r *DirectoryRepository) GetContact(ctx context.Context, userID uuid.UUID) (*domain.Contact, error) {
	var c domain.Contact
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, role, name, email
		FROM contacts
		WHERE user_id = $1
	`, userID).Scan(&c.UserID, &c.Role, &c.Name, &c.Email)
	if err != nil {
		return nil, mapError(err, "get contact")
	}
	return &c, nil
}

func (r *DirectoryRepository) ListParents(ctx context.Context, studentID uuid.UUID) ([]domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.user_id, c.role, c.name, c.email
		FROM student_parents sp
		JOIN contacts c ON c.user_id = sp.parent_id
		WHERE sp.student_id = $1
		ORDER BY c.name, c.user_id
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var parents []domain.Contact
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(&c.UserID, &c.Role, &c.Name, &c.Email); err != nil {
			return nil, err
		}
		parents = append(parents, c)
	}
	return parents, rows.Err()
}

func (r *DirectoryRepository) ListAdmins(ctx context.Context) ([]domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, role, name, email
		FROM contacts
		WHERE role = $1
		ORDER BY user_id
	`, domain.UserRoleAdmin)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var admins []domain.Contact
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(&c.UserID, &c.Role, &c.Name, &c.Email); err != nil {
			return nil, err
		}
		admins = append(admins, c)
	}
	return admins, rows.Err()
}
