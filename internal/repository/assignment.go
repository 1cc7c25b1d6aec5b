package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"gradebook_service/internal/domain"
)

const assignmentColumns = `id, school_id, class_id, subject_id, title, description, due_date, created_by, created_at, edited_at`

const recordColumns = `id, assignment_id, student_id, state, submitted_at, graded_at, grade, comment, created_at, edited_at`

// AssignmentRepository persists assignments and their completion records.
type AssignmentRepository struct {
	db *sql.DB
}

func NewAssignmentRepository(db *sql.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func scanAssignment(s scanner) (*domain.Assignment, error) {
	var a domain.Assignment
	err := s.Scan(
		&a.ID,
		&a.SchoolID,
		&a.ClassID,
		&a.SubjectID,
		&a.Title,
		&a.Description,
		&a.DueDate,
		&a.CreatedBy,
		&a.CreatedAt,
		&a.EditedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanRecord(s scanner) (*domain.CompletionRecord, error) {
	var r domain.CompletionRecord
	err := s.Scan(
		&r.ID,
		&r.AssignmentID,
		&r.StudentID,
		&r.State,
		&r.SubmittedAt,
		&r.GradedAt,
		&r.Grade,
		&r.Comment,
		&r.CreatedAt,
		&r.EditedAt,
	)
	if err != nil {
		return nil, err
	}
	if !r.State.IsValid() {
		return nil, fmt.Errorf("record %s has unknown state %q", r.ID, r.State)
	}
	return &r, nil
}

func (r *AssignmentRepository) CreateWithRecords(ctx context.Context, a *domain.Assignment, records []domain.CompletionRecord) error {
	if a.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		a.ID = id
	}

	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO assignments (`+assignmentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			a.ID, a.SchoolID, a.ClassID, a.SubjectID, a.Title, a.Description,
			a.DueDate, a.CreatedBy, a.CreatedAt, a.EditedAt,
		)
		if err != nil {
			return mapError(err, "insert assignment")
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO completion_records (`+recordColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`)
		if err != nil {
			return fmt.Errorf("prepare record insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i := range records {
			rec := &records[i]
			if rec.ID == uuid.Nil {
				id, err := uuid.NewV7()
				if err != nil {
					return err
				}
				rec.ID = id
			}
			rec.AssignmentID = a.ID
			_, err := stmt.ExecContext(ctx,
				rec.ID, rec.AssignmentID, rec.StudentID, rec.State, rec.SubmittedAt,
				rec.GradedAt, rec.Grade, rec.Comment, rec.CreatedAt, rec.EditedAt,
			)
			if err != nil {
				return mapError(err, "insert completion record")
			}
		}
		return nil
	})
}

func (r *AssignmentRepository) GetAssignment(ctx context.Context, id uuid.UUID) (*domain.Assignment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id)
	a, err := scanAssignment(row)
	if err != nil {
		return nil, mapError(err, "get assignment")
	}
	return a, nil
}

func (r *AssignmentRepository) UpdateAssignment(ctx context.Context, id uuid.UUID, fn func(a *domain.Assignment, records []domain.CompletionRecord) error) (*domain.Assignment, error) {
	var updated *domain.Assignment

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1 FOR UPDATE`, id)
		a, err := scanAssignment(row)
		if err != nil {
			return mapError(err, "lock assignment")
		}

		records, err := listRecords(ctx, tx, `SELECT `+recordColumns+` FROM completion_records WHERE assignment_id = $1 FOR SHARE`, id)
		if err != nil {
			return err
		}

		if err := fn(a, records); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE assignments
			SET title = $1, description = $2, due_date = $3, edited_at = $4
			WHERE id = $5
		`, a.Title, a.Description, a.DueDate, a.EditedAt, a.ID)
		if err != nil {
			return mapError(err, "update assignment")
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listRecords(ctx context.Context, q querier, query string, args ...any) ([]domain.CompletionRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []domain.CompletionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (r *AssignmentRepository) ListRecords(ctx context.Context, assignmentID uuid.UUID) ([]domain.CompletionRecord, error) {
	if _, err := r.GetAssignment(ctx, assignmentID); err != nil {
		return nil, err
	}
	return listRecords(ctx, r.db, `
		SELECT `+recordColumns+`
		FROM completion_records
		WHERE assignment_id = $1
		ORDER BY created_at, student_id
	`, assignmentID)
}

func (r *AssignmentRepository) GetRecord(ctx context.Context, assignmentID, studentID uuid.UUID) (*domain.CompletionRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM completion_records
		WHERE assignment_id = $1 AND student_id = $2
	`, assignmentID, studentID)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, mapError(err, "get completion record")
	}
	return rec, nil
}

// UpdateRecord holds a row lock on the record for the whole of fn, so
// concurrent transitions on one record observe each other's commits.
func (r *AssignmentRepository) UpdateRecord(ctx context.Context, assignmentID, studentID uuid.UUID, fn func(rec *domain.CompletionRecord) error) (*domain.CompletionRecord, error) {
	var updated *domain.CompletionRecord

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+recordColumns+`
			FROM completion_records
			WHERE assignment_id = $1 AND student_id = $2
			FOR UPDATE
		`, assignmentID, studentID)
		rec, err := scanRecord(row)
		if err != nil {
			return mapError(err, "lock completion record")
		}

		if err := fn(rec); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE completion_records
			SET state = $1, submitted_at = $2, graded_at = $3, grade = $4, comment = $5, edited_at = $6
			WHERE id = $7
		`, rec.State, rec.SubmittedAt, rec.GradedAt, rec.Grade, rec.Comment, rec.EditedAt, rec.ID)
		if err != nil {
			return mapError(err, "update completion record")
		}
		updated = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
