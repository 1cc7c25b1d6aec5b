package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"gradebook_service/internal/domain"
)

const notificationColumns = `id, kind, assignment_id, record_id, recipient_role, recipient_id, recipient_address,
	template_id, template_data, status, attempts, last_attempt_at, last_error, created_at`

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func scanNotification(s scanner) (*domain.NotificationEvent, error) {
	var (
		n    domain.NotificationEvent
		data []byte
	)
	err := s.Scan(
		&n.ID,
		&n.Kind,
		&n.AssignmentID,
		&n.RecordID,
		&n.RecipientRole,
		&n.RecipientID,
		&n.RecipientAddress,
		&n.TemplateID,
		&data,
		&n.Status,
		&n.Attempts,
		&n.LastAttemptAt,
		&n.LastError,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.TemplateData); err != nil {
			return nil, fmt.Errorf("decode template data: %w", err)
		}
	}
	return &n, nil
}

func (r *NotificationRepository) CreateNotification(ctx context.Context, n *domain.NotificationEvent) error {
	if n.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		n.ID = id
	}

	data, err := json.Marshal(n.TemplateData)
	if err != nil {
		return fmt.Errorf("encode template data: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO notification_events (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		n.ID, n.Kind, n.AssignmentID, n.RecordID, n.RecipientRole, n.RecipientID, n.RecipientAddress,
		n.TemplateID, data, n.Status, n.Attempts, n.LastAttemptAt, n.LastError, n.CreatedAt,
	)
	return mapError(err, "insert notification")
}

func (r *NotificationRepository) UpdateNotification(ctx context.Context, n *domain.NotificationEvent) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notification_events
		SET status = $1, attempts = $2, last_attempt_at = $3, last_error = $4
		WHERE id = $5
	`, n.Status, n.Attempts, n.LastAttemptAt, n.LastError, n.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("notification %s: %w", n.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *NotificationRepository) list(ctx context.Context, query string, args ...any) ([]domain.NotificationEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.NotificationEvent
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (r *NotificationRepository) ListNotifications(ctx context.Context, assignmentID uuid.UUID) ([]domain.NotificationEvent, error) {
	return r.list(ctx, `
		SELECT `+notificationColumns+`
		FROM notification_events
		WHERE assignment_id = $1
		ORDER BY created_at, id
	`, assignmentID)
}

// ClaimRetryable flips the selected rows to PENDING in the same statement
// that locks them, so concurrent workers skip each other's claims.
func (r *NotificationRepository) ClaimRetryable(ctx context.Context, maxAttempts, limit int, staleBefore, now time.Time) ([]domain.NotificationEvent, error) {
	var batch any
	if limit > 0 {
		batch = limit
	}
	claimed, err := r.list(ctx, `
		WITH due AS (
			SELECT id
			FROM notification_events
			WHERE recipient_address <> '' AND attempts < $1
				AND (status = $2 OR (status = $3 AND COALESCE(last_attempt_at, created_at) < $4))
			ORDER BY created_at, id
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notification_events n
		SET status = $3, last_attempt_at = $6
		FROM due
		WHERE n.id = due.id
		RETURNING `+qualified("n", notificationColumns)+`
	`, maxAttempts, domain.NotificationStatusFailed, domain.NotificationStatusPending, staleBefore, batch, now)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(claimed, func(i, j int) bool {
		return claimed[i].CreatedAt.Before(claimed[j].CreatedAt)
	})
	return claimed, nil
}

func (r *NotificationRepository) CountBacklog(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM notification_events
		WHERE status IN ($1, $2)
	`, domain.NotificationStatusPending, domain.NotificationStatusFailed).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// qualified prefixes every column in a comma separated list with alias.
func qualified(alias, columns string) string {
	fields := strings.Split(columns, ",")
	for i, f := range fields {
		fields[i] = alias + "." + strings.TrimSpace(f)
	}
	return strings.Join(fields, ", ")
}
