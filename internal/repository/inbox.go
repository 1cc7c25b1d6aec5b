package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gradebook_service/internal/domain"
)

const inboxColumns = `id, user_id, type, assignment_id, title, content, read_at, created_at`

type InboxRepository struct {
	db *sql.DB
}

func NewInboxRepository(db *sql.DB) *InboxRepository {
	return &InboxRepository{db: db}
}

func scanInboxItem(s scanner) (*domain.InboxItem, error) {
	var item domain.InboxItem
	err := s.Scan(
		&item.ID,
		&item.UserID,
		&item.Type,
		&item.AssignmentID,
		&item.Title,
		&item.Content,
		&item.ReadAt,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Read = item.ReadAt != nil
	return &item, nil
}

func (r *InboxRepository) CreateInboxItem(ctx context.Context, item *domain.InboxItem) error {
	if item.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		item.ID = id
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inbox_items (`+inboxColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, item.UserID, item.Type, item.AssignmentID, item.Title, item.Content, item.ReadAt, item.CreatedAt)
	return mapError(err, "insert inbox item")
}

func (r *InboxRepository) ListInbox(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]domain.InboxItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+inboxColumns+`
		FROM inbox_items
		WHERE user_id = $1 AND (NOT $2 OR read_at IS NULL)
		ORDER BY created_at DESC, id DESC
	`, userID, unreadOnly)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []domain.InboxItem
	for rows.Next() {
		item, err := scanInboxItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (r *InboxRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM inbox_items
		WHERE user_id = $1 AND read_at IS NULL
	`, userID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// MarkInboxRead keeps the first read time when the item was already read.
func (r *InboxRepository) MarkInboxRead(ctx context.Context, userID, id uuid.UUID, at time.Time) (*domain.InboxItem, error) {
	item, err := scanInboxItem(r.db.QueryRowContext(ctx, `
		UPDATE inbox_items
		SET read_at = COALESCE(read_at, $1)
		WHERE id = $2 AND user_id = $3
		RETURNING `+inboxColumns, at, id, userID))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("inbox item %s", id))
	}
	return item, nil
}

func (r *InboxRepository) MarkAllInboxRead(ctx context.Context, userID uuid.UUID, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE inbox_items
		SET read_at = $1
		WHERE user_id = $2 AND read_at IS NULL
	`, at, userID)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}
