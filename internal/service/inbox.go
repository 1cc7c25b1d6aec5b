package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"gradebook_service/internal/domain"
	"gradebook_service/internal/safeop"
	"gradebook_service/pkg/logging"
)

// Inbox serves a user's informational inbox items. Items are written by
// the Dispatcher.
type Inbox struct {
	store  InboxStore
	exec   *safeop.Executor
	logger *logging.Logger
	now    func() time.Time
}

func NewInbox(store InboxStore, exec *safeop.Executor, logger *logging.Logger) *Inbox {
	return &Inbox{
		store:  store,
		exec:   exec,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (i *Inbox) List(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]domain.InboxItem, error) {
	res := safeop.Execute(ctx, i.exec, safeop.ReadPolicy("list_inbox"), func(ctx context.Context) ([]domain.InboxItem, error) {
		return i.store.ListInbox(ctx, userID, unreadOnly)
	}, []domain.InboxItem(nil))
	if !res.Succeeded() {
		return nil, res.Err
	}
	return res.Value, nil
}

func (i *Inbox) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	res := safeop.Execute(ctx, i.exec, safeop.ReadPolicy("count_unread"), func(ctx context.Context) (int, error) {
		return i.store.CountUnread(ctx, userID)
	}, 0)
	if !res.Succeeded() {
		return 0, res.Err
	}
	return res.Value, nil
}

// MarkRead is idempotent; marking an item twice keeps the first read time.
func (i *Inbox) MarkRead(ctx context.Context, userID, id uuid.UUID) (*domain.InboxItem, error) {
	res := safeop.Execute(ctx, i.exec, safeop.MutationPolicy("mark_inbox_read"), func(ctx context.Context) (*domain.InboxItem, error) {
		return i.store.MarkInboxRead(ctx, userID, id, i.now())
	}, (*domain.InboxItem)(nil))
	if !res.Succeeded() {
		return nil, res.Err
	}
	return res.Value, nil
}

func (i *Inbox) MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error) {
	res := safeop.Execute(ctx, i.exec, safeop.MutationPolicy("mark_inbox_read_all"), func(ctx context.Context) (int, error) {
		return i.store.MarkAllInboxRead(ctx, userID, i.now())
	}, 0)
	if !res.Succeeded() {
		return 0, res.Err
	}
	return res.Value, nil
}
