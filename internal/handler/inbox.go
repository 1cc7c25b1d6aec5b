package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"gradebook_service/internal/domain"
)

type InboxService interface {
	List(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]domain.InboxItem, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) (*domain.InboxItem, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int, error)
}

// InboxHandler serves administrators their informational inbox.
type InboxHandler struct {
	svc   InboxService
	authz Authorizer
}

func NewInboxHandler(svc InboxService) *InboxHandler {
	return &InboxHandler{svc: svc}
}

func (h *InboxHandler) RegisterRoutes(r chi.Router, identity func(http.Handler) http.Handler) {
	r.With(identity).Group(func(r chi.Router) {
		r.Get("/inbox", h.List)
		r.Get("/inbox/count", h.Count)
		r.Post("/inbox/read-all", h.MarkAllRead)
		r.Post("/inbox/{id}/read", h.MarkRead)
	})
}

func (h *InboxHandler) owner(ctx context.Context) (uuid.UUID, error) {
	id, err := identityFrom(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if err := h.authz.Authorize(id, ActionInbox, nil); err != nil {
		return uuid.Nil, err
	}
	return id.UserID, nil
}

func (h *InboxHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := h.owner(ctx)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}

	unreadOnly := false
	if raw := r.URL.Query().Get("unread"); raw != "" {
		if unreadOnly, err = strconv.ParseBool(raw); err != nil {
			writeErrorJSON(w, http.StatusBadRequest, "invalid unread flag")
			return
		}
	}

	items, err := h.svc.List(ctx, userID, unreadOnly)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}
	if items == nil {
		items = []domain.InboxItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *InboxHandler) Count(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := h.owner(ctx)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}

	count, err := h.svc.UnreadCount(ctx, userID)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *InboxHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := h.owner(ctx)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}
	itemID, err := parseUUIDParam(r, "id")
	if err != nil {
		writeErr(ctx, w, err)
		return
	}

	item, err := h.svc.MarkRead(ctx, userID, itemID)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *InboxHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := h.owner(ctx)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}

	marked, err := h.svc.MarkAllRead(ctx, userID)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": marked})
}
