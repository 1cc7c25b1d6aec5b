package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"gradebook_service/internal/domain"
)

type AssignmentService interface {
	CreateAssignment(ctx context.Context, req domain.NewAssignment) (*domain.Assignment, error)
	GetAssignment(ctx context.Context, id uuid.UUID) (*domain.Assignment, error)
	ListRecords(ctx context.Context, assignmentID uuid.UUID) ([]domain.CompletionRecord, error)
	UpdateAssignmentDetails(ctx context.Context, id uuid.UUID, title string, description *string) (*domain.Assignment, error)
	ExtendDueDate(ctx context.Context, id uuid.UUID, newDue time.Time) (*domain.Assignment, error)
	Submit(ctx context.Context, assignmentID, studentID uuid.UUID) (*domain.CompletionRecord, error)
	Grade(ctx context.Context, assignmentID, studentID uuid.UUID, value string, comment *string) (*domain.CompletionRecord, error)
}

type NotificationLister interface {
	ListNotifications(ctx context.Context, assignmentID uuid.UUID) ([]domain.NotificationEvent, error)
}

type AssignmentHandler struct {
	svc           AssignmentService
	notifications NotificationLister
	authz         Authorizer
}

func NewAssignmentHandler(svc AssignmentService, notifications NotificationLister) *AssignmentHandler {
	return &AssignmentHandler{svc: svc, notifications: notifications}
}

func (h *AssignmentHandler) RegisterRoutes(r chi.Router, identity func(http.Handler) http.Handler) {
	r.With(identity).Group(func(r chi.Router) {
		r.Post("/assignments", h.CreateAssignment)
		r.Get("/assignments/{id}", h.GetAssignment)
		r.Patch("/assignments/{id}", h.UpdateAssignment)
		r.Post("/assignments/{id}/due-date", h.ExtendDueDate)
		r.Get("/assignments/{id}/records", h.ListRecords)
		r.Get("/assignments/{id}/notifications", h.ListNotifications)
		r.Post("/assignments/{id}/records/{student_id}/submit", h.Submit)
		r.Post("/assignments/{id}/records/{student_id}/grade", h.Grade)
	})
}

type createAssignmentRequest struct {
	SchoolID    uuid.UUID `json:"school_id"`
	ClassID     uuid.UUID `json:"class_id" validate:"required"`
	SubjectID   uuid.UUID `json:"subject_id" validate:"required"`
	Title       string    `json:"title" validate:"required,max=255"`
	Description *string   `json:"description" validate:"omitempty,max=4000"`
	DueDate     time.Time `json:"due_date"`
}

type updateAssignmentRequest struct {
	Title       string  `json:"title" validate:"required,max=255"`
	Description *string `json:"description" validate:"omitempty,max=4000"`
}

type extendDueDateRequest struct {
	DueDate time.Time `json:"due_date"`
}

type gradeRequest struct {
	Grade   string  `json:"grade" validate:"required,max=16"`
	Comment *string `json:"comment" validate:"omitempty,max=2000"`
}

// authorized loads the assignment named in the path and checks the caller
// may perform action on it.
func (h *AssignmentHandler) authorized(r *http.Request, action Action) (*domain.Assignment, error) {
	ctx := r.Context()
	id, err := identityFrom(ctx)
	if err != nil {
		return nil, err
	}
	assignmentID, err := parseUUIDParam(r, "id")
	if err != nil {
		return nil, err
	}
	a, err := h.svc.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := h.authz.Authorize(id, action, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (h *AssignmentHandler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := identityFrom(ctx)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}
	if err := h.authz.Authorize(id, ActionCreate, nil); err != nil {
		writeErr(ctx, w, err)
		return
	}

	var req createAssignmentRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(ctx, w, err)
		return
	}

	a, err := h.svc.CreateAssignment(ctx, domain.NewAssignment{
		SchoolID:    req.SchoolID,
		ClassID:     req.ClassID,
		SubjectID:   req.SubjectID,
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		CreatedBy:   id.UserID,
	})
	if err != nil {
		writeErr(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (h *AssignmentHandler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := h.authorized(r, ActionRead)
	if err != nil {
		writeErr(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *AssignmentHandler) UpdateAssignment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := h.authorized(r, ActionUpdate)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}

	var req updateAssignmentRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(ctx, w, err)
		return
	}

	updated, err := h.svc.UpdateAssignmentDetails(ctx, a.ID, req.Title, req.Description)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *AssignmentHandler) ExtendDueDate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := h.authorized(r, ActionExtend)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}

	var req extendDueDateRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(ctx, w, err)
		return
	}

	updated, err := h.svc.ExtendDueDate(ctx, a.ID, req.DueDate)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *AssignmentHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := h.authorized(r, ActionRead)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}

	records, err := h.svc.ListRecords(ctx, a.ID)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}
	if records == nil {
		records = []domain.CompletionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *AssignmentHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := h.authorized(r, ActionAudit)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}

	events, err := h.notifications.ListNotifications(ctx, a.ID)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}
	if events == nil {
		events = []domain.NotificationEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *AssignmentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := h.authorized(r, ActionSubmit)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}
	studentID, err := parseUUIDParam(r, "student_id")
	if err != nil {
		writeErr(ctx, w, err)
		return
	}

	rec, err := h.svc.Submit(ctx, a.ID, studentID)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *AssignmentHandler) Grade(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := h.authorized(r, ActionGrade)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}
	studentID, err := parseUUIDParam(r, "student_id")
	if err != nil {
		writeErr(ctx, w, err)
		return
	}

	var req gradeRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(ctx, w, err)
		return
	}

	rec, err := h.svc.Grade(ctx, a.ID, studentID, req.Grade, req.Comment)
	if err != nil {
		writeErr(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
