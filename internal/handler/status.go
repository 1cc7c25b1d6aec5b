package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gradebook_service/internal/domain"
)

type StatusReporter interface {
	Snapshot(ctx context.Context) domain.StatusSnapshot
}

type StatusHandler struct {
	reporter StatusReporter
}

func NewStatusHandler(reporter StatusReporter) *StatusHandler {
	return &StatusHandler{reporter: reporter}
}

func (h *StatusHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/status", h.Status)
}

func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Status rebuilds the snapshot on every call. The endpoint always answers
// 200; degradation is reported in the body.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reporter.Snapshot(r.Context()))
}
