package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gradebook_service/internal/domain"
	"gradebook_service/internal/safeop"
	"gradebook_service/pkg/ctxdata"
	"gradebook_service/pkg/logging"
	"gradebook_service/pkg/validate"
)

var (
	ErrBadRequest      = errors.New("bad request")
	ErrUnauthenticated = errors.New("unauthenticated")
)

func mapErr(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAssignmentLocked),
		errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	}

	switch safeop.KindOf(err) {
	case safeop.KindConnectionFault:
		return http.StatusServiceUnavailable
	case safeop.KindRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// writeErr logs err and writes it as a JSON error body. Client errors carry
// the error text, server errors only the status text.
func writeErr(ctx context.Context, w http.ResponseWriter, err error) {
	code := mapErr(err)
	if logger, ok := logging.GetFromContext(ctx); ok {
		if code >= http.StatusInternalServerError {
			logger.Error(ctx, "request failed", zap.Int("status", code), zap.Error(err))
		} else {
			logger.Info(ctx, "request rejected", zap.Int("status", code), zap.Error(err))
		}
	}

	msg := http.StatusText(code)
	if code < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeErrorJSON(w, code, msg)
}

func writeErrorJSON(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	resp, _ := json.Marshal(map[string]string{"error": message})
	w.Write(resp)
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		writeErrorJSON(w, http.StatusInternalServerError, "failed to serialize response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(data)
}

// decodeBody reads a JSON body into dst and runs its validate tags.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", ErrBadRequest, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	if val == "" {
		return uuid.Nil, fmt.Errorf("%w: missing path param: %s", ErrBadRequest, key)
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", ErrBadRequest, key)
	}
	return id, nil
}

// Identity is the acting user as established by the identity middleware.
type Identity struct {
	UserID uuid.UUID
	Role   domain.UserRole
}

func identityFrom(ctx context.Context) (Identity, error) {
	rawID, ok := ctxdata.GetUserID(ctx)
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return Identity{}, ErrUnauthenticated
	}
	role, _ := ctxdata.GetUserRole(ctx)
	if !domain.UserRole(role).IsValid() {
		return Identity{}, ErrUnauthenticated
	}
	return Identity{UserID: id, Role: domain.UserRole(role)}, nil
}
