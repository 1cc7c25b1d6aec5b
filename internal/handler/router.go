package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"gradebook_service/internal/middleware"
	"gradebook_service/pkg/logging"
)

// Services are the dependencies behind the HTTP routes.
type Services struct {
	Assignments   AssignmentService
	Notifications NotificationLister
	Inbox         InboxService
	Status        StatusReporter
}

// NewRouter mounts every HTTP route of the service.
func NewRouter(logger *logging.Logger, svc Services) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, 1<<20)
	})

	identity := middleware.NewIdentityMiddleware()
	NewStatusHandler(svc.Status).RegisterRoutes(r)
	NewAssignmentHandler(svc.Assignments, svc.Notifications).RegisterRoutes(r, identity)
	NewInboxHandler(svc.Inbox).RegisterRoutes(r, identity)
	return r
}
