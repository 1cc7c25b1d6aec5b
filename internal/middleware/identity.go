package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gradebook_service/internal/domain"
	"gradebook_service/pkg/ctxdata"
	"gradebook_service/pkg/logging"
)

// NewIdentityMiddleware trusts the X-User-Id and X-User-Role headers set by
// the gateway in front of the service and moves them onto the context.
// Requests without a usable identity are rejected with 401.
func NewIdentityMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := r.Header.Get("X-User-Id")
			role := domain.UserRole(r.Header.Get("X-User-Role"))

			if _, err := uuid.Parse(userID); err != nil || !role.IsValid() {
				if logger, ok := logging.GetFromContext(ctx); ok {
					logger.Info(ctx, "request without identity",
						zap.String("path", r.URL.Path),
						zap.String("role", string(role)))
				}
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctxdata.WithIdentity(ctx, userID, string(role))))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	resp, _ := json.Marshal(map[string]string{"error": http.StatusText(http.StatusUnauthorized)})
	w.Write(resp)
}
