package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/shopfront/catalog-backend/internal/http/response"
	"github.com/shopfront/catalog-backend/internal/service"
)

type AdminChecker interface {
	IsAdmin(ctx context.Context, id string) (bool, error)
}

// RequireAdmin must run after AuthMiddleware.
func RequireAdmin(users AdminChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := SubjectFromContext(r.Context())
			if !ok {
				response.Error(w, r, http.StatusUnauthorized, CodeUnauthorized, msgLoginAgain, nil)
				return
			}
			admin, err := users.IsAdmin(r.Context(), claims.SubjectID)
			if err != nil {
				if errors.Is(err, service.ErrUnauthenticated) {
					response.Error(w, r, http.StatusUnauthorized, CodeUnauthorized, msgLoginAgain, nil)
					return
				}
				response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not resolve account", nil)
				return
			}
			if !admin {
				response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "admin access required", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
