package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopfront/catalog-backend/internal/http/response"
	"github.com/shopfront/catalog-backend/internal/observability"
	"github.com/shopfront/catalog-backend/internal/security"
	"github.com/shopfront/catalog-backend/internal/service"
)

type contextKey string

const (
	ClaimsContextKey      contextKey = "claims"
	AccessTokenContextKey contextKey = "access_token"
)

const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeTokenExpired = "TOKEN_EXPIRED"

	msgLoginAgain   = "please log in again"
	msgTokenExpired = "token expired, please log in again"
)

// AuthMiddleware admits a request only when it carries a valid access token
// whose session is still live. The token is read from the access_token cookie
// first, then from an Authorization bearer header.
func AuthMiddleware(verifier service.AccessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, source := AccessTokenFromRequest(r)
			if raw == "" {
				observability.RecordAccessTokenValidation(r.Context(), "missing", "none")
				response.Error(w, r, http.StatusUnauthorized, CodeUnauthorized, msgLoginAgain, nil)
				return
			}
			claims, err := verifier.VerifyAccess(raw)
			if err != nil {
				if errors.Is(err, service.ErrTokenExpired) {
					observability.RecordAccessTokenValidation(r.Context(), "expired", source)
					response.Error(w, r, http.StatusUnauthorized, CodeTokenExpired, msgTokenExpired, nil)
					return
				}
				observability.RecordAccessTokenValidation(r.Context(), "invalid", source)
				response.Error(w, r, http.StatusUnauthorized, CodeUnauthorized, msgLoginAgain, nil)
				return
			}
			active, err := verifier.SessionIsActive(r.Context(), raw)
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "store_error", source)
				response.Unavailable(w, r, "SESSION_STORE_UNAVAILABLE", "session store unavailable", 5*time.Second)
				return
			}
			if !active {
				observability.RecordAccessTokenValidation(r.Context(), "revoked", source)
				response.Error(w, r, http.StatusUnauthorized, CodeUnauthorized, msgLoginAgain, nil)
				return
			}
			observability.RecordAccessTokenValidation(r.Context(), "valid", source)
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			ctx = context.WithValue(ctx, AccessTokenContextKey, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccessTokenFromRequest returns the raw access token and where it came from.
func AccessTokenFromRequest(r *http.Request) (string, string) {
	if raw := security.GetCookie(r, security.AccessTokenCookie); raw != "" {
		return raw, "cookie"
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:]), "bearer"
	}
	return "", "none"
}

// SubjectFromContext extracts the claims stored by AuthMiddleware.
func SubjectFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok && c != nil
}

// SubjectIDFromContext returns the acting principal or "" for anonymous requests.
func SubjectIDFromContext(ctx context.Context) string {
	if c, ok := SubjectFromContext(ctx); ok {
		return c.SubjectID
	}
	return ""
}

func AccessTokenFromContext(ctx context.Context) string {
	raw, _ := ctx.Value(AccessTokenContextKey).(string)
	return raw
}

// WithSubject returns ctx carrying claims, as AuthMiddleware would.
func WithSubject(ctx context.Context, claims *security.Claims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, claims)
}
