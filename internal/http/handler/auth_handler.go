package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/shopfront/catalog-backend/internal/domain"
	"github.com/shopfront/catalog-backend/internal/http/middleware"
	"github.com/shopfront/catalog-backend/internal/http/response"
	"github.com/shopfront/catalog-backend/internal/observability"
	"github.com/shopfront/catalog-backend/internal/security"
	"github.com/shopfront/catalog-backend/internal/service"
)

type AuthHandler struct {
	auth    service.AuthServiceInterface
	users   service.UserServiceInterface
	cookies security.CookieOptions
}

func NewAuthHandler(auth service.AuthServiceInterface, users service.UserServiceInterface, cookies security.CookieOptions) *AuthHandler {
	return &AuthHandler{auth: auth, users: users, cookies: cookies}
}

type authPayload struct {
	User         *domain.User `json:"user"`
	SessionID    string       `json:"session_id"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    time.Time    `json:"access_expires_at"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in service.CreateUserInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	user, err := h.auth.Register(r.Context(), in)
	if err != nil && user == nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.register", "subject_id", user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	res, err := h.auth.Login(r.Context(), in, r.UserAgent(), middleware.ClientIP(r))
	if err != nil {
		observability.Audit(r, "auth.login.failed")
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.login", "subject_id", res.User.ID, "session_id", res.Tokens.SessionID)
	h.setTokenCookies(w, res.Tokens)
	response.JSON(w, r, http.StatusOK, toAuthPayload(res))
}

// Refresh takes the refresh token from its cookie, or from the body for non-browser clients.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := security.GetCookie(r, security.RefreshTokenCookie)
	if raw == "" && r.ContentLength != 0 {
		var in refreshRequest
		if err := decodeJSON(r, &in); err != nil {
			writeServiceError(w, r, err)
			return
		}
		raw = in.RefreshToken
	}
	res, err := h.auth.Refresh(r.Context(), raw)
	if err != nil {
		if errors.Is(err, service.ErrUnauthenticated) {
			h.clearTokenCookies(w)
		}
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.refresh", "subject_id", res.User.ID, "session_id", res.Tokens.SessionID)
	h.setTokenCookies(w, res.Tokens)
	response.JSON(w, r, http.StatusOK, toAuthPayload(res))
}

// Logout revokes the session named by either presented token. Cookies are
// cleared even when no session matches.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	access, _ := middleware.AccessTokenFromRequest(r)
	refresh := security.GetCookie(r, security.RefreshTokenCookie)
	h.clearTokenCookies(w)
	revoked, err := h.auth.Logout(r.Context(), access, refresh)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.logout", "revoked", revoked)
	response.JSON(w, r, http.StatusOK, map[string]bool{"revoked": revoked})
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	subject := middleware.SubjectIDFromContext(r.Context())
	n, err := h.auth.LogoutAll(r.Context(), subject)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.clearTokenCookies(w)
	observability.Audit(r, "auth.logout_all", "subject_id", subject, "sessions", n)
	response.JSON(w, r, http.StatusOK, map[string]int64{"revoked": n})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.ValidateUser(r.Context(), middleware.SubjectIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessions, err := h.auth.Sessions(ctx, middleware.SubjectIDFromContext(ctx), middleware.AccessTokenFromContext(ctx))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, sessions)
}

func (h *AuthHandler) setTokenCookies(w http.ResponseWriter, pair *service.TokenPair) {
	security.SetTokenCookie(w, security.AccessTokenCookie, pair.AccessToken, time.Until(pair.AccessExpiresAt), h.cookies)
	security.SetTokenCookie(w, security.RefreshTokenCookie, pair.RefreshToken, time.Until(pair.RefreshExpiresAt), h.cookies)
}

func (h *AuthHandler) clearTokenCookies(w http.ResponseWriter) {
	security.ClearCookie(w, security.AccessTokenCookie, h.cookies)
	security.ClearCookie(w, security.RefreshTokenCookie, h.cookies)
}

func toAuthPayload(res *service.LoginResult) authPayload {
	return authPayload{
		User:         res.User,
		SessionID:    res.Tokens.SessionID,
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		ExpiresAt:    res.Tokens.AccessExpiresAt,
	}
}
