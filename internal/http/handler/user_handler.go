package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shopfront/catalog-backend/internal/http/middleware"
	"github.com/shopfront/catalog-backend/internal/http/response"
	"github.com/shopfront/catalog-backend/internal/observability"
	"github.com/shopfront/catalog-backend/internal/repository"
	"github.com/shopfront/catalog-backend/internal/service"
)

type UserHandler struct {
	users service.UserServiceInterface
}

func NewUserHandler(users service.UserServiceInterface) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	page, search := pageFromQuery(r)
	res, err := h.users.List(r.Context(), middleware.SubjectIDFromContext(r.Context()), repository.UserListQuery{PageRequest: page, Search: search})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), middleware.SubjectIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateUserInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	actor := middleware.SubjectIDFromContext(r.Context())
	user, err := h.users.Create(r.Context(), actor, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "user.create", "actor_id", actor, "user_id", user.ID, "is_admin", user.IsAdmin)
	response.JSON(w, r, http.StatusCreated, user)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateUserInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	user, err := h.users.Update(r.Context(), middleware.SubjectIDFromContext(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, id := middleware.SubjectIDFromContext(r.Context()), chi.URLParam(r, "id")
	if err := h.users.Delete(r.Context(), actor, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "user.delete", "actor_id", actor, "user_id", id)
	w.WriteHeader(http.StatusNoContent)
}
