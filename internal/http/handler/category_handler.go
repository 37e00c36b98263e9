package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shopfront/catalog-backend/internal/http/middleware"
	"github.com/shopfront/catalog-backend/internal/http/response"
	"github.com/shopfront/catalog-backend/internal/repository"
	"github.com/shopfront/catalog-backend/internal/service"
)

type CategoryHandler struct {
	categories service.CategoryServiceInterface
}

func NewCategoryHandler(categories service.CategoryServiceInterface) *CategoryHandler {
	return &CategoryHandler{categories: categories}
}

func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	page, search := pageFromQuery(r)
	rootOnly, _ := strconv.ParseBool(r.URL.Query().Get("root"))
	query := repository.CategoryListQuery{PageRequest: page, Search: search, RootOnly: rootOnly}
	res, err := h.categories.List(r.Context(), middleware.SubjectIDFromContext(r.Context()), query, localeFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

func (h *CategoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.categories.Get(r.Context(), middleware.SubjectIDFromContext(r.Context()), chi.URLParam(r, "id"), localeFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, view)
}

func (h *CategoryHandler) Children(w http.ResponseWriter, r *http.Request) {
	views, err := h.categories.Children(r.Context(), middleware.SubjectIDFromContext(r.Context()), chi.URLParam(r, "id"), localeFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, views)
}

func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CategoryInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	c, err := h.categories.Create(r.Context(), middleware.SubjectIDFromContext(r.Context()), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, c)
}

func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch service.CategoryPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeServiceError(w, r, err)
		return
	}
	c, err := h.categories.Update(r.Context(), middleware.SubjectIDFromContext(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, c)
}

func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.categories.Delete(r.Context(), middleware.SubjectIDFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
