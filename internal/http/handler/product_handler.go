package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shopfront/catalog-backend/internal/http/middleware"
	"github.com/shopfront/catalog-backend/internal/http/response"
	"github.com/shopfront/catalog-backend/internal/repository"
	"github.com/shopfront/catalog-backend/internal/service"
)

type ProductHandler struct {
	products service.ProductServiceInterface
}

func NewProductHandler(products service.ProductServiceInterface) *ProductHandler {
	return &ProductHandler{products: products}
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	page, search := pageFromQuery(r)
	query := repository.ProductListQuery{
		PageRequest: page,
		Search:      search,
		CategoryID:  r.URL.Query().Get("category_id"),
	}
	res, err := h.products.List(r.Context(), middleware.SubjectIDFromContext(r.Context()), query, localeFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.products.Get(r.Context(), middleware.SubjectIDFromContext(r.Context()), chi.URLParam(r, "id"), localeFrom(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, view)
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.ProductInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := h.products.Create(r.Context(), middleware.SubjectIDFromContext(r.Context()), in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusCreated, p)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch service.ProductPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := h.products.Update(r.Context(), middleware.SubjectIDFromContext(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, p)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.products.Delete(r.Context(), middleware.SubjectIDFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProductHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	res, err := h.products.ToggleLike(r.Context(), middleware.SubjectIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}
