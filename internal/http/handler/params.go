package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/shopfront/catalog-backend/internal/domain"
	"github.com/shopfront/catalog-backend/internal/repository"
)

// pageFromQuery reads page, limit and q. Out-of-range values are clamped by the repository.
func pageFromQuery(r *http.Request) (repository.PageRequest, string) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return repository.NormalizePage(repository.PageRequest{Page: page, PageSize: limit}), strings.TrimSpace(q.Get("q"))
}

func localeFrom(r *http.Request) domain.Locale {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return domain.ParseLocale(lang)
	}
	return domain.ParseLocale(r.Header.Get("Accept-Language"))
}
