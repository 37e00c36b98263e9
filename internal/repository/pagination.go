package repository

import "strings"

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type PageRequest struct {
	Page     int
	PageSize int
}

type PageResult[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func normalizePageRequest(req PageRequest) PageRequest {
	if req.Page < 1 {
		req.Page = DefaultPage
	}
	if req.PageSize < 1 {
		req.PageSize = DefaultPageSize
	}
	if req.PageSize > MaxPageSize {
		req.PageSize = MaxPageSize
	}
	return req
}

// NormalizePage applies the same bounds the repositories use, for callers that
// build cache keys before querying.
func NormalizePage(req PageRequest) PageRequest {
	return normalizePageRequest(req)
}

func calcTotalPages(total int64, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

func (r PageRequest) offset() int {
	return (r.Page - 1) * r.PageSize
}

const likeEscapeClause = "ESCAPE '!'"

var likeEscaper = strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)

// EscapeLike escapes LIKE wildcards with '!' so the term matches literally on every driver.
func EscapeLike(term string) string {
	return likeEscaper.Replace(term)
}

func containsPattern(term string) string {
	return "%" + EscapeLike(strings.TrimSpace(term)) + "%"
}
