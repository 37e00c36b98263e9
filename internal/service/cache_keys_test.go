package service

import (
	"strings"
	"testing"
)

func TestListCacheKeyFormat(t *testing.T) {
	k := ListCacheKey{Resource: "products", Principal: "u1", Page: 2, Limit: 20, Query: "red shirt"}
	if got, want := k.String(), "products:all:user-u1:page-2:limit-20:q-red%20shirt"; got != want {
		t.Fatalf("key = %q, want %q", got, want)
	}
	k.Locale = "en"
	if got, want := k.String(), "products:all:user-u1:page-2:limit-20:q-red%20shirt:lang-en"; got != want {
		t.Fatalf("key = %q, want %q", got, want)
	}
}

func TestListCacheKeyEscapesSeparators(t *testing.T) {
	a := ListCacheKey{Resource: "users", Principal: "u1", Page: 1, Limit: 10, Query: "a:page-9"}.String()
	b := ListCacheKey{Resource: "users", Principal: "u1", Page: 1, Limit: 10, Query: "a"}.String()
	if a == b {
		t.Fatal("distinct queries must produce distinct keys")
	}
	if strings.Count(a, ":") != strings.Count(b, ":") {
		t.Fatalf("query must not add separators: %q", a)
	}
	if got := escapeKeySegment("x_y%"); got != "x%5Fy%25" {
		t.Fatalf("escapeKeySegment = %q", got)
	}
}

func TestDetailKeyAndPattern(t *testing.T) {
	if got := DetailCacheKey("categories", "c1", ""); got != "categories:one:c1" {
		t.Fatalf("detail = %q", got)
	}
	if got := DetailCacheKey("categories", "c1", "vi"); got != "categories:one:c1:lang-vi" {
		t.Fatalf("detail = %q", got)
	}
	if got := PrincipalPattern("products", "u1"); got != "products:u1" {
		t.Fatalf("pattern = %q", got)
	}
}

func FuzzListCacheKeyDeterministic(f *testing.F) {
	f.Add("products", "u1", 1, 20, "", "")
	f.Add("users", "admin", 3, 100, "a b:c_d%", "en")
	f.Add("categories", "x", -1, 0, strings.Repeat("é", 64), "vi")

	f.Fuzz(func(t *testing.T, resource, principal string, page, limit int, query, locale string) {
		k := ListCacheKey{Resource: resource, Principal: principal, Page: page, Limit: limit, Query: query, Locale: locale}
		first := k.String()
		if first != k.String() {
			t.Fatal("key must be deterministic")
		}
		escaped := escapeKeySegment(query)
		if strings.ContainsAny(escaped, ": _+") {
			t.Fatalf("escaped query leaks separators: %q", escaped)
		}
		if !strings.HasPrefix(first, resource+":all:user-") {
			t.Fatalf("unexpected prefix: %q", first)
		}
	})
}
