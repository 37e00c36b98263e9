package service

import (
	"net/url"
	"strconv"
	"strings"
)

// ListCacheKey identifies one page of a listing as seen by one principal.
type ListCacheKey struct {
	Resource  string
	Principal string
	Page      int
	Limit     int
	Query     string
	Locale    string
}

// String renders <resource>:all:user-<principal>:page-<n>:limit-<n>:q-<query>[:lang-<locale>].
func (k ListCacheKey) String() string {
	var b strings.Builder
	b.WriteString(k.Resource)
	b.WriteString(":all:user-")
	b.WriteString(k.Principal)
	b.WriteString(":page-")
	b.WriteString(strconv.Itoa(k.Page))
	b.WriteString(":limit-")
	b.WriteString(strconv.Itoa(k.Limit))
	b.WriteString(":q-")
	b.WriteString(escapeKeySegment(k.Query))
	if k.Locale != "" {
		b.WriteString(":lang-")
		b.WriteString(k.Locale)
	}
	return b.String()
}

func DetailCacheKey(resource, id, locale string) string {
	key := resource + ":one:" + escapeKeySegment(id)
	if locale != "" {
		key += ":lang-" + locale
	}
	return key
}

// ChildrenCacheKey names the cached child listing of a tree node.
func ChildrenCacheKey(resource, id, locale string) string {
	key := resource + ":children:" + escapeKeySegment(id)
	if locale != "" {
		key += ":lang-" + locale
	}
	return key
}

func PrincipalPattern(resource, principal string) string {
	return resource + ":" + principal
}

var keySegmentReplacer = strings.NewReplacer("+", "%20", "_", "%5F")

// escapeKeySegment percent-encodes free text so it can never contain the ':'
// separator or collide with another segment.
func escapeKeySegment(s string) string {
	return keySegmentReplacer.Replace(url.QueryEscape(s))
}
