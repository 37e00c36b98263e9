package domain

import "strings"

type Locale string

const (
	LocaleVI Locale = "vi"
	LocaleEN Locale = "en"

	DefaultLocale = LocaleVI
)

// ParseLocale reads the primary tag of an Accept-Language value. Unknown or
// empty values fall back to DefaultLocale.
func ParseLocale(raw string) Locale {
	tag := strings.TrimSpace(raw)
	if i := strings.IndexAny(tag, ",;"); i >= 0 {
		tag = tag[:i]
	}
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	switch Locale(strings.ToLower(strings.TrimSpace(tag))) {
	case LocaleEN:
		return LocaleEN
	case LocaleVI:
		return LocaleVI
	default:
		return DefaultLocale
	}
}

// LocalizedText holds one column per supported locale.
type LocalizedText struct {
	VI string
	EN string
}

func (t LocalizedText) In(locale Locale) string {
	if locale == LocaleEN {
		return t.EN
	}
	return t.VI
}
