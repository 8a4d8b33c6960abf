package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}

// LocaleKey stores the caller's preferred caption locale on the request context.
var LocaleKey = localeContextKey{}

// Locale resolves the caller's preferred language from X-Locale, then
// Accept-Language, then fallback. Unparseable values are ignored. The stored
// value is a canonical BCP 47 tag, or empty when nothing was expressed.
func Locale(fallback string) func(http.Handler) http.Handler {
	fallback = canonicalLocale(fallback)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := detectLocale(r)
			if locale == "" {
				locale = fallback
			}
			if locale != "" {
				r = r.WithContext(context.WithValue(r.Context(), LocaleKey, locale))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func detectLocale(r *http.Request) string {
	if v := canonicalLocale(r.Header.Get("X-Locale")); v != "" {
		return v
	}
	return parseAcceptLanguage(r.Header.Get("Accept-Language"))
}

func parseAcceptLanguage(header string) string {
	if strings.TrimSpace(header) == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return ""
	}
	for _, tag := range tags {
		if tag != language.Und {
			return tag.String()
		}
	}
	return ""
}

func canonicalLocale(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	tag, err := language.Parse(raw)
	if err != nil || tag == language.Und {
		return ""
	}
	return tag.String()
}

// LocaleFromContext returns the locale stored by Locale, or empty.
func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok {
		return v
	}
	return ""
}
