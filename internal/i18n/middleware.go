package i18n

import (
	"net/http"

	"golang.org/x/text/language"
)

var supported = []language.Tag{language.English, language.Russian}

var matcher = language.NewMatcher(supported)

// Middleware injects a locale into every request context. A supported
// Accept-Language wins over the configured default.
func Middleware(lang string) func(http.Handler) http.Handler {
	def := NewLocale(lang)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := def
			if tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language")); err == nil && len(tags) > 0 {
				if _, idx, conf := matcher.Match(tags...); conf != language.No {
					loc = NewLocale(supported[idx].String())
				}
			}
			next.ServeHTTP(w, r.WithContext(WithLocale(r.Context(), loc)))
		})
	}
}
