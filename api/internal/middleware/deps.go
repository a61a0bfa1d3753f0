package middleware

import (
	"net/http"
	"sort"

	"taskflow/shared/httpx"
)

// DepsRequiredMiddleware answers 503 while any named dependency failed to
// initialise. Deps maps a dependency name to whether it is available.
type DepsRequiredMiddleware struct {
	Deps map[string]bool
	Skip func(*http.Request) bool
}

func (m DepsRequiredMiddleware) Wrap(next http.Handler) http.Handler {
	var missing []string
	for name, ok := range m.Deps {
		if !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(missing) == 0 || (m.Skip != nil && m.Skip(r)) {
			next.ServeHTTP(w, r)
			return
		}
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "dependency not configured",
			map[string]any{"missing": missing})
	})
}
