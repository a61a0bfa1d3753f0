package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"taskflow/shared/actorx"
	"taskflow/shared/httpx"
)

// HeaderUserID is set by the gateway after it authenticates the caller.
const HeaderUserID = "X-User-ID"

type ActorMiddleware struct {
	Skip func(*http.Request) bool
}

func (m ActorMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		raw := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if raw == "" {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing user header", nil)
			return
		}
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid user id", nil)
			return
		}

		ctx := actorx.WithActor(r.Context(), actorx.Actor{UserID: userID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
