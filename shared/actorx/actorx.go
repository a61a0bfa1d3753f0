// Package actorx carries the acting user resolved by the upstream gateway.
package actorx

import (
	"context"
	"strconv"
)

type contextKey struct{}

type Actor struct {
	UserID int64
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

func FromContext(ctx context.Context) (Actor, bool) {
	if v := ctx.Value(contextKey{}); v != nil {
		if a, ok := v.(Actor); ok && a.UserID > 0 {
			return a, true
		}
	}
	return Actor{}, false
}

// UserIDFromContext returns "" when no actor is set, for log attributes.
func UserIDFromContext(ctx context.Context) string {
	if a, ok := FromContext(ctx); ok {
		return strconv.FormatInt(a.UserID, 10)
	}
	return ""
}
