// Package api implements the Noosphere REST API using chi.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/starford/noosphere/internal/auth"
)

// UserHook is called with every authenticated user id.
type UserHook func(ctx context.Context, userID string) error

// AuthMiddleware returns middleware that resolves the caller's user id and
// stores it in the request context. In disabled mode every request acts as
// the resolver's default user; in token mode requests must carry a known
// "Authorization: Bearer <token>" header. hook may be nil.
func AuthMiddleware(res *auth.Resolver, hook UserHook) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := res.Resolve(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			if hook != nil {
				if err := hook(r.Context(), userID); err != nil {
					slog.Warn("user hook failed", slog.String("user_id", userID), slog.String("error", err.Error()))
				}
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), userID)))
		})
	}
}
