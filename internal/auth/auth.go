// Package auth carries the already-authenticated user id through request
// contexts and resolves bearer tokens to user ids.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// DefaultUser is the identity used when authentication is disabled.
const DefaultUser = "local"

type ctxKey struct{}

// WithUser returns a copy of ctx carrying userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserFrom returns the user id stored in ctx, if any.
func UserFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// UserOr returns the user id stored in ctx or def.
func UserOr(ctx context.Context, def string) string {
	if id, ok := UserFrom(ctx); ok {
		return id
	}
	return def
}

// Token binds a bearer token to a user id.
type Token struct {
	Token  string `yaml:"token"`
	UserID string `yaml:"user_id"`
}

// Resolver maps requests to user ids.
type Resolver struct {
	enabled     bool
	tokens      []Token
	defaultUser string
}

// NewResolver creates a Resolver. When enabled is false every request
// resolves to defaultUser.
func NewResolver(enabled bool, tokens []Token, defaultUser string) *Resolver {
	if defaultUser == "" {
		defaultUser = DefaultUser
	}
	return &Resolver{enabled: enabled, tokens: tokens, defaultUser: defaultUser}
}

// Enabled reports whether tokens are checked.
func (r *Resolver) Enabled() bool { return r.enabled }

// DefaultUser returns the identity used in disabled mode.
func (r *Resolver) DefaultUser() string { return r.defaultUser }

// Lookup returns the user bound to token.
func (r *Resolver) Lookup(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	for _, t := range r.tokens {
		if subtle.ConstantTimeCompare([]byte(t.Token), []byte(token)) == 1 {
			return t.UserID, true
		}
	}
	return "", false
}

// Resolve returns the user for an HTTP request carrying
// "Authorization: Bearer <token>".
func (r *Resolver) Resolve(req *http.Request) (string, bool) {
	if !r.enabled {
		return r.defaultUser, true
	}
	h := req.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return "", false
	}
	return r.Lookup(strings.TrimSpace(token))
}
