package authz

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// identityCtxKey is an unexported type used as the context key for Identity.
type identityCtxKey struct{}

// AnonymousUser is the user of requests that carry no identity.
const AnonymousUser = "anonymous"

// Identity represents the authenticated user making a request.
type Identity struct {
	User   string
	Groups []string
}

// WithIdentity returns a new context with the given Identity attached.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the Identity from the context.
// Returns the zero value and false if no identity is set.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok
}

// ActorFromContext returns the user of the request identity, or
// AnonymousUser when none is set.
func ActorFromContext(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok && id.User != "" {
		return id.User
	}
	return AnonymousUser
}

// IdentityOption configures IdentityMiddleware.
type IdentityOption func(*identityOptions)

type identityOptions struct {
	verifier *TokenVerifier
}

// WithTokenVerifier accepts "Authorization: Bearer" tokens verified by v.
// A presented token that fails verification is rejected with 401.
func WithTokenVerifier(v *TokenVerifier) IdentityOption {
	return func(o *identityOptions) { o.verifier = v }
}

// IdentityMiddleware returns HTTP middleware that extracts identity and stores
// it in the request context. A verified bearer token takes precedence over the
// X-Remote-User and X-Remote-Group headers set by a trusted proxy.
// If X-Remote-User is missing, the user defaults to "anonymous".
// X-Remote-Group is comma-separated.
func IdentityMiddleware(opts ...IdentityOption) func(http.Handler) http.Handler {
	var o identityOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if o.verifier != nil {
				if token := bearerToken(r); token != "" {
					id, err := o.verifier.Verify(token)
					if err != nil {
						w.Header().Set("Content-Type", "application/json")
						w.WriteHeader(http.StatusUnauthorized)
						_ = json.NewEncoder(w).Encode(map[string]string{
							"error":   "unauthorized",
							"message": "invalid bearer token",
						})
						return
					}
					next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
					return
				}
			}

			user := strings.TrimSpace(r.Header.Get("X-Remote-User"))
			if user == "" {
				user = AnonymousUser
			}

			id := Identity{User: user, Groups: splitGroups(r.Header.Get("X-Remote-Group"))}
			ctx := WithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func splitGroups(header string) []string {
	var groups []string
	for _, g := range strings.Split(strings.TrimSpace(header), ",") {
		g = strings.TrimSpace(g)
		if g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
