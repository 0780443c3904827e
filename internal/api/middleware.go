// Package api implements the sitefeed REST API using chi.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/starford/sitefeed/internal/access"
)

// Tokens maps bearer tokens to the viewer they authenticate.
type Tokens map[string]access.Viewer

type viewerKey struct{}

// WithViewer returns a copy of ctx carrying v.
func WithViewer(ctx context.Context, v access.Viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

// ViewerFrom returns the viewer stored in ctx, or the anonymous viewer.
func ViewerFrom(ctx context.Context) access.Viewer {
	if v, ok := ctx.Value(viewerKey{}).(access.Viewer); ok {
		return v
	}
	return access.Anonymous()
}

// AuthMiddleware returns middleware that resolves the request's viewer from
// an "Authorization: Bearer <token>" header.
// Requests without a header act as the anonymous viewer unless required is
// true, in which case they are rejected. An unknown token is always rejected.
func AuthMiddleware(required bool, tokens Tokens) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				if required {
					writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
					return
				}
				next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), access.Anonymous())))
				return
			}
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			v, ok := tokens[token]
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), v)))
		})
	}
}
