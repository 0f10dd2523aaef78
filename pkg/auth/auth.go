// Package auth carries the caller identity through a request.
//
// Tokens are verified by the gateway in front of the system server, which forwards the
// authenticated uid in a request header. This package only trusts and propagates it.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// DefaultUIDHeader is the header the gateway sets to the authenticated uid
const DefaultUIDHeader = "X-Laf-Uid"

type ctxKey struct{}

// WithUID returns a context carrying uid
func WithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, ctxKey{}, uid)
}

// UIDFrom returns the caller uid, or "" for anonymous requests
func UIDFrom(ctx context.Context) string {
	uid, _ := ctx.Value(ctxKey{}).(string)
	return uid
}

// Middleware copies the uid header into the request context
func Middleware(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultUIDHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid := strings.TrimSpace(r.Header.Get(header))
			if uid != "" {
				r = r.WithContext(WithUID(r.Context(), uid))
			}
			next.ServeHTTP(w, r)
		})
	}
}
