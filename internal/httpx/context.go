package httpx

import (
	"context"
	"net/http"
)

type retriedKey struct{}

type returnPathKey struct{}

// markRetried tags a request that was already resent after a refresh.
func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

func IsRetried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey{}).(bool)
	return v
}

// WithReturnPath sets the page the user was on, used as returnUrl when a
// request ends in a redirect to login.
func WithReturnPath(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, returnPathKey{}, path)
}

func returnPath(req *http.Request) string {
	if p, ok := req.Context().Value(returnPathKey{}).(string); ok && p != "" {
		return p
	}
	return req.URL.RequestURI()
}
