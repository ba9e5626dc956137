package middleware

import (
	"context"
	"net/http"
)

// UnmatchedRoute labels requests that no registered pattern served.
const UnmatchedRoute = "unmatched"

type routeKey struct{}

type routeHolder struct {
	pattern string
}

// Routes wraps mux so LoggerMiddleware can label the request with the
// pattern mux matched rather than the raw path. Nested muxes overwrite the
// outer pattern, and an empty match resets it.
func Routes(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := r.Context().Value(routeKey{}).(*routeHolder); ok {
			_, h.pattern = mux.Handler(r)
		}
		mux.ServeHTTP(w, r)
	})
}

func withRouteHolder(ctx context.Context) (context.Context, *routeHolder) {
	h := &routeHolder{}
	return context.WithValue(ctx, routeKey{}, h), h
}

func (h *routeHolder) route() string {
	if h.pattern == "" {
		return UnmatchedRoute
	}
	return h.pattern
}
