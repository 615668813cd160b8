// Package shield provides the HTTP middleware docsum puts in front of every
// route: security headers, body limits, request tracing with a per-request
// logger, and per-IP rate limiting backed by the rate_limits table.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.APIStack(1 << 20) {
//	    r.Use(mw)
//	}
//	r.With(limiter.Middleware).Post("/api/auth/login/", login)
package shield

import (
	"context"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// APIStack returns the standard middleware for a JSON API, outermost first:
// HeadToGet, SecurityHeaders, MaxBody, TraceID. Rate limiting is not part
// of the stack because it is applied per route group.
func APIStack(maxBody int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(APIHeaders()),
		MaxBody(maxBody),
		TraceID,
	}
}

// HeadToGet lets GET routes answer HEAD requests; net/http drops the body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

func withValue(r *http.Request, key, val any) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), key, val))
}
