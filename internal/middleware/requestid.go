// Package middleware provides the HTTP middleware chain for the safety API:
// request id propagation, structured request logging, rate limiting, and
// prometheus instrumentation.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// RequestIDHeader carries the request id on both the inbound request and the
// response, so a device session's submissions can be correlated end to end.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns every request an id and stores it in the context. An id
// supplied by the caller on the header is kept, which lets the companion app
// tag an SOS trigger and find it again in the server logs; otherwise a fresh
// uuid is generated. The id is echoed on the response header either way.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request id stored in the context, or "".
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
