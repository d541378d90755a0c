package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the correlation ID between the client, the API,
// and the logs it emits.
const RequestIDHeader = "X-Request-ID"

const requestIDKey contextKey = "request_id"

// Inbound IDs are caller-controlled; anything oversized is replaced rather
// than echoed into response headers and log lines.
const maxRequestIDLen = 64

// RequestID tags every request with a correlation ID. A reasonable inbound
// X-Request-ID is propagated as-is so callers can trace their own requests;
// otherwise a fresh UUID is issued. The ID lands on the response header and
// in the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request's correlation ID, or "" outside a request.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
