// Package middleware provides HTTP middleware for the decision API:
// request-ID propagation and per-client rate limiting.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/eleanor-project/eleanor/internal/logger"
)

const headerRequestID = "X-Request-ID"

// RequestID propagates the caller's X-Request-ID or mints a UUID, the
// same ID scheme decisions use, so one identifier ties a request's log
// lines to the decision it produced. The ID lands in the context and on
// the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
