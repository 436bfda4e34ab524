package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/policyadmin/internal/admin"
)

// RequestIDHeader carries the id that links a response to its audit entries.
const RequestIDHeader = "X-Request-ID"

// RequestID assigns every request a UUID, reusing a well-formed incoming
// X-Request-ID. The id is echoed back and recorded on audit entries.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get(RequestIDHeader))
		if err != nil || id == uuid.Nil {
			id = uuid.New()
		}
		ctx := admin.WithRequestID(setRequestID(r.Context(), id), id)
		w.Header().Set(RequestIDHeader, id.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
