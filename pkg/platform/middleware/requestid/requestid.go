// Package requestid assigns each request an identifier for log and audit
// correlation.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"veristat/pkg/requestcontext"
)

// Header carries the request id on both request and response.
const Header = "X-Request-ID"

// Middleware reuses the caller-supplied request id or generates one, stamps
// it on the context, and echoes it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		ctx := requestcontext.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
