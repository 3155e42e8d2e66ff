package middleware

import (
	"io"
	"net/http"
)

// DefaultMaxBodyBytes covers every request body of the API (toggle, move, start).
const DefaultMaxBodyBytes = 64 << 10

// LimitAndDrainRequest caps the request body at maxBodyBytes and drains and closes it once the
// handler is done, so the connection can be reused.
func LimitAndDrainRequest(maxBodyBytes int64) func(next http.Handler) http.Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			}
			next.ServeHTTP(w, r)
			if r.Body != nil {
				_, _ = io.Copy(io.Discard, r.Body)
				_ = r.Body.Close()
			}
		})
	}
}
