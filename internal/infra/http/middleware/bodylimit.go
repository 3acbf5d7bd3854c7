package middleware

import "net/http"

// BodyLimit caps the request body size. Requests exceeding the limit
// fail inside the handler's body read with http.MaxBytesError, which
// the handlers translate to a 413.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
