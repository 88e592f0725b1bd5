package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// IPGuard returns a per-IP flood guard allowing requestsPerMinute requests
// per client address. It runs before key resolution so unauthenticated
// floods never reach the store; it does not count against key quotas.
// A non-positive limit disables the guard.
func IPGuard(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			WriteError(w, http.StatusTooManyRequests, CodeTooManyRequests,
				"Too many requests from this address", nil)
		}),
	)
}
