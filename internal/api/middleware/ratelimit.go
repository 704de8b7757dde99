package middleware

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/ndewijer/Holdings-Import-Backend/internal/api/response"
	"github.com/ndewijer/Holdings-Import-Backend/internal/logging"
)

// RateLimit returns a middleware that admits at most perSecond requests per
// second with the given burst across all clients. Rejected requests get 429.
func RateLimit(perSecond float64, burst int, logger *logging.Logger) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				logger.Warn().Str("path", r.URL.Path).Msg("rate limit exceeded")
				response.RespondError(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
