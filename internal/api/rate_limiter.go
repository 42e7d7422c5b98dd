package api

import (
	"math"
	"net/http"
	"strconv"

	apperrors "github.com/vestival/algorand-tracker/internal/errors"
	"github.com/vestival/algorand-tracker/internal/ratelimit"
)

// RateLimitMiddleware limits requests per route, user and client IP. It must run
// after AuthMiddleware.
func RateLimitMiddleware(limiter *ratelimit.Limiter, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ratelimit.Key(route, userIDFromContext(r.Context()), ratelimit.ClientIP(r))

			decision := limiter.Allow(r.Context(), key)
			if !decision.Allowed {
				retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				catErr := apperrors.NewRateLimitError(retryAfter)
				catErr.Details["limit"] = limiter.Max()
				respondError(w, catErr.StatusCode, catErr.Code, catErr.Message, catErr.Details)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
