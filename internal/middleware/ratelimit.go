package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"
)

// RateLimit admits at most perSecond requests per second on average, with
// bursts of up to burst, across all clients. Excess requests get 429.
//
// The limit is process-wide: this server has one Python session and one set
// of interpreters, so the budget is shared no matter who is calling.
func RateLimit(perSecond float64, burst int, logger *slog.Logger) func(http.Handler) http.Handler {
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				retry := retryAfter(perSecond)
				logger.Warn("rate limit exceeded",
					slog.String("path", r.URL.Path),
					slog.Float64("limit", perSecond),
				)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "rate_limited",
					"message": "too many requests, slow down",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfter is the number of whole seconds until one token is available.
func retryAfter(perSecond float64) int {
	if perSecond <= 0 {
		return 1
	}
	return max(int(math.Ceil(1/perSecond)), 1)
}
