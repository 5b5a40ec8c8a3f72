package middleware

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/wolfman30/agency-leads/internal/ratelimit"
)

// APIBucket is the limiter bucket for coarse per-IP API throttling.
const APIBucket = "api"

// APIPolicy converts a requests-per-second rate with burst into a limiter
// policy: burst tokens refilled over burst/rate seconds.
func APIPolicy(perSecond float64, burst int) ratelimit.Policy {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	window := time.Duration(float64(burst) / perSecond * float64(time.Second))
	return ratelimit.Policy{Limit: burst, Window: window}
}

// limitedBody matches the public API response shape.
type limitedBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// RateLimit rejects requests from an IP once the limiter says so. It must run
// after TrustedRealIP so RemoteAddr is the client address. Limiter errors let
// the request through.
func RateLimit(limiter ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := limiter.CheckLimit(r.Context(), clientIP(r), APIBucket)
			if err == nil && decision.Limited {
				secs := int(math.Ceil(decision.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(limitedBody{
					Success: false,
					Message: fmt.Sprintf("Too many requests. Please try again in %s.", secondsPhrase(secs)),
					Error:   "rate_limited",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func secondsPhrase(secs int) string {
	if secs == 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", secs)
}

func clientIP(r *http.Request) string {
	return peerHost(r.RemoteAddr)
}
