// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adiadia/approval-engine/internal/auth"
)

const headerRateLimitLimit = "X-RateLimit-Limit"
const headerRateLimitRemaining = "X-RateLimit-Remaining"
const headerRetryAfter = "Retry-After"

type SessionResolver interface {
	Resolve(token string) (auth.Principal, error)
}

// SessionAuth requires a valid bearer session on every route it wraps. The
// resolved principal is stored on the request context and each user is rate
// limited separately.
func SessionAuth(resolver SessionResolver, requestsPerMin int, logger *slog.Logger) func(http.Handler) http.Handler {
	return sessionAuthWithLimiter(resolver, newInMemoryRateLimiter(), requestsPerMin, logger)
}

func sessionAuthWithLimiter(
	resolver SessionResolver,
	limiter *inMemoryRateLimiter,
	requestsPerMin int,
	logger *slog.Logger,
) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("middleware.SessionAuth requires a resolver")
	}
	if limiter == nil {
		panic("middleware.SessionAuth requires a limiter")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				logger.Warn("request blocked by session middleware",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "missing or invalid session token", http.StatusUnauthorized)
				return
			}

			principal, err := resolver.Resolve(token)
			if err != nil {
				logger.Warn("session rejected",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", err,
				)
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "missing or invalid session token", http.StatusUnauthorized)
				return
			}

			decision := limiter.Allow(principal.UserID, requestsPerMin, time.Now())
			w.Header().Set(headerRateLimitLimit, strconv.Itoa(decision.LimitPerMinute))
			w.Header().Set(headerRateLimitRemaining, strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				w.Header().Set(headerRetryAfter, strconv.Itoa(decision.RetryAfterSeconds))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			// Outer request logging reads user_id from this request after next returns.
			*r = *r.WithContext(auth.WithPrincipal(r.Context(), principal))
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) (string, bool) {
	schemeToken := strings.SplitN(header, " ", 2)
	if len(schemeToken) != 2 {
		return "", false
	}
	if !strings.EqualFold(schemeToken[0], "Bearer") {
		return "", false
	}
	if schemeToken[1] == "" {
		return "", false
	}
	return schemeToken[1], true
}
