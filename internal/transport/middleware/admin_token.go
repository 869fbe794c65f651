// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/adiadia/approval-engine/internal/auth"
)

const headerAdminUser = "X-Admin-User"

// AdminPrincipal is the identity recorded for line changes when the caller
// does not name itself.
const AdminPrincipal = "admin"

// AdminTokenAuth guards the approval line administration routes with a
// shared bearer token. The optional X-Admin-User header names the operator.
func AdminTokenAuth(adminToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSpace(adminToken) == "" {
				logger.Error("admin token not configured")
				http.Error(w, "admin auth not configured", http.StatusInternalServerError)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
				logger.Warn("request blocked by admin token middleware",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "missing or invalid admin token", http.StatusUnauthorized)
				return
			}

			operator := strings.TrimSpace(r.Header.Get(headerAdminUser))
			if operator == "" {
				operator = AdminPrincipal
			}

			*r = *r.WithContext(auth.WithPrincipal(r.Context(), auth.Principal{UserID: operator}))
			next.ServeHTTP(w, r)
		})
	}
}
