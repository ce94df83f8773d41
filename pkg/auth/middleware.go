package auth

import (
	"net/http"
	"strings"
	apperrors "vaxslot/pkg/errors"
	httputil "vaxslot/pkg/http"
	"vaxslot/pkg/logger"
)

const bearerPrefix = "Bearer "

// Middleware attaches the caller's Principal to the request context. Requests
// without an Authorization header pass through anonymously; handlers decide
// whether anonymous access is allowed.
func Middleware(authn *Authenticator, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !strings.HasPrefix(header, bearerPrefix) {
				_ = httputil.WriteError(w, apperrors.Unauthenticated("Authorization header must use the Bearer scheme"))
				return
			}

			p, err := authn.Authenticate(strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix)))
			if err != nil {
				log.Warn("Rejected access token", "path", r.URL.Path, "error", err)
				_ = httputil.WriteError(w, apperrors.Unauthenticated("Invalid or expired access token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// UserIDExtractor keys per-caller middleware by the authenticated user.
func UserIDExtractor(r *http.Request) string {
	return PrincipalFrom(r.Context()).UserID
}
