package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"
	apperrors "vaxslot/pkg/errors"
	httputil "vaxslot/pkg/http"
	"vaxslot/pkg/logger"
)

// Recovery turns a handler panic into a 500 that carries the request id.
// http.ErrAbortHandler is re-raised so the server can drop the connection.
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(p)
				}

				requestID := RequestIDFrom(r.Context())
				log.Error("Panic recovered",
					"request_id", requestID,
					"panic", p,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				appErr := apperrors.Internal("Internal server error", nil)
				if requestID != "" {
					appErr = appErr.WithDetails(map[string]any{"request_id": requestID})
				}
				_ = httputil.WriteError(w, appErr)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
