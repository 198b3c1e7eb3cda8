package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/typescope/idgen"
	"github.com/hazyhaar/typescope/kit"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID takes the caller's X-Request-ID or generates one, stores it
// with kit.WithRequestID, echoes it in the response and attaches a
// per-request logger. A nil logger uses slog.Default().
func RequestID(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 64 {
				id = idgen.Request()
			}
			w.Header().Set(RequestIDHeader, id)

			l := logger.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			l.Debug("shield: request")
			ctx := kit.WithRequestID(r.Context(), id)
			ctx = context.WithValue(ctx, LoggerKey, l)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
