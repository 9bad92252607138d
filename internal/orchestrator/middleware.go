package orchestrator

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// requestIDKey is the context key WithRequestID stores the generated
// request ID under.
type requestIDKey struct{}

// WithRequestLogging wraps next so every request is assigned a request ID
// (following the teacher's uuid.NewString() correlation-id pattern, e.g.
// internal/gateway/commands.go), logged at entry, and carried in both the
// request context and an X-Request-Id response header.
func WithRequestLogging(next http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		logger.Info("request received", "request_id", id, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID extracts the request ID WithRequestLogging attached to ctx, or
// "" if none is present.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
