package slogx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// WithContext attaches a logger to the context so request-scoped attributes
// travel with the request instead of being re-derived at every call site.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger attached to the context. Callers outside a
// request scope (startup, housekeeping) get the process default, so it is
// always safe to log through the result.
func FromContext(ctx context.Context) *slog.Logger {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	if !ok {
		return slog.Default()
	}
	return l
}

// WithRequestID stamps a request id onto the context logger. Every audit or
// error line emitted below this point carries the id, which is what ties a
// failed-login audit row back to the request that produced it.
func WithRequestID(ctx context.Context, reqID string) context.Context {
	l := FromContext(ctx)
	return WithContext(ctx, l.With("req_id", reqID))
}
