package logger

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type connKey struct{}

// WithConn кладёт id сокета в контекст, AttrsFromCtx добавит его в запись.
func WithConn(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, connKey{}, connID)
}

// AttrsFromCtx - trace_id/span_id активного спана и conn, если они есть.
func AttrsFromCtx(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id, ok := ctx.Value(connKey{}).(string); ok && id != "" {
		attrs = append(attrs, slog.String("conn", id))
	}
	return attrs
}
